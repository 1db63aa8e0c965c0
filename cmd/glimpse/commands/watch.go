package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/glimpse/internal/eventview"
	"github.com/dyluth/glimpse/internal/printer"
	"github.com/spf13/cobra"
)

var (
	watchRedis        string
	watchSession      string
	watchOutputFormat string
	watchType         string
	watchFrames       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor a running session in real time",
	Long: `Monitor a running session's events as they are published to Redis.

Streams trial starts, responses and trial ends as they occur. Frame events
are hidden unless --frames or --type is given. Delivery is best-effort: a
slow terminal may miss events, the Redis stream keeps the full log.

Output Formats:
  default - One human-readable line per event
  jsonl   - Line-delimited JSON for programmatic processing

Examples:
  # Watch the latest session
  glimpse watch

  # Watch responses only
  glimpse watch --type response

  # Capture everything including frames
  glimpse watch --frames --output=jsonl > live.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedis, "redis", "", "Redis URL (default from GLIMPSE_REDIS_URL)")
	watchCmd.Flags().StringVar(&watchSession, "session", "", "Session ID (default: latest session in Redis)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	watchCmd.Flags().StringVar(&watchType, "type", "", "Filter by event type (glob pattern)")
	watchCmd.Flags().BoolVar(&watchFrames, "frames", false, "Include frame events")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := eventview.ParseFormat(watchOutputFormat)
	if err != nil || format == eventview.OutputFormatCSV {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := connectSession(ctx, resolveRedisURL(watchRedis), watchSession)
	if err != nil {
		return err
	}
	defer sink.Close()

	sub, err := sink.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	printer.Info("Watching session %s (Ctrl-C to stop)\n", sink.SessionID())

	filters := &eventview.FilterCriteria{TypeGlob: watchType, Frames: watchFrames}
	return eventview.StreamEvents(ctx, sub, format, filters, cmd.OutOrStdout())
}
