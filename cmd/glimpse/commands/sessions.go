package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/spf13/cobra"
)

var sessionsRedis string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions recorded in Redis",
	Long: `List sessions recorded in Redis, newest first.

Examples:
  glimpse sessions
  glimpse sessions --redis redis://lab-host:6379/1`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsRedis, "redis", "", "Redis URL (default from GLIMPSE_REDIS_URL)")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessions, err := listSessions(ctx, resolveRedisURL(sessionsRedis))
	if err != nil {
		return err
	}

	writeSessions(cmd.OutOrStdout(), sessions)
	return nil
}

func writeSessions(w io.Writer, sessions []eventlog.SessionRecord) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.StartedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}
