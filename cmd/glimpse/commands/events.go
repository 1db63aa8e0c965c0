package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dyluth/glimpse/internal/eventview"
	"github.com/dyluth/glimpse/internal/printer"
	"github.com/dyluth/glimpse/internal/resolver"
	"github.com/dyluth/glimpse/internal/timespec"
	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	eventsLog          string
	eventsRedis        string
	eventsSession      string
	eventsOutputFormat string
	eventsSince        string
	eventsUntil        string
	eventsType         string
	eventsTrial        int
	eventsFrames       bool
)

var eventsCmd = &cobra.Command{
	Use:   "events [TRIAL]",
	Short: "Inspect a session's event log with filtering",
	Long: `Inspect a session's event log in list or get mode.

Events are read from a CSV/XLSX log (--log) or from the session's Redis
stream (--redis, default from GLIMPSE_REDIS_URL). Without --session the most
recently started session in Redis is used.

List Mode (no TRIAL):
  Displays events matching filters. Frame rows are hidden unless --frames
  or --type is given.

Get Mode (with TRIAL):
  Displays the trial_end row of one trial as pretty-printed JSON.

Output Formats (list mode only):
  default - Human-readable table
  jsonl   - Line-delimited JSON, one event per line
  csv     - The event log's own CSV columns

Filters (list mode only):
  --since  - Events after this time (duration or RFC3339)
  --until  - Events before this time (duration or RFC3339)
  --type   - Event type glob ("trial_*", "response")
  --trial  - Exact trial index

Examples:
  # Table of a CSV log
  glimpse events --log events.csv

  # Seeds of every frame of trial 3 as JSONL
  glimpse events --log events.csv --trial 3 --frames -o jsonl | jq .seed

  # Responses in the latest Redis session over the last ten minutes
  glimpse events --type response --since 10m

  # Trial 7 of a specific session
  glimpse events 7 --session 2f6c...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsLog, "log", "", "Event log file (.csv or .xlsx)")
	eventsCmd.Flags().StringVar(&eventsRedis, "redis", "", "Redis URL (default from GLIMPSE_REDIS_URL)")
	eventsCmd.Flags().StringVar(&eventsSession, "session", "", "Session ID (default: latest session in Redis)")
	eventsCmd.Flags().StringVarP(&eventsOutputFormat, "output", "o", "default", "Output format: default, jsonl or csv (ignored in get mode)")

	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "Show events after time (duration or RFC3339)")
	eventsCmd.Flags().StringVar(&eventsUntil, "until", "", "Show events before time (duration or RFC3339)")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type (glob pattern)")
	eventsCmd.Flags().IntVar(&eventsTrial, "trial", 0, "Filter by trial index")
	eventsCmd.Flags().BoolVar(&eventsFrames, "frames", false, "Include frame rows")

	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w := cmd.OutOrStdout()

	isGetMode := len(args) > 0
	var trialIndex int
	if isGetMode {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return printer.Error(
				"invalid trial index",
				fmt.Sprintf("Trial must be a positive integer, got %q", args[0]),
				nil,
			)
		}
		trialIndex = n
	}

	format, err := eventview.ParseFormat(eventsOutputFormat)
	if err != nil && !isGetMode {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", eventsOutputFormat),
			[]string{"Valid formats: default, jsonl, csv"},
		)
	}

	if eventsLog != "" {
		events, err := readLog(eventsLog)
		if err != nil {
			return printer.Error("failed to read event log", err.Error(), nil)
		}
		sessionID := eventsSession
		if sessionID == "" && len(events) > 0 {
			sessionID = events[0].SessionID
		}
		if isGetMode {
			return showTrialFromLog(w, events, trialIndex)
		}
		filters, err := buildEventFilters(time.Now())
		if err != nil {
			return err
		}
		return eventview.ListEvents(w, events, sessionID, format, filters)
	}

	redisURL := resolveRedisURL(eventsRedis)
	sink, err := connectSession(ctx, redisURL, eventsSession)
	if err != nil {
		return err
	}
	defer sink.Close()

	if isGetMode {
		ev, err := sink.GetTrial(ctx, trialIndex)
		if err != nil {
			if eventlog.IsNotFound(err) {
				return printer.Error(
					fmt.Sprintf("trial %d not found", trialIndex),
					fmt.Sprintf("Session %s has no finished trial %d.", sink.SessionID(), trialIndex),
					[]string{"List the session's trials:\n  glimpse events --type trial_end"},
				)
			}
			return fmt.Errorf("failed to get trial: %w", err)
		}
		return eventview.FormatSingleJSON(w, *ev)
	}

	filters, err := buildEventFilters(time.Now())
	if err != nil {
		return err
	}
	events, err := sink.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	return eventview.ListEvents(w, events, sink.SessionID(), format, filters)
}

func buildEventFilters(now time.Time) (*eventview.FilterCriteria, error) {
	since, until, err := timespec.ParseRange(eventsSince, eventsUntil, now)
	if err != nil {
		return nil, printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration (10m, 2h) or RFC3339 (2025-10-29T13:00:00Z)"},
		)
	}
	return &eventview.FilterCriteria{
		Since:    since,
		Until:    until,
		TypeGlob: eventsType,
		Trial:    eventsTrial,
		Frames:   eventsFrames,
	}, nil
}

// showTrialFromLog prints the trial_end row for index.
func showTrialFromLog(w io.Writer, events []eventlog.Event, index int) error {
	for _, ev := range events {
		if ev.Type == eventlog.EventTrialEnd && ev.TrialIndex == index {
			return eventview.FormatSingleJSON(w, ev)
		}
	}
	return printer.Error(
		fmt.Sprintf("trial %d not found", index),
		"The log has no trial_end row for this trial.",
		nil,
	)
}

// connectSession opens a Redis sink for sessionID, which may be a unique
// prefix. An empty sessionID selects the most recently started session.
func connectSession(ctx context.Context, redisURL, sessionID string) (*eventlog.RedisSink, error) {
	sessions, err := listSessions(ctx, redisURL)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		if len(sessions) == 0 {
			return nil, printer.Error(
				"no sessions found",
				"Redis has no recorded sessions.",
				[]string{"Run a session with Redis output:\n  glimpse run --redis " + redisURL},
			)
		}
		return openRedisSink(ctx, redisURL, sessions[0].ID)
	}

	fullID, err := resolver.ResolveSessionID(sessions, sessionID)
	if err != nil {
		var ambiguous *resolver.AmbiguousError
		switch {
		case errors.As(err, &ambiguous):
			return nil, printer.Error(
				fmt.Sprintf("ambiguous session ID '%s'", sessionID),
				resolver.FormatAmbiguousError(ambiguous),
				[]string{"List sessions:\n  glimpse sessions"},
			)
		case resolver.IsNotFoundError(err):
			return nil, printer.Error(
				fmt.Sprintf("session '%s' not found", sessionID),
				"No recorded session matches this ID.",
				[]string{"List sessions:\n  glimpse sessions"},
			)
		default:
			return nil, printer.Error("invalid session ID", err.Error(), nil)
		}
	}
	return openRedisSink(ctx, redisURL, fullID)
}

// listSessions reads the sessions index, newest first.
func listSessions(ctx context.Context, redisURL string) ([]eventlog.SessionRecord, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	sessions, err := eventlog.ListSessions(ctx, rdb)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not list sessions at %s", redisURL),
			map[string]string{"Error": err.Error()},
			[]string{"Check the URL or set GLIMPSE_REDIS_URL in .env"},
		)
	}
	return sessions, nil
}
