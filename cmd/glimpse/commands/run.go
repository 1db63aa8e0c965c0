package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dyluth/glimpse/internal/config"
	"github.com/dyluth/glimpse/internal/printer"
	"github.com/dyluth/glimpse/internal/session"
	"github.com/dyluth/glimpse/internal/trial"
	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	runTrials  int
	runSeed    uint64
	runSubject string
	runSession string
	runCSV     string
	runXLSX    string
	runRedis   string
	runStatus  string
	runKeys    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a detection session",
	Long: `Run a detection session using glimpse.yml.

Frames are paced by a software display at display.refresh_hz. Each finalized
trial is printed as it completes, followed by a summary when the session
ends (trial limit reached, Ctrl-C, or 'q' with --keys).

Sinks:
  --csv     - CSV event log (overrides output.csv)
  --xlsx    - Excel workbook, sheet "events" (overrides output.xlsx)
  --redis   - Redis URL; events go to glimpse:{session}:events

Keyboard control (--keys), one command per line on stdin:
  <Enter>  register a response
  p        pause (timers freeze)
  r        resume
  q        stop the session

Examples:
  # Ten trials, CSV only
  glimpse run --trials 10 --csv events.csv

  # Stream to Redis and expose the status server
  glimpse run --redis redis://localhost:6379/0 --status 127.0.0.1:8090`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runTrials, "trials", 0, "Number of trials (overrides session.trials)")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Session seed (overrides session.seed)")
	runCmd.Flags().StringVar(&runSubject, "subject", "", "Subject label (overrides session.subject)")
	runCmd.Flags().StringVar(&runSession, "session", "", "Session ID (overrides session.id)")
	runCmd.Flags().StringVar(&runCSV, "csv", "", "CSV event log path")
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "XLSX event log path")
	runCmd.Flags().StringVar(&runRedis, "redis", "", "Redis URL for the event stream")
	runCmd.Flags().StringVar(&runStatus, "status", "", "Status server listen address")
	runCmd.Flags().BoolVar(&runKeys, "keys", false, "Read responses and pause/resume commands from stdin")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{"Create a default config:\n  glimpse init", "Point at another file:\n  glimpse run --config path/to/glimpse.yml"},
		)
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Session.ID == "" {
		cfg.Session.ID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, err := openSinks(ctx, cfg, time.Now())
	if err != nil {
		return err
	}

	printer.Step("Detecting refresh rate...\n")
	sess, err := session.New(ctx, session.Options{Config: cfg, Sinks: sinks})
	if err != nil {
		closeSinks(sinks)
		return fmt.Errorf("failed to create session: %w", err)
	}

	printer.Info("Session %s (seed %d, %.2f Hz, %d sink(s))\n", sess.ID(), sess.Seed(), sess.RealizedRate(), len(sinks))
	if cfg.Output.StatusAddr != "" {
		printer.Info("Status server on http://%s/status\n", cfg.Output.StatusAddr)
	}

	sess.Observe(func(res trial.Result) {
		printer.Outcome(res.Index, string(res.Outcome), resultDetail(res))
	})

	if runKeys {
		go readKeys(ctx, os.Stdin, sess)
	}

	runErr := sess.Run(ctx)
	printSummary(sess.ID(), session.Summarize(sess.Results()))
	if runErr != nil {
		return fmt.Errorf("session failed: %w", runErr)
	}
	return nil
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.GlimpseConfig) error {
	flags := cmd.Flags()
	if flags.Changed("trials") {
		if runTrials < 0 {
			return fmt.Errorf("--trials must be >= 0, got %d", runTrials)
		}
		cfg.Session.Trials = runTrials
	}
	if flags.Changed("seed") {
		cfg.Session.Seed = runSeed
	}
	if flags.Changed("subject") {
		cfg.Session.Subject = runSubject
	}
	if flags.Changed("session") {
		cfg.Session.ID = runSession
	}
	if flags.Changed("csv") {
		cfg.Output.CSV = runCSV
	}
	if flags.Changed("xlsx") {
		cfg.Output.XLSX = runXLSX
	}
	if flags.Changed("redis") {
		cfg.Output.RedisURL = runRedis
	}
	if flags.Changed("status") {
		cfg.Output.StatusAddr = runStatus
	}
	return nil
}

// openSinks creates every configured sink. On failure the ones already
// opened are closed.
func openSinks(ctx context.Context, cfg *config.GlimpseConfig, startedAt time.Time) ([]eventlog.Sink, error) {
	var sinks []eventlog.Sink

	if cfg.Output.CSV != "" {
		sink, err := eventlog.NewCSVSink(cfg.Output.CSV)
		if err != nil {
			return nil, printer.Error("failed to open CSV log", err.Error(), nil)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Output.XLSX != "" {
		sink, err := eventlog.NewXLSXSink(cfg.Output.XLSX)
		if err != nil {
			closeSinks(sinks)
			return nil, printer.Error("failed to open XLSX log", err.Error(), nil)
		}
		sinks = append(sinks, sink)
	}

	if cfg.Output.RedisURL != "" {
		sink, err := openRedisSink(ctx, cfg.Output.RedisURL, cfg.Session.ID)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		if err := sink.RegisterSession(ctx, startedAt); err != nil {
			sink.Close()
			closeSinks(sinks)
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
		sinks = append(sinks, sink)
	}

	if len(sinks) == 0 {
		printer.Warning("No output configured; events will not be saved\n")
	}
	return sinks, nil
}

// openRedisSink connects and pings, rendering connection failures for the user.
func openRedisSink(ctx context.Context, redisURL, sessionID string) (*eventlog.RedisSink, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	sink, err := eventlog.NewRedisSink(redisOpts, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis sink: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sink.Ping(pingCtx); err != nil {
		sink.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"Error": err.Error()},
			[]string{"Check the URL or set GLIMPSE_REDIS_URL in .env"},
		)
	}
	return sink, nil
}

func closeSinks(sinks []eventlog.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("[Run] Warning: failed to close sink: %v", err)
		}
	}
}

// readKeys maps stdin lines to session controls until ctx ends or stdin closes.
func readKeys(ctx context.Context, r io.Reader, sess *session.Session) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		now := time.Now()

		switch strings.TrimSpace(scanner.Text()) {
		case "":
			out := sess.Respond(now)
			if out.Action == trial.ActionIgnored || out.Action == trial.ActionSuppressed {
				printer.Info("  response %s\n", out.Action)
			}
		case "p":
			if sess.Pause() {
				printer.Warning("Paused (r to resume)\n")
			}
		case "r":
			if sess.Resume() {
				printer.Info("Resumed\n")
			}
		case "q":
			sess.Stop()
			return
		default:
			printer.Info("  keys: <Enter> respond, p pause, r resume, q quit\n")
		}
	}
}

// resultDetail summarizes a result for the per-trial line.
func resultDetail(res trial.Result) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("coh=%.2f %s", res.Config.Coherence, res.Config.Quadrant))
	if res.HasReactionTime {
		parts = append(parts, fmt.Sprintf("rt=%dms", res.ReactionTime.Milliseconds()))
	}
	if res.Late {
		parts = append(parts, "late")
	}
	if res.Extensions > 0 {
		parts = append(parts, fmt.Sprintf("extended x%d", res.Extensions))
	}
	if res.RewardedFalseAlarms > 0 {
		parts = append(parts, fmt.Sprintf("rewarded FA x%d", res.RewardedFalseAlarms))
	}
	if res.AutoRewarded {
		parts = append(parts, "auto-reward")
	}
	if res.Aborted {
		parts = append(parts, "aborted")
	}
	return strings.Join(parts, " ")
}

func printSummary(sessionID string, sum session.Summary) {
	printer.Info("\n")
	printer.Success("Session %s complete\n", sessionID)
	printer.Field("Trials", "%d (%d aborted)", sum.Trials, sum.Aborted)
	printer.Field("Hits", "%d", sum.Hits)
	printer.Field("Misses", "%d", sum.Misses)
	printer.Field("False alarms", "%d", sum.FalseAlarms)
	printer.Field("Hit rate", "%.1f%%", sum.HitRate*100)
	if sum.Hits > 0 {
		printer.Field("RT mean/median", "%.0f / %.0f ms", sum.MeanRTMS, sum.MedianRTMS)
	}
	for _, lvl := range sum.ByCoherence {
		printer.Field(fmt.Sprintf("Coherence %.2f", lvl.Coherence), "%d/%d hits", lvl.Hits, lvl.Trials)
	}
}
