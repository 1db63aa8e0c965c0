// Package session wires the frame scheduler, the trial engine and the event
// sinks into one runnable unit.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dyluth/glimpse/internal/compositor"
	"github.com/dyluth/glimpse/internal/config"
	"github.com/dyluth/glimpse/internal/scheduler"
	"github.com/dyluth/glimpse/internal/trial"
	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/dyluth/glimpse/pkg/stream"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Pinger is a sink that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Session. Only Config is required.
type Options struct {
	Config *config.GlimpseConfig

	// Display defaults to a SoftwareDisplay at display.refresh_hz.
	Display scheduler.Display

	// Sinks receive every event through the dispatcher and are closed
	// when the session ends.
	Sinks []eventlog.Sink

	// OnFrame is the display layer. It runs on the scheduler goroutine.
	OnFrame trial.FrameHandler

	// Clock stamps Stop, Pause and Resume. Defaults to time.Now.
	Clock func() time.Time
}

// Session runs one experimental session.
type Session struct {
	id    string
	seed  uint64
	cfg   *config.GlimpseConfig
	clock func() time.Time
	sinks []eventlog.Sink

	sched      *scheduler.Scheduler
	engine     *trial.Engine
	dispatcher *eventlog.Dispatcher
	server     *http.Server

	mu      sync.Mutex
	running bool

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a session: it detects the refresh rate (falling back to
// display.fallback_hz) so the engine is created with the realized rate.
func New(ctx context.Context, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	id := cfg.Session.ID
	if id == "" {
		id = uuid.NewString()
	}
	seed := cfg.Session.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	display := opts.Display
	if display == nil {
		display = scheduler.NewSoftwareDisplay(cfg.Display.RefreshHz)
	}

	s := &Session{
		id:      id,
		seed:    seed,
		cfg:     cfg,
		clock:   clock,
		sinks:   opts.Sinks,
		stopped: make(chan struct{}),
	}

	recorders := make([]eventlog.Recorder, 0, len(opts.Sinks))
	for _, sink := range opts.Sinks {
		recorders = append(recorders, sink)
	}
	s.dispatcher = eventlog.NewDispatcher(eventlog.DefaultDispatchBuffer, recorders...)

	s.sched = scheduler.New(display, cfg.Display.StimulusHz, s.onTick)
	s.sched.SetFallbackRate(cfg.Display.FallbackHz)
	rate := s.sched.Configure(ctx)

	alg := cfg.Session.Algorithm
	engine, err := trial.New(trial.Options{
		SessionID:    id,
		Settings:     cfg.Settings(),
		Compositor:   compositor.New(alg, *cfg.Target.Mask),
		Seeds:        stream.NewSeedSequence(seed, alg),
		Sampler:      trial.NewSampler(seed),
		Recorder:     s.dispatcher,
		RealizedRate: rate,
		OnFrame:      opts.OnFrame,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create trial engine: %w", err)
	}
	s.engine = engine

	if addr := cfg.Output.StatusAddr; addr != "" {
		s.server = &http.Server{
			Addr:         addr,
			Handler:      s.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
	}

	s.logEvent("session_created", map[string]interface{}{
		"seed":          seed,
		"algorithm":     string(alg),
		"refresh_hz":    s.sched.RefreshRate(),
		"divisor":       s.sched.Divisor(),
		"realized_rate": rate,
		"sinks":         len(opts.Sinks),
	})

	return s, nil
}

func (s *Session) onTick(ft scheduler.FrameTick) {
	s.engine.OnTick(ft.Time)
}

// Run starts the session and blocks until the trial limit is reached, ctx
// is cancelled or Stop is called. Every path ends through Stop, so the
// in-flight trial is always finalized and the sinks drained.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("session already running")
	}
	select {
	case <-s.stopped:
		s.mu.Unlock()
		return fmt.Errorf("session already stopped")
	default:
	}
	s.running = true
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.dispatcher.Run(context.Background())
	})

	if s.server != nil {
		g.Go(func() error {
			log.Printf("[Session] Status server listening on %s", s.server.Addr)
			if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer s.Stop()

		if err := s.engine.Start(s.clock()); err != nil {
			return fmt.Errorf("failed to start trial engine: %w", err)
		}
		if err := s.sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		select {
		case <-s.engine.Done():
		case <-gctx.Done():
		case <-s.stopped:
		}
		return nil
	})

	return g.Wait()
}

// Stop ends the session: the scheduler halts, the in-flight trial is
// finalized as aborted, queued events are delivered and the sinks closed.
// It blocks until all of that is done. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.sched.Stop()
		s.engine.Stop(s.clock())

		if err := s.dispatcher.Close(); err != nil {
			log.Printf("[Session] Warning: failed to drain events: %v", err)
		}

		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.server.Shutdown(ctx); err != nil {
				log.Printf("[Session] Warning: status server shutdown: %v", err)
			}
			cancel()
		}

		for _, sink := range s.sinks {
			if err := sink.Close(); err != nil {
				log.Printf("[Session] Warning: failed to close sink: %v", err)
			}
		}

		history := s.engine.History()
		s.logEvent("session_stopped", map[string]interface{}{
			"trials":           len(history),
			"frames":           s.sched.Frames(),
			"events_delivered": s.dispatcher.Delivered(),
			"event_failures":   s.dispatcher.Failures(),
		})
		close(s.stopped)
	})
	<-s.stopped
}

// Respond registers a subject response at t. Observers and frame handlers
// must not call Stop: it waits for the frame callback they run inside.
func (s *Session) Respond(t time.Time) trial.ResponseOutcome {
	return s.engine.RegisterResponse(t)
}

// Pause freezes the trial timers.
func (s *Session) Pause() bool {
	return s.engine.Pause(s.clock())
}

// Resume continues after Pause.
func (s *Session) Resume() bool {
	return s.engine.Resume(s.clock())
}

// Observe registers fn for every finalized trial.
func (s *Session) Observe(fn trial.ResultObserver) {
	s.engine.Observe(fn)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Seed returns the session seed (generated when the config has none).
func (s *Session) Seed() uint64 {
	return s.seed
}

// RealizedRate returns the logical frame rate the engine runs at.
func (s *Session) RealizedRate() float64 {
	return s.sched.RealizedRate()
}

// Results returns the finalized trials so far.
func (s *Session) Results() []trial.Result {
	return s.engine.History()
}

// Snapshot returns the engine state.
func (s *Session) Snapshot() trial.Snapshot {
	return s.engine.Snapshot()
}

// Done is closed once Stop has completed.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// logEvent logs a structured event in JSON format.
func (s *Session) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "session"
	data["event_type"] = eventType
	data["session"] = s.id

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Session] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
