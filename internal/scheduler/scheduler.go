// Package scheduler locks logical stimulus frames to an integer divisor of the
// display refresh signal.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// DefaultRefreshHz is used when refresh-rate detection fails.
const DefaultRefreshHz = 60.0

// Display is the source of hardware refresh pulses.
type Display interface {
	// RefreshRate reports the refresh rate in Hz.
	RefreshRate(ctx context.Context) (float64, error)
	// Pulses delivers one value per refresh until ctx is cancelled, then closes.
	Pulses(ctx context.Context) <-chan time.Time
}

// FrameTick describes one logical frame.
type FrameTick struct {
	Frame uint64    // logical frame index, from 0
	Tick  uint64    // hardware pulse index, from 0
	Time  time.Time // pulse time
}

// FrameFunc is invoked once per logical frame.
type FrameFunc func(FrameTick)

// Divisor returns the number of refresh pulses per logical frame:
// max(1, round(refreshHz / targetHz)).
func Divisor(refreshHz, targetHz float64) int {
	if refreshHz <= 0 || targetHz <= 0 {
		return 1
	}
	d := int(math.Round(refreshHz / targetHz))
	if d < 1 {
		return 1
	}
	return d
}

// RealizedRate is the logical frame rate actually achieved. All
// duration-to-frame conversions must use this, not the requested rate.
func RealizedRate(refreshHz float64, divisor int) float64 {
	if divisor < 1 {
		divisor = 1
	}
	return refreshHz / float64(divisor)
}

// Scheduler turns refresh pulses into logical frames.
// Callbacks run one at a time; after Stop returns no callback fires.
// Stop must not be called from inside the callback.
type Scheduler struct {
	display    Display
	targetHz   float64
	fallbackHz float64
	onFrame    FrameFunc

	mu        sync.Mutex
	refreshHz float64
	divisor   int
	tick      uint64
	frames    uint64
	running   bool
	stopped   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a scheduler targeting targetHz logical frames per second.
func New(display Display, targetHz float64, onFrame FrameFunc) *Scheduler {
	return &Scheduler{
		display:    display,
		targetHz:   targetHz,
		fallbackHz: DefaultRefreshHz,
		onFrame:    onFrame,
		divisor:    1,
	}
}

// SetFallbackRate overrides DefaultRefreshHz for detection failures.
func (s *Scheduler) SetFallbackRate(hz float64) {
	if hz > 0 {
		s.fallbackHz = hz
	}
}

// Configure detects the refresh rate and derives the divisor. It is called by
// Start and may be called earlier to learn the realized rate.
func (s *Scheduler) Configure(ctx context.Context) float64 {
	refresh, err := s.display.RefreshRate(ctx)
	if err != nil || refresh <= 0 || math.IsNaN(refresh) || math.IsInf(refresh, 0) {
		log.Printf("[Scheduler] Warning: refresh rate detection failed (%v), falling back to %.1f Hz", err, s.fallbackHz)
		refresh = s.fallbackHz
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshHz = refresh
	s.divisor = Divisor(refresh, s.targetHz)

	log.Printf("[Scheduler] Refresh %.2f Hz, target %.2f Hz, divisor %d, realized %.3f Hz",
		refresh, s.targetHz, s.divisor, RealizedRate(refresh, s.divisor))

	return RealizedRate(refresh, s.divisor)
}

// RefreshRate returns the configured refresh rate.
func (s *Scheduler) RefreshRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshHz
}

// Divisor returns the configured pulses-per-frame divisor.
func (s *Scheduler) Divisor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divisor
}

// RealizedRate returns the configured realized stimulus rate.
func (s *Scheduler) RealizedRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RealizedRate(s.refreshHz, s.divisor)
}

// Start configures the scheduler (if not already configured) and begins
// consuming pulses in a goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	configured := s.refreshHz > 0
	s.mu.Unlock()

	if !configured {
		s.Configure(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	pulses := s.display.Pulses(runCtx)

	s.mu.Lock()
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case t, ok := <-pulses:
				if !ok {
					return
				}
				s.Pulse(t)
			}
		}
	}()

	return nil
}

// Pulse processes one refresh pulse and fires the frame callback when the
// pulse index is a multiple of the divisor. It reports whether a frame fired.
func (s *Scheduler) Pulse(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	tick := s.tick
	s.tick++
	if tick%uint64(s.divisor) != 0 {
		return false
	}

	ft := FrameTick{Frame: s.frames, Tick: tick, Time: t}
	s.frames++
	if s.onFrame != nil {
		s.onFrame(ft)
	}
	return true
}

// Frames returns the number of logical frames fired so far.
func (s *Scheduler) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Stop halts pulse processing. It waits for any in-flight callback and the
// pulse goroutine; no callback fires after it returns. Safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
