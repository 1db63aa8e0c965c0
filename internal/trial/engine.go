// Package trial implements the trial state machine: phase sequencing, onset
// sampling, response windows, response classification and the false-alarm
// recovery policy.
//
// The engine is driven by two sources. The frame scheduler calls OnTick once
// per logical frame, and input handlers call RegisterResponse from any
// goroutine. Both take the same mutex, so a response and a tick that both
// want to settle a trial are strictly ordered.
package trial

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/dyluth/glimpse/internal/compositor"
	"github.com/dyluth/glimpse/pkg/eventlog"
	"github.com/dyluth/glimpse/pkg/stream"
)

// maxTransitionsPerTick bounds zero-length phase chains within one tick.
const maxTransitionsPerTick = 8

// Options configures an Engine.
type Options struct {
	SessionID    string
	Settings     Settings
	Compositor   *compositor.Compositor
	Seeds        *stream.SeedSequence
	Sampler      Sampler
	Recorder     eventlog.Recorder
	RealizedRate float64
	OnFrame      FrameHandler
}

// Engine sequences trials. All methods are safe for concurrent use, but OnTick
// must only be called from one goroutine at a time.
type Engine struct {
	sessionID string
	comp      *compositor.Compositor
	seeds     *stream.SeedSequence
	sampler   Sampler
	recorder  eventlog.Recorder
	rate      float64
	onFrame   FrameHandler

	mu        sync.Mutex
	observers []ResultObserver
	settings  Settings // applied to trials created from now on

	phase        Phase
	phaseFrames  int
	phaseStart   time.Time
	sessionStart time.Time
	frameNumber  uint64
	nextIndex    int

	slot    TrialSlot
	history []Result
	pending []Result

	started  bool
	paused   bool
	pausedAt time.Time
	stopped  bool
	done     bool
	doneCh   chan struct{}
}

// New creates an engine in the Idle phase.
func New(opts Options) (*Engine, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}
	if opts.Compositor == nil {
		return nil, fmt.Errorf("compositor is required")
	}
	if opts.Seeds == nil {
		return nil, fmt.Errorf("seed sequence is required")
	}
	if opts.RealizedRate <= 0 || math.IsNaN(opts.RealizedRate) || math.IsInf(opts.RealizedRate, 0) {
		return nil, fmt.Errorf("realized rate must be positive, got %v", opts.RealizedRate)
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	sampler := opts.Sampler
	if sampler == nil {
		sampler = NewSampler(0)
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = eventlog.RecorderFunc(func(context.Context, eventlog.Event) error { return nil })
	}

	return &Engine{
		sessionID: opts.SessionID,
		comp:      opts.Compositor,
		seeds:     opts.Seeds,
		sampler:   sampler,
		recorder:  recorder,
		rate:      opts.RealizedRate,
		onFrame:   opts.OnFrame,
		settings:  opts.Settings.clone(),
		phase:     PhaseIdle,
		nextIndex: 1,
		slot:      EmptySlot{},
		doneCh:    make(chan struct{}),
	}, nil
}

// Observe registers fn to be called with every finalized Result. Observers
// run outside the engine lock, on the goroutine that settled the trial.
func (e *Engine) Observe(fn ResultObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Start creates the first trial and enters the Cue phase.
func (e *Engine) Start(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.stopped {
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.sessionStart = now

	e.logEvent("session_start", map[string]interface{}{
		"realized_rate": e.rate,
		"rows":          e.settings.Dims.Rows,
		"cols":          e.settings.Dims.Cols,
	})

	e.beginTrial(now)
	e.enterPhase(PhaseCue, now)
	return nil
}

// OnTick advances the state machine to now and produces the frame for this
// tick. It returns false while paused, before Start and after the session is
// done.
func (e *Engine) OnTick(now time.Time) (Frame, bool) {
	e.mu.Lock()
	if !e.started || e.paused || e.done {
		e.mu.Unlock()
		return Frame{}, false
	}

	e.advance(now)

	var (
		frame Frame
		ok    bool
	)
	if !e.done {
		frame = e.render(now)
		ok = true
	}

	pending, observers := e.takePending()
	onFrame := e.onFrame
	e.mu.Unlock()

	notify(pending, observers)
	if ok && onFrame != nil {
		onFrame(frame)
	}
	return frame, ok
}

// advance applies every transition due at now.
func (e *Engine) advance(now time.Time) {
	for i := 0; i < maxTransitionsPerTick; i++ {
		a := e.active()
		if a == nil {
			return
		}
		s := a.Config.Settings

		switch e.phase {
		case PhaseCue:
			if e.phaseFrames < FramesFor(s.CueDuration, e.rate) {
				return
			}
			e.enterPhase(PhaseFixation, now)

		case PhaseFixation:
			if e.phaseFrames < FramesFor(s.FixationDuration, e.rate) {
				return
			}
			e.enterPhase(PhaseNoise, now)

		case PhaseNoise:
			if e.phaseFrames < a.onsetFrames {
				return
			}
			e.enterCoherent(now)

		case PhaseCoherent:
			// Wall clock, not frame count, gates the stimulus duration.
			if now.Sub(a.coherentStart) < s.StimulusDuration {
				return
			}
			e.enterPhase(PhaseInterTrial, now)

		case PhaseInterTrial:
			if e.phaseFrames < FramesFor(s.InterTrialInterval, e.rate) || now.Before(a.deadline) {
				return
			}
			e.finalize(now, false)
			if !e.beginNext(now) {
				return
			}

		default:
			return
		}
	}
}

func (e *Engine) enterPhase(p Phase, now time.Time) {
	from := e.phase
	e.phase = p
	e.phaseFrames = 0
	e.phaseStart = now

	data := map[string]interface{}{
		"from": string(from),
		"to":   string(p),
	}
	if a := e.active(); a != nil {
		data["trial_index"] = a.Config.Index
	}
	e.logEvent("phase_transition", data)
}

// enterCoherent sets the response window from the real entry time. It is the
// only place the window is written.
func (e *Engine) enterCoherent(now time.Time) {
	a := e.active()
	s := a.Config.Settings

	e.enterPhase(PhaseCoherent, now)
	a.overlay = true
	a.coherentStart = now
	a.window = ResponseWindow{
		Start: now.Add(s.RTDelay),
		End:   now.Add(s.RTDelay + s.RTLength),
	}
	a.deadline = now.Add(s.StimulusDuration + s.RTDelay)
}

// render produces the frame for the current phase. Only Noise and Coherent
// frames draw a seed and carry a pattern.
func (e *Engine) render(now time.Time) Frame {
	a := e.active()
	frame := Frame{
		Time:       now,
		Phase:      e.phase,
		TrialIndex: a.Config.Index,
	}

	if e.phase.Stimulus() {
		var target *compositor.TargetParams
		if e.phase == PhaseCoherent {
			target = a.Config.Target()
			a.coherentFrames++
		} else {
			a.noiseFrames++
		}

		e.frameNumber++
		frame.Number = e.frameNumber
		frame.Seed = e.seeds.Next()
		frame.StimulusOn = target != nil
		frame.Grid = e.comp.Generate(frame.Seed, a.Config.Settings.Dims, target)

		ev := e.baseEvent(now, eventlog.EventFrame, a)
		ev.FrameNumber = frame.Number
		ev.Seed = frame.Seed
		ev.StimulusOn = frame.StimulusOn
		e.record(ev)
	}

	e.phaseFrames++
	return frame
}

// RegisterResponse classifies a response at t. The first classified response
// of a trial wins; later ones are ignored until the next trial. Responses
// stamped before the active trial started are ignored.
func (e *Engine) RegisterResponse(t time.Time) ResponseOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.active()
	if !e.started || e.paused || e.done || a == nil {
		return ResponseOutcome{Action: ActionIgnored}
	}
	index := a.Config.Index

	// A response stamped at or before the tick that finalized the previous
	// trial belongs to that trial and is dropped.
	if t.Before(a.Start) || e.finalizedAt(t) {
		e.logEvent("response_stale", map[string]interface{}{"trial_index": index})
		return ResponseOutcome{Action: ActionIgnored}
	}

	if a.response != nil {
		return ResponseOutcome{Action: ActionIgnored, TrialIndex: index}
	}
	if a.suppressed(t) {
		e.logEvent("response_suppressed", map[string]interface{}{"trial_index": index})
		return ResponseOutcome{Action: ActionSuppressed, TrialIndex: index}
	}

	s := a.Config.Settings
	outcome, late := Classify(t, a.coherentStart, s.RTDelay, s.StimulusDuration)
	if outcome == OutcomeFalseAlarm {
		return e.falseAlarm(t, a, late)
	}

	rt := t.Sub(a.coherentStart)
	a.response = &classified{
		outcome: OutcomeHit,
		at:      t,
		rt:      rt,
		hasRT:   true,
		within:  a.window.Contains(t),
	}
	e.record(e.responseEvent(t, a, a.response))
	e.logEvent("response", map[string]interface{}{
		"trial_index":      index,
		"outcome":          string(OutcomeHit),
		"reaction_time_ms": rt.Milliseconds(),
	})

	return ResponseOutcome{Action: ActionRecorded, Outcome: OutcomeHit, ReactionTime: rt, TrialIndex: index}
}

// finalizedAt reports whether t falls at or before the end of the last
// finalized trial.
func (e *Engine) finalizedAt(t time.Time) bool {
	if len(e.history) == 0 {
		return false
	}
	return !t.After(e.history[len(e.history)-1].End)
}

// falseAlarm applies the recovery policy. The reward draw always comes first;
// only an unrewarded false alarm extends (pre-onset) or terminates
// (post-onset) the trial.
func (e *Engine) falseAlarm(t time.Time, a *ActiveSlot, late bool) ResponseOutcome {
	s := a.Config.Settings
	index := a.Config.Index

	fa := &classified{outcome: OutcomeFalseAlarm, at: t, late: late}
	if a.overlay {
		fa.rt = t.Sub(a.coherentStart)
		fa.hasRT = true
		fa.within = a.window.Contains(t)
	}
	out := ResponseOutcome{Outcome: OutcomeFalseAlarm, Late: late, ReactionTime: fa.rt, TrialIndex: index}

	if p := e.sampler.Float64(); p < s.FalseAlarmRewardProbability {
		a.rewardedFAs++
		a.suppressFrom = t
		a.suppressUntil = t.Add(s.SuppressionDuration)
		e.record(e.responseEvent(t, a, fa))
		e.logEvent("false_alarm_rewarded", map[string]interface{}{
			"trial_index": index,
			"late":        late,
		})
		out.Action = ActionRewarded
		return out
	}

	if !a.overlay {
		e.record(e.responseEvent(t, a, fa))
		e.extend(t, a)
		out.Action = ActionExtended
		return out
	}

	a.response = fa
	a.deadline = t
	e.record(e.responseEvent(t, a, fa))
	e.logEvent("false_alarm_terminated", map[string]interface{}{
		"trial_index": index,
		"late":        late,
	})
	if e.phase != PhaseInterTrial {
		e.enterPhase(PhaseInterTrial, t)
	}
	out.Action = ActionTerminated
	return out
}

// extend restarts the trial timing from t under the same index. The phase is
// rewound to Noise directly rather than through enterPhase: it is a reset,
// not a phase boundary.
func (e *Engine) extend(t time.Time, a *ActiveSlot) {
	s := a.Config.Settings

	cfg := a.Config
	cfg.Onset = SampleOnset(s.MinOnset, s.MaxOnset, e.sampler.Float64())

	a.Config = cfg
	a.Start = t
	a.onsetFrames = FramesFor(cfg.Onset, e.rate)
	a.response = nil
	a.window = ResponseWindow{}
	a.coherentStart = time.Time{}
	a.overlay = false
	a.deadline = time.Time{}
	a.extensions++

	from := e.phase
	e.phase = PhaseNoise
	e.phaseFrames = 0
	e.phaseStart = t

	e.logEvent("trial_extended", map[string]interface{}{
		"trial_index": cfg.Index,
		"from":        string(from),
		"onset_ms":    cfg.Onset.Milliseconds(),
		"extensions":  a.extensions,
	})
	e.record(e.baseEvent(t, eventlog.EventTrialStart, a))
}

// finalize turns the active trial into a Result and empties the slot.
func (e *Engine) finalize(now time.Time, aborted bool) {
	a := e.active()
	if a == nil {
		return
	}
	s := a.Config.Settings

	res := Result{
		Index:               a.Config.Index,
		NoiseFrames:         a.noiseFrames,
		CoherentFrames:      a.coherentFrames,
		RewardedFalseAlarms: a.rewardedFAs,
		Extensions:          a.extensions,
		Aborted:             aborted,
		Config:              a.Config,
		Start:               a.Start,
		End:                 now,
	}

	switch {
	case a.response != nil:
		res.Outcome = a.response.outcome
		res.ReactionTime = a.response.rt
		res.HasReactionTime = a.response.hasRT
		res.Late = a.response.late
		res.WithinRTWindow = a.response.within
	case a.rewardedFAs > 0:
		res.Outcome = OutcomeFalseAlarm
	default:
		res.Outcome = OutcomeMiss
		if !aborted {
			res.AutoRewarded = e.sampler.Float64() < s.AutoRewardProbability
		}
	}

	e.history = append(e.history, res)
	e.pending = append(e.pending, res)
	e.slot = EmptySlot{}

	ev := e.baseEvent(now, eventlog.EventTrialEnd, a)
	ev.Response = string(res.Outcome)
	ev.WithinRTWindow = res.WithinRTWindow
	if res.HasReactionTime {
		rt := res.ReactionTime.Seconds()
		ev.ReactionTime = &rt
	}
	e.record(ev)

	e.logEvent("trial_end", map[string]interface{}{
		"trial_index":   res.Index,
		"outcome":       string(res.Outcome),
		"auto_rewarded": res.AutoRewarded,
		"aborted":       aborted,
		"noise_frames":  res.NoiseFrames,
		"extensions":    res.Extensions,
	})
}

// beginNext starts the next trial in Noise, or marks the session done when
// the trial limit is reached.
func (e *Engine) beginNext(now time.Time) bool {
	if e.settings.MaxTrials > 0 && len(e.history) >= e.settings.MaxTrials {
		e.markDone()
		return false
	}
	e.beginTrial(now)
	e.enterPhase(PhaseNoise, now)
	return true
}

// beginTrial draws a new TrialConfig from the current settings.
func (e *Engine) beginTrial(now time.Time) {
	s := e.settings.clone()

	cfg := TrialConfig{
		Index:           e.nextIndex,
		Coherence:       s.CoherenceLevels[e.sampler.IntN(len(s.CoherenceLevels))],
		TargetIntensity: s.TargetIntensity,
		Quadrant:        s.Quadrants[e.sampler.IntN(len(s.Quadrants))],
		Settings:        s,
	}
	cfg.Onset = SampleOnset(s.MinOnset, s.MaxOnset, e.sampler.Float64())
	e.nextIndex++

	a := &ActiveSlot{
		Config:      cfg,
		Start:       now,
		onsetFrames: FramesFor(cfg.Onset, e.rate),
	}
	e.slot = a

	e.record(e.baseEvent(now, eventlog.EventTrialStart, a))
	e.logEvent("trial_start", map[string]interface{}{
		"trial_index": cfg.Index,
		"coherence":   cfg.Coherence,
		"quadrant":    string(cfg.Quadrant),
		"onset_ms":    cfg.Onset.Milliseconds(),
	})
}

func (e *Engine) markDone() {
	if e.done {
		return
	}
	e.done = true
	close(e.doneCh)
	e.logEvent("session_done", map[string]interface{}{"trials": len(e.history)})
}

// Pause freezes the engine. Ticks are ignored and responses discarded until
// Resume.
func (e *Engine) Pause(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.done || e.paused {
		return false
	}
	e.paused = true
	e.pausedAt = now
	e.logEvent("paused", map[string]interface{}{"phase": string(e.phase)})
	return true
}

// Resume continues from where Pause left off. Every phase-relative time is
// shifted by the paused duration, so no stimulus or window time is lost.
func (e *Engine) Resume(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.paused {
		return false
	}
	d := now.Sub(e.pausedAt)
	if d < 0 {
		d = 0
	}
	e.paused = false

	e.phaseStart = shift(e.phaseStart, d)
	if a := e.active(); a != nil {
		a.Start = shift(a.Start, d)
		a.coherentStart = shift(a.coherentStart, d)
		a.deadline = shift(a.deadline, d)
		a.suppressFrom = shift(a.suppressFrom, d)
		a.suppressUntil = shift(a.suppressUntil, d)
		if a.window.IsSet() {
			a.window = ResponseWindow{Start: a.window.Start.Add(d), End: a.window.End.Add(d)}
		}
	}

	e.logEvent("resumed", map[string]interface{}{
		"phase":     string(e.phase),
		"paused_ms": d.Milliseconds(),
	})
	return true
}

func shift(t time.Time, d time.Duration) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Add(d)
}

// Stop finalizes any in-flight trial as aborted and ends the session. It
// returns after the Result is in History. Safe to call twice.
func (e *Engine) Stop(now time.Time) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.paused = false
	if e.active() != nil {
		e.finalize(now, true)
	}
	e.markDone()

	pending, observers := e.takePending()
	e.mu.Unlock()

	notify(pending, observers)
}

// UpdateSettings replaces the settings used for future trials. The in-flight
// trial keeps its snapshot.
func (e *Engine) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s.clone()
	e.logEvent("settings_updated", map[string]interface{}{"max_trials": s.MaxTrials})
	return nil
}

// History returns a copy of the finalized results in trial order.
func (e *Engine) History() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.history))
	copy(out, e.history)
	return out
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Slot returns EmptySlot or a copy of the active trial's config and start.
func (e *Engine) Slot() TrialSlot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slotCopy()
}

func (e *Engine) slotCopy() TrialSlot {
	a := e.active()
	if a == nil {
		return EmptySlot{}
	}
	return ActiveSlot{Config: a.Config, Start: a.Start}
}

// Snapshot returns a consistent copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Phase:        e.phase,
		PhaseFrames:  e.phaseFrames,
		PhaseStart:   e.phaseStart,
		Slot:         e.slotCopy(),
		FrameNumber:  e.frameNumber,
		Completed:    len(e.history),
		Paused:       e.paused,
		Done:         e.done,
		RealizedRate: e.rate,
	}
	if a := e.active(); a != nil {
		snap.Window = a.window
	}
	return snap
}

// Done is closed when the trial limit is reached or Stop is called.
func (e *Engine) Done() <-chan struct{} {
	return e.doneCh
}

// SessionID returns the session the engine logs under.
func (e *Engine) SessionID() string {
	return e.sessionID
}

func (e *Engine) active() *ActiveSlot {
	a, _ := e.slot.(*ActiveSlot)
	return a
}

func (e *Engine) takePending() ([]Result, []ResultObserver) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	pending := e.pending
	e.pending = nil
	observers := append([]ResultObserver(nil), e.observers...)
	return pending, observers
}

func notify(results []Result, observers []ResultObserver) {
	for _, res := range results {
		for _, fn := range observers {
			fn(res)
		}
	}
}

func (e *Engine) baseEvent(t time.Time, typ eventlog.EventType, a *ActiveSlot) eventlog.Event {
	return eventlog.Event{
		Timestamp:       t,
		SessionTime:     t.Sub(e.sessionStart).Seconds(),
		TrialTime:       t.Sub(a.Start).Seconds(),
		Type:            typ,
		SessionID:       e.sessionID,
		TrialIndex:      a.Config.Index,
		Coherence:       a.Config.Coherence,
		TargetIntensity: a.Config.TargetIntensity,
		Quadrant:        string(a.Config.Quadrant),
	}
}

func (e *Engine) responseEvent(t time.Time, a *ActiveSlot, c *classified) eventlog.Event {
	ev := e.baseEvent(t, eventlog.EventResponse, a)
	ev.Response = string(c.outcome)
	ev.WithinRTWindow = c.within
	if c.hasRT {
		rt := c.rt.Seconds()
		ev.ReactionTime = &rt
	}
	return ev
}

func (e *Engine) record(ev eventlog.Event) {
	if err := e.recorder.Record(context.Background(), ev); err != nil {
		log.Printf("[Engine] Warning: failed to record %s event for trial %d: %v", ev.Type, ev.TrialIndex, err)
	}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["session"] = e.sessionID

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
