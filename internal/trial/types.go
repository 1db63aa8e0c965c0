package trial

import (
	"time"

	"github.com/dyluth/glimpse/internal/compositor"
)

// TrialConfig is fixed when a trial is created. An extension replaces it with
// a new value carrying a fresh onset; it is never mutated.
type TrialConfig struct {
	Index           int
	Coherence       float64
	TargetIntensity float64
	Onset           time.Duration
	Quadrant        compositor.Quadrant
	Settings        Settings
}

// Target returns the overlay parameters for Coherent frames.
func (c TrialConfig) Target() *compositor.TargetParams {
	return &compositor.TargetParams{
		Quadrant:  c.Quadrant,
		Coherence: c.Coherence,
		Intensity: c.TargetIntensity,
	}
}

// TrialSlot is either EmptySlot or ActiveSlot.
type TrialSlot interface {
	isTrialSlot()
}

// EmptySlot means no trial is in flight.
type EmptySlot struct{}

func (EmptySlot) isTrialSlot() {}

// ActiveSlot holds the in-flight trial. Start is the effective start time,
// which moves forward when the trial is extended.
type ActiveSlot struct {
	Config TrialConfig
	Start  time.Time

	onsetFrames    int
	overlay        bool // target overlay requested (Coherent entered)
	coherentStart  time.Time
	window         ResponseWindow
	deadline       time.Time // earliest finalization time
	response       *classified
	suppressFrom   time.Time
	suppressUntil  time.Time
	noiseFrames    int
	coherentFrames int
	extensions     int
	rewardedFAs    int
}

func (ActiveSlot) isTrialSlot() {}

func (a *ActiveSlot) suppressed(t time.Time) bool {
	if a.suppressUntil.IsZero() {
		return false
	}
	return !t.Before(a.suppressFrom) && !t.After(a.suppressUntil)
}

// ResponseWindow is [Start, End]. The zero value means not yet set.
type ResponseWindow struct {
	Start time.Time
	End   time.Time
}

// IsSet reports whether Coherent has been entered for the current attempt.
func (w ResponseWindow) IsSet() bool {
	return !w.Start.IsZero()
}

// Contains reports whether t lies in the closed window.
func (w ResponseWindow) Contains(t time.Time) bool {
	return w.IsSet() && !t.Before(w.Start) && !t.After(w.End)
}

// Outcome is the final classification of a trial.
type Outcome string

const (
	OutcomeHit        Outcome = "hit"
	OutcomeMiss       Outcome = "miss"
	OutcomeFalseAlarm Outcome = "false_alarm"
)

// classified is the response that consumed the trial's first-response slot.
type classified struct {
	outcome Outcome
	at      time.Time
	rt      time.Duration
	hasRT   bool
	late    bool
	within  bool
}

// Result is produced once per trial and never modified.
type Result struct {
	Index           int
	Outcome         Outcome
	ReactionTime    time.Duration
	HasReactionTime bool
	// Late distinguishes a late false alarm from an early one.
	Late                bool
	WithinRTWindow      bool
	NoiseFrames         int
	CoherentFrames      int
	AutoRewarded        bool
	RewardedFalseAlarms int
	Extensions          int
	Aborted             bool
	Config              TrialConfig
	Start               time.Time
	End                 time.Time
}

// Frame is one logical stimulus frame handed to the display layer. Grid is
// owned by the receiver.
type Frame struct {
	Number     uint64
	Seed       uint64
	Time       time.Time
	Phase      Phase
	TrialIndex int
	StimulusOn bool
	Grid       compositor.Grid
}

// FrameHandler receives every frame the engine produces, including blank
// cue, fixation and inter-trial frames (empty Grid).
type FrameHandler func(Frame)

// ResultObserver is notified once per finalized trial.
type ResultObserver func(Result)

// Action describes what RegisterResponse did with a response.
type Action string

const (
	// ActionIgnored: no active trial, paused, already responded, or after finalization.
	ActionIgnored Action = "ignored"
	// ActionSuppressed: inside a reward-suppression window.
	ActionSuppressed Action = "suppressed"
	// ActionRecorded: a hit consumed the response slot.
	ActionRecorded Action = "recorded"
	// ActionRewarded: false alarm rewarded; the trial continues.
	ActionRewarded Action = "rewarded"
	// ActionExtended: pre-onset false alarm restarted the trial timing.
	ActionExtended Action = "extended"
	// ActionTerminated: post-onset false alarm ended the trial early.
	ActionTerminated Action = "terminated"
)

// ResponseOutcome is the result of RegisterResponse.
type ResponseOutcome struct {
	Action       Action
	Outcome      Outcome // empty when ignored or suppressed
	Late         bool
	ReactionTime time.Duration
	TrialIndex   int
}

// Snapshot is a copy of engine state for status reporting.
type Snapshot struct {
	Phase        Phase
	PhaseFrames  int
	PhaseStart   time.Time
	Slot         TrialSlot
	Window       ResponseWindow
	FrameNumber  uint64
	Completed    int
	Paused       bool
	Done         bool
	RealizedRate float64
}
