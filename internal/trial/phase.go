package trial

import "fmt"

// Phase is the current stage of the trial state machine.
type Phase string

const (
	// PhaseIdle is the state before the first trial. It is never re-entered.
	PhaseIdle Phase = "idle"

	// PhaseCue shows the session-start cue.
	PhaseCue Phase = "cue"

	// PhaseFixation shows the fixation screen after the cue.
	PhaseFixation Phase = "fixation"

	// PhaseNoise shows background noise until the sampled onset.
	PhaseNoise Phase = "noise"

	// PhaseCoherent overlays the target for the stimulus duration.
	PhaseCoherent Phase = "coherent"

	// PhaseInterTrial separates trials and finalizes the previous one.
	PhaseInterTrial Phase = "inter_trial"
)

// Validate checks if the phase is one of the defined values.
func (p Phase) Validate() error {
	switch p {
	case PhaseIdle, PhaseCue, PhaseFixation, PhaseNoise, PhaseCoherent, PhaseInterTrial:
		return nil
	default:
		return fmt.Errorf("invalid phase: %q", p)
	}
}

// Stimulus reports whether frames in this phase carry a generated pattern.
func (p Phase) Stimulus() bool {
	return p == PhaseNoise || p == PhaseCoherent
}
