package trial

import (
	"fmt"
	"math"
	"time"

	"github.com/dyluth/glimpse/internal/compositor"
)

// Settings is the immutable experiment configuration a trial is created
// from. Each TrialConfig carries its own copy.
type Settings struct {
	Dims compositor.Dims

	CueDuration        time.Duration
	FixationDuration   time.Duration
	InterTrialInterval time.Duration

	MinOnset         time.Duration
	MaxOnset         time.Duration
	StimulusDuration time.Duration

	// RTDelay shifts the response window after Coherent entry.
	// RTLength is the window length used for the withinRTWindow column.
	RTDelay  time.Duration
	RTLength time.Duration

	CoherenceLevels []float64
	TargetIntensity float64
	Quadrants       []compositor.Quadrant

	FalseAlarmRewardProbability float64
	AutoRewardProbability       float64
	SuppressionDuration         time.Duration

	// MaxTrials ends the session after this many results; 0 runs until stopped.
	MaxTrials int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Dims:                compositor.Dims{Rows: 32, Cols: 32},
		CueDuration:         time.Second,
		FixationDuration:    500 * time.Millisecond,
		InterTrialInterval:  time.Second,
		MinOnset:            2 * time.Second,
		MaxOnset:            6 * time.Second,
		StimulusDuration:    2 * time.Second,
		RTDelay:             300 * time.Millisecond,
		RTLength:            2 * time.Second,
		CoherenceLevels:     []float64{0.2, 0.4, 0.6, 0.8},
		TargetIntensity:     1,
		Quadrants:           append([]compositor.Quadrant(nil), compositor.AllQuadrants...),
		SuppressionDuration: time.Second,
	}
}

// Validate rejects settings the engine cannot run with. Range clamping is
// done at configuration load time.
func (s Settings) Validate() error {
	if s.Dims.Rows <= 0 || s.Dims.Cols <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", s.Dims.Rows, s.Dims.Cols)
	}

	durations := map[string]time.Duration{
		"cue duration":         s.CueDuration,
		"fixation duration":    s.FixationDuration,
		"inter-trial interval": s.InterTrialInterval,
		"min onset":            s.MinOnset,
		"max onset":            s.MaxOnset,
		"rt delay":             s.RTDelay,
		"rt length":            s.RTLength,
		"suppression duration": s.SuppressionDuration,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, d)
		}
	}

	if s.StimulusDuration <= 0 {
		return fmt.Errorf("stimulus duration must be positive, got %v", s.StimulusDuration)
	}
	if s.MinOnset > s.MaxOnset {
		return fmt.Errorf("min onset %v exceeds max onset %v", s.MinOnset, s.MaxOnset)
	}
	if len(s.CoherenceLevels) == 0 {
		return fmt.Errorf("at least one coherence level is required")
	}
	if len(s.Quadrants) == 0 {
		return fmt.Errorf("at least one quadrant is required")
	}
	for _, q := range s.Quadrants {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	if s.MaxTrials < 0 {
		return fmt.Errorf("max trials must not be negative, got %d", s.MaxTrials)
	}

	return nil
}

// clone deep-copies the slices so snapshots never alias.
func (s Settings) clone() Settings {
	s.CoherenceLevels = append([]float64(nil), s.CoherenceLevels...)
	s.Quadrants = append([]compositor.Quadrant(nil), s.Quadrants...)
	return s
}

// FramesFor converts a duration to a whole number of frames at the realized
// stimulus rate.
func FramesFor(d time.Duration, realizedRate float64) int {
	if d <= 0 || realizedRate <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * realizedRate))
}
