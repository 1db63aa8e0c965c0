package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/dyluth/glimpse/internal/compositor"
	"github.com/dyluth/glimpse/internal/trial"
	"github.com/dyluth/glimpse/pkg/stream"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override glimpse.yml.
const (
	EnvRedisURL   = "GLIMPSE_REDIS_URL"
	EnvSessionID  = "GLIMPSE_SESSION_ID"
	EnvStatusAddr = "GLIMPSE_STATUS_ADDR"
)

// Seconds is a duration written as a number of seconds in YAML.
type Seconds float64

// Duration converts to time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(math.Round(float64(s) * float64(time.Second)))
}

// GlimpseConfig represents the top-level glimpse.yml configuration
type GlimpseConfig struct {
	Version string        `yaml:"version"`
	Session SessionConfig `yaml:"session"`
	Display DisplayConfig `yaml:"display"`
	Grid    GridConfig    `yaml:"grid"`
	Timing  TimingConfig  `yaml:"timing"`
	Target  TargetConfig  `yaml:"target"`
	Reward  RewardConfig  `yaml:"reward"`
	Output  OutputConfig  `yaml:"output"`
}

// SessionConfig identifies the session and its randomness
type SessionConfig struct {
	ID        string           `yaml:"id,omitempty"`        // empty = generated at run time
	Subject   string           `yaml:"subject,omitempty"`   // free-form subject label
	Seed      uint64           `yaml:"seed,omitempty"`      // 0 = derived from the clock at run time
	Trials    int              `yaml:"trials,omitempty"`    // 0 = run until stopped
	Algorithm stream.Algorithm `yaml:"algorithm,omitempty"` // frame stream, default xorshift32
}

// DisplayConfig sets the stimulus rate and the refresh source
type DisplayConfig struct {
	StimulusHz float64 `yaml:"stimulus_hz,omitempty"` // default 30
	RefreshHz  float64 `yaml:"refresh_hz,omitempty"`  // software display nominal rate, default 60
	FallbackHz float64 `yaml:"fallback_hz,omitempty"` // used when detection fails, default 60
}

// GridConfig sets the tile grid dimensions
type GridConfig struct {
	Rows *int `yaml:"rows,omitempty"` // default 32
	Cols *int `yaml:"cols,omitempty"` // default 32
}

// TimingConfig holds every phase duration in seconds
type TimingConfig struct {
	Cue        *Seconds `yaml:"cue,omitempty"`         // default 1.0
	Fixation   *Seconds `yaml:"fixation,omitempty"`    // default 0.5
	InterTrial *Seconds `yaml:"inter_trial,omitempty"` // default 1.0
	MinOnset   *Seconds `yaml:"min_onset,omitempty"`   // default 2.0
	MaxOnset   *Seconds `yaml:"max_onset,omitempty"`   // default 6.0
	Stimulus   *Seconds `yaml:"stimulus,omitempty"`    // default 2.0
	RTDelay    *Seconds `yaml:"rt_delay,omitempty"`    // default 0.3
	RTLength   *Seconds `yaml:"rt_length,omitempty"`   // default = stimulus
}

// TargetConfig controls the coherent overlay
type TargetConfig struct {
	CoherenceLevels []float64              `yaml:"coherence_levels,omitempty"` // one is drawn per trial
	Intensity       *float64               `yaml:"intensity,omitempty"`        // session-level, default 1.0
	Quadrants       []compositor.Quadrant  `yaml:"quadrants,omitempty"`        // one is drawn per trial
	Mask            *compositor.MaskParams `yaml:"mask,omitempty"`
}

// RewardConfig controls the false-alarm and miss reward policy
type RewardConfig struct {
	FalseAlarmProbability float64  `yaml:"false_alarm_probability,omitempty"`
	AutoProbability       float64  `yaml:"auto_probability,omitempty"`
	Suppression           *Seconds `yaml:"suppression,omitempty"` // default 1.0
}

// OutputConfig selects the event sinks and the status server
type OutputConfig struct {
	CSV        string `yaml:"csv,omitempty"`
	XLSX       string `yaml:"xlsx,omitempty"`
	RedisURL   string `yaml:"redis_url,omitempty"`
	StatusAddr string `yaml:"status_addr,omitempty"`
}

// Validate applies defaults, clamps out-of-range probabilities and
// intensities with a warning, and rejects values no session can run with.
func (c *GlimpseConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Session.Trials < 0 {
		return fmt.Errorf("session.trials must be >= 0 (0 = until stopped), got %d", c.Session.Trials)
	}
	if c.Session.Algorithm == "" {
		c.Session.Algorithm = stream.AlgorithmXorShift32
	}
	if err := c.Session.Algorithm.Validate(); err != nil {
		return fmt.Errorf("session.algorithm: %w", err)
	}

	if err := c.Display.validate(); err != nil {
		return err
	}
	if err := c.Grid.validate(); err != nil {
		return err
	}
	if err := c.Timing.validate(); err != nil {
		return err
	}
	if err := c.Target.validate(); err != nil {
		return err
	}
	return c.Reward.validate()
}

func (d *DisplayConfig) validate() error {
	defaults := []struct {
		name  string
		value *float64
	}{
		{"display.stimulus_hz", &d.StimulusHz},
		{"display.refresh_hz", &d.RefreshHz},
		{"display.fallback_hz", &d.FallbackHz},
	}
	for _, f := range defaults {
		if *f.value < 0 || math.IsNaN(*f.value) {
			return fmt.Errorf("%s must be positive, got %v", f.name, *f.value)
		}
	}

	if d.StimulusHz == 0 {
		d.StimulusHz = 30
	}
	if d.RefreshHz == 0 {
		d.RefreshHz = 60
	}
	if d.FallbackHz == 0 {
		d.FallbackHz = 60
	}
	return nil
}

func (g *GridConfig) validate() error {
	if g.Rows == nil {
		rows := 32
		g.Rows = &rows
	}
	if g.Cols == nil {
		cols := 32
		g.Cols = &cols
	}
	if *g.Rows <= 0 || *g.Cols <= 0 {
		return fmt.Errorf("grid dimensions must be positive, got %dx%d", *g.Rows, *g.Cols)
	}
	return nil
}

func (t *TimingConfig) validate() error {
	defaults := []struct {
		name  string
		field **Seconds
		def   Seconds
	}{
		{"timing.cue", &t.Cue, 1.0},
		{"timing.fixation", &t.Fixation, 0.5},
		{"timing.inter_trial", &t.InterTrial, 1.0},
		{"timing.min_onset", &t.MinOnset, 2.0},
		{"timing.max_onset", &t.MaxOnset, 6.0},
		{"timing.stimulus", &t.Stimulus, 2.0},
		{"timing.rt_delay", &t.RTDelay, 0.3},
	}
	for _, f := range defaults {
		if *f.field == nil {
			v := f.def
			*f.field = &v
		}
		if **f.field < 0 || math.IsNaN(float64(**f.field)) {
			return fmt.Errorf("%s must not be negative, got %v", f.name, **f.field)
		}
	}

	if *t.Stimulus == 0 {
		return fmt.Errorf("timing.stimulus must be positive")
	}
	if *t.MinOnset > *t.MaxOnset {
		return fmt.Errorf("timing.min_onset (%v) exceeds timing.max_onset (%v)", *t.MinOnset, *t.MaxOnset)
	}

	if t.RTLength == nil {
		v := *t.Stimulus
		t.RTLength = &v
	}
	if *t.RTLength < 0 {
		return fmt.Errorf("timing.rt_length must not be negative, got %v", *t.RTLength)
	}
	return nil
}

func (t *TargetConfig) validate() error {
	if len(t.CoherenceLevels) == 0 {
		t.CoherenceLevels = []float64{0.2, 0.4, 0.6, 0.8}
	}
	for i, level := range t.CoherenceLevels {
		t.CoherenceLevels[i] = clampUnit(fmt.Sprintf("target.coherence_levels[%d]", i), level)
	}

	if t.Intensity == nil {
		v := 1.0
		t.Intensity = &v
	}
	*t.Intensity = clampUnit("target.intensity", *t.Intensity)

	if len(t.Quadrants) == 0 {
		t.Quadrants = append([]compositor.Quadrant(nil), compositor.AllQuadrants...)
	}
	for _, q := range t.Quadrants {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("target.quadrants: %w", err)
		}
	}

	if t.Mask == nil {
		m := compositor.DefaultMaskParams()
		t.Mask = &m
	}
	if t.Mask.Sigma <= 0 || t.Mask.Aspect <= 0 || t.Mask.Spacing < 0 {
		return fmt.Errorf("target.mask: sigma and aspect must be positive and spacing non-negative")
	}
	return nil
}

func (r *RewardConfig) validate() error {
	r.FalseAlarmProbability = clampUnit("reward.false_alarm_probability", r.FalseAlarmProbability)
	r.AutoProbability = clampUnit("reward.auto_probability", r.AutoProbability)

	if r.Suppression == nil {
		v := Seconds(1.0)
		r.Suppression = &v
	}
	if *r.Suppression < 0 {
		return fmt.Errorf("reward.suppression must not be negative, got %v", *r.Suppression)
	}
	return nil
}

// clampUnit clamps v to [0,1], logging a warning when it changes.
func clampUnit(name string, v float64) float64 {
	clamped := v
	switch {
	case math.IsNaN(v):
		clamped = 0
	case v < 0:
		clamped = 0
	case v > 1:
		clamped = 1
	}
	if clamped != v || math.IsNaN(v) {
		log.Printf("[Config] Warning: %s=%v out of range [0,1], clamped to %v", name, v, clamped)
	}
	return clamped
}

// Settings converts the validated configuration to trial settings.
// Validate must have been called.
func (c *GlimpseConfig) Settings() trial.Settings {
	t := c.Timing
	return trial.Settings{
		Dims:                        compositor.Dims{Rows: *c.Grid.Rows, Cols: *c.Grid.Cols},
		CueDuration:                 t.Cue.Duration(),
		FixationDuration:            t.Fixation.Duration(),
		InterTrialInterval:          t.InterTrial.Duration(),
		MinOnset:                    t.MinOnset.Duration(),
		MaxOnset:                    t.MaxOnset.Duration(),
		StimulusDuration:            t.Stimulus.Duration(),
		RTDelay:                     t.RTDelay.Duration(),
		RTLength:                    t.RTLength.Duration(),
		CoherenceLevels:             append([]float64(nil), c.Target.CoherenceLevels...),
		TargetIntensity:             *c.Target.Intensity,
		Quadrants:                   append([]compositor.Quadrant(nil), c.Target.Quadrants...),
		FalseAlarmRewardProbability: c.Reward.FalseAlarmProbability,
		AutoRewardProbability:       c.Reward.AutoProbability,
		SuppressionDuration:         c.Reward.Suppression.Duration(),
		MaxTrials:                   c.Session.Trials,
	}
}

// Default returns a validated configuration with every default applied.
func Default() *GlimpseConfig {
	cfg := &GlimpseConfig{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Load reads and validates glimpse.yml from the specified path
func Load(path string) (*GlimpseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config GlimpseConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyEnv loads envFile (if it exists) and applies GLIMPSE_* overrides.
// A missing envFile is not an error.
func (c *GlimpseConfig) ApplyEnv(envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Output.RedisURL = v
	}
	if v := os.Getenv(EnvSessionID); v != "" {
		c.Session.ID = v
	}
	if v := os.Getenv(EnvStatusAddr); v != "" {
		c.Output.StatusAddr = v
	}
	return nil
}
