package trial

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleOnsetSeconds_Distribution(t *testing.T) {
	const draws = 100000
	sampler := NewSampler(42)

	var belowMax int
	for i := 0; i < draws; i++ {
		onset := SampleOnsetSeconds(2.0, 6.0, sampler.Float64())
		if onset < 2.0 || onset > 6.0 {
			t.Fatalf("draw %d out of bounds: %v", i, onset)
		}
		if onset < 6.0 {
			belowMax++
		}
	}

	fraction := float64(belowMax) / draws
	assert.GreaterOrEqual(t, fraction, 0.94)
	assert.LessOrEqual(t, fraction, 0.97)
}

func TestSampleOnsetSeconds_EdgeDraws(t *testing.T) {
	assert.Equal(t, 6.0, SampleOnsetSeconds(2, 6, 0), "u=0 is clamped and lands on max")
	assert.Equal(t, 2.0, SampleOnsetSeconds(2, 6, 1), "u=1 gives min")
	assert.Equal(t, 6.0, SampleOnsetSeconds(2, 6, math.NaN()))

	// u just above the tail probability stays below max
	assert.Less(t, SampleOnsetSeconds(2, 6, OnsetTailProbability+1e-9), 6.0)
	assert.Equal(t, 6.0, SampleOnsetSeconds(2, 6, OnsetTailProbability-1e-9))
}

func TestSampleOnsetSeconds_Degenerate(t *testing.T) {
	assert.Equal(t, 1.0, SampleOnsetSeconds(1, 1, 0.5))
	assert.Equal(t, 3.0, SampleOnsetSeconds(3, 2, 0.5), "inverted bounds return min")
}

func TestSampleOnset_Durations(t *testing.T) {
	assert.Equal(t, time.Second, SampleOnset(time.Second, time.Second, 0.3))
	assert.Equal(t, 6*time.Second, SampleOnset(2*time.Second, 6*time.Second, 0.001))

	d := SampleOnset(2*time.Second, 6*time.Second, 0.5)
	assert.Greater(t, d, 2*time.Second)
	assert.Less(t, d, 6*time.Second)
}

func TestNewSampler_Reproducible(t *testing.T) {
	a, b := NewSampler(7), NewSampler(7)
	for i := 0; i < 100; i++ {
		fa, fb := a.Float64(), b.Float64()
		assert.Equal(t, fa, fb)
		assert.GreaterOrEqual(t, fa, 0.0)
		assert.Less(t, fa, 1.0)
		assert.Equal(t, a.IntN(5), b.IntN(5))
	}
	assert.Zero(t, a.IntN(1))
}

func TestClassify_Boundaries(t *testing.T) {
	T := time.Unix(1000, 0)
	rtDelay := 300 * time.Millisecond
	stim := 2 * time.Second

	tests := []struct {
		name    string
		at      time.Duration
		outcome Outcome
		late    bool
	}{
		{"inclusive lower bound", 300 * time.Millisecond, OutcomeHit, false},
		{"inclusive upper bound", 2300 * time.Millisecond, OutcomeHit, false},
		{"just early", 290 * time.Millisecond, OutcomeFalseAlarm, false},
		{"just late", 2310 * time.Millisecond, OutcomeFalseAlarm, true},
		{"mid window", time.Second, OutcomeHit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, late := Classify(T.Add(tt.at), T, rtDelay, stim)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.late, late)
		})
	}

	t.Run("before coherent is an early false alarm", func(t *testing.T) {
		outcome, late := Classify(T, time.Time{}, rtDelay, stim)
		assert.Equal(t, OutcomeFalseAlarm, outcome)
		assert.False(t, late)
	})
}

func TestFramesFor(t *testing.T) {
	assert.Equal(t, 30, FramesFor(time.Second, 30))
	assert.Equal(t, 29, FramesFor(time.Second, 28.8))
	assert.Equal(t, 0, FramesFor(0, 60))
	assert.Equal(t, 0, FramesFor(time.Second, 0))
	assert.Equal(t, 15, FramesFor(500*time.Millisecond, 30))
}

func TestPhase_Validate(t *testing.T) {
	for _, p := range []Phase{PhaseIdle, PhaseCue, PhaseFixation, PhaseNoise, PhaseCoherent, PhaseInterTrial} {
		assert.NoError(t, p.Validate())
	}
	assert.Error(t, Phase("warmup").Validate())
	assert.True(t, PhaseNoise.Stimulus())
	assert.False(t, PhaseInterTrial.Stimulus())
}
