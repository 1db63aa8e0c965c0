package trial

import (
	"math"
	"time"
)

// OnsetTailProbability is the share of the unclamped exponential that lies
// beyond the max onset. Those draws are clamped to max.
const OnsetTailProbability = 0.05

// minUniform keeps -ln(u) finite.
const minUniform = 1e-12

// SampleOnsetSeconds maps a uniform draw u in (0,1) to a shifted, truncated
// exponential onset: mean = (max-min) / -ln(0.05), onset = min + -ln(u)*mean,
// clamped to max.
func SampleOnsetSeconds(min, max, u float64) float64 {
	if max <= min {
		return min
	}
	if u < minUniform || math.IsNaN(u) {
		u = minUniform
	}
	if u > 1 {
		u = 1
	}

	mean := (max - min) / -math.Log(OnsetTailProbability)
	onset := min + -math.Log(u)*mean
	if onset > max {
		return max
	}
	return onset
}

// SampleOnset is SampleOnsetSeconds on durations.
func SampleOnset(min, max time.Duration, u float64) time.Duration {
	s := SampleOnsetSeconds(min.Seconds(), max.Seconds(), u)
	if s >= max.Seconds() {
		return max
	}
	return time.Duration(math.Round(s * float64(time.Second)))
}
