package trial

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler supplies the engine's experiment-level randomness: onset draws,
// reward draws, and per-trial coherence and quadrant choice. Frame patterns
// never use it; they come from seeded streams.
type Sampler interface {
	// Float64 returns a draw from Uniform(0,1).
	Float64() float64
	// IntN returns a draw from [0,n).
	IntN(n int) int
}

// pcgSampler draws from a PCG source so a session seed reproduces the whole
// trial sequence.
type pcgSampler struct {
	uniform distuv.Uniform
	rng     *rand.Rand
}

// NewSampler creates a reproducible sampler for a session seed.
func NewSampler(seed uint64) Sampler {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &pcgSampler{
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
		rng:     rand.New(src),
	}
}

func (s *pcgSampler) Float64() float64 {
	return s.uniform.Rand()
}

func (s *pcgSampler) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	return s.rng.IntN(n)
}
