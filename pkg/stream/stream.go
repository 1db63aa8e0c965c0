package stream

import "fmt"

// FallbackSeed replaces a zero seed. XorShift32 has an all-zero fixed point,
// so zero can never be used as a state.
const FallbackSeed uint32 = 2463534242

const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
)

// Stream is the common surface of both generators.
type Stream interface {
	// Next64 advances the generator and returns the output widened to 64 bits.
	Next64() uint64
	// Bool advances the generator and returns the top bit of the output.
	Bool() bool
	// Intn advances the generator and returns output mod n on the native width.
	// n must be > 0.
	Intn(n int) int
}

// Algorithm selects a generator.
type Algorithm string

const (
	// AlgorithmXorShift32 is the 32-bit generator replayed by offline tools.
	AlgorithmXorShift32 Algorithm = "xorshift32"

	// AlgorithmLCG64 is the 64-bit linear-congruential live generator.
	AlgorithmLCG64 Algorithm = "lcg64"
)

// Validate checks if the Algorithm is a known value.
func (a Algorithm) Validate() error {
	switch a {
	case AlgorithmXorShift32, AlgorithmLCG64:
		return nil
	default:
		return fmt.Errorf("unknown stream algorithm: %q", a)
	}
}

// New returns a generator for alg keyed by seed. XorShift32 uses the low 32
// bits of seed. Unknown algorithms fall back to XorShift32.
func New(alg Algorithm, seed uint64) Stream {
	if alg == AlgorithmLCG64 {
		return NewLCG64(seed)
	}
	return NewXorShift32(uint32(seed))
}

// XorShift32 is Marsaglia's 13/17/5 xorshift generator.
type XorShift32 struct {
	state uint32
}

// NewXorShift32 seeds a generator. A zero seed becomes FallbackSeed.
func NewXorShift32(seed uint32) *XorShift32 {
	if seed == 0 {
		seed = FallbackSeed
	}
	return &XorShift32{state: seed}
}

// Next advances the state and returns it.
func (x *XorShift32) Next() uint32 {
	s := x.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	x.state = s
	return s
}

// Next64 implements Stream.
func (x *XorShift32) Next64() uint64 {
	return uint64(x.Next())
}

// Bool implements Stream.
func (x *XorShift32) Bool() bool {
	return x.Next()&0x8000_0000 != 0
}

// Intn implements Stream.
func (x *XorShift32) Intn(n int) int {
	return int(x.Next() % uint32(n))
}

// LCG64 is a 64-bit linear-congruential generator (Knuth MMIX constants).
type LCG64 struct {
	state uint64
}

// NewLCG64 seeds a generator. A zero seed becomes FallbackSeed.
func NewLCG64(seed uint64) *LCG64 {
	if seed == 0 {
		seed = uint64(FallbackSeed)
	}
	return &LCG64{state: seed}
}

// Next advances the state and returns it.
func (l *LCG64) Next() uint64 {
	l.state = l.state*lcgMultiplier + lcgIncrement
	return l.state
}

// Next64 implements Stream.
func (l *LCG64) Next64() uint64 {
	return l.Next()
}

// Bool implements Stream.
func (l *LCG64) Bool() bool {
	return l.Next()&0x8000_0000_0000_0000 != 0
}

// Intn implements Stream.
func (l *LCG64) Intn(n int) int {
	return int(l.Next() % uint64(n))
}

// SeedSequence hands out per-frame seeds from a session seed. It runs LCG64
// and keeps the high 32 bits, which are the best-mixed bits of an LCG.
type SeedSequence struct {
	lcg *LCG64
	alg Algorithm
}

// NewSeedSequence creates a frame seed source for alg.
func NewSeedSequence(sessionSeed uint64, alg Algorithm) *SeedSequence {
	return &SeedSequence{lcg: NewLCG64(sessionSeed), alg: alg}
}

// Next returns the next frame seed. For XorShift32 the value always fits in
// 32 bits so it can be replayed by NewXorShift32 unchanged.
func (s *SeedSequence) Next() uint64 {
	v := s.lcg.Next()
	if s.alg == AlgorithmLCG64 {
		return v
	}
	return v >> 32
}
