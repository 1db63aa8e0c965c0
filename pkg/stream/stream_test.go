package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXorShift32_KnownVectors(t *testing.T) {
	tests := []struct {
		seed uint32
		want []uint32
	}{
		{1, []uint32{270369, 67634689, 2647435461, 307599695, 2398689233}},
		{123456789, []uint32{2714967881, 2238813396, 1250077441, 3820100336, 3177519686}},
		{2463534242, []uint32{723471715, 2497366906, 2064144800, 2008045182, 3532304609}},
	}

	for _, tt := range tests {
		x := NewXorShift32(tt.seed)
		got := make([]uint32, len(tt.want))
		for i := range got {
			got[i] = x.Next()
		}
		assert.Equal(t, tt.want, got, "seed %d", tt.seed)
	}
}

func TestXorShift32_ZeroSeedFallback(t *testing.T) {
	zero := NewXorShift32(0)
	fallback := NewXorShift32(FallbackSeed)

	for i := 0; i < 1000; i++ {
		require.Equal(t, fallback.Next(), zero.Next(), "diverged at draw %d", i)
	}
}

func TestXorShift32_BoolIsTopBit(t *testing.T) {
	a := NewXorShift32(123456789)
	b := NewXorShift32(123456789)

	for i := 0; i < 256; i++ {
		v := a.Next()
		assert.Equal(t, v&0x8000_0000 != 0, b.Bool())
	}
}

func TestLCG64_KnownVectors(t *testing.T) {
	tests := []struct {
		seed uint64
		want []uint64
	}{
		{1, []uint64{7806831264735756412, 9396908728118811419, 11960119808228829710}},
		{42, []uint64{10481999410520546993, 4159066171780167020, 7615522811268512075}},
	}

	for _, tt := range tests {
		l := NewLCG64(tt.seed)
		got := make([]uint64, len(tt.want))
		for i := range got {
			got[i] = l.Next()
		}
		assert.Equal(t, tt.want, got, "seed %d", tt.seed)
	}
}

func TestLCG64_ZeroSeedFallback(t *testing.T) {
	zero := NewLCG64(0)
	fallback := NewLCG64(uint64(FallbackSeed))
	for i := 0; i < 100; i++ {
		require.Equal(t, fallback.Next(), zero.Next())
	}
}

func TestNew_SelectsAlgorithm(t *testing.T) {
	t.Run("xorshift32 truncates seed to 32 bits", func(t *testing.T) {
		s := New(AlgorithmXorShift32, 1<<32|1)
		assert.Equal(t, uint64(270369), s.Next64())
	})

	t.Run("lcg64 keeps full seed", func(t *testing.T) {
		s := New(AlgorithmLCG64, 42)
		assert.Equal(t, uint64(10481999410520546993), s.Next64())
	})

	t.Run("unknown algorithm falls back to xorshift32", func(t *testing.T) {
		s := New(Algorithm("mystery"), 1)
		assert.Equal(t, uint64(270369), s.Next64())
	})
}

func TestIntn_StaysInRange(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmXorShift32, AlgorithmLCG64} {
		s := New(alg, 99)
		for i := 0; i < 1000; i++ {
			n := s.Intn(7)
			require.GreaterOrEqual(t, n, 0)
			require.Less(t, n, 7)
		}
	}
}

func TestAlgorithm_Validate(t *testing.T) {
	assert.NoError(t, AlgorithmXorShift32.Validate())
	assert.NoError(t, AlgorithmLCG64.Validate())
	assert.Error(t, Algorithm("pcg").Validate())
}

func TestSeedSequence(t *testing.T) {
	t.Run("xorshift32 seeds are the high 32 bits of the lcg", func(t *testing.T) {
		seq := NewSeedSequence(1, AlgorithmXorShift32)
		assert.Equal(t, uint64(7806831264735756412>>32), seq.Next())
		assert.Equal(t, uint64(9396908728118811419>>32), seq.Next())
	})

	t.Run("lcg64 seeds are the raw lcg output", func(t *testing.T) {
		seq := NewSeedSequence(42, AlgorithmLCG64)
		assert.Equal(t, uint64(10481999410520546993), seq.Next())
	})

	t.Run("same session seed gives the same sequence", func(t *testing.T) {
		a := NewSeedSequence(777, AlgorithmXorShift32)
		b := NewSeedSequence(777, AlgorithmXorShift32)
		for i := 0; i < 50; i++ {
			require.Equal(t, a.Next(), b.Next())
		}
	})
}
