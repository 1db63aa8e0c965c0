// Package compositor builds stimulus frames: a balanced binary noise pattern
// drawn from a seeded stream, optionally overlaid with a target region.
//
// Steps 1-3 of Generate (fill, balance) are replayed offline from the logged
// seed and must not change. The overlay (step 4) continues the same stream, so
// rebuilding it also needs the trial's target parameters and mask.
package compositor

import (
	"math"

	"github.com/dyluth/glimpse/pkg/stream"
)

// TargetParams request a target overlay on a frame.
type TargetParams struct {
	Quadrant  Quadrant
	Coherence float64 // signal strength in [0,1]
	Intensity float64 // target-region intensity fraction in [0,1]
}

// Fraction returns the share of eligible tiles to activate.
func (p TargetParams) Fraction() float64 {
	return clamp01(p.Coherence) * clamp01(p.Intensity)
}

// Compositor generates frames. It caches the target mask between frames and
// must only be used from one goroutine.
type Compositor struct {
	alg    stream.Algorithm
	params MaskParams
	mask   *Mask
}

// New creates a compositor drawing from alg.
func New(alg stream.Algorithm, params MaskParams) *Compositor {
	return &Compositor{alg: alg, params: params}
}

// Algorithm returns the stream algorithm frames are drawn from.
func (c *Compositor) Algorithm() stream.Algorithm {
	return c.alg
}

// Mask returns the target mask for dims and quadrant, recomputing it only
// when either differs from the cached one.
func (c *Compositor) Mask(dims Dims, quadrant Quadrant) *Mask {
	if c.mask == nil || c.mask.Dims != dims || c.mask.Quadrant != quadrant {
		c.mask = ComputeMask(dims, quadrant, c.params)
	}
	return c.mask
}

// Generate composes one frame from seed. A nil target yields a noise-only
// frame. A zero-size grid yields an empty Grid.
func (c *Compositor) Generate(seed uint64, dims Dims, target *TargetParams) Grid {
	if dims.Size() == 0 {
		return Grid{Dims: dims}
	}

	s := stream.New(c.alg, seed)
	grid := fillBalanced(s, dims)

	if target != nil {
		mask := c.Mask(dims, target.Quadrant)
		eligible := mask.EligibleIndices()
		grid.Eligible = len(eligible)
		n := int(math.Round(float64(len(eligible)) * target.Fraction()))
		for _, i := range pickSubset(s, eligible, n) {
			grid.Tiles[i] = TileTarget
		}
	}

	return grid
}

// Background reproduces the balanced noise pattern for seed without any
// overlay. This is the offline reconstruction entry point.
func Background(alg stream.Algorithm, seed uint64, dims Dims) Grid {
	if dims.Size() == 0 {
		return Grid{Dims: dims}
	}
	return fillBalanced(stream.New(alg, seed), dims)
}

// fillBalanced fills tiles row-major from s and flips a random minimal subset
// of the majority state so the two background counts differ by at most one.
func fillBalanced(s stream.Stream, dims Dims) Grid {
	n := dims.Size()
	tiles := make([]Tile, n)
	light := 0
	for i := range tiles {
		if s.Bool() {
			tiles[i] = TileLight
			light++
		}
	}

	dark := n - light
	diff := light - dark
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		majority, minority := TileLight, TileDark
		if dark > light {
			majority, minority = TileDark, TileLight
		}
		var idx []int
		for i, t := range tiles {
			if t == majority {
				idx = append(idx, i)
			}
		}
		for _, i := range pickSubset(s, idx, diff/2) {
			tiles[i] = minority
		}
	}

	return Grid{Dims: dims, Tiles: tiles}
}

// pickSubset runs k steps of a Fisher-Yates shuffle over idx (in place) and
// returns the first k entries. Each step draws j = i + Intn(len-i).
func pickSubset(s stream.Stream, idx []int, k int) []int {
	if k > len(idx) {
		k = len(idx)
	}
	for i := 0; i < k; i++ {
		j := i + s.Intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
