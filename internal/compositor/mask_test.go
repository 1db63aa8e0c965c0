package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMask_QuadrantPlacement(t *testing.T) {
	dims := Dims{Rows: 40, Cols: 60}

	tests := []struct {
		quadrant  Quadrant
		left, top bool
	}{
		{QuadrantTopLeft, true, true},
		{QuadrantTopRight, false, true},
		{QuadrantBottomLeft, true, false},
		{QuadrantBottomRight, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.quadrant), func(t *testing.T) {
			m := ComputeMask(dims, tt.quadrant, DefaultMaskParams())

			var sumW, sumX, sumY float64
			for r := 0; r < dims.Rows; r++ {
				for c := 0; c < dims.Cols; c++ {
					w := m.Weights[r*dims.Cols+c]
					require.GreaterOrEqual(t, w, 0.0)
					require.LessOrEqual(t, w, 1.0)
					sumW += w
					sumX += w * float64(c)
					sumY += w * float64(r)
				}
			}
			require.Greater(t, sumW, 0.0)

			cx, cy := sumX/sumW, sumY/sumW
			assert.Equal(t, tt.left, cx < float64(dims.Cols)/2, "centroid x=%.2f", cx)
			assert.Equal(t, tt.top, cy < float64(dims.Rows)/2, "centroid y=%.2f", cy)
		})
	}
}

func TestComputeMask_PeakAtQuadrantCentre(t *testing.T) {
	dims := Dims{Rows: 40, Cols: 40}
	m := ComputeMask(dims, QuadrantTopLeft, DefaultMaskParams())

	// Quadrant centre (10,10) falls on the corner shared by tiles 9 and 10.
	peak := m.Weights[9*dims.Cols+9]
	assert.InDelta(t, 1.0, peak, 0.05)

	far := m.Weights[39*dims.Cols+39]
	assert.Zero(t, far)
	assert.False(t, m.Eligible(39*dims.Cols+39))
}

func TestComputeMask_EligibleIndicesAreRowMajor(t *testing.T) {
	m := ComputeMask(Dims{Rows: 30, Cols: 30}, QuadrantCenter, DefaultMaskParams())
	idx := m.EligibleIndices()
	require.NotEmpty(t, idx)
	for i := 1; i < len(idx); i++ {
		assert.Less(t, idx[i-1], idx[i])
	}
	for _, i := range idx {
		assert.Greater(t, m.Weights[i], MaskEpsilon)
	}
}

func TestComputeMask_Degenerate(t *testing.T) {
	t.Run("zero size grid", func(t *testing.T) {
		m := ComputeMask(Dims{}, QuadrantCenter, DefaultMaskParams())
		assert.Empty(t, m.Weights)
		assert.Empty(t, m.EligibleIndices())
	})

	t.Run("zero sigma yields no eligible tiles", func(t *testing.T) {
		params := DefaultMaskParams()
		params.Sigma = 0
		m := ComputeMask(Dims{Rows: 10, Cols: 10}, QuadrantCenter, params)
		assert.Empty(t, m.EligibleIndices())
	})
}

func TestQuadrant_Validate(t *testing.T) {
	for _, q := range append(AllQuadrants, QuadrantCenter) {
		assert.NoError(t, q.Validate())
	}
	assert.Error(t, Quadrant("middle_earth").Validate())
}
