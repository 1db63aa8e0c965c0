package compositor

import (
	"fmt"
	"math"
)

// MaskEpsilon is the weight at or below which a tile cannot carry the target.
const MaskEpsilon = 0.01

// anchorOffsets place the sub-region anchors along the orientation axis.
var anchorOffsets = []float64{-1, 0, 1}

// Quadrant positions the target region on the grid.
type Quadrant string

const (
	QuadrantTopLeft     Quadrant = "top_left"
	QuadrantTopRight    Quadrant = "top_right"
	QuadrantBottomLeft  Quadrant = "bottom_left"
	QuadrantBottomRight Quadrant = "bottom_right"
	QuadrantCenter      Quadrant = "center"
)

// AllQuadrants lists the four corner quadrants in a fixed order.
var AllQuadrants = []Quadrant{
	QuadrantTopLeft, QuadrantTopRight, QuadrantBottomLeft, QuadrantBottomRight,
}

// Validate checks if the Quadrant is a known value.
func (q Quadrant) Validate() error {
	switch q {
	case QuadrantTopLeft, QuadrantTopRight, QuadrantBottomLeft, QuadrantBottomRight, QuadrantCenter:
		return nil
	default:
		return fmt.Errorf("unknown quadrant: %q", q)
	}
}

// center returns the quadrant centre in tile coordinates.
func (q Quadrant) center(d Dims) (x, y float64) {
	fx, fy := 0.5, 0.5
	switch q {
	case QuadrantTopLeft:
		fx, fy = 0.25, 0.25
	case QuadrantTopRight:
		fx, fy = 0.75, 0.25
	case QuadrantBottomLeft:
		fx, fy = 0.25, 0.75
	case QuadrantBottomRight:
		fx, fy = 0.75, 0.75
	}
	return fx * float64(d.Cols), fy * float64(d.Rows)
}

// MaskParams shape the Gaussian envelope. Lengths are fractions of the
// smaller grid dimension.
type MaskParams struct {
	Sigma   float64 `yaml:"sigma"`   // across-axis standard deviation
	Aspect  float64 `yaml:"aspect"`  // along/across sigma ratio
	Angle   float64 `yaml:"angle"`   // orientation in radians
	Spacing float64 `yaml:"spacing"` // distance between adjacent anchors
}

// DefaultMaskParams returns the envelope used when none is configured.
func DefaultMaskParams() MaskParams {
	return MaskParams{
		Sigma:   0.08,
		Aspect:  1.5,
		Angle:   math.Pi / 4,
		Spacing: 0.1,
	}
}

// Mask holds per-tile target weights in [0,1], row-major.
type Mask struct {
	Dims     Dims
	Quadrant Quadrant
	Weights  []float64
}

// Eligible reports whether tile i may carry the target.
func (m *Mask) Eligible(i int) bool {
	return m.Weights[i] > MaskEpsilon
}

// EligibleIndices returns the eligible tiles in row-major order.
func (m *Mask) EligibleIndices() []int {
	var idx []int
	for i := range m.Weights {
		if m.Eligible(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// ComputeMask builds the target mask for dims and quadrant. Each anchor
// contributes a rotated Gaussian truncated to a rectangle of two sigmas in
// each rotated axis; a tile takes the maximum over anchors.
func ComputeMask(dims Dims, quadrant Quadrant, params MaskParams) *Mask {
	m := &Mask{Dims: dims, Quadrant: quadrant, Weights: make([]float64, dims.Size())}
	if dims.Size() == 0 {
		return m
	}

	minDim := float64(min(dims.Rows, dims.Cols))
	sAcross := params.Sigma * minDim
	sAlong := sAcross * params.Aspect
	if sAcross <= 0 || sAlong <= 0 {
		return m
	}
	cos, sin := math.Cos(params.Angle), math.Sin(params.Angle)
	cx, cy := quadrant.center(dims)
	step := params.Spacing * minDim

	for _, k := range anchorOffsets {
		ax := cx + k*step*cos
		ay := cy + k*step*sin
		for r := 0; r < dims.Rows; r++ {
			for c := 0; c < dims.Cols; c++ {
				dx := float64(c) + 0.5 - ax
				dy := float64(r) + 0.5 - ay
				u := dx*cos + dy*sin
				v := -dx*sin + dy*cos
				if math.Abs(u) > 2*sAlong || math.Abs(v) > 2*sAcross {
					continue
				}
				w := math.Exp(-(u*u/(2*sAlong*sAlong) + v*v/(2*sAcross*sAcross)))
				i := r*dims.Cols + c
				if w > m.Weights[i] {
					m.Weights[i] = w
				}
			}
		}
	}

	return m
}
