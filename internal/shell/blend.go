package shell

import (
	"math"

	"github.com/golang/geo/r3"
)

// Blender assigns per-control-point weights for queries. Weights written to
// w are non-negative and sum to 1; len(w) == len(cps).
type Blender interface {
	// PointWeights weights control points for the world point p.
	PointWeights(cps []ControlPoint, p r3.Vector, w []float64)
	// ArcWeights weights control points for the arc length s.
	ArcWeights(cps []ControlPoint, s float64, w []float64)
}

// NewBlender returns the Blender for policy. Unknown policies get the
// Gaussian blender.
func NewBlender(policy BlendPolicy) Blender {
	if policy == BlendNearestSegment {
		return NearestSegmentBlender{}
	}
	return GaussianBlender{}
}

// GaussianBlender weights control point i by exp(-0.5·(a/(Lᵢ/2))²), where a
// is the axial distance of the query from control point i and Lᵢ its
// segment length. The exponents are normalized against their maximum, so
// queries far from the axis still get a well-defined blend.
type GaussianBlender struct{}

func (GaussianBlender) PointWeights(cps []ControlPoint, p r3.Vector, w []float64) {
	for i, cp := range cps {
		a := cp.Direction.Dot(p.Sub(cp.Position))
		w[i] = gaussianExponent(a, cp.SegmentLength)
	}
	normalizeExponents(w)
}

func (GaussianBlender) ArcWeights(cps []ControlPoint, s float64, w []float64) {
	for i, cp := range cps {
		w[i] = gaussianExponent(s-cp.Offset, cp.SegmentLength)
	}
	normalizeExponents(w)
}

func gaussianExponent(a, segment float64) float64 {
	z := a / (segment / 2)
	return -0.5 * z * z
}

// normalizeExponents turns log-weights into weights summing to 1.
func normalizeExponents(w []float64) {
	top := math.Inf(-1)
	for _, e := range w {
		top = math.Max(top, e)
	}
	var sum float64
	for i, e := range w {
		w[i] = math.Exp(e - top)
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
}

// NearestSegmentBlender linearly interpolates between the two control
// points of the axis segment nearest to the query. It is continuous along
// a segment but jumps where the nearest segment changes.
type NearestSegmentBlender struct{}

func (NearestSegmentBlender) PointWeights(cps []ControlPoint, p r3.Vector, w []float64) {
	best, bestT := 0, 0.0
	bestD := math.Inf(1)
	for i := 0; i+1 < len(cps); i++ {
		a, b := cps[i].Position, cps[i+1].Position
		ab := b.Sub(a)
		t := clamp(p.Sub(a).Dot(ab)/ab.Norm2(), 0, 1)
		if d := p.Distance(a.Add(ab.Mul(t))); d < bestD {
			best, bestT, bestD = i, t, d
		}
	}
	segmentWeights(w, best, bestT)
}

func (NearestSegmentBlender) ArcWeights(cps []ControlPoint, s float64, w []float64) {
	n := len(cps)
	i := 0
	for i+2 < n && cps[i+1].Offset < s {
		i++
	}
	t := clamp((s-cps[i].Offset)/(cps[i+1].Offset-cps[i].Offset), 0, 1)
	segmentWeights(w, i, t)
}

func segmentWeights(w []float64, i int, t float64) {
	for k := range w {
		w[k] = 0
	}
	w[i] = 1 - t
	w[i+1] = t
}
