package shell

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/geom"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

// varianceEpsilon is the principal variance below which the cloud has no
// usable axis.
const varianceEpsilon = 1e-12

// initialControlPoints places control points evenly along a straight axis
// through the reference point (default: centroid) in the principal
// direction (default: largest-eigenvalue eigenvector of the covariance),
// spanning the projected extent of the cloud.
func initialControlPoints(points []r3.Vector, p Params) ([]r3.Vector, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points for an axis, got %d", ErrInsufficientData, len(points))
	}

	centroid := geom.Centroid(points)
	primary, err := principalAxis(points, p)
	if err != nil {
		return nil, err
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, pt := range points {
		s := pt.Sub(centroid).Dot(primary)
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}

	extent := hi - lo
	n := int(math.Floor(extent / p.StepLength))
	if n < 2 {
		return nil, fmt.Errorf("%w: axis extent %.4g gives %d control points at step %.4g, need at least 2",
			ErrDegenerateGeometry, extent, n, p.StepLength)
	}

	ref := centroid
	if p.ReferencePoint != nil {
		ref = *p.ReferencePoint
	}
	refProj := ref.Sub(centroid).Dot(primary)

	out := make([]r3.Vector, n)
	for k := range out {
		s := lo + float64(k)*extent/float64(n-1)
		out[k] = ref.Add(primary.Mul(s - refProj))
	}

	monitoring.Logf("[shell] pca: points=%d extent=%.4g direction=(%.3f, %.3f, %.3f) control_points=%d",
		len(points), extent, primary.X, primary.Y, primary.Z, n)
	return out, nil
}

func principalAxis(points []r3.Vector, p Params) (r3.Vector, error) {
	if p.AxisDirection != nil {
		return p.AxisDirection.Normalize(), nil
	}

	values, vectors, err := geom.SymEigen3(geom.Covariance(points))
	if err != nil {
		return r3.Vector{}, fmt.Errorf("%w: %v", ErrNumericalInstability, err)
	}
	if !(values[2] > varianceEpsilon) {
		return r3.Vector{}, fmt.Errorf("%w: principal variance %.3g is zero", ErrDegenerateGeometry, values[2])
	}
	return canonicalSign(vectors.Col(2)), nil
}

// canonicalSign flips v so that its largest-magnitude component is
// positive. Eigenvectors are only defined up to sign; this keeps the axis
// orientation reproducible.
func canonicalSign(v r3.Vector) r3.Vector {
	a := v.Abs()
	var c float64
	switch {
	case a.X >= a.Y && a.X >= a.Z:
		c = v.X
	case a.Y >= a.Z:
		c = v.Y
	default:
		c = v.Z
	}
	if c < 0 {
		return v.Mul(-1)
	}
	return v
}
