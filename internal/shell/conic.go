package shell

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/lmb-freiburg/irocs/internal/geom"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

// minConicPoints is the number of points that determine a conic.
const minConicPoints = 5

// fitConic fits the general conic Ax² + Bxy + Cy² + Dx + Ey + F = 0 to the
// points selected by idx (all points when idx is nil) by algebraic least
// squares: the coefficient vector is the right singular vector of the
// design matrix with the smallest singular value. Coordinates are centred
// and scaled first for conditioning. ok is false when the conic is not a
// real ellipse.
func fitConic(xs, ys []float64, idx []int) (Ellipse, bool) {
	m := len(idx)
	if idx == nil {
		m = len(xs)
	}
	if m < minConicPoints {
		return Ellipse{}, false
	}
	at := func(k int) (float64, float64) {
		if idx == nil {
			return xs[k], ys[k]
		}
		return xs[idx[k]], ys[idx[k]]
	}

	var mx, my float64
	for k := 0; k < m; k++ {
		x, y := at(k)
		mx += x
		my += y
	}
	mx /= float64(m)
	my /= float64(m)
	var spread float64
	for k := 0; k < m; k++ {
		x, y := at(k)
		spread += (x-mx)*(x-mx) + (y-my)*(y-my)
	}
	scale := math.Sqrt(spread / float64(2*m))
	if !(scale > 1e-12) {
		return Ellipse{}, false
	}

	design := mat.NewDense(m, 6, nil)
	for k := 0; k < m; k++ {
		x, y := at(k)
		u, v := (x-mx)/scale, (y-my)/scale
		design.SetRow(k, []float64{u * u, u * v, v * v, u, v, 1})
	}

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDFull); !ok {
		return Ellipse{}, false
	}
	var right mat.Dense
	svd.VTo(&right)
	e, ok := conicToEllipse(
		right.At(0, 5), right.At(1, 5), right.At(2, 5),
		right.At(3, 5), right.At(4, 5), right.At(5, 5),
	)
	if !ok {
		return Ellipse{}, false
	}
	e.CX = e.CX*scale + mx
	e.CY = e.CY*scale + my
	e.RA *= scale
	e.RB *= scale
	return e, e.Valid()
}

// conicToEllipse converts conic coefficients to centre, semi-axes and
// orientation. The conic is an ellipse iff 4AC - B² > 0 and the value at
// the centre has the opposite sign of the quadratic part.
func conicToEllipse(a, b, c, d, e, f float64) (Ellipse, bool) {
	den := 4*a*c - b*b
	if !(den > 1e-14) {
		return Ellipse{}, false
	}
	x0 := (b*e - 2*c*d) / den
	y0 := (b*d - 2*a*e) / den
	f0 := f + (d*x0+e*y0)/2

	eig := geom.SymEigen2(a, b/2, c)
	if eig.Clamped {
		monitoring.Logf("[shell] conic: negative discriminant clamped to zero (a=%.3g b=%.3g c=%.3g)", a, b, c)
	}
	// The larger semi-axis belongs to the eigenvalue of smaller magnitude.
	ra2 := -f0 / eig.Minor
	rb2 := -f0 / eig.Major
	if a < 0 {
		ra2, rb2 = -f0/eig.Major, -f0/eig.Minor
	}
	if !(ra2 > 0 && rb2 > 0) {
		return Ellipse{}, false
	}

	// Direction of RA: the Minor eigenvector (-MajorY, MajorX) for a
	// positive-definite form, the Major eigenvector otherwise.
	angle := math.Atan2(eig.MajorX, -eig.MajorY)
	if a < 0 {
		angle = math.Atan2(eig.MajorY, eig.MajorX)
	}
	out := Ellipse{CX: x0, CY: y0, RA: math.Sqrt(ra2), RB: math.Sqrt(rb2), Angle: angle}
	return out.canonical(), true
}
