// Package synth generates synthetic tube-shaped point clouds with known
// geometry for tests, benchmarks and demos.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/geom"
)

// ErrInvalidTube is returned for tube descriptions that cannot be sampled.
var ErrInvalidTube = errors.New("invalid tube")

// Tube describes a tube with a constant elliptical cross-section whose axis
// is either straight or a circular arc.
type Tube struct {
	Origin    r3.Vector // axis start
	Direction r3.Vector // initial axis direction; zero means +x
	Length    float64   // arc length of the axis

	RA, RB float64 // semi-axes of the cross-section
	Angle  float64 // orientation of RA in the lateral plane

	// Curvature bends the axis into a circular arc of radius 1/Curvature
	// towards the first lateral direction. Zero gives a straight tube.
	Curvature float64

	Points int     // number of surface points
	Jitter float64 // uniform noise in [-Jitter, Jitter] per coordinate
	Seed   int64
}

// Cylinder returns a straight circular tube along +x starting at the origin.
func Cylinder(length, radius float64, points int, jitter float64, seed int64) Tube {
	return Tube{
		Direction: r3.Vector{X: 1},
		Length:    length,
		RA:        radius,
		RB:        radius,
		Points:    points,
		Jitter:    jitter,
		Seed:      seed,
	}
}

// Validate checks that the tube can be sampled.
func (t Tube) Validate() error {
	switch {
	case !(t.Length > 0):
		return fmt.Errorf("%w: length must be positive, got %g", ErrInvalidTube, t.Length)
	case !(t.RA > 0) || !(t.RB > 0):
		return fmt.Errorf("%w: semi-axes must be positive, got %g, %g", ErrInvalidTube, t.RA, t.RB)
	case t.Points < 1:
		return fmt.Errorf("%w: need at least 1 point, got %d", ErrInvalidTube, t.Points)
	case t.Jitter < 0:
		return fmt.Errorf("%w: jitter must be non-negative, got %g", ErrInvalidTube, t.Jitter)
	case t.Curvature < 0 || t.Curvature*t.Length >= math.Pi:
		return fmt.Errorf("%w: curvature %g bends a tube of length %g by half a turn or more", ErrInvalidTube, t.Curvature, t.Length)
	case t.Curvature > 0 && t.Curvature*math.Max(t.RA, t.RB) >= 1:
		return fmt.Errorf("%w: bend radius %g is inside the cross-section", ErrInvalidTube, 1/t.Curvature)
	}
	return nil
}

// basis returns the axis direction and the two lateral directions at the
// start of the tube.
func (t Tube) basis() (d, l1, l2 r3.Vector) {
	dir := t.Direction
	if dir.Norm() == 0 {
		dir = r3.Vector{X: 1}
	}
	f := geom.Orthonormalize(geom.FromColumns(dir, dir.Ortho(), r3.Vector{}))
	return f.Col(0), f.Col(1), f.Col(2)
}

// Frame returns the axis position and the local frame (axial, normal,
// binormal) at arc length s.
func (t Tube) Frame(s float64) (r3.Vector, geom.Mat3) {
	d, l1, l2 := t.basis()
	if t.Curvature == 0 {
		return t.Origin.Add(d.Mul(s)), geom.FromColumns(d, l1, l2)
	}
	k := t.Curvature
	c, sn := math.Cos(k*s), math.Sin(k*s)
	pos := t.Origin.Add(d.Mul(sn / k)).Add(l1.Mul((1 - c) / k))
	tangent := d.Mul(c).Add(l1.Mul(sn))
	normal := d.Mul(-sn).Add(l1.Mul(c))
	return pos, geom.FromColumns(tangent, normal, l2)
}

// AxisPoint returns the true axis position at arc length s.
func (t Tube) AxisPoint(s float64) r3.Vector {
	p, _ := t.Frame(s)
	return p
}

// Surface returns the point on the noiseless surface at arc length s and
// angle phi, measured in the lateral plane from the normal direction.
func (t Tube) Surface(s, phi float64) r3.Vector {
	pos, f := t.Frame(s)
	x, y := t.RA*math.Cos(phi), t.RB*math.Sin(phi)
	c, sn := math.Cos(t.Angle), math.Sin(t.Angle)
	return pos.Add(f.MulVec(r3.Vector{Y: c*x - sn*y, Z: sn*x + c*y}))
}

// Generate samples t.Points surface points uniformly in arc length and
// angle, with per-coordinate jitter. The same Seed gives the same cloud.
func (t Tube) Generate() ([]r3.Vector, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	//nolint:gosec
	rng := rand.New(rand.NewSource(t.Seed))
	jitter := func() float64 {
		if t.Jitter == 0 {
			return 0
		}
		return (2*rng.Float64() - 1) * t.Jitter
	}

	out := make([]r3.Vector, t.Points)
	for i := range out {
		s := rng.Float64() * t.Length
		phi := rng.Float64() * 2 * math.Pi
		p := t.Surface(s, phi)
		out[i] = r3.Vector{X: p.X + jitter(), Y: p.Y + jitter(), Z: p.Z + jitter()}
	}
	return out, nil
}
