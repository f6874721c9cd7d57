package shell

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/geom"
)

// Form2 is a symmetric 2x2 quadratic form.
type Form2 [2][2]float64

// Eval returns vᵗQv for v = (x, y).
func (q Form2) Eval(x, y float64) float64 {
	return q[0][0]*x*x + (q[0][1]+q[1][0])*x*y + q[1][1]*y*y
}

func (q Form2) add(o Form2, w float64) Form2 {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			q[i][j] += w * o[i][j]
		}
	}
	return q
}

func (q Form2) scale(s float64) Form2 {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			q[i][j] *= s
		}
	}
	return q
}

// Ellipse is a cross-section in the lateral plane of a control point.
// Coordinates are (lateral1, lateral2) relative to the control point.
type Ellipse struct {
	CX, CY float64 // centre
	RA, RB float64 // semi-axes, RA >= RB
	Angle  float64 // direction of RA from lateral1, in (-π/2, π/2]
}

// canonical returns e with RA >= RB and Angle in (-π/2, π/2]. An ellipse is
// invariant under a rotation by π, so the angle is only defined modulo π.
func (e Ellipse) canonical() Ellipse {
	if e.RB > e.RA {
		e.RA, e.RB = e.RB, e.RA
		e.Angle += math.Pi / 2
	}
	e.Angle = wrapHalfAngle(e.Angle)
	return e
}

// Valid reports whether the semi-axes are positive and finite.
func (e Ellipse) Valid() bool {
	return e.RA > 0 && e.RB > 0 &&
		!math.IsInf(e.RA, 0) && !math.IsInf(e.RB, 0) &&
		!math.IsNaN(e.Angle) && !math.IsNaN(e.CX) && !math.IsNaN(e.CY)
}

// Form returns Q = R·diag(1/ra², 1/rb²)·Rᵗ. A point v relative to the
// centre lies on the boundary when vᵗQv = 1.
func (e Ellipse) Form() Form2 {
	c, s := math.Cos(e.Angle), math.Sin(e.Angle)
	ia := 1 / (e.RA * e.RA)
	ib := 1 / (e.RB * e.RB)
	off := c * s * (ia - ib)
	return Form2{
		{c*c*ia + s*s*ib, off},
		{off, s*s*ia + c*c*ib},
	}
}

// Distance returns sqrt(vᵗQv) for the lateral point (x, y) relative to the
// ellipse centre: 1 on the boundary, 0 at the centre.
func (e Ellipse) Distance(x, y float64) float64 {
	return math.Sqrt(e.Form().Eval(x-e.CX, y-e.CY))
}

// Radius returns the distance from the centre to the boundary in direction
// phi, i.e. the λ for which λ·(cos φ, sin φ) lies on the ellipse.
func (e Ellipse) Radius(phi float64) float64 {
	return boundaryScale(e.Form(), phi)
}

func boundaryScale(q Form2, phi float64) float64 {
	v := q.Eval(math.Cos(phi), math.Sin(phi))
	if v <= 0 {
		return 0
	}
	return 1 / math.Sqrt(v)
}

// wrapHalfAngle maps an orientation angle into (-π/2, π/2].
func wrapHalfAngle(a float64) float64 {
	return geom.WrapAngle(2*a) / 2
}

// ControlPoint is one sample of the fitted axis with its derived
// attributes. The derived fields are always recomputed together.
type ControlPoint struct {
	Position r3.Vector

	// Frame columns are (axial, lateral1, lateral2) in world coordinates.
	Frame geom.Mat3
	// Direction is the unit axial direction (Frame column 0).
	Direction r3.Vector
	// SegmentLength is the local control point spacing; it sets the width
	// of the blending kernel.
	SegmentLength float64
	// RotationAxis and RotationAngle describe the rotation used to build
	// Frame: from the global basis for fixed-reference frames, from the
	// previous control point's frame for parallel transport.
	RotationAxis  r3.Vector
	RotationAngle float64
	// Offset is the cumulative arc length from control point 0.
	Offset float64

	Ellipse Ellipse
	// Q is Ellipse.Form().
	Q Form2
}

// ToLocal maps a world point into this control point's frame: X is axial,
// (Y, Z) are the lateral coordinates.
func (c ControlPoint) ToLocal(p r3.Vector) r3.Vector {
	return c.Frame.TMulVec(p.Sub(c.Position))
}

// ToWorld maps local frame coordinates back to world space.
func (c ControlPoint) ToWorld(l r3.Vector) r3.Vector {
	return c.Position.Add(c.Frame.MulVec(l))
}

// Coordinate is a position in the shell coordinate system.
type Coordinate struct {
	// Axial is the arc-length coordinate along the fitted axis.
	Axial float64
	// Radial is the in-plane distance from the axis, either in world units
	// or normalized by the local cross-section (1 on the fitted surface).
	Radial float64
	// Angle is the angular position in the lateral plane, in (-π, π],
	// measured from lateral1 towards lateral2.
	Angle float64
}

// AxisSample is the blended axis state at an arbitrary arc length.
type AxisSample struct {
	Position  r3.Vector
	Direction r3.Vector
	Frame     geom.Mat3
	Ellipse   Ellipse
	Q         Form2
	Offset    float64
}
