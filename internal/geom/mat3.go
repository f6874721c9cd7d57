// Package geom holds the small dense linear algebra used by the shell
// coordinate fitter: 3x3 frames, axis-angle rotation, symmetric eigen
// decompositions and matrix inversion.
//
// 3-vectors are github.com/golang/geo/r3 values. Anything larger than 3x3 is
// delegated to gonum.
package geom

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// epsilon is the threshold below which a vector norm or a cross product is
// treated as degenerate.
const epsilon = 1e-12

// ErrSingular is returned when a matrix cannot be inverted.
var ErrSingular = errors.New("singular matrix")

// Mat3 is a row-major 3x3 matrix. When used as a local frame, its columns are
// the frame axes expressed in world coordinates.
type Mat3 [3][3]float64

// Identity returns the 3x3 identity matrix.
func Identity() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// FromColumns builds a matrix whose columns are a, b and c.
func FromColumns(a, b, c r3.Vector) Mat3 {
	return Mat3{
		{a.X, b.X, c.X},
		{a.Y, b.Y, c.Y},
		{a.Z, b.Z, c.Z},
	}
}

// Col returns column j.
func (m Mat3) Col(j int) r3.Vector {
	return r3.Vector{X: m[0][j], Y: m[1][j], Z: m[2][j]}
}

// MulVec returns m·v.
func (m Mat3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// TMulVec returns mᵗ·v. For a frame this maps a world-relative vector into
// frame coordinates.
func (m Mat3) TMulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[1][0]*v.Y + m[2][0]*v.Z,
		Y: m[0][1]*v.X + m[1][1]*v.Y + m[2][1]*v.Z,
		Z: m[0][2]*v.X + m[1][2]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// Transpose returns mᵗ.
func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Add returns m+n.
func (m Mat3) Add(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][j] + n[i][j]
		}
	}
	return out
}

// Scale returns s·m.
func (m Mat3) Scale(s float64) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][j] * s
		}
	}
	return out
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns m⁻¹ using gonum's LU based inversion.
func (m Mat3) Inverse() (Mat3, error) {
	a := mat.NewDense(3, 3, m.flat())
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return Mat3{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j)
		}
	}
	return out, nil
}

func (m Mat3) flat() []float64 {
	return []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	}
}

// Outer returns the outer product a·bᵗ.
func Outer(a, b r3.Vector) Mat3 {
	return Mat3{
		{a.X * b.X, a.X * b.Y, a.X * b.Z},
		{a.Y * b.X, a.Y * b.Y, a.Y * b.Z},
		{a.Z * b.X, a.Z * b.Y, a.Z * b.Z},
	}
}

// Rotate rotates v about axis by angle radians (right-handed, Rodrigues'
// formula). A zero axis leaves v unchanged.
func Rotate(v, axis r3.Vector, angle float64) r3.Vector {
	n := axis.Norm()
	if n < epsilon {
		return v
	}
	k := axis.Mul(1 / n)
	c, s := math.Cos(angle), math.Sin(angle)
	return v.Mul(c).
		Add(k.Cross(v).Mul(s)).
		Add(k.Mul(k.Dot(v) * (1 - c)))
}

// RotationMatrix returns the matrix of Rotate(·, axis, angle).
func RotationMatrix(axis r3.Vector, angle float64) Mat3 {
	return FromColumns(
		Rotate(r3.Vector{X: 1}, axis, angle),
		Rotate(r3.Vector{Y: 1}, axis, angle),
		Rotate(r3.Vector{Z: 1}, axis, angle),
	)
}

// Orthonormalize returns the closest right-handed orthonormal frame to m,
// keeping the direction of column 0 and using Gram-Schmidt on column 1.
func Orthonormalize(m Mat3) Mat3 {
	c0 := m.Col(0)
	if c0.Norm() < epsilon {
		c0 = r3.Vector{X: 1}
	}
	c0 = c0.Normalize()
	c1 := m.Col(1)
	c1 = c1.Sub(c0.Mul(c0.Dot(c1)))
	if c1.Norm() < epsilon {
		c1 = c0.Ortho()
	}
	c1 = c1.Normalize()
	return FromColumns(c0, c1, c0.Cross(c1))
}

// IsOrthonormal reports whether every column of m has unit length and the
// columns are pairwise orthogonal, within tol.
func IsOrthonormal(m Mat3, tol float64) bool {
	for j := 0; j < 3; j++ {
		if math.Abs(m.Col(j).Norm()-1) > tol {
			return false
		}
		for k := j + 1; k < 3; k++ {
			if math.Abs(m.Col(j).Dot(m.Col(k))) > tol {
				return false
			}
		}
	}
	return true
}

// IsFinite reports whether all components of v are finite.
func IsFinite(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

// WrapAngle maps a into (-π, π].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
