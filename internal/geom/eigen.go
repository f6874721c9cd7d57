package geom

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrEigenFailed is returned when gonum cannot factorize a symmetric matrix.
var ErrEigenFailed = errors.New("symmetric eigen decomposition failed")

// covarianceEpsilon is the magnitude below which an off-diagonal covariance
// term is treated as zero in the closed-form 2x2 solve.
const covarianceEpsilon = 1e-12

// Centroid returns the mean of points. It returns the zero vector for an
// empty slice.
func Centroid(points []r3.Vector) r3.Vector {
	if len(points) == 0 {
		return r3.Vector{}
	}
	var sum r3.Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

// Covariance returns the 3x3 sample covariance of points.
func Covariance(points []r3.Vector) Mat3 {
	if len(points) < 2 {
		return Mat3{}
	}
	data := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		data.Set(i, 0, p.X)
		data.Set(i, 1, p.Y)
		data.Set(i, 2, p.Z)
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = cov.At(i, j)
		}
	}
	return out
}

// SymEigen3 decomposes the symmetric matrix m. Eigenvalues are returned in
// ascending order; the matching unit eigenvectors are the columns of the
// returned matrix.
func SymEigen3(m Mat3) ([3]float64, Mat3, error) {
	s := mat.NewSymDense(3, []float64{
		m[0][0], 0.5 * (m[0][1] + m[1][0]), 0.5 * (m[0][2] + m[2][0]),
		0.5 * (m[0][1] + m[1][0]), m[1][1], 0.5 * (m[1][2] + m[2][1]),
		0.5 * (m[0][2] + m[2][0]), 0.5 * (m[1][2] + m[2][1]), m[2][2],
	})
	var es mat.EigenSym
	if ok := es.Factorize(s, true); !ok {
		return [3]float64{}, Mat3{}, ErrEigenFailed
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = vecs.At(i, j)
		}
	}
	return [3]float64{values[0], values[1], values[2]}, out, nil
}

// Eigen2 is the closed-form eigen decomposition of a symmetric 2x2 matrix.
type Eigen2 struct {
	// Major and Minor are the larger and smaller eigenvalues.
	Major, Minor float64
	// MajorX, MajorY is the unit eigenvector of Major. The eigenvector of
	// Minor is (-MajorY, MajorX).
	MajorX, MajorY float64
	// Clamped is set when the discriminant came out negative and was clamped
	// to zero.
	Clamped bool
}

// SymEigen2 decomposes [[a b] [b c]] analytically:
// λ = (trace ± sqrt(trace² - 4·det)) / 2.
func SymEigen2(a, b, c float64) Eigen2 {
	trace := a + c
	det := a*c - b*b
	disc := trace*trace - 4*det

	var out Eigen2
	if disc < 0 {
		out.Clamped = true
		disc = 0
	}
	sq := math.Sqrt(disc)
	out.Major = (trace + sq) / 2
	out.Minor = (trace - sq) / 2

	if math.Abs(b) > covarianceEpsilon {
		x, y := b, out.Major-a
		n := math.Hypot(x, y)
		if n > covarianceEpsilon {
			out.MajorX, out.MajorY = x/n, y/n
			return out
		}
	}
	if a >= c {
		out.MajorX, out.MajorY = 1, 0
	} else {
		out.MajorX, out.MajorY = 0, 1
	}
	return out
}
