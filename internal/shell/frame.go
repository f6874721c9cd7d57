package shell

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/geom"
)

// segmentEpsilon is the shortest segment length treated as non-degenerate.
const segmentEpsilon = 1e-9

// globalReference is the world direction mapped onto the axial direction by
// fixed-reference frames.
var globalReference = r3.Vector{X: 1}

// computeFrames recomputes every derived attribute of cps from the control
// point positions and ellipses: tangents, segment lengths, frames, rotation
// axis/angle, offsets and quadratic forms. Ellipse orientations are measured
// in the lateral axes of the frame they were fitted in; when a control point
// already has a frame, its ellipse is re-expressed in the new lateral axes so
// it keeps its orientation in world space.
func computeFrames(cps []ControlPoint, strategy FrameStrategy) error {
	n := len(cps)
	if n < 2 {
		return stageError("frames", -1, fmt.Errorf("%w: need at least 2 control points, got %d", ErrInsufficientData, n))
	}

	for i := range cps {
		var raw r3.Vector
		switch {
		case i == 0:
			raw = cps[1].Position.Sub(cps[0].Position)
		case i == n-1:
			raw = cps[n-1].Position.Sub(cps[n-2].Position)
		default:
			raw = cps[i+1].Position.Sub(cps[i-1].Position).Mul(0.5)
		}
		length := raw.Norm()
		if !(length > segmentEpsilon) {
			return stageError("frames", i, fmt.Errorf("%w: zero-length segment", ErrDegenerateGeometry))
		}
		cps[i].SegmentLength = length
		cps[i].Direction = raw.Mul(1 / length)

		if i == 0 {
			cps[i].Offset = 0
			continue
		}
		chord := cps[i].Position.Distance(cps[i-1].Position)
		if !(chord > segmentEpsilon) {
			return stageError("frames", i, fmt.Errorf("%w: coincident control points", ErrDegenerateGeometry))
		}
		cps[i].Offset = cps[i-1].Offset + chord
	}

	for i := range cps {
		dir := cps[i].Direction
		var frame geom.Mat3
		if i == 0 || strategy == FrameFixedReference {
			axis, angle := referenceRotation(dir)
			cps[i].RotationAxis, cps[i].RotationAngle = axis, angle
			frame = geom.RotationMatrix(axis, angle)
		} else {
			axis, angle := minimalRotation(cps[i-1].Direction, dir)
			cps[i].RotationAxis, cps[i].RotationAngle = axis, angle
			frame = geom.RotationMatrix(axis, angle).Mul(cps[i-1].Frame)
		}
		// Pin column 0 to the tangent exactly and remove accumulated drift.
		prev := cps[i].Frame
		cps[i].Frame = geom.Orthonormalize(geom.FromColumns(dir, frame.Col(1), frame.Col(2)))

		if cps[i].Ellipse.Valid() {
			cps[i].Ellipse = reorient(cps[i].Ellipse, prev, cps[i].Frame)
			cps[i].Q = cps[i].Ellipse.Form()
		} else {
			cps[i].Q = Form2{}
		}
	}
	return nil
}

// reorient returns e with its orientation, given in the lateral axes of
// frame from, expressed in the lateral axes of frame to. A zero from frame
// leaves e unchanged.
func reorient(e Ellipse, from, to geom.Mat3) Ellipse {
	if from == to || from == (geom.Mat3{}) {
		return e
	}
	c, s := math.Cos(e.Angle), math.Sin(e.Angle)
	major := from.Col(1).Mul(c).Add(from.Col(2).Mul(s))
	x, y := major.Dot(to.Col(1)), major.Dot(to.Col(2))
	if math.Hypot(x, y) < segmentEpsilon {
		return e
	}
	e.Angle = math.Atan2(y, x)
	return e.canonical()
}

// referenceRotation returns the axis and angle rotating globalReference
// onto dir. When dir is (anti-)parallel to the reference, an arbitrary
// perpendicular axis is substituted.
func referenceRotation(dir r3.Vector) (r3.Vector, float64) {
	axis := globalReference.Cross(dir)
	angle := math.Acos(clamp(globalReference.Dot(dir), -1, 1))
	if axis.Norm() < segmentEpsilon {
		axis = globalReference.Ortho()
	}
	axis = axis.Normalize()
	if geom.Rotate(globalReference, axis, angle).Sub(dir).Norm2() > 1.0 {
		angle = -angle
	}
	return axis, angle
}

// minimalRotation returns the smallest rotation taking unit vector from onto
// unit vector to. Parallel vectors give a zero rotation.
func minimalRotation(from, to r3.Vector) (r3.Vector, float64) {
	axis := from.Cross(to)
	n := axis.Norm()
	angle := math.Atan2(n, from.Dot(to))
	if n < segmentEpsilon {
		if from.Dot(to) > 0 {
			return r3.Vector{}, 0
		}
		return from.Ortho(), math.Pi
	}
	return axis.Mul(1 / n), angle
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
