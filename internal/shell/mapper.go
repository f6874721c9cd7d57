package shell

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/lmb-freiburg/irocs/internal/geom"
)

// blend is a weighted combination of control points.
type blend struct {
	position r3.Vector
	frame    geom.Mat3
	offset   float64
	ellipse  Ellipse
	q        Form2
}

// combine blends the control points with weights w. Frames are
// re-orthonormalized; ellipse angles are averaged as wrapped differences
// from the dominant control point.
func combine(cps []ControlPoint, w []float64) blend {
	var b blend
	var frame geom.Mat3
	dominant := 0
	for i, cp := range cps {
		if w[i] == 0 {
			continue
		}
		if w[i] > w[dominant] {
			dominant = i
		}
		b.position = b.position.Add(cp.Position.Mul(w[i]))
		frame = frame.Add(cp.Frame.Scale(w[i]))
		b.offset += w[i] * cp.Offset
		b.q = b.q.add(cp.Q, w[i])
		b.ellipse.CX += w[i] * cp.Ellipse.CX
		b.ellipse.CY += w[i] * cp.Ellipse.CY
		b.ellipse.RA += w[i] * cp.Ellipse.RA
		b.ellipse.RB += w[i] * cp.Ellipse.RB
	}
	ref := cps[dominant].Ellipse.Angle
	var da float64
	for i, cp := range cps {
		if w[i] != 0 {
			da += w[i] * wrapHalfAngle(cp.Ellipse.Angle-ref)
		}
	}
	b.ellipse.Angle = ref + da
	b.ellipse = b.ellipse.canonical()
	b.frame = geom.Orthonormalize(frame)
	return b
}

// Coordinates maps the world point p to shell coordinates with the radial
// distance in world units.
func (t *Transform) Coordinates(p r3.Vector) (Coordinate, error) {
	return t.coordinates(p, false)
}

// NormalizedCoordinates maps the world point p to shell coordinates with
// the radial distance normalized by the blended cross-section: 1 on the
// fitted surface, 0 on the axis.
func (t *Transform) NormalizedCoordinates(p r3.Vector) (Coordinate, error) {
	return t.coordinates(p, true)
}

func (t *Transform) coordinates(p r3.Vector, normalized bool) (Coordinate, error) {
	if err := t.ready(); err != nil {
		return Coordinate{}, err
	}
	if !geom.IsFinite(p) {
		return Coordinate{}, fmt.Errorf("%w: query point is not finite", ErrInvalidArgument)
	}
	w := make([]float64, len(t.cps))
	t.blender.PointWeights(t.cps, p, w)
	b := combine(t.cps, w)

	l := b.frame.TMulVec(p.Sub(b.position))
	c := Coordinate{
		Axial: l.X + b.offset,
		Angle: geom.WrapAngle(math.Atan2(l.Z, l.Y)),
	}
	if normalized {
		c.Radial = math.Sqrt(math.Max(b.q.Eval(l.Y-b.ellipse.CX, l.Z-b.ellipse.CY), 0))
	} else {
		c.Radial = math.Hypot(l.Y, l.Z)
	}
	return c, nil
}

// MapPoints maps every point to shell coordinates, in parallel.
func (t *Transform) MapPoints(ctx context.Context, points []r3.Vector, normalized bool) ([]Coordinate, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	out := make([]Coordinate, len(points))
	const batch = 1024
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit(t.params.Workers))
	for lo := 0; lo < len(points); lo += batch {
		hi := min(lo+batch, len(points))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				c, err := t.coordinates(points[i], normalized)
				if err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
				out[i] = c
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AxisSample returns the blended axis state at the normalized arc length
// u in [0, 1]. u outside the range is clamped.
func (t *Transform) AxisSample(u float64) (AxisSample, error) {
	if err := t.ready(); err != nil {
		return AxisSample{}, err
	}
	if math.IsNaN(u) {
		return AxisSample{}, fmt.Errorf("%w: axis parameter is NaN", ErrInvalidArgument)
	}
	s := clamp(u, 0, 1) * t.TotalLength()

	w := make([]float64, len(t.cps))
	t.blender.ArcWeights(t.cps, s, w)
	b := combine(t.cps, w)

	// Each control point predicts the axis at s along its own tangent.
	var pos r3.Vector
	for i, cp := range t.cps {
		if w[i] != 0 {
			pos = pos.Add(cp.Position.Add(cp.Direction.Mul(s - cp.Offset)).Mul(w[i]))
		}
	}
	return AxisSample{
		Position:  pos,
		Direction: b.frame.Col(0),
		Frame:     b.frame,
		Ellipse:   b.ellipse,
		Q:         b.q,
		Offset:    s,
	}, nil
}

// AxisPosition returns the world position of the axis at u in [0, 1].
func (t *Transform) AxisPosition(u float64) (r3.Vector, error) {
	s, err := t.AxisSample(u)
	return s.Position, err
}

// AxisDirection returns the unit axial direction at u in [0, 1].
func (t *Transform) AxisDirection(u float64) (r3.Vector, error) {
	s, err := t.AxisSample(u)
	return s.Direction, err
}

// AxisFrame returns the orthonormal local frame at u in [0, 1]; its columns
// are (axial, lateral1, lateral2).
func (t *Transform) AxisFrame(u float64) (geom.Mat3, error) {
	s, err := t.AxisSample(u)
	return s.Frame, err
}

// AxisEllipse returns the blended cross-section at u in [0, 1].
func (t *Transform) AxisEllipse(u float64) (Ellipse, error) {
	s, err := t.AxisSample(u)
	return s.Ellipse, err
}
