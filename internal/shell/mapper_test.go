package shell

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmb-freiburg/irocs/internal/geom"
	"github.com/lmb-freiburg/irocs/internal/testutil"
)

func TestCoordinatesStraight(t *testing.T) {
	tr := straightTransform(t, 11, 10, Ellipse{RA: 4, RB: 2, Angle: 0.3})

	tests := []struct {
		p    r3.Vector
		want Coordinate
	}{
		{r3.Vector{X: 0}, Coordinate{Axial: 0}},
		{r3.Vector{X: 37, Y: 3}, Coordinate{Axial: 37, Radial: 3, Angle: 0}},
		{r3.Vector{X: 55, Z: 2}, Coordinate{Axial: 55, Radial: 2, Angle: math.Pi / 2}},
		{r3.Vector{X: 80, Y: -1, Z: -1}, Coordinate{Axial: 80, Radial: math.Sqrt2, Angle: -3 * math.Pi / 4}},
		{r3.Vector{X: 12, Y: -2}, Coordinate{Axial: 12, Radial: 2, Angle: math.Pi}},
		// Beyond the ends the axis continues straight.
		{r3.Vector{X: -15, Y: 1}, Coordinate{Axial: -15, Radial: 1}},
		{r3.Vector{X: 130, Z: -1}, Coordinate{Axial: 130, Radial: 1, Angle: -math.Pi / 2}},
	}
	for _, policy := range []BlendPolicy{BlendGaussian, BlendNearestSegment} {
		view, err := tr.WithBlending(policy)
		require.NoError(t, err)
		for _, tt := range tests {
			got, err := view.Coordinates(tt.p)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Axial, got.Axial, 1e-9, "%s axial of %v", policy, tt.p)
			assert.InDelta(t, tt.want.Radial, got.Radial, 1e-9, "%s radial of %v", policy, tt.p)
			if tt.want.Radial > 0 {
				assert.InDelta(t, tt.want.Angle, got.Angle, 1e-9, "%s angle of %v", policy, tt.p)
			}
			assert.True(t, got.Angle > -math.Pi && got.Angle <= math.Pi)
		}
	}
}

func TestNormalizedCoordinatesOnBoundary(t *testing.T) {
	e := Ellipse{RA: 4, RB: 2, Angle: 0.3}
	tr := straightTransform(t, 11, 10, e)
	for _, phi := range []float64{0, 0.3, 1, 2, -2.5} {
		r := e.Radius(phi)
		p := r3.Vector{X: 42, Y: r * math.Cos(phi), Z: r * math.Sin(phi)}
		c, err := tr.NormalizedCoordinates(p)
		require.NoError(t, err)
		assert.InDelta(t, 1, c.Radial, 1e-9)
		assert.InDelta(t, 0, geom.WrapAngle(c.Angle-phi), 1e-9)

		c, err = tr.NormalizedCoordinates(r3.Vector{X: 42, Y: p.Y / 2, Z: p.Z / 2})
		require.NoError(t, err)
		assert.InDelta(t, 0.5, c.Radial, 1e-9)
	}
}

func TestAxisQueriesStraight(t *testing.T) {
	e := Ellipse{RA: 3, RB: 1, Angle: -0.2}
	tr := straightTransform(t, 6, 4, e)
	require.Equal(t, 20.0, tr.TotalLength())

	for _, u := range []float64{0, 0.1, 0.5, 0.77, 1} {
		s, err := tr.AxisSample(u)
		require.NoError(t, err)
		testutil.AssertVectorNear(t, r3.Vector{X: 20 * u}, s.Position, 1e-9)
		testutil.AssertVectorNear(t, r3.Vector{X: 1}, s.Direction, 1e-12)
		assert.InDelta(t, 20*u, s.Offset, 1e-12)
		assert.InDelta(t, e.RA, s.Ellipse.RA, 1e-9)
		assert.InDelta(t, e.RB, s.Ellipse.RB, 1e-9)
		assert.InDelta(t, 0, wrapHalfAngle(e.Angle-s.Ellipse.Angle), 1e-9)
		assert.True(t, geom.IsOrthonormal(s.Frame, 1e-12))
	}

	lo, err := tr.AxisPosition(-3)
	require.NoError(t, err)
	zero, err := tr.AxisPosition(0)
	require.NoError(t, err)
	assert.Equal(t, zero, lo, "u is clamped")

	_, err = tr.AxisPosition(math.NaN())
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestAxisRoundTrip(t *testing.T) {
	tr := fittedCylinder(t)
	total := tr.TotalLength()
	step := tr.Params().StepLength

	for _, policy := range []BlendPolicy{BlendGaussian, BlendNearestSegment} {
		view, err := tr.WithBlending(policy)
		require.NoError(t, err)
		for i := 0; i <= 40; i++ {
			u := float64(i) / 40
			p, err := view.AxisPosition(u)
			require.NoError(t, err)
			c, err := view.Coordinates(p)
			require.NoError(t, err)
			assert.InDelta(t, u*total, c.Axial, 0.05*step, "%s axial at u=%g", policy, u)
			assert.InDelta(t, 0, c.Radial, 0.05*step, "%s radial at u=%g", policy, u)
		}
	}
}

func TestAxisArcLengthMonotonic(t *testing.T) {
	tr := fittedCylinder(t)
	prev := math.Inf(-1)
	for i := 0; i <= 200; i++ {
		p, err := tr.AxisPosition(float64(i) / 200)
		require.NoError(t, err)
		c, err := tr.Coordinates(p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.Axial, prev, "u=%g", float64(i)/200)
		prev = c.Axial
	}
}

func TestAxisFramesOrthonormal(t *testing.T) {
	tr := fittedCylinder(t)
	for i := 0; i <= 50; i++ {
		f, err := tr.AxisFrame(float64(i) / 50)
		require.NoError(t, err)
		assert.True(t, geom.IsOrthonormal(f, 1e-9))
		d, err := tr.AxisDirection(float64(i) / 50)
		require.NoError(t, err)
		assert.Greater(t, math.Abs(d.X), 0.99)
	}
}

func TestFittedBoundaryNormalizedRadius(t *testing.T) {
	tr := fittedCylinder(t)
	cps := tr.ControlPoints()
	for i := tr.TailCount() + 1; i < len(cps)-tr.TailCount()-1; i++ {
		cp := cps[i]
		for _, phi := range []float64{0, 1, 2, 3, 4, 5} {
			r := cp.Ellipse.Radius(phi)
			p := cp.ToWorld(r3.Vector{Y: cp.Ellipse.CX + r*math.Cos(phi), Z: cp.Ellipse.CY + r*math.Sin(phi)})
			c, err := tr.NormalizedCoordinates(p)
			require.NoError(t, err)
			assert.InDelta(t, 1, c.Radial, 0.05, "control point %d phi %g", i, phi)
		}
	}
}

func TestSurfacePointsNearRadius(t *testing.T) {
	tr := fittedCylinder(t)
	pts := generate(t, cylinderTube)
	coords, err := tr.MapPoints(context.Background(), pts, false)
	require.NoError(t, err)
	require.Len(t, coords, len(pts))

	for i, c := range coords {
		single, err := tr.Coordinates(pts[i])
		require.NoError(t, err)
		require.Equal(t, single, c)
		if c.Axial > 20 && c.Axial < tr.TotalLength()-20 {
			assert.InDelta(t, 5, c.Radial, 0.6, "point %d", i)
		}
	}
}

func TestQueriesNotFitted(t *testing.T) {
	for name, tr := range map[string]*Transform{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Coordinates(r3.Vector{})
			assert.True(t, errors.Is(err, ErrNotFitted))
			_, err = tr.NormalizedCoordinates(r3.Vector{})
			assert.True(t, errors.Is(err, ErrNotFitted))
			_, err = tr.AxisPosition(0.5)
			assert.True(t, errors.Is(err, ErrNotFitted))
			_, err = tr.AxisEllipse(0.5)
			assert.True(t, errors.Is(err, ErrNotFitted))
			_, err = tr.Surface(4, 8)
			assert.True(t, errors.Is(err, ErrNotFitted))
			_, err = tr.MapPoints(context.Background(), []r3.Vector{{}}, false)
			assert.True(t, errors.Is(err, ErrNotFitted))
			_, err = tr.Snapshot()
			assert.True(t, errors.Is(err, ErrNotFitted))
			assert.False(t, tr.Fitted())
			assert.Equal(t, 0.0, tr.TotalLength())
		})
	}
}

func TestCoordinatesRejectsNonFinite(t *testing.T) {
	tr := straightTransform(t, 4, 1, Ellipse{RA: 1, RB: 1})
	_, err := tr.Coordinates(r3.Vector{X: math.Inf(1)})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}
