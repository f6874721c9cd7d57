package shell

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmb-freiburg/irocs/internal/monitoring"
	"github.com/lmb-freiburg/irocs/internal/synth"
)

func TestFitCylinderEndToEnd(t *testing.T) {
	tr := fittedCylinder(t)
	cps := tr.ControlPoints()
	tails := tr.TailCount()
	require.Equal(t, 2, tails)
	require.GreaterOrEqual(t, len(cps), 18)

	assert.InDelta(t, 200, tr.TotalLength(), 0.02*200)
	require.NoError(t, tr.CheckFrames(1e-9))

	first, last := tails, len(cps)-1-tails
	for i := first; i <= last; i++ {
		e := cps[i].Ellipse
		assert.InDelta(t, 5, e.RA, 0.5, "RA at %d", i)
		assert.InDelta(t, 5, e.RB, 0.5, "RB at %d", i)
		p := cps[i].Position
		assert.InDelta(t, 0, math.Hypot(p.Y, p.Z), 0.5, "axis offset at %d", i)
	}

	// Tails continue the line through the two outermost interior points.
	step := cps[first+1].Offset - cps[first].Offset
	head := cps[first].Position.Sub(cps[first+1].Position)
	for i := 0; i < first; i++ {
		want := cps[first].Position.Add(head.Mul(float64(first - i)))
		assert.Less(t, cps[i].Position.Distance(want), 0.01*step, "head tail %d", i)
		assertSameEllipse(t, cps[first].Ellipse, cps[i].Ellipse)
	}
	tail := cps[last].Position.Sub(cps[last-1].Position)
	for i := last + 1; i < len(cps); i++ {
		want := cps[last].Position.Add(tail.Mul(float64(i - last)))
		assert.Less(t, cps[i].Position.Distance(want), 0.01*step, "end tail %d", i)
		assertSameEllipse(t, cps[last].Ellipse, cps[i].Ellipse)
	}
}

func TestFitEllipticalTube(t *testing.T) {
	tube := synth.Tube{
		Direction: r3.Vector{X: 1, Y: 1, Z: 0.5},
		Length:    150,
		RA:        6,
		RB:        3,
		Angle:     0.4,
		Points:    2000,
		Jitter:    0.05,
		Seed:      3,
	}
	tr, err := Fit(context.Background(), generate(t, tube), DefaultParams(10, 10))
	require.NoError(t, err)

	cps := tr.ControlPoints()
	for i := tr.TailCount(); i < len(cps)-tr.TailCount(); i++ {
		e := cps[i].Ellipse
		assert.InDelta(t, 6, e.RA, 0.05*6, "RA at %d", i)
		assert.InDelta(t, 3, e.RB, 0.05*3, "RB at %d", i)
	}
}

func TestFitCurvedTube(t *testing.T) {
	tube := synth.Tube{Length: 150, RA: 4, RB: 4, Curvature: 0.006, Points: 3000, Jitter: 0.05, Seed: 8}
	pts := generate(t, tube)

	for _, frames := range []FrameStrategy{FrameParallelTransport, FrameFixedReference} {
		t.Run(string(frames), func(t *testing.T) {
			p := DefaultParams(8, 8)
			p.Frames = frames
			tr, err := Fit(context.Background(), pts, p)
			require.NoError(t, err)
			require.NoError(t, tr.CheckFrames(1e-9))

			coords, err := tr.MapPoints(context.Background(), pts, true)
			require.NoError(t, err)
			// Points away from the open ends lie on the fitted surface.
			var sum float64
			var n int
			for _, c := range coords {
				if c.Axial > 15 && c.Axial < tr.TotalLength()-15 {
					sum += c.Radial
					n++
				}
			}
			require.Greater(t, n, 100)
			assert.InDelta(t, 1, sum/float64(n), 0.05)
		})
	}
}

func TestFitDeterministic(t *testing.T) {
	pts := generate(t, synth.Cylinder(120, 4, 800, 0.2, 21))

	p := DefaultParams(10, 10)
	p.Seed = 99
	p.Workers = 1
	a, err := Fit(context.Background(), pts, p)
	require.NoError(t, err)

	p.Workers = 6
	b, err := Fit(context.Background(), pts, p)
	require.NoError(t, err)

	if diff := cmp.Diff(a.ControlPoints(), b.ControlPoints()); diff != "" {
		t.Errorf("fits differ (-workers=1 +workers=6):\n%s", diff)
	}
	assert.Equal(t, a.Generation(), b.Generation())
}

func TestFitDoesNotModifyInput(t *testing.T) {
	pts := generate(t, synth.Cylinder(60, 3, 400, 0.1, 4))
	orig := append([]r3.Vector(nil), pts...)
	_, err := Fit(context.Background(), pts, DefaultParams(10, 0))
	require.NoError(t, err)
	assert.Equal(t, orig, pts)
}

func TestFitFixedAxis(t *testing.T) {
	pts := generate(t, synth.Cylinder(100, 4, 800, 0.1, 6))

	p := DefaultParams(10, 10)
	p.AxisDirection = &r3.Vector{X: -2}
	p.ReferencePoint = &r3.Vector{X: 50, Y: 0.5}
	tr, err := Fit(context.Background(), pts, p)
	require.NoError(t, err)

	cps := tr.ControlPoints()
	assert.Greater(t, cps[0].Position.X, cps[len(cps)-1].Position.X, "axis runs along -x")
	for _, cp := range cps {
		assert.Less(t, cp.Direction.X, -0.99)
	}
}

// An axis along -x makes the first frame unstable between passes. Fitted
// ellipses must still line up with the final frames.
func TestFitEllipticalTubeAlongNegativeX(t *testing.T) {
	tube := synth.Tube{
		Direction: r3.Vector{X: -1},
		Length:    150,
		RA:        6,
		RB:        3,
		Angle:     0.4,
		Points:    2000,
		Jitter:    0.05,
		Seed:      3,
	}
	pts := generate(t, tube)

	for _, dir := range []r3.Vector{{X: 1}, {X: -1}, {X: -1, Y: 1e-3}} {
		t.Run(fmt.Sprintf("axis %v", dir), func(t *testing.T) {
			p := DefaultParams(10, 10)
			p.AxisDirection = &dir
			tr, err := Fit(context.Background(), pts, p)
			require.NoError(t, err)

			cps := tr.ControlPoints()
			for i := tr.TailCount(); i < len(cps)-tr.TailCount(); i++ {
				assert.InDelta(t, 6, cps[i].Ellipse.RA, 0.05*6, "RA at %d", i)
				assert.InDelta(t, 3, cps[i].Ellipse.RB, 0.05*3, "RB at %d", i)
			}

			coords, err := tr.MapPoints(context.Background(), pts, true)
			require.NoError(t, err)
			var sum float64
			var n int
			for _, c := range coords {
				if c.Axial > 15 && c.Axial < tr.TotalLength()-15 {
					d := c.Radial - 1
					sum += d * d
					n++
				}
			}
			require.Greater(t, n, 100)
			rms := math.Sqrt(sum / float64(n))
			if rms > 0.05 {
				t.Errorf("Expected normalized radius RMS error below 0.05, got %.4f", rms)
			}

			// Surface vertices lie on the tube as well.
			m, err := tr.Surface(16, 24)
			require.NoError(t, err)
			for j, v := range m.Vertices {
				c, err := tr.NormalizedCoordinates(v)
				require.NoError(t, err)
				if c.Axial > 15 && c.Axial < tr.TotalLength()-15 {
					assert.InDelta(t, 1, c.Radial, 0.05, "vertex %d", j)
				}
			}
		})
	}
}

// assertSameEllipse compares semi-axes exactly and orientations modulo π.
func assertSameEllipse(t *testing.T, want, got Ellipse) {
	t.Helper()
	assert.Equal(t, want.RA, got.RA)
	assert.Equal(t, want.RB, got.RB)
	assert.InDelta(t, 0, wrapHalfAngle(want.Angle-got.Angle), 0.05, "orientation")
}

func TestFitCancelled(t *testing.T) {
	pts := generate(t, synth.Cylinder(100, 4, 500, 0.1, 1))

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		tr, err := Fit(ctx, pts, DefaultParams(10, 10))
		assert.Nil(t, tr)
		assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})

	t.Run("during fit", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p := DefaultParams(10, 10)
		p.Progress = monitoring.ProgressFunc(func(stage string, done, total int) {
			if stage == "axis" && done == 3 {
				cancel()
			}
		})
		tr, err := Fit(ctx, pts, p)
		assert.Nil(t, tr)
		assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
	})
}

func TestFitErrors(t *testing.T) {
	cylinder := generate(t, synth.Cylinder(100, 4, 300, 0.1, 2))
	same := make([]r3.Vector, 50)
	for i := range same {
		same[i] = r3.Vector{X: 1, Y: 2, Z: 3}
	}

	tests := []struct {
		name   string
		points []r3.Vector
		params Params
		want   error
	}{
		{"no points", nil, DefaultParams(10, 0), ErrInsufficientData},
		{"one point", cylinder[:1], DefaultParams(10, 0), ErrInsufficientData},
		{"zero variance", same, DefaultParams(10, 0), ErrDegenerateGeometry},
		{"step longer than cloud", cylinder, DefaultParams(80, 0), ErrDegenerateGeometry},
		{"margin swallows interior", cylinder, DefaultParams(10, 50), ErrDegenerateGeometry},
		{"non-positive step", cylinder, DefaultParams(0, 0), ErrInvalidArgument},
		{"NaN point", append([]r3.Vector{{X: math.NaN()}}, cylinder...), DefaultParams(10, 0), ErrInvalidArgument},
		{"window never fills", cylinder, func() Params {
			p := DefaultParams(10, 0)
			p.MinWindowPoints = 1000
			return p
		}(), ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Fit(context.Background(), tt.points, tt.params)
			assert.Nil(t, tr)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFitErrorStage(t *testing.T) {
	_, err := Fit(context.Background(), []r3.Vector{{}, {X: 1}}, DefaultParams(10, 0))
	var fe *FitError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "pca", fe.Stage)
	assert.Equal(t, -1, fe.Index)
	assert.Contains(t, err.Error(), "pca")
}
