package shell

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lmb-freiburg/irocs/internal/synth"
)

func TestSnapshotRestore(t *testing.T) {
	tr := fittedCylinder(t)
	s, err := tr.Snapshot()
	require.NoError(t, err)

	// Snapshots travel as gob.
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(s))
	var decoded Snapshot
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))

	restored, err := FromSnapshot(decoded)
	require.NoError(t, err)
	assert.Equal(t, tr.Generation(), restored.Generation())
	assert.Equal(t, tr.TailCount(), restored.TailCount())
	assert.InDelta(t, tr.TotalLength(), restored.TotalLength(), 1e-9)

	opt := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(tr.ControlPoints(), restored.ControlPoints(), opt); diff != "" {
		t.Errorf("restored control points differ (-fitted +restored):\n%s", diff)
	}

	p := r3.Vector{X: 77, Y: 2, Z: -3}
	want, err := tr.NormalizedCoordinates(p)
	require.NoError(t, err)
	got, err := restored.NormalizedCoordinates(p)
	require.NoError(t, err)
	assert.InDelta(t, want.Axial, got.Axial, 1e-9)
	assert.InDelta(t, want.Radial, got.Radial, 1e-9)
}

func TestSnapshotKeepsFitParams(t *testing.T) {
	pts := generate(t, synth.Cylinder(80, 3, 600, 0.1, 14))
	p := DefaultParams(10, 10)
	p.AxisIterations = 3
	p.EllipseIterations = 1
	p.RANSACTrials = 120
	p.RANSACSampleSize = 7
	p.MinWindowPoints = 30
	p.WindowGrowth = 2
	p.InlierThreshold = 0.08
	p.Workers = 2
	p.Seed = 5
	p.AxisDirection = &r3.Vector{X: 1}
	p.ReferencePoint = &r3.Vector{X: 40}
	p.Blending = BlendNearestSegment
	tr, err := Fit(context.Background(), pts, p)
	require.NoError(t, err)

	s, err := tr.Snapshot()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(s))
	var decoded Snapshot
	require.NoError(t, gob.NewDecoder(&buf).Decode(&decoded))

	restored, err := FromSnapshot(decoded)
	require.NoError(t, err)
	if diff := cmp.Diff(tr.Params(), restored.Params()); diff != "" {
		t.Errorf("restored params differ (-fitted +restored):\n%s", diff)
	}

	// Snapshots without fitting parameters restore with the defaults.
	old := Snapshot{Positions: s.Positions, Ellipses: s.Ellipses, StepLength: 10, MarginLength: 10, Seed: 5}
	restored, err = FromSnapshot(old)
	require.NoError(t, err)
	want := DefaultParams(10, 10)
	want.Seed = 5
	if diff := cmp.Diff(want, restored.Params()); diff != "" {
		t.Errorf("params of an older snapshot differ (-want +got):\n%s", diff)
	}
}

func TestFromSnapshotErrors(t *testing.T) {
	good := Snapshot{
		StepLength: 1,
		Positions:  []r3.Vector{{}, {X: 1}, {X: 2}},
		Ellipses:   []Ellipse{{RA: 1, RB: 1}, {RA: 1, RB: 1}, {RA: 1, RB: 1}},
	}
	_, err := FromSnapshot(good)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Snapshot)
		want   error
	}{
		{"empty", func(s *Snapshot) { s.Positions, s.Ellipses = nil, nil }, ErrNotFitted},
		{"length mismatch", func(s *Snapshot) { s.Ellipses = s.Ellipses[:2] }, ErrInvalidArgument},
		{"bad step", func(s *Snapshot) { s.StepLength = 0 }, ErrInvalidArgument},
		{"bad frames", func(s *Snapshot) { s.Frames = "twisted" }, ErrInvalidArgument},
		{"NaN position", func(s *Snapshot) { s.Positions[1].Y = math.NaN() }, ErrNumericalInstability},
		{"flat ellipse", func(s *Snapshot) { s.Ellipses[2].RB = 0 }, ErrNumericalInstability},
		{"coincident", func(s *Snapshot) { s.Positions[2] = s.Positions[1] }, ErrDegenerateGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			s.Positions = append([]r3.Vector(nil), good.Positions...)
			s.Ellipses = append([]Ellipse(nil), good.Ellipses...)
			tt.mutate(&s)
			_, err := FromSnapshot(s)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTransformAccessors(t *testing.T) {
	tr := straightTransform(t, 5, 2, Ellipse{RA: 1, RB: 1})
	assert.True(t, tr.Fitted())
	assert.Equal(t, 5, tr.Len())
	assert.Equal(t, BlendGaussian, tr.Blending())

	cp, err := tr.ControlPoint(3)
	require.NoError(t, err)
	assert.Equal(t, 6.0, cp.Offset)
	_, err = tr.ControlPoint(5)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	// The returned slice is a copy.
	cps := tr.ControlPoints()
	cps[0].Position.X = 100
	again, err := tr.ControlPoint(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, again.Position.X)

	view, err := tr.WithBlending(BlendNearestSegment)
	require.NoError(t, err)
	assert.Equal(t, BlendNearestSegment, view.Blending())
	assert.Equal(t, BlendGaussian, tr.Blending())
	assert.Equal(t, tr.Generation(), view.Generation())

	_, err = tr.WithBlending("cubic")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestCheckFrames(t *testing.T) {
	tr := straightTransform(t, 4, 1, Ellipse{RA: 1, RB: 1})
	require.NoError(t, tr.CheckFrames(1e-12))

	tr.cps[2].Frame[0][1] = 0.5
	err := tr.CheckFrames(1e-6)
	var fe *FitError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Index)
	assert.True(t, errors.Is(err, ErrNumericalInstability))
}
