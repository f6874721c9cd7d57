package shell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/geom"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

// fitter holds the mutable state of one Fit call. The point cloud is shared
// read-only with the caller.
type fitter struct {
	points  []r3.Vector
	params  Params
	workers int

	cps []ControlPoint
	// first and last bound the interior control points; the rest are tails.
	first, last int
	// extent is the initial axis length; it bounds window growth.
	extent float64

	generation uint64
}

// Fit fits an intrinsic shell coordinate system to points.
//
// The returned transform owns copies of all fitted state; points is not
// modified or retained. Fit checks ctx between passes and between control
// points. A cancelled fit returns an error wrapping both ErrCancelled and
// ctx.Err(), and no transform.
func Fit(ctx context.Context, points []r3.Vector, params Params) (*Transform, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	f, err := newFitter(points, params)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("[shell] fit: points=%d control_points=%d interior=[%d,%d] frames=%s",
		len(points), len(f.cps), f.first, f.last, params.frames())

	for outer := 0; outer < params.EllipseIterations; outer++ {
		for pass := 0; pass < params.AxisIterations; pass++ {
			if err := ctx.Err(); err != nil {
				return nil, cancelled(err)
			}
			if err := f.refineAxis(ctx); err != nil {
				return nil, f.abort(ctx, "axis", err)
			}
			params.progress("axis", outer*params.AxisIterations+pass+1, params.EllipseIterations*params.AxisIterations)
		}
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		if err := f.fitCrossSections(ctx, outer); err != nil {
			return nil, f.abort(ctx, "ellipse", err)
		}
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	t := newTransform(f.cps, params, f.generation)
	monitoring.Logf("[shell] fit: done in %v, total_length=%.4g generation=%d",
		time.Since(start).Round(time.Millisecond), t.TotalLength(), f.generation)
	return t, nil
}

func newFitter(points []r3.Vector, params Params) (*fitter, error) {
	for i, p := range points {
		if !geom.IsFinite(p) {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrInvalidArgument, i)
		}
	}
	positions, err := initialControlPoints(points, params)
	if err != nil {
		return nil, stageError("pca", -1, err)
	}

	n := len(positions)
	tails := params.TailCount()
	first, last := tails, n-1-tails
	if last-first+1 < 2 {
		return nil, stageError("pca", -1, fmt.Errorf("%w: %d control points leave %d interior points after %d tail points per end, need at least 2",
			ErrDegenerateGeometry, n, max(last-first+1, 0), tails))
	}

	f := &fitter{
		points:  points,
		params:  params,
		workers: workerLimit(params.Workers),
		cps:     make([]ControlPoint, n),
		first:   first,
		last:    last,
		extent:  positions[n-1].Distance(positions[0]),
	}
	if err := f.setPositions(positions); err != nil {
		return nil, err
	}
	return f, nil
}

// positions returns a copy of the current control point positions.
func (f *fitter) positions() []r3.Vector {
	out := make([]r3.Vector, len(f.cps))
	for i, cp := range f.cps {
		out[i] = cp.Position
	}
	return out
}

// setPositions moves the control points and recomputes all derived
// attributes together.
func (f *fitter) setPositions(positions []r3.Vector) error {
	for i := range f.cps {
		f.cps[i].Position = positions[i]
	}
	if err := computeFrames(f.cps, f.params.frames()); err != nil {
		return err
	}
	f.generation++
	return nil
}

// abort turns a pass error into the error returned by Fit. Errors caused by
// ctx are reported as cancellation.
func (f *fitter) abort(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelled(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelled(err)
	}
	monitoring.Logf("[shell] fit: %s stage failed: %v", stage, err)
	return stageError(stage, -1, err)
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// validate rejects fits that produced non-finite state.
func (f *fitter) validate() error {
	for i, cp := range f.cps {
		if !geom.IsFinite(cp.Position) || !geom.IsFinite(cp.Direction) {
			return stageError("validate", i, fmt.Errorf("%w: non-finite control point", ErrNumericalInstability))
		}
		if !cp.Ellipse.Valid() {
			return stageError("validate", i, fmt.Errorf("%w: invalid ellipse %+v", ErrNumericalInstability, cp.Ellipse))
		}
	}
	return nil
}
