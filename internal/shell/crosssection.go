package shell

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
)

var errNoEllipse = fmt.Errorf("%w: no ellipse fits the cross-section window", ErrDegenerateGeometry)

// fitCrossSections runs one cross-section pass: an ellipse is fitted at every
// interior control point, each control point is moved to its ellipse
// centre, ellipse parameters are smoothed along the axis and tail control
// points inherit the ellipse of their nearest interior neighbour.
func (f *fitter) fitCrossSections(ctx context.Context, iteration int) error {
	ellipses := make([]Ellipse, len(f.cps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	total := f.last - f.first + 1
	for i := f.first; i <= f.last; i++ {
		if gctx.Err() != nil {
			break
		}
		cp := f.cps[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			xs, ys, err := f.window(cp)
			if err != nil {
				return stageError("ellipse", i, err)
			}
			e, err := f.ransacEllipse(gctx, iteration, i, xs, ys)
			if err != nil {
				return stageError("ellipse", i, err)
			}
			ellipses[i] = e
			f.params.progress("ellipse", i-f.first+1, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	positions := f.positions()
	for i := f.first; i <= f.last; i++ {
		e := ellipses[i]
		positions[i] = f.cps[i].ToWorld(r3.Vector{Y: e.CX, Z: e.CY})
		e.CX, e.CY = 0, 0
		ellipses[i] = e
	}
	smoothEllipses(ellipses, f.first, f.last)
	for i := 0; i < f.first; i++ {
		ellipses[i] = ellipses[f.first]
	}
	for i := f.last + 1; i < len(ellipses); i++ {
		ellipses[i] = ellipses[f.last]
	}
	extrapolateTails(positions, f.first, f.last)

	for i := range f.cps {
		f.cps[i].Ellipse = ellipses[i]
	}
	return f.setPositions(positions)
}

// window collects the lateral coordinates of all cloud points within an
// axial window around cp. The half-width starts at half the segment length
// and grows by Params.WindowGrowth until Params.MinWindowPoints are inside.
func (f *fitter) window(cp ControlPoint) ([]float64, []float64, error) {
	half := cp.SegmentLength / 2
	limit := f.extent + cp.SegmentLength
	var xs, ys []float64
	for {
		xs, ys = xs[:0], ys[:0]
		for _, p := range f.points {
			l := cp.ToLocal(p)
			if math.Abs(l.X) <= half {
				xs = append(xs, l.Y)
				ys = append(ys, l.Z)
			}
		}
		if len(xs) >= f.params.MinWindowPoints {
			return xs, ys, nil
		}
		if half > limit {
			return nil, nil, fmt.Errorf("%w: only %d points within the widest cross-section window, need %d",
				ErrInsufficientData, len(xs), f.params.MinWindowPoints)
		}
		half *= f.params.WindowGrowth
	}
}

// smoothEllipses averages semi-axes and orientation of each interior
// ellipse with its two neighbours. Orientation differences are wrapped into
// (-π/2, π/2] because an ellipse is symmetric under rotation by π. The
// two boundary ellipses keep their fitted values.
func smoothEllipses(e []Ellipse, first, last int) {
	count := last - first + 1
	if count < 3 {
		return
	}
	sm := make([]Ellipse, len(e))
	copy(sm, e)
	for i := first + 1; i < last; i++ {
		ref := e[i].Angle
		var da float64
		for j := i - 1; j <= i+1; j++ {
			da += wrapHalfAngle(e[j].Angle - ref)
		}
		sm[i].RA = (e[i-1].RA + e[i].RA + e[i+1].RA) / 3
		sm[i].RB = (e[i-1].RB + e[i].RB + e[i+1].RB) / 3
		sm[i].Angle = ref + da/3
		sm[i] = sm[i].canonical()
	}
	copy(e[first:last+1], sm[first:last+1])
}
