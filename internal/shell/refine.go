package shell

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
)

// kernelCutoff drops points whose Gaussian weight is below exp(-0.5·16).
const kernelCutoff = 4.0

// refineAxis runs one axis refinement pass: every interior control point is
// moved laterally onto the Gaussian-weighted centroid of the cloud around
// it, the interior is smoothed, the tails are re-extrapolated and the frames
// are recomputed.
func (f *fitter) refineAxis(ctx context.Context) error {
	positions := f.positions()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i := f.first; i <= f.last; i++ {
		if gctx.Err() != nil {
			break
		}
		cp := f.cps[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			positions[i] = recenter(f.points, cp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	smoothInterior(positions, f.first, f.last)
	extrapolateTails(positions, f.first, f.last)
	return f.setPositions(positions)
}

// recenter returns cp's position moved onto the lateral component of the
// Gaussian-weighted centroid of points, weight exp(-0.5·(a/(L/2))²) for
// axial coordinate a and segment length L. The axial component of the
// update is discarded so control points keep their spacing.
func recenter(points []r3.Vector, cp ControlPoint) r3.Vector {
	sigma := cp.SegmentLength / 2
	var sum r3.Vector
	var sumW float64
	for _, p := range points {
		a := cp.Direction.Dot(p.Sub(cp.Position)) / sigma
		if math.Abs(a) > kernelCutoff {
			continue
		}
		w := math.Exp(-0.5 * a * a)
		sum = sum.Add(p.Mul(w))
		sumW += w
	}
	if sumW <= 0 {
		return cp.Position
	}
	local := cp.ToLocal(sum.Mul(1 / sumW))
	local.X = 0
	return cp.ToWorld(local)
}

// smoothInterior applies a 3-point moving average to pos[first..last].
// The two boundary points are re-extrapolated from their smoothed
// neighbours: quadratically when at least five interior points exist,
// linearly for four, and left untouched below that.
func smoothInterior(pos []r3.Vector, first, last int) {
	count := last - first + 1
	if count < 3 {
		return
	}
	sm := make([]r3.Vector, len(pos))
	copy(sm, pos)
	for i := first + 1; i < last; i++ {
		sm[i] = pos[i-1].Add(pos[i]).Add(pos[i+1]).Mul(1.0 / 3)
	}
	switch {
	case count >= 5:
		sm[first] = sm[first+1].Mul(3).Sub(sm[first+2].Mul(3)).Add(sm[first+3])
		sm[last] = sm[last-1].Mul(3).Sub(sm[last-2].Mul(3)).Add(sm[last-3])
	case count == 4:
		sm[first] = sm[first+1].Mul(2).Sub(sm[first+2])
		sm[last] = sm[last-1].Mul(2).Sub(sm[last-2])
	}
	copy(pos[first:last+1], sm[first:last+1])
}

// extrapolateTails places pos[:first] and pos[last+1:] on the lines through
// the two outermost interior points at each end, keeping their spacing.
func extrapolateTails(pos []r3.Vector, first, last int) {
	if last <= first {
		return
	}
	head := pos[first].Sub(pos[first+1])
	for i := first - 1; i >= 0; i-- {
		pos[i] = pos[first].Add(head.Mul(float64(first - i)))
	}
	tail := pos[last].Sub(pos[last-1])
	for i := last + 1; i < len(pos); i++ {
		pos[i] = pos[last].Add(tail.Mul(float64(i - last)))
	}
}
