package shell

import (
	"fmt"
	"math"
	"runtime"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/monitoring"
)

// FrameStrategy selects how local frames are carried along the axis.
type FrameStrategy string

const (
	// FrameParallelTransport rotates each frame onto the next tangent with
	// the minimal rotation (Bishop frame). It does not twist when the
	// tangent passes near a global direction.
	FrameParallelTransport FrameStrategy = "parallel_transport"

	// FrameFixedReference rotates the global basis onto every tangent
	// independently, starting from the global x axis. Frames can twist
	// abruptly when a tangent is close to -x.
	FrameFixedReference FrameStrategy = "fixed_reference"
)

// BlendPolicy selects how control points are combined by queries.
type BlendPolicy string

const (
	// BlendGaussian blends every control point with a Gaussian kernel of
	// width segmentLength/2 over the axial distance.
	BlendGaussian BlendPolicy = "gaussian"

	// BlendNearestSegment linearly interpolates the two control points of
	// the nearest axis segment.
	BlendNearestSegment BlendPolicy = "nearest_segment"
)

// Params controls a fit. Use DefaultParams and override what is needed;
// StepLength must always be set.
type Params struct {
	// StepLength is the target spacing between control points.
	StepLength float64
	// MarginLength is the axial length at each end whose control points are
	// extrapolated instead of fitted.
	MarginLength float64

	// ReferencePoint, when set, fixes a point the initial axis passes
	// through. Defaults to the cloud centroid.
	ReferencePoint *r3.Vector
	// AxisDirection, when set, fixes the initial axis direction instead of
	// using the principal component.
	AxisDirection *r3.Vector

	AxisIterations    int     // axis refinement passes per outer iteration
	EllipseIterations int     // outer iterations (refine + ellipse fit)
	RANSACTrials      int     // RANSAC trials per control point
	RANSACSampleSize  int     // points drawn per RANSAC trial
	MinWindowPoints   int     // minimum points in a cross-section window
	WindowGrowth      float64 // factor applied to the window half-width until MinWindowPoints is reached
	InlierThreshold   float64 // max relative boundary distance |sqrt(vᵗQv) - 1| of an inlier

	// Seed makes RANSAC sampling deterministic.
	Seed int64
	// Workers bounds parallelism; 0 uses GOMAXPROCS.
	Workers int

	Frames   FrameStrategy
	Blending BlendPolicy

	// Progress, when set, receives stage notifications. It may be called
	// from several goroutines at once.
	Progress monitoring.Progress
}

// DefaultParams returns Params with production defaults for the given step
// and margin lengths.
func DefaultParams(stepLength, marginLength float64) Params {
	return Params{
		StepLength:        stepLength,
		MarginLength:      marginLength,
		AxisIterations:    5,
		EllipseIterations: 2,
		RANSACTrials:      300,
		RANSACSampleSize:  6,
		MinWindowPoints:   20,
		WindowGrowth:      1.5,
		InlierThreshold:   0.05,
		Seed:              1,
		Frames:            FrameParallelTransport,
		Blending:          BlendGaussian,
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	switch {
	case !(p.StepLength > 0) || math.IsInf(p.StepLength, 0):
		return fmt.Errorf("%w: step length must be positive, got %g", ErrInvalidArgument, p.StepLength)
	case p.MarginLength < 0 || math.IsNaN(p.MarginLength):
		return fmt.Errorf("%w: margin length must be non-negative, got %g", ErrInvalidArgument, p.MarginLength)
	case p.AxisIterations < 1:
		return fmt.Errorf("%w: axis iterations must be at least 1, got %d", ErrInvalidArgument, p.AxisIterations)
	case p.EllipseIterations < 1:
		return fmt.Errorf("%w: ellipse iterations must be at least 1, got %d", ErrInvalidArgument, p.EllipseIterations)
	case p.RANSACTrials < 1:
		return fmt.Errorf("%w: RANSAC trials must be at least 1, got %d", ErrInvalidArgument, p.RANSACTrials)
	case p.RANSACSampleSize < minConicPoints:
		return fmt.Errorf("%w: RANSAC sample size must be at least 5, got %d", ErrInvalidArgument, p.RANSACSampleSize)
	case p.MinWindowPoints < p.RANSACSampleSize:
		return fmt.Errorf("%w: min window points (%d) must be >= RANSAC sample size (%d)", ErrInvalidArgument, p.MinWindowPoints, p.RANSACSampleSize)
	case !(p.WindowGrowth > 1):
		return fmt.Errorf("%w: window growth must be > 1, got %g", ErrInvalidArgument, p.WindowGrowth)
	case !(p.InlierThreshold > 0):
		return fmt.Errorf("%w: inlier threshold must be positive, got %g", ErrInvalidArgument, p.InlierThreshold)
	case p.Workers < 0:
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidArgument, p.Workers)
	}
	switch p.Frames {
	case FrameParallelTransport, FrameFixedReference, "":
	default:
		return fmt.Errorf("%w: unknown frame strategy %q", ErrInvalidArgument, p.Frames)
	}
	switch p.Blending {
	case BlendGaussian, BlendNearestSegment, "":
	default:
		return fmt.Errorf("%w: unknown blending policy %q", ErrInvalidArgument, p.Blending)
	}
	if p.AxisDirection != nil && p.AxisDirection.Norm() < 1e-12 {
		return fmt.Errorf("%w: fixed axis direction must be non-zero", ErrInvalidArgument)
	}
	return nil
}

// TailCount returns the number of extrapolated control points at each end.
func (p Params) TailCount() int {
	if p.MarginLength <= 0 {
		return 0
	}
	return int(math.Ceil(p.MarginLength/p.StepLength - 1e-9))
}

// workerLimit resolves a Workers setting to a goroutine limit.
func workerLimit(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

func (p Params) frames() FrameStrategy {
	if p.Frames == "" {
		return FrameParallelTransport
	}
	return p.Frames
}

func (p Params) blending() BlendPolicy {
	if p.Blending == "" {
		return BlendGaussian
	}
	return p.Blending
}

func (p Params) progress(stage string, done, total int) {
	if p.Progress != nil {
		p.Progress.Stage(stage, done, total)
	}
}
