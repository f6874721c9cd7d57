package shell

import (
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/geom"
)

// Transform is a fitted shell coordinate system. It is immutable apart from
// the surface mesh cache and safe for concurrent use.
type Transform struct {
	cps        []ControlPoint
	params     Params
	generation uint64
	blender    Blender

	mu      sync.Mutex
	mesh    *Mesh
	meshKey meshKey
}

func newTransform(cps []ControlPoint, params Params, generation uint64) *Transform {
	own := make([]ControlPoint, len(cps))
	copy(own, cps)
	params.Progress = nil
	return &Transform{
		cps:        own,
		params:     params,
		generation: generation,
		blender:    NewBlender(params.blending()),
	}
}

// ready returns ErrNotFitted for a nil or empty transform.
func (t *Transform) ready() error {
	if t == nil || len(t.cps) < 2 {
		return ErrNotFitted
	}
	return nil
}

// Fitted reports whether t holds a usable fit.
func (t *Transform) Fitted() bool { return t.ready() == nil }

// Len returns the number of control points.
func (t *Transform) Len() int {
	if t == nil {
		return 0
	}
	return len(t.cps)
}

// ControlPoints returns a copy of the control point sequence.
func (t *Transform) ControlPoints() []ControlPoint {
	if t == nil {
		return nil
	}
	out := make([]ControlPoint, len(t.cps))
	copy(out, t.cps)
	return out
}

// ControlPoint returns control point i.
func (t *Transform) ControlPoint(i int) (ControlPoint, error) {
	if err := t.ready(); err != nil {
		return ControlPoint{}, err
	}
	if i < 0 || i >= len(t.cps) {
		return ControlPoint{}, fmt.Errorf("%w: control point %d out of range [0, %d)", ErrInvalidArgument, i, len(t.cps))
	}
	return t.cps[i], nil
}

// Params returns the parameters the transform was fitted with.
func (t *Transform) Params() Params {
	if t == nil {
		return Params{}
	}
	return t.params
}

// TotalLength returns the arc length of the axis from the first to the last
// control point.
func (t *Transform) TotalLength() float64 {
	if t.ready() != nil {
		return 0
	}
	return t.cps[len(t.cps)-1].Offset
}

// TailCount returns the number of extrapolated control points at each end.
func (t *Transform) TailCount() int {
	if t == nil {
		return 0
	}
	return t.params.TailCount()
}

// Generation identifies the state of the control points. It changes
// whenever control points or ellipses change and keys derived caches.
func (t *Transform) Generation() uint64 {
	if t == nil {
		return 0
	}
	return t.generation
}

// Blending returns the blending policy used by queries.
func (t *Transform) Blending() BlendPolicy {
	if t == nil {
		return ""
	}
	return t.params.blending()
}

// WithBlending returns a transform sharing t's fit that answers queries
// with the given blending policy.
func (t *Transform) WithBlending(policy BlendPolicy) (*Transform, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	switch policy {
	case BlendGaussian, BlendNearestSegment:
	default:
		return nil, fmt.Errorf("%w: unknown blending policy %q", ErrInvalidArgument, policy)
	}
	params := t.params
	params.Blending = policy
	return newTransform(t.cps, params, t.generation), nil
}

// CheckFrames returns an error for the first control point whose frame is
// not orthonormal within tol.
func (t *Transform) CheckFrames(tol float64) error {
	if err := t.ready(); err != nil {
		return err
	}
	for i, cp := range t.cps {
		if !geom.IsOrthonormal(cp.Frame, tol) {
			return &FitError{Stage: "frames", Index: i, Err: fmt.Errorf("%w: frame is not orthonormal", ErrNumericalInstability)}
		}
	}
	return nil
}

// Snapshot is the persistent form of a Transform. Derived attributes are
// not stored; FromSnapshot recomputes them. Zero fitting parameters, as in
// snapshots written before they were stored, restore as their defaults.
type Snapshot struct {
	Positions  []r3.Vector
	Ellipses   []Ellipse
	Generation uint64

	StepLength   float64
	MarginLength float64
	Seed         int64
	Frames       FrameStrategy
	Blending     BlendPolicy

	ReferencePoint    *r3.Vector
	AxisDirection     *r3.Vector
	AxisIterations    int
	EllipseIterations int
	RANSACTrials      int
	RANSACSampleSize  int
	MinWindowPoints   int
	WindowGrowth      float64
	InlierThreshold   float64
	Workers           int
}

// Snapshot returns the persistent state of t.
func (t *Transform) Snapshot() (Snapshot, error) {
	if err := t.ready(); err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{
		Positions:    make([]r3.Vector, len(t.cps)),
		Ellipses:     make([]Ellipse, len(t.cps)),
		Generation:   t.generation,
		StepLength:   t.params.StepLength,
		MarginLength: t.params.MarginLength,
		Seed:         t.params.Seed,
		Frames:       t.params.frames(),
		Blending:     t.params.blending(),

		ReferencePoint:    copyVector(t.params.ReferencePoint),
		AxisDirection:     copyVector(t.params.AxisDirection),
		AxisIterations:    t.params.AxisIterations,
		EllipseIterations: t.params.EllipseIterations,
		RANSACTrials:      t.params.RANSACTrials,
		RANSACSampleSize:  t.params.RANSACSampleSize,
		MinWindowPoints:   t.params.MinWindowPoints,
		WindowGrowth:      t.params.WindowGrowth,
		InlierThreshold:   t.params.InlierThreshold,
		Workers:           t.params.Workers,
	}
	for i, cp := range t.cps {
		s.Positions[i] = cp.Position
		s.Ellipses[i] = cp.Ellipse
	}
	return s, nil
}

// FromSnapshot rebuilds a transform from its persistent state.
func FromSnapshot(s Snapshot) (*Transform, error) {
	if len(s.Positions) < 2 {
		return nil, fmt.Errorf("%w: snapshot has %d control points", ErrNotFitted, len(s.Positions))
	}
	if len(s.Ellipses) != len(s.Positions) {
		return nil, fmt.Errorf("%w: snapshot has %d positions but %d ellipses",
			ErrInvalidArgument, len(s.Positions), len(s.Ellipses))
	}

	params := DefaultParams(s.StepLength, s.MarginLength)
	params.Seed = s.Seed
	params.Frames = s.Frames
	params.Blending = s.Blending
	params.ReferencePoint = copyVector(s.ReferencePoint)
	params.AxisDirection = copyVector(s.AxisDirection)
	params.Workers = s.Workers
	setIfPositive(&params.AxisIterations, s.AxisIterations)
	setIfPositive(&params.EllipseIterations, s.EllipseIterations)
	setIfPositive(&params.RANSACTrials, s.RANSACTrials)
	setIfPositive(&params.RANSACSampleSize, s.RANSACSampleSize)
	setIfPositive(&params.MinWindowPoints, s.MinWindowPoints)
	setIfPositive(&params.WindowGrowth, s.WindowGrowth)
	setIfPositive(&params.InlierThreshold, s.InlierThreshold)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cps := make([]ControlPoint, len(s.Positions))
	for i := range cps {
		if !geom.IsFinite(s.Positions[i]) || !s.Ellipses[i].Valid() {
			return nil, stageError("snapshot", i, fmt.Errorf("%w: non-finite control point", ErrNumericalInstability))
		}
		cps[i].Position = s.Positions[i]
		cps[i].Ellipse = s.Ellipses[i].canonical()
	}
	if err := computeFrames(cps, params.frames()); err != nil {
		return nil, err
	}
	return newTransform(cps, params, s.Generation), nil
}

func copyVector(v *r3.Vector) *r3.Vector {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func setIfPositive[T int | float64](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
