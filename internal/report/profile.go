// Package report renders fitted shell models as charts: a radius profile
// along the axis (PNG and HTML) and a 3-D view of the fitted surface, and
// serves them together with the model store over HTTP.
package report

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lmb-freiburg/irocs/internal/shell"
)

// ProfileSample is the cross-section at one arc length.
type ProfileSample struct {
	Offset float64 `json:"offset"`
	RA     float64 `json:"ra"`
	RB     float64 `json:"rb"`
	Angle  float64 `json:"angle"`
	Tail   bool    `json:"tail,omitempty"`
}

// Summary holds statistics over the interior control points.
type Summary struct {
	MeanRA     float64 `json:"mean_ra"`
	StdRA      float64 `json:"std_ra"`
	MeanRB     float64 `json:"mean_rb"`
	StdRB      float64 `json:"std_rb"`
	MinRB      float64 `json:"min_rb"`
	MaxRA      float64 `json:"max_ra"`
	MeanAspect float64 `json:"mean_aspect"`
}

// Profile is the cross-section of a fitted tube along its axis.
type Profile struct {
	TotalLength   float64         `json:"total_length"`
	Samples       []ProfileSample `json:"samples"`
	ControlPoints []ProfileSample `json:"control_points"`
	Summary       Summary         `json:"summary"`
}

// NewProfile samples the blended cross-section of t at n evenly spaced arc
// lengths and collects the fitted ellipse of every control point.
func NewProfile(t *shell.Transform, n int) (*Profile, error) {
	if n < 2 {
		return nil, fmt.Errorf("profile needs at least 2 samples, got %d", n)
	}
	if !t.Fitted() {
		return nil, shell.ErrNotFitted
	}

	p := &Profile{
		TotalLength: t.TotalLength(),
		Samples:     make([]ProfileSample, 0, n),
	}
	for i := 0; i < n; i++ {
		s, err := t.AxisSample(float64(i) / float64(n-1))
		if err != nil {
			return nil, err
		}
		p.Samples = append(p.Samples, ProfileSample{
			Offset: s.Offset,
			RA:     s.Ellipse.RA,
			RB:     s.Ellipse.RB,
			Angle:  s.Ellipse.Angle,
		})
	}

	cps := t.ControlPoints()
	tail := t.TailCount()
	var ra, rb, aspect []float64
	for i, cp := range cps {
		isTail := i < tail || i >= len(cps)-tail
		p.ControlPoints = append(p.ControlPoints, ProfileSample{
			Offset: cp.Offset,
			RA:     cp.Ellipse.RA,
			RB:     cp.Ellipse.RB,
			Angle:  cp.Ellipse.Angle,
			Tail:   isTail,
		})
		if !isTail {
			ra = append(ra, cp.Ellipse.RA)
			rb = append(rb, cp.Ellipse.RB)
			aspect = append(aspect, cp.Ellipse.RB/cp.Ellipse.RA)
		}
	}
	p.Summary = summarize(ra, rb, aspect)
	return p, nil
}

func summarize(ra, rb, aspect []float64) Summary {
	if len(ra) == 0 {
		return Summary{}
	}
	var s Summary
	s.MeanRA, s.StdRA = stat.MeanStdDev(ra, nil)
	s.MeanRB, s.StdRB = stat.MeanStdDev(rb, nil)
	s.MinRB = floats.Min(rb)
	s.MaxRA = floats.Max(ra)
	s.MeanAspect = stat.Mean(aspect, nil)
	// A single sample has no spread.
	if math.IsNaN(s.StdRA) {
		s.StdRA = 0
	}
	if math.IsNaN(s.StdRB) {
		s.StdRB = 0
	}
	return s
}
