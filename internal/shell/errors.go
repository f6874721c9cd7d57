package shell

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when there are fewer points than an
	// estimate needs (covariance, ellipse).
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateGeometry is returned for zero-variance axes, zero-length
	// segments and cross-section windows that never reach the minimum point
	// count.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrNumericalInstability is returned when a fit produces non-finite
	// values.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrCancelled is returned when the fit context is cancelled. No partial
	// transform is returned alongside it.
	ErrCancelled = errors.New("fit cancelled")

	// ErrNotFitted is returned by queries on a transform that never achieved
	// a well-posed fit.
	ErrNotFitted = errors.New("transform not fitted")

	// ErrInvalidArgument is returned for out-of-range parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FitError records where in the pipeline a fit failed. Index is the control
// point index, or -1 when the failure is not tied to a control point.
type FitError struct {
	Stage string
	Index int
	Err   error
}

func (e *FitError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s (control point %d): %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }

func stageError(stage string, index int, err error) error {
	var fe *FitError
	if errors.As(err, &fe) {
		return err
	}
	return &FitError{Stage: stage, Index: index, Err: err}
}
