package propagation

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these via errors.Is.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrConvergence     = errors.New("kepler solver did not converge")
	ErrDegenerateOrbit = errors.New("degenerate orbit")
)

// InvalidInputError reports a non-finite or out-of-range input value.
type InvalidInputError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Value != 0 {
		return fmt.Sprintf("invalid %s (%g): %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// ConvergenceError reports a Kepler solve that exhausted its iteration budget.
type ConvergenceError struct {
	MeanAnomaly  float64
	Eccentricity float64
	Iterations   int
	Residual     float64 // E - e·sin(E) - M at the last iterate
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("kepler solver did not converge after %d iterations (M=%g, e=%g, residual=%.3e)",
		e.Iterations, e.MeanAnomaly, e.Eccentricity, e.Residual)
}

func (e *ConvergenceError) Is(target error) bool { return target == ErrConvergence }

// DegenerateOrbitError reports a semi-latus rectum too small for the J2 model.
type DegenerateOrbitError struct {
	SemiLatusRectum float64 // meters
}

func (e *DegenerateOrbitError) Error() string {
	return fmt.Sprintf("degenerate orbit: semi-latus rectum %.3e m", e.SemiLatusRectum)
}

func (e *DegenerateOrbitError) Is(target error) bool { return target == ErrDegenerateOrbit }

// SampleError attributes a failure to a single sample of the time grid.
type SampleError struct {
	Index int
	Time  float64
	Err   error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample %d at t=%.3fs: %v", e.Index, e.Time, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// Kind returns a stable snake_case label for err, used in API responses
// and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConvergence):
		return "convergence"
	case errors.Is(err, ErrDegenerateOrbit):
		return "degenerate_orbit"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
