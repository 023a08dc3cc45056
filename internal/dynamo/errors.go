package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrConfiguration indicates an invalid parameter detected at initialisation.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrNumericalInstability indicates a non-finite value after a step.
	ErrNumericalInstability = errors.New("dynamo: numerical instability (NaN or Inf detected)")

	// ErrAlgorithmDivergence indicates the eigenmode path disagrees with the
	// direct convolution beyond tolerance.
	ErrAlgorithmDivergence = errors.New("dynamo: eigenmode coherence diverges from direct convolution")

	// ErrBoundaryViolation indicates a coordinate that could not be wrapped.
	ErrBoundaryViolation = errors.New("dynamo: boundary violation")

	// ErrContextCanceled indicates the run was stopped between ticks.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")
)

// ConfigurationError reports a parameter that failed validation.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s = %v: %s", ErrConfiguration, e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NumericalInstabilityError names the offending field and the step at which
// a non-finite value appeared.
type NumericalInstabilityError struct {
	Field string
	Step  int
	Index int
	Value float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("%v: %s[%d] = %v at step %d", ErrNumericalInstability, e.Field, e.Index, e.Value, e.Step)
}

func (e *NumericalInstabilityError) Unwrap() error {
	return ErrNumericalInstability
}

// AlgorithmDivergenceWarning is non-fatal. A run that received one is
// flagged as running an unvalidated fast path.
type AlgorithmDivergenceWarning struct {
	MaxRelErr  float64
	MeanRelErr float64
	Tolerance  float64
	Cell       int
}

func (w *AlgorithmDivergenceWarning) Error() string {
	return fmt.Sprintf("%v: max relative error %.3g at cell %d exceeds tolerance %.3g (mean %.3g)",
		ErrAlgorithmDivergence, w.MaxRelErr, w.Cell, w.Tolerance, w.MeanRelErr)
}

func (w *AlgorithmDivergenceWarning) Unwrap() error {
	return ErrAlgorithmDivergence
}

// BoundaryViolation indicates upstream corruption: a particle coordinate that
// is non-finite or still outside the domain after wrapping.
type BoundaryViolation struct {
	Step     int
	Particle int
	Axis     int
	Coord    float64
}

func (e *BoundaryViolation) Error() string {
	return fmt.Sprintf("%v: particle %d axis %d coordinate %v at step %d",
		ErrBoundaryViolation, e.Particle, e.Axis, e.Coord, e.Step)
}

func (e *BoundaryViolation) Unwrap() error {
	return ErrBoundaryViolation
}

// CheckFinite returns a NumericalInstabilityError for the first non-finite
// entry of values, or nil.
func CheckFinite(field string, step int, values []float64) error {
	for i, v := range values {
		if !isFinite(v) {
			return &NumericalInstabilityError{Field: field, Step: step, Index: i, Value: v}
		}
	}
	return nil
}
