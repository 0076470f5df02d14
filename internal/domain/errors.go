package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the derivation layer. Every typed error below
// matches exactly one of these through errors.Is.
var (
	ErrCoordinateNotFound = errors.New("coordinate not found")
	ErrInsufficientSteps  = errors.New("insufficient forecast steps")
	ErrInvalidTimestep    = errors.New("invalid timestep")
	ErrRange              = errors.New("value out of range")
	ErrEmptyEnsemble      = errors.New("empty ensemble")
)

// CoordinateNotFoundError reports that none of the candidate names for a
// role exist in a collection.
type CoordinateNotFoundError struct {
	Role       Role     // Empty when a single explicit name was requested.
	Candidates []string // Names tried, in priority order.
	Available  []string // Dimension (and coordinate) names actually present.
}

func (e *CoordinateNotFoundError) Error() string {
	what := "dimension"
	if e.Role != "" {
		what = string(e.Role) + " coordinate"
	}
	return fmt.Sprintf("could not find %s (tried %v); available: %v", what, e.Candidates, e.Available)
}

// Is reports whether target is ErrCoordinateNotFound.
func (e *CoordinateNotFoundError) Is(target error) bool { return target == ErrCoordinateNotFound }

// InsufficientStepsError reports a step axis too short to derive a timestep.
type InsufficientStepsError struct {
	Dim string
	Len int
}

func (e *InsufficientStepsError) Error() string {
	return fmt.Sprintf("step coordinate %q has %d entries, at least 2 are required", e.Dim, e.Len)
}

// Is reports whether target is ErrInsufficientSteps.
func (e *InsufficientStepsError) Is(target error) bool { return target == ErrInsufficientSteps }

// InvalidTimestepError reports a zero, negative or non-finite step spacing.
type InvalidTimestepError struct {
	Dim     string
	Seconds float64
}

func (e *InvalidTimestepError) Error() string {
	return fmt.Sprintf("step coordinate %q yields a non-positive timestep of %g s", e.Dim, e.Seconds)
}

// Is reports whether target is ErrInvalidTimestep.
func (e *InvalidTimestepError) Is(target error) bool { return target == ErrInvalidTimestep }

// RangeError reports an index or level outside its permitted closed range.
type RangeError struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s value %g is outside [%g, %g]", e.Name, e.Value, e.Min, e.Max)
}

// Is reports whether target is ErrRange.
func (e *RangeError) Is(target error) bool { return target == ErrRange }

// EmptyEnsembleError reports an ensemble dimension of length zero.
type EmptyEnsembleError struct {
	Dim string
}

func (e *EmptyEnsembleError) Error() string {
	return fmt.Sprintf("ensemble dimension %q has no members", e.Dim)
}

// Is reports whether target is ErrEmptyEnsemble.
func (e *EmptyEnsembleError) Is(target error) bool { return target == ErrEmptyEnsemble }

func indexRangeError(dim string, index, length int) *RangeError {
	return &RangeError{Name: dim, Value: float64(index), Min: 0, Max: float64(length - 1)}
}
