package domain

import (
	"math"
)

// StepDuration returns the spacing, in seconds, between the first two
// entries of a forecast step coordinate.
//
// Policy: the duration is value[1] - value[0] and is applied uniformly to
// every step. Irregular axes are not re-derived pair by pair, so
// accumulations for steps with a different spacing will be biased.
// Duration coordinates are stored in seconds; numeric coordinates are read
// as seconds too.
func StepDuration(step Coord) (float64, error) {
	if len(step.Values) < 2 {
		return 0, &InsufficientStepsError{Dim: step.Name, Len: len(step.Values)}
	}
	seconds := step.Values[1] - step.Values[0]
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return 0, &InvalidTimestepError{Dim: step.Name, Seconds: seconds}
	}
	return seconds, nil
}

// StepDurationOf resolves the step axis of obj and derives its duration.
// It returns the resolved dimension name alongside the duration.
func StepDurationOf(obj CoordSource) (string, float64, error) {
	dim, err := ResolveDim(obj, RoleStep)
	if err != nil {
		return "", 0, err
	}
	c, ok := obj.Coord(dim)
	if !ok {
		// The axis exists but carries no values to derive spacing from.
		return "", 0, &CoordinateNotFoundError{Role: RoleStep, Candidates: []string{dim}, Available: obj.CoordNames()}
	}
	seconds, err := StepDuration(c)
	if err != nil {
		return "", 0, err
	}
	return dim, seconds, nil
}
