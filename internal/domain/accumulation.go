package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
)

// AccumulationUnits is the unit of every accumulation field.
// 1 kg m-2 of liquid water is 1 mm of depth.
const AccumulationUnits = "mm"

// MaxWindow is the longest window ParseWindow accepts. It covers the
// 35-day extended GEFS range with room to spare.
const MaxWindow = 366 * 24 * time.Hour

// StepAccumulation converts a rate field (kg m-2 s-1, i.e. mm s-1) into the
// depth deposited during one step of the given length in seconds. Dims and
// coordinates are unchanged. The caller guarantees seconds > 0; for a
// non-negative rate the product is non-negative.
func StepAccumulation(rate *DataArray, seconds float64) *DataArray {
	return rate.Scale(seconds).WithAttr("units", AccumulationUnits)
}

// AccumulateRate derives the step duration from the rate field's own step
// axis and returns the per-step accumulation.
func AccumulateRate(rate *DataArray) (*DataArray, error) {
	_, seconds, err := StepDurationOf(rate)
	if err != nil {
		return nil, err
	}
	return StepAccumulation(rate, seconds), nil
}

// CumulativeAccumulation sums per-step accumulation from initialization
// through step index through (inclusive) and collapses the step axis.
//
// Step zero is the initialization instant and carries no interval, so it is
// never read: the sum covers indices 1..through. through == 0 therefore yields
// zeros. A missing value in 1..through makes the total missing. Coordinates that varied along the step axis are kept at their
// terminal-step value.
func CumulativeAccumulation(accum *DataArray, through int) (*DataArray, error) {
	dim, err := ResolveDim(accum, RoleStep)
	if err != nil {
		return nil, err
	}
	n, _ := accum.Size(dim)
	if through < 0 || through >= n {
		return nil, indexRangeError(dim, through, n)
	}
	terminal, err := accum.Isel(dim, through)
	if err != nil {
		return nil, err
	}
	span, err := accum.Slice(dim, 1, through+1)
	if err != nil {
		return nil, err
	}
	total, err := span.reduce(dim, floats.Sum)
	if err != nil {
		return nil, err
	}
	for _, c := range terminal.Coords() {
		if !total.HasCoord(c.Name) {
			total = total.withCoord(c)
		}
	}
	return total.WithAttr("units", AccumulationUnits), nil
}

// RunningAccumulation is the cumulative sum along the step axis with the
// axis kept. Step zero contributes nothing and its output is 0. A missing
// value at a later step makes every total from that step on missing.
func RunningAccumulation(accum *DataArray) (*DataArray, error) {
	dim, err := ResolveDim(accum, RoleStep)
	if err != nil {
		return nil, err
	}
	out, err := accum.scan(dim, func(lane, dst []float64) {
		sum := 0.0
		for k := range lane {
			if k > 0 {
				sum += lane[k]
			}
			dst[k] = sum
		}
	})
	if err != nil {
		return nil, err
	}
	return out.WithAttr("units", AccumulationUnits), nil
}

// WindowAccumulation sums per-step accumulation over a trailing window. The
// window length in steps is round(window / step duration), at least one.
// Step zero is never summed, so its output is NaN and windows reaching back
// to initialization start at step one. A missing value inside the window
// makes the window total missing, as in CumulativeAccumulation.
func WindowAccumulation(accum *DataArray, window time.Duration) (*DataArray, error) {
	dim, seconds, err := StepDurationOf(accum)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, &RangeError{Name: "window", Value: window.Seconds(), Min: seconds, Max: math.Inf(1)}
	}
	steps := max(int(math.Round(window.Seconds()/seconds)), 1)
	out, err := accum.scan(dim, func(lane, dst []float64) {
		if len(lane) == 0 {
			return
		}
		dst[0] = math.NaN()
		for k := 1; k < len(lane); k++ {
			sum := 0.0
			for m := max(1, k-steps+1); m <= k; m++ {
				sum += lane[m]
			}
			dst[k] = sum
		}
	})
	if err != nil {
		return nil, err
	}
	return out.WithAttr("units", AccumulationUnits).WithAttr("window", FormatWindow(window)), nil
}

var windowPattern = regexp.MustCompile(`^(\d+)([hd])$`)

// ParseWindow parses accumulation windows such as "6h", "24h" or "7d".
func ParseWindow(s string) (time.Duration, error) {
	m := windowPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, fmt.Errorf("invalid window %q: use a form like 6h, 24h or 7d", s)
	}
	n, err := strconv.Atoi(m[1])
	if err == nil && n <= 0 {
		return 0, fmt.Errorf("invalid window %q: length must be positive", s)
	}
	unit := time.Hour
	if m[2] == "d" {
		unit = 24 * time.Hour
	}
	if err != nil || n > int(MaxWindow/unit) {
		return 0, fmt.Errorf("invalid window %q: longer than %s", s, FormatWindow(MaxWindow))
	}
	return time.Duration(n) * unit, nil
}

// FormatWindow renders a window the way ParseWindow reads it.
func FormatWindow(d time.Duration) string {
	hours := int(d / time.Hour)
	if hours > 24 && hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
