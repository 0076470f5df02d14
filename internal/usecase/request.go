package usecase

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.ngs.io/gefs-api/internal/adapter/interp"
	"go.ngs.io/gefs-api/internal/domain"
)

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound wraps unknown variables and cities.
	ErrNotFound = errors.New("not found")
	// ErrDatasetUnavailable wraps failures to load or prepare the forecast.
	ErrDatasetUnavailable = errors.New("forecast dataset unavailable")
)

// Product selects which derived field is served for a variable.
type Product string

const (
	// ProductRaw is the variable as stored.
	ProductRaw Product = "raw"
	// ProductStep is the accumulation over each forecast step.
	ProductStep Product = "step"
	// ProductWindow is the accumulation over a trailing window.
	ProductWindow Product = "window"
	// ProductTotal is the accumulation since initialization.
	ProductTotal Product = "total"
)

// IsAccumulation reports whether the product is derived from a rate.
func (p Product) IsAccumulation() bool {
	return p == ProductStep || p == ProductWindow || p == ProductTotal
}

// ParseProduct parses a product name. Empty returns "".
func ParseProduct(s string) (Product, error) {
	p := Product(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "", ProductRaw, ProductStep, ProductWindow, ProductTotal:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown product %q (use raw, step, window or total)", ErrInvalidRequest, s)
}

// Statistics servable on a map.
var mapStatistics = []string{
	domain.StatMean, domain.StatStd, domain.StatLower, domain.StatUpper, "p10", "p50", "p90",
}

// DefaultStatistic is shown on maps when none is requested.
const DefaultStatistic = "p50"

// MapRequest asks for one ensemble statistic over the grid at one step.
type MapRequest struct {
	Variable  string
	Step      int
	Statistic string
	Product   Product
	Window    time.Duration // Only used by ProductWindow; 0 means the default.
}

// Validate checks if the request is valid.
func (r *MapRequest) Validate() error {
	if r.Variable == "" {
		return fmt.Errorf("%w: variable is required", ErrInvalidRequest)
	}
	if r.Step < 0 {
		return fmt.Errorf("%w: step must not be negative", ErrInvalidRequest)
	}
	if r.Statistic != "" && !slices.Contains(mapStatistics, r.Statistic) {
		return fmt.Errorf("%w: unknown statistic %q (use one of %v)", ErrInvalidRequest, r.Statistic, mapStatistics)
	}
	if r.Window < 0 || r.Window%time.Hour != 0 {
		return fmt.Errorf("%w: window must be a whole number of hours", ErrInvalidRequest)
	}
	return nil
}

// TimeSeriesRequest asks for the ensemble statistics bundle at one point.
// The point is either a known city or an explicit lat/lon.
type TimeSeriesRequest struct {
	Variable string
	City     string
	Lat      *float64
	Lon      *float64
	Product  Product
	Window   time.Duration
	Interp   interp.Method
}

// Validate checks if the request is valid.
func (r *TimeSeriesRequest) Validate() error {
	if r.Variable == "" {
		return fmt.Errorf("%w: variable is required", ErrInvalidRequest)
	}
	hasLatLon := r.Lat != nil && r.Lon != nil
	hasCity := r.City != ""
	if !hasLatLon && !hasCity {
		return fmt.Errorf("%w: either city or lat/lon must be provided", ErrInvalidRequest)
	}
	if hasLatLon && hasCity {
		return fmt.Errorf("%w: city and lat/lon are mutually exclusive", ErrInvalidRequest)
	}
	if (r.Lat == nil) != (r.Lon == nil) {
		return fmt.Errorf("%w: lat and lon must be given together", ErrInvalidRequest)
	}
	if hasLatLon {
		if *r.Lat < -90 || *r.Lat > 90 {
			return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidRequest)
		}
		if *r.Lon < -180 || *r.Lon > 180 {
			return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidRequest)
		}
	}
	if r.Window < 0 || r.Window%time.Hour != 0 {
		return fmt.Errorf("%w: window must be a whole number of hours", ErrInvalidRequest)
	}
	switch r.Interp {
	case "", interp.MethodNearest, interp.MethodBilinear:
	default:
		return fmt.Errorf("%w: unknown interpolation %q", ErrInvalidRequest, r.Interp)
	}
	return nil
}
