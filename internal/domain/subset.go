package domain

import (
	"math"
)

// BoundingBox is a latitude/longitude rectangle in degrees, longitudes in
// the -180..180 convention.
type BoundingBox struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// WesternUS is the default forecast region.
var WesternUS = BoundingBox{LatMin: 30, LatMax: 50, LonMin: -125, LonMax: -100}

// SubsetBox keeps the grid points inside box. Descending latitude axes and
// 0..360 longitude axes are both handled.
func SubsetBox(ds *Dataset, box BoundingBox) (*Dataset, error) {
	latName, err := ResolveDim(ds, RoleLatitude)
	if err != nil {
		return nil, err
	}
	lonName, err := ResolveDim(ds, RoleLongitude)
	if err != nil {
		return nil, err
	}
	lat, ok := ds.Coord(latName)
	if !ok {
		return nil, &CoordinateNotFoundError{Role: RoleLatitude, Candidates: []string{latName}, Available: ds.CoordNames()}
	}
	lon, ok := ds.Coord(lonName)
	if !ok {
		return nil, &CoordinateNotFoundError{Role: RoleLongitude, Candidates: []string{lonName}, Available: ds.CoordNames()}
	}

	lonMin, lonMax := box.LonMin, box.LonMax
	if LonAxisWraps(lon.Values) {
		lonMin, lonMax = NormalizeLon360(lonMin), NormalizeLon360(lonMax)
	}

	start, end, err := span(latName, lat.Values, box.LatMin, box.LatMax)
	if err != nil {
		return nil, err
	}
	out, err := ds.Slice(latName, start, end)
	if err != nil {
		return nil, err
	}
	start, end, err = span(lonName, lon.Values, lonMin, lonMax)
	if err != nil {
		return nil, err
	}
	return out.Slice(lonName, start, end)
}

// DropInitialStep removes step index 0, the initialization instant, which
// never carries accumulated fields.
func DropInitialStep(ds *Dataset) (*Dataset, error) {
	dim, err := ResolveDim(ds, RoleStep)
	if err != nil {
		return nil, err
	}
	n := ds.Sizes()[dim]
	if n < 2 {
		return nil, &InsufficientStepsError{Dim: dim, Len: n}
	}
	return ds.Slice(dim, 1, n)
}

// span returns the index range of a monotonic axis whose values lie in [lo, hi].
func span(dim string, axis []float64, lo, hi float64) (int, int, error) {
	start, end := -1, -1
	for i, v := range axis {
		if v >= lo && v <= hi {
			if start < 0 {
				start = i
			}
			end = i + 1
		}
	}
	if start < 0 {
		first, last := math.NaN(), math.NaN()
		if len(axis) > 0 {
			first, last = axis[0], axis[len(axis)-1]
		}
		return 0, 0, &RangeError{Name: dim, Value: lo, Min: math.Min(first, last), Max: math.Max(first, last)}
	}
	return start, end, nil
}

// LonAxisWraps reports whether a longitude axis uses the 0..360 convention.
func LonAxisWraps(lons []float64) bool {
	if len(lons) == 0 {
		return false
	}
	lo, hi := lons[0], lons[len(lons)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo >= 0 && hi > 180
}

// NormalizeLon360 maps a longitude into [0, 360).
func NormalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

// Contains reports whether a point lies inside the box. lon may use either
// longitude convention.
func (b BoundingBox) Contains(lat, lon float64) bool {
	if lon > 180 {
		lon -= 360
	}
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}
