package interp

import (
	"fmt"
	"math"
	"strings"

	"go.ngs.io/gefs-api/internal/domain"
)

// Method selects how a gridded field is sampled at a point.
type Method string

const (
	// MethodNearest takes the closest grid point.
	MethodNearest Method = "nearest"
	// MethodBilinear blends the four surrounding grid points.
	MethodBilinear Method = "bilinear"
)

// ParseMethod parses a sampling method name. An empty string means nearest.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodNearest:
		return MethodNearest, nil
	case MethodBilinear:
		return MethodBilinear, nil
	}
	return "", fmt.Errorf("unknown interpolation method %q (use nearest or bilinear)", s)
}

// GridCell is the rectangle between two neighbouring indices on each axis.
// I0/I1 index the y axis (latitude), J0/J1 the x axis (longitude).
type GridCell struct {
	I0, I1 int
	J0, J1 int
	// Fractional position of the point inside the cell, each in [0, 1].
	U, T float64
}

// Weights returns the bilinear weights of the four corners, in the order
// (I0,J0), (I0,J1), (I1,J0), (I1,J1).
//
//	f(x,y) ≈ (1-t)(1-u)f00 + t(1-u)f01 + (1-t)u*f10 + tu*f11
func (c GridCell) Weights() [4]float64 {
	t, u := c.T, c.U
	return [4]float64{(1 - t) * (1 - u), t * (1 - u), (1 - t) * u, t * u}
}

// NearestIndex returns the index of the axis value closest to target.
func NearestIndex(axis []float64, target float64) (int, error) {
	if len(axis) == 0 {
		return 0, fmt.Errorf("empty axis")
	}
	best, bestDist := 0, math.Inf(1)
	for i, v := range axis {
		if d := math.Abs(v - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, nil
}

// Bracket finds the neighbouring indices i0, i1 of a monotonic axis
// (ascending or descending) that enclose target, and the fractional position
// of target between them. A single-point axis brackets only its own value.
func Bracket(axis []float64, target float64) (i0, i1 int, frac float64, err error) {
	// Small tolerance for floating point at the edges.
	const epsilon = 1e-9
	n := len(axis)
	if n == 0 {
		return 0, 0, 0, fmt.Errorf("empty axis")
	}
	lo, hi := axis[0], axis[n-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	if target < lo-epsilon || target > hi+epsilon {
		return 0, 0, 0, &domain.RangeError{Name: "coordinate", Value: target, Min: lo, Max: hi}
	}
	if n == 1 {
		return 0, 0, 0, nil
	}
	for i := 0; i < n-1; i++ {
		a, b := axis[i], axis[i+1]
		if (target-a)*(target-b) <= 0 || math.Abs(target-a) < epsilon {
			if a == b {
				return i, i, 0, nil
			}
			// Clamp to [0, 1] to absorb the edge tolerance.
			frac = math.Max(0, math.Min(1, (target-a)/(b-a)))
			return i, i + 1, frac, nil
		}
	}
	// Only reachable within epsilon of the last point.
	return n - 1, n - 1, 0, nil
}

// Locate builds the grid cell around (lat, lon). Longitudes are converted to
// the axis convention first.
func Locate(lats, lons []float64, lat, lon float64) (GridCell, error) {
	if domain.LonAxisWraps(lons) {
		lon = domain.NormalizeLon360(lon)
	}
	i0, i1, u, err := Bracket(lats, lat)
	if err != nil {
		return GridCell{}, fmt.Errorf("latitude %.4f outside grid: %w", lat, err)
	}
	j0, j1, t, err := Bracket(lons, lon)
	if err != nil {
		return GridCell{}, fmt.Errorf("longitude %.4f outside grid: %w", lon, err)
	}
	return GridCell{I0: i0, I1: i1, J0: j0, J1: j1, U: u, T: t}, nil
}

// SelectPoint samples da at (lat, lon), dropping both horizontal axes. The
// latitude and longitude coordinates become scalars: the chosen grid point
// for MethodNearest, the requested point for MethodBilinear. Nothing is
// evaluated here.
func SelectPoint(da *domain.DataArray, lat, lon float64, method Method) (*domain.DataArray, error) {
	latName, lonName, lats, lons, err := horizontalAxes(da)
	if err != nil {
		return nil, err
	}

	switch method {
	case MethodNearest, "":
		target := lon
		if domain.LonAxisWraps(lons) {
			target = domain.NormalizeLon360(lon)
		}
		i, err := NearestIndex(lats, lat)
		if err != nil {
			return nil, fmt.Errorf("failed to select latitude: %w", err)
		}
		j, err := NearestIndex(lons, target)
		if err != nil {
			return nil, fmt.Errorf("failed to select longitude: %w", err)
		}
		return corner(da, latName, lonName, i, j)

	case MethodBilinear:
		cell, err := Locate(lats, lons, lat, lon)
		if err != nil {
			return nil, err
		}
		weights := cell.Weights()
		corners := [4][2]int{{cell.I0, cell.J0}, {cell.I0, cell.J1}, {cell.I1, cell.J0}, {cell.I1, cell.J1}}

		var out *domain.DataArray
		for k, ij := range corners {
			w := weights[k]
			if w == 0 {
				continue
			}
			c, err := corner(da, latName, lonName, ij[0], ij[1])
			if err != nil {
				return nil, err
			}
			if out == nil {
				out = c.Scale(w)
				continue
			}
			out, err = out.ZipWith(c, func(acc, v float64) float64 { return acc + w*v })
			if err != nil {
				return nil, err
			}
		}
		if out == nil {
			return nil, fmt.Errorf("degenerate grid cell at %.4f, %.4f", lat, lon)
		}
		out, err = out.WithCoord(domain.NewScalarCoord(latName, domain.KindNumeric, lat))
		if err != nil {
			return nil, err
		}
		return out.WithCoord(domain.NewScalarCoord(lonName, domain.KindNumeric, lon))
	}
	return nil, fmt.Errorf("unknown interpolation method %q", method)
}

func horizontalAxes(da *domain.DataArray) (latName, lonName string, lats, lons []float64, err error) {
	latName, err = domain.ResolveDim(da, domain.RoleLatitude)
	if err != nil {
		return "", "", nil, nil, err
	}
	lonName, err = domain.ResolveDim(da, domain.RoleLongitude)
	if err != nil {
		return "", "", nil, nil, err
	}
	latCoord, ok := da.Coord(latName)
	if !ok {
		return "", "", nil, nil, &domain.CoordinateNotFoundError{Role: domain.RoleLatitude, Candidates: []string{latName}, Available: da.CoordNames()}
	}
	lonCoord, ok := da.Coord(lonName)
	if !ok {
		return "", "", nil, nil, &domain.CoordinateNotFoundError{Role: domain.RoleLongitude, Candidates: []string{lonName}, Available: da.CoordNames()}
	}
	return latName, lonName, latCoord.Values, lonCoord.Values, nil
}

func corner(da *domain.DataArray, latName, lonName string, i, j int) (*domain.DataArray, error) {
	out, err := da.Isel(latName, i)
	if err != nil {
		return nil, err
	}
	return out.Isel(lonName, j)
}
