// Package gefs provides access to GEFS ensemble forecast NetCDF data.
package gefs

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fhs/go-netcdf/netcdf"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/gefs-api/internal/domain"
)

// DefaultVariables are the GEFS fields read when none are configured.
var DefaultVariables = []string{"precipitation_surface", "temperature_2m"}

// Store loads a GEFS forecast file as a lazy dataset. Coordinates are read
// when the file is opened; data variables are only read on Materialize.
type Store struct {
	path      string
	variables []string
	logger    *zap.SugaredLogger

	cache *domain.Dataset // Cache the opened dataset.
	mu    sync.RWMutex    // Protect cache.
	group singleflight.Group

	// The netCDF C library is not safe for concurrent use.
	fileMu sync.Mutex
}

// NewStore creates a new GEFS NetCDF store. An empty variables list means
// DefaultVariables.
func NewStore(path string, logger *zap.SugaredLogger, variables ...string) *Store {
	if len(variables) == 0 {
		variables = DefaultVariables
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		path:      path,
		variables: slices.Clone(variables),
		logger:    logger,
	}
}

// Path returns the forecast file path.
func (s *Store) Path() string { return s.path }

// Load opens the forecast file once and returns the cached dataset afterwards.
// Concurrent first calls share a single open.
func (s *Store) Load(ctx context.Context) (*domain.Dataset, error) {
	s.mu.RLock()
	if ds := s.cache; ds != nil {
		s.mu.RUnlock()
		return ds, nil
	}
	s.mu.RUnlock()

	ch := s.group.DoChan(s.path, func() (any, error) {
		ds, err := s.open()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache = ds
		s.mu.Unlock()
		return ds, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Dataset), nil
	}
}

// Reset drops the cached dataset so the next Load reopens the file.
func (s *Store) Reset() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

func (s *Store) open() (*domain.Dataset, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	start := time.Now()
	nc, err := netcdf.OpenFile(s.path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", s.path, err)
	}
	defer func() { _ = nc.Close() }()

	coords := map[string]domain.Coord{}
	vars := make([]*domain.DataArray, 0, len(s.variables))
	for _, name := range s.variables {
		v, err := nc.Var(name)
		if err != nil {
			s.logger.Warnw("forecast variable missing", "path", s.path, "variable", name, "error", err)
			continue
		}
		da, err := s.describe(nc, v, name, coords)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		vars = append(vars, da)
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("no forecast variables found in %s (tried: %v)", s.path, s.variables)
	}

	ds, err := domain.NewDataset(vars...)
	if err != nil {
		return nil, err
	}
	ds = ds.WithAttr("source", s.path)

	s.logger.Infow("opened forecast file",
		"path", s.path,
		"variables", ds.Names(),
		"sizes", ds.Sizes(),
		"duration", time.Since(start),
	)
	return ds, nil
}

// describe builds the lazy DataArray for one variable. Coordinates are
// shared between variables through coords.
func (s *Store) describe(nc netcdf.Dataset, v netcdf.Var, name string, coords map[string]domain.Coord) (*domain.DataArray, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	dimNames := make([]string, len(dims))
	shape := make([]int, len(dims))
	attached := make([]domain.Coord, 0, len(dims))
	for i, d := range dims {
		dimName, err := d.Name()
		if err != nil {
			return nil, fmt.Errorf("failed to get dimension name: %w", err)
		}
		n, err := d.Len()
		if err != nil {
			return nil, fmt.Errorf("failed to get length of %s: %w", dimName, err)
		}
		dimNames[i] = dimName
		shape[i] = int(n)

		c, ok := coords[dimName]
		if !ok {
			c, ok, err = readCoord(nc, dimName)
			if err != nil {
				return nil, err
			}
			if ok {
				coords[dimName] = c
			}
		}
		if ok {
			attached = append(attached, c)
		}
	}

	size := 1
	for _, n := range shape {
		size *= n
	}
	path := s.path
	da, err := domain.NewLazyDataArray(name, dimNames, shape, func() ([]float64, error) {
		return s.readVariable(path, name, size)
	}, attached...)
	if err != nil {
		return nil, err
	}
	if units, ok := attrString(v, "units"); ok {
		da = da.WithAttr("units", units)
	}
	if long, ok := attrString(v, "long_name"); ok {
		da = da.WithAttr("long_name", long)
	}
	return da, nil
}

// readVariable reopens the file and reads a whole variable, unpacking it
// and replacing fill values with NaN.
func (s *Store) readVariable(path, name string, size int) ([]float64, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	start := time.Now()
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	v, err := nc.Var(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s not found: %w", name, err)
	}
	values, err := readValues(v, size)
	if err != nil {
		return nil, err
	}
	decode(v, values)

	s.logger.Debugw("read forecast variable", "variable", name, "values", size, "duration", time.Since(start))
	return values, nil
}

// readCoord reads the coordinate variable named after a dimension. Time and
// step axes are decoded from CF units.
func readCoord(nc netcdf.Dataset, dim string) (domain.Coord, bool, error) {
	v, err := nc.Var(dim)
	if err != nil {
		// Dimension without a coordinate variable.
		return domain.Coord{}, false, nil
	}
	n, err := v.Len()
	if err != nil {
		return domain.Coord{}, false, fmt.Errorf("failed to get length of %s: %w", dim, err)
	}
	values, err := readValues(v, int(n))
	if err != nil {
		return domain.Coord{}, false, fmt.Errorf("failed to read coordinate %s: %w", dim, err)
	}
	units, _ := attrString(v, "units")

	switch {
	case slices.Contains(domain.Candidates(domain.RoleTime), dim):
		scale, epoch, err := ParseCFUnits(units)
		if err != nil {
			return domain.Coord{}, false, fmt.Errorf("coordinate %s: %w", dim, err)
		}
		if epoch.IsZero() {
			return domain.Coord{}, false, fmt.Errorf("coordinate %s: time units %q lack a reference date", dim, units)
		}
		for i, x := range values {
			values[i] = float64(epoch.Unix()) + x*scale
		}
		return domain.NewIndexCoord(dim, domain.KindTime, values), true, nil

	case slices.Contains(domain.Candidates(domain.RoleStep), dim):
		// Without units the axis is taken to be in seconds.
		scale := 1.0
		if units != "" {
			if scale, _, err = ParseCFUnits(units); err != nil {
				return domain.Coord{}, false, fmt.Errorf("coordinate %s: %w", dim, err)
			}
		}
		for i := range values {
			values[i] *= scale
		}
		return domain.NewIndexCoord(dim, domain.KindDuration, values), true, nil
	}

	c := domain.NewIndexCoord(dim, domain.KindNumeric, values)
	c.Units = units
	return c, true, nil
}

// ParseCFUnits parses CF time units such as "hours since 2026-01-31 00:00:00"
// or a bare "hours". It returns the length of one unit in seconds and the
// reference instant (zero when absent).
func ParseCFUnits(units string) (float64, time.Time, error) {
	unit, ref, hasRef := strings.Cut(strings.TrimSpace(units), " since ")
	var scale float64
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "secs", "sec", "s":
		scale = 1
	case "minutes", "minute", "mins", "min":
		scale = 60
	case "hours", "hour", "hrs", "hr", "h":
		scale = 3600
	case "days", "day", "d":
		scale = 86400
	default:
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", units)
	}
	if !hasRef {
		return scale, time.Time{}, nil
	}
	ref = strings.TrimSpace(ref)
	for _, layout := range []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, ref); err == nil {
			return scale, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unparseable reference date %q", ref)
}

// readValues reads n values of any numeric type as float64.
func readValues(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}
	out := make([]float64, n)
	switch t {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT64:
		tmp := make([]int64, n)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
	return out, nil
}

// decode applies CF packing (scale_factor, add_offset) and maps
// _FillValue / missing_value to NaN, in place.
func decode(v netcdf.Var, values []float64) {
	fills := make([]float64, 0, 2)
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := attrFloat(v, name); ok {
			fills = append(fills, fv)
		}
	}
	scale, hasScale := attrFloat(v, "scale_factor")
	offset, hasOffset := attrFloat(v, "add_offset")
	for i, x := range values {
		if slices.Contains(fills, x) {
			values[i] = math.NaN()
			continue
		}
		if hasScale {
			x *= scale
		}
		if hasOffset {
			x += offset
		}
		values[i] = x
	}
}

// attrFloat returns a numeric attribute as float64 if present.
func attrFloat(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	buf64 := make([]float64, n)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, n)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufi := make([]int32, n)
	if err := a.ReadInt32s(bufi); err == nil {
		return float64(bufi[0]), true
	}
	bufs := make([]int16, n)
	if err := a.ReadInt16s(bufs); err == nil {
		return float64(bufs[0]), true
	}
	return 0, false
}

// attrString returns a text attribute if present.
func attrString(v netcdf.Var, name string) (string, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return strings.TrimRight(string(buf), "\x00"), true
}
