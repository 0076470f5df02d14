package gefs

import (
	"fmt"
	"math"
	"slices"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/gefs-api/internal/domain"
)

// FillValue marks missing data values in written files.
const FillValue float32 = -9999

// timeUnits and stepUnits are the CF units written for time axes.
const (
	timeUnits = "seconds since 1970-01-01 00:00:00"
	stepUnits = "hours"
)

// Write stores every variable of ds, and the index coordinates of their
// dimensions, in a new NetCDF file at path. The file reads back with Store.
// Data variables are materialized.
func Write(path string, ds *domain.Dataset) error {
	vars := ds.Vars()
	if len(vars) == 0 {
		return fmt.Errorf("no variables to write")
	}
	sizes := ds.Sizes()

	// Dimension order follows first appearance across variables.
	var dims []string
	for _, v := range vars {
		for _, d := range v.Dims() {
			if !slices.Contains(dims, d) {
				dims = append(dims, d)
			}
		}
	}

	f, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ncDims := make(map[string]netcdf.Dim, len(dims))
	for _, d := range dims {
		nd, err := f.AddDim(d, uint64(sizes[d]))
		if err != nil {
			return fmt.Errorf("failed to add dimension %s: %w", d, err)
		}
		ncDims[d] = nd
	}

	type pending struct {
		v      netcdf.Var
		values []float64
		asF32  bool
	}
	var writes []pending

	// Coordinate variables.
	for _, d := range dims {
		c, ok := ds.Coord(d)
		if !ok || !slices.Equal(c.Dims, []string{d}) {
			continue
		}
		cv, err := f.AddVar(d, netcdf.DOUBLE, []netcdf.Dim{ncDims[d]})
		if err != nil {
			return fmt.Errorf("failed to add coordinate %s: %w", d, err)
		}
		values := slices.Clone(c.Values)
		units := c.Units
		switch c.Kind {
		case domain.KindTime:
			units = timeUnits
		case domain.KindDuration:
			units = stepUnits
			for i := range values {
				values[i] /= 3600
			}
		}
		if units != "" {
			if err := cv.Attr("units").WriteBytes([]byte(units)); err != nil {
				return fmt.Errorf("failed to write units of %s: %w", d, err)
			}
		}
		writes = append(writes, pending{v: cv, values: values})
	}

	// Data variables.
	for _, v := range vars {
		nd := make([]netcdf.Dim, 0, len(v.Dims()))
		for _, d := range v.Dims() {
			nd = append(nd, ncDims[d])
		}
		dv, err := f.AddVar(v.Name(), netcdf.FLOAT, nd)
		if err != nil {
			return fmt.Errorf("failed to add variable %s: %w", v.Name(), err)
		}
		for _, key := range []string{"units", "long_name"} {
			if a := v.Attr(key); a != "" {
				if err := dv.Attr(key).WriteBytes([]byte(a)); err != nil {
					return fmt.Errorf("failed to write %s of %s: %w", key, v.Name(), err)
				}
			}
		}
		if err := dv.Attr("_FillValue").WriteFloat32s([]float32{FillValue}); err != nil {
			return fmt.Errorf("failed to write fill value of %s: %w", v.Name(), err)
		}
		values, err := v.Materialize()
		if err != nil {
			return fmt.Errorf("failed to evaluate %s: %w", v.Name(), err)
		}
		writes = append(writes, pending{v: dv, values: values, asF32: true})
	}

	if err := f.EndDef(); err != nil {
		return fmt.Errorf("failed to leave define mode: %w", err)
	}

	for _, w := range writes {
		if !w.asF32 {
			if err := w.v.WriteFloat64s(w.values); err != nil {
				return fmt.Errorf("failed to write values: %w", err)
			}
			continue
		}
		out := make([]float32, len(w.values))
		for i, x := range w.values {
			if math.IsNaN(x) {
				out[i] = FillValue
				continue
			}
			out[i] = float32(x)
		}
		if err := w.v.WriteFloat32s(out); err != nil {
			return fmt.Errorf("failed to write values: %w", err)
		}
	}
	return nil
}
