package domain

import (
	"fmt"
	"maps"
	"slices"
)

// Dataset is an ordered collection of named variables sharing dimensions.
type Dataset struct {
	vars  []*DataArray
	attrs map[string]string
}

// NewDataset groups variables. Names must be unique and shared dimensions
// must agree on length.
func NewDataset(vars ...*DataArray) (*Dataset, error) {
	ds := &Dataset{attrs: map[string]string{}}
	sizes := map[string]int{}
	for _, v := range vars {
		if _, ok := ds.Var(v.Name()); ok {
			return nil, fmt.Errorf("dataset: duplicate variable %q", v.Name())
		}
		for d, n := range v.Sizes() {
			if m, ok := sizes[d]; ok && m != n {
				return nil, fmt.Errorf("dataset: dimension %q has length %d in %s but %d elsewhere", d, n, v.Name(), m)
			}
			sizes[d] = n
		}
		ds.vars = append(ds.vars, v)
	}
	return ds, nil
}

// Var returns the variable called name.
func (ds *Dataset) Var(name string) (*DataArray, bool) {
	for _, v := range ds.vars {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// Vars returns the variables in insertion order.
func (ds *Dataset) Vars() []*DataArray { return slices.Clone(ds.vars) }

// Names returns the variable names in insertion order.
func (ds *Dataset) Names() []string {
	names := make([]string, len(ds.vars))
	for i, v := range ds.vars {
		names[i] = v.Name()
	}
	return names
}

// Dims returns the union of variable dimensions in first-seen order.
func (ds *Dataset) Dims() []string {
	var dims []string
	for _, v := range ds.vars {
		for _, d := range v.dims {
			if !slices.Contains(dims, d) {
				dims = append(dims, d)
			}
		}
	}
	return dims
}

// Sizes returns dimension lengths keyed by name.
func (ds *Dataset) Sizes() map[string]int {
	sizes := map[string]int{}
	for _, v := range ds.vars {
		maps.Copy(sizes, v.Sizes())
	}
	return sizes
}

// CoordNames returns the union of coordinate names in first-seen order.
func (ds *Dataset) CoordNames() []string {
	var names []string
	for _, v := range ds.vars {
		for _, c := range v.coords {
			if !slices.Contains(names, c.Name) {
				names = append(names, c.Name)
			}
		}
	}
	return names
}

// Coord returns the first coordinate called name found across variables.
func (ds *Dataset) Coord(name string) (Coord, bool) {
	for _, v := range ds.vars {
		if c, ok := v.Coord(name); ok {
			return c, true
		}
	}
	return Coord{}, false
}

// Attr returns a dataset attribute, or "" when unset.
func (ds *Dataset) Attr(key string) string { return ds.attrs[key] }

// WithAttr returns a copy with attribute key set to value.
func (ds *Dataset) WithAttr(key, value string) *Dataset {
	out := ds.clone()
	out.attrs[key] = value
	return out
}

// WithVar returns a copy with v added, replacing a variable of the same name.
func (ds *Dataset) WithVar(v *DataArray) (*Dataset, error) {
	vars := slices.DeleteFunc(slices.Clone(ds.vars), func(x *DataArray) bool { return x.Name() == v.Name() })
	out, err := NewDataset(append(vars, v)...)
	if err != nil {
		return nil, err
	}
	out.attrs = maps.Clone(ds.attrs)
	return out, nil
}

// WithCoord attaches c to every variable that has all of its dimensions.
func (ds *Dataset) WithCoord(c Coord) (*Dataset, error) {
	out := ds.clone()
	for i, v := range out.vars {
		if !hasDims(v, c.Dims) {
			continue
		}
		nv, err := v.WithCoord(c)
		if err != nil {
			return nil, err
		}
		out.vars[i] = nv
	}
	return out, nil
}

// Isel selects index i along dim in every variable that has it.
func (ds *Dataset) Isel(dim string, i int) (*Dataset, error) {
	return ds.apply(dim, func(v *DataArray) (*DataArray, error) { return v.Isel(dim, i) })
}

// Slice keeps indices [start, end) along dim in every variable that has it.
func (ds *Dataset) Slice(dim string, start, end int) (*Dataset, error) {
	return ds.apply(dim, func(v *DataArray) (*DataArray, error) { return v.Slice(dim, start, end) })
}

func (ds *Dataset) apply(dim string, fn func(*DataArray) (*DataArray, error)) (*Dataset, error) {
	if !slices.Contains(ds.Dims(), dim) {
		return nil, &CoordinateNotFoundError{Candidates: []string{dim}, Available: ds.Dims()}
	}
	out := ds.clone()
	for i, v := range out.vars {
		if _, ok := v.Size(dim); !ok {
			continue
		}
		nv, err := fn(v)
		if err != nil {
			return nil, err
		}
		out.vars[i] = nv
	}
	return out, nil
}

func (ds *Dataset) clone() *Dataset {
	attrs := maps.Clone(ds.attrs)
	if attrs == nil {
		attrs = map[string]string{}
	}
	return &Dataset{vars: slices.Clone(ds.vars), attrs: attrs}
}

func hasDims(v *DataArray, dims []string) bool {
	for _, d := range dims {
		if _, ok := v.Size(d); !ok {
			return false
		}
	}
	return true
}
