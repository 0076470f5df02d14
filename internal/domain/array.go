// Package domain holds the forecast derivation core: a labeled array model with
// deferred evaluation, coordinate role resolution, timestep derivation,
// precipitation accumulation and ensemble statistics.
package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// CoordKind describes how coordinate values are interpreted.
type CoordKind int

const (
	// KindNumeric is a plain number (degrees, member index, quantile level).
	KindNumeric CoordKind = iota
	// KindTime holds instants as Unix seconds.
	KindTime
	// KindDuration holds elapsed time in seconds.
	KindDuration
)

// Coord is a named coordinate attached to a DataArray. A coordinate with no
// dims is a scalar; Values are row-major over Dims.
type Coord struct {
	Name   string
	Dims   []string
	Values []float64
	Kind   CoordKind
	Units  string
}

// NewIndexCoord returns a one-dimensional coordinate along the dimension of the same name.
func NewIndexCoord(name string, kind CoordKind, values []float64) Coord {
	return Coord{Name: name, Dims: []string{name}, Values: slices.Clone(values), Kind: kind}
}

// NewScalarCoord returns a coordinate that depends on no dimension.
func NewScalarCoord(name string, kind CoordKind, value float64) Coord {
	return Coord{Name: name, Values: []float64{value}, Kind: kind}
}

// IsScalar reports whether the coordinate has no dimensions.
func (c Coord) IsScalar() bool { return len(c.Dims) == 0 }

// DependsOn reports whether the coordinate varies along dim.
func (c Coord) DependsOn(dim string) bool { return slices.Contains(c.Dims, dim) }

// Len returns the number of values.
func (c Coord) Len() int { return len(c.Values) }

// Time returns value i as an instant. Only meaningful for KindTime.
func (c Coord) Time(i int) time.Time {
	sec, frac := math.Modf(c.Values[i])
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// Duration returns value i as a duration. Only meaningful for KindDuration.
func (c Coord) Duration(i int) time.Duration {
	return time.Duration(c.Values[i] * float64(time.Second))
}

// Equal reports whether two coordinates carry the same name, dims, kind and values.
// NaN values compare equal to each other.
func (c Coord) Equal(o Coord) bool {
	if c.Name != o.Name || c.Kind != o.Kind || !slices.Equal(c.Dims, o.Dims) || len(c.Values) != len(o.Values) {
		return false
	}
	for i, v := range c.Values {
		w := o.Values[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

func (c Coord) clone() Coord {
	c.Dims = slices.Clone(c.Dims)
	c.Values = slices.Clone(c.Values)
	return c
}

// sliceAlong restricts c to [start, end) along dim. With drop set the dim is
// removed, which requires end-start == 1.
func (c Coord) sliceAlong(sizes map[string]int, dim string, start, end int, drop bool) Coord {
	axis := slices.Index(c.Dims, dim)
	if axis < 0 {
		return c
	}
	shape := make([]int, len(c.Dims))
	for i, d := range c.Dims {
		shape[i] = sizes[d]
	}
	out := Coord{
		Name:   c.Name,
		Dims:   slices.Clone(c.Dims),
		Values: sliceAxis(c.Values, shape, axis, start, end),
		Kind:   c.Kind,
		Units:  c.Units,
	}
	if drop {
		out.Dims = slices.Delete(out.Dims, axis, axis+1)
	}
	return out
}

// node is one vertex of a deferred computation graph. eval runs at most once.
type node struct {
	once sync.Once
	eval func() ([]float64, error)
	data []float64
	err  error
}

func deferred(eval func() ([]float64, error)) *node {
	return &node{eval: eval}
}

func (n *node) get() ([]float64, error) {
	n.once.Do(func() {
		n.data, n.err = n.eval()
		n.eval = nil
	})
	return n.data, n.err
}

// DataArray is an N-dimensional float64 field addressed by dimension name.
// Values are row-major and computed lazily: transformations only extend the
// computation graph and Materialize is the single point where data is read.
// A DataArray is never mutated after construction.
type DataArray struct {
	name   string
	dims   []string
	shape  []int
	coords []Coord
	attrs  map[string]string
	node   *node
}

// NewDataArray builds an array over in-memory values. The values are copied.
func NewDataArray(name string, dims []string, shape []int, values []float64, coords ...Coord) (*DataArray, error) {
	if product(shape) != len(values) {
		return nil, fmt.Errorf("array %s: %d values do not fill shape %v", name, len(values), shape)
	}
	data := slices.Clone(values)
	return newDataArray(name, dims, shape, coords, deferred(func() ([]float64, error) { return data, nil }))
}

// NewLazyDataArray builds an array whose values are produced by load on first
// materialization.
func NewLazyDataArray(name string, dims []string, shape []int, load func() ([]float64, error), coords ...Coord) (*DataArray, error) {
	size := product(shape)
	n := deferred(func() ([]float64, error) {
		data, err := load()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if len(data) != size {
			return nil, fmt.Errorf("load %s: got %d values, want %d", name, len(data), size)
		}
		return data, nil
	})
	return newDataArray(name, dims, shape, coords, n)
}

func newDataArray(name string, dims []string, shape []int, coords []Coord, n *node) (*DataArray, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("array %s: %d dims for shape %v", name, len(dims), shape)
	}
	for i, d := range dims {
		if d == "" {
			return nil, fmt.Errorf("array %s: empty dimension name", name)
		}
		if slices.Index(dims, d) != i {
			return nil, fmt.Errorf("array %s: duplicate dimension %q", name, d)
		}
		if shape[i] < 0 {
			return nil, fmt.Errorf("array %s: negative length for dimension %q", name, d)
		}
	}
	a := &DataArray{
		name:  name,
		dims:  slices.Clone(dims),
		shape: slices.Clone(shape),
		attrs: map[string]string{},
		node:  n,
	}
	for _, c := range coords {
		if err := a.checkCoord(c); err != nil {
			return nil, err
		}
		a.coords = replaceCoord(a.coords, c.clone())
	}
	return a, nil
}

func (a *DataArray) checkCoord(c Coord) error {
	if c.Name == "" {
		return fmt.Errorf("array %s: coordinate without a name", a.name)
	}
	want := 1
	for _, d := range c.Dims {
		n, ok := a.Size(d)
		if !ok {
			return fmt.Errorf("array %s: coordinate %q depends on unknown dimension %q", a.name, c.Name, d)
		}
		want *= n
	}
	if len(c.Values) != want {
		return fmt.Errorf("array %s: coordinate %q has %d values, want %d", a.name, c.Name, len(c.Values), want)
	}
	return nil
}

func replaceCoord(coords []Coord, c Coord) []Coord {
	for i := range coords {
		if coords[i].Name == c.Name {
			out := slices.Clone(coords)
			out[i] = c
			return out
		}
	}
	return append(slices.Clone(coords), c)
}

// Name returns the variable name.
func (a *DataArray) Name() string { return a.name }

// Dims returns the dimension names in storage order.
func (a *DataArray) Dims() []string { return slices.Clone(a.dims) }

// Shape returns the dimension lengths in storage order.
func (a *DataArray) Shape() []int { return slices.Clone(a.shape) }

// Len returns the total number of elements.
func (a *DataArray) Len() int { return product(a.shape) }

// Size returns the length of dim.
func (a *DataArray) Size(dim string) (int, bool) {
	i := slices.Index(a.dims, dim)
	if i < 0 {
		return 0, false
	}
	return a.shape[i], true
}

// Sizes returns dimension lengths keyed by name.
func (a *DataArray) Sizes() map[string]int {
	sizes := make(map[string]int, len(a.dims))
	for i, d := range a.dims {
		sizes[d] = a.shape[i]
	}
	return sizes
}

// Coords returns the attached coordinates in attachment order.
func (a *DataArray) Coords() []Coord { return slices.Clone(a.coords) }

// Coord returns the coordinate called name.
func (a *DataArray) Coord(name string) (Coord, bool) {
	for _, c := range a.coords {
		if c.Name == name {
			return c, true
		}
	}
	return Coord{}, false
}

// HasCoord reports whether a coordinate called name is attached.
func (a *DataArray) HasCoord(name string) bool {
	_, ok := a.Coord(name)
	return ok
}

// CoordNames returns the names of all attached coordinates.
func (a *DataArray) CoordNames() []string {
	names := make([]string, len(a.coords))
	for i, c := range a.coords {
		names[i] = c.Name
	}
	return names
}

// Attr returns a single attribute, or "" when unset.
func (a *DataArray) Attr(key string) string { return a.attrs[key] }

// Attrs returns a copy of the attributes.
func (a *DataArray) Attrs() map[string]string { return maps.Clone(a.attrs) }

// Materialize evaluates the deferred graph and returns the row-major values.
// Evaluation happens once; later calls return a copy of the cached result.
func (a *DataArray) Materialize() ([]float64, error) {
	data, err := a.node.get()
	if err != nil {
		return nil, err
	}
	return slices.Clone(data), nil
}

// Value materializes the array and returns the element at the given
// per-dimension indices. Every dimension must be indexed.
func (a *DataArray) Value(index map[string]int) (float64, error) {
	offset := 0
	for i, d := range a.dims {
		k, ok := index[d]
		if !ok {
			return 0, a.missingDim(d)
		}
		if k < 0 || k >= a.shape[i] {
			return 0, indexRangeError(d, k, a.shape[i])
		}
		offset = offset*a.shape[i] + k
	}
	data, err := a.node.get()
	if err != nil {
		return 0, err
	}
	return data[offset], nil
}

func (a *DataArray) derive(dims []string, shape []int, coords []Coord, n *node) *DataArray {
	return &DataArray{name: a.name, dims: dims, shape: shape, coords: coords, attrs: maps.Clone(a.attrs), node: n}
}

func (a *DataArray) withNode(n *node) *DataArray {
	return a.derive(slices.Clone(a.dims), slices.Clone(a.shape), slices.Clone(a.coords), n)
}

// WithName returns a copy renamed to name.
func (a *DataArray) WithName(name string) *DataArray {
	out := a.withNode(a.node)
	out.name = name
	return out
}

// WithAttr returns a copy with attribute key set to value.
func (a *DataArray) WithAttr(key, value string) *DataArray {
	out := a.withNode(a.node)
	out.attrs[key] = value
	return out
}

// WithCoord returns a copy with c attached, replacing any coordinate of the same name.
func (a *DataArray) WithCoord(c Coord) (*DataArray, error) {
	if err := a.checkCoord(c); err != nil {
		return nil, err
	}
	return a.withCoord(c), nil
}

func (a *DataArray) withCoord(c Coord) *DataArray {
	out := a.withNode(a.node)
	out.coords = replaceCoord(out.coords, c.clone())
	return out
}

// WithoutCoord returns a copy without the named coordinate.
func (a *DataArray) WithoutCoord(name string) *DataArray {
	out := a.withNode(a.node)
	out.coords = slices.DeleteFunc(out.coords, func(c Coord) bool { return c.Name == name })
	return out
}

// Map applies fn element-wise.
func (a *DataArray) Map(fn func(float64) float64) *DataArray {
	parent := a.node
	return a.withNode(deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(in))
		for i, v := range in {
			out[i] = fn(v)
		}
		return out, nil
	}))
}

// Scale multiplies every element by f.
func (a *DataArray) Scale(f float64) *DataArray {
	parent := a.node
	return a.withNode(deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		return floats.ScaleTo(make([]float64, len(in)), f, in), nil
	}))
}

// ZipWith combines two arrays of identical dims and shape element-wise.
// The result keeps the receiver's name, coordinates and attributes.
func (a *DataArray) ZipWith(b *DataArray, fn func(x, y float64) float64) (*DataArray, error) {
	if !slices.Equal(a.dims, b.dims) || !slices.Equal(a.shape, b.shape) {
		return nil, fmt.Errorf("cannot combine %s%v%v with %s%v%v", a.name, a.dims, a.shape, b.name, b.dims, b.shape)
	}
	left, right := a.node, b.node
	return a.withNode(deferred(func() ([]float64, error) {
		x, err := left.get()
		if err != nil {
			return nil, err
		}
		y, err := right.get()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(x))
		for i := range x {
			out[i] = fn(x[i], y[i])
		}
		return out, nil
	})), nil
}

// Isel selects index i along dim and drops the dimension. Coordinates that
// varied along dim become their value at i.
func (a *DataArray) Isel(dim string, i int) (*DataArray, error) {
	axis := slices.Index(a.dims, dim)
	if axis < 0 {
		return nil, a.missingDim(dim)
	}
	if i < 0 || i >= a.shape[axis] {
		return nil, indexRangeError(dim, i, a.shape[axis])
	}
	return a.sliceAxis(axis, i, i+1, true), nil
}

// Slice keeps indices [start, end) along dim.
func (a *DataArray) Slice(dim string, start, end int) (*DataArray, error) {
	axis := slices.Index(a.dims, dim)
	if axis < 0 {
		return nil, a.missingDim(dim)
	}
	n := a.shape[axis]
	if start < 0 || start > n {
		return nil, &RangeError{Name: dim, Value: float64(start), Min: 0, Max: float64(n)}
	}
	if end < start || end > n {
		return nil, &RangeError{Name: dim, Value: float64(end), Min: float64(start), Max: float64(n)}
	}
	return a.sliceAxis(axis, start, end, false), nil
}

func (a *DataArray) sliceAxis(axis, start, end int, drop bool) *DataArray {
	dim := a.dims[axis]
	sizes := a.Sizes()
	inShape := slices.Clone(a.shape)
	dims := slices.Clone(a.dims)
	shape := slices.Clone(a.shape)
	shape[axis] = end - start
	if drop {
		dims = slices.Delete(dims, axis, axis+1)
		shape = slices.Delete(shape, axis, axis+1)
	}
	coords := make([]Coord, 0, len(a.coords))
	for _, c := range a.coords {
		coords = append(coords, c.sliceAlong(sizes, dim, start, end, drop))
	}
	parent := a.node
	return a.derive(dims, shape, coords, deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		return sliceAxis(in, inShape, axis, start, end), nil
	}))
}

// Transpose reorders the dimensions. order must name every dimension once.
func (a *DataArray) Transpose(order ...string) (*DataArray, error) {
	if len(order) != len(a.dims) {
		return nil, fmt.Errorf("transpose %s: order %v does not match dims %v", a.name, order, a.dims)
	}
	perm := make([]int, len(order))
	identity := true
	for i, d := range order {
		p := slices.Index(a.dims, d)
		if p < 0 {
			return nil, a.missingDim(d)
		}
		if slices.Index(order, d) != i {
			return nil, fmt.Errorf("transpose %s: dimension %q repeated", a.name, d)
		}
		perm[i] = p
		identity = identity && p == i
	}
	if identity {
		return a, nil
	}
	inStrides := strides(a.shape)
	shape := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = a.shape[p]
	}
	parent := a.node
	return a.derive(slices.Clone(order), shape, slices.Clone(a.coords), deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(in))
		idx := make([]int, len(shape))
		for i := range out {
			off := 0
			for ax, p := range perm {
				off += idx[ax] * inStrides[p]
			}
			out[i] = in[off]
			for ax := len(shape) - 1; ax >= 0; ax-- {
				idx[ax]++
				if idx[ax] < shape[ax] {
					break
				}
				idx[ax] = 0
			}
		}
		return out, nil
	})), nil
}

// reduce collapses dim by applying fn to every lane along it. fn may reorder
// the lane in place. Only index coordinates of the remaining dimensions
// survive; auxiliary and scalar coordinates are dropped, the way array
// libraries treat them during reductions.
func (a *DataArray) reduce(dim string, fn func(lane []float64) float64) (*DataArray, error) {
	axis := slices.Index(a.dims, dim)
	if axis < 0 {
		return nil, a.missingDim(dim)
	}
	outer, n, inner := a.split(axis)
	dims := slices.Delete(slices.Clone(a.dims), axis, axis+1)
	shape := slices.Delete(slices.Clone(a.shape), axis, axis+1)
	parent := a.node
	return a.derive(dims, shape, a.indexCoords(dims), deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		out := make([]float64, outer*inner)
		lane := make([]float64, n)
		for o := 0; o < outer; o++ {
			for j := 0; j < inner; j++ {
				for k := 0; k < n; k++ {
					lane[k] = in[(o*n+k)*inner+j]
				}
				out[o*inner+j] = fn(lane)
			}
		}
		return out, nil
	})), nil
}

// reduceInto collapses dim like reduce but produces k values per lane,
// stored along a new leading dimension newDim.
func (a *DataArray) reduceInto(dim, newDim string, k int, fn func(lane, dst []float64)) (*DataArray, error) {
	axis := slices.Index(a.dims, dim)
	if axis < 0 {
		return nil, a.missingDim(dim)
	}
	outer, n, inner := a.split(axis)
	rest := slices.Delete(slices.Clone(a.dims), axis, axis+1)
	dims := append([]string{newDim}, rest...)
	shape := append([]int{k}, slices.Delete(slices.Clone(a.shape), axis, axis+1)...)
	block := outer * inner
	parent := a.node
	return a.derive(dims, shape, a.indexCoords(rest), deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		out := make([]float64, k*block)
		lane := make([]float64, n)
		dst := make([]float64, k)
		for o := 0; o < outer; o++ {
			for j := 0; j < inner; j++ {
				for m := 0; m < n; m++ {
					lane[m] = in[(o*n+m)*inner+j]
				}
				fn(lane, dst)
				for q, v := range dst {
					out[q*block+o*inner+j] = v
				}
			}
		}
		return out, nil
	})), nil
}

// scan rewrites every lane along dim with fn, keeping shape and coordinates.
func (a *DataArray) scan(dim string, fn func(lane, dst []float64)) (*DataArray, error) {
	axis := slices.Index(a.dims, dim)
	if axis < 0 {
		return nil, a.missingDim(dim)
	}
	outer, n, inner := a.split(axis)
	parent := a.node
	return a.withNode(deferred(func() ([]float64, error) {
		in, err := parent.get()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(in))
		lane := make([]float64, n)
		dst := make([]float64, n)
		for o := 0; o < outer; o++ {
			for j := 0; j < inner; j++ {
				for k := 0; k < n; k++ {
					lane[k] = in[(o*n+k)*inner+j]
				}
				fn(lane, dst)
				for k, v := range dst {
					out[(o*n+k)*inner+j] = v
				}
			}
		}
		return out, nil
	})), nil
}

func (a *DataArray) split(axis int) (outer, n, inner int) {
	return product(a.shape[:axis]), a.shape[axis], product(a.shape[axis+1:])
}

func (a *DataArray) indexCoords(dims []string) []Coord {
	var coords []Coord
	for _, c := range a.coords {
		if len(c.Dims) == 1 && c.Dims[0] == c.Name && slices.Contains(dims, c.Name) {
			coords = append(coords, c)
		}
	}
	return coords
}

func (a *DataArray) missingDim(dim string) error {
	return &CoordinateNotFoundError{Candidates: []string{dim}, Available: a.Dims()}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func strides(shape []int) []int {
	s := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= shape[i]
	}
	return s
}

// sliceAxis copies the block of a row-major array whose index along axis lies in [start, end).
func sliceAxis(values []float64, shape []int, axis, start, end int) []float64 {
	outer := product(shape[:axis])
	inner := product(shape[axis+1:])
	n := shape[axis]
	out := make([]float64, 0, outer*(end-start)*inner)
	for o := 0; o < outer; o++ {
		base := o * n * inner
		out = append(out, values[base+start*inner:base+end*inner]...)
	}
	return out
}
