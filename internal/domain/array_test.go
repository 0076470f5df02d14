package domain

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid2x3(t *testing.T) *DataArray {
	t.Helper()
	da, err := NewDataArray("field", []string{"y", "x"}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6},
		NewIndexCoord("y", KindNumeric, []float64{10, 20}),
		NewIndexCoord("x", KindNumeric, []float64{100, 200, 300}),
		Coord{Name: "aux", Dims: []string{"y", "x"}, Values: []float64{-1, -2, -3, -4, -5, -6}},
	)
	require.NoError(t, err)
	return da
}

func TestNewDataArray_Validation(t *testing.T) {
	tests := []struct {
		name   string
		dims   []string
		shape  []int
		values []float64
		coords []Coord
	}{
		{"value count mismatch", []string{"x"}, []int{3}, []float64{1, 2}, nil},
		{"dims shape mismatch", []string{"x", "y"}, []int{2}, []float64{1, 2}, nil},
		{"duplicate dim", []string{"x", "x"}, []int{1, 1}, []float64{1}, nil},
		{"coord on unknown dim", []string{"x"}, []int{2}, []float64{1, 2}, []Coord{NewIndexCoord("y", KindNumeric, []float64{1, 2})}},
		{"coord length mismatch", []string{"x"}, []int{2}, []float64{1, 2}, []Coord{NewIndexCoord("x", KindNumeric, []float64{1})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDataArray("v", tt.dims, tt.shape, tt.values, tt.coords...)
			assert.Error(t, err)
		})
	}
}

func TestDataArray_IselDropsDimAndSlicesCoords(t *testing.T) {
	da := grid2x3(t)

	row, err := da.Isel("y", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, row.Dims())
	assert.Equal(t, []float64{4, 5, 6}, materialize(t, row))

	y, ok := row.Coord("y")
	require.True(t, ok)
	assert.True(t, y.IsScalar())
	assert.Equal(t, []float64{20}, y.Values)

	aux, ok := row.Coord("aux")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, aux.Dims)
	assert.Equal(t, []float64{-4, -5, -6}, aux.Values)

	col, err := da.Isel("x", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6}, materialize(t, col))
}

func TestDataArray_IselErrors(t *testing.T) {
	da := grid2x3(t)

	_, err := da.Isel("x", 3)
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "x", rangeErr.Name)
	assert.Equal(t, 2.0, rangeErr.Max)

	_, err = da.Isel("z", 0)
	assert.ErrorIs(t, err, ErrCoordinateNotFound)
}

func TestDataArray_Slice(t *testing.T) {
	da := grid2x3(t)

	s, err := da.Slice("x", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, s.Shape())
	assert.Equal(t, []float64{2, 3, 5, 6}, materialize(t, s))
	x, _ := s.Coord("x")
	assert.Equal(t, []float64{200, 300}, x.Values)

	empty, err := da.Slice("x", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = da.Slice("x", 2, 4)
	assert.ErrorIs(t, err, ErrRange)
}

func TestDataArray_Transpose(t *testing.T) {
	da := grid2x3(t)

	tr, err := da.Transpose("x", "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, tr.Dims())
	assert.Equal(t, []int{3, 2}, tr.Shape())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, materialize(t, tr))

	v, err := tr.Value(map[string]int{"x": 2, "y": 1})
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	_, err = da.Transpose("x")
	assert.Error(t, err)
}

func TestDataArray_LazyEvaluatesOnce(t *testing.T) {
	var loads atomic.Int32
	da, err := NewLazyDataArray("lazy", []string{"x"}, []int{3}, func() ([]float64, error) {
		loads.Add(1)
		return []float64{1, 2, 3}, nil
	})
	require.NoError(t, err)

	scaled := da.Scale(2).Map(func(v float64) float64 { return v + 1 })
	assert.Equal(t, int32(0), loads.Load(), "building the graph must not read data")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, err := scaled.Materialize()
			assert.NoError(t, err)
			assert.Equal(t, []float64{3, 5, 7}, values)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestDataArray_LazyLoadError(t *testing.T) {
	boom := errors.New("boom")
	da, err := NewLazyDataArray("lazy", []string{"x"}, []int{2}, func() ([]float64, error) { return nil, boom })
	require.NoError(t, err)

	_, err = da.Scale(3).Materialize()
	assert.ErrorIs(t, err, boom)

	short, err := NewLazyDataArray("short", []string{"x"}, []int{2}, func() ([]float64, error) { return []float64{1}, nil })
	require.NoError(t, err)
	_, err = short.Materialize()
	assert.Error(t, err)
}

func TestDataArray_MaterializeReturnsCopy(t *testing.T) {
	da := grid2x3(t)
	values := materialize(t, da)
	values[0] = 99
	assert.Equal(t, 1.0, materialize(t, da)[0])
}

func TestDataArray_ZipWith(t *testing.T) {
	a := grid2x3(t)
	b := a.Scale(10)

	sum, err := a.ZipWith(b, func(x, y float64) float64 { return x + y })
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33, 44, 55, 66}, materialize(t, sum))

	row, err := a.Isel("y", 0)
	require.NoError(t, err)
	_, err = a.ZipWith(row, func(x, y float64) float64 { return x })
	assert.Error(t, err)
}

func TestDataset_SharedDimsMustAgree(t *testing.T) {
	a := grid2x3(t)
	b, err := NewDataArray("other", []string{"x"}, []int{2}, []float64{1, 2})
	require.NoError(t, err)

	_, err = NewDataset(a, b)
	assert.Error(t, err)

	_, err = NewDataset(a, a)
	assert.Error(t, err)
}

func TestDataset_IselAppliesToVarsWithDim(t *testing.T) {
	a := grid2x3(t)
	b, err := NewDataArray("profile", []string{"y"}, []int{2}, []float64{7, 8})
	require.NoError(t, err)
	c, err := NewDataArray("scalar", nil, nil, []float64{42})
	require.NoError(t, err)
	ds, err := NewDataset(a, b, c)
	require.NoError(t, err)

	out, err := ds.Isel("y", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Dims())

	p, ok := out.Var("profile")
	require.True(t, ok)
	assert.Equal(t, []float64{8}, materialize(t, p))

	s, _ := out.Var("scalar")
	assert.Equal(t, []float64{42}, materialize(t, s))

	_, err = ds.Isel("nope", 0)
	assert.ErrorIs(t, err, ErrCoordinateNotFound)
}
