package interp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/gefs-api/internal/domain"
)

// plane builds a (member, lat, lon) field with value = member*100 + lat + lon/10.
// Latitude descends and longitude uses 0..360, like GEFS files.
func plane(t *testing.T) *domain.DataArray {
	t.Helper()
	lats := []float64{44, 43, 42}
	lons := []float64{243, 244, 245}
	values := make([]float64, 0, 2*len(lats)*len(lons))
	for m := 0; m < 2; m++ {
		for _, lat := range lats {
			for _, lon := range lons {
				values = append(values, float64(m)*100+lat+lon/10)
			}
		}
	}
	da, err := domain.NewDataArray("t2m", []string{"member", "latitude", "longitude"}, []int{2, 3, 3}, values,
		domain.NewIndexCoord("member", domain.KindNumeric, []float64{0, 1}),
		domain.NewIndexCoord("latitude", domain.KindNumeric, lats),
		domain.NewIndexCoord("longitude", domain.KindNumeric, lons),
	)
	require.NoError(t, err)
	return da
}

func materialize(t *testing.T, da *domain.DataArray) []float64 {
	t.Helper()
	values, err := da.Materialize()
	require.NoError(t, err)
	return values
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", MethodNearest, false},
		{"nearest", MethodNearest, false},
		{"Bilinear", MethodBilinear, false},
		{"cubic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestGridCell_WeightsSumToOne(t *testing.T) {
	for _, c := range []GridCell{{U: 0, T: 0}, {U: 0.5, T: 0.5}, {U: 0.2, T: 0.9}, {U: 1, T: 1}} {
		w := c.Weights()
		assert.InDelta(t, 1.0, w[0]+w[1]+w[2]+w[3], 1e-12)
	}
	// Center of the cell weights every corner equally.
	assert.Equal(t, [4]float64{0.25, 0.25, 0.25, 0.25}, GridCell{U: 0.5, T: 0.5}.Weights())
}

func TestNearestIndex(t *testing.T) {
	i, err := NearestIndex([]float64{44, 43, 42}, 42.6)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = NearestIndex([]float64{0, 10}, -50)
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = NearestIndex(nil, 1)
	assert.Error(t, err)
}

func TestBracket(t *testing.T) {
	tests := []struct {
		name     string
		axis     []float64
		target   float64
		i0, i1   int
		wantFrac float64
	}{
		{"ascending interior", []float64{0, 10, 20}, 15, 1, 2, 0.5},
		{"descending interior", []float64{50, 45, 40}, 47, 0, 1, 0.6},
		{"on grid point", []float64{0, 10, 20}, 10, 0, 1, 1},
		{"first point", []float64{0, 10, 20}, 0, 0, 1, 0},
		{"last point", []float64{0, 10, 20}, 20, 1, 2, 1},
		{"single point", []float64{5}, 5, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i0, i1, frac, err := Bracket(tt.axis, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.i0, i0)
			assert.Equal(t, tt.i1, i1)
			assert.InDelta(t, tt.wantFrac, frac, 1e-12)
		})
	}
}

func TestBracket_OutsideAxis(t *testing.T) {
	_, _, _, err := Bracket([]float64{50, 45, 40}, 39)
	assert.ErrorIs(t, err, domain.ErrRange)

	_, _, _, err = Bracket(nil, 1)
	assert.Error(t, err)
}

func TestSelectPoint_Nearest(t *testing.T) {
	// -115.8 is 244.2 on the 0..360 axis.
	p, err := SelectPoint(plane(t), 42.9, -115.8, MethodNearest)
	require.NoError(t, err)
	assert.Equal(t, []string{"member"}, p.Dims())

	got := materialize(t, p)
	assert.InDelta(t, 43+24.4, got[0], 1e-9)
	assert.InDelta(t, 100+43+24.4, got[1], 1e-9)

	lat, ok := p.Coord("latitude")
	require.True(t, ok)
	assert.True(t, lat.IsScalar())
	assert.Equal(t, []float64{43}, lat.Values)
}

func TestSelectPoint_BilinearIsExactOnPlane(t *testing.T) {
	// The field is linear in lat and lon, so bilinear sampling reproduces it.
	p, err := SelectPoint(plane(t), 42.25, -115.5, MethodBilinear)
	require.NoError(t, err)

	got := materialize(t, p)
	assert.InDelta(t, 42.25+24.45, got[0], 1e-9)
	assert.InDelta(t, 100+42.25+24.45, got[1], 1e-9)

	lat, _ := p.Coord("latitude")
	lon, _ := p.Coord("longitude")
	assert.Equal(t, []float64{42.25}, lat.Values)
	assert.Equal(t, []float64{-115.5}, lon.Values)
}

func TestSelectPoint_BilinearIgnoresZeroWeightNaN(t *testing.T) {
	da, err := domain.NewDataArray("v", []string{"lat", "lon"}, []int{2, 2}, []float64{1, math.NaN(), 3, math.NaN()},
		domain.NewIndexCoord("lat", domain.KindNumeric, []float64{0, 1}),
		domain.NewIndexCoord("lon", domain.KindNumeric, []float64{0, 1}),
	)
	require.NoError(t, err)

	p, err := SelectPoint(da, 0.5, 0, MethodBilinear)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, materialize(t, p)[0], 1e-12)
}

func TestSelectPoint_OutsideGrid(t *testing.T) {
	_, err := SelectPoint(plane(t), 10, -115.5, MethodBilinear)
	assert.ErrorIs(t, err, domain.ErrRange)
}

func TestSelectPoint_RequiresHorizontalAxes(t *testing.T) {
	da, err := domain.NewDataArray("v", []string{"member"}, []int{2}, []float64{1, 2})
	require.NoError(t, err)

	_, err = SelectPoint(da, 43, -116, MethodNearest)
	assert.ErrorIs(t, err, domain.ErrCoordinateNotFound)
}
