package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type axisNames struct {
	time, step, ensemble, lat, lon string
}

var (
	gefsNames    = axisNames{"init_time", "lead_time", "ensemble_member", "latitude", "longitude"}
	genericNames = axisNames{"time", "step", "ensemble", "latitude", "longitude"}
)

var (
	testInit = time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	testLats = []float64{42, 43, 44}
	testLons = []float64{-117, -116}
)

// forecastField builds a (time, step, ensemble, lat, lon) field with one
// initialization time. fill receives step, member, lat and lon indices.
func forecastField(t *testing.T, names axisNames, steps []float64, members int, fill func(s, m, i, j int) float64) *DataArray {
	t.Helper()
	shape := []int{1, len(steps), members, len(testLats), len(testLons)}
	values := make([]float64, 0, product(shape))
	for s := range steps {
		for m := 0; m < members; m++ {
			for i := range testLats {
				for j := range testLons {
					values = append(values, fill(s, m, i, j))
				}
			}
		}
	}
	memberIDs := make([]float64, members)
	for m := range memberIDs {
		memberIDs[m] = float64(m)
	}
	da, err := NewDataArray("precipitation_surface",
		[]string{names.time, names.step, names.ensemble, names.lat, names.lon}, shape, values,
		NewIndexCoord(names.time, KindTime, []float64{float64(testInit.Unix())}),
		NewIndexCoord(names.step, KindDuration, steps),
		NewIndexCoord(names.ensemble, KindNumeric, memberIDs),
		NewIndexCoord(names.lat, KindNumeric, testLats),
		NewIndexCoord(names.lon, KindNumeric, testLons),
	)
	require.NoError(t, err)
	return da.WithAttr("units", "kg m-2 s-1")
}

func constant(v float64) func(s, m, i, j int) float64 {
	return func(int, int, int, int) float64 { return v }
}

func hours(h ...float64) []float64 {
	out := make([]float64, len(h))
	for i, v := range h {
		out[i] = v * 3600
	}
	return out
}

func materialize(t *testing.T, da *DataArray) []float64 {
	t.Helper()
	values, err := da.Materialize()
	require.NoError(t, err)
	return values
}
