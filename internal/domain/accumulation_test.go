package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lane(t *testing.T, values []float64) *DataArray {
	t.Helper()
	steps := make([]float64, len(values))
	for i := range steps {
		steps[i] = float64(i) * 21600
	}
	da, err := NewDataArray("tp", []string{"step"}, []int{len(values)}, values,
		NewIndexCoord("step", KindDuration, steps))
	require.NoError(t, err)
	return da
}

func TestStepAccumulation_ScalesRate(t *testing.T) {
	// 1e-4 kg m-2 s-1 over 6 hours is 2.16 mm.
	rate := forecastField(t, gefsNames, hours(0, 6, 12), 2, constant(1e-4))

	accum, err := AccumulateRate(rate)
	require.NoError(t, err)
	assert.Equal(t, rate.Dims(), accum.Dims())
	assert.Equal(t, rate.CoordNames(), accum.CoordNames())
	assert.Equal(t, AccumulationUnits, accum.Attr("units"))
	for _, v := range materialize(t, accum) {
		assert.InEpsilon(t, 2.16, v, 1e-9)
	}
}

func TestStepAccumulation_IsDeferred(t *testing.T) {
	loads := 0
	rate, err := NewLazyDataArray("tp", []string{"step"}, []int{2}, func() ([]float64, error) {
		loads++
		return []float64{1, 2}, nil
	}, NewIndexCoord("step", KindDuration, []float64{0, 3600}))
	require.NoError(t, err)

	accum, err := AccumulateRate(rate)
	require.NoError(t, err)
	total, err := CumulativeAccumulation(accum, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, loads)

	assert.Equal(t, []float64{7200}, materialize(t, total))
	assert.Equal(t, 1, loads)
}

func TestCumulativeAccumulation_SkipsInitialStep(t *testing.T) {
	// Step 0 is NaN as in real GEFS output; it must never reach the sum.
	rate := forecastField(t, gefsNames, hours(0, 6, 12, 18), 3, func(s, m, i, j int) float64 {
		if s == 0 {
			return math.NaN()
		}
		return float64(s) * 1e-4
	})
	accum, err := AccumulateRate(rate)
	require.NoError(t, err)

	total, err := CumulativeAccumulation(accum, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"init_time", "ensemble_member", "latitude", "longitude"}, total.Dims())

	want := 0.0
	for s := 1; s <= 3; s++ {
		v, err := accum.Value(map[string]int{"init_time": 0, "lead_time": s, "ensemble_member": 0, "latitude": 0, "longitude": 0})
		require.NoError(t, err)
		want += v
	}
	assert.InEpsilon(t, 2.16*6, want, 1e-9)
	for _, v := range materialize(t, total) {
		assert.False(t, math.IsNaN(v))
		assert.InEpsilon(t, want, v, 1e-9)
	}

	step, ok := total.Coord("lead_time")
	require.True(t, ok)
	assert.True(t, step.IsScalar())
	assert.Equal(t, 18*time.Hour, step.Duration(0))
}

func TestCumulativeAccumulation_Boundaries(t *testing.T) {
	accum := lane(t, []float64{math.NaN(), 1, 2, 3})

	zero, err := CumulativeAccumulation(accum, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, materialize(t, zero))

	_, err = CumulativeAccumulation(accum, 4)
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 3.0, rangeErr.Max)

	_, err = CumulativeAccumulation(accum, -1)
	assert.ErrorIs(t, err, ErrRange)
}

func TestRunningAccumulation(t *testing.T) {
	out, err := RunningAccumulation(lane(t, []float64{math.NaN(), 1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 3, 6}, materialize(t, out))
	assert.Equal(t, AccumulationUnits, out.Attr("units"))
}

func TestWindowAccumulation(t *testing.T) {
	accum := lane(t, []float64{math.NaN(), 1, 2, 3, 4})

	out, err := WindowAccumulation(accum, 12*time.Hour)
	require.NoError(t, err)
	got := materialize(t, out)
	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, []float64{1, 3, 5, 7}, got[1:])
	assert.Equal(t, "12h", out.Attr("window"))

	// Shorter than one step still covers the current step.
	out, err = WindowAccumulation(accum, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, materialize(t, out)[1:])

	_, err = WindowAccumulation(accum, 0)
	assert.ErrorIs(t, err, ErrRange)
}

func TestWindowAccumulation_SkipsStepZero(t *testing.T) {
	// A finite value at initialization is not part of any window, so a
	// window reaching back to step zero equals the running total.
	accum := lane(t, []float64{5, 1, 2, 3})

	out, err := WindowAccumulation(accum, 24*time.Hour)
	require.NoError(t, err)
	got := materialize(t, out)
	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, []float64{1, 3, 6}, got[1:])

	running, err := RunningAccumulation(accum)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 3, 6}, materialize(t, running))

	total, err := CumulativeAccumulation(accum, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, materialize(t, total))
}

func TestAccumulation_MissingStepPropagates(t *testing.T) {
	accum := lane(t, []float64{math.NaN(), 1, math.NaN(), 3})

	total, err := CumulativeAccumulation(accum, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(materialize(t, total)[0]))

	running, err := RunningAccumulation(accum)
	require.NoError(t, err)
	got := materialize(t, running)
	assert.Equal(t, []float64{0, 1}, got[:2])
	assert.True(t, math.IsNaN(got[2]))
	assert.True(t, math.IsNaN(got[3]))

	window, err := WindowAccumulation(accum, 12*time.Hour)
	require.NoError(t, err)
	got = materialize(t, window)
	assert.True(t, math.IsNaN(got[0]))
	assert.Equal(t, 1.0, got[1])
	assert.True(t, math.IsNaN(got[2]), "window covering the missing step")
	assert.True(t, math.IsNaN(got[3]), "window covering the missing step")

	// Once the window moves past the gap the total is defined again.
	window, err = WindowAccumulation(accum, 6*time.Hour)
	require.NoError(t, err)
	got = materialize(t, window)
	assert.True(t, math.IsNaN(got[2]))
	assert.Equal(t, 3.0, got[3])
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"6h", 6 * time.Hour, false},
		{"24h", 24 * time.Hour, false},
		{" 7D ", 7 * 24 * time.Hour, false},
		{"0h", 0, true},
		{"6", 0, true},
		{"1w", 0, true},
		{"", 0, true},
		{"366d", MaxWindow, false},
		{"8784h", MaxWindow, false},
		{"367d", 0, true},
		{"8785h", 0, true},
		{"200000000000d", 0, true},
		{"99999999999999999999h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatWindow(t *testing.T) {
	assert.Equal(t, "6h", FormatWindow(6*time.Hour))
	assert.Equal(t, "24h", FormatWindow(24*time.Hour))
	assert.Equal(t, "36h", FormatWindow(36*time.Hour))
	assert.Equal(t, "2d", FormatWindow(48*time.Hour))
}
