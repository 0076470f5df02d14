package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// QuantileDim names the axis that replaces the ensemble axis in Quantiles.
const QuantileDim = "quantile"

// Names of the variables in a summary bundle.
const (
	StatMean  = "mean"
	StatStd   = "std"
	StatLower = "lower"
	StatUpper = "upper"
)

// DefaultQuantiles are the levels shown on maps and time series.
var DefaultQuantiles = []float64{0.10, 0.50, 0.90}

// SummaryOptions selects what Summarize puts in a bundle.
type SummaryOptions struct {
	// Quantiles are levels in [0, 1]; each becomes a variable named pNN.
	Quantiles []float64
	// NonNegative clips the lower band (mean - std) at zero, for quantities
	// such as accumulated precipitation.
	NonNegative bool
}

// Quantiles reduces the ensemble axis to the requested levels. Each level is
// the linear interpolation between order statistics at rank (n-1)*q over the
// finite members; NaN and infinite members are skipped and a lane with no
// finite member yields NaN. The ensemble axis
// is replaced by a leading quantile axis and every coordinate that did not
// depend on the ensemble axis is kept.
func Quantiles(da *DataArray, qs []float64) (*DataArray, error) {
	for _, q := range qs {
		if !(q >= 0 && q <= 1) {
			return nil, &RangeError{Name: QuantileDim, Value: q, Min: 0, Max: 1}
		}
	}
	dim, err := ensembleDim(da)
	if err != nil {
		return nil, err
	}
	kept := invariantCoords(da, dim)
	levels := slices.Clone(qs)
	out, err := da.reduceInto(dim, QuantileDim, len(levels), func(lane, dst []float64) {
		valid := finite(lane)
		slices.Sort(valid)
		for i, q := range levels {
			dst[i] = quantileSorted(valid, q)
		}
	})
	if err != nil {
		return nil, err
	}
	out = out.withCoord(NewIndexCoord(QuantileDim, KindNumeric, levels))
	return reattach(out, kept), nil
}

// Percentiles returns one variable per percentile (0-100), named pNN, with
// the ensemble axis removed and no quantile axis.
func Percentiles(da *DataArray, percentiles []float64) (*Dataset, error) {
	qs := make([]float64, len(percentiles))
	for i, p := range percentiles {
		qs[i] = p / 100
	}
	q, err := Quantiles(da, qs)
	if err != nil {
		return nil, err
	}
	vars := make([]*DataArray, 0, len(qs))
	for i, level := range qs {
		v, err := q.Isel(QuantileDim, i)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v.WithoutCoord(QuantileDim).WithName(PercentileName(level)))
	}
	return NewDataset(vars...)
}

// PercentileName names the variable holding quantile level q, e.g. 0.1 -> "p10".
func PercentileName(q float64) string {
	return "p" + strconv.Itoa(int(math.Round(q*100)))
}

// Mean is the ensemble mean over finite members.
func Mean(da *DataArray) (*DataArray, error) {
	return moment(da, func(valid []float64) float64 {
		if len(valid) == 0 {
			return math.NaN()
		}
		return stat.Mean(valid, nil)
	})
}

// StdDev is the unbiased (n-1) sample standard deviation over finite
// members. Fewer than two valid members yield NaN.
func StdDev(da *DataArray) (*DataArray, error) {
	return moment(da, func(valid []float64) float64 {
		if len(valid) < 2 {
			return math.NaN()
		}
		return stat.StdDev(valid, nil)
	})
}

func moment(da *DataArray, fn func(valid []float64) float64) (*DataArray, error) {
	dim, err := ensembleDim(da)
	if err != nil {
		return nil, err
	}
	kept := invariantCoords(da, dim)
	out, err := da.reduce(dim, func(lane []float64) float64 { return fn(finite(lane)) })
	if err != nil {
		return nil, err
	}
	return reattach(out, kept), nil
}

// Summarize assembles the display bundle: mean, std, upper (mean + std),
// lower (mean - std, clipped at zero when opts.NonNegative) and one pNN
// variable per requested quantile. Nothing is evaluated here.
func Summarize(da *DataArray, opts SummaryOptions) (*Dataset, error) {
	dim, err := ensembleDim(da)
	if err != nil {
		return nil, err
	}
	n, _ := da.Size(dim)
	mean, err := Mean(da)
	if err != nil {
		return nil, err
	}
	std, err := StdDev(da)
	if err != nil {
		return nil, err
	}
	upper, err := mean.ZipWith(std, func(m, s float64) float64 { return m + s })
	if err != nil {
		return nil, err
	}
	lower, err := mean.ZipWith(std, func(m, s float64) float64 { return m - s })
	if err != nil {
		return nil, err
	}
	if opts.NonNegative {
		lower = lower.Map(func(v float64) float64 { return math.Max(v, 0) })
	}
	vars := []*DataArray{
		mean.WithName(StatMean),
		std.WithName(StatStd),
		lower.WithName(StatLower),
		upper.WithName(StatUpper),
	}
	if len(opts.Quantiles) > 0 {
		q, err := Quantiles(da, opts.Quantiles)
		if err != nil {
			return nil, err
		}
		for i, level := range opts.Quantiles {
			v, err := q.Isel(QuantileDim, i)
			if err != nil {
				return nil, err
			}
			vars = append(vars, v.WithoutCoord(QuantileDim).WithName(PercentileName(level)))
		}
	}
	bundle, err := NewDataset(vars...)
	if err != nil {
		return nil, fmt.Errorf("assemble bundle for %s: %w", da.Name(), err)
	}
	return bundle.
		WithAttr("source", da.Name()).
		WithAttr("ensemble_dim", dim).
		WithAttr("ensemble_size", strconv.Itoa(n)), nil
}

func ensembleDim(da *DataArray) (string, error) {
	dim, err := Resolve(da, RoleEnsemble)
	if err != nil {
		return "", err
	}
	if n, _ := da.Size(dim); n == 0 {
		return "", &EmptyEnsembleError{Dim: dim}
	}
	return dim, nil
}

// invariantCoords captures the coordinates that survive an ensemble reduction.
func invariantCoords(da *DataArray, dim string) []Coord {
	var kept []Coord
	for _, c := range da.coords {
		if !c.DependsOn(dim) {
			kept = append(kept, c)
		}
	}
	return kept
}

// reattach restores captured coordinates that a reduction dropped.
func reattach(out *DataArray, kept []Coord) *DataArray {
	for _, c := range kept {
		if !out.HasCoord(c.Name) {
			out = out.withCoord(c)
		}
	}
	return out
}

func finite(lane []float64) []float64 {
	valid := make([]float64, 0, len(lane))
	for _, v := range lane {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, v)
		}
	}
	return valid
}

func quantileSorted(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := float64(len(sorted)-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
