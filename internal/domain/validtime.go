package domain

import (
	"slices"
)

// ValidTimeName is the coordinate holding initialization time plus lead time.
const ValidTimeName = "valid_time"

// AddValidTime attaches valid_time = init time + step to every variable that
// carries both axes. A dataset that already has valid_time is returned as is.
func AddValidTime(ds *Dataset) (*Dataset, error) {
	if slices.Contains(ds.CoordNames(), ValidTimeName) {
		return ds, nil
	}
	timeName, err := Resolve(ds, RoleTime)
	if err != nil {
		return nil, err
	}
	stepName, err := Resolve(ds, RoleStep)
	if err != nil {
		return nil, err
	}
	init, ok := ds.Coord(timeName)
	if !ok {
		return nil, &CoordinateNotFoundError{Role: RoleTime, Candidates: []string{timeName}, Available: ds.CoordNames()}
	}
	step, ok := ds.Coord(stepName)
	if !ok {
		return nil, &CoordinateNotFoundError{Role: RoleStep, Candidates: []string{stepName}, Available: ds.CoordNames()}
	}

	// Outer sum, init dims first.
	values := make([]float64, 0, len(init.Values)*len(step.Values))
	for _, t := range init.Values {
		for _, s := range step.Values {
			values = append(values, t+s)
		}
	}
	valid := Coord{
		Name:   ValidTimeName,
		Dims:   append(slices.Clone(init.Dims), step.Dims...),
		Values: values,
		Kind:   KindTime,
	}
	return ds.WithCoord(valid)
}
