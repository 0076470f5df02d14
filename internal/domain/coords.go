package domain

import (
	"slices"
)

// Role is a semantic axis of a forecast dataset.
type Role string

// Coordinate roles.
const (
	RoleTime      Role = "time"     // Forecast initialization instant.
	RoleStep      Role = "step"     // Lead offset since initialization.
	RoleEnsemble  Role = "ensemble" // Exchangeable forecast realizations.
	RoleLatitude  Role = "latitude"
	RoleLongitude Role = "longitude"
)

// Candidate names per role, highest priority first.
var roleCandidates = map[Role][]string{
	RoleTime:      {"init_time", "time", "initialization_time", "forecast_reference_time"},
	RoleStep:      {"lead_time", "step", "forecast_hour", "forecast_period"},
	RoleEnsemble:  {"ensemble_member", "ensemble", "member", "realization", "number"},
	RoleLatitude:  {"latitude", "lat", "y"},
	RoleLongitude: {"longitude", "lon", "x"},
}

// The ensemble role is reduced over, so it must be a real dimension.
var dimOnlyRoles = map[Role]bool{
	RoleEnsemble: true,
}

// Labeled is anything exposing named dimensions and coordinates.
type Labeled interface {
	Dims() []string
	CoordNames() []string
}

// CoordSource is a Labeled collection that can hand out coordinate values.
type CoordSource interface {
	Labeled
	Coord(name string) (Coord, bool)
}

// Candidates returns the names tried for role, in priority order.
func Candidates(role Role) []string {
	return slices.Clone(roleCandidates[role])
}

// Resolve returns the first candidate name for role present in obj.
// Ambiguity is settled by priority order alone; data is never inspected.
func Resolve(obj Labeled, role Role) (string, error) {
	dims := obj.Dims()
	var coords []string
	if !dimOnlyRoles[role] {
		coords = obj.CoordNames()
	}
	for _, name := range roleCandidates[role] {
		if slices.Contains(dims, name) || slices.Contains(coords, name) {
			return name, nil
		}
	}
	available := dims
	for _, c := range coords {
		if !slices.Contains(available, c) {
			available = append(available, c)
		}
	}
	return "", &CoordinateNotFoundError{
		Role:       role,
		Candidates: Candidates(role),
		Available:  available,
	}
}

// ResolveDim is Resolve restricted to names that are dimensions of obj, for
// operations that index or reduce along the axis.
func ResolveDim(obj Labeled, role Role) (string, error) {
	name, err := Resolve(obj, role)
	if err != nil {
		return "", err
	}
	if !slices.Contains(obj.Dims(), name) {
		return "", &CoordinateNotFoundError{Role: role, Candidates: Candidates(role), Available: obj.Dims()}
	}
	return name, nil
}
