package store

import (
	"context"

	"go.ngs.io/gefs-api/internal/domain"
)

// DatasetLoader is the interface for loading a forecast dataset.
type DatasetLoader interface {
	// Load returns the forecast dataset. Implementations may cache it; data
	// variables are expected to be lazy and only read on Materialize.
	Load(ctx context.Context) (*domain.Dataset, error)
}

// CityLookup is the interface for resolving named time-series locations.
type CityLookup interface {
	// ListCities returns every known city.
	ListCities() ([]domain.City, error)

	// FindCity looks up a city by name, case-insensitively.
	FindCity(name string) (domain.City, bool, error)
}
