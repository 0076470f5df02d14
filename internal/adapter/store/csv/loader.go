// Package csv provides CSV-based city table loading.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.ngs.io/gefs-api/internal/domain"
)

// CityStore provides access to the named time-series locations. With no
// path configured it serves domain.DefaultCities.
type CityStore struct {
	path string

	once   sync.Once
	cities []domain.City
	err    error
}

// NewCityStore creates a new CSV-based city store.
func NewCityStore(path string) *CityStore {
	return &CityStore{
		path: path,
	}
}

// ListCities returns every city, reading the CSV file on first use.
func (s *CityStore) ListCities() ([]domain.City, error) {
	s.once.Do(func() {
		if s.path == "" {
			s.cities = append([]domain.City(nil), domain.DefaultCities...)
			return
		}
		s.cities, s.err = LoadCities(s.path)
	})
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.City(nil), s.cities...), nil
}

// FindCity looks up a city by name, ignoring case and surrounding space.
func (s *CityStore) FindCity(name string) (domain.City, bool, error) {
	cities, err := s.ListCities()
	if err != nil {
		return domain.City{}, false, err
	}
	name = strings.TrimSpace(name)
	for _, c := range cities {
		if strings.EqualFold(c.Name, name) {
			return c, true, nil
		}
	}
	return domain.City{}, false, nil
}

// LoadCities reads a city table with the header name,lat,lon.
func LoadCities(path string) ([]domain.City, error) {
	//nolint:gosec // G304: Path comes from configuration.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open city file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return ReadCities(file)
}

// ReadCities parses a city table from r.
func ReadCities(r io.Reader) ([]domain.City, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	// Read header.
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	// Validate header.
	expectedHeaders := []string{"name", "lat", "lon"}
	if len(header) != len(expectedHeaders) {
		return nil, fmt.Errorf("invalid CSV header: expected %v, got %v", expectedHeaders, header)
	}
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) != expectedHeaders[i] {
			return nil, fmt.Errorf("invalid CSV header: expected column %d to be %s, got %s", i, expectedHeaders[i], h)
		}
	}

	cities := make([]domain.City, 0)
	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		name := strings.TrimSpace(record[0])
		if name == "" {
			return nil, fmt.Errorf("invalid CSV record: empty city name")
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate city %s", name)
		}
		seen[key] = true

		// Parse latitude.
		lat, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude for city %s: %q", name, record[1])
		}

		// Parse longitude.
		lon, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil || lon < -180 || lon > 360 {
			return nil, fmt.Errorf("invalid longitude for city %s: %q", name, record[2])
		}

		cities = append(cities, domain.City{Name: name, Lat: lat, Lon: lon})
	}

	if len(cities) == 0 {
		return nil, fmt.Errorf("no cities found in CSV")
	}
	return cities, nil
}
