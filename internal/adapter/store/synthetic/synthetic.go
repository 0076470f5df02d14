// Package synthetic generates a deterministic GEFS-shaped forecast dataset
// for development and tests when no forecast file is configured.
package synthetic

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/gefs-api/internal/domain"
)

// Variable names produced by the store.
const (
	PrecipitationVar = "precipitation_surface"
	TemperatureVar   = "temperature_2m"
)

// CycleInterval is the spacing of GEFS initialization cycles.
const CycleInterval = 6 * time.Hour

// Config describes the generated grid.
type Config struct {
	Members    int
	Steps      int           // Including step zero.
	StepLength time.Duration // Spacing of the lead-time axis.
	Box        domain.BoundingBox
	Resolution float64 // Grid spacing in degrees.
}

// DefaultConfig is a week of 6-hourly steps, 31 members, 1 degree over the western US.
func DefaultConfig() Config {
	return Config{
		Members:    31,
		Steps:      29,
		StepLength: 6 * time.Hour,
		Box:        domain.WesternUS,
		Resolution: 1,
	}
}

// Store serves a synthetic forecast initialised at the latest cycle before
// the clock's current time.
type Store struct {
	clock  clockwork.Clock
	config Config

	mu    sync.Mutex
	init  time.Time
	cache *domain.Dataset
}

// NewStore creates a synthetic store with DefaultConfig.
func NewStore(clock clockwork.Clock) *Store {
	return NewStoreWithConfig(clock, DefaultConfig())
}

// NewStoreWithConfig creates a synthetic store with the given grid.
func NewStoreWithConfig(clock clockwork.Clock, config Config) *Store {
	return &Store{clock: clock, config: config}
}

// LatestCycle returns the most recent 00/06/12/18 UTC cycle not after now.
func LatestCycle(now time.Time) time.Time {
	return now.UTC().Truncate(CycleInterval)
}

// Load returns the dataset for the current cycle. It is rebuilt when the
// clock crosses into a new cycle.
func (s *Store) Load(ctx context.Context) (*domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	init := LatestCycle(s.clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil && s.init.Equal(init) {
		return s.cache, nil
	}
	ds, err := Build(s.config, init)
	if err != nil {
		return nil, err
	}
	s.init, s.cache = init, ds
	return ds, nil
}

// Build generates the forecast initialised at init. Values are computed on
// first Materialize.
func Build(cfg Config, init time.Time) (*domain.Dataset, error) {
	steps := make([]float64, cfg.Steps)
	for i := range steps {
		steps[i] = float64(i) * cfg.StepLength.Seconds()
	}
	members := make([]float64, cfg.Members)
	for i := range members {
		members[i] = float64(i)
	}
	var lats []float64
	for lat := cfg.Box.LatMax; lat >= cfg.Box.LatMin-1e-9; lat -= cfg.Resolution {
		lats = append(lats, lat)
	}
	var lons []float64
	for lon := cfg.Box.LonMin; lon <= cfg.Box.LonMax+1e-9; lon += cfg.Resolution {
		lons = append(lons, domain.NormalizeLon360(lon))
	}

	dims := []string{"init_time", "lead_time", "ensemble_member", "latitude", "longitude"}
	shape := []int{1, len(steps), len(members), len(lats), len(lons)}
	coords := []domain.Coord{
		domain.NewIndexCoord("init_time", domain.KindTime, []float64{float64(init.Unix())}),
		domain.NewIndexCoord("lead_time", domain.KindDuration, steps),
		domain.NewIndexCoord("ensemble_member", domain.KindNumeric, members),
		domain.NewIndexCoord("latitude", domain.KindNumeric, lats),
		domain.NewIndexCoord("longitude", domain.KindNumeric, lons),
	}
	coords[3].Units = "degrees_north"
	coords[4].Units = "degrees_east"

	precip, err := domain.NewLazyDataArray(PrecipitationVar, dims, shape, func() ([]float64, error) {
		return fill(shape, func(s, m int, lat, lon float64) float64 {
			if s == 0 {
				return math.NaN()
			}
			return precipitationRate(s, m, lat, lon)
		}, lats, lons), nil
	}, coords...)
	if err != nil {
		return nil, err
	}
	hour := float64(init.Hour())
	stepHours := cfg.StepLength.Hours()
	temp, err := domain.NewLazyDataArray(TemperatureVar, dims, shape, func() ([]float64, error) {
		return fill(shape, func(s, m int, lat, lon float64) float64 {
			return temperature(hour+float64(s)*stepHours, s, m, lat, lon)
		}, lats, lons), nil
	}, coords...)
	if err != nil {
		return nil, err
	}

	ds, err := domain.NewDataset(
		precip.WithAttr("units", "kg m-2 s-1").WithAttr("long_name", "Total precipitation rate"),
		temp.WithAttr("units", "degree_Celsius").WithAttr("long_name", "2 metre temperature"),
	)
	if err != nil {
		return nil, err
	}
	return ds.WithAttr("source", "synthetic"), nil
}

func fill(shape []int, fn func(s, m int, lat, lon float64) float64, lats, lons []float64) []float64 {
	out := make([]float64, 0, shape[1]*shape[2]*len(lats)*len(lons))
	for s := 0; s < shape[1]; s++ {
		for m := 0; m < shape[2]; m++ {
			for _, lat := range lats {
				for _, lon := range lons {
					out = append(out, fn(s, m, lat, lon))
				}
			}
		}
	}
	return out
}

// precipitationRate is a non-negative rate in kg m-2 s-1 with spatial
// storms that drift east and a member-dependent perturbation.
func precipitationRate(s, m int, lat, lon float64) float64 {
	storm := math.Sin(lat*0.35+float64(s)*0.25) * math.Cos((lon-float64(s)*1.5)*0.2)
	spread := 0.4 * math.Sin(float64(m)*1.7+float64(s)*0.9)
	return math.Max(0, 2e-5*(storm+spread+0.2))
}

// temperature in degrees Celsius with a diurnal cycle.
func temperature(validHour float64, s, m int, lat, lon float64) float64 {
	diurnal := 8 * math.Sin(2*math.Pi*(validHour-9)/24)
	spread := 0.15 * float64(s) * math.Sin(float64(m)*2.3+float64(s)*0.5)
	return 20 - 0.7*(lat-30) + 0.05*(lon-240) + diurnal + spread
}
