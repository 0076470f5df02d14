// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"go.ngs.io/gefs-api/internal/domain"
)

// Config is the service configuration.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// ForecastPath is a GEFS NetCDF file. Empty serves the synthetic dataset.
	ForecastPath string   `env:"FORECAST_PATH"`
	Variables    []string `env:"FORECAST_VARIABLES" envSeparator:","`
	CitiesPath   string   `env:"CITIES_PATH"`

	// Empty allows all origins.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	Debug    bool   `env:"DEBUG" envDefault:"false"`

	LatMin float64 `env:"BBOX_LAT_MIN" envDefault:"30"`
	LatMax float64 `env:"BBOX_LAT_MAX" envDefault:"50"`
	LonMin float64 `env:"BBOX_LON_MIN" envDefault:"-125"`
	LonMax float64 `env:"BBOX_LON_MAX" envDefault:"-100"`

	DefaultWindow   time.Duration `env:"DEFAULT_WINDOW" envDefault:"24h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses and validates the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges that env parsing cannot.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.LatMin < -90 || c.LatMax > 90 || c.LatMin >= c.LatMax {
		return fmt.Errorf("BBOX_LAT_MIN/BBOX_LAT_MAX must satisfy -90 <= min < max <= 90, got %g/%g", c.LatMin, c.LatMax)
	}
	if c.LonMin < -180 || c.LonMax > 180 || c.LonMin >= c.LonMax {
		return fmt.Errorf("BBOX_LON_MIN/BBOX_LON_MAX must satisfy -180 <= min < max <= 180, got %g/%g", c.LonMin, c.LonMax)
	}
	if c.DefaultWindow < time.Hour || c.DefaultWindow%time.Hour != 0 {
		return fmt.Errorf("DEFAULT_WINDOW must be a whole number of hours, got %s", c.DefaultWindow)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// BoundingBox returns the configured forecast region.
func (c Config) BoundingBox() domain.BoundingBox {
	return domain.BoundingBox{LatMin: c.LatMin, LatMax: c.LatMax, LonMin: c.LonMin, LonMax: c.LonMax}
}
