// Command gefs-generator writes the synthetic GEFS ensemble forecast to a
// NetCDF file that the server can serve through FORECAST_PATH.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.ngs.io/gefs-api/internal/adapter/store/gefs"
	"go.ngs.io/gefs-api/internal/adapter/store/synthetic"
	"go.ngs.io/gefs-api/internal/domain"
	"go.ngs.io/gefs-api/internal/observability"
)

func main() {
	defaults := synthetic.DefaultConfig()

	// Command line flags
	out := flag.String("out", "./data/gefs/synthetic.nc", "Output NetCDF file")
	initStr := flag.String("init", "", "Initialization time, RFC3339 (default: latest 6-hourly cycle)")
	members := flag.Int("members", defaults.Members, "Ensemble members")
	steps := flag.Int("steps", defaults.Steps, "Forecast steps, including step zero")
	stepHours := flag.Int("step-hours", int(defaults.StepLength.Hours()), "Hours between forecast steps")
	latMin := flag.Float64("lat-min", defaults.Box.LatMin, "Minimum latitude")
	latMax := flag.Float64("lat-max", defaults.Box.LatMax, "Maximum latitude")
	lonMin := flag.Float64("lon-min", defaults.Box.LonMin, "Minimum longitude (-180..180)")
	lonMax := flag.Float64("lon-max", defaults.Box.LonMax, "Maximum longitude (-180..180)")
	resolution := flag.Float64("resolution", defaults.Resolution, "Grid resolution in degrees")
	flag.Parse()

	logger, err := observability.NewLogger(true, "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	init := synthetic.LatestCycle(time.Now())
	if *initStr != "" {
		t, err := time.Parse(time.RFC3339, *initStr)
		if err != nil {
			logger.Fatalf("Invalid -init (expected RFC3339): %v", err)
		}
		init = t.UTC()
	}

	cfg := synthetic.Config{
		Members:    *members,
		Steps:      *steps,
		StepLength: time.Duration(*stepHours) * time.Hour,
		Box:        domain.BoundingBox{LatMin: *latMin, LatMax: *latMax, LonMin: *lonMin, LonMax: *lonMax},
		Resolution: *resolution,
	}
	if cfg.Members < 1 || cfg.Steps < 2 || cfg.StepLength <= 0 || cfg.Resolution <= 0 {
		logger.Fatalf("Need at least 1 member, 2 steps, and positive step length and resolution")
	}
	if cfg.Box.LatMin >= cfg.Box.LatMax || cfg.Box.LonMin >= cfg.Box.LonMax {
		logger.Fatalf("Empty region: %+v", cfg.Box)
	}

	logger.Infow("generating synthetic forecast",
		"init", init.Format(time.RFC3339),
		"members", cfg.Members,
		"steps", cfg.Steps,
		"step_length", cfg.StepLength,
		"box", cfg.Box,
		"resolution", cfg.Resolution,
	)

	ds, err := synthetic.Build(cfg, init)
	if err != nil {
		logger.Fatalf("Failed to build forecast: %v", err)
	}

	// Create output directory
	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		logger.Fatalf("Failed to create output directory: %v", err)
	}
	if err := gefs.Write(*out, ds); err != nil {
		logger.Fatalf("Failed to write %s: %v", *out, err)
	}

	total := 0
	for _, v := range ds.Vars() {
		total += v.Len()
	}
	logger.Infow("generation complete",
		"path", *out,
		"variables", ds.Names(),
		"sizes", ds.Sizes(),
		"approx_mb", float64(total*4)/1024/1024,
	)
}
