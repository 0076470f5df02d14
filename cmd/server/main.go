// Package main provides the GEFS forecast API HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"go.ngs.io/gefs-api/internal/adapter/store"
	"go.ngs.io/gefs-api/internal/adapter/store/csv"
	"go.ngs.io/gefs-api/internal/adapter/store/gefs"
	"go.ngs.io/gefs-api/internal/adapter/store/synthetic"
	"go.ngs.io/gefs-api/internal/config"
	httpHandler "go.ngs.io/gefs-api/internal/http"
	"go.ngs.io/gefs-api/internal/observability"
	"go.ngs.io/gefs-api/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("gefs-api version %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gefs-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Debug, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infow("starting GEFS API server",
		"version", version,
		"port", cfg.Port,
		"forecast_path", cfg.ForecastPath,
		"bbox", cfg.BoundingBox(),
	)

	// Initialize stores.
	clock := clockwork.NewRealClock()
	var loader store.DatasetLoader
	if cfg.ForecastPath != "" {
		loader = gefs.NewStore(cfg.ForecastPath, logger, cfg.Variables...)
		logger.Infow("serving forecast file", "path", cfg.ForecastPath)
	} else {
		loader = synthetic.NewStore(clock)
		logger.Warnw("FORECAST_PATH not set, serving the synthetic forecast")
	}
	var cities store.CityLookup = csv.NewCityStore(cfg.CitiesPath)

	// Initialize use case.
	metrics := observability.NewMetrics()
	forecastUC := usecase.NewForecastUseCase(loader, cities, clock, metrics, logger, usecase.Options{
		Box:           cfg.BoundingBox(),
		DefaultWindow: cfg.DefaultWindow,
	})

	// Setup router.
	router := httpHandler.SetupRouter(forecastUC, logger, cfg.CORSAllowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "addr", srv.Addr, "health", fmt.Sprintf("http://localhost:%s/health", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infow("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("GEFS API Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  gefs-api [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  FORECAST_PATH           GEFS NetCDF file (default: synthetic forecast)")
	fmt.Println("  FORECAST_VARIABLES      Comma-separated variables to serve from FORECAST_PATH")
	fmt.Println("  CITIES_PATH             CSV of name,lat,lon time-series locations (default: built-in)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               debug, info, warn or error (default: info)")
	fmt.Println("  DEBUG                   Development logging and gin debug mode (default: false)")
	fmt.Println("  BBOX_LAT_MIN/MAX        Forecast region latitude bounds (default: 30/50)")
	fmt.Println("  BBOX_LON_MIN/MAX        Forecast region longitude bounds (default: -125/-100)")
	fmt.Println("  DEFAULT_WINDOW          Accumulation window when none is requested (default: 24h)")
	fmt.Println("  SHUTDOWN_TIMEOUT        Graceful shutdown timeout (default: 10s)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start server on the synthetic forecast")
	fmt.Println("  gefs-api")
	fmt.Println()
	fmt.Println("  # Serve a downloaded GEFS file")
	fmt.Println("  FORECAST_PATH=/data/gefs.nc gefs-api")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                    Health check")
	fmt.Println("  GET /metrics                   Prometheus metrics")
	fmt.Println("  GET /v1/forecast/variables     Describe the current forecast")
	fmt.Println("  GET /v1/forecast/map           Ensemble statistic over the grid at one step")
	fmt.Println("  GET /v1/forecast/timeseries    Ensemble statistics at a city or point")
	fmt.Println("  GET /v1/cities                 List time-series cities")
	fmt.Println()
}
