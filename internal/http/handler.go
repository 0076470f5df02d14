package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/gefs-api/internal/adapter/interp"
	"go.ngs.io/gefs-api/internal/domain"
	"go.ngs.io/gefs-api/internal/usecase"
)

// Handler handles HTTP requests for forecast derivations.
type Handler struct {
	forecastUC *usecase.ForecastUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(forecastUC *usecase.ForecastUseCase) *Handler {
	return &Handler{
		forecastUC: forecastUC,
	}
}

// GetVariables handles GET /v1/forecast/variables.
func (h *Handler) GetVariables(c *gin.Context) {
	response, err := h.forecastUC.Variables(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetMap handles GET /v1/forecast/map.
func (h *Handler) GetMap(c *gin.Context) {
	req := usecase.MapRequest{
		Variable:  c.Query("variable"),
		Statistic: c.Query("statistic"),
	}

	if stepStr := c.Query("step"); stepStr != "" {
		step, err := strconv.Atoi(stepStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid step: %v", err)})
			return
		}
		req.Step = step
	}

	product, window, ok := parseProduct(c)
	if !ok {
		return
	}
	req.Product, req.Window = product, window

	response, err := h.forecastUC.Map(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetTimeSeries handles GET /v1/forecast/timeseries.
func (h *Handler) GetTimeSeries(c *gin.Context) {
	req := usecase.TimeSeriesRequest{
		Variable: c.Query("variable"),
		City:     c.Query("city"),
	}

	// Parse lat/lon.
	latStr, lonStr := c.Query("lat"), c.Query("lon")
	if latStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
			return
		}
		req.Lat = &lat
	}
	if lonStr != "" {
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
			return
		}
		req.Lon = &lon
	}

	product, window, ok := parseProduct(c)
	if !ok {
		return
	}
	req.Product, req.Window = product, window

	if s := c.Query("interp"); s != "" {
		method, err := interp.ParseMethod(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Interp = method
	}

	response, err := h.forecastUC.TimeSeries(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetCities handles GET /v1/cities.
func (h *Handler) GetCities(c *gin.Context) {
	cities, err := h.forecastUC.Cities()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cities": cities,
		"count":  len(cities),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.forecastUC.Now().UTC().Format(time.RFC3339),
	})
}

// parseProduct reads the product and window query parameters, writing a 400
// response on failure.
func parseProduct(c *gin.Context) (usecase.Product, time.Duration, bool) {
	product, err := usecase.ParseProduct(c.Query("product"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", 0, false
	}
	var window time.Duration
	if s := c.Query("window"); s != "" {
		window, err = domain.ParseWindow(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid window: %v", err)})
			return "", 0, false
		}
	}
	return product, window, true
}

// statusFor maps derivation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest), errors.Is(err, domain.ErrRange):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrDatasetUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCoordinateNotFound),
		errors.Is(err, domain.ErrInsufficientSteps),
		errors.Is(err, domain.ErrInvalidTimestep),
		errors.Is(err, domain.ErrEmptyEnsemble):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
		"kind":  usecase.ErrorKind(err),
	})
}
