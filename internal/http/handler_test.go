package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go.ngs.io/gefs-api/internal/adapter/store/csv"
	"go.ngs.io/gefs-api/internal/adapter/store/synthetic"
	"go.ngs.io/gefs-api/internal/domain"
	"go.ngs.io/gefs-api/internal/observability"
	"go.ngs.io/gefs-api/internal/usecase"
)

var testNow = time.Date(2026, 2, 3, 14, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	st := synthetic.NewStoreWithConfig(clock, synthetic.Config{
		Members:    4,
		Steps:      5,
		StepLength: 6 * time.Hour,
		Box:        domain.BoundingBox{LatMin: 42, LatMax: 44, LonMin: -117, LonMax: -115},
		Resolution: 1,
	})
	uc := usecase.NewForecastUseCase(st, csv.NewCityStore(""), clock,
		observability.NewUnregisteredMetrics(), zap.NewNop().Sugar(), usecase.Options{})
	return SetupRouter(uc, zap.NewNop().Sugar(), nil)
}

func get(t *testing.T, router *gin.Engine, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	w := get(t, newTestRouter(t), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2026-02-03T14:30:00Z", body["time"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestGetVariables(t *testing.T) {
	w := get(t, newTestRouter(t), "/v1/forecast/variables")
	require.Equal(t, http.StatusOK, w.Code)

	var body usecase.VariablesResponse
	decode(t, w, &body)
	assert.Equal(t, "synthetic", body.Source)
	assert.Equal(t, 4, body.EnsembleSize)
	assert.Len(t, body.Variables, 2)
}

func TestGetMap(t *testing.T) {
	w := get(t, newTestRouter(t), "/v1/forecast/map?variable=precipitation_surface&step=2&statistic=p90&product=window&window=12h")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body usecase.MapResponse
	decode(t, w, &body)
	assert.Equal(t, usecase.ProductWindow, body.Product)
	assert.Equal(t, "p90", body.Statistic)
	assert.Equal(t, "12h", body.Window)
	assert.Equal(t, "mm", body.Units)
	assert.Equal(t, 12.0, body.LeadHours)
	require.Len(t, body.Values, 3)
	for _, row := range body.Values {
		for _, v := range row {
			require.NotNil(t, v)
			assert.GreaterOrEqual(t, *v, 0.0)
		}
	}
}

func TestGetTimeSeries(t *testing.T) {
	router := newTestRouter(t)

	w := get(t, router, "/v1/forecast/timeseries?variable=precipitation_surface&city=Boise")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body usecase.TimeSeriesResponse
	decode(t, w, &body)
	assert.Equal(t, "Boise", body.Location.Name)
	assert.Len(t, body.Times, 5)
	assert.Len(t, body.Series["p50"], 5)

	w = get(t, router, "/v1/forecast/timeseries?variable=temperature_2m&lat=43.5&lon=-116.5&interp=bilinear")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &body)
	assert.Equal(t, usecase.ProductRaw, body.Product)
	assert.Equal(t, "bilinear", string(body.Interp))
}

func TestGetCities(t *testing.T) {
	w := get(t, newTestRouter(t), "/v1/cities")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Cities []domain.City `json:"cities"`
		Count  int           `json:"count"`
	}
	decode(t, w, &body)
	assert.Equal(t, len(domain.DefaultCities), body.Count)
}

func TestErrorStatus(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		status int
		kind   string
	}{
		{"missing variable", "/v1/forecast/map", http.StatusBadRequest, "invalid_request"},
		{"bad step", "/v1/forecast/map?variable=precipitation_surface&step=two", http.StatusBadRequest, ""},
		{"bad product", "/v1/forecast/map?variable=precipitation_surface&product=hourly", http.StatusBadRequest, ""},
		{"bad window", "/v1/forecast/map?variable=precipitation_surface&window=90m", http.StatusBadRequest, ""},
		{"step out of range", "/v1/forecast/map?variable=precipitation_surface&step=9", http.StatusBadRequest, "range"},
		{"unknown variable", "/v1/forecast/map?variable=snow", http.StatusNotFound, "not_found"},
		{"unknown city", "/v1/forecast/timeseries?variable=precipitation_surface&city=Atlantis", http.StatusNotFound, "not_found"},
		{"point outside region", "/v1/forecast/timeseries?variable=precipitation_surface&lat=40.7&lon=-74", http.StatusBadRequest, "range"},
		{"bad latitude", "/v1/forecast/timeseries?variable=precipitation_surface&lat=north&lon=-116", http.StatusBadRequest, ""},
		{"bad interp", "/v1/forecast/timeseries?variable=precipitation_surface&city=Boise&interp=cubic", http.StatusBadRequest, ""},
		{"not a rate", "/v1/forecast/map?variable=temperature_2m&product=total", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, tt.target)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var body map[string]string
			decode(t, w, &body)
			assert.NotEmpty(t, body["error"])
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
		})
	}
}

type brokenLoader struct{}

func (brokenLoader) Load(context.Context) (*domain.Dataset, error) {
	return nil, errors.New("no such file")
}

func TestDatasetUnavailableIs503(t *testing.T) {
	uc := usecase.NewForecastUseCase(brokenLoader{}, csv.NewCityStore(""), clockwork.NewFakeClockAt(testNow),
		observability.NewUnregisteredMetrics(), nil, usecase.Options{})
	router := SetupRouter(uc, zap.NewNop().Sugar(), []string{"https://maps.example"})

	w := get(t, router, "/v1/forecast/variables")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.CoordinateNotFoundError{Role: domain.RoleEnsemble}, http.StatusUnprocessableEntity},
		{&domain.InsufficientStepsError{Dim: "step", Len: 1}, http.StatusUnprocessableEntity},
		{&domain.InvalidTimestepError{Dim: "step"}, http.StatusUnprocessableEntity},
		{&domain.EmptyEnsembleError{Dim: "number"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("wrapped: %w", &domain.RangeError{Name: "step"}), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := get(t, newTestRouter(t), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
}
