package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go.ngs.io/gefs-api/internal/adapter/interp"
	"go.ngs.io/gefs-api/internal/adapter/store"
	"go.ngs.io/gefs-api/internal/domain"
	"go.ngs.io/gefs-api/internal/observability"
)

// rateUnits are the units of fields that accumulate into precipitation depth.
var rateUnits = []string{"kg m-2 s-1", "kg m**-2 s**-1", "mm s-1"}

// Options tunes a ForecastUseCase.
type Options struct {
	Box           domain.BoundingBox
	DefaultWindow time.Duration
}

// ForecastUseCase orchestrates forecast derivations.
type ForecastUseCase struct {
	loader  store.DatasetLoader
	cities  store.CityLookup
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
	opts    Options

	mu       sync.Mutex
	source   *domain.Dataset // Last dataset returned by the loader.
	prepared *domain.Dataset // source subset and reduced to one init time.
	initIdx  int
}

// NewForecastUseCase creates a new forecast use case.
func NewForecastUseCase(
	loader store.DatasetLoader,
	cities store.CityLookup,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *zap.SugaredLogger,
	opts Options,
) *ForecastUseCase {
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = 24 * time.Hour
	}
	if opts.Box == (domain.BoundingBox{}) {
		opts.Box = domain.WesternUS
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ForecastUseCase{
		loader:  loader,
		cities:  cities,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
		initIdx: -1,
	}
}

// Now returns the use case clock's current time.
func (uc *ForecastUseCase) Now() time.Time { return uc.clock.Now() }

// dataset loads the forecast, restricts it to the configured region and
// selects the latest initialization time not after now. The prepared
// dataset is reused while the loader keeps returning the same source, so
// memoized reads are shared between requests.
func (uc *ForecastUseCase) dataset(ctx context.Context) (*domain.Dataset, error) {
	start := uc.clock.Now()
	src, err := uc.loader.Load(ctx)
	if err != nil {
		uc.metrics.DatasetLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrDatasetUnavailable, err)
	}
	uc.metrics.DatasetLoads.WithLabelValues("success").Inc()
	uc.metrics.DatasetLoadDuration.Observe(uc.clock.Since(start).Seconds())

	timeDim, idx, err := latestInit(src, uc.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetUnavailable, err)
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.source == src && uc.initIdx == idx {
		return uc.prepared, nil
	}

	ds, err := domain.SubsetBox(src, uc.opts.Box)
	if err != nil {
		return nil, fmt.Errorf("%w: forecast does not cover the configured region: %v", ErrDatasetUnavailable, err)
	}
	if timeDim != "" {
		if ds, err = ds.Isel(timeDim, idx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatasetUnavailable, err)
		}
	}
	if ds, err = domain.AddValidTime(ds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetUnavailable, err)
	}

	uc.logger.Infow("prepared forecast dataset",
		"source", src.Attr("source"),
		"sizes", ds.Sizes(),
		"init_index", idx,
	)
	uc.source, uc.prepared, uc.initIdx = src, ds, idx
	return ds, nil
}

// latestInit picks the newest initialization time not after now. It returns
// an empty dim when the time coordinate is not an axis.
func latestInit(ds *domain.Dataset, now time.Time) (string, int, error) {
	name, err := domain.Resolve(ds, domain.RoleTime)
	if err != nil {
		return "", 0, err
	}
	if !slices.Contains(ds.Dims(), name) {
		return "", 0, nil
	}
	c, ok := ds.Coord(name)
	if !ok || c.Len() == 0 {
		return "", 0, fmt.Errorf("initialization axis %s has no values", name)
	}
	if c.Len() == 1 {
		return name, 0, nil
	}
	best := -1
	limit := float64(now.Unix())
	for i, v := range c.Values {
		if v <= limit && (best < 0 || v > c.Values[best]) {
			best = i
		}
	}
	if best < 0 {
		return "", 0, fmt.Errorf("no initialization time at or before %s", now.UTC().Format(time.RFC3339))
	}
	return name, best, nil
}

// Variables describes the servable variables of the current forecast.
func (uc *ForecastUseCase) Variables(ctx context.Context) (*VariablesResponse, error) {
	ds, err := uc.dataset(ctx)
	if err != nil {
		return nil, err
	}
	resp := &VariablesResponse{
		Source:    ds.Attr("source"),
		Variables: make([]VariableInfo, 0, len(ds.Names())),
		Sizes:     ds.Sizes(),
	}
	if t, ok := initTime(ds); ok {
		resp.InitTime = t.Format(time.RFC3339)
	}
	if name, err := domain.ResolveDim(ds, domain.RoleEnsemble); err == nil {
		resp.EnsembleSize = ds.Sizes()[name]
	}
	if name, err := domain.ResolveDim(ds, domain.RoleStep); err == nil {
		if c, ok := ds.Coord(name); ok {
			resp.LeadHours = make([]float64, c.Len())
			for i := range c.Values {
				resp.LeadHours[i] = c.Duration(i).Hours()
			}
		}
	}
	for _, v := range ds.Vars() {
		products := []Product{ProductRaw}
		if isRate(v) {
			products = append(products, ProductStep, ProductWindow, ProductTotal)
		}
		resp.Variables = append(resp.Variables, VariableInfo{
			Name:     v.Name(),
			LongName: v.Attr("long_name"),
			Units:    v.Attr("units"),
			Dims:     v.Dims(),
			Shape:    v.Shape(),
			Products: products,
		})
	}
	return resp, nil
}

// Map derives one ensemble statistic over the grid at one forecast step.
func (uc *ForecastUseCase) Map(ctx context.Context, req MapRequest) (resp *MapResponse, err error) {
	const endpoint = "map"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := uc.clock.Now()
	defer func() { uc.observe(endpoint, req.Product, start, err) }()

	ds, err := uc.dataset(ctx)
	if err != nil {
		return nil, err
	}
	field, product, err := uc.field(ds, req.Variable, req.Product)
	if err != nil {
		return nil, err
	}
	req.Product = product
	window := uc.window(req.Window)

	stepDim, err := domain.ResolveDim(field, domain.RoleStep)
	if err != nil {
		return nil, err
	}

	var at *domain.DataArray
	switch product {
	case ProductRaw:
		at, err = field.Isel(stepDim, req.Step)
	case ProductStep:
		at, err = accumulateThen(field, func(a *domain.DataArray) (*domain.DataArray, error) { return a.Isel(stepDim, req.Step) })
	case ProductWindow:
		at, err = accumulateThen(field, func(a *domain.DataArray) (*domain.DataArray, error) {
			w, err := domain.WindowAccumulation(a, window)
			if err != nil {
				return nil, err
			}
			return w.Isel(stepDim, req.Step)
		})
	case ProductTotal:
		at, err = accumulateThen(field, func(a *domain.DataArray) (*domain.DataArray, error) {
			return domain.CumulativeAccumulation(a, req.Step)
		})
	}
	if err != nil {
		return nil, err
	}

	statistic := req.Statistic
	if statistic == "" {
		statistic = DefaultStatistic
	}
	bundle, err := domain.Summarize(at, domain.SummaryOptions{
		Quantiles:   domain.DefaultQuantiles,
		NonNegative: product.IsAccumulation(),
	})
	if err != nil {
		return nil, err
	}
	stat, ok := bundle.Var(statistic)
	if !ok {
		return nil, fmt.Errorf("%w: statistic %q", ErrNotFound, statistic)
	}

	latName, err := domain.ResolveDim(stat, domain.RoleLatitude)
	if err != nil {
		return nil, err
	}
	lonName, err := domain.ResolveDim(stat, domain.RoleLongitude)
	if err != nil {
		return nil, err
	}
	grid, err := stat.Transpose(latName, lonName)
	if err != nil {
		return nil, fmt.Errorf("unexpected map dimensions %v: %w", stat.Dims(), err)
	}
	values, err := grid.Materialize()
	if err != nil {
		return nil, err
	}
	uc.metrics.ValuesMaterialized.Add(float64(len(values)))

	lats, _ := grid.Coord(latName)
	lons, _ := grid.Coord(lonName)
	resp = &MapResponse{
		Variable:  req.Variable,
		Product:   product,
		Statistic: statistic,
		Units:     stat.Attr("units"),
		Step:      req.Step,
		Lats:      lats.Values,
		Lons:      toLon180(lons.Values),
		Values:    make([][]*float64, lats.Len()),
	}
	if product == ProductWindow {
		resp.Window = domain.FormatWindow(window)
	}
	if t, ok := initTime(ds); ok {
		resp.InitTime = t.Format(time.RFC3339)
	}
	if c, ok := grid.Coord(domain.ValidTimeName); ok && c.IsScalar() {
		resp.ValidTime = c.Time(0).Format(time.RFC3339)
	}
	if c, ok := grid.Coord(stepDim); ok && c.IsScalar() {
		resp.LeadHours = c.Duration(0).Hours()
	}
	nLon := lons.Len()
	for i := range resp.Values {
		resp.Values[i] = nullable(values[i*nLon : (i+1)*nLon])
	}

	uc.logger.Debugw("derived map",
		"variable", req.Variable,
		"product", product,
		"statistic", statistic,
		"step", req.Step,
		"values", len(values),
	)
	return resp, nil
}

// TimeSeries derives the ensemble statistics bundle at one point for every
// forecast step.
func (uc *ForecastUseCase) TimeSeries(ctx context.Context, req TimeSeriesRequest) (resp *TimeSeriesResponse, err error) {
	const endpoint = "timeseries"
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := uc.clock.Now()
	defer func() { uc.observe(endpoint, req.Product, start, err) }()

	loc, err := uc.location(req)
	if err != nil {
		return nil, err
	}
	if box := uc.opts.Box; !box.Contains(loc.Lat, loc.Lon) {
		if loc.Lat < box.LatMin || loc.Lat > box.LatMax {
			return nil, &domain.RangeError{Name: "lat", Value: loc.Lat, Min: box.LatMin, Max: box.LatMax}
		}
		return nil, &domain.RangeError{Name: "lon", Value: loc.Lon, Min: box.LonMin, Max: box.LonMax}
	}

	ds, err := uc.dataset(ctx)
	if err != nil {
		return nil, err
	}
	field, product, err := uc.field(ds, req.Variable, req.Product)
	if err != nil {
		return nil, err
	}
	req.Product = product
	window := uc.window(req.Window)

	method := req.Interp
	if method == "" {
		method = interp.MethodNearest
	}
	point, err := interp.SelectPoint(field, loc.Lat, loc.Lon, method)
	if err != nil {
		return nil, err
	}

	var series *domain.DataArray
	switch product {
	case ProductRaw:
		series = point
	case ProductStep:
		series, err = domain.AccumulateRate(point)
	case ProductWindow:
		series, err = accumulateThen(point, func(a *domain.DataArray) (*domain.DataArray, error) {
			return domain.WindowAccumulation(a, window)
		})
	case ProductTotal:
		series, err = accumulateThen(point, domain.RunningAccumulation)
	}
	if err != nil {
		return nil, err
	}

	bundle, err := domain.Summarize(series, domain.SummaryOptions{
		Quantiles:   domain.DefaultQuantiles,
		NonNegative: product.IsAccumulation(),
	})
	if err != nil {
		return nil, err
	}
	// Step zero carries no interval, so stepwise products start at step one.
	if product == ProductStep || product == ProductWindow {
		if bundle, err = domain.DropInitialStep(bundle); err != nil {
			return nil, err
		}
	}

	values, err := uc.materialize(ctx, bundle)
	if err != nil {
		return nil, err
	}

	resp = &TimeSeriesResponse{
		Variable: req.Variable,
		Product:  product,
		Units:    series.Attr("units"),
		Location: loc,
		Interp:   method,
		Series:   make(map[string][]*float64, len(values)),
	}
	if product == ProductWindow {
		resp.Window = domain.FormatWindow(window)
	}
	if t, ok := initTime(ds); ok {
		resp.InitTime = t.Format(time.RFC3339)
	}
	if lat, err := domain.Resolve(point, domain.RoleLatitude); err == nil {
		if c, ok := point.Coord(lat); ok && c.IsScalar() {
			resp.Location.GridLat = c.Values[0]
		}
	}
	if lon, err := domain.Resolve(point, domain.RoleLongitude); err == nil {
		if c, ok := point.Coord(lon); ok && c.IsScalar() {
			resp.Location.GridLon = toLon180(c.Values)[0]
		}
	}
	if c, ok := bundle.Coord(domain.ValidTimeName); ok {
		resp.Times = make([]string, c.Len())
		for i := range c.Values {
			resp.Times[i] = c.Time(i).Format(time.RFC3339)
		}
	}
	if name, err := domain.ResolveDim(bundle, domain.RoleStep); err == nil {
		if c, ok := bundle.Coord(name); ok {
			resp.LeadHours = make([]float64, c.Len())
			for i := range c.Values {
				resp.LeadHours[i] = c.Duration(i).Hours()
			}
		}
	}
	for name, v := range values {
		resp.Series[name] = nullable(v)
	}

	uc.logger.Debugw("derived time series",
		"variable", req.Variable,
		"product", product,
		"city", loc.Name,
		"lat", loc.Lat,
		"lon", loc.Lon,
	)
	return resp, nil
}

// Cities returns the known time-series locations.
func (uc *ForecastUseCase) Cities() ([]domain.City, error) {
	return uc.cities.ListCities()
}

func (uc *ForecastUseCase) location(req TimeSeriesRequest) (Location, error) {
	if req.City == "" {
		return Location{Lat: *req.Lat, Lon: *req.Lon}, nil
	}
	c, ok, err := uc.cities.FindCity(req.City)
	if err != nil {
		return Location{}, fmt.Errorf("failed to look up city: %w", err)
	}
	if !ok {
		return Location{}, fmt.Errorf("%w: city %q", ErrNotFound, req.City)
	}
	return Location{Name: c.Name, Lat: c.Lat, Lon: c.Lon}, nil
}

// field returns the requested variable and the product to derive from it.
func (uc *ForecastUseCase) field(ds *domain.Dataset, name string, product Product) (*domain.DataArray, Product, error) {
	v, ok := ds.Var(name)
	if !ok {
		return nil, "", fmt.Errorf("%w: variable %q (available: %v)", ErrNotFound, name, ds.Names())
	}
	rate := isRate(v)
	if product == "" {
		product = ProductRaw
		if rate {
			product = ProductTotal
		}
	}
	if product.IsAccumulation() && !rate {
		return nil, "", fmt.Errorf("%w: %s is not a rate field and cannot be accumulated", ErrInvalidRequest, name)
	}
	return v, product, nil
}

func (uc *ForecastUseCase) window(w time.Duration) time.Duration {
	if w <= 0 {
		return uc.opts.DefaultWindow
	}
	return w
}

// materialize evaluates every bundle variable concurrently.
func (uc *ForecastUseCase) materialize(ctx context.Context, bundle *domain.Dataset) (map[string][]float64, error) {
	vars := bundle.Vars()
	results := make([][]float64, len(vars))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, v := range vars {
		i, v := i, v
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			values, err := v.Materialize()
			if err != nil {
				return fmt.Errorf("failed to evaluate %s: %w", v.Name(), err)
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]float64, len(vars))
	total := 0
	for i, v := range vars {
		out[v.Name()] = results[i]
		total += len(results[i])
	}
	uc.metrics.ValuesMaterialized.Add(float64(total))
	return out, nil
}

func (uc *ForecastUseCase) observe(endpoint string, product Product, start time.Time, err error) {
	uc.metrics.DerivationDuration.WithLabelValues(endpoint).Observe(uc.clock.Since(start).Seconds())
	if err != nil {
		uc.metrics.DerivationErrors.WithLabelValues(endpoint, ErrorKind(err)).Inc()
		uc.logger.Warnw("derivation failed", "endpoint", endpoint, "error", err)
		return
	}
	uc.metrics.Derivations.WithLabelValues(endpoint, string(product)).Inc()
}

// ErrorKind names the category of a derivation error for metrics and responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDatasetUnavailable):
		return "dataset_unavailable"
	case errors.Is(err, domain.ErrCoordinateNotFound):
		return "coordinate_not_found"
	case errors.Is(err, domain.ErrInsufficientSteps):
		return "insufficient_steps"
	case errors.Is(err, domain.ErrInvalidTimestep):
		return "invalid_timestep"
	case errors.Is(err, domain.ErrRange):
		return "range"
	case errors.Is(err, domain.ErrEmptyEnsemble):
		return "empty_ensemble"
	}
	return "other"
}

// accumulateThen converts a rate field to per-step accumulation and applies fn.
func accumulateThen(rate *domain.DataArray, fn func(*domain.DataArray) (*domain.DataArray, error)) (*domain.DataArray, error) {
	accum, err := domain.AccumulateRate(rate)
	if err != nil {
		return nil, err
	}
	return fn(accum)
}

func isRate(v *domain.DataArray) bool {
	return slices.Contains(rateUnits, v.Attr("units"))
}

func initTime(ds *domain.Dataset) (time.Time, bool) {
	name, err := domain.Resolve(ds, domain.RoleTime)
	if err != nil {
		return time.Time{}, false
	}
	c, ok := ds.Coord(name)
	if !ok || !c.IsScalar() || c.Kind != domain.KindTime {
		return time.Time{}, false
	}
	return c.Time(0), true
}

// nullable maps NaN to nil so missing values encode as JSON null.
func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out[i] = &values[i]
	}
	return out
}

func toLon180(lons []float64) []float64 {
	out := make([]float64, len(lons))
	for i, lon := range lons {
		if lon > 180 {
			lon -= 360
		}
		out[i] = lon
	}
	return out
}
