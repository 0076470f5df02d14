package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for forecast derivation.
type Metrics struct {
	// Derivation metrics.
	Derivations        *prometheus.CounterVec   // labels: endpoint={map,timeseries}, product={raw,step,window,total}
	DerivationErrors   *prometheus.CounterVec   // labels: endpoint, kind={coordinate_not_found,insufficient_steps,invalid_timestep,range,empty_ensemble,other}
	DerivationDuration *prometheus.HistogramVec // labels: endpoint

	// Dataset metrics.
	DatasetLoads        *prometheus.CounterVec // labels: outcome={success,error}
	DatasetLoadDuration prometheus.Histogram
	ValuesMaterialized  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Derivations,
		m.DerivationErrors,
		m.DerivationDuration,
		m.DatasetLoads,
		m.DatasetLoadDuration,
		m.ValuesMaterialized,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics that are not registered with any
// registry. Short-lived commands and tests use it; any number may coexist.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Derivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gefs",
			Name:      "derivations_total",
			Help:      "Forecast derivations served, by endpoint and product.",
		}, []string{"endpoint", "product"}),
		DerivationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gefs",
			Name:      "derivation_errors_total",
			Help:      "Failed forecast derivations, by endpoint and error kind.",
		}, []string{"endpoint", "kind"}),
		DerivationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gefs",
			Name:      "derivation_duration_seconds",
			Help:      "Time to build and materialize a derivation.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gefs",
			Name:      "dataset_loads_total",
			Help:      "Forecast dataset loads by outcome.",
		}, []string{"outcome"}),
		DatasetLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gefs",
			Name:      "dataset_load_duration_seconds",
			Help:      "Time to open the forecast dataset.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		}),
		ValuesMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gefs",
			Name:      "values_materialized_total",
			Help:      "Grid values evaluated for responses.",
		}),
	}
}
