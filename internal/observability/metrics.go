package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stargazing"

// Metrics holds the Prometheus counters, histograms, and gauges for forecast assembly.
type Metrics struct {
	ForecastsAssembled prometheus.Counter
	ForecastFailures   *prometheus.CounterVec // labels: source={grid,point_forecast,geomagnetic,ephemeris,assembly}
	AssemblyDuration   prometheus.Histogram
	SchedulerRunning   prometheus.Gauge

	// Resolved inputs of the latest bundle.
	NearestCellDistance *prometheus.GaugeVec // labels: field={seeing,transparency}
	CurrentKp           prometheus.Gauge

	// Upstream feeds.
	UpstreamRequests *prometheus.CounterVec   // labels: source, outcome={success,error,retry,rejected}
	UpstreamDuration *prometheus.HistogramVec // labels: source
	PointCache       *prometheus.CounterVec   // labels: result={hit,miss}

	BundlesPublished prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		ForecastsAssembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecasts_assembled_total",
			Help:      "Total forecast bundles assembled.",
		}),
		ForecastFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_failures_total",
			Help:      "Forecast assemblies aborted, by failing source.",
		}, []string{"source"}),
		AssemblyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Duration of a complete forecast assembly.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the refresh scheduler is active, 0 when stopped.",
		}),
		NearestCellDistance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nearest_cell_distance_meters",
			Help:      "Projected distance from the observer to the resolved grid cell.",
		}, []string{"field"}),
		CurrentKp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_kp",
			Help:      "Latest observed planetary Kp index.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream feed requests by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream feed request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		PointCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "point_lookup_cache_total",
			Help:      "Point metadata cache lookups by result.",
		}, []string{"result"}),
		BundlesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundles_published_total",
			Help:      "Forecast bundles written to the sink topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ForecastsAssembled,
		m.ForecastFailures,
		m.AssemblyDuration,
		m.SchedulerRunning,
		m.NearestCellDistance,
		m.CurrentKp,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.PointCache,
		m.BundlesPublished,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
