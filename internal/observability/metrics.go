package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aqi_dashboard"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard service.
type Metrics struct {
	// Provider metrics.
	ProviderRequests  *prometheus.CounterVec   // labels: provider={moenv,openmeteo}, outcome={success,error,empty}
	ProviderDuration  *prometheus.HistogramVec // labels: provider
	LiveSourceEnabled prometheus.Gauge

	// Source metrics.
	Observations *prometheus.CounterVec // labels: provenance={live,partial,synthetic}
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	// Station list refresh loop.
	StationRefreshes *prometheus.CounterVec // labels: outcome={success,error}
	RefresherRunning prometheus.Gauge

	// Render cycle metrics.
	RiskAssessments *prometheus.CounterVec // labels: tier
	Renders         prometheus.Counter
	RenderDuration  prometheus.Histogram

	// Snapshot publishing.
	SnapshotsPublished    prometheus.Counter
	SnapshotPublishErrors prometheus.Counter
}

// NewMetrics creates and registers all dashboard metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProviderRequests,
		m.ProviderDuration,
		m.LiveSourceEnabled,
		m.Observations,
		m.CacheLookups,
		m.StationRefreshes,
		m.RefresherRunning,
		m.RiskAssessments,
		m.Renders,
		m.RenderDuration,
		m.SnapshotsPublished,
		m.SnapshotPublishErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"provider"}),
		LiveSourceEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_source_enabled",
			Help:      "1 when at least one live provider is configured, 0 otherwise.",
		}),
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Observations served by provenance.",
		}, []string{"provenance"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Observation cache lookups by result.",
		}, []string{"result"}),
		StationRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_refreshes_total",
			Help:      "Background station list reloads by outcome.",
		}, []string{"outcome"}),
		RefresherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "station_refresher_running",
			Help:      "1 while the station refresh loop is running, 0 otherwise.",
		}),
		RiskAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_assessments_total",
			Help:      "Risk assessments by resulting tier.",
		}, []string{"tier"}),
		Renders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Completed dashboard render cycles.",
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of a complete fetch, score and forecast cycle.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 3, 6, 10},
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Render snapshots written to Kafka.",
		}),
		SnapshotPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_publish_errors_total",
			Help:      "Render snapshots that failed to publish.",
		}),
	}
}
