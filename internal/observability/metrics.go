// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Tree metrics
	PlacementsTotal *prometheus.CounterVec
	DownlineQueries prometheus.Counter

	// Ledger metrics
	LedgerAppendsTotal *prometheus.CounterVec

	// Pairing metrics
	PairEventsRecorded     *prometheus.CounterVec
	PairsMatchedTotal      *prometheus.CounterVec
	ClassificationRuns     *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram

	// Scheduler metrics
	SchedulerSweeps        *prometheus.CounterVec
	SchedulerSweepDuration prometheus.Histogram
	LastSuccessfulSweep    prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pairnet"
	}

	return &Metrics{
		// Tree metrics
		PlacementsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "placements_total",
			Help:      "Total number of placement attempts by outcome",
		}, []string{"outcome"}),
		DownlineQueries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "downline_queries_total",
			Help:      "Total number of downline queries",
		}),

		// Ledger metrics
		LedgerAppendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "appends_total",
			Help:      "Total number of ledger entries appended by source",
		}, []string{"source"}),

		// Pairing metrics
		PairEventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "events_recorded_total",
			Help:      "Total number of leg events recorded by leg",
		}, []string{"leg"}),
		PairsMatchedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "pairs_matched_total",
			Help:      "Total number of pairs matched by package tier",
		}, []string{"tier"}),
		ClassificationRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "classification_runs_total",
			Help:      "Total number of window classifications by status",
		}, []string{"status"}),
		ClassificationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pairing",
			Name:      "classification_duration_seconds",
			Help:      "Window classification duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Scheduler metrics
		SchedulerSweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total number of classification sweeps by status",
		}, []string{"status"}),
		SchedulerSweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Classification sweep duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		LastSuccessfulSweep: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_successful_sweep_timestamp",
			Help:      "Unix timestamp of last successful classification sweep",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPlacement records a placement attempt outcome ("ok" or an error reason).
func RecordPlacement(outcome string) {
	DefaultMetrics.PlacementsTotal.WithLabelValues(outcome).Inc()
}

// RecordDownlineQuery increments the downline query counter.
func RecordDownlineQuery() {
	DefaultMetrics.DownlineQueries.Inc()
}

// RecordLedgerAppend records a ledger append by source.
func RecordLedgerAppend(source string) {
	DefaultMetrics.LedgerAppendsTotal.WithLabelValues(source).Inc()
}

// RecordPairEvent records a leg event by leg.
func RecordPairEvent(leg string) {
	DefaultMetrics.PairEventsRecorded.WithLabelValues(leg).Inc()
}

// RecordPairsMatched adds n matched pairs for a tier.
func RecordPairsMatched(tier string, n int) {
	DefaultMetrics.PairsMatchedTotal.WithLabelValues(tier).Add(float64(n))
}

// RecordClassification records a window classification.
func RecordClassification(status string, seconds float64) {
	DefaultMetrics.ClassificationRuns.WithLabelValues(status).Inc()
	DefaultMetrics.ClassificationDuration.Observe(seconds)
}

// RecordSweep records a scheduler sweep.
func RecordSweep(status string, seconds float64, finishedUnix int64) {
	DefaultMetrics.SchedulerSweeps.WithLabelValues(status).Inc()
	DefaultMetrics.SchedulerSweepDuration.Observe(seconds)
	if status == "ok" {
		DefaultMetrics.LastSuccessfulSweep.Set(float64(finishedUnix))
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route, code string) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, code).Inc()
}
