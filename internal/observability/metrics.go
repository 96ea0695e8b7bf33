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
	// Poller metrics
	PollCycles        *prometheus.CounterVec
	PollCycleDuration *prometheus.HistogramVec
	TargetFailures    *prometheus.CounterVec
	RecordsFetched    *prometheus.CounterVec
	CursorAdvances    *prometheus.CounterVec

	// Pipeline metrics
	BuysDetected   *prometheus.CounterVec
	BuysDuplicate  *prometheus.CounterVec
	BuysFiltered   *prometheus.CounterVec
	BuysDispatched *prometheus.CounterVec
	DispatchErrors *prometheus.CounterVec
	EnrichOutcomes *prometheus.CounterVec

	// Upstream metrics
	UpstreamLatency *prometheus.HistogramVec
	UpstreamErrors  *prometheus.CounterVec

	// State metrics
	TrackedPairs     prometheus.Gauge
	WatchEntries     prometheus.Gauge
	Activations      prometheus.Counter
	PersistFailures  *prometheus.CounterVec
	SeenCacheEntries prometheus.Gauge

	// Health metrics
	SupervisorRestarts prometheus.Counter
	LastSuccessfulPoll *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tonbuy"
	}

	return &Metrics{
		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by source and outcome",
		}, []string{"source", "status"}),
		PollCycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one poll cycle across all targets",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		TargetFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "target_failures_total",
			Help:      "Per-target fetch or processing failures isolated from the cycle",
		}, []string{"source"}),
		RecordsFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "records_fetched_total",
			Help:      "Raw upstream records fetched",
		}, []string{"source"}),
		CursorAdvances: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cursor_advances_total",
			Help:      "Number of cursor advances by source",
		}, []string{"source"}),

		BuysDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "buys_detected_total",
			Help:      "Buy events produced by the normalizer",
		}, []string{"source"}),
		BuysDuplicate: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "buys_duplicate_total",
			Help:      "Buy events dropped by the seen cache",
		}, []string{"source"}),
		BuysFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "buys_filtered_total",
			Help:      "Buy events below minimum value thresholds",
		}, []string{"source", "reason"}),
		BuysDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "buys_dispatched_total",
			Help:      "Buy events handed to the dispatch sink",
		}, []string{"source"}),
		DispatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "errors_total",
			Help:      "Dispatch sink failures by operation",
		}, []string{"operation"}),
		EnrichOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "enrichments_total",
			Help:      "Detached enrichment task outcomes",
		}, []string{"status"}),

		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Upstream HTTP call latency",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"upstream"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Upstream calls that failed after retries",
		}, []string{"upstream"}),

		TrackedPairs: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "tracked_pairs",
			Help:      "Number of tracked pairs",
		}),
		WatchEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "watch_entries",
			Help:      "Number of pending watch entries",
		}),
		Activations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "activations_total",
			Help:      "Watch entries promoted to tracked pairs",
		}),
		PersistFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "persist_failures_total",
			Help:      "Failed persistence writes by namespace",
		}, []string{"namespace"}),
		SeenCacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "seen_cache_entries",
			Help:      "Entries in the in-memory seen cache after the last sweep",
		}),

		SupervisorRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "supervisor_restarts_total",
			Help:      "Scheduler restarts after an unhandled fault",
		}),
		LastSuccessfulPoll: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of last completed poll cycle",
		}, []string{"source"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPollCycle records a finished poll cycle.
func RecordPollCycle(source, status string, seconds float64, finishedUnix int64) {
	DefaultMetrics.PollCycles.WithLabelValues(source, status).Inc()
	DefaultMetrics.PollCycleDuration.WithLabelValues(source).Observe(seconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulPoll.WithLabelValues(source).Set(float64(finishedUnix))
	}
}

// RecordTargetFailure increments the isolated per-target failure counter.
func RecordTargetFailure(source string) {
	DefaultMetrics.TargetFailures.WithLabelValues(source).Inc()
}

// RecordFetched adds n fetched raw records.
func RecordFetched(source string, n int) {
	DefaultMetrics.RecordsFetched.WithLabelValues(source).Add(float64(n))
}

// RecordCursorAdvance counts a cursor advance.
func RecordCursorAdvance(source string) {
	DefaultMetrics.CursorAdvances.WithLabelValues(source).Inc()
}

// RecordBuy records the pipeline outcome of one normalized buy.
// Outcome is one of "detected", "duplicate", "dispatched".
func RecordBuy(source, outcome string) {
	switch outcome {
	case "detected":
		DefaultMetrics.BuysDetected.WithLabelValues(source).Inc()
	case "duplicate":
		DefaultMetrics.BuysDuplicate.WithLabelValues(source).Inc()
	case "dispatched":
		DefaultMetrics.BuysDispatched.WithLabelValues(source).Inc()
	}
}

// RecordFiltered counts a buy dropped by a minimum-value filter.
func RecordFiltered(source, reason string) {
	DefaultMetrics.BuysFiltered.WithLabelValues(source, reason).Inc()
}

// RecordDispatchError counts a sink failure.
func RecordDispatchError(operation string) {
	DefaultMetrics.DispatchErrors.WithLabelValues(operation).Inc()
}

// RecordEnrichment counts a detached enrichment outcome.
func RecordEnrichment(status string) {
	DefaultMetrics.EnrichOutcomes.WithLabelValues(status).Inc()
}

// RecordUpstream records upstream call latency and failure.
func RecordUpstream(upstream string, seconds float64, err error) {
	DefaultMetrics.UpstreamLatency.WithLabelValues(upstream).Observe(seconds)
	if err != nil {
		DefaultMetrics.UpstreamErrors.WithLabelValues(upstream).Inc()
	}
}

// UpdateRegistrySizes updates the registry gauges.
func UpdateRegistrySizes(pairs, watch int) {
	DefaultMetrics.TrackedPairs.Set(float64(pairs))
	DefaultMetrics.WatchEntries.Set(float64(watch))
}

// RecordActivation counts a watch entry promotion.
func RecordActivation() {
	DefaultMetrics.Activations.Inc()
}

// RecordPersistFailure counts a failed persistence write.
func RecordPersistFailure(namespace string) {
	DefaultMetrics.PersistFailures.WithLabelValues(namespace).Inc()
}

// UpdateSeenCacheSize sets the seen cache gauge.
func UpdateSeenCacheSize(n int) {
	DefaultMetrics.SeenCacheEntries.Set(float64(n))
}

// RecordRestart counts a supervisor restart.
func RecordRestart() {
	DefaultMetrics.SupervisorRestarts.Inc()
}
