// Package metrics exposes Prometheus collectors for the cache tiers, the
// provider resolver, store operations, and the maintenance jobs. All
// recording helpers are no-ops until InitPrometheus runs, so library code
// can call them unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the prometheus collectors.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	cacheRequests *prometheus.CounterVec
	resolvesTotal *prometheus.CounterVec
	storeOps      *prometheus.CounterVec
	jobRuns       *prometheus.CounterVec

	// Histograms
	resolveDuration prometheus.Histogram

	// Gauges
	uptime    prometheus.GaugeFunc
	l1Entries prometheus.Gauge
}

// Default histogram buckets for provider resolve duration (in seconds).
// Resolves fan out to HTTP APIs, so the range runs sub-100ms to the
// resolver timeout.
var defaultBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	promMetrics *PrometheusMetrics
	startTime   = time.Now()
)

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	// Register default Go and process collectors
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by tier (l1, l2) and result (hit, miss)",
			},
			[]string{"tier", "result"},
		),

		resolvesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolves_total",
				Help:      "Provider search attempts by provider and outcome (hit, miss, error)",
			},
			[]string{"provider", "outcome"},
		),

		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_ops_total",
				Help:      "Durable store operations by operation and result",
			},
			[]string{"op", "result"},
		),

		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Maintenance job passes by job and result",
			},
			[]string{"job", "result"},
		),

		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Wall time of a full provider resolve fan-out",
				Buckets:   buckets,
			},
		),

		l1Entries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "local_cache_entries",
				Help:      "Entries currently held in the local cache tier",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the daemon started",
		},
		func() float64 {
			return time.Since(startTime).Seconds()
		},
	)

	registry.MustRegister(
		pm.cacheRequests,
		pm.resolvesTotal,
		pm.storeOps,
		pm.jobRuns,
		pm.resolveDuration,
		pm.uptime,
		pm.l1Entries,
	)

	promMetrics = pm
}

// RecordCacheRequest counts one cache lookup against a tier.
func RecordCacheRequest(tier, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.cacheRequests.WithLabelValues(tier, result).Inc()
}

// RecordResolve counts one provider search attempt.
func RecordResolve(provider, outcome string) {
	if promMetrics == nil {
		return
	}
	promMetrics.resolvesTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveResolveDuration records the wall time of a resolve fan-out.
func ObserveResolveDuration(seconds float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.resolveDuration.Observe(seconds)
}

// RecordStoreOp counts one durable store operation.
func RecordStoreOp(op, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.storeOps.WithLabelValues(op, result).Inc()
}

// RecordJobRun counts one maintenance job pass.
func RecordJobRun(job, result string) {
	if promMetrics == nil {
		return
	}
	promMetrics.jobRuns.WithLabelValues(job, result).Inc()
}

// SetCacheEntries sets the local cache entry gauge.
func SetCacheEntries(entries float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.l1Entries.Set(entries)
}

// PrometheusHandler returns the /metrics HTTP handler.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors)
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
