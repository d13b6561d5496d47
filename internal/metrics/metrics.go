// Package metrics exposes ferry's Prometheus collectors.
//
// Every Metrics value owns its registry, so tests and short CLI runs never
// share global state. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ferry/internal/failure"
	"ferry/internal/records"
)

const namespace = "ferry"

// Metrics holds the collectors for one process.
type Metrics struct {
	registry *prometheus.Registry

	uploads          *prometheus.CounterVec
	retries          *prometheus.CounterVec
	statusChecks     *prometheus.CounterVec
	discovered       *prometheus.CounterVec
	duplicateLookups *prometheus.CounterVec
	rateLimitWait    *prometheus.HistogramVec
	records          *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New registers ferry's collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Claimed uploads by outcome: succeeded, failed, released or interrupted.",
		}, []string{"outcome"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Retried API calls by operation and error kind.",
		}, []string{"op", "kind"}),
		statusChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_checks_total",
			Help:      "Verification status checks by resulting processing status.",
		}, []string{"status"}),
		discovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_total",
			Help:      "Manifest descriptors by discovery outcome.",
		}, []string{"outcome"}),
		duplicateLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_cache_lookups_total",
			Help:      "Fingerprint cache lookups by result (hit, miss).",
		}, []string{"result"}),
		rateLimitWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ratelimit_wait_seconds",
			Help:      "Time spent waiting for a rate limiter slot.",
			Buckets:   []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"limiter"}),
		records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records by upload and processing status at the last refresh.",
		}, []string{"upload_status", "processing_status"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status API requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Status API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RegisterRuntime adds Go runtime and process collectors. Only long-running
// servers want these; textfile exports from CLI runs omit them.
func (m *Metrics) RegisterRuntime() {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveUpload counts one finished upload attempt.
func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one retried API call. Its signature matches
// retry.Controller.OnRetry.
func (m *Metrics) ObserveRetry(op string, kind failure.Kind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op, kind.String()).Inc()
}

// ObserveStatusCheck counts one verification check.
func (m *Metrics) ObserveStatusCheck(status records.ProcessingStatus) {
	if m == nil {
		return
	}
	m.statusChecks.WithLabelValues(status.String()).Inc()
}

// ObserveDiscovery counts one discovery outcome.
func (m *Metrics) ObserveDiscovery(outcome string) {
	if m == nil {
		return
	}
	m.discovered.WithLabelValues(outcome).Inc()
}

// ObserveDuplicateLookup counts one fingerprint cache lookup.
func (m *Metrics) ObserveDuplicateLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.duplicateLookups.WithLabelValues(result).Inc()
}

// ObserveRateLimitWait records a limiter wait. Its signature matches
// ratelimit.WithObserver.
func (m *Metrics) ObserveRateLimitWait(name string, waited time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWait.WithLabelValues(name).Observe(waited.Seconds())
}

// ObserveHTTP records one served status API request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SetRecordStats replaces the record gauges with the given snapshot.
func (m *Metrics) SetRecordStats(stats records.Stats) {
	if m == nil {
		return
	}
	m.records.Reset()
	for _, pair := range stats.Pairs {
		m.records.WithLabelValues(pair.Upload.String(), pair.Processing.String()).Set(float64(pair.Count))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the current metrics to path for the node exporter
// textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
