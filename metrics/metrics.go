// Package metrics holds the ledger service's prometheus collectors.
//
// Metrics implements posting.Recorder so the engine can report derivations
// without importing prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brc/transport-ledger/ledger"
)

// Metrics holds all ledger metrics
type Metrics struct {
	registry *prometheus.Registry

	PostingsWrittenTotal       *prometheus.CounterVec
	PostingsRemovedTotal       *prometheus.CounterVec
	ReconciliationFailureTotal *prometheus.CounterVec
	StaleSourcesGauge          prometheus.Gauge
	DerivationDurationSeconds  *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance on its own registry.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.PostingsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_written_total",
			Help:      "Ledger entries written, by source type and action",
		},
		[]string{"source_type", "action"},
	)
	m.PostingsRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "postings_removed_total",
			Help:      "Ledger entries removed by reversal, by source type",
		},
		[]string{"source_type"},
	)
	m.ReconciliationFailureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_failures_total",
			Help:      "Mutations that failed after their old postings were reversed",
		},
		[]string{"source_type"},
	)
	m.StaleSourcesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_sources",
			Help:      "Source documents currently flagged as stale",
		},
	)
	m.DerivationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "derivation_duration_seconds",
			Help:      "Time to derive and apply one source document mutation",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"source_type", "action"},
	)
	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		m.PostingsWrittenTotal,
		m.PostingsRemovedTotal,
		m.ReconciliationFailureTotal,
		m.StaleSourcesGauge,
		m.DerivationDurationSeconds,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// =============================================================================
// posting.Recorder
// =============================================================================

func (m *Metrics) PostingsWritten(source ledger.SourceType, action string, n int) {
	m.PostingsWrittenTotal.WithLabelValues(string(source), action).Add(float64(n))
}

func (m *Metrics) PostingsRemoved(source ledger.SourceType, n int) {
	m.PostingsRemovedTotal.WithLabelValues(string(source)).Add(float64(n))
}

func (m *Metrics) ReconciliationFailed(source ledger.SourceType) {
	m.ReconciliationFailureTotal.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) StaleSources(n int) {
	m.StaleSourcesGauge.Set(float64(n))
}

func (m *Metrics) DerivationDuration(source ledger.SourceType, action string, d time.Duration) {
	m.DerivationDurationSeconds.WithLabelValues(string(source), action).Observe(d.Seconds())
}

// RecordHTTPRequest records an HTTP request. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
