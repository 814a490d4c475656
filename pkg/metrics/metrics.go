// Package metrics defines the Prometheus collectors used by the index
// engine and the services around it, and exposes an HTTP handler for
// scraping.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DeleteTermsTotal     prometheus.Counter
	CommitsTotal         *prometheus.CounterVec
	CommitDuration       prometheus.Histogram
	ReloadsTotal         *prometheus.CounterVec
	Segments             prometheus.Gauge
	LiveDocs             prometheus.Gauge
	IngestEventsTotal    *prometheus.CounterVec
	IngestPublishedTotal *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide collectors, registering them with the
// default Prometheus registry on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textindex_search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "textindex_search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_docs_indexed_total",
				Help: "Total documents made durable by commits.",
			},
		),
		DeleteTermsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "textindex_delete_terms_total",
				Help: "Total delete terms committed.",
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_commits_total",
				Help: "Total commits by status.",
			},
			[]string{"status"},
		),
		CommitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "textindex_commit_duration_seconds",
				Help:    "Commit latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_reloads_total",
				Help: "Total reader reloads by trigger (manual, oncommit) and status.",
			},
			[]string{"trigger", "status"},
		),
		Segments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textindex_segments",
				Help: "Number of segments in the latest reader snapshot.",
			},
		),
		LiveDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "textindex_live_docs",
				Help: "Number of non-deleted documents in the latest reader snapshot.",
			},
		),
		IngestEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_ingest_events_total",
				Help: "Ingest events consumed by operation and status.",
			},
			[]string{"op", "status"},
		),
		IngestPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textindex_ingest_published_total",
				Help: "Ingest events accepted or rejected by the ingestion API.",
			},
			[]string{"op", "status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal,
			m.HTTPRequestDuration,
			m.HTTPRequestsInFlight,
			m.SearchQueriesTotal,
			m.SearchLatency,
			m.SearchResultsCount,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.DocsIndexedTotal,
			m.DeleteTermsTotal,
			m.CommitsTotal,
			m.CommitDuration,
			m.ReloadsTotal,
			m.Segments,
			m.LiveDocs,
			m.IngestEventsTotal,
			m.IngestPublishedTotal,
		)
	}
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
