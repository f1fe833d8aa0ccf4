// Package metrics defines the Prometheus metric collectors used across the
// indexer and searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can be built without instrumentation.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsIndexedTotal     prometheus.Counter
	DocsDeletedTotal     prometheus.Counter
	PostingsBuffered     prometheus.Gauge
	PoolSpillsTotal      *prometheus.CounterVec
	PoolSpillBytes       prometheus.Counter
	TermsWrittenTotal    *prometheus.CounterVec
	IndexFlushesTotal    *prometheus.CounterVec
	FlushDuration        prometheus.Histogram
	SegmentCount         prometheus.Gauge
	SegmentDocCount      *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of term statistics cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of term statistics cache misses.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_deleted_total",
				Help: "Total documents marked deleted.",
			},
		),
		PostingsBuffered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_postings_buffered",
				Help: "Postings currently held in memory by the active pool.",
			},
		),
		PoolSpillsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_spills_total",
				Help: "Sorted runs written by posting pools, by pool kind.",
			},
			[]string{"kind"},
		),
		PoolSpillBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pool_spill_bytes_total",
				Help: "Bytes written to temporary run files.",
			},
		),
		TermsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segment_terms_written_total",
				Help: "Terms written to segments by storage (inline, block).",
			},
			[]string{"storage"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total segment flush operations by status.",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_flush_duration_seconds",
				Help:    "Time spent draining a pool into a new segment.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		SegmentCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_segments",
				Help: "Number of sealed segments currently open.",
			},
		),
		SegmentDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "segment_document_count",
				Help: "Number of documents per sealed segment.",
			},
			[]string{"segment"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsDeletedTotal,
		m.PostingsBuffered,
		m.PoolSpillsTotal,
		m.PoolSpillBytes,
		m.TermsWrittenTotal,
		m.IndexFlushesTotal,
		m.FlushDuration,
		m.SegmentCount,
		m.SegmentDocCount,
	)

	return m
}

// Spilled records one run of n bytes written by a pool of the given kind.
func (m *Metrics) Spilled(kind string, n int64) {
	if m == nil {
		return
	}
	m.PoolSpillsTotal.WithLabelValues(kind).Inc()
	m.PoolSpillBytes.Add(float64(n))
}

// Buffered sets the number of postings held in memory.
func (m *Metrics) Buffered(n int) {
	if m == nil {
		return
	}
	m.PostingsBuffered.Set(float64(n))
}

// TermsWritten counts terms stored inline and in blocks.
func (m *Metrics) TermsWritten(inline, block int) {
	if m == nil {
		return
	}
	m.TermsWrittenTotal.WithLabelValues("inline").Add(float64(inline))
	m.TermsWrittenTotal.WithLabelValues("block").Add(float64(block))
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// DocIndexed counts one indexed document.
func (m *Metrics) DocIndexed() {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
}

// DocDeleted counts one deleted document.
func (m *Metrics) DocDeleted() {
	if m == nil {
		return
	}
	m.DocsDeletedTotal.Inc()
}

// Flushed records a flush attempt and how long it took.
func (m *Metrics) Flushed(status string, seconds float64) {
	if m == nil {
		return
	}
	m.IndexFlushesTotal.WithLabelValues(status).Inc()
	m.FlushDuration.Observe(seconds)
}

// SegmentOpened publishes the document count of an open segment and the
// total number of open segments.
func (m *Metrics) SegmentOpened(name string, docs, segments int) {
	if m == nil {
		return
	}
	m.SegmentDocCount.WithLabelValues(name).Set(float64(docs))
	m.SegmentCount.Set(float64(segments))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
