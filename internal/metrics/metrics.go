// Package metrics exposes the crawler's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric name.
const namespace = "jooya"

// Metrics holds all Prometheus metrics for the crawler.
type Metrics struct {
	// Per-worker pipeline outcomes.
	WorkerProcessed *prometheus.CounterVec
	WorkerFailed    *prometheus.CounterVec
	WorkerActive    *prometheus.GaugeVec

	// HTTP request accounting.
	RequestCount   *prometheus.CounterVec
	FailedRequests *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec

	// Crawl progress.
	CrawledPages *prometheus.CounterVec
	SkippedLinks *prometheus.CounterVec
	QueuePending prometheus.Gauge
}

// New creates and registers the crawler metrics on reg. A nil registerer
// falls back to the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		WorkerProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_processed_total",
				Help:      "Total number of tasks a worker completed",
			},
			[]string{"worker_id"},
		),
		WorkerFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_failed_total",
				Help:      "Total number of tasks a worker failed",
			},
			[]string{"worker_id"},
		),
		WorkerActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_active",
				Help:      "Whether a worker is running (1=yes, 0=no)",
			},
			[]string{"worker_id"},
		),
		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests issued",
			},
			[]string{"worker"},
		),
		FailedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failed_requests_total",
				Help:      "Total number of HTTP requests that errored",
			},
			[]string{"worker"},
		),
		RequestLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"worker"},
		),
		CrawledPages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crawled_pages_total",
				Help:      "Total number of pages crawled and persisted",
			},
			[]string{"worker"},
		),
		SkippedLinks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_links_total",
				Help:      "Total number of links or pages skipped, by reason",
			},
			[]string{"reason"},
		),
		QueuePending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_pending",
				Help:      "Number of frontier tasks currently scheduled",
			},
		),
	}
}
