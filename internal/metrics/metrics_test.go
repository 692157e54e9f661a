package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jooya/crawler/internal/metrics"
)

func TestNew_RegistersAllMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.WorkerProcessed.WithLabelValues("0").Inc()
	m.WorkerFailed.WithLabelValues("0").Inc()
	m.WorkerActive.WithLabelValues("0").Set(1)
	m.RequestCount.WithLabelValues("0").Inc()
	m.FailedRequests.WithLabelValues("0").Inc()
	m.RequestLatency.WithLabelValues("0").Observe(0.25)
	m.CrawledPages.WithLabelValues("0").Inc()
	m.SkippedLinks.WithLabelValues("robots_disallowed").Inc()
	m.QueuePending.Set(42)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, expected := range []string{
		"jooya_worker_processed_total",
		"jooya_worker_failed_total",
		"jooya_worker_active",
		"jooya_requests_total",
		"jooya_failed_requests_total",
		"jooya_request_latency_seconds",
		"jooya_crawled_pages_total",
		"jooya_skipped_links_total",
		"jooya_queue_pending",
	} {
		assert.True(t, names[expected], "missing metric %s", expected)
	}

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.WorkerProcessed.WithLabelValues("0")), 0.001)
	assert.InDelta(t, 42.0, testutil.ToFloat64(m.QueuePending), 0.001)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	assert.Panics(t, func() { metrics.New(reg) })
}
