// Package metrics registers the Prometheus instrumentation for the indexing
// and retrieval pipelines. A single Metrics instance is created at startup
// and threaded through the components that record observations; tests inject
// a fresh prometheus.Registry so the default registry stays clean.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors owned by the docqa core.
type Metrics struct {
	// documentsTotal counts documents processed by reindex passes,
	// partitioned by outcome: "indexed", "removed", "unchanged", "failed".
	documentsTotal *prometheus.CounterVec

	// chunksUpserted counts chunks durably written to the vector index.
	chunksUpserted prometheus.Counter

	// embedRetries counts transient embedding failures that were retried.
	embedRetries prometheus.Counter

	// reindexSeconds records the wall-clock duration of full reindex passes.
	reindexSeconds prometheus.Histogram

	// searchSeconds records the latency of retrieval requests.
	searchSeconds prometheus.Histogram

	// searchHits records how many chunks each retrieval actually returned
	// after the relevance floor and context budget were applied.
	searchHits prometheus.Histogram
}

// New registers all collectors against reg and returns the populated Metrics.
// promauto.With(reg) is used so each call registers into the provided
// registry rather than the global default.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "documents_total",
			Help:      "Documents processed by reindex passes, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "chunks_upserted_total",
			Help:      "Chunks durably written to the vector index.",
		}),

		embedRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Subsystem: "embed",
			Name:      "retries_total",
			Help:      "Transient embedding failures that triggered a retry.",
		}),

		reindexSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "index",
			Name:      "reindex_duration_seconds",
			Help:      "Wall-clock duration of full scan-diff-apply reindex passes.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),

		searchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Latency of retrieval requests including query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),

		searchHits: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Subsystem: "retrieval",
			Name:      "hits",
			Help:      "Chunks returned per retrieval after floor and budget.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// ObserveDocument records the outcome of one document in a reindex pass.
// All Observe methods are no-ops on a nil receiver, so components can treat
// metrics as optional.
func (m *Metrics) ObserveDocument(outcome string) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveChunks records n chunks durably upserted.
func (m *Metrics) ObserveChunks(n int) {
	if m == nil {
		return
	}
	m.chunksUpserted.Add(float64(n))
}

// ObserveEmbedRetry records one retried transient embedding failure.
func (m *Metrics) ObserveEmbedRetry() {
	if m == nil {
		return
	}
	m.embedRetries.Inc()
}

// ObserveReindex records the duration of one completed reindex pass.
func (m *Metrics) ObserveReindex(d time.Duration) {
	if m == nil {
		return
	}
	m.reindexSeconds.Observe(d.Seconds())
}

// ObserveSearch records one completed retrieval.
func (m *Metrics) ObserveSearch(d time.Duration, hits int) {
	if m == nil {
		return
	}
	m.searchSeconds.Observe(d.Seconds())
	m.searchHits.Observe(float64(hits))
}
