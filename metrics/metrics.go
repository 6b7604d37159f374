package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Document ingestions by outcome",
		},
		[]string{"status"},
	)

	ChunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written to the store",
		},
	)

	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "query",
			Name:      "total",
			Help:      "RAG queries by outcome",
		},
		[]string{"status"},
	)

	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Embedding provider call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	VectorSearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Vector search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rag",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Text generation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "embedding",
			Name:      "cache_hits_total",
			Help:      "Embedding cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rag",
			Subsystem: "embedding",
			Name:      "cache_misses_total",
			Help:      "Embedding cache misses",
		},
		[]string{"cache_type"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

func RecordIngest(status string, chunks int) {
	IngestTotal.WithLabelValues(status).Inc()
	if chunks > 0 {
		ChunksIngested.Add(float64(chunks))
	}
}

func RecordQuery(status string) {
	QueryTotal.WithLabelValues(status).Inc()
}

func RecordEmbedding(durationSec float64) {
	EmbeddingDuration.Observe(durationSec)
}

func RecordVectorSearch(durationSec float64) {
	VectorSearchDuration.Observe(durationSec)
}

func RecordGeneration(durationSec float64) {
	GenerationDuration.Observe(durationSec)
}

func RecordCacheHit(cacheType string, n int) {
	CacheHitsTotal.WithLabelValues(cacheType).Add(float64(n))
}

func RecordCacheMiss(cacheType string, n int) {
	CacheMissesTotal.WithLabelValues(cacheType).Add(float64(n))
}
