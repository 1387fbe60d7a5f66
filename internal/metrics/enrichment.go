package metrics

import "github.com/prometheus/client_golang/prometheus"

// Enrichment and chat Prometheus metrics.
var (
	SourceFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profilex",
			Name:      "source_fetch_total",
			Help:      "Source acquisition attempts by outcome",
		},
		[]string{"source", "status"}, // status: fetched/cached/skipped/failed
	)

	SourceCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profilex",
			Name:      "source_cache_total",
			Help:      "Source record cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EnrichmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "profilex",
			Name:      "enrichment_duration_seconds",
			Help:      "End-to-end enrichment run duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	IndexBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "profilex",
			Name:      "index_build_duration_seconds",
			Help:      "Chunk index build duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ChatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profilex",
			Name:      "chat_messages_total",
			Help:      "Handled chat messages by outcome",
		},
		[]string{"result"}, // "ok" / "degraded" / "rejected"
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "profilex",
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "profilex",
			Name:      "generation_request_duration_seconds",
			Help:      "Generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)
)

var enrichMetricsRegistered bool

// RegisterEnrichmentMetrics registers enrichment and chat metrics. Must be
// called once from main.
func RegisterEnrichmentMetrics() {
	if enrichMetricsRegistered {
		return
	}
	prometheus.MustRegister(SourceFetchTotal)
	prometheus.MustRegister(SourceCacheTotal)
	prometheus.MustRegister(EnrichmentDuration)
	prometheus.MustRegister(IndexBuildDuration)
	prometheus.MustRegister(ChatMessagesTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	enrichMetricsRegistered = true
}
