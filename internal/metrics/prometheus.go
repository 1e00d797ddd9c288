package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formsnapper_analysis_duration_seconds",
			Help:    "Form analysis duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tier"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_analysis_total",
			Help: "Total form analyses by final tier and status",
		},
		[]string{"tier", "status"},
	)

	TierFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_tier_fallbacks_total",
			Help: "Tier fallthrough events by tier abandoned",
		},
		[]string{"from_tier"},
	)

	InferenceMode = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_inference_mode_total",
			Help: "Inference calls by mode actually used",
		},
		[]string{"mode"},
	)

	StageTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formsnapper_stage_token_estimate",
			Help:    "Estimated token budget per analysis stage",
			Buckets: []float64{100, 500, 1000, 2000, 4000, 6000, 10000, 20000},
		},
		[]string{"stage"},
	)

	ChunksEmbedded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formsnapper_chunks_embedded_total",
			Help: "Total chunks embedded and stored",
		},
	)

	DuplicatesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formsnapper_duplicates_skipped_total",
			Help: "Total chunks skipped as near-duplicates",
		},
	)

	EmbeddingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formsnapper_embedding_failures_total",
			Help: "Total chunk embedding failures",
		},
	)

	StorageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_storage_ops_total",
			Help: "Storage operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_storage_fallbacks_total",
			Help: "Remote-to-local storage fallbacks by operation",
		},
		[]string{"operation"},
	)

	ModeSwitches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_storage_mode_switches_total",
			Help: "Storage mode switches by target mode",
		},
		[]string{"to"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formsnapper_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	KnowledgeSearches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formsnapper_knowledge_searches_total",
			Help: "Total knowledge base searches",
		},
	)
)

func Init() {
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysisTotal)
	prometheus.MustRegister(TierFallbacks)
	prometheus.MustRegister(InferenceMode)
	prometheus.MustRegister(StageTokens)
	prometheus.MustRegister(ChunksEmbedded)
	prometheus.MustRegister(DuplicatesSkipped)
	prometheus.MustRegister(EmbeddingFailures)
	prometheus.MustRegister(StorageOps)
	prometheus.MustRegister(StorageFallbacks)
	prometheus.MustRegister(ModeSwitches)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(KnowledgeSearches)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
