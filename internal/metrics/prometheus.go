package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptlearn_responses_total",
			Help: "Total responses evaluated",
		},
		[]string{"rating", "mode"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adaptlearn_evaluation_duration_seconds",
			Help:    "Full response pipeline duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	CreditScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adaptlearn_credit_score",
			Help:    "Credit awarded per response",
			Buckets: []float64{0, 0.25, 0.5, 0.7, 0.9, 0.95, 1},
		},
	)

	StageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptlearn_stage_transitions_total",
			Help: "Mastery stage transitions",
		},
		[]string{"direction"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adaptlearn_queue_depth",
			Help: "Items in the most recently built review queue",
		},
	)

	BottleneckConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adaptlearn_bottleneck_confidence",
			Help:    "Confidence of completed bottleneck analyses",
			Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptlearn_cache_hits_total",
			Help: "Cache hits by type",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adaptlearn_cache_misses_total",
			Help: "Cache misses by type",
		},
		[]string{"cache_type"},
	)

	UrgencyRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adaptlearn_urgency_refresh_duration_seconds",
			Help:    "Pool-wide urgency recomputation duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	FeedbackFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adaptlearn_feedback_fallbacks_total",
			Help: "Feedback requests served by templates after provider failure",
		},
	)
)

func Init() {
	prometheus.MustRegister(ResponsesTotal)
	prometheus.MustRegister(EvaluationDuration)
	prometheus.MustRegister(CreditScore)
	prometheus.MustRegister(StageTransitions)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(BottleneckConfidence)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(UrgencyRefreshDuration)
	prometheus.MustRegister(FeedbackFallbacks)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
