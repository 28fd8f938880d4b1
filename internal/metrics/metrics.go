package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fresco",
		Name:      "http_request_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	RecommendationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fresco",
		Name:      "recommendations_total",
		Help:      "Total recommendation lists served.",
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fresco",
		Name:      "cache_hits_total",
		Help:      "Recommendation cache hits.",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fresco",
		Name:      "cache_misses_total",
		Help:      "Recommendation cache misses.",
	})
	FillObjectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fresco",
		Name:      "fill_objects_total",
		Help:      "Objects loaded from dumps.",
	}, []string{"kind"})
	TrainRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fresco",
		Name:      "train_runs_total",
		Help:      "Completed model training runs.",
	}, []string{"model"})
)

func init() {
	prometheus.MustRegister(
		RequestSeconds,
		RecommendationsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		FillObjectsTotal,
		TrainRunsTotal,
	)
}
