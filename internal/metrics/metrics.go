package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the telemetry pipeline.
type Metrics struct {
	ReadingsTotal        prometheus.Counter
	ReadingsInvalidTotal prometheus.Counter
	PredictionsTotal     *prometheus.CounterVec
	PredictionLatency    prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	AlertsCreatedTotal   *prometheus.CounterVec
	AlertsDedupedTotal   prometheus.Counter
	PipelineDroppedTotal prometheus.Counter
	PublishErrorsTotal   prometheus.Counter
}

// NewMetrics creates a Metrics instance registered against reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReadingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "readings_total",
			Help: "Total number of readings accepted and persisted",
		}),
		ReadingsInvalidTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "readings_invalid_total",
			Help: "Total number of readings rejected by validation",
		}),
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of prediction calls by result",
		}, []string{"result"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Latency of prediction service calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_hits_total",
			Help: "Total number of prediction cache hits",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cache_misses_total",
			Help: "Total number of prediction cache misses",
		}),
		AlertsCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alerts_created_total",
			Help: "Total number of alerts created by type and severity",
		}, []string{"type", "severity"}),
		AlertsDedupedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_deduplicated_total",
			Help: "Total number of alert evaluations suppressed by dedup",
		}),
		PipelineDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_dropped_total",
			Help: "Total number of pipeline tasks dropped because the queue was full",
		}),
		PublishErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "event_publish_errors_total",
			Help: "Total number of event publish errors",
		}),
	}
}
