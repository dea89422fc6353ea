// Package metrics exposes prometheus collectors for the engine.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation metrics
	GenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_generate_duration_seconds",
			Help:    "Duration of recipe generation requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"}, // "model", "heuristic", "template"
	)

	GenerateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_generate_total",
			Help: "Total recipe generation requests by outcome",
		},
		[]string{"outcome"},
	)

	CascadeStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_cascade_stage_total",
			Help: "Cascade stage that produced the candidate set",
		},
		[]string{"stage"},
	)

	ModelCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_model_cache_hits_total",
			Help: "Active model lookups served from memory",
		},
	)

	// Training metrics
	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_training_runs_total",
			Help: "Training runs by result",
		},
		[]string{"result"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_training_duration_seconds",
			Help:    "Wall time of training runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	TrainingAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_model_test_accuracy",
			Help: "Test accuracy of the most recently trained model",
		},
	)

	TrainingEpochs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_training_epochs_total",
			Help: "Epochs completed across all training runs",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordGenerate records a generation request
func RecordGenerate(path, outcome string, d time.Duration) {
	if path != "" {
		GenerateDuration.WithLabelValues(path).Observe(d.Seconds())
	}
	GenerateTotal.WithLabelValues(outcome).Inc()
}

// RecordTraining records a finished training run
func RecordTraining(err error, accuracy float64, d time.Duration) {
	TrainingDuration.Observe(d.Seconds())
	if err != nil {
		TrainingRuns.WithLabelValues("failure").Inc()
		return
	}
	TrainingRuns.WithLabelValues("success").Inc()
	TrainingAccuracy.Set(accuracy)
}

// RecordHTTPRequest records a served request
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
