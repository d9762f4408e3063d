package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	evaluationJobsTotal   *prometheus.CounterVec
	evaluationQueueDepth  prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors for the API surface
// and the evaluation pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stepflow_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		evaluationJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stepflow_evaluation_jobs_total",
			Help: "Evaluation jobs processed by the worker, by outcome.",
		}, []string{"outcome"})

		evaluationQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stepflow_evaluation_queue_depth",
			Help: "Pending evaluation jobs observed at the last worker poll.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			evaluationJobsTotal,
			evaluationQueueDepth,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// EvaluationJobs exposes the counter for processed evaluation jobs.
func EvaluationJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationJobsTotal
}

// EvaluationQueueDepth exposes the pending-jobs gauge updated by the worker.
func EvaluationQueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return evaluationQueueDepth
}
