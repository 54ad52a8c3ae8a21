package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for record API requests.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_api_requests_total",
		Help: "Total record API requests by collection and status",
	}, []string{"collection", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_api_request_duration_seconds",
		Help:    "Record API request duration in seconds by collection",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"collection"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_api_errors_total",
		Help: "Total record API errors by class",
	}, []string{"class"})

	apiRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_api_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	apiRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pager_api_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	apiRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pager_api_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
