// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ScreeningRequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_requests_created_total",
			Help: "Total screening submission requests created, by request type",
		},
		[]string{"request_type"},
	)

	ScreeningRequestsObsoleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_requests_obsoleted_total",
			Help: "Total prior requests marked obsolete, by triggering topic",
		},
		[]string{"topic"},
	)

	ScreeningResponsesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_responses_received_total",
			Help: "Total provider responses processed, by screening status",
		},
		[]string{"status"},
	)

	ScreeningProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screening_provider_request_duration_seconds",
			Help:    "Duration of outbound provider calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"request_type"},
	)

	ScreeningRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_requests_rate_limited_total",
			Help: "Total NEW requests refused by the per-party threshold",
		},
		[]string{"tenant_id"},
	)

	ScreeningRecoveredRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_recovered_requests_total",
			Help: "Total requests picked up by the recovery sweep, by kind",
		},
		[]string{"kind"},
	)

	ScreeningPendingRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "screening_pending_requests",
			Help: "Requests awaiting a provider response, by tenant",
		},
		[]string{"tenant_id"},
	)
)
