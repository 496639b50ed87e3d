package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts jobs created by priority.
	JobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforge_jobs_created_total",
			Help: "Total number of video jobs created",
		},
		[]string{"priority"},
	)

	// JobTransitions counts job status changes by target status.
	JobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforge_job_transitions_total",
			Help: "Total number of job status transitions",
		},
		[]string{"status"},
	)

	// ProviderRequests counts provider calls by operation and outcome.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforge_provider_requests_total",
			Help: "Total number of requests sent to the generation provider",
		},
		[]string{"operation", "outcome"},
	)

	// ProviderRetries counts retried provider calls by operation.
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidforge_provider_retries_total",
			Help: "Total number of provider request retries",
		},
		[]string{"operation"},
	)

	// ProviderLatency tracks the duration of single provider HTTP requests.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidforge_provider_request_duration_seconds",
			Help:    "Duration of provider HTTP requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"operation"},
	)

	// BatchSyncsInFlight tracks job syncs currently running for batches.
	BatchSyncsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidforge_batch_syncs_in_flight",
			Help: "Number of batch job synchronizations currently running",
		},
	)

	// SyncWorkersActive tracks the number of background sync workers busy.
	SyncWorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidforge_sync_workers_active",
			Help: "Number of background status sync workers currently busy",
		},
	)

	// EventPublishFailures counts job events that could not be published.
	EventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidforge_event_publish_failures_total",
			Help: "Total number of job events that failed to publish",
		},
	)
)
