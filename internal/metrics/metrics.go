// Package metrics defines the Prometheus collectors shared by the worker
// and CLI binaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueued counts messages published to the processing stream.
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelpress_jobs_enqueued_total",
		Help: "Processing jobs published to the queue.",
	})

	// JobsProcessed counts finished jobs by terminal outcome.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelpress_jobs_processed_total",
		Help: "Jobs that reached a terminal outcome.",
	}, []string{"outcome"})

	// JobsRetried counts deliveries that ended in a retryable error.
	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelpress_jobs_retried_total",
		Help: "Job deliveries released for redelivery after a transient error.",
	})

	// JobDuration observes end-to-end processing time per outcome.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelpress_job_duration_seconds",
		Help:    "Wall-clock duration of one job delivery.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	// StageDuration observes individual pipeline stages.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelpress_stage_duration_seconds",
		Help:    "Duration of one pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// QueueDepth tracks the length of the processing stream.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelpress_queue_depth",
		Help: "Entries currently in the processing stream.",
	})

	// WorkersBusy tracks slots currently executing a job.
	WorkersBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelpress_workers_busy",
		Help: "Worker slots currently processing a job.",
	})

	// StorageOps counts storage backend calls by operation and status.
	StorageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelpress_storage_operations_total",
		Help: "Storage operations by operation name and status.",
	}, []string{"operation", "status"})

	// StorageOpDuration observes storage call latency.
	StorageOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelpress_storage_operation_duration_seconds",
		Help:    "Latency of storage operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	appInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelpress_build_info",
		Help: "Build metadata, value fixed at 1.",
	}, []string{"version", "commit"})
)

// SetAppInfo publishes build metadata once at startup.
func SetAppInfo(version, commit string) {
	appInfo.WithLabelValues(version, commit).Set(1)
}
