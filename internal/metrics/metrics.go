package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_tasks_submitted_total",
		Help: "Total number of tasks submitted",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_tasks_completed_total",
		Help: "Total number of tasks completed",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_tasks_failed_total",
		Help: "Total number of tasks that ended in error",
	})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_tasks_cancelled_total",
		Help: "Total number of tasks cancelled by the user",
	})

	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dlqueue_tasks_running",
		Help: "Number of tasks currently running",
	})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dlqueue_fetch_duration_seconds",
		Help:    "Duration of a single fetch attempt in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_download_bytes_total",
		Help: "Total bytes reported downloaded",
	})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_persistence_failures_total",
		Help: "Total number of failed snapshot saves",
	})

	LeakedSlots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlqueue_leaked_worker_slots_total",
		Help: "Total number of worker slots that ignored their stop signal",
	})
)
