package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsScheduled is a counter for jobs scheduled.
	JobsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsched_jobs_scheduled_total",
			Help: "The total number of jobs scheduled.",
		},
		[]string{"action"},
	)

	// JobsCompleted is a counter for job executions that succeeded.
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsched_jobs_completed_total",
			Help: "The total number of job executions that succeeded.",
		},
		[]string{"action"},
	)

	// JobsFailed is a counter for job executions that failed.
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentsched_jobs_failed_total",
			Help: "The total number of job executions that failed.",
		},
		[]string{"action"},
	)

	// JobDuration is a histogram of the time it takes to execute a job.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentsched_job_duration_seconds",
			Help:    "A histogram of the job execution duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 3, 8), // 10ms .. ~22s
		},
		[]string{"action"},
	)

	// TicksTotal counts completed sweep invocations.
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentsched_ticks_total",
			Help: "The total number of runner ticks.",
		},
	)

	// DueJobs is the number of jobs found due on the most recent tick.
	DueJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentsched_due_jobs",
			Help: "The number of jobs found due on the last tick.",
		},
	)
)
