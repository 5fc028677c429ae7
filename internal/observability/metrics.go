// File: internal/observability/metrics.go
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "markasorgu"

var (
	// TasksTotal counts finished tasks by kind and outcome (ok, not_found, error).
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tasks_total",
		Help:      "Number of finished browser tasks.",
	}, []string{"kind", "outcome"})

	// TaskDuration observes the wall time a task held its session.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "task_duration_seconds",
		Help:      "Time a task spent driving its browser session.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"kind"})

	// TaskAttempts observes how many protocol attempts a task needed.
	TaskAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "task_attempts",
		Help:      "Protocol attempts used per task.",
		Buckets:   []float64{1, 2, 3, 4, 5},
	}, []string{"kind"})

	// ActiveSessions is the number of sessions currently driven by a task.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "sessions_active",
		Help:      "Browser sessions currently executing a task.",
	})

	// QueuedTasks is the number of submitted tasks waiting for a session.
	QueuedTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "tasks_queued",
		Help:      "Tasks waiting for a free browser session.",
	})

	// BlockedRequests counts sub-resource fetches suppressed by the resource filter.
	BlockedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "blocked_requests_total",
		Help:      "Requests aborted by the per-session resource filter.",
	}, []string{"resource_type"})

	// CacheLookups counts search cache lookups by result (hit, miss).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "search_cache_lookups_total",
		Help:      "Search result cache lookups.",
	}, []string{"result"})
)
