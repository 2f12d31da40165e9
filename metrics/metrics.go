// Package metrics exports Prometheus counters and histograms for the
// worker and orchestrator processes. Adapted from the teacher's
// ai/metrics.PrometheusExporter, narrowed from chat/LLM metrics down
// to the task-scheduling domain named in SPEC_FULL.md's domain stack.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a Prometheus registry with the counters and
// histograms taskmesh's worker and orchestrator processes emit.
type Registry struct {
	registry *prometheus.Registry

	tasksClaimed   *prometheus.CounterVec
	taskLatency    *prometheus.HistogramVec
	taskOutcomes   *prometheus.CounterVec
	leasesReclaimed prometheus.Counter

	workflowTerminal *prometheus.CounterVec
	workersOnline    prometheus.Gauge

	orchestratorTickLatency prometheus.Histogram
}

// DefaultLatencyBuckets covers sub-second handler calls through
// multi-minute LLM round trips.
var DefaultLatencyBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60, 120}

// New creates a Registry backed by a fresh prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		tasksClaimed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskmesh",
				Subsystem: "worker",
				Name:      "tasks_claimed_total",
				Help:      "Total number of tasks claimed by a worker, by task type.",
			},
			[]string{"task_type"},
		),
		taskLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "taskmesh",
				Subsystem: "worker",
				Name:      "task_handler_latency_seconds",
				Help:      "Time spent inside a task handler, by task type.",
				Buckets:   DefaultLatencyBuckets,
			},
			[]string{"task_type"},
		),
		taskOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskmesh",
				Subsystem: "worker",
				Name:      "task_outcomes_total",
				Help:      "Total number of task completions, by task type and outcome.",
			},
			[]string{"task_type", "outcome"},
		),
		leasesReclaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "taskmesh",
				Subsystem: "orchestrator",
				Name:      "leases_reclaimed_total",
				Help:      "Total number of IN_PROGRESS tasks reclaimed after their lease expired.",
			},
		),
		workflowTerminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskmesh",
				Subsystem: "orchestrator",
				Name:      "workflow_terminal_total",
				Help:      "Total number of workflows that reached a terminal status, by status.",
			},
			[]string{"status"},
		),
		workersOnline: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "taskmesh",
				Subsystem: "registry",
				Name:      "workers_online",
				Help:      "Number of workers with status ONLINE as of the last registry scan.",
			},
		),
		orchestratorTickLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "taskmesh",
				Subsystem: "orchestrator",
				Name:      "tick_latency_seconds",
				Help:      "Time spent running a full resolve/reclaim/aggregate pass.",
				Buckets:   DefaultLatencyBuckets,
			},
		),
	}

	reg.MustRegister(
		r.tasksClaimed,
		r.taskLatency,
		r.taskOutcomes,
		r.leasesReclaimed,
		r.workflowTerminal,
		r.workersOnline,
		r.orchestratorTickLatency,
	)
	return r
}

// RecordTaskClaimed records a successful claim for taskType.
func (r *Registry) RecordTaskClaimed(taskType string) {
	r.tasksClaimed.WithLabelValues(taskType).Inc()
}

// RecordTaskOutcome records a handler invocation's latency and
// terminal outcome ("completed" or "retried_or_failed").
func (r *Registry) RecordTaskOutcome(taskType, outcome string, latency time.Duration) {
	r.taskOutcomes.WithLabelValues(taskType, outcome).Inc()
	r.taskLatency.WithLabelValues(taskType).Observe(latency.Seconds())
}

// RecordLeaseReclaimed increments the expired-lease counter.
func (r *Registry) RecordLeaseReclaimed() {
	r.leasesReclaimed.Inc()
}

// RecordWorkflowTerminal records a workflow's terminal status.
func (r *Registry) RecordWorkflowTerminal(status string) {
	r.workflowTerminal.WithLabelValues(status).Inc()
}

// SetWorkersOnline sets the current count of ONLINE workers.
func (r *Registry) SetWorkersOnline(n int) {
	r.workersOnline.Set(float64(n))
}

// RecordOrchestratorTick records one Tick's wall-clock duration.
func (r *Registry) RecordOrchestratorTick(d time.Duration) {
	r.orchestratorTickLatency.Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the Prometheus exposition
// format for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
