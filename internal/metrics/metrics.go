// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the discovery engine's Prometheus gauges and
// counters: queue depth, outstanding checks, drain throughput and
// per-worker busy fraction. Grounded on
// grimm-is-flywall/internal/ebpf/metrics/prometheus.go's
// NewMetrics/RegisterMetrics shape.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every discoverer Prometheus series.
type Metrics struct {
	QueueDepth         prometheus.Gauge
	PendingChecks      prometheus.Gauge
	OutstandingHosts   prometheus.Gauge
	WorkerBusyFraction *prometheus.GaugeVec
	TasksProbed        prometheus.Counter
	TasksFailed        prometheus.Counter
	RulesAdmitted      prometheus.Counter
	RulesRequeued      prometheus.Counter
	DrainBatches       prometheus.Counter
	DrainedHosts       prometheus.Counter
	IPCRequests        *prometheus.CounterVec
}

// New builds a Metrics with every series initialized but not yet
// registered.
func New() *Metrics {
	return &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discoverer_queue_depth",
			Help: "Number of jobs currently held in the task queue.",
		}),
		PendingChecks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discoverer_pending_checks",
			Help: "Sum of task.checkCount across all queued jobs.",
		}),
		OutstandingHosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "discoverer_outstanding_hosts",
			Help: "Number of (ruleId, ip) entries currently held in the result cache, ready or not.",
		}),
		WorkerBusyFraction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "discoverer_worker_busy_fraction",
			Help: "Fraction of the last sample window each worker spent running a probe.",
		}, []string{"worker"}),
		TasksProbed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoverer_tasks_probed_total",
			Help: "Total number of tasks a worker finished probing.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoverer_tasks_failed_total",
			Help: "Total number of tasks aborted by a driver-init failure.",
		}),
		RulesAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoverer_rules_admitted_total",
			Help: "Total number of rule cycles successfully expanded and queued.",
		}),
		RulesRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoverer_rules_requeued_total",
			Help: "Total number of rule cycles deferred (config error or queue-full) and requeued.",
		}),
		DrainBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoverer_drain_batches_total",
			Help: "Total number of Drain calls that persisted at least one ready entry.",
		}),
		DrainedHosts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "discoverer_drained_hosts_total",
			Help: "Total number of ready PartialResults persisted by the drainer.",
		}),
		IPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discoverer_ipc_requests_total",
			Help: "Total number of IPC requests handled, by message code.",
		}, []string{"code"}),
	}
}

// Register registers every series with the default Prometheus registry.
func (m *Metrics) Register() {
	prometheus.MustRegister(
		m.QueueDepth,
		m.PendingChecks,
		m.OutstandingHosts,
		m.WorkerBusyFraction,
		m.TasksProbed,
		m.TasksFailed,
		m.RulesAdmitted,
		m.RulesRequeued,
		m.DrainBatches,
		m.DrainedHosts,
		m.IPCRequests,
	)
}
