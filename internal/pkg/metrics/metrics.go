// Package metrics 代码索引相关的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "code_indexer"

var (
	// IndexerRunsTotal 外部进程调用次数
	// Labels: operation (index, delete), result (success, failure)
	IndexerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "runs_total",
			Help:      "Total number of external indexer invocations",
		},
		[]string{"operation", "result"},
	)

	IndexerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "run_duration_seconds",
			Help:      "Duration of external indexer invocations in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"operation"},
	)

	// HashesStreamedTotal 转发给 ref tracker 的 hash 数
	HashesStreamedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "hashes_streamed_total",
			Help:      "Total number of content hashes forwarded to the ref tracker",
		},
	)

	// RepositoryTransitionsTotal Labels: from, to
	RepositoryTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "transitions_total",
			Help:      "Total number of repository state transitions",
		},
		[]string{"from", "to"},
	)

	// SweepActionsTotal 资格扫描的纠正动作
	// Labels: worker, action
	SweepActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "actions_total",
			Help:      "Total number of corrective actions taken by eligibility sweeps",
		},
		[]string{"worker", "action"},
	)

	// SweepContinuationsTotal 因达到 LIMIT 发布的续扫事件
	SweepContinuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "continuations_total",
			Help:      "Total number of continuation events published",
		},
		[]string{"worker"},
	)

	// LeaseContentionTotal Labels: worker
	LeaseContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "lease_contention_total",
			Help:      "Total number of jobs rescheduled because the repository lease was held",
		},
		[]string{"worker"},
	)

	// JobsTotal Labels: queue, result (success, failure, rescheduled)
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total number of processed jobs",
		},
		[]string{"queue", "result"},
	)

	// TasksExecutedTotal Labels: task
	TasksExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks_executed_total",
			Help:      "Total number of scheduling task executions that passed the throttle",
		},
		[]string{"task"},
	)
)
