// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 工作流实例指标
	instancesLaunched *prometheus.CounterVec
	instancesEnded    *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	activeInstances   *prometheus.GaugeVec

	// 任务指标
	tasksOpened *prometheus.CounterVec
	tasksEnded  *prometheus.CounterVec

	// Fork/Join 指标
	joinArrivals *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 实例指标
	c.instancesLaunched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_launched_total",
			Help:      "Total number of workflow instances launched",
		},
		[]string{"definition"},
	)

	c.instancesEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_ended_total",
			Help:      "Total number of workflow instances reaching a final or suspended state",
		},
		[]string{"definition", "status"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Time a step position stayed active before completing",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60, 600, 3600, 86400},
		},
		[]string{"definition", "kind"},
	)

	c.activeInstances = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_instances",
			Help:      "Number of live workflow instances",
		},
		[]string{"definition"},
	)

	// 任务指标
	c.tasksOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_opened_total",
			Help:      "Total number of human tasks opened",
		},
		[]string{"definition", "step"},
	)

	c.tasksEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_ended_total",
			Help:      "Total number of human tasks ended or cancelled",
		},
		[]string{"definition", "step", "status"},
	)

	// Fork/Join 指标
	c.joinArrivals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_arrivals_total",
			Help:      "Total number of branch arrivals at join steps",
		},
		[]string{"definition", "decision"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 实例指标记录
// =============================================================================

// RecordInstanceLaunched 记录实例启动
func (c *Collector) RecordInstanceLaunched(definition string) {
	if c == nil {
		return
	}
	c.instancesLaunched.WithLabelValues(definition).Inc()
	c.activeInstances.WithLabelValues(definition).Inc()
}

// RecordInstanceEnded 记录实例结束（done/cancelled/suspended）
func (c *Collector) RecordInstanceEnded(definition, status string) {
	if c == nil {
		return
	}
	c.instancesEnded.WithLabelValues(definition, status).Inc()
	if status != "suspended" {
		c.activeInstances.WithLabelValues(definition).Dec()
	}
}

// RecordStepDuration 记录步骤停留时长
func (c *Collector) RecordStepDuration(definition, kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(definition, kind).Observe(d.Seconds())
}

// =============================================================================
// 📋 任务指标记录
// =============================================================================

// RecordTaskOpened 记录任务创建
func (c *Collector) RecordTaskOpened(definition, step string) {
	if c == nil {
		return
	}
	c.tasksOpened.WithLabelValues(definition, step).Inc()
}

// RecordTaskEnded 记录任务结束
func (c *Collector) RecordTaskEnded(definition, step, status string) {
	if c == nil {
		return
	}
	c.tasksEnded.WithLabelValues(definition, step, status).Inc()
}

// =============================================================================
// 🔀 Fork/Join 指标记录
// =============================================================================

// RecordJoinArrival 记录分支到达 Join 的裁决结果
func (c *Collector) RecordJoinArrival(definition, decision string) {
	if c == nil {
		return
	}
	c.joinArrivals.WithLabelValues(definition, decision).Inc()
}
