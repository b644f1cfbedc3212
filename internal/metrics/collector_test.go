package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.instancesLaunched)
	assert.NotNil(t, collector.instancesEnded)
	assert.NotNil(t, collector.tasksOpened)
	assert.NotNil(t, collector.tasksEnded)
	assert.NotNil(t, collector.joinArrivals)
}

func TestCollector_RecordInstanceLifecycle(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordInstanceLaunched("approval")
	collector.RecordInstanceLaunched("approval")
	collector.RecordInstanceEnded("approval", "done")

	assert.Equal(t, float64(2), testutil.ToFloat64(
		collector.instancesLaunched.WithLabelValues("approval")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.instancesEnded.WithLabelValues("approval", "done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.activeInstances.WithLabelValues("approval")))
}

func TestCollector_RecordTasksAndJoins(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordTaskOpened("approval", "validate")
	collector.RecordTaskEnded("approval", "validate", "ended")
	collector.RecordJoinArrival("approval", "waiting")
	collector.RecordJoinArrival("approval", "ready")
	collector.RecordStepDuration("approval", "task", 250*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.tasksOpened.WithLabelValues("approval", "validate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.tasksEnded.WithLabelValues("approval", "validate", "ended")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.joinArrivals.WithLabelValues("approval", "ready")))
}

func TestCollector_NilSafe(t *testing.T) {
	var collector *Collector

	// nil Collector 的记录方法为空操作
	collector.RecordInstanceLaunched("approval")
	collector.RecordInstanceEnded("approval", "done")
	collector.RecordTaskOpened("approval", "validate")
	collector.RecordTaskEnded("approval", "validate", "ended")
	collector.RecordJoinArrival("approval", "ready")
	collector.RecordStepDuration("approval", "task", time.Second)
}
