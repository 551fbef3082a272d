package observability

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMetrics(t *testing.T) {
	t.Run("counters accumulate", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter(MetricSweepBatches, 1)
		m.Counter(MetricSweepBatches, 1)
		m.Counter(MetricSubscriptionsExpired, 25)

		assert.Equal(t, int64(2), m.GetCounter(MetricSweepBatches))
		assert.Equal(t, int64(25), m.GetCounter(MetricSubscriptionsExpired))
		assert.Equal(t, int64(0), m.GetCounter(MetricSweepFailures))
	})

	t.Run("tags keep samples apart", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter(MetricOperationErrors, 1, T("operation", "subscription.sweep"))
		m.Counter(MetricOperationErrors, 3, T("operation", "outbox.cleanup"))

		assert.Equal(t, int64(1), m.GetCounter(MetricOperationErrors, T("operation", "subscription.sweep")))
		assert.Equal(t, int64(3), m.GetCounter(MetricOperationErrors, T("operation", "outbox.cleanup")))
		assert.Equal(t, int64(0), m.GetCounter(MetricOperationErrors))
	})

	t.Run("timings record every sample", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Timing(MetricOperationDuration, 120*time.Millisecond, T("operation", "subscription.sweep"))
		m.Timing(MetricOperationDuration, 95*time.Millisecond, T("operation", "subscription.sweep"))

		timings := m.GetTimings(MetricOperationDuration, T("operation", "subscription.sweep"))
		require.Len(t, timings, 2)
		assert.Equal(t, 120*time.Millisecond, timings[0])
	})

	t.Run("reset clears everything", func(t *testing.T) {
		m := NewInMemoryMetrics()
		m.Counter(MetricSweepFailures, 1)
		m.Timing(MetricOperationDuration, time.Second)

		m.Reset()

		assert.Equal(t, int64(0), m.GetCounter(MetricSweepFailures))
		assert.Empty(t, m.GetTimings(MetricOperationDuration))
	})

	t.Run("safe under concurrent writers", func(t *testing.T) {
		m := NewInMemoryMetrics()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					m.Counter(MetricSweepBatches, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(800), m.GetCounter(MetricSweepBatches))
	})
}

func TestNoopMetrics(t *testing.T) {
	// Must be callable without panicking; there is nothing to observe.
	m := NoopMetrics{}
	m.Counter(MetricSweepBatches, 1)
	m.Timing(MetricOperationDuration, time.Second, T("operation", "subscription.sweep"))
}

func TestTimer(t *testing.T) {
	t.Run("stop records a success sample", func(t *testing.T) {
		m := NewInMemoryMetrics()

		d := StartTimer("subscription.sweep").WithMetrics(m).Stop()

		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Equal(t, int64(1), m.GetCounter(MetricOperationTotal, T("operation", "subscription.sweep")))
		assert.Equal(t, int64(0), m.GetCounter(MetricOperationErrors, T("operation", "subscription.sweep")))
		assert.Len(t, m.GetTimings(MetricOperationDuration, T("operation", "subscription.sweep")), 1)
	})

	t.Run("stop with error counts the failure", func(t *testing.T) {
		m := NewInMemoryMetrics()

		StartTimer("outbox.cleanup").WithMetrics(m).StopWithError(errors.New("connection reset"))

		assert.Equal(t, int64(1), m.GetCounter(MetricOperationTotal, T("operation", "outbox.cleanup")))
		assert.Equal(t, int64(1), m.GetCounter(MetricOperationErrors, T("operation", "outbox.cleanup")))
	})

	t.Run("nil error does not count as failure", func(t *testing.T) {
		m := NewInMemoryMetrics()

		StartTimer("outbox.cleanup").WithMetrics(m).StopWithError(nil)

		assert.Equal(t, int64(0), m.GetCounter(MetricOperationErrors, T("operation", "outbox.cleanup")))
	})
}
