package observability

import (
	"strings"
	"sync"
	"time"
)

// Metrics is the sink the sweeper and the timers report to. Only
// counters and timings exist: that is all subtrack emits today.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag labels a metric sample.
type Tag struct {
	Key   string
	Value string
}

// T builds a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards every sample. It is the default sink when no
// collector is wired in.
type NoopMetrics struct{}

func (NoopMetrics) Counter(name string, value int64, tags ...Tag)           {}
func (NoopMetrics) Timing(name string, duration time.Duration, tags ...Tag) {}

// InMemoryMetrics accumulates samples in process memory. Tests use it
// to assert on what an operation emitted.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[sampleKey(name, tags)] += value
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sampleKey(name, tags)
	m.timings[key] = append(m.timings[key], duration)
}

// GetCounter returns the accumulated value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[sampleKey(name, tags)]
}

// GetTimings returns every duration recorded under the name.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timings[sampleKey(name, tags)]
}

// Reset drops everything recorded so far.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]int64)
	m.timings = make(map[string][]time.Duration)
}

func sampleKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteString(":")
		b.WriteString(t.Key)
		b.WriteString("=")
		b.WriteString(t.Value)
	}
	return b.String()
}

// Metric names emitted by subtrack.
const (
	MetricOperationTotal    = "subtrack.operation.total"
	MetricOperationDuration = "subtrack.operation.duration"
	MetricOperationErrors   = "subtrack.operation.errors"

	MetricSubscriptionsExpired = "subtrack.subscriptions.expired"
	MetricSweepBatches         = "subtrack.sweep.batches"
	MetricSweepFailures        = "subtrack.sweep.failures"
)
