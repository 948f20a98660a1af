package resilience

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot is a point-in-time view of controller counters.
type MetricsSnapshot struct {
	Resource        string
	State           State
	TotalCalls      int64
	SuccessfulCalls int64
	FailedCalls     int64
	RejectedCalls   int64
	RetryAttempts   int64
	StateChanges    int64
	LastFailureAt   time.Time
	LastSuccessAt   time.Time
}

// MetricsCollector records controller activity.
type MetricsCollector interface {
	RecordSuccess()
	RecordFailure()
	RecordRejection()
	RecordRetry()
	RecordStateChange()
	GetSnapshot(state State) *MetricsSnapshot
	Reset()
}

type metricsCollector struct {
	resource      string
	totalCalls    int64
	successful    int64
	failed        int64
	rejected      int64
	retries       int64
	stateChanges  int64
	lastFailureAt time.Time
	lastSuccessAt time.Time
	mu            sync.RWMutex
}

func NewMetricsCollector(resource string) MetricsCollector {
	return &metricsCollector{resource: resource}
}

func (m *metricsCollector) RecordSuccess() {
	atomic.AddInt64(&m.totalCalls, 1)
	atomic.AddInt64(&m.successful, 1)

	m.mu.Lock()
	m.lastSuccessAt = time.Now()
	m.mu.Unlock()
}

func (m *metricsCollector) RecordFailure() {
	atomic.AddInt64(&m.totalCalls, 1)
	atomic.AddInt64(&m.failed, 1)

	m.mu.Lock()
	m.lastFailureAt = time.Now()
	m.mu.Unlock()
}

func (m *metricsCollector) RecordRejection() {
	atomic.AddInt64(&m.totalCalls, 1)
	atomic.AddInt64(&m.rejected, 1)
}

func (m *metricsCollector) RecordRetry() {
	atomic.AddInt64(&m.retries, 1)
}

func (m *metricsCollector) RecordStateChange() {
	atomic.AddInt64(&m.stateChanges, 1)
}

func (m *metricsCollector) GetSnapshot(state State) *MetricsSnapshot {
	m.mu.RLock()
	lastFailureAt := m.lastFailureAt
	lastSuccessAt := m.lastSuccessAt
	m.mu.RUnlock()

	return &MetricsSnapshot{
		Resource:        m.resource,
		State:           state,
		TotalCalls:      atomic.LoadInt64(&m.totalCalls),
		SuccessfulCalls: atomic.LoadInt64(&m.successful),
		FailedCalls:     atomic.LoadInt64(&m.failed),
		RejectedCalls:   atomic.LoadInt64(&m.rejected),
		RetryAttempts:   atomic.LoadInt64(&m.retries),
		StateChanges:    atomic.LoadInt64(&m.stateChanges),
		LastFailureAt:   lastFailureAt,
		LastSuccessAt:   lastSuccessAt,
	}
}

func (m *metricsCollector) Reset() {
	atomic.StoreInt64(&m.totalCalls, 0)
	atomic.StoreInt64(&m.successful, 0)
	atomic.StoreInt64(&m.failed, 0)
	atomic.StoreInt64(&m.rejected, 0)
	atomic.StoreInt64(&m.retries, 0)
	atomic.StoreInt64(&m.stateChanges, 0)

	m.mu.Lock()
	m.lastFailureAt = time.Time{}
	m.lastSuccessAt = time.Time{}
	m.mu.Unlock()
}
