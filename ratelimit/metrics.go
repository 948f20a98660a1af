package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot is a point-in-time view of limiter counters.
type MetricsSnapshot struct {
	TotalRequests int64
	Allowed       int64
	Rejected      int64
	Whitelisted   int64
	RejectRate    float64
	RejectReasons map[string]int64
	LastResetAt   time.Time
}

// MetricsCollector records admission decisions.
type MetricsCollector interface {
	RecordAllowed()
	RecordWhitelisted()
	RecordRejected(reason string)
	GetSnapshot() *MetricsSnapshot
	Reset()
}

type metricsCollector struct {
	totalRequests int64
	allowed       int64
	rejected      int64
	whitelisted   int64
	reasons       map[string]int64
	lastResetAt   time.Time
	mu            sync.RWMutex
}

func NewMetricsCollector() MetricsCollector {
	return &metricsCollector{
		reasons:     make(map[string]int64),
		lastResetAt: time.Now(),
	}
}

func (m *metricsCollector) RecordAllowed() {
	atomic.AddInt64(&m.totalRequests, 1)
	atomic.AddInt64(&m.allowed, 1)
}

func (m *metricsCollector) RecordWhitelisted() {
	atomic.AddInt64(&m.totalRequests, 1)
	atomic.AddInt64(&m.allowed, 1)
	atomic.AddInt64(&m.whitelisted, 1)
}

func (m *metricsCollector) RecordRejected(reason string) {
	atomic.AddInt64(&m.totalRequests, 1)
	atomic.AddInt64(&m.rejected, 1)

	m.mu.Lock()
	m.reasons[reason]++
	m.mu.Unlock()
}

func (m *metricsCollector) GetSnapshot() *MetricsSnapshot {
	total := atomic.LoadInt64(&m.totalRequests)
	allowed := atomic.LoadInt64(&m.allowed)
	rejected := atomic.LoadInt64(&m.rejected)
	whitelisted := atomic.LoadInt64(&m.whitelisted)

	var rejectRate float64
	if total > 0 {
		rejectRate = float64(rejected) / float64(total)
	}

	m.mu.RLock()
	reasons := make(map[string]int64, len(m.reasons))
	for reason, count := range m.reasons {
		reasons[reason] = count
	}
	lastResetAt := m.lastResetAt
	m.mu.RUnlock()

	return &MetricsSnapshot{
		TotalRequests: total,
		Allowed:       allowed,
		Rejected:      rejected,
		Whitelisted:   whitelisted,
		RejectRate:    rejectRate,
		RejectReasons: reasons,
		LastResetAt:   lastResetAt,
	}
}

func (m *metricsCollector) Reset() {
	atomic.StoreInt64(&m.totalRequests, 0)
	atomic.StoreInt64(&m.allowed, 0)
	atomic.StoreInt64(&m.rejected, 0)
	atomic.StoreInt64(&m.whitelisted, 0)

	m.mu.Lock()
	m.reasons = make(map[string]int64)
	m.lastResetAt = time.Now()
	m.mu.Unlock()
}
