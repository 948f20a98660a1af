package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

func (s State) IsOpen() bool     { return s == StateOpen }
func (s State) IsClosed() bool   { return s == StateClosed }
func (s State) IsHalfOpen() bool { return s == StateHalfOpen }

// stateManager owns the breaker state machine. Transitions:
// Closed -> Open after failureThreshold consecutive failures;
// Open -> HalfOpen once the recovery timeout elapses;
// HalfOpen -> Closed after successThreshold successes;
// HalfOpen -> Open on any failure.
type stateManager struct {
	state            State
	lastStateChange  time.Time
	failureCount     int
	successCount     int
	halfOpenAttempts int
	now              func() time.Time
	mu               sync.RWMutex
}

func newStateManager() *stateManager {
	return &stateManager{
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// GetState returns the current state without side effects.
func (sm *stateManager) GetState() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// CanAttempt reports whether a call may proceed, moving Open to HalfOpen
// when the recovery timeout has elapsed.
func (sm *stateManager) CanAttempt(cfg Config) (allowed bool, stateChanged bool, from, to State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		return true, false, sm.state, sm.state

	case StateOpen:
		if sm.now().Sub(sm.lastStateChange) >= cfg.RecoveryTimeout {
			from = sm.state
			sm.transitionTo(StateHalfOpen)
			sm.halfOpenAttempts = 1
			sm.successCount = 0
			return true, true, from, sm.state
		}
		return false, false, sm.state, sm.state

	case StateHalfOpen:
		if sm.halfOpenAttempts < cfg.HalfOpenMaxCalls {
			sm.halfOpenAttempts++
			return true, false, sm.state, sm.state
		}
		return false, false, sm.state, sm.state

	default:
		return false, false, sm.state, sm.state
	}
}

// TimeUntilRetry reports how long Open lasts before HalfOpen becomes
// possible; zero in other states.
func (sm *stateManager) TimeUntilRetry(cfg Config) time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.state != StateOpen {
		return 0
	}
	remaining := cfg.RecoveryTimeout - sm.now().Sub(sm.lastStateChange)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess resets the failure count; in HalfOpen it counts toward the
// success threshold and may close the circuit.
func (sm *stateManager) RecordSuccess(cfg Config) (stateChanged bool, from, to State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		sm.failureCount = 0

	case StateHalfOpen:
		sm.successCount++
		if sm.successCount >= cfg.SuccessThreshold {
			from = sm.state
			sm.transitionTo(StateClosed)
			sm.successCount = 0
			sm.failureCount = 0
			sm.halfOpenAttempts = 0
			return true, from, sm.state
		}
	}

	return false, sm.state, sm.state
}

// RecordFailure counts a failure; Closed opens at the threshold, HalfOpen
// reopens immediately.
func (sm *stateManager) RecordFailure(cfg Config) (stateChanged bool, from, to State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch sm.state {
	case StateClosed:
		sm.failureCount++
		if sm.failureCount >= cfg.FailureThreshold {
			from = sm.state
			sm.transitionTo(StateOpen)
			return true, from, sm.state
		}

	case StateHalfOpen:
		from = sm.state
		sm.transitionTo(StateOpen)
		sm.successCount = 0
		sm.failureCount = 0
		sm.halfOpenAttempts = 0
		return true, from, sm.state
	}

	return false, sm.state, sm.state
}

// Reset forces the breaker back to Closed.
func (sm *stateManager) Reset() (stateChanged bool, from, to State) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateClosed {
		from = sm.state
		sm.transitionTo(StateClosed)
		sm.failureCount = 0
		sm.successCount = 0
		sm.halfOpenAttempts = 0
		return true, from, sm.state
	}
	return false, sm.state, sm.state
}

func (sm *stateManager) transitionTo(newState State) {
	sm.state = newState
	sm.lastStateChange = sm.now()
}

func (sm *stateManager) GetFailureCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.failureCount
}
