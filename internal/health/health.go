// Package health is a direct port of the original bridge's HealthMonitor:
// per-subsystem circuit breaker tracking consecutive failures and
// suppressing new attempts for a cooldown period once a threshold is hit.
package health

import (
	"sync"
	"time"
)

// Status is a subsystem's circuit-breaker state, per spec §4.S / §7.
type Status string

const (
	StatusOK         Status = "ok"
	StatusDegraded   Status = "degraded"
	StatusSuppressed Status = "suppressed"
	StatusRecovering Status = "recovering"
)

// SubsystemState is a point-in-time snapshot of one subsystem's health.
type SubsystemState struct {
	Name            string
	Status          Status
	Failures        int
	Suppressions    int
	SuppressedUntil time.Time
	LastError       string
	LastSuccess     time.Time
	LastFailure     time.Time
}

// Remaining returns how much cooldown remains as of now, or zero if none.
func (s SubsystemState) Remaining(now time.Time) time.Duration {
	if s.SuppressedUntil.IsZero() {
		return 0
	}
	remaining := s.SuppressedUntil.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Monitor tracks per-subsystem health and enforces circuit-breaker
// suppression once FailureThreshold consecutive failures accrue.
type Monitor struct {
	mu               sync.Mutex
	states           map[string]*SubsystemState
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewMonitor creates a Monitor for the given subsystem names, thresholded
// per spec §4.S (default subsystem_failure_threshold=5,
// subsystem_failure_cooldown=15s — callers pass the configured values).
func NewMonitor(subsystemNames []string, failureThreshold int, cooldown time.Duration) *Monitor {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if cooldown < 0 {
		cooldown = 0
	}
	m := &Monitor{
		states:           make(map[string]*SubsystemState),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
	for _, name := range subsystemNames {
		m.states[name] = &SubsystemState{Name: name, Status: StatusOK}
	}
	return m
}

func (m *Monitor) stateFor(subsystem string) *SubsystemState {
	s, ok := m.states[subsystem]
	if !ok {
		s = &SubsystemState{Name: subsystem, Status: StatusOK}
		m.states[subsystem] = s
	}
	return s
}

// RecordSuccess resets failures to zero, clears suppression, and marks ok.
func (m *Monitor) RecordSuccess(subsystem string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(subsystem)
	s.Failures = 0
	s.Status = StatusOK
	s.SuppressedUntil = time.Time{}
	s.LastSuccess = m.now()
}

// RecordFailure increments the failure count and, once it reaches
// failureThreshold, transitions to suppressed for cooldown; otherwise
// degraded.
func (m *Monitor) RecordFailure(subsystem string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(subsystem)
	s.Failures++
	s.LastFailure = m.now()
	if err != nil {
		s.LastError = err.Error()
	}

	if s.Failures >= m.failureThreshold {
		s.Status = StatusSuppressed
		s.Suppressions++
		s.SuppressedUntil = s.LastFailure.Add(m.cooldown)
	} else {
		s.Status = StatusDegraded
	}
}

// AllowAttempt reports whether subsystem may attempt its next operation. If
// suppressed and the cooldown has not elapsed, returns (false, remaining).
// If the cooldown has elapsed, transitions suppressed -> recovering and
// allows the probe through.
func (m *Monitor) AllowAttempt(subsystem string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stateFor(subsystem)
	now := m.now()

	if !s.SuppressedUntil.IsZero() && s.SuppressedUntil.After(now) {
		return false, s.SuppressedUntil.Sub(now)
	}
	if s.Status == StatusSuppressed {
		s.Status = StatusRecovering
	}
	return true, 0
}

// Snapshot returns a copy of every tracked subsystem's current state.
func (m *Monitor) Snapshot() map[string]SubsystemState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]SubsystemState, len(m.states))
	for name, s := range m.states {
		out[name] = *s
	}
	return out
}
