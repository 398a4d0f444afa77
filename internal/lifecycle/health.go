package lifecycle

import (
	"sync"
	"time"
)

const (
	// defaultFailureThreshold is how many consecutive provider failures
	// mark the provider unavailable
	defaultFailureThreshold = 3

	// defaultRecoveryInterval is how long after the last failure the
	// provider is again considered worth trying
	defaultRecoveryInterval = 30 * time.Second
)

// HealthTracker derives identity-provider availability from recent call
// outcomes. It replaces a shared mutable "connected" flag: availability is
// a conclusion drawn from observations, not a bit flipped by an event
// callback somewhere else.
type HealthTracker struct {
	mu                  sync.Mutex
	consecutiveFailures int
	lastFailure         time.Time
	failureThreshold    int
	recoveryInterval    time.Duration
	now                 func() time.Time
}

// NewHealthTracker creates a tracker with default thresholds
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		failureThreshold: defaultFailureThreshold,
		recoveryInterval: defaultRecoveryInterval,
		now:              time.Now,
	}
}

// RecordSuccess notes a completed provider round-trip.
// A rejected grant still counts as success here: the provider answered.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.consecutiveFailures = 0
	h.mu.Unlock()
}

// RecordFailure notes a network-level provider failure
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	h.consecutiveFailures++
	h.lastFailure = h.now()
	h.mu.Unlock()
}

// Available reports whether the provider is believed reachable. After the
// recovery interval elapses the tracker lets traffic probe again.
func (h *HealthTracker) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.consecutiveFailures < h.failureThreshold {
		return true
	}
	return h.now().Sub(h.lastFailure) >= h.recoveryInterval
}
