package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthTrackerStartsAvailable(t *testing.T) {
	h := NewHealthTracker()
	assert.True(t, h.Available())
}

func TestHealthTrackerFailureThreshold(t *testing.T) {
	h := NewHealthTracker()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	h.RecordFailure()
	h.RecordFailure()
	assert.True(t, h.Available(), "below threshold")

	h.RecordFailure()
	assert.False(t, h.Available(), "at threshold")
}

func TestHealthTrackerSuccessResets(t *testing.T) {
	h := NewHealthTracker()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	h.RecordFailure()
	h.RecordFailure()
	h.RecordFailure()
	assert.False(t, h.Available())

	h.RecordSuccess()
	assert.True(t, h.Available())
}

func TestHealthTrackerRecoveryInterval(t *testing.T) {
	h := NewHealthTracker()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	h.RecordFailure()
	h.RecordFailure()
	h.RecordFailure()
	assert.False(t, h.Available())

	// After the recovery interval, traffic may probe again even without
	// an observed success
	now = now.Add(31 * time.Second)
	assert.True(t, h.Available())

	// A failed probe pushes the window out again
	h.RecordFailure()
	assert.False(t, h.Available())
}
