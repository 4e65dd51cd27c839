package schedule

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock is a mutable clock for overlay expiry tests.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestOverlayPendingThenConfirm(t *testing.T) {
	clock := &steppingClock{now: date(2025, 3, 4)}
	o := NewPendingOverlay(10*time.Second, clock)

	o.MarkPending("k", false)

	entry, ok := o.Get("k")
	require.True(t, ok)
	assert.Equal(t, OverlayPending, entry.State)
	assert.False(t, entry.Available)

	o.Confirm("k")
	entry, ok = o.Get("k")
	require.True(t, ok)
	assert.Equal(t, OverlayConfirmed, entry.State)
}

func TestOverlayPendingExpiresAsRollback(t *testing.T) {
	clock := &steppingClock{now: date(2025, 3, 4)}
	o := NewPendingOverlay(10*time.Second, clock)

	o.MarkPending("k", false)
	clock.Advance(11 * time.Second)

	_, ok := o.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, o.Len())
}

func TestOverlayExplicitRollback(t *testing.T) {
	o := NewPendingOverlay(10*time.Second, FixedClock(date(2025, 3, 4)))

	o.MarkPending("k", true)
	o.Rollback("k")

	_, ok := o.Get("k")
	assert.False(t, ok)
}

func TestOverlayConfirmAfterExpiryIsNoop(t *testing.T) {
	clock := &steppingClock{now: date(2025, 3, 4)}
	o := NewPendingOverlay(10*time.Second, clock)

	o.MarkPending("k", false)
	clock.Advance(11 * time.Second)
	o.Confirm("k")

	_, ok := o.Get("k")
	assert.False(t, ok)
}
