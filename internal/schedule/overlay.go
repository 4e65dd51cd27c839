package schedule

import (
	"sync"
	"time"
)

// OverlayState is the lifecycle of one optimistic availability override.
type OverlayState string

const (
	// OverlayPending means the override was applied locally and the
	// confirming write has not landed yet.
	OverlayPending OverlayState = "pending"
	// OverlayConfirmed means the storage write succeeded.
	OverlayConfirmed OverlayState = "confirmed"
)

// DefaultOverlayTTL bounds how long a pending override may shadow storage
// before it rolls back.
const DefaultOverlayTTL = 10 * time.Second

// OverlayEntry is one override keyed by the slot's business key.
type OverlayEntry struct {
	Available bool
	State     OverlayState
	expiresAt time.Time
}

// PendingOverlay is a short-lived optimistic overlay over slot availability:
// a toggle is shown immediately, then reconciled against the confirmed
// storage write. Pending entries that outlive the TTL are treated as rolled
// back and disappear on the next read. Confirmed entries expire on the same
// TTL since by then storage carries the truth.
type PendingOverlay struct {
	mu      sync.RWMutex
	clock   Clock
	ttl     time.Duration
	entries map[string]OverlayEntry
}

func NewPendingOverlay(ttl time.Duration, clock Clock) *PendingOverlay {
	if ttl <= 0 {
		ttl = DefaultOverlayTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &PendingOverlay{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]OverlayEntry),
	}
}

// MarkPending records an optimistic override before the storage write.
func (o *PendingOverlay) MarkPending(key string, available bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[key] = OverlayEntry{
		Available: available,
		State:     OverlayPending,
		expiresAt: o.clock.Now().Add(o.ttl),
	}
}

// Confirm promotes a pending override once the write landed. Confirming an
// unknown or already expired key is a no-op.
func (o *PendingOverlay) Confirm(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[key]
	if !ok || o.clock.Now().After(entry.expiresAt) {
		delete(o.entries, key)
		return
	}
	entry.State = OverlayConfirmed
	entry.expiresAt = o.clock.Now().Add(o.ttl)
	o.entries[key] = entry
}

// Rollback discards an override after a failed write.
func (o *PendingOverlay) Rollback(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, key)
}

// Get returns the live override for key, sweeping it if expired.
func (o *PendingOverlay) Get(key string) (OverlayEntry, bool) {
	o.mu.RLock()
	entry, ok := o.entries[key]
	o.mu.RUnlock()
	if !ok {
		return OverlayEntry{}, false
	}
	if o.clock.Now().After(entry.expiresAt) {
		o.mu.Lock()
		delete(o.entries, key)
		o.mu.Unlock()
		return OverlayEntry{}, false
	}
	return entry, true
}

// Len reports the number of live entries, sweeping expired ones first.
func (o *PendingOverlay) Len() int {
	now := o.clock.Now()
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, entry := range o.entries {
		if now.After(entry.expiresAt) {
			delete(o.entries, key)
		}
	}
	return len(o.entries)
}
