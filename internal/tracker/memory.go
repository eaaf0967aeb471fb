package tracker

import (
	"sync"
	"time"
)

// InMemoryAccessTracker implements AccessTracker using an in-memory map.
type InMemoryAccessTracker struct {
	mu          sync.RWMutex
	accessTimes map[string]time.Time
	now         func() time.Time
}

// NewInMemoryAccessTracker creates a new InMemoryAccessTracker.
func NewInMemoryAccessTracker() *InMemoryAccessTracker {
	return &InMemoryAccessTracker{accessTimes: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (t *InMemoryAccessTracker) WithClock(now func() time.Time) *InMemoryAccessTracker {
	t.now = now
	return t
}

// Update sets the last access time for the given session to now.
func (t *InMemoryAccessTracker) Update(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessTimes[id] = t.now()
}

// GetLastAccessed retrieves the last access time for the given session.
// An untracked session (for example one created before a restart of the
// tracker) is started at now, so it's never reaped on first sight.
func (t *InMemoryAccessTracker) GetLastAccessed(id string) (time.Time, bool) {
	t.mu.RLock()
	ts, found := t.accessTimes[id]
	t.mu.RUnlock()

	if !found {
		t.mu.Lock()
		ts, found = t.accessTimes[id]
		if !found {
			ts = t.now()
			t.accessTimes[id] = ts
			found = true
		}
		t.mu.Unlock()
	}
	return ts, found
}

// Remove deletes the tracking information for the given session.
func (t *InMemoryAccessTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.accessTimes, id)
}

// IdleLongerThan returns which of ids have not been touched within threshold.
func (t *InMemoryAccessTracker) IdleLongerThan(ids []string, threshold time.Duration) []string {
	var idle []string
	now := t.now()
	for _, id := range ids {
		last, _ := t.GetLastAccessed(id)
		if now.Sub(last) > threshold {
			idle = append(idle, id)
		}
	}
	return idle
}
