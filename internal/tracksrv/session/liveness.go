package session

import (
	"sync"
	"time"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
)

// LivenessTracker records the last heartbeat seen for each open session. It is
// an in-process cache over the store: losing it (process restart) costs at
// most one timeout window of accuracy, never correctness.
type LivenessTracker struct {
	mu       sync.Mutex
	lastSeen map[uuid.UUID]time.Time
}

// NewLivenessTracker creates an empty tracker.
func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

// Touch records a liveness signal for the session at the given instant.
func (t *LivenessTracker) Touch(sessionID uuid.UUID, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[sessionID] = at
}

// Remove forgets the session. Called when a session leaves the set of states
// subject to timeout.
func (t *LivenessTracker) Remove(sessionID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSeen, sessionID)
}

// LastSeen returns the recorded instant for the session, if any.
func (t *LivenessTracker) LastSeen(sessionID uuid.UUID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.lastSeen[sessionID]
	return at, ok
}

// Snapshot returns a copy of the tracked map for the sweep to iterate without
// holding the lock.
func (t *LivenessTracker) Snapshot() map[uuid.UUID]time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make(map[uuid.UUID]time.Time, len(t.lastSeen))
	for id, at := range t.lastSeen {
		snapshot[id] = at
	}
	return snapshot
}

// Seed records a liveness entry only if none exists yet. Used on startup to
// adopt sessions that were open before a restart without overwriting signals
// that already arrived.
func (t *LivenessTracker) Seed(sessionID uuid.UUID, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.lastSeen[sessionID]; !ok {
		t.lastSeen[sessionID] = at
	}
}
