package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
)

func TestLivenessTracker(t *testing.T) {
	tracker := NewLivenessTracker()
	id := uuid.New()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, ok := tracker.LastSeen(id)
	assert.False(t, ok)

	tracker.Touch(id, t0)
	got, ok := tracker.LastSeen(id)
	assert.True(t, ok)
	assert.Equal(t, t0, got)

	// Touch overwrites, Seed does not.
	tracker.Touch(id, t0.Add(time.Minute))
	tracker.Seed(id, t0)
	got, _ = tracker.LastSeen(id)
	assert.Equal(t, t0.Add(time.Minute), got)

	other := uuid.New()
	tracker.Seed(other, t0)
	got, ok = tracker.LastSeen(other)
	assert.True(t, ok)
	assert.Equal(t, t0, got)

	tracker.Remove(id)
	_, ok = tracker.LastSeen(id)
	assert.False(t, ok)
}

func TestLivenessSnapshotIsIsolated(t *testing.T) {
	tracker := NewLivenessTracker()
	id := uuid.New()
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tracker.Touch(id, t0)

	snapshot := tracker.Snapshot()
	assert.Len(t, snapshot, 1)

	// Mutating the snapshot leaves the tracker untouched.
	delete(snapshot, id)
	_, ok := tracker.LastSeen(id)
	assert.True(t, ok)
}
