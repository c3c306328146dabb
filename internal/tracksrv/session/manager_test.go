package session

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/memory"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	Init(16)
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, opts ManagerOptions) (*Manager, *fakeClock, db.SessionStore) {
	t.Helper()
	if opts.HeartbeatTimeout == 0 {
		opts.HeartbeatTimeout = 90 * time.Second
	}
	store := memory.New()
	t.Cleanup(store.Close)

	clock := newFakeClock()
	mgr := NewManager(store, NewLivenessTracker(), opts)
	mgr.now = clock.Now
	return mgr, clock, store
}

func startRequest(userID string) *StartRequest {
	return &StartRequest{
		UserID:    userID,
		ProjectID: 7,
		TaskID:    42,
		Module:    "Auftragsverwaltung",
		Activity:  "Implementierung der Auftragsmaske",
		Trigger:   "manual",
	}
}

func TestStartAppliesDefaults(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	req := startRequest("usr-1")
	req.Module = ""
	created, session, err := mgr.Start(ctx, req)
	require.Nil(t, err)
	assert.True(t, created)
	assert.Equal(t, DefaultCategory, session.Category)
	assert.Equal(t, DefaultPriority, session.Priority)
	assert.Equal(t, req.Activity[:32], session.Module)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, clock.Now().UTC(), session.StartTime)
	assert.Nil(t, session.EndTime)
}

func TestStartValidation(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*StartRequest)
	}{
		{"missing user", func(r *StartRequest) { r.UserID = "" }},
		{"missing project", func(r *StartRequest) { r.ProjectID = 0 }},
		{"short activity", func(r *StartRequest) { r.Activity = "fix bug" }},
		{"whitespace-padded short activity", func(r *StartRequest) { r.Activity = "   abc    " }},
		{"technical activity file", func(r *StartRequest) { r.Activity = "updated SessionTimer.tsx" }},
		{"technical activity component", func(r *StartRequest) { r.Activity = "changed the component again" }},
		{"unknown category", func(r *StartRequest) { r.Category = "gardening" }},
		{"unknown priority", func(r *StartRequest) { r.Priority = "urgent" }},
		{"meta not an object", func(r *StartRequest) { r.Meta = json.RawMessage(`[1,2]`) }},
		{"meta nested value", func(r *StartRequest) { r.Meta = json.RawMessage(`{"a":{"b":1}}`) }},
		{"meta bad key", func(r *StartRequest) { r.Meta = json.RawMessage(`{"bad key!":"v"}`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := startRequest("usr-1")
			tt.mutate(req)
			_, _, err := mgr.Start(ctx, req)
			require.NotNil(t, err)
			assert.ErrorIs(t, err, ErrValidationFailed)
		})
	}
}

func TestStartAcceptsFlatMeta(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})

	req := startRequest("usr-1")
	req.Meta = json.RawMessage(`{"branch":"feature/auftrag","reviewed":true,"estimate_h":2.5}`)
	created, session, err := mgr.Start(context.Background(), req)
	require.Nil(t, err)
	assert.True(t, created)
	assert.JSONEq(t, string(req.Meta), string(session.Meta))
}

func TestStartIdempotentOnActiveSession(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	created, first, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)
	require.True(t, created)

	// A second start returns the first session untouched.
	second := startRequest("usr-1")
	second.Activity = "Eine ganz andere Beschreibung der Arbeit"
	created, got, err := mgr.Start(ctx, second)
	require.Nil(t, err)
	assert.False(t, created)
	assert.Equal(t, first.SessionID, got.SessionID)
	assert.Equal(t, first.Activity, got.Activity)

	// After completing, a new start opens a fresh session.
	_, cerr := mgr.Complete(ctx, first.SessionID, nil)
	require.Nil(t, cerr)
	created, third, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.SessionID, third.SessionID)
}

func TestStartConcurrentSingleWinner(t *testing.T) {
	mgr, _, store := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, workers)
	createdCount := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, session, err := mgr.Start(ctx, startRequest("usr-1"))
			if err != nil {
				t.Error(err)
				return
			}
			ids <- session.SessionID
			createdCount <- created
		}()
	}
	wg.Wait()
	close(ids)
	close(createdCount)

	// Everyone got the same session ID, exactly one call created it.
	var firstID uuid.UUID
	for id := range ids {
		if firstID == uuid.Nil {
			firstID = id
		}
		assert.Equal(t, firstID, id)
	}
	wins := 0
	for created := range createdCount {
		if created {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	active, err := store.ListActive(ctx, "usr-1")
	require.Nil(t, err)
	assert.Len(t, active, 1)
}

func TestHeartbeat(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	clock.Advance(1 * time.Minute)
	require.Nil(t, mgr.Heartbeat(ctx, session.SessionID))
	lastSeen, ok := mgr.liveness.LastSeen(session.SessionID)
	require.True(t, ok)
	assert.Equal(t, clock.Now().UTC(), lastSeen)

	// Heartbeat on a paused session is silently dropped.
	_, perr := mgr.Pause(ctx, session.SessionID)
	require.Nil(t, perr)
	require.Nil(t, mgr.Heartbeat(ctx, session.SessionID))
	_, ok = mgr.liveness.LastSeen(session.SessionID)
	assert.False(t, ok)

	// Likewise on a terminal session.
	_, rerr := mgr.Resume(ctx, session.SessionID)
	require.Nil(t, rerr)
	_, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)
	require.Nil(t, mgr.Heartbeat(ctx, session.SessionID))
	_, ok = mgr.liveness.LastSeen(session.SessionID)
	assert.False(t, ok)

	// Unknown session is an error.
	err = mgr.Heartbeat(ctx, uuid.New())
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPauseResumeCompleteDuration(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	clock.Advance(30 * time.Minute)
	paused, perr := mgr.Pause(ctx, session.SessionID)
	require.Nil(t, perr)
	assert.Equal(t, models.SessionStatusPaused, paused.Status)
	require.NotNil(t, paused.PauseStartedAt)

	clock.Advance(10 * time.Minute)
	resumed, rerr := mgr.Resume(ctx, session.SessionID)
	require.Nil(t, rerr)
	assert.Equal(t, models.SessionStatusActive, resumed.Status)
	assert.Equal(t, 10, resumed.PausedMinutes)
	assert.Nil(t, resumed.PauseStartedAt)

	clock.Advance(20 * time.Minute)
	completed, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)
	assert.Equal(t, models.SessionStatusCompleted, completed.Status)
	require.NotNil(t, completed.EndTime)
	// 60 minutes wall time, 10 of them paused.
	assert.Equal(t, 50, completed.DurationMinutes)
	assert.Equal(t, 10, completed.PausedMinutes)
}

func TestCompleteRoundsUpToBlock(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{RoundingMinutes: 15})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	clock.Advance(50 * time.Minute)
	completed, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)
	assert.Equal(t, 60, completed.DurationMinutes)

	// An exact block is not padded further.
	_, session2, err := mgr.Start(ctx, startRequest("usr-2"))
	require.Nil(t, err)
	clock.Advance(45 * time.Minute)
	completed2, cerr := mgr.Complete(ctx, session2.SessionID, nil)
	require.Nil(t, cerr)
	assert.Equal(t, 45, completed2.DurationMinutes)
}

func TestCompleteWhilePaused(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	clock.Advance(40 * time.Minute)
	_, perr := mgr.Pause(ctx, session.SessionID)
	require.Nil(t, perr)

	// The open pause interval counts as paused time up to completion.
	clock.Advance(20 * time.Minute)
	completed, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)
	assert.Equal(t, 40, completed.DurationMinutes)
	assert.Equal(t, 20, completed.PausedMinutes)
	assert.Nil(t, completed.PauseStartedAt)
}

func TestCompleteIdempotent(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	clock.Advance(25 * time.Minute)
	first, cerr := mgr.Complete(ctx, session.SessionID, &CompleteRequest{Lesson: "kleinere Schritte"})
	require.Nil(t, cerr)

	// A second complete does not move the end time or duration.
	clock.Advance(1 * time.Hour)
	second, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)
	assert.Equal(t, first.EndTime, second.EndTime)
	assert.Equal(t, first.DurationMinutes, second.DurationMinutes)
	assert.Equal(t, "kleinere Schritte", second.Lesson)
}

func TestCompleteStoresPostMortem(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	completed, cerr := mgr.Complete(ctx, session.SessionID, &CompleteRequest{
		IsProblem: true,
		Cause:     "fehlende Testdaten",
		Lesson:    "Testdaten vorab anlegen",
		NextStep:  "Fixture-Skript schreiben",
	})
	require.Nil(t, cerr)
	assert.True(t, completed.IsProblem)
	assert.Equal(t, "fehlende Testdaten", completed.Cause)
	assert.Equal(t, "Testdaten vorab anlegen", completed.Lesson)
	assert.Equal(t, "Fixture-Skript schreiben", completed.NextStep)
}

func TestInvalidTransitions(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	// Resume requires paused.
	_, terr := mgr.Resume(ctx, session.SessionID)
	require.NotNil(t, terr)
	assert.ErrorIs(t, terr, ErrInvalidTransition)

	_, perr := mgr.Pause(ctx, session.SessionID)
	require.Nil(t, perr)

	// Pause requires active.
	_, terr = mgr.Pause(ctx, session.SessionID)
	require.NotNil(t, terr)
	assert.ErrorIs(t, terr, ErrInvalidTransition)

	_, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)

	// Terminal sessions cannot be paused or resumed.
	_, terr = mgr.Pause(ctx, session.SessionID)
	assert.ErrorIs(t, terr, ErrInvalidTransition)
	_, terr = mgr.Resume(ctx, session.SessionID)
	assert.ErrorIs(t, terr, ErrInvalidTransition)
}

func TestAnnotate(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	isProblem := true
	cause := "Scope war unklar"

	// Active sessions cannot be annotated.
	_, aerr := mgr.Annotate(ctx, session.SessionID, &AnnotateRequest{IsProblem: &isProblem})
	require.NotNil(t, aerr)
	assert.ErrorIs(t, aerr, ErrInvalidTransition)

	_, cerr := mgr.Complete(ctx, session.SessionID, &CompleteRequest{Lesson: "alte Notiz"})
	require.Nil(t, cerr)

	// Only the given fields change.
	annotated, aerr := mgr.Annotate(ctx, session.SessionID, &AnnotateRequest{
		IsProblem: &isProblem,
		Cause:     &cause,
	})
	require.Nil(t, aerr)
	assert.True(t, annotated.IsProblem)
	assert.Equal(t, cause, annotated.Cause)
	assert.Equal(t, "alte Notiz", annotated.Lesson)
}

func TestCloseAll(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, a, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)
	_, b, err := mgr.Start(ctx, startRequest("usr-2"))
	require.Nil(t, err)
	_, c, err := mgr.Start(ctx, startRequest("usr-3"))
	require.Nil(t, err)

	clock.Advance(30 * time.Minute)
	_, perr := mgr.Pause(ctx, b.SessionID)
	require.Nil(t, perr)
	_, cerr := mgr.Complete(ctx, c.SessionID, nil)
	require.Nil(t, cerr)

	clock.Advance(30 * time.Minute)
	result, err := mgr.CloseAll(ctx, "")
	require.Nil(t, err)
	// a and b close; c was already completed.
	assert.Equal(t, 2, result.ClosedCount)
	// a: 60 minutes wall; b: 60 wall minus 30 paused.
	assert.Equal(t, 90, result.TotalDurationMinutes)

	got, gerr := mgr.Get(ctx, a.SessionID)
	require.Nil(t, gerr)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)

	// Second call finds nothing open.
	result, err = mgr.CloseAll(ctx, "")
	require.Nil(t, err)
	assert.Equal(t, 0, result.ClosedCount)
}

func TestCloseAllScopedToUser(t *testing.T) {
	mgr, clock, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, a, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)
	_, b, err := mgr.Start(ctx, startRequest("usr-2"))
	require.Nil(t, err)

	clock.Advance(15 * time.Minute)
	result, err := mgr.CloseAll(ctx, "usr-1")
	require.Nil(t, err)
	assert.Equal(t, 1, result.ClosedCount)
	assert.Equal(t, 15, result.TotalDurationMinutes)

	got, gerr := mgr.Get(ctx, a.SessionID)
	require.Nil(t, gerr)
	assert.Equal(t, models.SessionStatusCompleted, got.Status)

	other, gerr := mgr.Get(ctx, b.SessionID)
	require.Nil(t, gerr)
	assert.Equal(t, models.SessionStatusActive, other.Status)
}

func TestActiveForUser(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, gerr := mgr.ActiveForUser(ctx, "usr-1")
	require.NotNil(t, gerr)
	assert.ErrorIs(t, gerr, ErrNotFound)

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	got, gerr := mgr.ActiveForUser(ctx, "usr-1")
	require.Nil(t, gerr)
	assert.Equal(t, session.SessionID, got.SessionID)
}

func TestSeedLiveness(t *testing.T) {
	mgr, clock, store := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	// A second manager over the same store simulates a restart: its tracker
	// is empty until seeded.
	restarted := NewManager(store, NewLivenessTracker(), ManagerOptions{HeartbeatTimeout: 90 * time.Second})
	restarted.now = clock.Now

	_, ok := restarted.liveness.LastSeen(session.SessionID)
	require.False(t, ok)

	require.Nil(t, restarted.SeedLiveness(ctx))
	lastSeen, ok := restarted.liveness.LastSeen(session.SessionID)
	require.True(t, ok)
	assert.Equal(t, clock.Now().UTC(), lastSeen)
}

func TestStartDefaultModuleKeepsRuneBoundaries(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	req := startRequest("usr-1")
	req.Module = ""
	req.Activity = "Überarbeitung der Änderungsaufträge für die Auftragsabwicklung"
	_, session, err := mgr.Start(ctx, req)
	require.Nil(t, err)

	assert.Equal(t, string([]rune(req.Activity)[:32]), session.Module)
	assert.True(t, utf8.ValidString(session.Module))
}

func TestSessionLockSurvivesCompletion(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)
	before := mgr.sessionLock(session.SessionID)

	_, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)

	// A fresh mutex here would let a waiter on the old one run concurrently.
	assert.Same(t, before, mgr.sessionLock(session.SessionID))
}

func TestConcurrentAnnotatesBothApply(t *testing.T) {
	mgr, _, _ := newTestManager(t, ManagerOptions{})
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)
	_, cerr := mgr.Complete(ctx, session.SessionID, nil)
	require.Nil(t, cerr)

	cause := "Unklare Anforderung im Ticket"
	lesson := "Anforderungen vor Beginn abklären"
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, aerr := mgr.Annotate(ctx, session.SessionID, &AnnotateRequest{Cause: &cause})
		assert.Nil(t, aerr)
	}()
	go func() {
		defer wg.Done()
		<-start
		_, aerr := mgr.Annotate(ctx, session.SessionID, &AnnotateRequest{Lesson: &lesson})
		assert.Nil(t, aerr)
	}()
	close(start)
	wg.Wait()

	got, gerr := mgr.Get(ctx, session.SessionID)
	require.Nil(t, gerr)
	assert.Equal(t, cause, got.Cause)
	assert.Equal(t, lesson, got.Lesson)
}
