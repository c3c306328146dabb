package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/dberror"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

// flakyStore fails the first n UpdateSession calls with a transient database
// error, then delegates to the wrapped store.
type flakyStore struct {
	db.SessionStore

	mu      sync.Mutex
	fail    int
	updates int
}

func (s *flakyStore) UpdateSession(ctx context.Context, session *models.WorkSession, expect models.SessionStatus) apperrors.Error {
	s.mu.Lock()
	s.updates++
	n := s.updates
	s.mu.Unlock()
	if n <= s.fail {
		return dberror.ErrDatabase.Msg("connection reset by peer")
	}
	return s.SessionStore.UpdateSession(ctx, session, expect)
}

func (s *flakyStore) updateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func newFlakyManager(t *testing.T, fail int) (*Manager, *flakyStore) {
	t.Helper()
	mgr, clock, store := newTestManager(t, ManagerOptions{})
	flaky := &flakyStore{SessionStore: store, fail: fail}
	retried := NewManager(flaky, NewLivenessTracker(), mgr.opts)
	retried.now = clock.Now
	return retried, flaky
}

func TestRetryRecoversFromTransientStoreErrors(t *testing.T) {
	mgr, flaky := newFlakyManager(t, 2)
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	paused, perr := mgr.Pause(ctx, session.SessionID)
	require.Nil(t, perr)
	assert.Equal(t, models.SessionStatusPaused, paused.Status)
	assert.Equal(t, 3, flaky.updateCalls())
}

func TestRetryExhaustionYieldsStoreUnavailable(t *testing.T) {
	mgr, flaky := newFlakyManager(t, 100)
	ctx := context.Background()

	_, session, err := mgr.Start(ctx, startRequest("usr-1"))
	require.Nil(t, err)

	_, perr := mgr.Pause(ctx, session.SessionID)
	require.NotNil(t, perr)
	assert.ErrorIs(t, perr, ErrStoreUnavailable)
	assert.Equal(t, 3, flaky.updateCalls())

	// The session is untouched once retries give up.
	got, gerr := mgr.Get(ctx, session.SessionID)
	require.Nil(t, gerr)
	assert.Equal(t, models.SessionStatusActive, got.Status)
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func() apperrors.Error {
		calls++
		return dberror.ErrInvalidInput.Msg("bad row")
	})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, dberror.ErrInvalidInput)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan apperrors.Error, 1)
	go func() {
		done <- withRetry(ctx, func() apperrors.Error {
			calls++
			if calls == 1 {
				cancel()
			}
			return dberror.ErrDatabase.Msg("connection reset by peer")
		})
	}()

	select {
	case err := <-done:
		require.NotNil(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not stop after context cancellation")
	}
	assert.LessOrEqual(t, calls, 2)
}
