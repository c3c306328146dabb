// Package session implements the work session lifecycle: start, heartbeat,
// pause, resume, complete, close-all, post-mortem annotation, the timeout
// sweep, stats aggregation, and the billing gate.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/dberror"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

const (
	DefaultCategory = "development"
	DefaultPriority = "medium"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// HeartbeatTimeout is how long an active session may go without a
	// liveness signal before the sweep interrupts it.
	HeartbeatTimeout time.Duration

	// RoundingMinutes rounds completed durations up to the next block for
	// billing. Zero disables rounding. Interrupted sessions are never rounded.
	RoundingMinutes int
}

// Manager owns the session lifecycle. All state transitions go through it;
// per-session mutations are serialized by an in-process lock table on top of
// the store's compare-and-swap.
type Manager struct {
	store    db.SessionStore
	liveness *LivenessTracker
	opts     ManagerOptions

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a lifecycle manager over the given store.
func NewManager(store db.SessionStore, liveness *LivenessTracker, opts ManagerOptions) *Manager {
	return &Manager{
		store:    store,
		liveness: liveness,
		opts:     opts,
		locks:    make(map[uuid.UUID]*sync.Mutex),
		now:      time.Now,
	}
}

// sessionLock returns the mutex serializing mutations of one session. Locks
// are never removed: a goroutine parked on a deleted mutex would race a later
// caller holding a fresh one, and the table is bounded by the sessions a
// process touches.
func (m *Manager) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	mu, ok := m.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[sessionID] = mu
	}
	return mu
}

// withRetry runs a store mutation, retrying transient database failures.
// Exhaustion surfaces as ErrStoreUnavailable.
func withRetry(ctx context.Context, op func() apperrors.Error) apperrors.Error {
	var opErr apperrors.Error
	err := retry.Do(func() error {
		opErr = op()
		if opErr == nil {
			return nil
		}
		if errors.Is(opErr, dberror.ErrDatabase) {
			return opErr
		}
		return retry.Unrecoverable(opErr)
	}, retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n).Msg("retrying store operation")
		}))
	if err == nil {
		return nil
	}
	if opErr != nil && errors.Is(opErr, dberror.ErrDatabase) {
		return ErrStoreUnavailable.Err(opErr)
	}
	return opErr
}

// Start opens a session for the user, or returns the user's existing active
// session unchanged. The returned flag reports whether a new session was
// created.
func (m *Manager) Start(ctx context.Context, req *StartRequest) (bool, *models.WorkSession, apperrors.Error) {
	req.Activity = strings.TrimSpace(req.Activity)
	req.Module = strings.TrimSpace(req.Module)
	if req.Module == "" {
		req.Module = defaultModule(req.Activity)
	}
	if req.Category == "" {
		req.Category = DefaultCategory
	}
	if req.Priority == "" {
		req.Priority = DefaultPriority
	}
	if err := ValidateStartRequest(req); err != nil {
		return false, nil, asAppError(err)
	}

	now := m.now().UTC()
	session := &models.WorkSession{
		SessionID: uuid.New(),
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		TaskID:    req.TaskID,
		OrderID:   req.OrderID,
		Module:    req.Module,
		Activity:  req.Activity,
		Trigger:   req.Trigger,
		Category:  req.Category,
		Priority:  req.Priority,
		Meta:      req.Meta,
		Status:    models.SessionStatusActive,
		StartTime: now,
	}

	var created bool
	var result *models.WorkSession
	err := withRetry(ctx, func() apperrors.Error {
		var serr apperrors.Error
		created, result, serr = m.store.CreateIfNoActive(ctx, session)
		return serr
	})
	if err != nil {
		return false, nil, err
	}

	if created {
		m.liveness.Touch(result.SessionID, now)
		log.Ctx(ctx).Info().
			Str("session_id", result.SessionID.String()).
			Str("user_id", result.UserID).
			Msg("session started")
	} else {
		log.Ctx(ctx).Info().
			Str("session_id", result.SessionID.String()).
			Str("user_id", result.UserID).
			Msg("start returned existing active session")
	}
	return created, result, nil
}

// Heartbeat refreshes the liveness signal of an active session. Signals for
// paused or terminal sessions are dropped without error: a heartbeat in
// flight while the session left the active state is an ordinary race, not a
// client fault.
func (m *Manager) Heartbeat(ctx context.Context, sessionID uuid.UUID) apperrors.Error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionStatusActive {
		return nil
	}
	m.liveness.Touch(sessionID, m.now().UTC())
	return nil
}

// Pause suspends an active session. The pause start instant is recorded so
// resume can account the paused interval.
func (m *Manager) Pause(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusActive {
		return nil, ErrInvalidTransition.Msg("only active sessions can be paused")
	}

	now := m.now().UTC()
	session.Status = models.SessionStatusPaused
	session.PauseStartedAt = &now

	if err := m.casUpdate(ctx, session, models.SessionStatusActive); err != nil {
		return nil, err
	}
	m.liveness.Remove(sessionID)
	log.Ctx(ctx).Info().Str("session_id", sessionID.String()).Msg("session paused")
	return session, nil
}

// Resume reactivates a paused session, folding the elapsed pause interval
// into PausedMinutes.
func (m *Manager) Resume(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusPaused {
		return nil, ErrInvalidTransition.Msg("only paused sessions can be resumed")
	}

	now := m.now().UTC()
	if session.PauseStartedAt != nil {
		session.PausedMinutes += minutesBetween(*session.PauseStartedAt, now)
	}
	session.Status = models.SessionStatusActive
	session.PauseStartedAt = nil

	if err := m.casUpdate(ctx, session, models.SessionStatusPaused); err != nil {
		return nil, err
	}
	m.liveness.Touch(sessionID, now)
	log.Ctx(ctx).Info().Str("session_id", sessionID.String()).Msg("session resumed")
	return session, nil
}

// Complete closes an active or paused session, computing its billable
// duration. Completing an already terminal session returns the stored record
// unchanged.
func (m *Manager) Complete(ctx context.Context, sessionID uuid.UUID, req *CompleteRequest) (*models.WorkSession, apperrors.Error) {
	if req != nil {
		if err := ValidateCompleteRequest(req); err != nil {
			return nil, asAppError(err)
		}
	}

	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	expect := session.Status
	now := m.now().UTC()
	m.finalizeSession(session, now, models.SessionStatusCompleted)
	if req != nil {
		session.IsProblem = req.IsProblem
		session.Cause = req.Cause
		session.Lesson = req.Lesson
		session.NextStep = req.NextStep
	}

	if err := m.casUpdate(ctx, session, expect); err != nil {
		return nil, err
	}
	m.liveness.Remove(sessionID)
	log.Ctx(ctx).Info().
		Str("session_id", sessionID.String()).
		Int("duration_minutes", session.DurationMinutes).
		Msg("session completed")
	return session, nil
}

// CloseAll completes every active and paused session, scoped to one user when
// userID is non-empty. Sessions that fail to close are logged and skipped.
func (m *Manager) CloseAll(ctx context.Context, userID string) (*CloseAllResult, apperrors.Error) {
	open, err := m.list(ctx, db.Filter{
		UserID:   userID,
		Statuses: []models.SessionStatus{models.SessionStatusActive, models.SessionStatusPaused},
	})
	if err != nil {
		return nil, err
	}

	result := &CloseAllResult{}
	for _, s := range open {
		closed, cerr := m.Complete(ctx, s.SessionID, nil)
		if cerr != nil {
			log.Ctx(ctx).Error().Err(cerr).
				Str("session_id", s.SessionID.String()).
				Msg("failed to close session")
			continue
		}
		result.ClosedCount++
		result.TotalDurationMinutes += closed.DurationMinutes
	}
	return result, nil
}

// Annotate amends the post-mortem fields of a terminal session. Invoiced
// sessions are closed books and reject the amendment.
func (m *Manager) Annotate(ctx context.Context, sessionID uuid.UUID, req *AnnotateRequest) (*models.WorkSession, apperrors.Error) {
	if err := ValidateAnnotateRequest(req); err != nil {
		return nil, asAppError(err)
	}

	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.IsTerminal() {
		return nil, ErrInvalidTransition.Msg("only completed or interrupted sessions can be annotated")
	}
	if session.Invoiced {
		return nil, ErrBillingViolation.Msg("invoiced sessions cannot be modified")
	}

	if req.IsProblem != nil {
		session.IsProblem = *req.IsProblem
	}
	if req.Cause != nil {
		session.Cause = *req.Cause
	}
	if req.Lesson != nil {
		session.Lesson = *req.Lesson
	}
	if req.NextStep != nil {
		session.NextStep = *req.NextStep
	}

	if err := m.casUpdate(ctx, session, session.Status); err != nil {
		return nil, err
	}
	return session, nil
}

// Get retrieves one session.
func (m *Manager) Get(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	session, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, ErrNotFound.Msg(sessionID.String())
		}
		if errors.Is(err, dberror.ErrDatabase) {
			return nil, ErrStoreUnavailable.Err(err)
		}
		return nil, err
	}
	return session, nil
}

// ListByUser retrieves all sessions of the user, newest first.
func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error) {
	return m.list(ctx, db.Filter{UserID: userID})
}

// List retrieves sessions matching the filter.
func (m *Manager) List(ctx context.Context, f db.Filter) ([]*models.WorkSession, apperrors.Error) {
	return m.list(ctx, f)
}

// ActiveForUser returns the user's active session, or NotFound.
func (m *Manager) ActiveForUser(ctx context.Context, userID string) (*models.WorkSession, apperrors.Error) {
	sessions, err := m.store.ListActive(ctx, userID)
	if err != nil {
		return nil, ErrStoreUnavailable.Err(err)
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound.Msg("no active session for user " + userID)
	}
	return sessions[0], nil
}

// SeedLiveness adopts sessions that were active before a restart. Each gets a
// fresh full timeout window rather than being interrupted immediately.
func (m *Manager) SeedLiveness(ctx context.Context) apperrors.Error {
	active, err := m.store.ListActive(ctx, "")
	if err != nil {
		return ErrStoreUnavailable.Err(err)
	}
	now := m.now().UTC()
	for _, s := range active {
		m.liveness.Seed(s.SessionID, now)
	}
	log.Ctx(ctx).Info().Int("count", len(active)).Msg("seeded liveness for active sessions")
	return nil
}

// SweepExpired interrupts every active session whose last liveness signal is
// older than the heartbeat timeout. The end time is the instant the session
// was last known alive plus the timeout, not the sweep time. Returns how many
// sessions were interrupted.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := m.now().UTC()
	deadline := now.Add(-m.opts.HeartbeatTimeout)
	swept := 0

	for sessionID, lastSeen := range m.liveness.Snapshot() {
		if lastSeen.After(deadline) {
			continue
		}
		if m.interruptExpired(ctx, sessionID, lastSeen) {
			swept++
		}
	}
	return swept
}

// interruptExpired transitions one expired session to interrupted. A CAS
// conflict means the session moved on under us (completed, paused); it is
// dropped from liveness and not counted.
func (m *Manager) interruptExpired(ctx context.Context, sessionID uuid.UUID, lastSeen time.Time) bool {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.liveness.Remove(sessionID)
		} else {
			log.Ctx(ctx).Error().Err(err).
				Str("session_id", sessionID.String()).
				Msg("sweep failed to load session")
		}
		return false
	}
	if session.Status != models.SessionStatusActive {
		m.liveness.Remove(sessionID)
		return false
	}

	endTime := lastSeen.Add(m.opts.HeartbeatTimeout)
	session.Status = models.SessionStatusInterrupted
	session.EndTime = &endTime
	session.DurationMinutes = billableMinutes(session, endTime)

	if uerr := m.casUpdate(ctx, session, models.SessionStatusActive); uerr != nil {
		if errors.Is(uerr, dberror.ErrStaleStatus) {
			m.liveness.Remove(sessionID)
			return false
		}
		log.Ctx(ctx).Error().Err(uerr).
			Str("session_id", sessionID.String()).
			Msg("sweep failed to interrupt session")
		return false
	}

	m.liveness.Remove(sessionID)
	log.Ctx(ctx).Warn().
		Str("session_id", sessionID.String()).
		Str("user_id", session.UserID).
		Time("last_seen", lastSeen).
		Msg("session interrupted after heartbeat timeout")
	return true
}

func (m *Manager) list(ctx context.Context, f db.Filter) ([]*models.WorkSession, apperrors.Error) {
	sessions, err := m.store.List(ctx, f)
	if err != nil {
		return nil, ErrStoreUnavailable.Err(err)
	}
	return sessions, nil
}

func (m *Manager) casUpdate(ctx context.Context, session *models.WorkSession, expect models.SessionStatus) apperrors.Error {
	err := withRetry(ctx, func() apperrors.Error {
		return m.store.UpdateSession(ctx, session, expect)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, dberror.ErrStaleStatus) {
		return ErrInvalidTransition.Msg("session state changed concurrently")
	}
	if errors.Is(err, dberror.ErrNotFound) {
		return ErrNotFound.Msg(session.SessionID.String())
	}
	return err
}

// finalizeSession moves a session into a terminal state at the given instant,
// computing its billable duration. Completed durations are rounded up to the
// configured block; interrupted ones never are.
func (m *Manager) finalizeSession(session *models.WorkSession, endTime time.Time, status models.SessionStatus) {
	// A session completed while paused: close the open pause interval first.
	if session.Status == models.SessionStatusPaused && session.PauseStartedAt != nil {
		session.PausedMinutes += minutesBetween(*session.PauseStartedAt, endTime)
		session.PauseStartedAt = nil
	}

	session.Status = status
	session.EndTime = &endTime
	session.DurationMinutes = billableMinutes(session, endTime)
	if status == models.SessionStatusCompleted && m.opts.RoundingMinutes > 0 {
		session.DurationMinutes = roundUpMinutes(session.DurationMinutes, m.opts.RoundingMinutes)
	}
}

// billableMinutes is wall time minus accumulated paused time. Paused time is
// not billable.
func billableMinutes(session *models.WorkSession, endTime time.Time) int {
	minutes := minutesBetween(session.StartTime, endTime) - session.PausedMinutes
	if minutes < 0 {
		minutes = 0
	}
	return minutes
}

func minutesBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

// roundUpMinutes rounds minutes up to the next multiple of block.
func roundUpMinutes(minutes, block int) int {
	if minutes == 0 {
		return 0
	}
	if rem := minutes % block; rem != 0 {
		return minutes + block - rem
	}
	return minutes
}

// defaultModule derives a module name from the activity when none was given.
// The cut is rune-based so umlauts at the boundary stay intact.
func defaultModule(activity string) string {
	const maxLen = 32
	if utf8.RuneCountInString(activity) <= maxLen {
		return activity
	}
	return string([]rune(activity)[:maxLen])
}

// asAppError normalizes validation errors to the apperrors chain.
func asAppError(err error) apperrors.Error {
	if appErr, ok := err.(apperrors.Error); ok {
		return appErr
	}
	return ErrValidationFailed.Err(err)
}
