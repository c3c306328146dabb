// Package memory provides an in-memory session store for single-node
// deployments and tests. It enforces the same contract as the PostgreSQL
// store, including the one-active-session-per-user invariant and
// compare-and-swap updates.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/dberror"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

type sessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.WorkSession
}

// New creates an empty in-memory session store.
func New() db.SessionStore {
	return &sessionStore{
		sessions: make(map[uuid.UUID]*models.WorkSession),
	}
}

func (s *sessionStore) CreateIfNoActive(ctx context.Context, session *models.WorkSession) (bool, *models.WorkSession, apperrors.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.UserID == session.UserID && existing.Status == models.SessionStatusActive {
			return false, existing.Clone(), nil
		}
	}

	if _, ok := s.sessions[session.SessionID]; ok {
		return false, nil, dberror.ErrAlreadyExists.Msg("session id already exists")
	}

	now := time.Now().UTC()
	stored := session.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.sessions[stored.SessionID] = stored

	session.CreatedAt = now
	session.UpdatedAt = now
	return true, stored.Clone(), nil
}

func (s *sessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, dberror.ErrNotFound.Msg("session not found")
	}
	return session.Clone(), nil
}

func (s *sessionStore) ListByUser(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error) {
	return s.List(ctx, db.Filter{UserID: userID})
}

func (s *sessionStore) ListActive(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error) {
	return s.List(ctx, db.Filter{
		UserID:   userID,
		Statuses: []models.SessionStatus{models.SessionStatusActive},
	})
}

func (s *sessionStore) List(ctx context.Context, f db.Filter) ([]*models.WorkSession, apperrors.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.WorkSession
	for _, session := range s.sessions {
		if f.Matches(session) {
			result = append(result, session.Clone())
		}
	}

	// Newest first, matching the SQL store's ordering.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *sessionStore) UpdateSession(ctx context.Context, session *models.WorkSession, expect models.SessionStatus) apperrors.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.SessionID]
	if !ok {
		return dberror.ErrNotFound.Msg("session not found")
	}
	if current.Status != expect {
		return dberror.ErrStaleStatus
	}

	stored := session.Clone()
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.sessions[stored.SessionID] = stored
	return nil
}

func (s *sessionStore) Ping(ctx context.Context) apperrors.Error {
	return nil
}

func (s *sessionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[uuid.UUID]*models.WorkSession)
}
