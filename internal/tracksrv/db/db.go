// Package db defines the session store contract of the time tracking service
// and selects a backing implementation from configuration.
//
// Two implementations exist: a PostgreSQL store for production deployments and
// an in-memory store for single-node evaluation and tests. Both enforce the
// one-active-session-per-user invariant at the store layer, not in application
// logic, so concurrent start calls cannot race past an optimistic check.
package db

import (
	"context"
	"time"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	UserID   string
	Statuses []models.SessionStatus
	Category string
	From     time.Time // inclusive lower bound on StartTime
	To       time.Time // exclusive upper bound on StartTime
}

// Matches reports whether the session satisfies every constraint of the filter.
func (f Filter) Matches(s *models.WorkSession) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if f.Category != "" && s.Category != f.Category {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if s.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && s.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartTime.Before(f.To) {
		return false
	}
	return true
}

// SessionStore is the durable record of work sessions.
//
// CreateIfNoActive is the single point of truth for the uniqueness decision:
// it atomically checks for an existing active session of the same user and
// either inserts the new session (returning created=true) or returns the
// existing active session unchanged (created=false).
//
// UpdateSession is a compare-and-swap: the row is rewritten only if its
// current status equals expect; otherwise ErrStaleStatus is returned. This is
// the serialization point guarding racing transitions (an explicit complete
// racing the timeout sweep, for example).
type SessionStore interface {
	CreateIfNoActive(ctx context.Context, session *models.WorkSession) (bool, *models.WorkSession, apperrors.Error)
	Get(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error)
	ListByUser(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error)
	ListActive(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error)
	List(ctx context.Context, f Filter) ([]*models.WorkSession, apperrors.Error)
	UpdateSession(ctx context.Context, session *models.WorkSession, expect models.SessionStatus) apperrors.Error
	Ping(ctx context.Context) apperrors.Error
	Close()
}
