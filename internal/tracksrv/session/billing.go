package session

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/dberror"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

// BillingGate guards the approved and invoiced flags. Both are monotonic:
// once set they never clear, and an invoiced session rejects every further
// mutation. Flag writes take the manager's per-session locks so a concurrent
// annotate cannot interleave its read-modify-write with an invoicing run.
type BillingGate struct {
	store db.SessionStore
	mgr   *Manager
}

// NewBillingGate creates a billing gate over the store, sharing the manager's
// session lock table.
func NewBillingGate(store db.SessionStore, mgr *Manager) *BillingGate {
	return &BillingGate{store: store, mgr: mgr}
}

// Approve marks a completed session as approved for invoicing. Approving an
// already approved session is a no-op. Only completed sessions are eligible:
// interrupted work is not billable.
func (g *BillingGate) Approve(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	mu := g.mgr.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := g.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, ErrBillingViolation.Msg("only completed sessions can be approved")
	}
	if session.Approved {
		return session, nil
	}

	session.Approved = true
	if err := g.update(ctx, session); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("session_id", sessionID.String()).Msg("session approved for invoicing")
	return session, nil
}

// MarkInvoiced flips the invoiced flag on a batch of approved sessions. The
// whole batch is checked first; any unapproved or already invoiced session
// fails the call before any flag is written.
func (g *BillingGate) MarkInvoiced(ctx context.Context, sessionIDs []uuid.UUID) ([]*models.WorkSession, apperrors.Error) {
	if len(sessionIDs) == 0 {
		return nil, ErrValidationFailed.Msg("no session ids given")
	}
	ids := dedupeIDs(sessionIDs)

	// Lock the whole batch in a fixed order so overlapping invoicing runs
	// cannot deadlock, and hold the locks across check and write.
	locked := make([]uuid.UUID, len(ids))
	copy(locked, ids)
	sort.Slice(locked, func(i, j int) bool { return locked[i].String() < locked[j].String() })
	for _, id := range locked {
		mu := g.mgr.sessionLock(id)
		mu.Lock()
		defer mu.Unlock()
	}

	sessions := make([]*models.WorkSession, 0, len(ids))
	for _, id := range ids {
		session, err := g.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !session.Approved {
			return nil, ErrBillingViolation.Msg("session " + id.String() + " is not approved")
		}
		if session.Invoiced {
			return nil, ErrBillingViolation.Msg("session " + id.String() + " is already invoiced")
		}
		sessions = append(sessions, session)
	}

	for _, session := range sessions {
		session.Invoiced = true
		if err := g.update(ctx, session); err != nil {
			return nil, err
		}
	}

	log.Ctx(ctx).Info().Int("count", len(sessions)).Msg("sessions marked invoiced")
	return sessions, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (g *BillingGate) get(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	session, err := g.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, ErrNotFound.Msg(sessionID.String())
		}
		return nil, ErrStoreUnavailable.Err(err)
	}
	return session, nil
}

func (g *BillingGate) update(ctx context.Context, session *models.WorkSession) apperrors.Error {
	err := withRetry(ctx, func() apperrors.Error {
		return g.store.UpdateSession(ctx, session, session.Status)
	})
	if err != nil {
		if errors.Is(err, dberror.ErrStaleStatus) {
			return ErrInvalidTransition.Msg("session state changed concurrently")
		}
		return err
	}
	return nil
}
