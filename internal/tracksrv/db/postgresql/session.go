package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/dberror"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

// pgUniqueViolation is the PostgreSQL error code raised when the partial
// unique index rejects a second active session for the same user.
const pgUniqueViolation = "23505"

const sessionColumns = `
	session_id, user_id, project_id, task_id, order_id,
	module, activity, trigger_source, category, priority, meta,
	status, start_time, end_time, duration_minutes, paused_minutes, pause_started_at,
	is_problem, cause, lesson, next_step, approved, invoiced,
	created_at, updated_at`

// CreateIfNoActive inserts the session unless the user already has an active
// one. On a unique-index conflict the existing active session is re-read and
// returned unchanged with created=false.
func (s *sessionStore) CreateIfNoActive(ctx context.Context, session *models.WorkSession) (bool, *models.WorkSession, apperrors.Error) {
	query := `
		INSERT INTO work_sessions (
			session_id, user_id, project_id, task_id, order_id,
			module, activity, trigger_source, category, priority, meta,
			status, start_time, duration_minutes, paused_minutes,
			approved, invoiced, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0, 0, FALSE, FALSE, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		session.SessionID,
		session.UserID,
		session.ProjectID,
		session.TaskID,
		session.OrderID,
		session.Module,
		session.Activity,
		session.Trigger,
		session.Category,
		session.Priority,
		nullableJSON(session.Meta),
		session.Status,
		session.StartTime,
	).Scan(&session.CreatedAt, &session.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			existing, gerr := s.activeForUser(ctx, session.UserID)
			if gerr != nil {
				return false, nil, gerr
			}
			return false, existing, nil
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert session")
		return false, nil, dberror.ErrDatabase.Err(err)
	}

	return true, session.Clone(), nil
}

// activeForUser returns the user's active session. Called after a unique
// violation, so absence means the winner completed in between; the caller
// treats that as a transient database condition and retries.
func (s *sessionStore) activeForUser(ctx context.Context, userID string) (*models.WorkSession, apperrors.Error) {
	query := fmt.Sprintf(`SELECT %s FROM work_sessions WHERE user_id = $1 AND status = 'active' LIMIT 1`, sessionColumns)
	row := s.db.QueryRowContext(ctx, query, userID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberror.ErrDatabase.Msg("active session vanished during conflict resolution")
		}
		return nil, dberror.ErrDatabase.Err(err)
	}
	return session, nil
}

// Get retrieves a session by its ID.
func (s *sessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.WorkSession, apperrors.Error) {
	query := fmt.Sprintf(`SELECT %s FROM work_sessions WHERE session_id = $1`, sessionColumns)
	row := s.db.QueryRowContext(ctx, query, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberror.ErrNotFound.Msg("session not found")
		}
		return nil, dberror.ErrDatabase.Err(err)
	}
	return session, nil
}

// ListByUser retrieves all sessions of one user, newest first.
func (s *sessionStore) ListByUser(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error) {
	query := fmt.Sprintf(`SELECT %s FROM work_sessions WHERE user_id = $1 ORDER BY created_at DESC`, sessionColumns)
	return s.querySessions(ctx, query, userID)
}

// ListActive retrieves sessions in the active state, optionally scoped to a user.
func (s *sessionStore) ListActive(ctx context.Context, userID string) ([]*models.WorkSession, apperrors.Error) {
	if userID != "" {
		query := fmt.Sprintf(`SELECT %s FROM work_sessions WHERE status = 'active' AND user_id = $1`, sessionColumns)
		return s.querySessions(ctx, query, userID)
	}
	query := fmt.Sprintf(`SELECT %s FROM work_sessions WHERE status = 'active'`, sessionColumns)
	return s.querySessions(ctx, query)
}

// List retrieves sessions matching the filter, newest first.
func (s *sessionStore) List(ctx context.Context, f db.Filter) ([]*models.WorkSession, apperrors.Error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.Category != "" {
		conds = append(conds, "category = "+arg(f.Category))
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = arg(string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !f.From.IsZero() {
		conds = append(conds, "start_time >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "start_time < "+arg(f.To))
	}

	query := fmt.Sprintf(`SELECT %s FROM work_sessions`, sessionColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	return s.querySessions(ctx, query, args...)
}

// UpdateSession rewrites the mutable fields of a session, guarded by a
// compare-and-swap on the current status.
func (s *sessionStore) UpdateSession(ctx context.Context, session *models.WorkSession, expect models.SessionStatus) apperrors.Error {
	query := `
		UPDATE work_sessions
		SET
			status = $3,
			end_time = $4,
			duration_minutes = $5,
			paused_minutes = $6,
			pause_started_at = $7,
			is_problem = $8,
			cause = $9,
			lesson = $10,
			next_step = $11,
			approved = $12,
			invoiced = $13,
			updated_at = NOW()
		WHERE session_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query,
		session.SessionID,
		expect,
		session.Status,
		session.EndTime,
		session.DurationMinutes,
		session.PausedMinutes,
		session.PauseStartedAt,
		session.IsProblem,
		session.Cause,
		session.Lesson,
		session.NextStep,
		session.Approved,
		session.Invoiced,
	)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to update session")
		return dberror.ErrDatabase.Err(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if rowsAffected == 0 {
		// Either the row is gone or the status moved under us.
		if _, gerr := s.Get(ctx, session.SessionID); gerr != nil {
			return gerr
		}
		return dberror.ErrStaleStatus
	}

	return nil
}

func (s *sessionStore) querySessions(ctx context.Context, query string, args ...any) ([]*models.WorkSession, apperrors.Error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var result []*models.WorkSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan session row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	return result, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.WorkSession, error) {
	var session models.WorkSession
	var orderID sql.NullInt64
	var endTime, pauseStartedAt sql.NullTime
	var meta []byte

	err := row.Scan(
		&session.SessionID,
		&session.UserID,
		&session.ProjectID,
		&session.TaskID,
		&orderID,
		&session.Module,
		&session.Activity,
		&session.Trigger,
		&session.Category,
		&session.Priority,
		&meta,
		&session.Status,
		&session.StartTime,
		&endTime,
		&session.DurationMinutes,
		&session.PausedMinutes,
		&pauseStartedAt,
		&session.IsProblem,
		&session.Cause,
		&session.Lesson,
		&session.NextStep,
		&session.Approved,
		&session.Invoiced,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if orderID.Valid {
		session.OrderID = &orderID.Int64
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	if pauseStartedAt.Valid {
		session.PauseStartedAt = &pauseStartedAt.Time
	}
	if len(meta) > 0 {
		session.Meta = meta
	}

	return &session, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
