// Package postgresql implements the session store on PostgreSQL using the
// pgx stdlib driver. The one-active-session-per-user invariant is enforced by
// a partial unique index, so two concurrent start calls for the same user
// serialize inside the database rather than in application code.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/dberror"
)

// schemaDDL creates the sessions table and the partial unique index backing
// the start uniqueness invariant. Idempotent; applied at startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS work_sessions (
	session_id        UUID PRIMARY KEY,
	user_id           TEXT NOT NULL,
	project_id        BIGINT NOT NULL,
	task_id           BIGINT NOT NULL,
	order_id          BIGINT,
	module            TEXT NOT NULL DEFAULT '',
	activity          TEXT NOT NULL,
	trigger_source    TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT 'development',
	priority          TEXT NOT NULL DEFAULT 'medium',
	meta              JSONB,
	status            TEXT NOT NULL,
	start_time        TIMESTAMPTZ NOT NULL,
	end_time          TIMESTAMPTZ,
	duration_minutes  INTEGER NOT NULL DEFAULT 0,
	paused_minutes    INTEGER NOT NULL DEFAULT 0,
	pause_started_at  TIMESTAMPTZ,
	is_problem        BOOLEAN NOT NULL DEFAULT FALSE,
	cause             TEXT NOT NULL DEFAULT '',
	lesson            TEXT NOT NULL DEFAULT '',
	next_step         TEXT NOT NULL DEFAULT '',
	approved          BOOLEAN NOT NULL DEFAULT FALSE,
	invoiced          BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS work_sessions_one_active_per_user
	ON work_sessions (user_id) WHERE status = 'active';

CREATE INDEX IF NOT EXISTS work_sessions_user_idx ON work_sessions (user_id);
CREATE INDEX IF NOT EXISTS work_sessions_status_idx ON work_sessions (status);
`

// sessionStore implements db.SessionStore over a PostgreSQL connection pool.
type sessionStore struct {
	db *sql.DB
}

// New opens a PostgreSQL connection pool for the given DSN, applies
// conservative session timeouts, and ensures the schema exists.
func New(dsn string) (*sessionStore, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Error().Err(err).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sessionParams := map[string]string{
		"lock_timeout":      "5s",
		"statement_timeout": "5s",
	}
	for param, value := range sessionParams {
		query := fmt.Sprintf("SET %s = %s", pq.QuoteIdentifier(param), pq.QuoteLiteral(value))
		if _, err := sqlDB.Exec(query); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to set %s: %w", param, err)
		}
	}

	if _, err := sqlDB.Exec(schemaDDL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &sessionStore{db: sqlDB}, nil
}

// Ping verifies the pool can reach the database.
func (s *sessionStore) Ping(ctx context.Context) apperrors.Error {
	if err := s.db.PingContext(ctx); err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// Close releases the connection pool.
func (s *sessionStore) Close() {
	s.db.Close()
}
