// Package models defines the persisted row types of the time tracking service.
package models

import (
	"encoding/json"
	"time"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
)

// SessionStatus enumerates the lifecycle states of a work session.
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusPaused      SessionStatus = "paused"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusInterrupted SessionStatus = "interrupted"
)

// IsTerminal reports whether the status is a terminal state. Terminal sessions
// keep their end time forever; no lifecycle transition leaves a terminal state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusInterrupted
}

// IsValidSessionStatus reports whether the given string is a known session status.
func IsValidSessionStatus(s string) bool {
	switch SessionStatus(s) {
	case SessionStatusActive, SessionStatusPaused, SessionStatusCompleted, SessionStatusInterrupted:
		return true
	}
	return false
}

// WorkSession is one continuous (possibly paused) unit of tracked work time,
// owned by one user. At most one session per user may be in the active state.
type WorkSession struct {
	SessionID uuid.UUID `db:"session_id"`
	UserID    string    `db:"user_id"`
	ProjectID int64     `db:"project_id"`
	TaskID    int64     `db:"task_id"`
	OrderID   *int64    `db:"order_id"`

	Module   string          `db:"module"`
	Activity string          `db:"activity"`
	Trigger  string          `db:"trigger_source"`
	Category string          `db:"category"`
	Priority string          `db:"priority"`
	Meta     json.RawMessage `db:"meta"`

	Status          SessionStatus `db:"status"`
	StartTime       time.Time     `db:"start_time"`
	EndTime         *time.Time    `db:"end_time"`
	DurationMinutes int           `db:"duration_minutes"`
	PausedMinutes   int           `db:"paused_minutes"`
	PauseStartedAt  *time.Time    `db:"pause_started_at"`

	IsProblem bool   `db:"is_problem"`
	Cause     string `db:"cause"`
	Lesson    string `db:"lesson"`
	NextStep  string `db:"next_step"`

	Approved bool `db:"approved"`
	Invoiced bool `db:"invoiced"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Clone returns a deep copy of the session. Store implementations hand out
// clones so callers cannot mutate persisted state behind the store's back.
func (s *WorkSession) Clone() *WorkSession {
	cp := *s
	if s.OrderID != nil {
		v := *s.OrderID
		cp.OrderID = &v
	}
	if s.EndTime != nil {
		v := *s.EndTime
		cp.EndTime = &v
	}
	if s.PauseStartedAt != nil {
		v := *s.PauseStartedAt
		cp.PauseStartedAt = &v
	}
	if s.Meta != nil {
		cp.Meta = append(json.RawMessage(nil), s.Meta...)
	}
	return &cp
}
