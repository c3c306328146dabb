package session

import (
	"encoding/json"
	"time"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

// StartRequest carries everything needed to open a work session.
type StartRequest struct {
	UserID    string `json:"userId" validate:"required,max=64"`
	ProjectID int64  `json:"projectId" validate:"required,gt=0"`
	TaskID    int64  `json:"taskId" validate:"required,gt=0"`
	OrderID   *int64 `json:"orderId,omitempty" validate:"omitempty,gt=0"`

	Module   string `json:"module" validate:"required,max=128"`
	Activity string `json:"activity" validate:"required,min=8,max=180"`
	Trigger  string `json:"trigger,omitempty" validate:"omitempty,max=128"`
	Category string `json:"category,omitempty" validate:"omitempty,oneof=development support meeting research documentation maintenance"`
	Priority string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`

	Meta json.RawMessage `json:"meta,omitempty"`
}

// CompleteRequest closes a session with optional post-mortem data.
type CompleteRequest struct {
	IsProblem bool   `json:"isProblem,omitempty"`
	Cause     string `json:"cause,omitempty" validate:"omitempty,max=500"`
	Lesson    string `json:"lesson,omitempty" validate:"omitempty,max=500"`
	NextStep  string `json:"nextStep,omitempty" validate:"omitempty,max=500"`
}

// AnnotateRequest amends the post-mortem fields of a completed session.
// Pointer fields distinguish "leave unchanged" from "set to empty".
type AnnotateRequest struct {
	IsProblem *bool   `json:"isProblem,omitempty"`
	Cause     *string `json:"cause,omitempty" validate:"omitempty,max=500"`
	Lesson    *string `json:"lesson,omitempty" validate:"omitempty,max=500"`
	NextStep  *string `json:"nextStep,omitempty" validate:"omitempty,max=500"`
}

// CloseAllResult summarizes a bulk close of a user's open sessions.
type CloseAllResult struct {
	ClosedCount          int `json:"closedCount"`
	TotalDurationMinutes int `json:"totalDurationMinutes"`
}

// SessionInfo is the wire representation of a work session.
type SessionInfo struct {
	SessionID uuid.UUID `json:"sessionId"`
	UserID    string    `json:"userId"`
	ProjectID int64     `json:"projectId"`
	TaskID    int64     `json:"taskId"`
	OrderID   *int64    `json:"orderId,omitempty"`

	Module   string          `json:"module"`
	Activity string          `json:"activity"`
	Trigger  string          `json:"trigger,omitempty"`
	Category string          `json:"category"`
	Priority string          `json:"priority"`
	Meta     json.RawMessage `json:"meta,omitempty"`

	Status          string     `json:"status"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	PausedMinutes   int        `json:"pausedMinutes"`

	IsProblem bool   `json:"isProblem"`
	Cause     string `json:"cause,omitempty"`
	Lesson    string `json:"lesson,omitempty"`
	NextStep  string `json:"nextStep,omitempty"`

	Approved bool `json:"approved"`
	Invoiced bool `json:"invoiced"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StartResult is the response of a start call. Created reports whether a new
// session was opened or an existing active one was returned.
type StartResult struct {
	Created bool         `json:"created"`
	Session *SessionInfo `json:"session"`
}

// Stats is the aggregate view over all sessions matching a filter.
type Stats struct {
	TotalSessions  int `json:"totalSessions"`
	ActiveSessions int `json:"activeSessions"`

	TotalMinutes int `json:"totalMinutes"`
	TodayMinutes int `json:"todayMinutes"`

	AvgCompletedMinutes float64 `json:"avgCompletedMinutes"`
	SuccessRate         float64 `json:"successRate"`

	StatusStats   map[string]int `json:"statusStats"`
	CategoryStats map[string]int `json:"categoryStats"`
	ModuleStats   map[string]int `json:"moduleStats"`
	TriggerStats  map[string]int `json:"triggerStats"`
}

// NewSessionInfo maps a stored session onto its wire representation.
func NewSessionInfo(s *models.WorkSession) *SessionInfo {
	return &SessionInfo{
		SessionID:       s.SessionID,
		UserID:          s.UserID,
		ProjectID:       s.ProjectID,
		TaskID:          s.TaskID,
		OrderID:         s.OrderID,
		Module:          s.Module,
		Activity:        s.Activity,
		Trigger:         s.Trigger,
		Category:        s.Category,
		Priority:        s.Priority,
		Meta:            s.Meta,
		Status:          string(s.Status),
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.DurationMinutes,
		PausedMinutes:   s.PausedMinutes,
		IsProblem:       s.IsProblem,
		Cause:           s.Cause,
		Lesson:          s.Lesson,
		NextStep:        s.NextStep,
		Approved:        s.Approved,
		Invoiced:        s.Invoiced,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// NewSessionInfoList maps a slice of stored sessions.
func NewSessionInfoList(sessions []*models.WorkSession) []*SessionInfo {
	result := make([]*SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, NewSessionInfo(s))
	}
	return result
}
