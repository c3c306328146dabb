package session

import (
	"context"
	"time"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/apperrors"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

// Aggregator computes read-side statistics on demand from the store. It keeps
// no state of its own; every call reflects the store at that instant.
type Aggregator struct {
	store db.SessionStore
	now   func() time.Time
}

// NewAggregator creates a stats aggregator over the store.
func NewAggregator(store db.SessionStore) *Aggregator {
	return &Aggregator{
		store: store,
		now:   time.Now,
	}
}

// Compute aggregates all sessions matching the filter.
func (a *Aggregator) Compute(ctx context.Context, f db.Filter) (*Stats, apperrors.Error) {
	sessions, err := a.store.List(ctx, f)
	if err != nil {
		return nil, ErrStoreUnavailable.Err(err)
	}

	stats := &Stats{
		StatusStats:   make(map[string]int),
		CategoryStats: make(map[string]int),
		ModuleStats:   make(map[string]int),
		TriggerStats:  make(map[string]int),
	}

	now := a.now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	completedMinutes := 0
	completed := 0
	interrupted := 0

	for _, s := range sessions {
		stats.TotalSessions++
		stats.StatusStats[string(s.Status)]++
		stats.CategoryStats[s.Category]++
		if s.Module != "" {
			stats.ModuleStats[s.Module]++
		}
		if s.Trigger != "" {
			stats.TriggerStats[s.Trigger]++
		}

		switch s.Status {
		case models.SessionStatusActive:
			stats.ActiveSessions++
		case models.SessionStatusCompleted:
			completed++
			completedMinutes += s.DurationMinutes
		case models.SessionStatusInterrupted:
			interrupted++
		}

		minutes := sessionMinutes(s, now)
		stats.TotalMinutes += minutes
		if !s.StartTime.Before(todayStart) {
			stats.TodayMinutes += minutes
		}
	}

	if completed > 0 {
		stats.AvgCompletedMinutes = float64(completedMinutes) / float64(completed)
	}
	if closed := completed + interrupted; closed > 0 {
		stats.SuccessRate = float64(completed) / float64(closed)
	}

	return stats, nil
}

// sessionMinutes is the session's billable minutes so far. Terminal sessions
// carry the final figure; open ones are measured against now, with any open
// pause interval counted as paused.
func sessionMinutes(s *models.WorkSession, now time.Time) int {
	if s.Status.IsTerminal() {
		return s.DurationMinutes
	}

	paused := s.PausedMinutes
	if s.Status == models.SessionStatusPaused && s.PauseStartedAt != nil {
		paused += minutesBetween(*s.PauseStartedAt, now)
	}
	minutes := minutesBetween(s.StartTime, now) - paused
	if minutes < 0 {
		minutes = 0
	}
	return minutes
}
