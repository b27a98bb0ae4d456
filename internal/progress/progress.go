// Package progress defines the per-user rehabilitation progress record and
// the store contract shared by the in-memory and Postgres implementations.
package progress

import (
	"context"
	"errors"
	"time"

	"example.com/rehabcoach/internal/catalog"
)

var (
	// ErrNotFound indicates no progress record exists for the user yet.
	ErrNotFound = errors.New("progress record not found")
	// ErrConflictingUpdate indicates an optimistic write lost against a
	// concurrent update. Callers retry once with a fresh read before
	// surfacing it.
	ErrConflictingUpdate = errors.New("progress record version conflict")
)

// maxRecentSessions caps the rolling session log kept on the record.
const maxRecentSessions = 10

// CalibrationShift describes how the end-of-session evaluation moved the
// user's difficulty calibration.
type CalibrationShift string

const (
	ShiftNone     CalibrationShift = ""
	ShiftPromoted CalibrationShift = "promoted"
	ShiftDemoted  CalibrationShift = "demoted"
)

// SessionLogEntry is one line of the rolling recent-session log.
type SessionLogEntry struct {
	SessionID    string        `json:"session_id"`
	ExerciseType catalog.Type  `json:"exercise_type"`
	EndedAt      time.Time     `json:"ended_at"`
	Completed    int           `json:"completed"`
	Total        int           `json:"total"`
	Partial      bool          `json:"partial"`
}

// Percent reports the completed share of the planned queue.
func (e SessionLogEntry) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	return e.Completed * 100 / e.Total
}

// Record is the per-user aggregate. Version increases on every write and
// backs the optimistic calibration updates.
type Record struct {
	TenantID        string
	UserID          string
	TotalSessions   int
	PartialSessions int
	Streak          int
	BestStreak      int
	LastSessionAt   time.Time
	SessionsByType  map[catalog.Type]int
	Calibration     map[catalog.Type]catalog.Tier
	RecentSessions  []SessionLogEntry
	Version         int64
	UpdatedAt       time.Time
}

// CalibrationFor returns the user's tier for a discipline, defaulting to
// comfortable when no history exists.
func (r Record) CalibrationFor(t catalog.Type) catalog.Tier {
	if tier, ok := r.Calibration[t]; ok && tier.Valid() {
		return tier
	}
	return catalog.TierComfortable
}

// Clone returns a deep copy safe to hand to callers.
func (r Record) Clone() Record {
	out := r
	if r.SessionsByType != nil {
		out.SessionsByType = make(map[catalog.Type]int, len(r.SessionsByType))
		for k, v := range r.SessionsByType {
			out.SessionsByType[k] = v
		}
	}
	if r.Calibration != nil {
		out.Calibration = make(map[catalog.Type]catalog.Tier, len(r.Calibration))
		for k, v := range r.Calibration {
			out.Calibration[k] = v
		}
	}
	if r.RecentSessions != nil {
		out.RecentSessions = append([]SessionLogEntry(nil), r.RecentSessions...)
	}
	return out
}

// Delta is the atomic outcome of one ended session. The store folds it into
// the record in a single conditional write; callers never read-then-overwrite
// absolute counts.
type Delta struct {
	SessionID        string
	ExerciseType     catalog.Type
	Category         string
	StartedAt        time.Time
	EndedAt          time.Time
	Completed        bool
	QueueLen         int
	CompletedIDs     []string
	SkippedIDs       []string
	PainReports      int
	HighFatigue      bool
	Calibration      catalog.Tier
	CalibrationShift CalibrationShift
}

// Store is the progress persistence contract.
type Store interface {
	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, tenantID, userID string) (Record, error)
	// ApplyDelta folds a session outcome into the record atomically,
	// creating it lazily, and returns the updated record.
	ApplyDelta(ctx context.Context, tenantID, userID string, delta Delta) (Record, error)
	// SetCalibration writes the tier for a discipline when the stored
	// version still matches expectedVersion, failing with
	// ErrConflictingUpdate otherwise. expectedVersion 0 targets a record
	// that does not exist yet.
	SetCalibration(ctx context.Context, tenantID, userID string, exerciseType catalog.Type, tier catalog.Tier, expectedVersion int64) (Record, error)
}

// Apply folds a delta into a record value. Both store implementations run it
// under their own write serialisation so the streak transition stays
// consistent between them.
func Apply(rec Record, tenantID, userID string, delta Delta) Record {
	out := rec.Clone()
	out.TenantID = tenantID
	out.UserID = userID
	if out.SessionsByType == nil {
		out.SessionsByType = make(map[catalog.Type]int)
	}
	if out.Calibration == nil {
		out.Calibration = make(map[catalog.Type]catalog.Tier)
	}

	// Every ended session counts toward the totals and moves the streak;
	// a mid-queue end is additionally tallied as partial.
	out.TotalSessions++
	out.SessionsByType[delta.ExerciseType]++
	if !delta.Completed {
		out.PartialSessions++
	}
	out.Streak = nextStreak(out.Streak, out.LastSessionAt, delta.EndedAt)
	if out.Streak > out.BestStreak {
		out.BestStreak = out.Streak
	}
	out.LastSessionAt = delta.EndedAt

	if delta.Calibration.Valid() {
		out.Calibration[delta.ExerciseType] = delta.Calibration
	}

	out.RecentSessions = append(out.RecentSessions, SessionLogEntry{
		SessionID:    delta.SessionID,
		ExerciseType: delta.ExerciseType,
		EndedAt:      delta.EndedAt,
		Completed:    len(delta.CompletedIDs),
		Total:        delta.QueueLen,
		Partial:      !delta.Completed,
	})
	if n := len(out.RecentSessions); n > maxRecentSessions {
		out.RecentSessions = append([]SessionLogEntry(nil), out.RecentSessions[n-maxRecentSessions:]...)
	}

	out.Version++
	out.UpdatedAt = delta.EndedAt
	return out
}

// nextStreak applies the day-based streak transition: unchanged for a second
// session the same day, incremented when the previous session was yesterday,
// reset to 1 otherwise. Days are UTC calendar days.
func nextStreak(current int, last, now time.Time) int {
	if last.IsZero() {
		return 1
	}
	lastDay := last.UTC().Truncate(24 * time.Hour)
	nowDay := now.UTC().Truncate(24 * time.Hour)
	switch nowDay.Sub(lastDay) {
	case 0:
		if current < 1 {
			return 1
		}
		return current
	case 24 * time.Hour:
		return current + 1
	default:
		return 1
	}
}
