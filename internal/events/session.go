// Package events defines the session lifecycle payloads shared by the
// event producer and the consumer projection.
package events

import "time"

// Event types recorded in the outbox and stamped on published messages.
const (
	TypeSessionCompleted = "rehab.session.completed"
	TypeSessionAbandoned = "rehab.session.abandoned"
)

// SchemaVersion is stamped into every published payload.
const SchemaVersion = "v1"

// TypeForSession picks the lifecycle event type for an ended session.
func TypeForSession(completed bool) string {
	if completed {
		return TypeSessionCompleted
	}
	return TypeSessionAbandoned
}

// SessionEnded is the payload for both lifecycle events; the event type
// distinguishes a fully run queue from a mid-queue end.
type SessionEnded struct {
	SessionID        string    `json:"session_id"`
	TenantID         string    `json:"tenant_id"`
	UserID           string    `json:"user_id"`
	ExerciseType     string    `json:"exercise_type"`
	Category         string    `json:"category,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	QueueLength      int       `json:"queue_length"`
	CompletedIDs     []string  `json:"completed_ids"`
	SkippedIDs       []string  `json:"skipped_ids"`
	PainReports      int       `json:"pain_reports"`
	HighFatigue      bool      `json:"high_fatigue"`
	Calibration      string    `json:"calibration"`
	CalibrationShift string    `json:"calibration_shift,omitempty"`
	Version          string    `json:"version"`
}
