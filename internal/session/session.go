// Package session implements the coaching session orchestrator: queue
// construction from the exercise catalog, per-turn progression, mid-session
// difficulty moves and the end-of-session progress write.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"example.com/rehabcoach/internal/catalog"
)

var (
	// ErrInvalidExerciseType is returned when a session is requested for a
	// discipline or category with no catalog entries.
	ErrInvalidExerciseType = errors.New("invalid exercise type")
	// ErrNoActiveSession indicates the user has no session in flight. The
	// caller should prompt to start one.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidDirection is returned for a difficulty adjustment that is
	// neither easier nor harder.
	ErrInvalidDirection = errors.New("difficulty direction must be easier or harder")
	// ErrInvalidFatigueLevel is returned for a fatigue score outside 0-10.
	ErrInvalidFatigueLevel = errors.New("fatigue level must be between 0 and 10")
	// ErrSnapshotNotFound indicates no resumable snapshot exists.
	ErrSnapshotNotFound = errors.New("session snapshot not found")
)

// Outcome records how one queue entry was resolved.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
)

// PainReport is one pain event logged against the exercise that was current
// when it was reported.
type PainReport struct {
	ExerciseID string    `json:"exercise_id"`
	BodyArea   string    `json:"body_area"`
	At         time.Time `json:"at"`
}

// Session is the per-user state machine for one coaching run. The queue
// holds catalog ids so snapshots stay small and survive catalog reloads;
// Outcomes is aligned with the visited prefix of Queue.
type Session struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	UserID       string          `json:"user_id"`
	Type         catalog.Type    `json:"exercise_type"`
	Category     string          `json:"category,omitempty"`
	Calibration  catalog.Tier    `json:"calibration"`
	Queue        []string        `json:"queue"`
	Index        int             `json:"index"`
	Outcomes     []Outcome       `json:"outcomes"`
	Feedback     []catalog.Tier  `json:"feedback,omitempty"`
	Pain         []PainReport    `json:"pain,omitempty"`
	FatigueLevel int             `json:"fatigue_level"`
	HighFatigue  bool            `json:"high_fatigue"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a deep copy safe to hand across the store boundary.
func (s Session) Clone() Session {
	out := s
	if s.Queue != nil {
		out.Queue = append([]string(nil), s.Queue...)
	}
	if s.Outcomes != nil {
		out.Outcomes = append([]Outcome(nil), s.Outcomes...)
	}
	if s.Feedback != nil {
		out.Feedback = append([]catalog.Tier(nil), s.Feedback...)
	}
	if s.Pain != nil {
		out.Pain = append([]PainReport(nil), s.Pain...)
	}
	return out
}

// CurrentID returns the queue id at the session index, false when the queue
// is exhausted.
func (s Session) CurrentID() (string, bool) {
	if s.Index < 0 || s.Index >= len(s.Queue) {
		return "", false
	}
	return s.Queue[s.Index], true
}

// Counts tallies the visited prefix by outcome.
func (s Session) Counts() (completed, skipped int) {
	for _, o := range s.Outcomes {
		switch o {
		case OutcomeCompleted:
			completed++
		case OutcomeSkipped:
			skipped++
		}
	}
	return completed, skipped
}

// Store holds the in-flight session per user. One session per user is the
// platform norm; the store still serialises concurrent access.
type Store interface {
	// Get returns a copy of the active session or ErrNoActiveSession.
	Get(ctx context.Context, tenantID, userID string) (Session, error)
	// Put stores the session, replacing any prior one for the user.
	Put(ctx context.Context, sess Session) error
	// Delete removes the active session. Deleting a missing session is
	// not an error.
	Delete(ctx context.Context, tenantID, userID string) error
}

// Snapshot is the resumable copy of an interrupted session.
type Snapshot struct {
	Session Session   `json:"session"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotStore persists resume snapshots across restarts. The orchestrator
// writes through on every session mutation and deletes on finalize.
type SnapshotStore interface {
	Put(ctx context.Context, snap Snapshot) error
	// Get returns the stored snapshot or ErrSnapshotNotFound.
	Get(ctx context.Context, tenantID, userID string) (Snapshot, error)
	Delete(ctx context.Context, tenantID, userID string) error
}

type sessionKey struct {
	tenantID string
	userID   string
}

// MemoryStore is the mutex-guarded active-session store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]Session
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[sessionKey]Session)}
}

func (s *MemoryStore) Get(_ context.Context, tenantID, userID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey{tenantID, userID}]
	if !ok {
		return Session{}, ErrNoActiveSession
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionKey{sess.TenantID, sess.UserID}] = sess.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey{tenantID, userID})
	return nil
}

var _ Store = (*MemoryStore)(nil)

// MemorySnapshotStore keeps snapshots in memory for unit tests and local
// runs; production uses the Postgres implementation.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[sessionKey]Snapshot
}

// NewMemorySnapshotStore constructs an empty snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[sessionKey]Snapshot)}
}

func (s *MemorySnapshotStore) Put(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Session = snap.Session.Clone()
	s.snapshots[sessionKey{snap.Session.TenantID, snap.Session.UserID}] = snap
	return nil
}

func (s *MemorySnapshotStore) Get(_ context.Context, tenantID, userID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[sessionKey{tenantID, userID}]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	snap.Session = snap.Session.Clone()
	return snap, nil
}

func (s *MemorySnapshotStore) Delete(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, sessionKey{tenantID, userID})
	return nil
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)
