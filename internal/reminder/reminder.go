// Package reminder implements the reminder scheduler: locally owned reminder
// records, next-occurrence computation and the delivery-API workflow with
// bounded retries.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTimezone is assumed when the caller supplies none.
const DefaultTimezone = "Europe/London"

var (
	// ErrPermissionDenied indicates the reminder permission token is
	// absent or rejected. Checked before any external call and never
	// retried; the caller re-runs the platform permission flow.
	ErrPermissionDenied = errors.New("reminder permission not granted")
	// ErrInvalidReminder covers malformed time, recurrence or timezone
	// values, and delivery-API request rejections.
	ErrInvalidReminder = errors.New("invalid reminder request")
	// ErrServiceUnavailable is returned once the bounded retry budget
	// against the delivery API is exhausted.
	ErrServiceUnavailable = errors.New("reminder service unavailable")
	// ErrNotFound indicates no reminder exists for the slot.
	ErrNotFound = errors.New("reminder not found")
)

// PartialCancellationError reports the reminders that could not be cancelled
// so the caller can retry just the failed subset.
type PartialCancellationError struct {
	FailedIDs []string
}

func (e *PartialCancellationError) Error() string {
	return fmt.Sprintf("failed to cancel %d reminder(s): %s", len(e.FailedIDs), strings.Join(e.FailedIDs, ", "))
}

// Recurrence is the repeat rule for a reminder.
type Recurrence string

const (
	RecurDaily    Recurrence = "daily"
	RecurWeekdays Recurrence = "weekdays"
)

// ParseRecurrence normalises and validates a raw recurrence value. An empty
// value means daily.
func ParseRecurrence(raw string) (Recurrence, error) {
	r := Recurrence(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case "":
		return RecurDaily, nil
	case RecurDaily, RecurWeekdays:
		return r, nil
	}
	return "", fmt.Errorf("unknown recurrence %q", raw)
}

// State is the reminder lifecycle position. A reminder is pending while its
// delivery-API create is in flight, active once the API accepted it, and
// cancelled after CancelReminders.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCancelled State = "cancelled"
)

// Reminder is the locally owned record of one recurring reminder. The local
// store is the source of truth for listing; the delivery API holds the
// matching alert under DeliveryID.
type Reminder struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	UserID     string     `json:"user_id"`
	TimeOfDay  string     `json:"time_of_day"`
	Recurrence Recurrence `json:"recurrence"`
	Timezone   string     `json:"timezone"`
	State      State      `json:"state"`
	DeliveryID string     `json:"delivery_id,omitempty"`
	NextAt     time.Time  `json:"next_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Store is the local reminder persistence contract, keyed idempotently on
// (user, time-of-day).
type Store interface {
	// Get returns the reminder for the slot or ErrNotFound.
	Get(ctx context.Context, tenantID, userID, timeOfDay string) (Reminder, error)
	// Put upserts the reminder under its (user, time-of-day) slot.
	Put(ctx context.Context, rem Reminder) error
	// Delete removes the slot. Deleting a missing slot is not an error.
	Delete(ctx context.Context, tenantID, userID, timeOfDay string) error
	// ListActive returns the user's pending and active reminders ordered
	// by time of day.
	ListActive(ctx context.Context, tenantID, userID string) ([]Reminder, error)
}

type slotKey struct {
	tenantID  string
	userID    string
	timeOfDay string
}

// MemoryStore is the mutex-guarded in-memory store used by unit tests and
// local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	reminders map[slotKey]Reminder
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reminders: make(map[slotKey]Reminder)}
}

func (s *MemoryStore) Get(_ context.Context, tenantID, userID, timeOfDay string) (Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rem, ok := s.reminders[slotKey{tenantID, userID, timeOfDay}]
	if !ok {
		return Reminder{}, ErrNotFound
	}
	return rem, nil
}

func (s *MemoryStore) Put(_ context.Context, rem Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reminders[slotKey{rem.TenantID, rem.UserID, rem.TimeOfDay}] = rem
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tenantID, userID, timeOfDay string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reminders, slotKey{tenantID, userID, timeOfDay})
	return nil
}

func (s *MemoryStore) ListActive(_ context.Context, tenantID, userID string) ([]Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Reminder, 0)
	for key, rem := range s.reminders {
		if key.tenantID != tenantID || key.userID != userID {
			continue
		}
		if rem.State == StateCancelled {
			continue
		}
		result = append(result, rem)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TimeOfDay < result[j].TimeOfDay
	})
	return result, nil
}

var _ Store = (*MemoryStore)(nil)
