package progress

import (
	"context"
	"sync"

	"example.com/rehabcoach/internal/catalog"
)

type recordKey struct {
	tenantID string
	userID   string
}

// MemoryStore is a mutex-guarded in-memory store used by unit tests and
// local runs. It mirrors the Postgres implementation's versioning exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

// Get returns a copy of the stored record or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, tenantID, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{tenantID, userID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// ApplyDelta folds the delta in under the write lock.
func (s *MemoryStore) ApplyDelta(_ context.Context, tenantID, userID string, delta Delta) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{tenantID, userID}
	updated := Apply(s.records[key], tenantID, userID, delta)
	s.records[key] = updated
	return updated.Clone(), nil
}

// SetCalibration performs the optimistic tier write.
func (s *MemoryStore) SetCalibration(_ context.Context, tenantID, userID string, exerciseType catalog.Type, tier catalog.Tier, expectedVersion int64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{tenantID, userID}
	rec, ok := s.records[key]
	if !ok {
		rec = Record{TenantID: tenantID, UserID: userID}
	}
	if rec.Version != expectedVersion {
		return Record{}, ErrConflictingUpdate
	}

	updated := rec.Clone()
	if updated.Calibration == nil {
		updated.Calibration = make(map[catalog.Type]catalog.Tier)
	}
	if updated.SessionsByType == nil {
		updated.SessionsByType = make(map[catalog.Type]int)
	}
	updated.TenantID = tenantID
	updated.UserID = userID
	updated.Calibration[exerciseType] = tier
	updated.Version++
	s.records[key] = updated
	return updated.Clone(), nil
}

var _ Store = (*MemoryStore)(nil)
