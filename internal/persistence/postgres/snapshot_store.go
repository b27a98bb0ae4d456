package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rehabcoach/internal/session"
)

// SnapshotStore provides Postgres-backed persistence for resumable session
// snapshots, one per user.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore constructs a SnapshotStore.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Put upserts the user's resume snapshot.
func (s *SnapshotStore) Put(ctx context.Context, snap session.Snapshot) error {
	body, err := json.Marshal(snap.Session)
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", snap.Session.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO session_snapshots (tenant_id, user_id, session, saved_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (tenant_id, user_id) DO UPDATE SET
            session = EXCLUDED.session,
            saved_at = EXCLUDED.saved_at`

	if _, err := tx.Exec(ctx, stmt, snap.Session.TenantID, snap.Session.UserID, body, snap.SavedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Get retrieves the user's resume snapshot.
func (s *SnapshotStore) Get(ctx context.Context, tenantID, userID string) (session.Snapshot, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return session.Snapshot{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return session.Snapshot{}, err
	}

	const query = `SELECT session, saved_at FROM session_snapshots WHERE tenant_id=$1 AND user_id=$2`

	var (
		snap session.Snapshot
		body []byte
	)
	if err := tx.QueryRow(ctx, query, tenantID, userID).Scan(&body, &snap.SavedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return session.Snapshot{}, err
			}
			return session.Snapshot{}, session.ErrSnapshotNotFound
		}
		return session.Snapshot{}, err
	}
	if err := json.Unmarshal(body, &snap.Session); err != nil {
		return session.Snapshot{}, fmt.Errorf("decode session snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return session.Snapshot{}, err
	}
	return snap, nil
}

// Delete removes the user's resume snapshot. Deleting a missing snapshot is
// not an error.
func (s *SnapshotStore) Delete(ctx context.Context, tenantID, userID string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_snapshots WHERE tenant_id=$1 AND user_id=$2`, tenantID, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

var _ session.SnapshotStore = (*SnapshotStore)(nil)
