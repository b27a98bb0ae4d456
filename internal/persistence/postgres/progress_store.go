// Package postgres provides the Postgres-backed stores for progress
// records, reminders and session snapshots. Session outcomes and their
// outbox events are written in one transaction; every statement runs with
// the tenant pinned via app.tenant_id so row-level security applies.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/events"
	"example.com/rehabcoach/internal/observability"
	"example.com/rehabcoach/internal/progress"
)

// ProgressStore provides Postgres-backed persistence for progress records
// and the session outbox events.
type ProgressStore struct {
	pool *pgxpool.Pool
}

// NewProgressStore constructs a ProgressStore.
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

const selectProgress = `SELECT tenant_id, user_id, total_sessions, partial_sessions, streak, best_streak, last_session_at, sessions_by_type, calibration, recent_sessions, version, updated_at
        FROM progress_records WHERE tenant_id=$1 AND user_id=$2`

// Get retrieves the progress record for a user.
func (s *ProgressStore) Get(ctx context.Context, tenantID, userID string) (progress.Record, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return progress.Record{}, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return progress.Record{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return progress.Record{}, err
	}

	rec, err := scanRecord(tx.QueryRow(ctx, selectProgress, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return progress.Record{}, err
			}
			return progress.Record{}, progress.ErrNotFound
		}
		return progress.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return progress.Record{}, err
	}
	return rec, nil
}

// ApplyDelta folds a session outcome into the record and records the
// lifecycle outbox event inside a single transaction.
func (s *ProgressStore) ApplyDelta(ctx context.Context, tenantID, userID string, delta progress.Delta) (progress.Record, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return progress.Record{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return progress.Record{}, err
	}

	var current progress.Record
	scanned, scanErr := scanRecord(tx.QueryRow(ctx, selectProgress+` FOR UPDATE`, tenantID, userID))
	if scanErr != nil && !errors.Is(scanErr, pgx.ErrNoRows) {
		err = scanErr
		return progress.Record{}, err
	}
	if scanErr == nil {
		current = scanned
	}

	next := progress.Apply(current, tenantID, userID, delta)
	if err = upsertRecord(ctx, tx, next); err != nil {
		return progress.Record{}, err
	}
	if err = insertOutbox(ctx, tx, tenantID, userID, delta); err != nil {
		return progress.Record{}, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return progress.Record{}, err
	}
	observability.RecordOutcomePersisted(delta.EndedAt)
	return next, nil
}

// SetCalibration writes the tier for a discipline under optimistic version
// control. expectedVersion 0 targets a record that does not exist yet.
func (s *ProgressStore) SetCalibration(ctx context.Context, tenantID, userID string, exerciseType catalog.Type, tier catalog.Tier, expectedVersion int64) (progress.Record, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return progress.Record{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return progress.Record{}, err
	}

	current := progress.Record{TenantID: tenantID, UserID: userID}
	scanned, scanErr := scanRecord(tx.QueryRow(ctx, selectProgress+` FOR UPDATE`, tenantID, userID))
	switch {
	case errors.Is(scanErr, pgx.ErrNoRows):
		if expectedVersion != 0 {
			err = progress.ErrConflictingUpdate
			return progress.Record{}, err
		}
	case scanErr != nil:
		err = scanErr
		return progress.Record{}, err
	default:
		if scanned.Version != expectedVersion {
			err = progress.ErrConflictingUpdate
			return progress.Record{}, err
		}
		current = scanned
	}

	next := current.Clone()
	next.TenantID = tenantID
	next.UserID = userID
	if next.SessionsByType == nil {
		next.SessionsByType = make(map[catalog.Type]int)
	}
	if next.Calibration == nil {
		next.Calibration = make(map[catalog.Type]catalog.Tier)
	}
	next.Calibration[exerciseType] = tier
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	if err = upsertRecord(ctx, tx, next); err != nil {
		return progress.Record{}, err
	}
	err = tx.Commit(ctx)
	if err != nil {
		return progress.Record{}, err
	}
	return next, nil
}

func scanRecord(row pgx.Row) (progress.Record, error) {
	var (
		rec           progress.Record
		lastSessionAt *time.Time
		byType        []byte
		calibration   []byte
		recent        []byte
	)
	if err := row.Scan(&rec.TenantID, &rec.UserID, &rec.TotalSessions, &rec.PartialSessions, &rec.Streak, &rec.BestStreak, &lastSessionAt, &byType, &calibration, &recent, &rec.Version, &rec.UpdatedAt); err != nil {
		return progress.Record{}, err
	}
	if lastSessionAt != nil {
		rec.LastSessionAt = *lastSessionAt
	}
	if err := json.Unmarshal(byType, &rec.SessionsByType); err != nil {
		return progress.Record{}, fmt.Errorf("decode sessions_by_type: %w", err)
	}
	if err := json.Unmarshal(calibration, &rec.Calibration); err != nil {
		return progress.Record{}, fmt.Errorf("decode calibration: %w", err)
	}
	if err := json.Unmarshal(recent, &rec.RecentSessions); err != nil {
		return progress.Record{}, fmt.Errorf("decode recent_sessions: %w", err)
	}
	return rec, nil
}

func upsertRecord(ctx context.Context, tx pgx.Tx, rec progress.Record) error {
	byType, err := json.Marshal(rec.SessionsByType)
	if err != nil {
		return err
	}
	calibration, err := json.Marshal(rec.Calibration)
	if err != nil {
		return err
	}
	recent, err := json.Marshal(rec.RecentSessions)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO progress_records (tenant_id, user_id, total_sessions, partial_sessions, streak, best_streak, last_session_at, sessions_by_type, calibration, recent_sessions, version, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (tenant_id, user_id) DO UPDATE SET
            total_sessions = EXCLUDED.total_sessions,
            partial_sessions = EXCLUDED.partial_sessions,
            streak = EXCLUDED.streak,
            best_streak = EXCLUDED.best_streak,
            last_session_at = EXCLUDED.last_session_at,
            sessions_by_type = EXCLUDED.sessions_by_type,
            calibration = EXCLUDED.calibration,
            recent_sessions = EXCLUDED.recent_sessions,
            version = EXCLUDED.version,
            updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, stmt,
		rec.TenantID,
		rec.UserID,
		rec.TotalSessions,
		rec.PartialSessions,
		rec.Streak,
		rec.BestStreak,
		nullIfZeroTime(rec.LastSessionAt),
		byType,
		calibration,
		recent,
		rec.Version,
		rec.UpdatedAt,
	)
	return err
}

func insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, userID string, delta progress.Delta) error {
	eventType := events.TypeForSession(delta.Completed)
	payload := events.SessionEnded{
		SessionID:        delta.SessionID,
		TenantID:         tenantID,
		UserID:           userID,
		ExerciseType:     string(delta.ExerciseType),
		Category:         delta.Category,
		StartedAt:        delta.StartedAt,
		EndedAt:          delta.EndedAt,
		QueueLength:      delta.QueueLen,
		CompletedIDs:     delta.CompletedIDs,
		SkippedIDs:       delta.SkippedIDs,
		PainReports:      delta.PainReports,
		HighFatigue:      delta.HighFatigue,
		Calibration:      string(delta.Calibration),
		CalibrationShift: string(delta.CalibrationShift),
		Version:          events.SchemaVersion,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(payload)
	dedupeKey := fmt.Sprintf("%s:%s", delta.SessionID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		"session",
		delta.SessionID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

func nullIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(events.SessionEnded) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeSessionCompleted: {
		Topic:         "rehab_session_events",
		SchemaSubject: "rehab.session.completed-value",
		PartitionKeyFn: func(e events.SessionEnded) string {
			return fmt.Sprintf("%s:%s", e.TenantID, e.UserID)
		},
	},
	events.TypeSessionAbandoned: {
		Topic:         "rehab_session_events",
		SchemaSubject: "rehab.session.abandoned-value",
		PartitionKeyFn: func(e events.SessionEnded) string {
			return fmt.Sprintf("%s:%s", e.TenantID, e.UserID)
		},
	},
}

var _ progress.Store = (*ProgressStore)(nil)
