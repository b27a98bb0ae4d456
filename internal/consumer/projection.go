package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rehabcoach/internal/events"
)

// ProjectionHandler writes consumed session events into Postgres: an append
// only event log plus per-exercise usage counters that feed adherence
// reporting.
type ProjectionHandler struct {
	pool *pgxpool.Pool
}

// NewProjectionHandler constructs a handler backed by the provided pool.
func NewProjectionHandler(pool *pgxpool.Pool) *ProjectionHandler {
	return &ProjectionHandler{pool: pool}
}

// Handle stores the raw event and, for session lifecycle events, folds the
// completed and skipped exercise ids into exercise_usage.
func (h *ProjectionHandler) Handle(ctx context.Context, msg Message) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO session_event_log (event_type, tenant_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.EventType,
		msg.TenantID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	); err != nil {
		return err
	}

	if msg.EventType == events.TypeSessionCompleted || msg.EventType == events.TypeSessionAbandoned {
		if err := foldExerciseUsage(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func foldExerciseUsage(ctx context.Context, tx pgx.Tx, msg Message) error {
	var ended events.SessionEnded
	if err := json.Unmarshal(msg.Payload, &ended); err != nil {
		return fmt.Errorf("decode session payload: %w", err)
	}

	const upsert = `INSERT INTO exercise_usage (tenant_id, exercise_id, completed_count, skipped_count, last_used_at)
         VALUES ($1,$2,$3,$4,$5)
         ON CONFLICT (tenant_id, exercise_id) DO UPDATE SET
             completed_count = exercise_usage.completed_count + EXCLUDED.completed_count,
             skipped_count = exercise_usage.skipped_count + EXCLUDED.skipped_count,
             last_used_at = GREATEST(exercise_usage.last_used_at, EXCLUDED.last_used_at)`

	for _, id := range ended.CompletedIDs {
		if _, err := tx.Exec(ctx, upsert, ended.TenantID, id, 1, 0, ended.EndedAt); err != nil {
			return err
		}
	}
	for _, id := range ended.SkippedIDs {
		if _, err := tx.Exec(ctx, upsert, ended.TenantID, id, 0, 1, ended.EndedAt); err != nil {
			return err
		}
	}
	return nil
}
