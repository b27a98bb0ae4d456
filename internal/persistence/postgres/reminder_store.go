package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/rehabcoach/internal/reminder"
)

// ReminderStore provides Postgres-backed persistence for reminder slots.
type ReminderStore struct {
	pool *pgxpool.Pool
}

// NewReminderStore constructs a ReminderStore.
func NewReminderStore(pool *pgxpool.Pool) *ReminderStore {
	return &ReminderStore{pool: pool}
}

const selectReminder = `SELECT reminder_id, tenant_id, user_id, time_of_day, recurrence, timezone, state, delivery_id, next_at, created_at, updated_at
        FROM reminders WHERE tenant_id=$1 AND user_id=$2 AND time_of_day=$3`

// Get retrieves the reminder occupying a time-of-day slot.
func (s *ReminderStore) Get(ctx context.Context, tenantID, userID, timeOfDay string) (reminder.Reminder, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return reminder.Reminder{}, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return reminder.Reminder{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return reminder.Reminder{}, err
	}

	rem, err := scanReminder(tx.QueryRow(ctx, selectReminder, tenantID, userID, timeOfDay))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return reminder.Reminder{}, err
			}
			return reminder.Reminder{}, reminder.ErrNotFound
		}
		return reminder.Reminder{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return reminder.Reminder{}, err
	}
	return rem, nil
}

// Put upserts the reminder into its slot.
func (s *ReminderStore) Put(ctx context.Context, rem reminder.Reminder) error {
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

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", rem.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO reminders (reminder_id, tenant_id, user_id, time_of_day, recurrence, timezone, state, delivery_id, next_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (tenant_id, user_id, time_of_day) DO UPDATE SET
            reminder_id = EXCLUDED.reminder_id,
            recurrence = EXCLUDED.recurrence,
            timezone = EXCLUDED.timezone,
            state = EXCLUDED.state,
            delivery_id = EXCLUDED.delivery_id,
            next_at = EXCLUDED.next_at,
            created_at = EXCLUDED.created_at,
            updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, stmt,
		rem.ID,
		rem.TenantID,
		rem.UserID,
		rem.TimeOfDay,
		string(rem.Recurrence),
		rem.Timezone,
		string(rem.State),
		rem.DeliveryID,
		rem.NextAt,
		rem.CreatedAt,
		rem.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Delete removes the reminder from its slot. Deleting a missing slot is not
// an error.
func (s *ReminderStore) Delete(ctx context.Context, tenantID, userID, timeOfDay string) error {
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

	if _, err := tx.Exec(ctx, `DELETE FROM reminders WHERE tenant_id=$1 AND user_id=$2 AND time_of_day=$3`, tenantID, userID, timeOfDay); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListActive returns the user's pending and active reminders ordered by time
// of day.
func (s *ReminderStore) ListActive(ctx context.Context, tenantID, userID string) ([]reminder.Reminder, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	const query = `SELECT reminder_id, tenant_id, user_id, time_of_day, recurrence, timezone, state, delivery_id, next_at, created_at, updated_at
        FROM reminders WHERE tenant_id=$1 AND user_id=$2 AND state != 'cancelled'
        ORDER BY time_of_day`

	rows, err := tx.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func scanReminder(row pgx.Row) (reminder.Reminder, error) {
	var (
		rem        reminder.Reminder
		recurrence string
		state      string
	)
	if err := row.Scan(&rem.ID, &rem.TenantID, &rem.UserID, &rem.TimeOfDay, &recurrence, &rem.Timezone, &state, &rem.DeliveryID, &rem.NextAt, &rem.CreatedAt, &rem.UpdatedAt); err != nil {
		return reminder.Reminder{}, err
	}
	rem.Recurrence = reminder.Recurrence(recurrence)
	rem.State = reminder.State(state)
	return rem, nil
}

var _ reminder.Store = (*ReminderStore)(nil)
