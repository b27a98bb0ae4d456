//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/events"
	"example.com/rehabcoach/internal/progress"
	"example.com/rehabcoach/internal/reminder"
	"example.com/rehabcoach/internal/session"
)

func TestProgressStoreRespectsTenantIsolation(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	store := NewProgressStore(pool)
	tenantID := uuid.NewString()
	userID := uuid.NewString()

	_, err := store.ApplyDelta(ctx, tenantID, userID, sessionDelta(uuid.NewString(), time.Now().UTC(), true))
	require.NoError(t, err)

	rec, err := store.Get(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, 1, rec.TotalSessions)

	_, err = store.Get(ctx, uuid.NewString(), userID)
	require.ErrorIs(t, err, progress.ErrNotFound, "cross-tenant read must miss")
}

func TestApplyDeltaFoldsOutcomesAndFeedsOutbox(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	store := NewProgressStore(pool)
	tenantID := uuid.NewString()
	userID := uuid.NewString()

	day1 := time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	rec, err := store.ApplyDelta(ctx, tenantID, userID, sessionDelta("sess-1", day1, true))
	require.NoError(t, err)
	require.Equal(t, 1, rec.TotalSessions)
	require.Equal(t, 0, rec.PartialSessions)
	require.Equal(t, 1, rec.Streak)
	require.Equal(t, int64(1), rec.Version)

	abandoned := sessionDelta("sess-2", day2, false)
	abandoned.CompletedIDs = []string{"p1"}
	abandoned.SkippedIDs = []string{"p2"}
	rec, err = store.ApplyDelta(ctx, tenantID, userID, abandoned)
	require.NoError(t, err)
	require.Equal(t, 2, rec.TotalSessions)
	require.Equal(t, 1, rec.PartialSessions)
	require.Equal(t, 2, rec.Streak)
	require.Equal(t, 2, rec.BestStreak)
	require.Equal(t, 2, rec.SessionsByType[catalog.TypePhysical])
	require.Len(t, rec.RecentSessions, 2)

	// The reread must round-trip the jsonb columns.
	reread, err := store.Get(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, rec.TotalSessions, reread.TotalSessions)
	require.Equal(t, rec.SessionsByType, reread.SessionsByType)
	require.Equal(t, rec.RecentSessions[1].SessionID, reread.RecentSessions[1].SessionID)

	var types []string
	rows, err := pool.Query(ctx, `SELECT event_type FROM outbox WHERE tenant_id = $1 ORDER BY event_id`, tenantID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var eventType string
		require.NoError(t, rows.Scan(&eventType))
		types = append(types, eventType)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{events.TypeSessionCompleted, events.TypeSessionAbandoned}, types)

	var topic, subject string
	err = pool.QueryRow(ctx, `SELECT topic, schema_subject FROM outbox WHERE tenant_id = $1 AND event_type = $2`, tenantID, events.TypeSessionAbandoned).Scan(&topic, &subject)
	require.NoError(t, err)
	require.Equal(t, "rehab_session_events", topic)
	require.Equal(t, "rehab.session.abandoned-value", subject)
}

func TestSetCalibrationOptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	store := NewProgressStore(pool)
	tenantID := uuid.NewString()
	userID := uuid.NewString()

	rec, err := store.SetCalibration(ctx, tenantID, userID, catalog.TypeSpeech, catalog.TierChallenging, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.Version)
	require.Equal(t, catalog.TierChallenging, rec.Calibration[catalog.TypeSpeech])

	_, err = store.SetCalibration(ctx, tenantID, userID, catalog.TypeSpeech, catalog.TierComfortable, 0)
	require.ErrorIs(t, err, progress.ErrConflictingUpdate, "stale version must not overwrite")

	rec, err = store.SetCalibration(ctx, tenantID, userID, catalog.TypeSpeech, catalog.TierComfortable, rec.Version)
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.Version)
	require.Equal(t, catalog.TierComfortable, rec.Calibration[catalog.TypeSpeech])
}

func TestReminderStoreSlots(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	store := NewReminderStore(pool)
	tenantID := uuid.NewString()
	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	evening := reminder.Reminder{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		TimeOfDay:  "19:00",
		Recurrence: reminder.RecurDaily,
		Timezone:   "Europe/London",
		State:      reminder.StateActive,
		DeliveryID: "alert-evening",
		NextAt:     now.Add(6 * time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	morning := evening
	morning.ID = uuid.NewString()
	morning.TimeOfDay = "07:30"
	morning.DeliveryID = "alert-morning"
	morning.Recurrence = reminder.RecurWeekdays

	require.NoError(t, store.Put(ctx, evening))
	require.NoError(t, store.Put(ctx, morning))

	got, err := store.Get(ctx, tenantID, userID, "07:30")
	require.NoError(t, err)
	require.Equal(t, morning.ID, got.ID)
	require.Equal(t, reminder.RecurWeekdays, got.Recurrence)

	_, err = store.Get(ctx, tenantID, userID, "12:00")
	require.ErrorIs(t, err, reminder.ErrNotFound)

	listed, err := store.ListActive(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "07:30", listed[0].TimeOfDay, "listing is ordered by time of day")

	evening.State = reminder.StateCancelled
	require.NoError(t, store.Put(ctx, evening))
	listed, err = store.ListActive(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, store.Delete(ctx, tenantID, userID, "07:30"))
	require.NoError(t, store.Delete(ctx, tenantID, userID, "07:30"), "deleting a missing slot is not an error")
	_, err = store.Get(ctx, tenantID, userID, "07:30")
	require.ErrorIs(t, err, reminder.ErrNotFound)
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	store := NewSnapshotStore(pool)
	tenantID := uuid.NewString()
	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	snap := session.Snapshot{
		Session: session.Session{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			UserID:    userID,
			Type:      catalog.TypePhysical,
			Queue:     []string{"p1", "p2", "p3"},
			Index:     1,
			Outcomes:  []session.Outcome{session.OutcomeCompleted},
			StartedAt: now.Add(-10 * time.Minute),
			UpdatedAt: now,
		},
		SavedAt: now,
	}
	require.NoError(t, store.Put(ctx, snap))

	got, err := store.Get(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Equal(t, snap.Session.ID, got.Session.ID)
	require.Equal(t, snap.Session.Queue, got.Session.Queue)
	require.Equal(t, 1, got.Session.Index)

	require.NoError(t, store.Delete(ctx, tenantID, userID))
	_, err = store.Get(ctx, tenantID, userID)
	require.ErrorIs(t, err, session.ErrSnapshotNotFound)
}

func sessionDelta(sessionID string, endedAt time.Time, completed bool) progress.Delta {
	return progress.Delta{
		SessionID:    sessionID,
		ExerciseType: catalog.TypePhysical,
		Category:     "mobility",
		StartedAt:    endedAt.Add(-20 * time.Minute),
		EndedAt:      endedAt,
		Completed:    completed,
		QueueLen:     3,
		CompletedIDs: []string{"p1", "p2", "p3"},
		Calibration:  catalog.TierComfortable,
	}
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("rehab"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pg.Terminate(ctx)
	}
	return pool, cleanup
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	migrationsDir := resolvePath(t, "../../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
