//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/rehabcoach/internal/events"
)

func TestProjectionHandlerStoresEventAndFoldsUsage(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgres(t, ctx)
	defer cleanup()

	handler := NewProjectionHandler(pool)

	endedAt := time.Date(2026, time.March, 2, 9, 45, 0, 0, time.UTC)
	payload, err := json.Marshal(events.SessionEnded{
		SessionID:    "sess-1",
		TenantID:     "tenant-123",
		UserID:       "user-9",
		ExerciseType: "physical",
		StartedAt:    endedAt.Add(-15 * time.Minute),
		EndedAt:      endedAt,
		QueueLength:  4,
		CompletedIDs: []string{"shoulder-rolls", "wrist-circles", "seated-march"},
		SkippedIDs:   []string{"heel-raises"},
		Version:      events.SchemaVersion,
	})
	require.NoError(t, err)

	msg := Message{
		EventType:     events.TypeSessionCompleted,
		TenantID:      "tenant-123",
		SchemaID:      42,
		SchemaSubject: events.TypeSessionCompleted + "-value",
		Topic:         "rehab_session_events",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     endedAt,
	}

	require.NoError(t, handler.Handle(ctx, msg))

	var count int
	var storedPayload []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM session_event_log`).Scan(&count))
	require.Equal(t, 1, count)
	require.NoError(t, pool.QueryRow(ctx, `SELECT payload FROM session_event_log LIMIT 1`).Scan(&storedPayload))
	require.JSONEq(t, string(payload), string(storedPayload))

	var usageRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM exercise_usage WHERE tenant_id = 'tenant-123'`).Scan(&usageRows))
	require.Equal(t, 4, usageRows)

	var completedCount, skippedCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT completed_count, skipped_count FROM exercise_usage WHERE tenant_id = 'tenant-123' AND exercise_id = 'heel-raises'`,
	).Scan(&completedCount, &skippedCount))
	require.Equal(t, 0, completedCount)
	require.Equal(t, 1, skippedCount)

	// A second session folds into the same counters.
	msg.Offset = 6
	require.NoError(t, handler.Handle(ctx, msg))

	require.NoError(t, pool.QueryRow(ctx,
		`SELECT completed_count FROM exercise_usage WHERE tenant_id = 'tenant-123' AND exercise_id = 'shoulder-rolls'`,
	).Scan(&completedCount))
	require.Equal(t, 2, completedCount)
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

	migrationsPath := resolvePath(t, "../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, file := range files {
		content, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)
		_, execErr := pool.Exec(ctx, string(content))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
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

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}
