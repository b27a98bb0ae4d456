package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/rehabcoach/internal/catalog"
)

func day(d int, hour int) time.Time {
	return time.Date(2026, time.March, d, hour, 30, 0, 0, time.UTC)
}

func completion(id string, endedAt time.Time) Delta {
	return Delta{
		SessionID:    id,
		ExerciseType: catalog.TypePhysical,
		StartedAt:    endedAt.Add(-10 * time.Minute),
		EndedAt:      endedAt,
		Completed:    true,
		QueueLen:     5,
		CompletedIDs: []string{"phys_b_1", "phys_b_2", "phys_b_3", "phys_b_4", "phys_b_5"},
	}
}

func TestApplyDeltaCreatesRecordLazily(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "clinic-a", "u1")
	require.ErrorIs(t, err, ErrNotFound)

	rec, err := store.ApplyDelta(ctx, "clinic-a", "u1", completion("s1", day(1, 9)))
	require.NoError(t, err)
	require.Equal(t, 1, rec.TotalSessions)
	require.Equal(t, 0, rec.PartialSessions)
	require.Equal(t, 1, rec.Streak)
	require.Equal(t, 1, rec.BestStreak)
	require.Equal(t, 1, rec.SessionsByType[catalog.TypePhysical])
	require.Equal(t, int64(1), rec.Version)
	require.Len(t, rec.RecentSessions, 1)
	require.Equal(t, 100, rec.RecentSessions[0].Percent())
}

func TestStreakTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec, err := store.ApplyDelta(ctx, "clinic-a", "u1", completion("s1", day(1, 9)))
	require.NoError(t, err)
	require.Equal(t, 1, rec.Streak)

	// Second completion the same day leaves the streak alone.
	rec, err = store.ApplyDelta(ctx, "clinic-a", "u1", completion("s2", day(1, 18)))
	require.NoError(t, err)
	require.Equal(t, 1, rec.Streak)
	require.Equal(t, 2, rec.TotalSessions)

	// Next day extends it.
	rec, err = store.ApplyDelta(ctx, "clinic-a", "u1", completion("s3", day(2, 9)))
	require.NoError(t, err)
	require.Equal(t, 2, rec.Streak)

	// A two day gap resets to 1 but keeps the best streak watermark.
	rec, err = store.ApplyDelta(ctx, "clinic-a", "u1", completion("s4", day(5, 9)))
	require.NoError(t, err)
	require.Equal(t, 1, rec.Streak)
	require.Equal(t, 2, rec.BestStreak)
}

func TestPartialSessionCountsTowardStreak(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.ApplyDelta(ctx, "clinic-a", "u1", completion("s1", day(1, 9)))
	require.NoError(t, err)

	// An abandoned session still counts: totals, streak and the anchor all
	// move, with the partial tallied separately.
	partial := completion("s2", day(2, 9))
	partial.Completed = false
	partial.CompletedIDs = partial.CompletedIDs[:2]
	rec, err := store.ApplyDelta(ctx, "clinic-a", "u1", partial)
	require.NoError(t, err)
	require.Equal(t, 2, rec.TotalSessions)
	require.Equal(t, 1, rec.PartialSessions)
	require.Equal(t, 2, rec.Streak)
	require.Equal(t, day(2, 9), rec.LastSessionAt)

	rec, err = store.ApplyDelta(ctx, "clinic-a", "u1", completion("s3", day(3, 9)))
	require.NoError(t, err)
	require.Equal(t, 3, rec.Streak)

	require.Len(t, rec.RecentSessions, 3)
	require.True(t, rec.RecentSessions[1].Partial)
	require.Equal(t, 40, rec.RecentSessions[1].Percent())
}

func TestRecentSessionsCapped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := store.ApplyDelta(ctx, "clinic-a", "u1", completion("s", day(1, 9).Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	rec, err := store.Get(ctx, "clinic-a", "u1")
	require.NoError(t, err)
	require.Len(t, rec.RecentSessions, 10)
	require.Equal(t, 12, rec.TotalSessions)
}

func TestSetCalibrationOptimistic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Expected version 0 creates the record.
	rec, err := store.SetCalibration(ctx, "clinic-a", "u1", catalog.TypeSpeech, catalog.TierChallenging, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.Version)
	require.Equal(t, catalog.TierChallenging, rec.CalibrationFor(catalog.TypeSpeech))
	require.Equal(t, catalog.TierComfortable, rec.CalibrationFor(catalog.TypePhysical))

	// A stale expected version is rejected.
	_, err = store.SetCalibration(ctx, "clinic-a", "u1", catalog.TypeSpeech, catalog.TierTooHard, 0)
	require.ErrorIs(t, err, ErrConflictingUpdate)

	// The fresh version goes through.
	rec, err = store.SetCalibration(ctx, "clinic-a", "u1", catalog.TypeSpeech, catalog.TierTooHard, rec.Version)
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.Version)
	require.Equal(t, catalog.TierTooHard, rec.CalibrationFor(catalog.TypeSpeech))
}

func TestTenantsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.ApplyDelta(ctx, "clinic-a", "u1", completion("s1", day(1, 9)))
	require.NoError(t, err)

	_, err = store.Get(ctx, "clinic-b", "u1")
	require.ErrorIs(t, err, ErrNotFound)
}
