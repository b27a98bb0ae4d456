package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
		ok     bool
	}{
		{"07:30", 7, 30, true},
		{"7:5", 7, 5, true},
		{"19:00:00", 19, 0, true},
		{"00:00", 0, 0, true},
		{"23:59", 23, 59, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"-1:10", 0, 0, false},
		{"noon", 0, 0, false},
		{"12", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		hour, minute, err := ParseTimeOfDay(tc.in)
		if !tc.ok {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.hour, hour, "input %q", tc.in)
		assert.Equal(t, tc.minute, minute, "input %q", tc.in)
	}
}

func TestCanonicalTimeOfDay(t *testing.T) {
	assert.Equal(t, "07:05", CanonicalTimeOfDay(7, 5))
	assert.Equal(t, "19:00", CanonicalTimeOfDay(19, 0))
}

func TestParseRecurrence(t *testing.T) {
	rec, err := ParseRecurrence("daily")
	require.NoError(t, err)
	assert.Equal(t, RecurDaily, rec)

	rec, err = ParseRecurrence("Weekdays")
	require.NoError(t, err)
	assert.Equal(t, RecurWeekdays, rec)

	rec, err = ParseRecurrence("")
	require.NoError(t, err)
	assert.Equal(t, RecurDaily, rec)

	_, err = ParseRecurrence("fortnightly")
	assert.Error(t, err)
}

func TestNextOccurrenceDaily(t *testing.T) {
	loc := time.UTC
	// Wednesday 10:00.
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, loc)

	next := NextOccurrence(now, 19, 0, RecurDaily, loc)
	assert.Equal(t, time.Date(2026, time.March, 4, 19, 0, 0, 0, loc), next, "later today stays today")

	next = NextOccurrence(now, 7, 30, RecurDaily, loc)
	assert.Equal(t, time.Date(2026, time.March, 5, 7, 30, 0, 0, loc), next, "earlier today rolls to tomorrow")

	next = NextOccurrence(now, 10, 0, RecurDaily, loc)
	assert.Equal(t, time.Date(2026, time.March, 5, 10, 0, 0, 0, loc), next, "exactly now rolls to tomorrow")
}

func TestNextOccurrenceWeekdays(t *testing.T) {
	loc := time.UTC

	// Friday 23:00 asking for 09:00 lands on Monday, never the weekend.
	friday := time.Date(2026, time.March, 6, 23, 0, 0, 0, loc)
	next := NextOccurrence(friday, 9, 0, RecurWeekdays, loc)
	assert.Equal(t, time.Date(2026, time.March, 9, 9, 0, 0, 0, loc), next)
	assert.Equal(t, time.Monday, next.Weekday())

	// Saturday always lands on Monday.
	saturday := time.Date(2026, time.March, 7, 8, 0, 0, 0, loc)
	next = NextOccurrence(saturday, 9, 0, RecurWeekdays, loc)
	assert.Equal(t, time.Date(2026, time.March, 9, 9, 0, 0, 0, loc), next)

	// Daily does not skip the weekend.
	next = NextOccurrence(friday, 9, 0, RecurDaily, loc)
	assert.Equal(t, time.Date(2026, time.March, 7, 9, 0, 0, 0, loc), next)
}

func TestNextOccurrenceUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	// 18:30 UTC in August is 19:30 in London, so a 19:00 reminder has
	// already passed there and rolls to the next day.
	now := time.Date(2026, time.August, 10, 18, 30, 0, 0, time.UTC)
	next := NextOccurrence(now, 19, 0, RecurDaily, loc)
	assert.Equal(t, time.Date(2026, time.August, 11, 19, 0, 0, 0, loc).UTC(), next.UTC())
}

func TestPolicyDelayDoublesAndCaps(t *testing.T) {
	policy := Policy{MaxAttempts: 6, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.Delay(1))
	assert.Equal(t, 2*time.Second, policy.Delay(2))
	assert.Equal(t, 4*time.Second, policy.Delay(3))
	assert.Equal(t, 5*time.Second, policy.Delay(4), "capped at MaxDelay")
	assert.Equal(t, 5*time.Second, policy.Delay(5))
}
