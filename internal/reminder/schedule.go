package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeOfDay validates a wall-clock value in HH:MM or HH:MM:SS form.
// Seconds are accepted and dropped; single-digit hours are tolerated.
func ParseTimeOfDay(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, fmt.Errorf("time of day %q is not HH:MM", raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q has an invalid hour", raw)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q has an invalid minute", raw)
	}
	return hour, minute, nil
}

// CanonicalTimeOfDay normalises a parsed wall-clock value to HH:MM so slot
// keys compare stably.
func CanonicalTimeOfDay(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// NextOccurrence computes the first fire time strictly in the future: the
// wall-clock time today in loc, rolled to tomorrow when already past (an
// exact match counts as past and is never fired immediately), then rolled
// beyond the weekend for weekday-only reminders.
func NextOccurrence(now time.Time, hour, minute int, rec Recurrence, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	if rec == RecurWeekdays {
		for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
			next = next.AddDate(0, 0, 1)
		}
	}
	return next
}
