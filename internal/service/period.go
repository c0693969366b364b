package service

import (
	"time"

	"tutor-tasks/internal/model"
)

// StartOfDay returns 00:00:00.000 of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Millisecond)
}

// PeriodFor returns the period containing now for the given frequency:
// the calendar day for daily, the calendar month for monthly.
func PeriodFor(freq model.Frequency, now time.Time) (time.Time, time.Time) {
	if freq == model.FrequencyMonthly {
		year, month, _ := now.Date()
		first := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
		return first, first.AddDate(0, 1, 0).Add(-time.Millisecond)
	}
	return StartOfDay(now), EndOfDay(now)
}

// RenewalWindow is the period given to renewed tasks: from the start of today
// to the end of tomorrow, whatever the recurrence type.
func RenewalWindow(now time.Time) (time.Time, time.Time) {
	start := StartOfDay(now)
	return start, EndOfDay(start.AddDate(0, 0, 1))
}
