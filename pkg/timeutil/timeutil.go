// Package timeutil provides calendar helpers used by ledger statistics and
// streak bookkeeping. All functions take an explicit location; a nil location
// means UTC.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

const (
	// MonthLayout is the key format for calendar months ("2026-10").
	MonthLayout = "2006-01"

	// DayLayout is the key format for calendar days ("2026-10-18").
	DayLayout = "2006-01-02"
)

func in(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// StartOfDay returns the start of the day (00:00:00) in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := in(t, loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// StartOfMonth returns the first instant of the calendar month in loc.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	l := in(t, loc)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, l.Location())
}

// AddMonths shifts the start of t's month by n calendar months.
// Working from the first of the month avoids time.AddDate normalization
// (Jan 31 + 1 month = Mar 3).
func AddMonths(t time.Time, n int, loc *time.Location) time.Time {
	s := StartOfMonth(t, loc)
	return time.Date(s.Year(), s.Month()+time.Month(n), 1, 0, 0, 0, 0, s.Location())
}

// MonthKey formats the calendar month of t in loc.
func MonthKey(t time.Time, loc *time.Location) string {
	return in(t, loc).Format(MonthLayout)
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return in(t, loc).Format(DayLayout)
}

// TrailingMonths returns the starts of the last n calendar months ending with
// the month of now, oldest first.
func TrailingMonths(now time.Time, n int, loc *time.Location) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = AddMonths(now, i-(n-1), loc)
	}
	return out
}

// IsSameDay checks if two times fall on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return DayKey(t1, loc) == DayKey(t2, loc)
}

// DaysBetween returns the number of calendar days from t1 to t2 in loc.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	d1 := StartOfDay(t1, loc)
	d2 := StartOfDay(t2, loc)
	return int(d2.Sub(d1).Hours() / 24)
}
