package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrailingMonths(t *testing.T) {
	now := time.Date(2026, 1, 31, 22, 0, 0, 0, time.UTC)

	months := TrailingMonths(now, 6, nil)

	keys := make([]string, len(months))
	for i, m := range months {
		keys[i] = MonthKey(m, nil)
	}
	assert.Equal(t, []string{"2025-08", "2025-09", "2025-10", "2025-11", "2025-12", "2026-01"}, keys)
}

func TestTrailingMonths_RespectsLocation(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2026, 3, 31, 20, 0, 0, 0, time.UTC) // already April 1 in UTC+9

	months := TrailingMonths(now, 1, tokyo)

	assert.Equal(t, "2026-04", MonthKey(months[0], tokyo))
}

func TestAddMonths_NoOverflow(t *testing.T) {
	jan31 := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-02", MonthKey(AddMonths(jan31, 1, nil), nil))
	assert.Equal(t, "2025-12", MonthKey(AddMonths(jan31, -1, nil), nil))
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 10, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2026, 10, 3, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 2, DaysBetween(a, b, nil))
	assert.True(t, IsSameDay(a, a.Add(30*time.Minute), nil))
	assert.Equal(t, "2026-10-01", DayKey(a, nil))
}

func TestTrailingMonths_Zero(t *testing.T) {
	assert.Nil(t, TrailingMonths(time.Now(), 0, nil))
}
