package core

import "time"

// Budget periods are calendar months in UTC.

// PeriodStart returns the first instant of the month containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns the first instant of the month after the one containing t.
func PeriodEnd(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, 0)
}

// SamePeriod reports whether a and b fall in the same budget period.
func SamePeriod(a, b time.Time) bool {
	return PeriodStart(a).Equal(PeriodStart(b))
}
