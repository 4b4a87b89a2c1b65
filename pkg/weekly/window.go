package weekly

import (
	"time"
)

// WeekStart returns the Monday 00:00 of the ISO week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// PreviousWeek returns the [start, end) window of the ISO week before the
// one containing now.
func PreviousWeek(now time.Time, loc *time.Location) (time.Time, time.Time) {
	end := WeekStart(now, loc)
	return end.AddDate(0, 0, -7), end
}

// IsMonday reports whether now falls on a Monday in loc.
func IsMonday(now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Weekday() == time.Monday
}
