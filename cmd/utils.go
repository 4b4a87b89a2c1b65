package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/routinebot/RoutineAgent/pkg/weekly"
)

// parseDate parses YYYY-MM-DD in loc; empty input yields the zero time.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}

// resolveWindow returns [start, end) from the flags, defaulting to the
// previous ISO week.
func resolveWindow(startFlag, endFlag string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	start, err := parseDate(startFlag, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(endFlag, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	switch {
	case start.IsZero() && end.IsZero():
		start, end = weekly.PreviousWeek(now, loc)
	case end.IsZero():
		end = start.AddDate(0, 0, 7)
	case start.IsZero():
		start = end.AddDate(0, 0, -7)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("--end must be after --start")
	}
	return start, end, nil
}
