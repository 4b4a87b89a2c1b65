package stats

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/routinebot/RoutineAgent/pkg/timeline"
)

const csvTimeLayout = "2006-01-02 15:04"

// WriteAtomicCSV renders the atomic timeline, one interval per row.
func WriteAtomicCSV(w io.Writer, intervals []timeline.Interval, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	header := []string{"start_time", "end_time", "duration_minutes", "event_name", "category", "degree", "unrecorded", "before", "after"}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "stats: write atomic csv header failed")
	}
	for _, iv := range intervals {
		row := []string{
			iv.Start.In(loc).Format(csvTimeLayout),
			iv.End.In(loc).Format(csvTimeLayout),
			formatMinutes(iv.DurationMinutes),
			iv.Source.EventName,
			iv.Source.Category,
			iv.Source.Degree,
			strconv.FormatBool(iv.Unrecorded),
			iv.Before,
			iv.After,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "stats: write atomic csv row failed")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "stats: flush atomic csv failed")
}

// WriteSummaryCSV renders grouped statistics followed by the category totals.
func WriteSummaryCSV(w io.Writer, groups []GroupStats, totals []CategoryTotal, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	header := []string{"category", "event_name", "degree", "count", "total_minutes", "avg_minutes", "min_minutes", "max_minutes", "max_time", "avg_interval_minutes"}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "stats: write summary csv header failed")
	}
	for _, g := range groups {
		maxTime := ""
		if !g.MaxTime.IsZero() {
			maxTime = g.MaxTime.In(loc).Format(csvTimeLayout)
		}
		row := []string{
			g.Category,
			g.EventName,
			g.Degree,
			strconv.Itoa(g.Count),
			formatMinutes(g.TotalMinutes),
			formatMinutes(g.AvgMinutes),
			formatMinutes(g.MinMinutes),
			formatMinutes(g.MaxMinutes),
			maxTime,
			formatMinutes(g.DisplayInterval),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "stats: write summary csv row failed")
		}
	}
	if len(totals) > 0 {
		if err := cw.Write([]string{"category_total", "minutes", "percent"}); err != nil {
			return errors.Wrap(err, "stats: write category header failed")
		}
		for _, total := range totals {
			if err := cw.Write([]string{total.Category, formatMinutes(total.Minutes), total.Percent.StringFixed(1)}); err != nil {
				return errors.Wrap(err, "stats: write category row failed")
			}
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "stats: flush summary csv failed")
}

// formatMinutes renders NaN and infinities as an empty cell.
func formatMinutes(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
