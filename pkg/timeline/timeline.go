// Package timeline reconstructs a non-overlapping sequence of atomic
// intervals from overlapping, point-in-time and open-ended records.
//
// Overlaps resolve with last-started-wins: inside a region covered by several
// records, the record with the latest start owns the time. An earlier record
// resumes once the later one ends.
//
// A point record (no end, no duration, not open) holds the time until the
// next record starts. A point logged inside an open sleep span therefore takes
// over from it: the user had not really fallen asleep yet.
package timeline

import (
	"sort"
	"time"
)

// Entry is one raw record projected for timeline building.
type Entry struct {
	RecordID  string
	EventName string
	Category  string
	Degree    string
	Start     time.Time
	// End is the explicit end; zero when the record has none.
	End             time.Time
	DurationMinutes float64
	// Open marks a started record that has not ended yet.
	Open bool
}

// Source identifies the record owning an interval.
type Source struct {
	RecordID    string    `json:"record_id"`
	EventName   string    `json:"event_name"`
	Category    string    `json:"category"`
	Degree      string    `json:"degree,omitempty"`
	RecordStart time.Time `json:"record_start"`
}

// Interval is an atomic [Start, End) slice.
type Interval struct {
	Start           time.Time `json:"start_time"`
	End             time.Time `json:"end_time"`
	DurationMinutes float64   `json:"duration_minutes"`
	Source          Source    `json:"source_event"`
	Unrecorded      bool      `json:"unrecorded,omitempty"`
	// Before and After name the neighbouring events of an unrecorded gap.
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Options describe the query window.
type Options struct {
	WindowStart   time.Time
	WindowEnd     time.Time
	AddUnrecorded bool
	// Now closes open records; zero means the window end.
	Now time.Time
}

type span struct {
	idx   int
	start time.Time
	end   time.Time
	entry Entry
}

// Build returns the ordered atomic intervals of entries within the window.
// With AddUnrecorded the result exactly covers [WindowStart, WindowEnd).
func Build(entries []Entry, opts Options) []Interval {
	ws, we := opts.WindowStart, opts.WindowEnd
	if !we.After(ws) {
		return nil
	}
	spans := resolveSpans(entries, opts)

	bounds := []time.Time{ws, we}
	for _, sp := range spans {
		bounds = append(bounds, sp.start, sp.end)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].Before(bounds[j]) })
	bounds = uniqueTimes(bounds)

	var slices []Interval
	lastOwner := -2
	for i := 0; i+1 < len(bounds); i++ {
		a, b := bounds[i], bounds[i+1]
		owner := ownerOf(spans, a, b)
		if owner == lastOwner && len(slices) > 0 {
			slices[len(slices)-1].End = b
			continue
		}
		lastOwner = owner
		iv := Interval{Start: a, End: b}
		if owner < 0 {
			iv.Unrecorded = true
		} else {
			e := spans[owner].entry
			iv.Source = Source{
				RecordID:    e.RecordID,
				EventName:   e.EventName,
				Category:    e.Category,
				Degree:      e.Degree,
				RecordStart: e.Start,
			}
		}
		slices = append(slices, iv)
	}

	out := make([]Interval, 0, len(slices))
	for i, iv := range slices {
		iv.DurationMinutes = iv.End.Sub(iv.Start).Minutes()
		if iv.Unrecorded {
			if !opts.AddUnrecorded {
				continue
			}
			if i > 0 {
				iv.Before = slices[i-1].Source.EventName
			}
			if i+1 < len(slices) {
				iv.After = slices[i+1].Source.EventName
			}
		}
		out = append(out, iv)
	}
	return out
}

func resolveSpans(entries []Entry, opts Options) []span {
	ws, we := opts.WindowStart, opts.WindowEnd
	now := opts.Now
	if now.IsZero() || now.After(we) {
		now = we
	}
	starts := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		starts = append(starts, e.Start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	spans := make([]span, 0, len(entries))
	for i, e := range entries {
		var end time.Time
		switch {
		case !e.End.IsZero() && e.End.After(e.Start):
			end = e.End
		case e.DurationMinutes > 0:
			end = e.Start.Add(time.Duration(e.DurationMinutes * float64(time.Minute)))
		case e.Open:
			end = now
		default:
			end = nextStart(starts, e.Start, now)
		}
		start := e.Start
		if start.Before(ws) {
			start = ws
		}
		if end.After(we) {
			end = we
		}
		if !end.After(start) {
			continue
		}
		spans = append(spans, span{idx: i, start: start, end: end, entry: e})
	}
	return spans
}

// nextStart returns the first start strictly after t, or limit when none
// comes before it.
func nextStart(sorted []time.Time, t, limit time.Time) time.Time {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].After(t) })
	if i < len(sorted) && sorted[i].Before(limit) {
		return sorted[i]
	}
	return limit
}

// ownerOf returns the index into spans of the latest-started span covering
// [a, b), or -1 for a gap. Ties go to the later input entry.
func ownerOf(spans []span, a, b time.Time) int {
	owner := -1
	for i, sp := range spans {
		if sp.start.After(a) || sp.end.Before(b) {
			continue
		}
		if owner < 0 {
			owner = i
			continue
		}
		best := spans[owner]
		if sp.entry.Start.After(best.entry.Start) ||
			(sp.entry.Start.Equal(best.entry.Start) && sp.idx > best.idx) {
			owner = i
		}
	}
	return owner
}

func uniqueTimes(sorted []time.Time) []time.Time {
	out := sorted[:0]
	for i, t := range sorted {
		if i > 0 && t.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// RecordedMinutes sums the minutes of intervals that belong to a record.
func RecordedMinutes(intervals []Interval) float64 {
	var total float64
	for _, iv := range intervals {
		if !iv.Unrecorded {
			total += iv.DurationMinutes
		}
	}
	return total
}
