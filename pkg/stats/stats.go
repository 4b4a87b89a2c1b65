// Package stats aggregates atomic timelines and raw records into per-event
// duration and rhythm statistics.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/timeline"
)

// Uncategorized labels events without a category.
const Uncategorized = "未分类"

// GroupStats summarizes one (category, event, degree) group. Interval fields
// are NaN when fewer than two occurrences exist.
type GroupStats struct {
	Category     string
	EventName    string
	Degree       string
	Count        int
	TotalMinutes float64
	AvgMinutes   float64
	MinMinutes   float64
	MaxMinutes   float64
	// MaxTime is the start of the longest occurrence.
	MaxTime time.Time

	DegreeInterval   float64
	EventInterval    float64
	CategoryInterval float64
	// DisplayInterval follows the definition's interval_type; NaN for ignore.
	DisplayInterval float64
	IntervalType    eventstore.IntervalType
}

// HasDisplayInterval reports whether an interval should be shown.
func (g GroupStats) HasDisplayInterval() bool {
	return !math.IsNaN(g.DisplayInterval)
}

type occurrence struct {
	recordID string
	category string
	event    string
	degree   string
	start    time.Time
	minutes  float64
}

// Aggregate groups the recorded intervals of a timeline. Pieces of one record
// split by overlaps count as a single occurrence.
func Aggregate(intervals []timeline.Interval, defs *eventstore.DefinitionsDoc) []GroupStats {
	byRecord := make(map[string]*occurrence)
	order := make([]string, 0)
	for _, iv := range intervals {
		if iv.Unrecorded {
			continue
		}
		src := iv.Source
		occ, ok := byRecord[src.RecordID]
		if !ok {
			occ = &occurrence{
				recordID: src.RecordID,
				category: categoryOf(src.Category),
				event:    src.EventName,
				degree:   src.Degree,
				start:    src.RecordStart,
			}
			byRecord[src.RecordID] = occ
			order = append(order, src.RecordID)
		}
		occ.minutes += iv.DurationMinutes
	}
	occs := make([]occurrence, 0, len(order))
	for _, id := range order {
		occs = append(occs, *byRecord[id])
	}
	return aggregate(occs, defs)
}

// AggregateRecords groups raw records by their own durations, for call sites
// that do not build a timeline.
func AggregateRecords(records []eventstore.EventRecord, defs *eventstore.DefinitionsDoc) []GroupStats {
	occs := make([]occurrence, 0, len(records))
	for _, rec := range records {
		category := ""
		if defs != nil {
			if def, ok := defs.Definitions[rec.EventName]; ok {
				category = def.Category
			}
		}
		minutes := rec.DurationMinutes
		if end, ok := rec.End(); ok && minutes == 0 {
			minutes = end.Sub(rec.Timestamp).Minutes()
		}
		occs = append(occs, occurrence{
			recordID: rec.RecordID,
			category: categoryOf(category),
			event:    rec.EventName,
			degree:   rec.Degree,
			start:    rec.Timestamp,
			minutes:  minutes,
		})
	}
	return aggregate(occs, defs)
}

type groupKey struct {
	category string
	event    string
	degree   string
}

func aggregate(occs []occurrence, defs *eventstore.DefinitionsDoc) []GroupStats {
	groups := make(map[groupKey][]occurrence)
	degreeStarts := make(map[[2]string][]time.Time)
	eventStarts := make(map[string][]time.Time)
	categoryStarts := make(map[string][]time.Time)
	for _, occ := range occs {
		key := groupKey{occ.category, occ.event, occ.degree}
		groups[key] = append(groups[key], occ)
		degreeStarts[[2]string{occ.event, occ.degree}] = append(degreeStarts[[2]string{occ.event, occ.degree}], occ.start)
		eventStarts[occ.event] = append(eventStarts[occ.event], occ.start)
		categoryStarts[occ.category] = append(categoryStarts[occ.category], occ.start)
	}

	out := make([]GroupStats, 0, len(groups))
	for key, items := range groups {
		g := GroupStats{
			Category:   key.category,
			EventName:  key.event,
			Degree:     key.degree,
			Count:      len(items),
			MinMinutes: math.Inf(1),
			MaxMinutes: -1,
		}
		for _, occ := range items {
			g.TotalMinutes += occ.minutes
			if occ.minutes < g.MinMinutes {
				g.MinMinutes = occ.minutes
			}
			if occ.minutes > g.MaxMinutes {
				g.MaxMinutes = occ.minutes
				g.MaxTime = occ.start
			}
		}
		g.AvgMinutes = g.TotalMinutes / float64(g.Count)
		g.DegreeInterval = AverageInterval(degreeStarts[[2]string{key.event, key.degree}])
		g.EventInterval = AverageInterval(eventStarts[key.event])
		g.CategoryInterval = AverageInterval(categoryStarts[key.category])
		g.IntervalType = intervalTypeOf(defs, key.event)
		switch g.IntervalType {
		case eventstore.IntervalEvent:
			g.DisplayInterval = g.EventInterval
		case eventstore.IntervalIgnore:
			g.DisplayInterval = math.NaN()
		default:
			g.DisplayInterval = g.DegreeInterval
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].TotalMinutes != out[j].TotalMinutes {
			return out[i].TotalMinutes > out[j].TotalMinutes
		}
		if out[i].EventName != out[j].EventName {
			return out[i].EventName < out[j].EventName
		}
		return out[i].Degree < out[j].Degree
	})
	return out
}

// AverageInterval is the mean gap in minutes between consecutive starts. It
// returns NaN for fewer than two starts.
func AverageInterval(starts []time.Time) float64 {
	if len(starts) < 2 {
		return math.NaN()
	}
	sorted := append([]time.Time(nil), starts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	var sum float64
	for i := 1; i < len(sorted); i++ {
		sum += sorted[i].Sub(sorted[i-1]).Minutes()
	}
	return sum / float64(len(sorted)-1)
}

func intervalTypeOf(defs *eventstore.DefinitionsDoc, event string) eventstore.IntervalType {
	if defs == nil {
		return eventstore.IntervalDegree
	}
	def, ok := defs.Definitions[event]
	if !ok {
		return eventstore.IntervalDegree
	}
	return def.Properties.EffectiveIntervalType()
}

func categoryOf(category string) string {
	if category == "" {
		return Uncategorized
	}
	return category
}
