package weekly

import (
	"bytes"
	"context"
	"time"

	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/palette"
	"github.com/routinebot/RoutineAgent/pkg/stats"
	"github.com/routinebot/RoutineAgent/pkg/timeline"
)

// Analysis is the derived view of one user's window.
type Analysis struct {
	Start      time.Time
	End        time.Time
	Records    []eventstore.EventRecord
	Intervals  []timeline.Interval
	Groups     []stats.GroupStats
	Totals     []stats.CategoryTotal
	Color      palette.Result
	AtomicCSV  string
	SummaryCSV string
}

// Analyze builds the timeline, statistics and colour blend of [start, end).
// Malformed documents are logged and treated as empty.
func Analyze(ctx context.Context, store *eventstore.Store, calc *palette.Calculator, userID string, start, end time.Time, loc *time.Location) (*Analysis, error) {
	defs := store.LoadDefinitionsOrDefault(ctx, userID)
	active := store.LoadRecordsOrDefault(ctx, userID)
	records := store.RecordsBetween(ctx, userID, start, end)

	now := store.Now()
	intervals := timeline.Build(timeline.FromRecords(records, defs, active), timeline.Options{
		WindowStart:   start,
		WindowEnd:     end,
		AddUnrecorded: true,
		Now:           now,
	})
	groups := stats.Aggregate(intervals, defs)
	totals := stats.CategoryTotals(intervals, end.Sub(start).Minutes())
	color := calc.Blend(stats.MinutesByCategory(totals))

	var atomic, summary bytes.Buffer
	if err := stats.WriteAtomicCSV(&atomic, intervals, loc); err != nil {
		return nil, err
	}
	if err := stats.WriteSummaryCSV(&summary, groups, totals, loc); err != nil {
		return nil, err
	}
	return &Analysis{
		Start:      start,
		End:        end,
		Records:    records,
		Intervals:  intervals,
		Groups:     groups,
		Totals:     totals,
		Color:      color,
		AtomicCSV:  atomic.String(),
		SummaryCSV: summary.String(),
	}, nil
}
