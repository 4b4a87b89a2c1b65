package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// NextRecordID issues the next id for eventName from the document's own
// monotonic counter.
func NextRecordID(doc *RecordsDoc, eventName string) string {
	if doc.Sequences == nil {
		doc.Sequences = map[string]int{}
	}
	doc.Sequences[eventName]++
	return fmt.Sprintf("%s_%05d", eventName, doc.Sequences[eventName])
}

// ConfirmRecord persists rec under def, creating the definition when it is
// new, and returns the stored record with its id assigned.
func (s *Store) ConfirmRecord(ctx context.Context, userID string, def EventDefinition, rec EventRecord) (EventRecord, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return EventRecord{}, errors.New("eventstore: event name is empty")
	}
	if def.Type == "" {
		def.Type = EventInstant
	}
	if !def.Type.Valid() {
		return EventRecord{}, errors.Errorf("eventstore: invalid event type %q", def.Type)
	}

	var stored EventRecord
	err := s.Update(ctx, userID, func(defs *DefinitionsDoc, records *RecordsDoc) error {
		now := s.now()
		target := mergeDefinition(defs, def, now)
		if target.Category != "" && !containsString(defs.Categories, target.Category) {
			defs.Categories = append(defs.Categories, target.Category)
		}

		rec.EventName = name
		rec.RecordID = NextRecordID(records, name)
		rec.CreateTime = now
		if rec.Timestamp.IsZero() {
			rec.Timestamp = now
		}

		switch target.Type {
		case EventStart:
			// a new start supersedes an open one; the old record ends here
			if _, open := records.ActiveRecords[name]; open {
				closeActive(defs, records, name, rec.Timestamp, now)
			}
			records.ActiveRecords[name] = rec
		case EventEnd:
			closeActiveStart(defs, records, target, &rec, now)
		}
		records.Records = append(records.Records, rec)
		applyRecordStats(target, rec, now)
		stored = rec
		return nil
	})
	if err != nil {
		return EventRecord{}, err
	}
	log.Info().
		Str("user_id", userID).
		Str("event", name).
		Str("record_id", stored.RecordID).
		Msg("eventstore: record confirmed")
	return stored, nil
}

func mergeDefinition(defs *DefinitionsDoc, def EventDefinition, now time.Time) *EventDefinition {
	existing, ok := defs.Definitions[def.Name]
	if !ok {
		created := def
		created.Stats = Stats{}
		created.CreatedTime = now
		created.LastUpdated = now
		defs.Definitions[def.Name] = &created
		return &created
	}
	existing.Type = def.Type
	if def.Category != "" {
		existing.Category = def.Category
	}
	existing.Properties = def.Properties
	existing.LastUpdated = now
	return existing
}

func closeActiveStart(defs *DefinitionsDoc, records *RecordsDoc, endDef *EventDefinition, rec *EventRecord, now time.Time) {
	startName := endDef.Properties.RelatedStartEvent
	if startName == "" {
		return
	}
	minutes, ok := closeActive(defs, records, startName, rec.Timestamp, now)
	if !ok {
		log.Warn().Str("event", endDef.Name).Str("start_event", startName).Msg("eventstore: no active start record to close")
		return
	}
	if rec.DurationMinutes == 0 {
		rec.DurationMinutes = minutes
	}
}

// closeActive ends the open record of startName at endAt (never before its
// own start), rewrites it in the record list and feeds its duration into the
// start definition's stats.
func closeActive(defs *DefinitionsDoc, records *RecordsDoc, startName string, endAt, now time.Time) (float64, bool) {
	active, ok := records.ActiveRecords[startName]
	if !ok {
		return 0, false
	}
	if !endAt.After(active.Timestamp) {
		endAt = active.Timestamp
	}
	minutes := endAt.Sub(active.Timestamp).Minutes()
	active.EndTime = &endAt
	active.DurationMinutes = minutes
	for i := range records.Records {
		if records.Records[i].RecordID == active.RecordID {
			records.Records[i] = active
			break
		}
	}
	delete(records.ActiveRecords, startName)
	if startDef, ok := defs.Definitions[startName]; ok {
		pushDuration(&startDef.Stats, minutes)
		startDef.LastUpdated = now
	}
	return minutes, true
}

func applyRecordStats(def *EventDefinition, rec EventRecord, now time.Time) {
	st := &def.Stats
	st.RecordCount++
	if def.Properties.CheckCycle != CycleNone {
		cycleStart := def.Properties.CheckCycle.Start(rec.Timestamp).Format("2006-01-02")
		if st.LastCycleStart != cycleStart {
			st.LastCycleStart = cycleStart
			st.CycleCount = 0
			st.CycleDuration = 0
		}
		st.CycleCount++
		st.CycleDuration += rec.DurationMinutes
	}
	if rec.DurationMinutes > 0 && def.Type != EventEnd {
		pushDuration(st, rec.DurationMinutes)
	}
	if rec.ProgressValue != 0 {
		st.LastProgressValue = rec.ProgressValue
	}
	if rec.Note != "" {
		st.LastNote = rec.Note
	}
	ts := rec.Timestamp
	st.LastRecordTime = &ts
	st.LastRefreshDate = now.Format("2006-01-02")
}

func pushDuration(st *Stats, minutes float64) {
	st.Duration.RecentValues = append(st.Duration.RecentValues, minutes)
	if n := len(st.Duration.RecentValues); n > RecentDurationLimit {
		st.Duration.RecentValues = st.Duration.RecentValues[n-RecentDurationLimit:]
	}
	var sum float64
	for _, v := range st.Duration.RecentValues {
		sum += v
	}
	st.Duration.Avg = sum / float64(len(st.Duration.RecentValues))
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
