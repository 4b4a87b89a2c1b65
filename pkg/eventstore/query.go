package eventstore

import (
	"context"
	"sort"
	"time"
)

// RecordsBetween returns the records whose span intersects [start, end),
// sorted by start time. Open start records count as running until end.
func (s *Store) RecordsBetween(ctx context.Context, userID string, start, end time.Time) []EventRecord {
	if !end.After(start) {
		return nil
	}
	doc := s.LoadRecordsOrDefault(ctx, userID)
	out := make([]EventRecord, 0, len(doc.Records))
	for _, rec := range doc.Records {
		if !rec.Timestamp.Before(end) {
			continue
		}
		recEnd, ok := rec.End()
		switch {
		case ok:
			if !recEnd.After(start) {
				continue
			}
		case doc.IsActive(rec.RecordID):
			// still running
		default:
			if rec.Timestamp.Before(start) {
				continue
			}
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// SortedDefinitions returns definitions ordered by category then by most
// recent record.
func SortedDefinitions(doc *DefinitionsDoc) []*EventDefinition {
	if doc == nil {
		return nil
	}
	out := make([]*EventDefinition, 0, len(doc.Definitions))
	for _, def := range doc.Definitions {
		out = append(out, def)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		ti, tj := lastRecordUnix(out[i]), lastRecordUnix(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func lastRecordUnix(def *EventDefinition) int64 {
	if def.Stats.LastRecordTime == nil {
		return 0
	}
	return def.Stats.LastRecordTime.Unix()
}
