package timeline

import (
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
)

// FromRecords projects stored records into timeline entries, resolving the
// category from the definitions and the open flag from the active records.
func FromRecords(records []eventstore.EventRecord, defs *eventstore.DefinitionsDoc, active *eventstore.RecordsDoc) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entry := Entry{
			RecordID:        rec.RecordID,
			EventName:       rec.EventName,
			Degree:          rec.Degree,
			Start:           rec.Timestamp,
			DurationMinutes: rec.DurationMinutes,
			Open:            active.IsActive(rec.RecordID),
		}
		if rec.EndTime != nil {
			entry.End = *rec.EndTime
		}
		if defs != nil {
			if def, ok := defs.Definitions[rec.EventName]; ok {
				entry.Category = def.Category
				// end markers only close their start record
				if def.Type == eventstore.EventEnd {
					continue
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
