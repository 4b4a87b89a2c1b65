package eventstore

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrSuggestionNotFound is returned when toggling an unknown suggestion.
var ErrSuggestionNotFound = errors.New("eventstore: suggestion not found")

// LoadWeeklyReports returns the user's weekly report map (empty when absent).
func (s *Store) LoadWeeklyReports(ctx context.Context, userID string) (*WeeklyReportsDoc, error) {
	raw, found, err := s.docs.Load(ctx, userID, KindWeeklyReports)
	if err != nil {
		return nil, err
	}
	doc := &WeeklyReportsDoc{UserID: userID, Reports: map[string]*WeeklyReport{}}
	if !found {
		return doc, nil
	}
	if err := decodeDocument(userID, KindWeeklyReports, raw, doc); err != nil {
		return nil, err
	}
	if doc.Reports == nil {
		doc.Reports = map[string]*WeeklyReport{}
	}
	return doc, nil
}

// SaveWeeklyReport stores report under its week key, replacing any previous
// entry for the same week.
func (s *Store) SaveWeeklyReport(ctx context.Context, userID string, report WeeklyReport) error {
	if report.WeekKey == "" {
		return errors.New("eventstore: weekly report without week key")
	}
	return s.updateWeekly(ctx, userID, func(doc *WeeklyReportsDoc) error {
		stored := report
		doc.Reports[report.WeekKey] = &stored
		return nil
	})
}

// ToggleSuggestion flips the stored accepted flag of one suggestion and
// returns the new value. The flag is read inside the user's lock, so cards
// showing an outdated state still flip the stored one.
func (s *Store) ToggleSuggestion(ctx context.Context, userID, weekKey, suggestionID string) (*WeeklyReport, bool, error) {
	var (
		updated  *WeeklyReport
		accepted bool
	)
	err := s.updateWeekly(ctx, userID, func(doc *WeeklyReportsDoc) error {
		report, ok := doc.Reports[weekKey]
		if !ok {
			return errors.Wrapf(ErrSuggestionNotFound, "week %s", weekKey)
		}
		for i := range report.Suggestions {
			if report.Suggestions[i].ID == suggestionID {
				accepted = !report.Suggestions[i].Accepted
				report.Suggestions[i].Accepted = accepted
				copied := *report
				updated = &copied
				return nil
			}
		}
		return errors.Wrapf(ErrSuggestionNotFound, "id %s", suggestionID)
	})
	if err != nil {
		return nil, false, err
	}
	log.Info().Str("user_id", userID).Str("week_key", weekKey).Str("suggestion_id", suggestionID).
		Bool("accepted", accepted).Msg("eventstore: suggestion feedback updated")
	return updated, accepted, nil
}

// OrderedWeekKeys returns the stored week keys in ascending order.
func (d *WeeklyReportsDoc) OrderedWeekKeys() []string {
	keys := make([]string, 0, len(d.Reports))
	for key := range d.Reports {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) updateWeekly(ctx context.Context, userID string, fn func(doc *WeeklyReportsDoc) error) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	doc, err := s.LoadWeeklyReports(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	doc.UserID = userID
	doc.LastUpdated = s.now()
	raw, err := encodeDocument(doc)
	if err != nil {
		return errors.Wrap(err, "eventstore: encode weekly reports failed")
	}
	return s.docs.Save(ctx, userID, KindWeeklyReports, raw)
}
