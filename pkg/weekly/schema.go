package weekly

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
)

// SuggestionCount is the exact number of suggestions a report must carry.
const SuggestionCount = 5

var narrativeFields = []string{
	"summary",
	"time_allocation",
	"rhythm_insight",
	"unrecorded_insight",
	"highlights",
	"risks",
}

// Schema is the JSON schema the summarizer must satisfy.
func Schema() map[string]any {
	properties := map[string]any{}
	required := []any{}
	for _, field := range narrativeFields {
		properties[field] = map[string]any{"type": "string"}
		required = append(required, field)
	}
	properties["quality_score"] = map[string]any{
		"type":        "integer",
		"description": "0-10, how well the records support the analysis",
	}
	properties["strategic_action_suggestions"] = map[string]any{
		"type":     "array",
		"minItems": SuggestionCount,
		"maxItems": SuggestionCount,
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"rank":   map[string]any{"type": "integer"},
				"title":  map[string]any{"type": "string"},
				"action": map[string]any{"type": "string"},
				"reason": map[string]any{"type": "string"},
			},
			"required":             []any{"rank", "title", "action", "reason"},
			"additionalProperties": false,
		},
	}
	required = append(required, "quality_score", "strategic_action_suggestions")
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

type summarizerResult struct {
	eventstore.WeeklyNarrative
	Suggestions []struct {
		Rank   int    `json:"rank"`
		Title  string `json:"title"`
		Action string `json:"action"`
		Reason string `json:"reason"`
	} `json:"strategic_action_suggestions"`
}

// decodeResult validates a summarizer reply. An {"error": ...} payload or a
// reply that does not carry exactly SuggestionCount suggestions is rejected.
func decodeResult(raw map[string]any, newID func() string) (eventstore.WeeklyNarrative, []eventstore.Suggestion, error) {
	if raw == nil {
		return eventstore.WeeklyNarrative{}, nil, errors.New("weekly: empty summarizer result")
	}
	if msg, ok := raw["error"]; ok {
		return eventstore.WeeklyNarrative{}, nil, errors.Errorf("weekly: summarizer error: %v", msg)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return eventstore.WeeklyNarrative{}, nil, errors.Wrap(err, "weekly: re-encode result failed")
	}
	var res summarizerResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return eventstore.WeeklyNarrative{}, nil, errors.Wrap(err, "weekly: result does not match schema")
	}
	if len(res.Suggestions) != SuggestionCount {
		return eventstore.WeeklyNarrative{}, nil, errors.Errorf("weekly: expected %d suggestions, got %d", SuggestionCount, len(res.Suggestions))
	}
	if res.WeeklyNarrative.Empty() {
		return eventstore.WeeklyNarrative{}, nil, errors.New("weekly: result has no narrative")
	}
	if res.QualityScore < 0 {
		res.QualityScore = 0
	}
	if res.QualityScore > 10 {
		res.QualityScore = 10
	}
	suggestions := make([]eventstore.Suggestion, 0, len(res.Suggestions))
	for i, s := range res.Suggestions {
		if strings.TrimSpace(s.Title) == "" {
			return eventstore.WeeklyNarrative{}, nil, errors.Errorf("weekly: suggestion %d has no title", i+1)
		}
		rank := s.Rank
		if rank <= 0 {
			rank = i + 1
		}
		suggestions = append(suggestions, eventstore.Suggestion{
			ID:     newID(),
			Rank:   rank,
			Title:  strings.TrimSpace(s.Title),
			Action: strings.TrimSpace(s.Action),
			Reason: strings.TrimSpace(s.Reason),
		})
	}
	return res.WeeklyNarrative, suggestions, nil
}
