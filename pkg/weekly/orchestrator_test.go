package weekly

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/palette"
)

type stubSummarizer struct {
	mu      sync.Mutex
	result  map[string]any
	err     error
	prompts []string
}

func (s *stubSummarizer) StructuredCall(_ context.Context, prompt string, schema map[string]any, system string, _ float64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schema == nil || system == "" {
		return nil, errors.New("missing schema or system instruction")
	}
	s.prompts = append(s.prompts, prompt)
	return s.result, s.err
}

type stubNotifier struct {
	mu     sync.Mutex
	pushed map[string]eventstore.WeeklyReport
	failOn string
}

func (n *stubNotifier) PushWeekly(_ context.Context, userID string, report eventstore.WeeklyReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if userID == n.failOn {
		return errors.New("push failed")
	}
	if n.pushed == nil {
		n.pushed = map[string]eventstore.WeeklyReport{}
	}
	n.pushed[userID] = report
	return nil
}

func goodResult(n int) map[string]any {
	suggestions := make([]any, 0, n)
	for i := 1; i <= n; i++ {
		suggestions = append(suggestions, map[string]any{
			"rank":   float64(i),
			"title":  fmt.Sprintf("建议%d", i),
			"action": "行动",
			"reason": "原因",
		})
	}
	return map[string]any{
		"summary":                      "本周作息规律",
		"time_allocation":              "工作占比最高",
		"rhythm_insight":               "晨跑稳定",
		"unrecorded_insight":           "晚间未记录较多",
		"highlights":                   "坚持运动",
		"risks":                        "睡眠偏少",
		"quality_score":                float64(8),
		"strategic_action_suggestions": suggestions,
	}
}

// Monday 2025-03-10 09:00; the previous week starts 2025-03-03.
var runClock = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, summarizer *stubSummarizer, notifier Notifier) (*Orchestrator, *eventstore.Store) {
	t.Helper()
	docs, err := eventstore.NewFileDocuments(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileDocuments returned error: %v", err)
	}
	store, err := eventstore.NewStore(docs, eventstore.Options{Now: func() time.Time { return runClock }})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	seq := 0
	var mu sync.Mutex
	orch, err := NewOrchestrator(store, summarizer, palette.NewCalculator(map[string]string{"运动": "橙黄"}), notifier, Options{
		Location: time.UTC,
		Now:      func() time.Time { return runClock },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator returned error: %v", err)
	}
	return orch, store
}

func seedRun(t *testing.T, store *eventstore.Store, userID string) {
	t.Helper()
	def := eventstore.NewDefinition("跑步", runClock)
	def.Category = "运动"
	rec := eventstore.EventRecord{Timestamp: time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC), DurationMinutes: 30}
	if _, err := store.ConfirmRecord(context.Background(), userID, def, rec); err != nil {
		t.Fatalf("ConfirmRecord returned error: %v", err)
	}
}

func TestWindow(t *testing.T) {
	start, end := PreviousWeek(time.Date(2025, 3, 12, 23, 0, 0, 0, time.UTC), time.UTC)
	if !start.Equal(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %v - %v", start, end)
	}
	if got := WeekStart(time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC), time.UTC); !got.Equal(start) {
		t.Fatalf("sunday must belong to the week starting %v, got %v", start, got)
	}
	if !IsMonday(runClock, time.UTC) {
		t.Fatalf("expected monday")
	}
}

func TestGenerateStoresReportWithIDs(t *testing.T) {
	summarizer := &stubSummarizer{result: goodResult(5)}
	orch, store := newTestOrchestrator(t, summarizer, nil)
	ctx := context.Background()
	seedRun(t, store, "u1")

	previous := eventstore.WeeklyReport{
		WeekKey:     "250224",
		Narrative:   eventstore.WeeklyNarrative{Summary: "上周总结"},
		Suggestions: []eventstore.Suggestion{{ID: "old-1", Rank: 1, Title: "早睡", Accepted: true}},
	}
	if err := store.SaveWeeklyReport(ctx, "u1", previous); err != nil {
		t.Fatalf("SaveWeeklyReport returned error: %v", err)
	}

	report, err := orch.Generate(ctx, "u1", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if report.WeekKey != "250303" || report.Error != "" || report.Narrative.QualityScore != 8 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Suggestions) != SuggestionCount {
		t.Fatalf("expected %d suggestions, got %d", SuggestionCount, len(report.Suggestions))
	}
	seen := map[string]bool{}
	for _, s := range report.Suggestions {
		if s.ID == "" || seen[s.ID] || s.Accepted {
			t.Fatalf("suggestion needs a fresh id and accepted=false, got %+v", s)
		}
		seen[s.ID] = true
	}
	if report.MainColor != "橙黄" {
		t.Fatalf("expected main colour 橙黄, got %q", report.MainColor)
	}

	prompt := summarizer.prompts[0]
	for _, want := range []string{"跑步", "未记录", "上周总结", "早睡", `"accepted": true`} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "old-1") {
		t.Fatalf("prompt must not carry stored suggestion ids")
	}

	reports, _ := store.LoadWeeklyReports(ctx, "u1")
	if _, ok := reports.Reports["250303"]; !ok {
		t.Fatalf("report not persisted")
	}
}

func TestGenerateDegradesOnSummarizerError(t *testing.T) {
	cases := map[string]*stubSummarizer{
		"error payload":    {result: map[string]any{"error": "timeout"}},
		"call error":       {err: errors.New("connection reset")},
		"four suggestions": {result: goodResult(4)},
		"empty result":     {result: map[string]any{}},
	}
	for name, summarizer := range cases {
		orch, store := newTestOrchestrator(t, summarizer, nil)
		ctx := context.Background()
		report, err := orch.Generate(ctx, "u1", time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
		if err != nil {
			t.Fatalf("%s: Generate returned error: %v", name, err)
		}
		if report.Error == "" || !report.Narrative.Empty() || report.Narrative.QualityScore != 0 || len(report.Suggestions) != 0 {
			t.Fatalf("%s: expected degraded report, got %+v", name, report)
		}
		reports, _ := store.LoadWeeklyReports(ctx, "u1")
		if stored, ok := reports.Reports["250303"]; !ok || stored.Error == "" {
			t.Fatalf("%s: degraded report must be persisted", name)
		}
	}
}

func TestRunSkipsExistingAndIsolatesFailures(t *testing.T) {
	notifier := &stubNotifier{failOn: "u2"}
	orch, store := newTestOrchestrator(t, &stubSummarizer{result: goodResult(5)}, notifier)
	ctx := context.Background()
	for _, user := range []string{"u1", "u2", "u3"} {
		seedRun(t, store, user)
	}
	if err := store.SaveWeeklyReport(ctx, "u3", eventstore.WeeklyReport{WeekKey: "250303"}); err != nil {
		t.Fatalf("SaveWeeklyReport returned error: %v", err)
	}

	outcomes, err := orch.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %+v", outcomes)
	}
	if outcomes[0].UserID != "u1" || outcomes[0].Err != nil || outcomes[0].Skipped {
		t.Fatalf("unexpected u1 outcome %+v", outcomes[0])
	}
	if outcomes[1].Err == nil {
		t.Fatalf("expected push failure for u2")
	}
	if !outcomes[2].Skipped {
		t.Fatalf("expected u3 to be skipped")
	}
	if _, ok := notifier.pushed["u1"]; !ok {
		t.Fatalf("expected u1 report pushed")
	}

	outcomes, err = orch.Run(ctx, RunOptions{Users: []string{"u3"}, Overwrite: true})
	if err != nil || len(outcomes) != 1 || outcomes[0].Skipped {
		t.Fatalf("overwrite must regenerate, got %+v err=%v", outcomes, err)
	}
}

func TestSchemaRequiresFiveSuggestions(t *testing.T) {
	schema := Schema()
	props := schema["properties"].(map[string]any)
	suggestions := props["strategic_action_suggestions"].(map[string]any)
	if suggestions["minItems"] != SuggestionCount || suggestions["maxItems"] != SuggestionCount {
		t.Fatalf("unexpected suggestion bounds %v", suggestions)
	}
}
