package eventstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	docs, err := NewFileDocuments(root)
	if err != nil {
		t.Fatalf("NewFileDocuments returned error: %v", err)
	}
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store, err := NewStore(docs, Options{
		Categories: []string{"工作", "运动"},
		Now:        func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	return store, root
}

func TestLoadMissingDocumentsReturnsDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	defs, err := store.LoadDefinitions(ctx, "ou_new")
	if err != nil {
		t.Fatalf("LoadDefinitions returned error: %v", err)
	}
	if len(defs.Definitions) != 0 || len(defs.Categories) != 2 {
		t.Fatalf("unexpected default definitions: %+v", defs)
	}
	records, err := store.LoadRecords(ctx, "ou_new")
	if err != nil {
		t.Fatalf("LoadRecords returned error: %v", err)
	}
	if records.Records == nil || records.ActiveRecords == nil || records.Sequences == nil {
		t.Fatalf("expected initialized collections, got %+v", records)
	}
}

func TestMalformedDocumentIsParseError(t *testing.T) {
	store, root := newTestStore(t)
	ctx := context.Background()
	dir := filepath.Join(root, "ou_bad")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, KindDefinitions+".json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := store.LoadDefinitions(ctx, "ou_bad")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Kind != KindDefinitions {
		t.Fatalf("unexpected kind %q", parseErr.Kind)
	}
	if doc := store.LoadDefinitionsOrDefault(ctx, "ou_bad"); len(doc.Definitions) != 0 {
		t.Fatalf("expected empty default on lenient load")
	}

	_, err = store.ConfirmRecord(ctx, "ou_bad", NewDefinition("喝水", store.Now()), EventRecord{})
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected confirm to refuse malformed document, got %v", err)
	}
}

func TestDefinitionsRoundTripKeepsFields(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.ConfirmRecord(ctx, "ou_a", NewDefinition("喝水", store.Now()), EventRecord{Note: "一杯"}); err != nil {
		t.Fatalf("ConfirmRecord returned error: %v", err)
	}
	first, err := store.LoadDefinitions(ctx, "ou_a")
	if err != nil {
		t.Fatalf("LoadDefinitions returned error: %v", err)
	}
	if err := store.SaveDefinitions(ctx, "ou_a", first); err != nil {
		t.Fatalf("SaveDefinitions returned error: %v", err)
	}
	second, err := store.LoadDefinitions(ctx, "ou_a")
	if err != nil {
		t.Fatalf("LoadDefinitions returned error: %v", err)
	}
	a, b := first.Definitions["喝水"], second.Definitions["喝水"]
	if a.Stats.RecordCount != b.Stats.RecordCount || a.Stats.LastNote != b.Stats.LastNote || a.Type != b.Type {
		t.Fatalf("round trip changed definition: %+v vs %+v", a, b)
	}
	if !first.CreatedTime.Equal(second.CreatedTime) {
		t.Fatalf("created_time changed")
	}
}

func TestConfirmInstantCreatesDefinitionAndSequence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := store.ConfirmRecord(ctx, "ou_a", NewDefinition("喝水", store.Now()), EventRecord{DurationMinutes: 2})
	if err != nil {
		t.Fatalf("ConfirmRecord returned error: %v", err)
	}
	if rec.RecordID != "喝水_00001" {
		t.Fatalf("unexpected record id %q", rec.RecordID)
	}

	// Tamper with stats: ids must not depend on record_count.
	defs, _ := store.LoadDefinitions(ctx, "ou_a")
	defs.Definitions["喝水"].Stats.RecordCount = 0
	if err := store.SaveDefinitions(ctx, "ou_a", defs); err != nil {
		t.Fatalf("SaveDefinitions returned error: %v", err)
	}
	rec2, err := store.ConfirmRecord(ctx, "ou_a", *defs.Definitions["喝水"], EventRecord{})
	if err != nil {
		t.Fatalf("ConfirmRecord returned error: %v", err)
	}
	if rec2.RecordID != "喝水_00002" {
		t.Fatalf("expected independent sequence, got %q", rec2.RecordID)
	}

	defs, _ = store.LoadDefinitions(ctx, "ou_a")
	def := defs.Definitions["喝水"]
	if def.Type != EventInstant {
		t.Fatalf("expected instant type, got %q", def.Type)
	}
	if def.Stats.Duration.Avg != 2 {
		t.Fatalf("expected duration avg 2, got %v", def.Stats.Duration.Avg)
	}
}

func TestConfirmEndClosesActiveStart(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := store.Now()

	sleep := NewDefinition("睡觉", now)
	sleep.Type = EventStart
	sleep.Category = "睡眠"
	startAt := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	if _, err := store.ConfirmRecord(ctx, "ou_a", sleep, EventRecord{Timestamp: startAt}); err != nil {
		t.Fatalf("confirm start: %v", err)
	}
	records, _ := store.LoadRecords(ctx, "ou_a")
	if _, ok := records.ActiveRecords["睡觉"]; !ok {
		t.Fatalf("expected active start record")
	}

	wake := NewDefinition("起床", now)
	wake.Type = EventEnd
	wake.Properties.RelatedStartEvent = "睡觉"
	endAt := startAt.Add(8 * time.Hour)
	rec, err := store.ConfirmRecord(ctx, "ou_a", wake, EventRecord{Timestamp: endAt})
	if err != nil {
		t.Fatalf("confirm end: %v", err)
	}
	if rec.DurationMinutes != 480 {
		t.Fatalf("expected 480 minutes on end record, got %v", rec.DurationMinutes)
	}
	records, _ = store.LoadRecords(ctx, "ou_a")
	if len(records.ActiveRecords) != 0 {
		t.Fatalf("expected active record closed")
	}
	if records.Records[0].EndTime == nil || !records.Records[0].EndTime.Equal(endAt) {
		t.Fatalf("expected start record end time set, got %+v", records.Records[0])
	}
	defs, _ := store.LoadDefinitions(ctx, "ou_a")
	if defs.Definitions["睡觉"].Stats.Duration.Avg != 480 {
		t.Fatalf("expected start definition duration stats")
	}
	if !containsString(defs.Categories, "睡眠") {
		t.Fatalf("expected new category appended, got %v", defs.Categories)
	}
}

func TestSecondStartClosesOpenRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	study := NewDefinition("学习", store.Now())
	study.Type = EventStart
	first := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	second := first.Add(90 * time.Minute)
	if _, err := store.ConfirmRecord(ctx, "ou_a", study, EventRecord{Timestamp: first}); err != nil {
		t.Fatalf("confirm first start: %v", err)
	}
	rec, err := store.ConfirmRecord(ctx, "ou_a", study, EventRecord{Timestamp: second})
	if err != nil {
		t.Fatalf("confirm second start: %v", err)
	}

	records, _ := store.LoadRecords(ctx, "ou_a")
	if len(records.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records.Records))
	}
	closed := records.Records[0]
	if closed.EndTime == nil || !closed.EndTime.Equal(second) || closed.DurationMinutes != 90 {
		t.Fatalf("expected first record closed at second start, got %+v", closed)
	}
	if active := records.ActiveRecords["学习"]; active.RecordID != rec.RecordID {
		t.Fatalf("expected second record active, got %q", active.RecordID)
	}
	defs, _ := store.LoadDefinitions(ctx, "ou_a")
	if got := defs.Definitions["学习"].Stats.Duration.RecentValues; len(got) != 1 || got[0] != 90 {
		t.Fatalf("expected closed duration in stats, got %v", got)
	}
}

type failingSaves struct {
	DocumentStore
	kind string
}

func (f failingSaves) Save(ctx context.Context, userID, kind string, payload []byte) error {
	if kind == f.kind {
		return fmt.Errorf("disk full")
	}
	return f.DocumentStore.Save(ctx, userID, kind, payload)
}

func TestFailedRecordsWriteLeavesStatsUntouched(t *testing.T) {
	docs, err := NewFileDocuments(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileDocuments returned error: %v", err)
	}
	store, err := NewStore(failingSaves{DocumentStore: docs, kind: KindRecords}, Options{})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	ctx := context.Background()
	if _, err := store.ConfirmRecord(ctx, "ou_a", NewDefinition("喝水", store.Now()), EventRecord{}); err == nil {
		t.Fatalf("expected records write failure")
	}
	defs, err := store.LoadDefinitions(ctx, "ou_a")
	if err != nil {
		t.Fatalf("LoadDefinitions returned error: %v", err)
	}
	if _, ok := defs.Definitions["喝水"]; ok {
		t.Fatalf("definition stats must not be saved without the record")
	}
}

func TestCheckCycleResets(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	def := NewDefinition("跑步", store.Now())
	def.Properties.CheckCycle = CycleWeek

	monday := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{monday, monday.AddDate(0, 0, 2), monday.AddDate(0, 0, 7)} {
		if _, err := store.ConfirmRecord(ctx, "ou_a", def, EventRecord{Timestamp: ts, DurationMinutes: 30}); err != nil {
			t.Fatalf("ConfirmRecord returned error: %v", err)
		}
	}
	defs, _ := store.LoadDefinitions(ctx, "ou_a")
	st := defs.Definitions["跑步"].Stats
	if st.RecordCount != 3 || st.CycleCount != 1 || st.LastCycleStart != "2025-03-10" {
		t.Fatalf("unexpected cycle stats %+v", st)
	}
}

func TestConcurrentConfirmsDoNotLoseRecords(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	def := NewDefinition("喝水", store.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConfirmRecord(ctx, "ou_a", def, EventRecord{}); err != nil {
				t.Errorf("ConfirmRecord returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	records, _ := store.LoadRecords(ctx, "ou_a")
	if len(records.Records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(records.Records))
	}
	seen := map[string]bool{}
	for _, rec := range records.Records {
		if seen[rec.RecordID] {
			t.Fatalf("duplicate record id %s", rec.RecordID)
		}
		seen[rec.RecordID] = true
	}
}

func TestRecordsBetween(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	def := NewDefinition("跑步", store.Now())
	day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{-2 * time.Hour, 8 * time.Hour, 30 * time.Hour} {
		if _, err := store.ConfirmRecord(ctx, "ou_a", def, EventRecord{Timestamp: day.Add(offset), DurationMinutes: 180}); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}
	got := store.RecordsBetween(ctx, "ou_a", day, day.Add(24*time.Hour))
	if len(got) != 2 {
		t.Fatalf("expected overlapping and inner record, got %d", len(got))
	}
	if got[0].RecordID != "跑步_00001" {
		t.Fatalf("expected records sorted by start, got %s", got[0].RecordID)
	}
}

func TestUsersListing(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		user := fmt.Sprintf("ou_%d", i)
		if _, err := store.ConfirmRecord(ctx, user, NewDefinition("喝水", store.Now()), EventRecord{}); err != nil {
			t.Fatalf("ConfirmRecord returned error: %v", err)
		}
	}
	users, err := store.Users(ctx)
	if err != nil {
		t.Fatalf("Users returned error: %v", err)
	}
	if len(users) != 3 || users[0] != "ou_0" {
		t.Fatalf("unexpected users %v", users)
	}
}

func TestInvalidUserIDRejected(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.LoadDefinitions(context.Background(), "../etc"); err == nil {
		t.Fatalf("expected invalid user id error")
	}
}
