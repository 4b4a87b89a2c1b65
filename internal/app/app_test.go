package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/routinebot/RoutineAgent/internal/config"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/llm"
	"github.com/routinebot/RoutineAgent/pkg/weekly"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("FEISHU_APP_ID", "")
	t.Setenv("FEISHU_APP_SECRET", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv(EnvArtifactDir, "")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	cfg.Storage.Root = t.TempDir()
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "db", "routine.sqlite")
	return cfg
}

func TestNewWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if a.Feishu != nil || a.Bot != nil {
		t.Fatalf("feishu must be disabled without credentials")
	}
	if a.Summarizer == nil {
		t.Fatalf("summarizer must exist so a later key rotation can enable it")
	}
	if _, err := a.Listener(); err == nil {
		t.Fatalf("expected listener error without feishu")
	}
	if _, err := New(context.Background(), cfg, Options{RequireFeishu: true}); err == nil {
		t.Fatalf("expected error when feishu is required")
	}
}

func TestSummarizerPicksUpRotatedKey(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{}"}}]}`)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.LLM.BaseURL = server.URL + "/"
	a, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	if _, err := a.Summarizer.StructuredCall(context.Background(), "p", nil, "", 0); !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured before rotation, got %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-rotated")
	if _, err := a.Summarizer.StructuredCall(context.Background(), "p", nil, "", 0); err != nil {
		t.Fatalf("StructuredCall returned error: %v", err)
	}
	if auth != "Bearer sk-rotated" {
		t.Fatalf("expected rotated key on the wire, got %q", auth)
	}
}

func TestWeeklyRunStoresDegradedReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "sqlite"
	a, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	def := eventstore.NewDefinition("喝水", a.Store.Now())
	if _, err := a.Store.ConfirmRecord(ctx, "ou_1", def, eventstore.EventRecord{EventName: "喝水", Timestamp: a.Store.Now()}); err != nil {
		t.Fatalf("ConfirmRecord returned error: %v", err)
	}
	outcomes := a.RunWeekly(ctx, weekly.RunOptions{})
	if len(outcomes) != 1 || outcomes[0].UserID != "ou_1" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
	if !outcomes[0].Degraded || outcomes[0].Err != nil {
		t.Fatalf("expected degraded report without summarizer, got %+v", outcomes[0])
	}
	reports, err := a.Store.LoadWeeklyReports(ctx, "ou_1")
	if err != nil {
		t.Fatalf("LoadWeeklyReports returned error: %v", err)
	}
	if _, ok := reports.Reports[outcomes[0].WeekKey]; !ok {
		t.Fatalf("expected stored report %s", outcomes[0].WeekKey)
	}
}

func TestSchedulerRegistersWeeklyJob(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer a.Close()
	if _, err := a.Scheduler(context.Background()); err != nil {
		t.Fatalf("Scheduler returned error: %v", err)
	}

	a.Config.Schedule.Weekly = "every monday"
	if _, err := a.Scheduler(context.Background()); err == nil {
		t.Fatalf("expected invalid cron spec error")
	}
}

func TestUnknownBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "postgres"
	if _, err := New(context.Background(), cfg, Options{}); err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Fatalf("expected storage backend error, got %v", err)
	}
	cfg = testConfig(t)
	cfg.Session.Backend = "memcached"
	if _, err := New(context.Background(), cfg, Options{}); err == nil || !strings.Contains(err.Error(), "memcached") {
		t.Fatalf("expected session backend error, got %v", err)
	}
	cfg = testConfig(t)
	cfg.Session.Backend = "redis"
	t.Setenv("REDIS_ADDR", "")
	if _, err := New(context.Background(), cfg, Options{}); err == nil {
		t.Fatalf("expected redis address error")
	}
}
