package eventstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteDocumentsBackend(t *testing.T) {
	docs, err := NewSQLiteDocuments(filepath.Join(t.TempDir(), "routine.sqlite"))
	if err != nil {
		t.Fatalf("NewSQLiteDocuments returned error: %v", err)
	}
	defer docs.Close()

	store, err := NewStore(docs, Options{})
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	ctx := context.Background()
	def := NewDefinition("阅读", time.Now())
	def.Category = "学习"
	for i := 0; i < 2; i++ {
		if _, err := store.ConfirmRecord(ctx, "ou_sql", def, EventRecord{DurationMinutes: 40}); err != nil {
			t.Fatalf("ConfirmRecord returned error: %v", err)
		}
	}
	records, err := store.LoadRecords(ctx, "ou_sql")
	if err != nil {
		t.Fatalf("LoadRecords returned error: %v", err)
	}
	if len(records.Records) != 2 || records.Sequences["阅读"] != 2 {
		t.Fatalf("unexpected records doc %+v", records)
	}
	users, err := store.Users(ctx)
	if err != nil {
		t.Fatalf("Users returned error: %v", err)
	}
	if len(users) != 1 || users[0] != "ou_sql" {
		t.Fatalf("unexpected users %v", users)
	}
}
