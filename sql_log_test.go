package routineagent

import (
	"strings"
	"testing"
	"time"
)

func TestFormatSQLForLog(t *testing.T) {
	got := FormatSQLForLog("SELECT payload\n  FROM documents WHERE user_id = ? AND kind = ?", "ou_1", "event_records")
	want := "SELECT payload FROM documents WHERE user_id = 'ou_1' AND kind = 'event_records'"
	if got != want {
		t.Fatalf("unexpected sql\n got: %s\nwant: %s", got, want)
	}

	got = FormatSQLForLog("DELETE FROM documents WHERE user_id = ?", "o'brien", 3, nil)
	if got != "DELETE FROM documents WHERE user_id = 'o''brien' /* args: 3, NULL */" {
		t.Fatalf("unexpected sql with extra args: %s", got)
	}
}

func TestFormatSQLArgTruncatesPayloads(t *testing.T) {
	long := strings.Repeat("喝", maxLoggedArg+10)
	got := FormatSQLArg(long)
	if !strings.HasSuffix(got, "…'") {
		t.Fatalf("expected truncated payload, got %s", got)
	}
	ts := time.Date(2025, 3, 5, 7, 0, 0, 0, time.UTC)
	if got := FormatSQLArg(ts); got != "'2025-03-05T07:00:00Z'" {
		t.Fatalf("unexpected time arg %s", got)
	}
}
