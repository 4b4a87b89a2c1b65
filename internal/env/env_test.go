package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

func TestTypedGetters(t *testing.T) {
	t.Setenv("ROUTINE_TEST_BOOL", "yes")
	t.Setenv("ROUTINE_TEST_LIST", "ou_a, ,ou_b")

	if !Bool("ROUTINE_TEST_BOOL", false) {
		t.Fatalf("Bool expected true")
	}
	if got := String("ROUTINE_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("String fallback mismatch, got %q", got)
	}
	list := List("ROUTINE_TEST_LIST")
	if len(list) != 2 || list[0] != "ou_a" || list[1] != "ou_b" {
		t.Fatalf("List mismatch, got %v", list)
	}
}

func TestPersistToKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("FEISHU_APP_ID=cli_x\nOPENAI_API_KEY=old\n"), 0o600); err != nil {
		t.Fatalf("seed dotenv: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "old")

	if err := PersistTo(path, "OPENAI_API_KEY", "new-key"); err != nil {
		t.Fatalf("PersistTo returned error: %v", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("read dotenv: %v", err)
	}
	if values["FEISHU_APP_ID"] != "cli_x" {
		t.Fatalf("expected untouched key, got %q", values["FEISHU_APP_ID"])
	}
	if values["OPENAI_API_KEY"] != "new-key" {
		t.Fatalf("expected rotated key, got %q", values["OPENAI_API_KEY"])
	}
	if os.Getenv("OPENAI_API_KEY") != "new-key" {
		t.Fatalf("expected process env updated")
	}
}
