package env

import (
	"os"
	"path/filepath"
	"testing"
)

func testLoader(t *testing.T, wd string, underTest bool) *Loader {
	t.Helper()
	l := NewLoader()
	l.underTest = func() bool { return underTest }
	l.getwd = func() (string, error) { return wd, nil }
	return l
}

func writeDotEnv(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	return path
}

func unsetAfter(t *testing.T, key string) {
	t.Helper()
	_ = os.Unsetenv(key)
	t.Cleanup(func() { _ = os.Unsetenv(key) })
}

func TestEnsureWalksUpFromConfigDir(t *testing.T) {
	root := t.TempDir()
	want := writeDotEnv(t, filepath.Join(root, "deploy"), "ROUTINE_ENVLOAD_WALK=found\n")
	configDir := filepath.Join(root, "deploy", "conf", "prod")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	unsetAfter(t, "ROUTINE_ENVLOAD_WALK")

	l := testLoader(t, t.TempDir(), false)
	if err := l.Ensure(configDir); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if l.LoadedPath() != want {
		t.Fatalf("expected %s loaded, got %q", want, l.LoadedPath())
	}
	if l.PersistPath() != want {
		t.Fatalf("expected rotations written to the loaded file, got %q", l.PersistPath())
	}
	if os.Getenv("ROUTINE_ENVLOAD_WALK") != "found" {
		t.Fatalf("expected value applied to the process")
	}
}

func TestEnsurePrefersConfigDirOverWorkingDir(t *testing.T) {
	wd := t.TempDir()
	writeDotEnv(t, wd, "ROUTINE_ENVLOAD_PICK=cwd\n")
	configDir := t.TempDir()
	want := writeDotEnv(t, configDir, "ROUTINE_ENVLOAD_PICK=config\n")
	unsetAfter(t, "ROUTINE_ENVLOAD_PICK")

	l := testLoader(t, wd, false)
	if err := l.Ensure(configDir); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if l.LoadedPath() != want || os.Getenv("ROUTINE_ENVLOAD_PICK") != "config" {
		t.Fatalf("expected config dir .env, got %q (%s)", l.LoadedPath(), os.Getenv("ROUTINE_ENVLOAD_PICK"))
	}

	// later calls do not search again
	if err := l.Ensure(wd); err != nil || l.LoadedPath() != want {
		t.Fatalf("expected first load to stick, got %q err=%v", l.LoadedPath(), err)
	}
}

func TestEnsureFallsBackToWorkingDir(t *testing.T) {
	wd := t.TempDir()
	want := writeDotEnv(t, wd, "ROUTINE_ENVLOAD_CWD=1\n")
	unsetAfter(t, "ROUTINE_ENVLOAD_CWD")

	l := testLoader(t, wd, false)
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if l.LoadedPath() != want {
		t.Fatalf("expected %s, got %q", want, l.LoadedPath())
	}
}

func TestEnsureSkipsUnderGoTest(t *testing.T) {
	configDir := t.TempDir()
	path := writeDotEnv(t, configDir, "ROUTINE_ENVLOAD_SKIP=loaded\n")
	unsetAfter(t, "ROUTINE_ENVLOAD_SKIP")
	t.Setenv(EnvLoadInTests, "")

	l := testLoader(t, t.TempDir(), true)
	if err := l.Ensure(configDir); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if l.LoadedPath() != "" || os.Getenv("ROUTINE_ENVLOAD_SKIP") != "" {
		t.Fatalf("expected no .env loading inside tests")
	}
	if l.PersistPath() != path {
		t.Fatalf("expected persist target beside the config, got %q", l.PersistPath())
	}

	t.Setenv(EnvLoadInTests, "1")
	if err := l.Ensure(configDir); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	if l.LoadedPath() != path || os.Getenv("ROUTINE_ENVLOAD_SKIP") != "loaded" {
		t.Fatalf("expected opt-in to load %s, got %q", path, l.LoadedPath())
	}
}

func TestRunningUnderGoTest(t *testing.T) {
	if !runningUnderGoTest() {
		t.Fatalf("expected the test binary to be detected")
	}
}
