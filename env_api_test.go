package routineagent

import "testing"

func TestForceMonday(t *testing.T) {
	t.Setenv(EnvForceMonday, "yes")
	if !ForceMonday() {
		t.Fatalf("expected FORCE_MONDAY=yes to force a run")
	}
	t.Setenv(EnvForceMonday, "0")
	if ForceMonday() {
		t.Fatalf("expected FORCE_MONDAY=0 to disable")
	}
}
