package routineagent

import (
	"github.com/routinebot/RoutineAgent/internal/env"
)

// EnsureEnv loads the nearest .env file once, searching dirs before the
// working directory.
func EnsureEnv(dirs ...string) error {
	return env.Ensure(dirs...)
}

// EnvString reads an environment variable with a fallback default. It is a
// thin wrapper over internal/env so downstream code can avoid importing
// internal packages directly.
func EnvString(key, defaultValue string) string {
	return env.String(key, defaultValue)
}

// EnvBool parses an environment variable as a boolean.
func EnvBool(key string, defaultValue bool) bool {
	return env.Bool(key, defaultValue)
}

// EnvList splits a comma separated environment variable.
func EnvList(key string) []string {
	return env.List(key)
}

// PersistEnv writes key to the loaded .env file and the running process.
func PersistEnv(key, value string) (string, error) {
	return env.Persist(key, value)
}

// ForceMonday reports whether FORCE_MONDAY asks for an immediate weekly run.
func ForceMonday() bool {
	return EnvBool(EnvForceMonday, false)
}
