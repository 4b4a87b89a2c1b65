package env

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvLoadInTests opts `go test` binaries into .env loading.
const EnvLoadInTests = "ROUTINEAGENT_TEST_DOTENV"

// Loader resolves the bot's .env file. Secrets usually live beside the
// config file, so directories passed to Ensure are searched before the
// working directory, each walking up to the filesystem root. The file that
// was loaded (or, failing that, the first searched directory) is where
// rotated secrets are written back.
type Loader struct {
	mu     sync.Mutex
	done   bool
	path   string
	target string
	err    error

	underTest func() bool
	getwd     func() (string, error)
}

// NewLoader returns a loader bound to the process working directory.
func NewLoader() *Loader {
	return &Loader{underTest: runningUnderGoTest, getwd: os.Getwd}
}

var std = NewLoader()

// Ensure loads the first .env found from dirs or the working directory.
// Only the first successful search applies; later calls are no-ops.
func Ensure(dirs ...string) error {
	return std.Ensure(dirs...)
}

// LoadedPath returns the .env path that was loaded, otherwise "".
func LoadedPath() string {
	return std.LoadedPath()
}

// PersistPath returns the file rotated secrets are written to.
func PersistPath() string {
	return std.PersistPath()
}

func (l *Loader) Ensure(dirs ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return l.err
	}
	roots := l.roots(dirs)
	if l.target == "" && len(roots) > 0 {
		l.target = filepath.Join(roots[0], ".env")
	}
	// test binaries stay hermetic unless asked
	if l.underTest() && os.Getenv(EnvLoadInTests) != "1" {
		return nil
	}
	l.done = true

	path, err := findDotEnv(roots)
	if err != nil {
		l.err = err
		log.Debug().Err(err).Strs("dirs", roots).Msg("env: search .env failed")
		return err
	}
	if path == "" {
		log.Debug().Strs("dirs", roots).Msg("env: no .env found")
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		l.err = err
		log.Warn().Err(err).Str("dotenv", path).Msg("env: load .env failed")
		return err
	}
	l.path = path
	l.target = path
	log.Debug().Str("dotenv", path).Msg("env: loaded .env")
	return nil
}

func (l *Loader) LoadedPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *Loader) PersistPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.target == "" {
		return ".env"
	}
	return l.target
}

// roots lists the absolute search starts: dirs in order, then the working
// directory, without duplicates.
func (l *Loader) roots(dirs []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return
		}
		abs, err := filepath.Abs(dir)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, abs)
	}
	for _, dir := range dirs {
		add(dir)
	}
	if wd, err := l.getwd(); err == nil {
		add(wd)
	}
	return out
}

func runningUnderGoTest() bool {
	if strings.HasSuffix(os.Args[0], ".test") {
		return true
	}
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

func findDotEnv(roots []string) (string, error) {
	visited := map[string]bool{}
	for _, dir := range roots {
		for !visited[dir] {
			visited[dir] = true
			candidate := filepath.Join(dir, ".env")
			info, err := os.Stat(candidate)
			switch {
			case err == nil && !info.IsDir():
				return candidate, nil
			case err != nil && !errors.Is(err, os.ErrNotExist):
				return "", err
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return "", nil
}
