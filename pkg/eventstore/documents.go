package eventstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Document kinds persisted per user.
const (
	KindDefinitions   = "event_definitions"
	KindRecords       = "event_records"
	KindWeeklyReports = "weekly_reports"
)

// DocumentStore is the raw per-user key-value persistence behind Store.
type DocumentStore interface {
	// Load returns the document payload; found is false when nothing was saved yet.
	Load(ctx context.Context, userID, kind string) (payload []byte, found bool, err error)
	Save(ctx context.Context, userID, kind string, payload []byte) error
	// Users lists user ids that own at least one document.
	Users(ctx context.Context) ([]string, error)
	Close() error
}

// FileDocuments stores each document as <root>/<user_id>/<kind>.json.
type FileDocuments struct {
	root string
}

// NewFileDocuments creates the root directory if needed.
func NewFileDocuments(root string) (*FileDocuments, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("eventstore: file root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "eventstore: create root %s failed", root)
	}
	return &FileDocuments{root: root}, nil
}

func (f *FileDocuments) path(userID, kind string) (string, error) {
	if err := validateUserID(userID); err != nil {
		return "", err
	}
	return filepath.Join(f.root, userID, kind+".json"), nil
}

func (f *FileDocuments) Load(_ context.Context, userID, kind string) ([]byte, bool, error) {
	path, err := f.path(userID, kind)
	if err != nil {
		return nil, false, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "eventstore: read %s failed", path)
	}
	return raw, true, nil
}

func (f *FileDocuments) Save(_ context.Context, userID, kind string, payload []byte) error {
	path, err := f.path(userID, kind)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "eventstore: create dir %s failed", dir)
	}
	tmp, err := os.CreateTemp(dir, kind+"-*.tmp")
	if err != nil {
		return errors.Wrap(err, "eventstore: create temp file failed")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "eventstore: write temp file failed")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "eventstore: close temp file failed")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "eventstore: replace %s failed", path)
	}
	return nil
}

func (f *FileDocuments) Users(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "eventstore: list users failed")
	}
	users := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && validateUserID(entry.Name()) == nil {
			users = append(users, entry.Name())
		}
	}
	sort.Strings(users)
	return users, nil
}

func (f *FileDocuments) Close() error { return nil }

func validateUserID(userID string) error {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return errors.New("eventstore: empty user id")
	}
	if trimmed != userID || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return errors.Errorf("eventstore: invalid user id %q", userID)
	}
	return nil
}
