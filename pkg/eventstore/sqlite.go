package eventstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	routineagent "github.com/routinebot/RoutineAgent"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const documentsTable = "routine_documents"

// SQLiteDocuments keeps all user documents in one SQLite table.
type SQLiteDocuments struct {
	db   *sql.DB
	path string
}

// NewSQLiteDocuments opens (or creates) the database at path.
func NewSQLiteDocuments(path string) (*SQLiteDocuments, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("eventstore: sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "eventstore: create dir %s failed", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "eventstore: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareDocumentSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteDocuments{db: db, path: path}, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		"PRAGMA busy_timeout=60000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "eventstore: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareDocumentSchema(db *sql.DB) error {
	stmt := `CREATE TABLE IF NOT EXISTS ` + documentsTable + ` (
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, kind)
		);`
	if _, err := db.Exec(stmt); err != nil {
		return errors.Wrap(err, "eventstore: init sqlite schema failed")
	}
	return nil
}

func (s *SQLiteDocuments) Load(ctx context.Context, userID, kind string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, errors.New("eventstore: sqlite documents nil")
	}
	if err := validateUserID(userID); err != nil {
		return nil, false, err
	}
	query := `SELECT payload FROM ` + documentsTable + ` WHERE user_id = ? AND kind = ?`
	var payload string
	err := s.db.QueryRowContext(ctx, query, userID, kind).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		log.Debug().Str("sql", routineagent.FormatSQLForLog(query, userID, kind)).Msg("eventstore: sqlite load failed")
		return nil, false, errors.Wrap(err, "eventstore: sqlite load failed")
	}
	return []byte(payload), true, nil
}

func (s *SQLiteDocuments) Save(ctx context.Context, userID, kind string, payload []byte) error {
	if s == nil || s.db == nil {
		return errors.New("eventstore: sqlite documents nil")
	}
	if err := validateUserID(userID); err != nil {
		return err
	}
	stmt := `INSERT INTO ` + documentsTable + ` (user_id, kind, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	now := time.Now().UnixMilli()
	if _, err := s.db.ExecContext(ctx, stmt, userID, kind, string(payload), now); err != nil {
		log.Debug().Str("sql", routineagent.FormatSQLForLog(stmt, userID, kind, "<payload>", now)).Msg("eventstore: sqlite save failed")
		return errors.Wrap(err, "eventstore: sqlite save failed")
	}
	return nil
}

func (s *SQLiteDocuments) Users(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("eventstore: sqlite documents nil")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM `+documentsTable+` ORDER BY user_id`)
	if err != nil {
		return nil, errors.Wrap(err, "eventstore: sqlite list users failed")
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Wrap(err, "eventstore: scan user id failed")
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "eventstore: iterate users failed")
	}
	return users, nil
}

func (s *SQLiteDocuments) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Name returns the database path for logging.
func (s *SQLiteDocuments) Name() string {
	if s == nil || s.path == "" {
		return "sqlite"
	}
	return s.path
}
