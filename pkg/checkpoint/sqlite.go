package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	assignment_id TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	data          TEXT NOT NULL,
	captured_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS task_records (
	task_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps checkpoints and task records in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, cp types.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO checkpoints (assignment_id, task_id, seq, data, captured_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(assignment_id) DO UPDATE SET
	task_id = excluded.task_id,
	seq = excluded.seq,
	data = excluded.data,
	captured_at = excluded.captured_at
WHERE excluded.seq >= checkpoints.seq`,
		cp.AssignmentID, cp.TaskID, cp.Seq, string(data), cp.CapturedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.AssignmentID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, assignmentID string) (types.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM checkpoints WHERE assignment_id = ?`, assignmentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("failed to load checkpoint %s: %w", assignmentID, err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return types.Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s: %w", assignmentID, err)
	}
	return cp, nil
}

func (s *SQLiteStore) SaveTask(ctx context.Context, rec types.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode task record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO task_records (task_id, version, data, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(task_id) DO UPDATE SET
	version = excluded.version,
	data = excluded.data
WHERE excluded.version >= task_records.version`,
		rec.Task.ID, rec.Version, string(data), rec.Task.CreatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", rec.Task.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadTasks(ctx context.Context) ([]types.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM task_records ORDER BY created_at, task_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []types.TaskRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		var rec types.TaskRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode task record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
