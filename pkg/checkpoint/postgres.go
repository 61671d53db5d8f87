package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

const (
	checkpointsTable = "vibesurf_checkpoints"
	tasksTable       = "vibesurf_task_records"
)

// PostgresStore keeps checkpoints and task records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the tables if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	s := NewPostgresStoreFromPool(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Call EnsureSchema before use.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the checkpoint and task record tables if they don't exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("checkpoint store not initialized")
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + checkpointsTable + ` (
    assignment_id TEXT PRIMARY KEY,
    task_id       TEXT NOT NULL,
    seq           BIGINT NOT NULL,
    data          JSONB NOT NULL,
    captured_at   TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_` + checkpointsTable + `_task ON ` + checkpointsTable + ` (task_id)`,
		`CREATE TABLE IF NOT EXISTS ` + tasksTable + ` (
    task_id    TEXT PRIMARY KEY,
    version    BIGINT NOT NULL,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure checkpoint schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, cp types.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO `+checkpointsTable+` (assignment_id, task_id, seq, data, captured_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (assignment_id) DO UPDATE SET
    task_id = EXCLUDED.task_id,
    seq = EXCLUDED.seq,
    data = EXCLUDED.data,
    captured_at = EXCLUDED.captured_at
WHERE EXCLUDED.seq >= `+checkpointsTable+`.seq`,
		cp.AssignmentID, cp.TaskID, cp.Seq, data, cp.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.AssignmentID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, assignmentID string) (types.Checkpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM `+checkpointsTable+` WHERE assignment_id = $1`, assignmentID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return types.Checkpoint{}, fmt.Errorf("failed to load checkpoint %s: %w", assignmentID, err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return types.Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s: %w", assignmentID, err)
	}
	return cp, nil
}

func (s *PostgresStore) SaveTask(ctx context.Context, rec types.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode task record: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO `+tasksTable+` (task_id, version, data, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (task_id) DO UPDATE SET
    version = EXCLUDED.version,
    data = EXCLUDED.data
WHERE EXCLUDED.version >= `+tasksTable+`.version`,
		rec.Task.ID, rec.Version, data, rec.Task.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", rec.Task.ID, err)
	}
	return nil
}

func (s *PostgresStore) LoadTasks(ctx context.Context) ([]types.TaskRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM `+tasksTable+` ORDER BY created_at, task_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []types.TaskRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		var rec types.TaskRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode task record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
