// Package checkpoint persists assignment checkpoints and task records so an
// interrupted task can be resumed from its last acknowledged cursor.
//
// Every backend applies the same ordering rule: a checkpoint whose Seq is
// lower than the stored one, or a task record whose Version is lower than
// the stored one, is silently ignored.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// ErrNotFound is returned by Load when no checkpoint exists.
var ErrNotFound = errors.New("checkpoint not found")

// Store is the persistence capability used by the orchestrator.
type Store interface {
	// Save writes cp unless a checkpoint with a higher Seq is stored.
	Save(ctx context.Context, cp types.Checkpoint) error
	// Load returns the latest checkpoint of an assignment or ErrNotFound.
	Load(ctx context.Context, assignmentID string) (types.Checkpoint, error)
	// SaveTask writes rec unless a record with a higher Version is stored.
	SaveTask(ctx context.Context, rec types.TaskRecord) error
	// LoadTasks returns every stored task record.
	LoadTasks(ctx context.Context) ([]types.TaskRecord, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("file store requires a directory")
		}
		return NewFileStore(cfg.Dir)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "vibesurf.db")
		}
		return NewSQLiteStore(ctx, path)
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// stale reports whether an incoming write must be dropped.
func stale(stored, incoming int64) bool {
	return incoming < stored
}
