package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// FileStore writes one JSON file per checkpoint and per task record:
//
//	<dir>/checkpoints/<assignment id>.json
//	<dir>/tasks/<task id>.json
//
// Files are replaced atomically through a temp file and rename.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory layout under dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"checkpoints", "tasks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) checkpointPath(id string) string {
	return filepath.Join(s.dir, "checkpoints", safeName(id)+".json")
}

func (s *FileStore) taskPath(id string) string {
	return filepath.Join(s.dir, "tasks", safeName(id)+".json")
}

func (s *FileStore) Save(ctx context.Context, cp types.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.checkpointPath(cp.AssignmentID)
	var cur types.Checkpoint
	switch err := readJSON(path, &cur); {
	case err == nil:
		if stale(cur.Seq, cp.Seq) {
			return nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	return writeJSONAtomic(path, cp)
}

func (s *FileStore) Load(ctx context.Context, assignmentID string) (types.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return types.Checkpoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var cp types.Checkpoint
	if err := readJSON(s.checkpointPath(assignmentID), &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Checkpoint{}, ErrNotFound
		}
		return types.Checkpoint{}, err
	}
	return cp, nil
}

func (s *FileStore) SaveTask(ctx context.Context, rec types.TaskRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.taskPath(rec.Task.ID)
	var cur types.TaskRecord
	switch err := readJSON(path, &cur); {
	case err == nil:
		if stale(cur.Version, rec.Version) {
			return nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}
	return writeJSONAtomic(path, rec)
}

func (s *FileStore) LoadTasks(ctx context.Context) ([]types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "tasks"))
	if err != nil {
		return nil, fmt.Errorf("failed to list task records: %w", err)
	}
	var out []types.TaskRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var rec types.TaskRecord
		if err := readJSON(filepath.Join(s.dir, "tasks", e.Name()), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// Ping checks that the directory is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("store directory unavailable: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tmp.Name()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// safeName keeps ids usable as file names.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}
