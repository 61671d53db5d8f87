package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]types.Checkpoint
	tasks       map[string]types.TaskRecord
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]types.Checkpoint),
		tasks:       make(map[string]types.TaskRecord),
	}
}

func (s *MemoryStore) Save(ctx context.Context, cp types.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.checkpoints[cp.AssignmentID]; ok && stale(cur.Seq, cp.Seq) {
		return nil
	}
	s.checkpoints[cp.AssignmentID] = cp
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, assignmentID string) (types.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return types.Checkpoint{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[assignmentID]
	if !ok {
		return types.Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (s *MemoryStore) SaveTask(ctx context.Context, rec types.TaskRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[rec.Task.ID]; ok && stale(cur.Version, rec.Version) {
		return nil
	}
	s.tasks[rec.Task.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) LoadTasks(ctx context.Context) ([]types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TaskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		out = append(out, cloneRecord(rec))
	}
	sortRecords(out)
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func cloneRecord(rec types.TaskRecord) types.TaskRecord {
	v := types.TaskView{Task: rec.Task, Assignments: rec.Assignments}.Clone()
	return types.TaskRecord{Task: v.Task, Assignments: v.Assignments, Version: rec.Version}
}

// sortRecords orders records by creation time, oldest first.
func sortRecords(recs []types.TaskRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Task.CreatedAt.Equal(recs[j].Task.CreatedAt) {
			return recs[i].Task.ID < recs[j].Task.ID
		}
		return recs[i].Task.CreatedAt.Before(recs[j].Task.CreatedAt)
	})
}
