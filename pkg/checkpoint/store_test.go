package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// backends returns every store reachable in this environment.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	out := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "state.db"))
			require.NoError(t, err)
			return s
		},
	}
	if addr := os.Getenv("VIBESURF_TEST_REDIS_ADDR"); addr != "" {
		out["redis"] = func(t *testing.T) Store {
			s, err := NewRedisStore(context.Background(), addr, "vibesurf-test-"+uuid.NewString()[:8])
			require.NoError(t, err)
			return s
		}
	}
	if dsn := os.Getenv("VIBESURF_TEST_POSTGRES_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Store {
			s, err := NewPostgresStore(context.Background(), dsn)
			require.NoError(t, err)
			return s
		}
	}
	return out
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		cp := types.Checkpoint{
			AssignmentID: "a-" + uuid.NewString(),
			TaskID:       "t1",
			Cursor:       `{"step":3,"url":"https://example.com"}`,
			CapturedAt:   time.Now().UTC().Truncate(time.Millisecond),
			TaskStatus:   types.StatusRunning,
			Seq:          3,
		}
		require.NoError(t, s.Save(ctx, cp))

		got, err := s.Load(ctx, cp.AssignmentID)
		require.NoError(t, err)
		assert.Equal(t, cp.Cursor, got.Cursor)
		assert.Equal(t, cp.Seq, got.Seq)
		assert.Equal(t, cp.TaskStatus, got.TaskStatus)
		assert.True(t, cp.CapturedAt.Equal(got.CapturedAt))
	})
}

func TestLoadMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Load(context.Background(), "missing-"+uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLowerSeqIsIgnored(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id := "a-" + uuid.NewString()

		require.NoError(t, s.Save(ctx, types.Checkpoint{AssignmentID: id, Cursor: "c5", Seq: 5}))
		require.NoError(t, s.Save(ctx, types.Checkpoint{AssignmentID: id, Cursor: "c4", Seq: 4}))

		got, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "c5", got.Cursor)

		require.NoError(t, s.Save(ctx, types.Checkpoint{AssignmentID: id, Cursor: "c6", Seq: 6}))
		got, err = s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "c6", got.Cursor)
	})
}

func TestTaskRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		var ids []string
		for i := 0; i < 3; i++ {
			id := fmt.Sprintf("t%d-%s", i, uuid.NewString()[:8])
			ids = append(ids, id)
			rec := types.TaskRecord{
				Task: types.Task{ID: id, Description: "find flights", Status: types.StatusQueued, CreatedAt: base.Add(time.Duration(i) * time.Second)},
				Assignments: []types.Assignment{
					{ID: id + "-a0", TaskID: id, Status: types.StatusQueued},
				},
				Version: 1,
			}
			require.NoError(t, s.SaveTask(ctx, rec))
		}

		// newer version wins, older one is dropped
		newer := types.TaskRecord{
			Task:        types.Task{ID: ids[0], Status: types.StatusRunning, CreatedAt: base},
			Assignments: []types.Assignment{{ID: ids[0] + "-a0", TaskID: ids[0], Status: types.StatusRunning, SessionID: "s1"}},
			Version:     3,
		}
		require.NoError(t, s.SaveTask(ctx, newer))
		older := newer
		older.Version = 2
		older.Task.Status = types.StatusPaused
		require.NoError(t, s.SaveTask(ctx, older))

		recs, err := s.LoadTasks(ctx)
		require.NoError(t, err)

		byID := make(map[string]types.TaskRecord)
		var order []string
		for _, r := range recs {
			byID[r.Task.ID] = r
			order = append(order, r.Task.ID)
		}
		for _, id := range ids {
			require.Contains(t, byID, id)
		}
		assert.Equal(t, types.StatusRunning, byID[ids[0]].Task.Status)
		assert.Equal(t, int64(3), byID[ids[0]].Version)
		assert.Equal(t, "s1", byID[ids[0]].Assignments[0].SessionID)

		// creation order is preserved among our records
		var ours []string
		for _, id := range order {
			for _, want := range ids {
				if id == want {
					ours = append(ours, id)
				}
			}
		}
		assert.Equal(t, ids, ours)
	})
}

func TestPing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestMemoryStoreCopiesRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rec := types.TaskRecord{
		Task:        types.Task{ID: "t1", AssignmentIDs: []string{"a"}},
		Assignments: []types.Assignment{{ID: "a", Status: types.StatusQueued}},
	}
	require.NoError(t, s.SaveTask(ctx, rec))
	rec.Assignments[0].Status = types.StatusFailed

	recs, err := s.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.StatusQueued, recs[0].Assignments[0].Status)
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, types.Checkpoint{AssignmentID: "a/1", Seq: 1}))
	assert.FileExists(t, filepath.Join(dir, "checkpoints", "a_1.json"))

	entries, err := os.ReadDir(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, s.Ping(ctx))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr bool
	}{
		{"memory", config.StoreConfig{Backend: BackendMemory}, &MemoryStore{}, false},
		{"file", config.StoreConfig{Backend: BackendFile, Dir: dir}, &FileStore{}, false},
		{"file without dir", config.StoreConfig{Backend: BackendFile}, nil, true},
		{"sqlite in dir", config.StoreConfig{Backend: BackendSQLite, Dir: dir}, &SQLiteStore{}, false},
		{"unknown", config.StoreConfig{Backend: "etcd"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}
