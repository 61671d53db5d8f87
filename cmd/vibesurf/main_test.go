package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/eventlog"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vibesurf.yaml")
	content := fmt.Sprintf(`store:
  backend: file
  dir: %s
pool:
  profile_dir: %s
logging:
  level: error
  dir: %s
`, filepath.Join(dir, "state"), filepath.Join(dir, "profiles"), filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func seedStore(t *testing.T, dir string) types.TaskRecord {
	t.Helper()
	store, err := checkpoint.NewFileStore(filepath.Join(dir, "state"))
	require.NoError(t, err)
	defer store.Close()

	now := time.Now()
	rec := types.TaskRecord{
		Task: types.Task{
			ID:            "task-seeded",
			Description:   "find the cheapest flight",
			Status:        types.StatusRunning,
			CreatedAt:     now.Add(-time.Hour),
			UpdatedAt:     now.Add(-2 * time.Hour),
			AssignmentIDs: []string{"asg-0", "asg-1"},
		},
		Assignments: []types.Assignment{
			{ID: "asg-0", TaskID: "task-seeded", Index: 0, Status: types.StatusCompleted, Result: "EUR 120"},
			{ID: "asg-1", TaskID: "task-seeded", Index: 1, Status: types.StatusRunning},
		},
		Version: 4,
	}
	ctx := context.Background()
	require.NoError(t, store.SaveTask(ctx, rec))
	require.NoError(t, store.Save(ctx, types.Checkpoint{
		AssignmentID: "asg-1",
		TaskID:       "task-seeded",
		Cursor:       `{"step":3}`,
		CapturedAt:   now,
		TaskStatus:   types.StatusRunning,
		Seq:          3,
	}))
	return rec
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTasksCommandListsStoredTasks(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	seedStore(t, dir)

	out, err := execute(t, "--config", cfgPath, "tasks")
	require.NoError(t, err)

	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "task-seeded")
	assert.Contains(t, out, "1/2 done")
	assert.Contains(t, out, "2h ago")
	assert.Contains(t, out, "find the cheapest flight")
}

func TestTasksCommandShowsOneTask(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	seedStore(t, dir)

	out, err := execute(t, "--config", cfgPath, "tasks", "task-seeded")
	require.NoError(t, err)
	assert.Contains(t, out, "#0 completed: EUR 120")
	assert.Contains(t, out, `#1 checkpoint seq 3: {"step":3}`)

	_, err = execute(t, "--config", cfgPath, "tasks", "task-missing")
	assert.ErrorContains(t, err, "task task-missing not found")
}

func TestTasksCommandEmptyStore(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--config", writeConfig(t, dir), "tasks")
	require.NoError(t, err)
	assert.Equal(t, "No tasks.\n", out)
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	flags := &rootFlags{configPath: writeConfig(t, dir), console: true, logLevel: "debug"}

	cfg, err := flags.loadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Logging.Console)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.Store.Dir)

	quietConsole(cfg, false)
	assert.False(t, cfg.Logging.Console)
}

func TestRunRequiresDescription(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestBuildSinkWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events", "events.jsonl")
	b := eventlog.NewBroadcaster()
	defer b.Close()
	live, unsubscribe := b.Subscribe(4)
	defer unsubscribe()

	sink, closeSink, err := buildSink(config.EventsConfig{JSONLPath: path, Log: true}, b, logging.Nop())
	require.NoError(t, err)

	ev := types.NewTransitionEvent("task-1", "", types.StatusQueued, types.StatusRunning, "")
	sink.Publish(*ev)
	require.NoError(t, closeSink())

	got := <-live
	assert.Equal(t, "task-1", got.TaskID)

	stored, err := eventlog.ReadEvents(path)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, types.StatusRunning, stored[0].To)
}

func TestBuildSinkWithoutFile(t *testing.T) {
	sink, closeSink, err := buildSink(config.EventsConfig{}, eventlog.NewBroadcaster(), logging.Nop())
	require.NoError(t, err)
	assert.Len(t, sink, 1)
	assert.NoError(t, closeSink())
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAge(now.Add(-tt.ago), now))
	}
}

func TestFormatEvent(t *testing.T) {
	ev := types.NewTransitionEvent("task-1", "asg-1", types.StatusRunning, types.StatusQueued, "session_lost")
	assert.True(t, strings.HasSuffix(formatEvent(*ev), "asg-1 running -> queued (session_lost)"))

	lost := types.NewSessionLostEvent("task-1", "asg-1", "sess-2")
	assert.Contains(t, formatEvent(*lost), "lost session sess-2")

	progress := types.NewProgressEvent("task-1", "asg-1", `{"step":1}`, "clicked search")
	assert.Contains(t, formatEvent(*progress), "asg-1 progress: clicked search")

	warn := types.NewWarningEvent("task-1", "store unreachable")
	assert.Contains(t, formatEvent(*warn), "task-1 warning: store unreachable")
}

func TestPrintView(t *testing.T) {
	var buf bytes.Buffer
	printView(&buf, types.TaskView{
		Task: types.Task{ID: "t", Status: types.StatusFailed, Description: "d"},
		Assignments: []types.Assignment{
			{Index: 0, Status: types.StatusFailed, Error: &types.AssignmentError{Kind: types.ErrorKindSessionLost, Message: "gone"}},
		},
	})
	assert.Equal(t, "task t failed: d\n  #0 failed: session_lost: gone\n", buf.String())
}
