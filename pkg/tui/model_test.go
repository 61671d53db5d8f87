package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

type fakeController struct {
	mu    sync.Mutex
	tasks []types.TaskView
	calls []string
	err   error
}

func (f *fakeController) List() []types.TaskView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TaskView(nil), f.tasks...)
}

func (f *fakeController) record(verb, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, verb+" "+id)
	return f.err
}

func (f *fakeController) Pause(_ context.Context, id string) error  { return f.record("pause", id) }
func (f *fakeController) Resume(_ context.Context, id string) error { return f.record("resume", id) }
func (f *fakeController) Cancel(_ context.Context, id string) error { return f.record("cancel", id) }

func view(id, desc string, statuses ...types.Status) types.TaskView {
	v := types.TaskView{Task: types.Task{ID: id, Description: desc, Status: types.DeriveStatus(statuses)}}
	for i, s := range statuses {
		v.Assignments = append(v.Assignments, types.Assignment{
			ID:     id + "-a" + string(rune('0'+i)),
			TaskID: id,
			Index:  i,
			Status: s,
		})
	}
	return v
}

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m *model, k string) tea.Cmd {
	t.Helper()
	_, cmd := m.Update(key(k))
	return cmd
}

func TestControlKeysTargetSelectedTask(t *testing.T) {
	ctrl := &fakeController{tasks: []types.TaskView{
		view("task-one", "search flights", types.StatusRunning),
		view("task-two", "compare prices", types.StatusPaused),
	}}
	m := newModel(ctrl, nil)

	cmd := press(t, m, "p")
	require.NotNil(t, cmd)
	msg := cmd()
	m.Update(msg)

	press(t, m, "down")
	m.Update(press(t, m, "r")())
	m.Update(press(t, m, "c")())

	assert.Equal(t, []string{"pause task-one", "resume task-two", "cancel task-two"}, ctrl.calls)
	assert.Equal(t, "canceled task-two", m.status)
	assert.False(t, m.failed)
}

func TestControlErrorShown(t *testing.T) {
	ctrl := &fakeController{
		tasks: []types.TaskView{view("task-one", "x", types.StatusRunning)},
		err:   errors.New("invalid state transition"),
	}
	m := newModel(ctrl, nil)

	m.Update(press(t, m, "r")())
	assert.True(t, m.failed)
	assert.Contains(t, m.status, "invalid state transition")
	assert.Contains(t, m.View(), "invalid state transition")
}

func TestNoTasksNoCommand(t *testing.T) {
	m := newModel(&fakeController{}, nil)

	assert.Nil(t, press(t, m, "p"))
	assert.Nil(t, press(t, m, "y"))
	assert.Contains(t, m.View(), "no tasks")
}

func TestSelectionBounds(t *testing.T) {
	ctrl := &fakeController{tasks: []types.TaskView{
		view("a", "first", types.StatusQueued),
		view("b", "second", types.StatusQueued),
	}}
	m := newModel(ctrl, nil)

	press(t, m, "up")
	assert.Equal(t, 0, m.selected)
	press(t, m, "down")
	press(t, m, "down")
	assert.Equal(t, 1, m.selected)
}

func TestEventRefreshKeepsSelection(t *testing.T) {
	ctrl := &fakeController{tasks: []types.TaskView{
		view("a", "first", types.StatusRunning),
		view("b", "second", types.StatusRunning),
	}}
	events := make(chan types.Event, 1)
	m := newModel(ctrl, events)
	press(t, m, "down")

	ctrl.mu.Lock()
	ctrl.tasks = []types.TaskView{
		view("c", "third", types.StatusQueued),
		view("a", "first", types.StatusRunning),
		view("b", "second", types.StatusCompleted),
	}
	ctrl.mu.Unlock()

	ev := types.NewTransitionEvent("b", "b-a0", types.StatusRunning, types.StatusCompleted, "result")
	_, cmd := m.Update(eventMsg(*ev))
	require.NotNil(t, cmd)

	assert.Equal(t, 2, m.selected)
	assert.Equal(t, "b/b-a0 running → completed (result)", m.last)

	events <- *types.NewProgressEvent("a", "a-a0", `{"step":1}`, "clicked search")
	next := cmd()
	require.IsType(t, eventMsg{}, next)
	assert.Equal(t, "clicked search", next.(eventMsg).Message)

	close(events)
	_, cmd = m.Update(next)
	assert.Equal(t, eventsClosedMsg{}, cmd())
	m.Update(eventsClosedMsg{})
	assert.True(t, m.closed)
}

func TestCopySelectedID(t *testing.T) {
	ctrl := &fakeController{tasks: []types.TaskView{view("task-copy", "x", types.StatusRunning)}}
	m := newModel(ctrl, nil)

	var copied string
	m.clip = func(s string) error {
		copied = s
		return nil
	}
	press(t, m, "y")
	assert.Equal(t, "task-copy", copied)
	assert.Equal(t, "copied task-copy", m.status)

	m.clip = func(string) error { return errors.New("no clipboard") }
	press(t, m, "y")
	assert.True(t, m.failed)
}

func TestQuit(t *testing.T) {
	m := newModel(&fakeController{}, nil)
	cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestViewShowsAssignmentsOfSelectedTask(t *testing.T) {
	failed := view("task-fail", "book hotel", types.StatusFailed, types.StatusCompleted)
	failed.Assignments[0].Error = &types.AssignmentError{Kind: types.ErrorKindWorker, Message: "captcha"}
	failed.Assignments[1].Result = "booked"
	ctrl := &fakeController{tasks: []types.TaskView{failed, view("task-other", "other", types.StatusRunning)}}

	m := newModel(ctrl, nil)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	out := m.View()

	assert.Contains(t, out, "book hotel")
	assert.Contains(t, out, "worker_error: captcha")
	assert.Contains(t, out, "booked")
	assert.Contains(t, out, "1 active")
	assert.Equal(t, 1, strings.Count(out, "#0"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a…", truncate("abc", 2))
}
