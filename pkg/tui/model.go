// Package tui is a terminal watcher for running tasks. It lists tasks with
// their assignments, refreshes on every orchestrator event and lets the user
// pause, resume or cancel the selected task.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// Controller is the part of the orchestrator the watcher drives.
type Controller interface {
	List() []types.TaskView
	Pause(ctx context.Context, taskID string) error
	Resume(ctx context.Context, taskID string) error
	Cancel(ctx context.Context, taskID string) error
}

const controlTimeout = 5 * time.Second

// eventMsg carries one orchestrator event into the update loop.
type eventMsg types.Event

// eventsClosedMsg is sent once the event channel closes.
type eventsClosedMsg struct{}

// controlResultMsg reports the outcome of a pause, resume or cancel.
type controlResultMsg struct {
	verb   string
	taskID string
	err    error
}

type model struct {
	ctrl    Controller
	events  <-chan types.Event
	clip    func(string) error
	spinner spinner.Model

	tasks    []types.TaskView
	selected int
	last     string
	status   string
	failed   bool
	closed   bool

	width  int
	height int
}

func newModel(ctrl Controller, events <-chan types.Event) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(salmonPink)

	m := &model{
		ctrl:    ctrl,
		events:  events,
		clip:    clipboard.WriteAll,
		spinner: s,
	}
	m.refresh()
	return m
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m *model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// refresh reloads the task list and keeps the selection on the same task.
func (m *model) refresh() {
	var current string
	if m.selected < len(m.tasks) {
		current = m.tasks[m.selected].Task.ID
	}
	m.tasks = m.ctrl.List()
	m.selected = 0
	for i, v := range m.tasks {
		if v.Task.ID == current {
			m.selected = i
			break
		}
	}
}

func (m *model) selectedID() (string, bool) {
	if len(m.tasks) == 0 {
		return "", false
	}
	return m.tasks[m.selected].Task.ID, true
}

func (m *model) control(verb string, fn func(context.Context, string) error) tea.Cmd {
	id, ok := m.selectedID()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		return controlResultMsg{verb: verb, taskID: id, err: fn(ctx, id)}
	}
}

func (m *model) setStatus(msg string, failed bool) {
	m.status = msg
	m.failed = failed
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.last = describeEvent(types.Event(msg))
		m.refresh()
		return m, m.waitForEvent()

	case eventsClosedMsg:
		m.closed = true
		m.refresh()
		return m, nil

	case controlResultMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s %s: %v", msg.verb, shortID(msg.taskID), msg.err), true)
		} else {
			m.setStatus(fmt.Sprintf("%s %s", msg.verb, shortID(msg.taskID)), false)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.tasks)-1 {
			m.selected++
		}
	case "p":
		return m, m.control("paused", m.ctrl.Pause)
	case "r":
		return m, m.control("resumed", m.ctrl.Resume)
	case "c":
		return m, m.control("canceled", m.ctrl.Cancel)
	case "y":
		id, ok := m.selectedID()
		if !ok {
			return m, nil
		}
		if err := m.clip(id); err != nil {
			m.setStatus(fmt.Sprintf("copy failed: %v", err), true)
		} else {
			m.setStatus("copied "+id, false)
		}
	case "g":
		m.refresh()
	}
	return m, nil
}

func (m *model) View() string {
	var b strings.Builder

	active := 0
	for _, v := range m.tasks {
		if !v.Task.Status.IsTerminal() {
			active++
		}
	}
	header := headerStyle.Render("vibesurf tasks")
	if active > 0 {
		header += " " + m.spinner.View() + tipsStyle.Render(fmt.Sprintf("%d active", active))
	}
	b.WriteString(header + "\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(tipsStyle.Render("no tasks") + "\n")
	}
	for i, v := range m.tasks {
		b.WriteString(m.renderTask(i, v))
	}

	b.WriteString("\n")
	if m.last != "" {
		b.WriteString(tipsStyle.Render("last: "+m.last) + "\n")
	}
	if m.status != "" {
		if m.failed {
			b.WriteString(errorStyle.Render(m.status) + "\n")
		} else {
			b.WriteString(tipsStyle.Render(m.status) + "\n")
		}
	}
	if m.closed {
		b.WriteString(tipsStyle.Render("event stream closed") + "\n")
	}
	b.WriteString(statusBarStyle.Render("↑/↓ select · p pause · r resume · c cancel · y copy id · q quit"))
	return b.String()
}

func (m *model) renderTask(i int, v types.TaskView) string {
	counts := v.Counts()
	var parts []string
	for _, s := range []types.Status{types.StatusRunning, types.StatusQueued, types.StatusPaused,
		types.StatusCompleted, types.StatusFailed, types.StatusStopped} {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}

	marker := "  "
	style := rowStyle
	if i == m.selected {
		marker = "> "
		style = selectedStyle
	}
	line := marker + statusStyle(v.Task.Status).Render(string(v.Task.Status)) +
		style.Render(shortID(v.Task.ID)+"  "+truncate(v.Task.Description, m.descWidth())) +
		tipsStyle.Render("  ["+strings.Join(parts, ", ")+"]")

	var b strings.Builder
	b.WriteString(line + "\n")
	if i != m.selected {
		return b.String()
	}
	for _, a := range v.Assignments {
		detail := fmt.Sprintf("#%d %s", a.Index, a.Status)
		switch {
		case a.Error != nil:
			detail += " " + a.Error.Error()
		case a.Result != "":
			detail += " " + a.Result
		case a.SessionID != "":
			detail += " on " + shortID(a.SessionID)
		}
		b.WriteString(assignmentStyle.Render(truncate(detail, m.descWidth()+20)) + "\n")
	}
	return b.String()
}

func (m *model) descWidth() int {
	if m.width <= 40 {
		return 48
	}
	return m.width - 32
}

func describeEvent(ev types.Event) string {
	subject := shortID(ev.TaskID)
	if ev.AssignmentID != "" {
		subject += "/" + shortID(ev.AssignmentID)
	}
	switch ev.Type {
	case types.EventTypeTransition:
		s := fmt.Sprintf("%s %s → %s", subject, ev.From, ev.To)
		if ev.Reason != "" {
			s += " (" + ev.Reason + ")"
		}
		return s
	case types.EventTypeProgress:
		return subject + " " + ev.Message
	case types.EventTypeSessionLost:
		return subject + " lost session " + shortID(ev.SessionID)
	default:
		return subject + " " + ev.Message
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
