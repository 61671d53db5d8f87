package types

import (
	"fmt"
	"time"
)

// ErrorKind classifies why an assignment failed.
type ErrorKind string

const (
	ErrorKindSessionUnavailable ErrorKind = "session_unavailable"
	ErrorKindSessionLost        ErrorKind = "session_lost"
	ErrorKindWorker             ErrorKind = "worker_error"
	ErrorKindCheckpointWrite    ErrorKind = "checkpoint_write_failure"
)

// AssignmentError is attached to an assignment that reached StatusFailed.
// For ErrorKindWorker the Message is the worker's payload, unmodified.
type AssignmentError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *AssignmentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Task is a user-submitted unit of automation work.
type Task struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	AssignmentIDs  []string  `json:"assignment_ids"`
	MaxConcurrency int       `json:"max_concurrency"`
	ProfileHint    string    `json:"profile_hint,omitempty"`
}

// Assignment is one agent's share of a task. It references its session by
// id only; the session pool owns the session itself.
type Assignment struct {
	ID            string           `json:"id"`
	TaskID        string           `json:"task_id"`
	Index         int              `json:"index"`
	Description   string           `json:"description"`
	Status        Status           `json:"status"`
	SessionID     string           `json:"session_id,omitempty"`
	Cursor        string           `json:"cursor,omitempty"`
	Result        string           `json:"result,omitempty"`
	Error         *AssignmentError `json:"error,omitempty"`
	SessionLosses int              `json:"session_losses,omitempty"`
	QueuedAt      time.Time        `json:"queued_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Checkpoint is the durable resumable state of an assignment.
type Checkpoint struct {
	AssignmentID string    `json:"assignment_id"`
	TaskID       string    `json:"task_id"`
	Cursor       string    `json:"cursor"`
	CapturedAt   time.Time `json:"captured_at"`
	TaskStatus   Status    `json:"task_status_at_capture"`
	Seq          int64     `json:"seq"`
}

// TaskRecord is the persisted form of a task and its assignments, enough to
// rebuild orchestration state after a restart.
// Version increases with every write so stores can drop stale ones.
type TaskRecord struct {
	Task        Task         `json:"task"`
	Assignments []Assignment `json:"assignments"`
	Version     int64        `json:"version"`
}

// TaskView is a read-only snapshot returned to callers.
type TaskView struct {
	Task        Task         `json:"task"`
	Assignments []Assignment `json:"assignments"`
}

// Clone returns a deep copy of the view.
func (v TaskView) Clone() TaskView {
	out := TaskView{Task: v.Task}
	out.Task.AssignmentIDs = append([]string(nil), v.Task.AssignmentIDs...)
	out.Assignments = make([]Assignment, len(v.Assignments))
	for i, a := range v.Assignments {
		out.Assignments[i] = a
		if a.Error != nil {
			errCopy := *a.Error
			out.Assignments[i].Error = &errCopy
		}
	}
	return out
}

// Counts returns how many assignments are in each status.
func (v TaskView) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, a := range v.Assignments {
		counts[a.Status]++
	}
	return counts
}
