package types

import "time"

// EventType defines the type of event emitted by the orchestrator.
type EventType string

const (
	EventTypeTransition  EventType = "transition"   // EventTypeTransition indicates a task or assignment changed status.
	EventTypeProgress    EventType = "progress"     // EventTypeProgress indicates a checkpointed progress step from a worker.
	EventTypeSessionLost EventType = "session_lost" // EventTypeSessionLost indicates an assignment's session died mid-run.
	EventTypeWarning     EventType = "warning"      // EventTypeWarning indicates a non-fatal orchestration problem.
)

// Event is one entry of the ordered per-task event stream.
type Event struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// TaskID is the task the event belongs to.
	TaskID string `json:"task_id"`

	// AssignmentID is empty for task-level transitions.
	AssignmentID string `json:"assignment_id,omitempty"`

	// From and To are set for transition events.
	From Status `json:"from,omitempty"`
	To   Status `json:"to,omitempty"`

	// Reason explains a transition (e.g. "pause", "session_lost").
	Reason string `json:"reason,omitempty"`

	// Cursor is the checkpointed cursor for progress events.
	Cursor string `json:"cursor,omitempty"`

	// Message holds free text from the worker or orchestrator.
	Message string `json:"message,omitempty"`

	// SessionID is set when the event concerns a specific session.
	SessionID string `json:"session_id,omitempty"`

	// Seq is monotonically increasing per task.
	Seq int64 `json:"seq"`

	// Timestamp is when the orchestrator applied the event.
	Timestamp time.Time `json:"timestamp"`
}

// NewTransitionEvent creates a status transition event. An empty
// assignmentID marks a task-level transition.
func NewTransitionEvent(taskID, assignmentID string, from, to Status, reason string) *Event {
	return &Event{
		Type:         EventTypeTransition,
		TaskID:       taskID,
		AssignmentID: assignmentID,
		From:         from,
		To:           to,
		Reason:       reason,
		Timestamp:    time.Now(),
		Metadata:     make(map[string]interface{}),
	}
}

// NewProgressEvent creates a progress event for a checkpointed cursor.
func NewProgressEvent(taskID, assignmentID, cursor, message string) *Event {
	return &Event{
		Type:         EventTypeProgress,
		TaskID:       taskID,
		AssignmentID: assignmentID,
		Cursor:       cursor,
		Message:      message,
		Timestamp:    time.Now(),
		Metadata:     make(map[string]interface{}),
	}
}

// NewSessionLostEvent creates a session lost event.
func NewSessionLostEvent(taskID, assignmentID, sessionID string) *Event {
	return &Event{
		Type:         EventTypeSessionLost,
		TaskID:       taskID,
		AssignmentID: assignmentID,
		SessionID:    sessionID,
		Timestamp:    time.Now(),
		Metadata:     make(map[string]interface{}),
	}
}

// NewWarningEvent creates a warning event.
func NewWarningEvent(taskID, message string) *Event {
	return &Event{
		Type:      EventTypeWarning,
		TaskID:    taskID,
		Message:   message,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// IsTaskLevel returns true for task-level transitions.
func (e *Event) IsTaskLevel() bool {
	return e.Type == EventTypeTransition && e.AssignmentID == ""
}

// IsTerminal returns true if the event moved its subject into a terminal status.
func (e *Event) IsTerminal() bool {
	return e.Type == EventTypeTransition && e.To.IsTerminal()
}
