// Package runner adapts an agent worker to the orchestrator: it forwards
// the worker's events in order, holds back the next event until a progress
// event is acknowledged, and reports when the worker lets go of its session.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
)

// EventKind identifies a worker event.
type EventKind string

const (
	KindProgress EventKind = "progress" // a step finished; Cursor is resumable
	KindPaused   EventKind = "paused"   // suspended at Cursor after a pause request
	KindResult   EventKind = "result"   // finished successfully
	KindError    EventKind = "error"    // finished with an unrecoverable error
)

// Event is emitted by a Worker.
type Event struct {
	Kind    EventKind
	Cursor  string
	Message string
	Result  string
	Err     error
}

// Progress builds a progress event.
func Progress(cursor, message string) Event {
	return Event{Kind: KindProgress, Cursor: cursor, Message: message}
}

// Paused builds the pause acknowledgement event.
func Paused(cursor string) Event {
	return Event{Kind: KindPaused, Cursor: cursor}
}

// Result builds the successful terminal event.
func Result(result string) Event {
	return Event{Kind: KindResult, Result: result}
}

// Failed builds the error terminal event.
func Failed(err error) Event {
	return Event{Kind: KindError, Err: err}
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Kind == KindPaused || e.Kind == KindResult || e.Kind == KindError
}

// Request describes one run of an assignment.
type Request struct {
	TaskID       string
	AssignmentID string
	Description  string
	Index        int
	Total        int
	Session      *session.Session
	// ResumeCursor is the last checkpointed cursor when Resumed is set.
	ResumeCursor string
	Resumed      bool
}

// Control lets a worker observe a pause request.
type Control interface {
	// PauseRequested is closed when the worker should stop at its next
	// step boundary and emit Paused with its cursor.
	PauseRequested() <-chan struct{}
}

// Worker performs bounded automation steps in a session. The returned
// channel carries Progress events and ends with exactly one of Paused,
// Result or Error before it is closed. When ctx is canceled the worker
// stops and closes the channel without a terminal event.
type Worker interface {
	Start(ctx context.Context, req Request, ctl Control) (<-chan Event, error)
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context, req Request, ctl Control) (<-chan Event, error)

// Start calls f.
func (f WorkerFunc) Start(ctx context.Context, req Request, ctl Control) (<-chan Event, error) {
	return f(ctx, req, ctl)
}

// Envelope carries an event, or the end of a run, to the handler.
type Envelope struct {
	AssignmentID string
	SessionID    string
	RunID        uint64
	Event        Event
	// Done is set on the final envelope of a run: the worker has returned
	// and no longer touches the session.
	Done bool
	// Ack is non-nil for progress events. The handler must send exactly
	// one value; a non-nil error stops the run.
	Ack chan<- error
}

// Sink receives envelopes. It must not block.
type Sink func(Envelope)

// ErrAckRejected is the cancellation cause when a progress acknowledgement fails.
var ErrAckRejected = errors.New("progress acknowledgement rejected")

// Run is one live execution of a worker.
type Run struct {
	ID           uint64
	AssignmentID string
	SessionID    string

	ctx       context.Context
	cancel    context.CancelCauseFunc
	pause     chan struct{}
	pauseOnce sync.Once
	done      chan struct{}
	sink      Sink
}

// Start launches worker for req and forwards its events to sink. The run
// lives until the worker closes its channel, whatever parent does
// afterwards; use Stop to cancel it.
func Start(parent context.Context, w Worker, req Request, id uint64, sink Sink) (*Run, error) {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	r := &Run{
		ID:           id,
		AssignmentID: req.AssignmentID,
		ctx:          ctx,
		cancel:       cancel,
		pause:        make(chan struct{}),
		done:         make(chan struct{}),
		sink:         sink,
	}
	if req.Session != nil {
		r.SessionID = req.Session.ID
	}

	events, err := w.Start(ctx, req, r)
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("start worker: %w", err)
	}

	go r.loop(events)
	return r, nil
}

// PauseRequested implements Control.
func (r *Run) PauseRequested() <-chan struct{} {
	return r.pause
}

// Pause asks the worker to suspend at its next event boundary.
func (r *Run) Pause() {
	r.pauseOnce.Do(func() { close(r.pause) })
}

// Stop cancels the worker. Events still in flight are discarded.
func (r *Run) Stop() {
	r.cancel(context.Canceled)
}

// Done is closed after the final envelope was delivered.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

func (r *Run) envelope(ev Event) Envelope {
	return Envelope{AssignmentID: r.AssignmentID, SessionID: r.SessionID, RunID: r.ID, Event: ev}
}

func (r *Run) loop(events <-chan Event) {
	defer func() {
		r.sink(Envelope{AssignmentID: r.AssignmentID, SessionID: r.SessionID, RunID: r.ID, Done: true})
		close(r.done)
	}()

	terminal := false
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if terminal || r.ctx.Err() != nil {
				continue
			}
			if !r.forward(ev) {
				r.drain(events)
				return
			}
			if ev.Terminal() {
				terminal = true
			}
		case <-r.ctx.Done():
			r.drain(events)
			return
		}
	}
}

// forward delivers ev and, for progress, waits for the acknowledgement.
// It returns false when the run must stop.
func (r *Run) forward(ev Event) bool {
	if ev.Kind != KindProgress {
		r.sink(r.envelope(ev))
		return true
	}

	ack := make(chan error, 1)
	env := r.envelope(ev)
	env.Ack = ack
	r.sink(env)

	select {
	case err := <-ack:
		if err != nil {
			r.cancel(fmt.Errorf("%w: %v", ErrAckRejected, err))
			return false
		}
		return true
	case <-r.ctx.Done():
		return false
	}
}

// drain waits for the worker to close its channel.
func (r *Run) drain(events <-chan Event) {
	for range events {
	}
}
