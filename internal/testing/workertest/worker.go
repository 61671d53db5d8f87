// Package workertest provides a scripted runner.Worker whose runs are
// driven step by step from a test.
package workertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/runner"
)

// Worker records every Start call as a Call the test can drive.
type Worker struct {
	mu       sync.Mutex
	calls    []*Call
	started  chan *Call
	startErr error
	// Stuck makes new calls ignore cancellation, so they never relinquish
	// their session.
	Stuck bool
	// Hold makes new calls ignore pause requests and cancellation until
	// Release.
	Hold bool
}

// New returns a worker with an empty call log.
func New() *Worker {
	return &Worker{started: make(chan *Call, 128)}
}

// Call is one run started by the orchestrator.
type Call struct {
	Req    runner.Request
	events chan runner.Event
	ctl    runner.Control
	ctx    context.Context

	mu     sync.Mutex
	cursor string
	stuck  bool
	held   bool

	// sendMu serializes sends with close so a send never hits a closed channel
	sendMu sync.Mutex
	closed bool
	ended  chan struct{}
}

// SetStartError makes Start fail with err.
func (w *Worker) SetStartError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startErr = err
}

// Start implements runner.Worker.
func (w *Worker) Start(ctx context.Context, req runner.Request, ctl runner.Control) (<-chan runner.Event, error) {
	w.mu.Lock()
	if w.startErr != nil {
		err := w.startErr
		w.mu.Unlock()
		return nil, err
	}
	c := &Call{
		Req:    req,
		events: make(chan runner.Event),
		ctl:    ctl,
		ctx:    ctx,
		cursor: req.ResumeCursor,
		stuck:  w.Stuck,
		held:   w.Hold,
		ended:  make(chan struct{}),
	}
	w.calls = append(w.calls, c)
	w.mu.Unlock()

	go c.watch()
	w.started <- c
	return c.events, nil
}

// watch answers pause requests and cancellation like a well-behaved worker.
func (c *Call) watch() {
	if c.held {
		<-c.ended
		return
	}
	select {
	case <-c.ctl.PauseRequested():
		c.mu.Lock()
		cursor := c.cursor
		c.mu.Unlock()
		c.send(runner.Paused(cursor))
		c.close()
	case <-c.ctx.Done():
		if !c.stuck {
			c.close()
		}
	case <-c.ended:
	}
}

func (c *Call) send(ev runner.Event) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Call) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ended)
	close(c.events)
}

// Progress emits a progress event and blocks until the runner reads it.
func (c *Call) Progress(cursor string) bool {
	c.mu.Lock()
	c.cursor = cursor
	c.mu.Unlock()
	return c.send(runner.Progress(cursor, "step "+cursor))
}

// Complete emits a result and closes the run.
func (c *Call) Complete(result string) {
	c.send(runner.Result(result))
	c.close()
}

// Fail emits an error and closes the run.
func (c *Call) Fail(err error) {
	c.send(runner.Failed(err))
	c.close()
}

// Release closes a stuck call's channel.
func (c *Call) Release() {
	c.close()
}

// Ended is closed once the call's channel is closed.
func (c *Call) Ended() <-chan struct{} {
	return c.ended
}

// ErrNoCall is returned by Next when no run starts in time.
var ErrNoCall = errors.New("no worker call started")

// Next waits for the next Start call.
func (w *Worker) Next(timeout time.Duration) (*Call, error) {
	select {
	case c := <-w.started:
		return c, nil
	case <-time.After(timeout):
		return nil, ErrNoCall
	}
}

// Calls returns every call so far.
func (w *Worker) Calls() []*Call {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*Call(nil), w.calls...)
}
