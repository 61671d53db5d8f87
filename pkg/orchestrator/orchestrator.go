// Package orchestrator turns submitted tasks into assignments, leases a
// browser session for each, runs agent workers and keeps every task's
// derived status, checkpoints and event stream consistent.
//
// Each task is owned by one actor goroutine. Commands, lease results,
// runner events, session losses and timers are all delivered to the
// task's mailbox and applied in order, so a task's state is never touched
// by two goroutines at once while different tasks proceed in parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/eventlog"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/runner"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

const (
	tracerName   = "github.com/vibesurf-ai/VibeSurf-sub002/pkg/orchestrator"
	storeTimeout = 10 * time.Second
)

// Pool is the session pool as seen by the orchestrator. *session.Pool
// implements it.
type Pool interface {
	Lease(ctx context.Context, assignmentID, profileHint string) (*session.Session, error)
	Release(sessionID string) error
	Quarantine(sessionID string) error
	Get(sessionID string) (session.Info, bool)
	Generation() uint64
	OnRelease(fn func())
	OnSessionLost(fn func(session.LostEvent))
}

// Orchestrator is the explicit context object owning every task.
type Orchestrator struct {
	cfg        Config
	pool       Pool
	worker     runner.Worker
	store      checkpoint.Store
	sink       eventlog.Sink
	decomposer Decomposer
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time

	// ctx bounds lease attempts; canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	runIDs atomic.Uint64

	mu           sync.RWMutex
	tasks        map[string]*taskActor
	order        []string
	byAssignment map[string]*taskActor
	closed       bool
	actors       sync.WaitGroup
}

// New wires an orchestrator to a pool and a worker and subscribes to the
// pool's release and session-lost notifications.
func New(pool Pool, worker runner.Worker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:          DefaultConfig(),
		pool:         pool,
		worker:       worker,
		tasks:        make(map[string]*taskActor),
		byAssignment: make(map[string]*taskActor),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg = o.cfg.withDefaults()
	if o.store == nil {
		o.store = checkpoint.NewMemoryStore()
	}
	if o.sink == nil {
		o.sink = eventlog.Discard
	}
	if o.decomposer == nil {
		o.decomposer = ReplicateDecomposer{}
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	pool.OnRelease(o.onRelease)
	pool.OnSessionLost(o.onSessionLost)
	return o
}

// Submit creates a task with parallelism assignments and queues them. It
// never waits for a session.
func (o *Orchestrator) Submit(ctx context.Context, description string, parallelism int, opts ...SubmitOption) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Submit",
		trace.WithAttributes(attribute.Int("task.parallelism", parallelism)))
	defer span.End()

	taskID, err := o.submit(ctx, description, parallelism, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("task.id", taskID))
	return taskID, nil
}

func (o *Orchestrator) submit(ctx context.Context, description string, parallelism int, opts []SubmitOption) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("%w: description is empty", ErrInvalidInput)
	}
	if parallelism < 1 {
		return "", fmt.Errorf("%w: parallelism must be at least 1, got %d", ErrInvalidInput, parallelism)
	}

	so := submitOptions{maxConcurrency: parallelism}
	for _, opt := range opts {
		opt(&so)
	}
	if so.maxConcurrency < 1 {
		return "", fmt.Errorf("%w: max concurrency must be at least 1, got %d", ErrInvalidInput, so.maxConcurrency)
	}
	if !so.hintSet {
		so.profileHint = o.cfg.DefaultProfileHint
	}

	parts, err := o.decomposer.Decompose(ctx, description, parallelism)
	if err != nil {
		return "", fmt.Errorf("decompose task: %w", err)
	}
	if len(parts) != parallelism {
		return "", fmt.Errorf("decompose task: got %d assignments for parallelism %d", len(parts), parallelism)
	}

	now := o.now()
	task := types.Task{
		ID:             uuid.NewString(),
		Description:    description,
		Status:         types.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		MaxConcurrency: so.maxConcurrency,
		ProfileHint:    so.profileHint,
	}
	a := newTaskActor(o, task, trace.LinkFromContext(ctx))
	for i, part := range parts {
		a.addAssignment(types.Assignment{
			ID:          fmt.Sprintf("%s-%d", task.ID, i),
			TaskID:      task.ID,
			Index:       i,
			Description: part,
			Status:      types.StatusPending,
			UpdatedAt:   now,
		})
	}

	a.publish()

	if err := o.register(a); err != nil {
		return "", err
	}
	a.enqueueAll("submitted")
	o.startActor(a)
	o.logger.Infof("task %s submitted with %d assignments", task.ID, parallelism)
	return task.ID, nil
}

func (o *Orchestrator) register(a *taskActor) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.tasks[a.id] = a
	o.order = append(o.order, a.id)
	for _, as := range a.assignments {
		o.byAssignment[as.ID] = a
	}
	return nil
}

func (o *Orchestrator) startActor(a *taskActor) {
	o.actors.Add(1)
	go a.loop()
	a.nudge()
}

func (o *Orchestrator) actor(taskID string) (*taskActor, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return a, nil
}

// Pause suspends every running or waiting assignment of the task. Pausing
// a paused task succeeds without effect; pausing a settled task fails
// with ErrInvalidStateTransition.
func (o *Orchestrator) Pause(ctx context.Context, taskID string) error {
	a, err := o.actor(taskID)
	if err != nil {
		return err
	}
	return a.ask(ctx, cmdPause)
}

// Resume re-queues the task's paused assignments from their last
// checkpoint. It fails with ErrInvalidStateTransition when nothing is paused.
func (o *Orchestrator) Resume(ctx context.Context, taskID string) error {
	a, err := o.actor(taskID)
	if err != nil {
		return err
	}
	return a.ask(ctx, cmdResume)
}

// Cancel stops every unfinished assignment at once. Canceling a settled
// task is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	a, err := o.actor(taskID)
	if err != nil {
		return err
	}
	return a.ask(ctx, cmdCancel)
}

// GetStatus returns the latest published view of a task without waiting
// for its actor.
func (o *Orchestrator) GetStatus(taskID string) (types.TaskView, error) {
	a, err := o.actor(taskID)
	if err != nil {
		return types.TaskView{}, err
	}
	return a.snapshot(), nil
}

// List returns every task in submission order.
func (o *Orchestrator) List() []types.TaskView {
	o.mu.RLock()
	actors := make([]*taskActor, 0, len(o.order))
	for _, id := range o.order {
		actors = append(actors, o.tasks[id])
	}
	o.mu.RUnlock()

	views := make([]types.TaskView, len(actors))
	for i, a := range actors {
		views[i] = a.snapshot()
	}
	return views
}

// Wait blocks until every assignment of the task is terminal.
func (o *Orchestrator) Wait(ctx context.Context, taskID string) (types.TaskView, error) {
	a, err := o.actor(taskID)
	if err != nil {
		return types.TaskView{}, err
	}
	select {
	case <-a.settled:
		return a.snapshot(), nil
	case <-ctx.Done():
		return a.snapshot(), ctx.Err()
	}
}

// Flush re-persists every task record whose last write failed.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.mu.RLock()
	actors := make([]*taskActor, 0, len(o.tasks))
	for _, a := range o.tasks {
		actors = append(actors, a)
	}
	o.mu.RUnlock()

	var errs []error
	for _, a := range actors {
		if err := a.ask(ctx, cmdFlush); err != nil && !errors.Is(err, ErrClosed) {
			errs = append(errs, fmt.Errorf("task %s: %w", a.id, err))
		}
	}
	return errors.Join(errs...)
}

// Recover reloads persisted tasks that are not known yet. Assignments
// that were waiting or running are queued again from their last
// checkpoint; paused ones stay paused. It returns how many unfinished
// tasks were restored.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	recs, err := o.store.LoadTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load task records: %w", err)
	}

	restored := 0
	for _, rec := range recs {
		o.mu.RLock()
		_, known := o.tasks[rec.Task.ID]
		o.mu.RUnlock()
		if known || len(rec.Assignments) == 0 {
			continue
		}

		a := newTaskActor(o, rec.Task, trace.LinkFromContext(ctx))
		a.version = rec.Version
		for _, as := range rec.Assignments {
			a.addAssignment(as)
		}
		if err := a.restore(ctx); err != nil {
			return restored, fmt.Errorf("restore task %s: %w", rec.Task.ID, err)
		}
		if err := o.register(a); err != nil {
			return restored, err
		}
		if a.isSettled() {
			a.mb.close()
			continue
		}
		o.startActor(a)
		restored++
	}
	if restored > 0 {
		o.logger.Infof("recovered %d unfinished tasks", restored)
	}
	return restored, nil
}

// Close stops every runner and actor. Unfinished assignments keep their
// status in the store so Recover can pick them up later. Sessions are
// released as their runners let go; the pool itself is left open.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	actors := make([]*taskActor, 0, len(o.tasks))
	for _, a := range o.tasks {
		actors = append(actors, a)
	}
	o.mu.Unlock()

	o.cancel()
	for _, a := range actors {
		a.mb.post(command{kind: cmdClose})
	}

	done := make(chan struct{})
	go func() {
		o.actors.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close orchestrator: %w", ctx.Err())
	}
}

// Ready reports whether the orchestrator accepts work and its store answers.
func (o *Orchestrator) Ready(ctx context.Context) error {
	o.mu.RLock()
	closed := o.closed
	o.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := o.store.Ping(ctx); err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	return nil
}

// onRelease wakes every task that may be waiting for a session.
func (o *Orchestrator) onRelease() {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, a := range o.tasks {
		a.nudge()
	}
}

func (o *Orchestrator) onSessionLost(ev session.LostEvent) {
	o.mu.RLock()
	a := o.byAssignment[ev.AssignmentID]
	o.mu.RUnlock()
	if a == nil {
		o.logger.Warnf("session %s lost by unknown assignment %s", ev.SessionID, ev.AssignmentID)
		return
	}
	a.mb.post(msgSessionLost{ev: ev})
}

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeTimeout)
}
