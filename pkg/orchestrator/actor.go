package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/runner"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// errStaleRun rejects progress from a run the task no longer follows.
var errStaleRun = errors.New("run superseded")

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdCancel
	cmdFlush
	cmdClose
)

type message interface{}

type command struct {
	kind  commandKind
	reply chan error
}

type msgDispatch struct{}

type msgLeaseResult struct {
	assignmentID string
	attempt      uint64
	generation   uint64
	sess         *session.Session
	err          error
}

type msgLeaseRetry struct {
	assignmentID string
	attempt      uint64
}

type msgQueuedTimeout struct {
	assignmentID string
	epoch        uint64
}

type msgEnvelope struct {
	env runner.Envelope
}

type msgSessionLost struct {
	ev session.LostEvent
}

type msgGraceExpired struct {
	runID uint64
}

// leaseBlock says why a queued assignment is not leasing right now.
type leaseBlock int

const (
	blockNone    leaseBlock = iota
	blockBusy               // pool at ceiling, wait for a release notification
	blockBackoff            // session creation failed, wait for the retry timer
	blockRelinquish         // an earlier run still holds a session for this assignment
)

type assignmentState struct {
	types.Assignment

	attempt    uint64 // bumps invalidate in-flight lease results
	leasing    bool
	block      leaseBlock
	queueEpoch uint64
	runID      uint64 // run whose events are applied; 0 when none
	ckptSeq    int64
	started    bool
}

// runState tracks a runner until it lets go of its session.
type runState struct {
	run         *runner.Run
	assignment  *assignmentState
	sessionID   string
	span        trace.Span
	grace       *time.Timer
	lost        bool
	quarantined bool
}

type taskActor struct {
	o      *Orchestrator
	id     string
	mb     *mailbox
	logger *logging.Logger

	// Owned by the actor goroutine.
	task        types.Task
	assignments []*assignmentState
	byID        map[string]*assignmentState
	runs        map[uint64]*runState
	seq         int64
	version     int64
	changed     bool
	dirty       bool
	closing     bool
	ctx         context.Context
	span        trace.Span
	spanEnded   bool

	dispatchPending atomic.Bool

	viewMu      sync.RWMutex
	view        types.TaskView
	settled     chan struct{}
	settledOnce sync.Once
}

func newTaskActor(o *Orchestrator, task types.Task, link trace.Link) *taskActor {
	a := &taskActor{
		o:       o,
		id:      task.ID,
		mb:      newMailbox(),
		logger:  o.logger.With("task_id", task.ID),
		task:    task,
		byID:    make(map[string]*assignmentState),
		runs:    make(map[uint64]*runState),
		settled: make(chan struct{}),
	}
	a.task.AssignmentIDs = nil
	a.ctx, a.span = o.tracer.Start(context.Background(), "orchestrator.task",
		trace.WithNewRoot(),
		trace.WithLinks(link),
		trace.WithAttributes(attribute.String("task.id", task.ID)))
	return a
}

func (a *taskActor) addAssignment(as types.Assignment) {
	st := &assignmentState{Assignment: as}
	a.assignments = append(a.assignments, st)
	a.byID[as.ID] = st
	a.task.AssignmentIDs = append(a.task.AssignmentIDs, as.ID)
}

// enqueueAll moves fresh assignments to queued. It runs before the actor
// goroutine starts.
func (a *taskActor) enqueueAll(reason string) {
	for _, as := range a.assignments {
		a.transition(as, types.StatusQueued, reason)
	}
	a.afterChange()
}

// restore rebuilds runtime state from a persisted record. It runs before
// the actor goroutine starts.
func (a *taskActor) restore(ctx context.Context) error {
	for _, as := range a.assignments {
		cp, err := a.o.store.Load(ctx, as.ID)
		switch {
		case err == nil:
			as.Cursor = cp.Cursor
			as.ckptSeq = cp.Seq
		case errors.Is(err, checkpoint.ErrNotFound):
		default:
			return err
		}
		if as.SessionID != "" {
			as.SessionID = ""
			a.changed = true
		}

		switch as.Status {
		case types.StatusQueued:
			a.enterQueued(as, a.o.now())
			a.changed = true
		case types.StatusPending, types.StatusRunning:
			a.transition(as, types.StatusQueued, "recovered")
		}
	}
	a.changed = true
	a.afterChange()
	return nil
}

// loop drains the mailbox until the task is settled or closing and no
// runner holds a session any more.
func (a *taskActor) loop() {
	defer a.o.actors.Done()
	for range a.mb.signal {
		for _, msg := range a.mb.take() {
			a.handle(msg)
		}
		if a.finished() {
			for _, msg := range a.mb.close() {
				a.handle(msg)
			}
			a.endSpan()
			return
		}
	}
}

func (a *taskActor) finished() bool {
	return (a.closing || a.isSettled()) && len(a.runs) == 0
}

// nudge schedules a dispatch pass, coalescing repeated notifications.
func (a *taskActor) nudge() {
	if a.dispatchPending.CompareAndSwap(false, true) {
		if !a.mb.post(msgDispatch{}) {
			a.dispatchPending.Store(false)
		}
	}
}

// ask delivers a command and waits for its answer.
func (a *taskActor) ask(ctx context.Context, kind commandKind) error {
	reply := make(chan error, 1)
	if !a.mb.post(command{kind: kind, reply: reply}) {
		return a.offline(kind)
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offline answers a command once the actor has exited.
func (a *taskActor) offline(kind commandKind) error {
	if !a.isSettledView() {
		return ErrClosed
	}
	switch kind {
	case cmdPause, cmdResume:
		return fmt.Errorf("%w: task %s is %s", ErrInvalidStateTransition, a.id, a.snapshot().Task.Status)
	default:
		return nil
	}
}

func (a *taskActor) handle(msg message) {
	switch m := msg.(type) {
	case command:
		err := a.command(m.kind)
		a.dispatch()
		a.afterChange()
		// Reply after publishing so the caller observes the new view.
		if m.reply != nil {
			m.reply <- err
		}
		return
	case msgDispatch:
		a.dispatchPending.Store(false)
		for _, as := range a.assignments {
			if as.block == blockBusy {
				as.block = blockNone
			}
		}
	case msgLeaseResult:
		a.leaseResult(m)
	case msgLeaseRetry:
		if as := a.byID[m.assignmentID]; as != nil && as.attempt == m.attempt && as.block == blockBackoff {
			as.block = blockNone
		}
	case msgQueuedTimeout:
		a.queuedTimeout(m)
	case msgEnvelope:
		a.envelope(m.env)
	case msgSessionLost:
		a.sessionLost(m.ev)
	case msgGraceExpired:
		a.graceExpired(m.runID)
	}

	a.dispatch()
	a.afterChange()
}

func (a *taskActor) command(kind commandKind) error {
	switch kind {
	case cmdPause:
		return a.pause()
	case cmdResume:
		return a.resume()
	case cmdCancel:
		a.cancel()
		return nil
	case cmdFlush:
		if !a.dirty {
			return nil
		}
		return a.persist()
	case cmdClose:
		a.shutdown()
		return nil
	}
	return fmt.Errorf("unknown command %d", kind)
}

func (a *taskActor) pause() error {
	if a.isSettled() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidStateTransition, a.id, a.task.Status)
	}
	for _, as := range a.assignments {
		switch as.Status {
		case types.StatusPending, types.StatusQueued:
			a.transition(as, types.StatusPaused, "pause")
		case types.StatusRunning:
			a.transition(as, types.StatusPaused, "pause")
			if rs := a.runs[as.runID]; rs != nil {
				rs.run.Pause()
				a.armGrace(rs)
			}
		}
	}
	return nil
}

func (a *taskActor) resume() error {
	if a.isSettled() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidStateTransition, a.id, a.task.Status)
	}
	var paused []*assignmentState
	for _, as := range a.assignments {
		if as.Status == types.StatusPaused {
			paused = append(paused, as)
		}
	}
	if len(paused) == 0 {
		return fmt.Errorf("%w: task %s is %s, not paused", ErrInvalidStateTransition, a.id, a.task.Status)
	}

	for _, as := range paused {
		rs := a.runOf(as)
		if rs != nil {
			rs.run.Stop()
			a.armGrace(rs)
		}
		as.runID = 0
		a.transition(as, types.StatusQueued, "resume")
		if rs != nil {
			// No new lease until the old run lets go of its session.
			as.block = blockRelinquish
		}
	}
	return nil
}

// runOf returns the run still holding a session for as, if any.
func (a *taskActor) runOf(as *assignmentState) *runState {
	if rs := a.runs[as.runID]; rs != nil {
		return rs
	}
	for _, rs := range a.runs {
		if rs.assignment == as {
			return rs
		}
	}
	return nil
}

// relinquished lifts the lease block once as has no run left.
func (a *taskActor) relinquished(as *assignmentState) {
	if as.block == blockRelinquish && a.runOf(as) == nil {
		as.block = blockNone
	}
}

func (a *taskActor) cancel() {
	if a.isSettled() {
		return
	}
	for _, as := range a.assignments {
		if as.Status.IsTerminal() {
			continue
		}
		runID := as.runID
		as.runID = 0
		a.transition(as, types.StatusStopped, "cancel")
		if rs := a.runs[runID]; rs != nil {
			rs.run.Stop()
			a.armGrace(rs)
		}
	}
}

// shutdown stops every runner without changing assignment statuses.
func (a *taskActor) shutdown() {
	a.closing = true
	for _, as := range a.assignments {
		as.leasing = false
		as.attempt++
	}
	for _, rs := range a.runs {
		rs.run.Stop()
		a.armGrace(rs)
	}
}

// dispatch starts lease attempts for queued assignments within the
// task's concurrency bound.
func (a *taskActor) dispatch() {
	if a.closing {
		return
	}
	limit := a.task.MaxConcurrency
	if limit < 1 {
		limit = len(a.assignments)
	}
	active := 0
	for _, as := range a.assignments {
		if as.Status == types.StatusRunning || as.leasing {
			active++
		}
	}
	for _, as := range a.assignments {
		if active >= limit {
			return
		}
		if as.Status == types.StatusQueued && !as.leasing && as.block == blockNone {
			a.startLease(as)
			active++
		}
	}
}

// startLease leases off the actor goroutine and reports back through the
// mailbox. A session won after the task stopped caring is handed back.
func (a *taskActor) startLease(as *assignmentState) {
	as.leasing = true
	as.attempt++
	msg := msgLeaseResult{
		assignmentID: as.ID,
		attempt:      as.attempt,
		generation:   a.o.pool.Generation(),
	}
	hint := a.task.ProfileHint
	go func() {
		msg.sess, msg.err = a.o.pool.Lease(a.o.ctx, msg.assignmentID, hint)
		if !a.mb.post(msg) && msg.sess != nil {
			_ = a.o.pool.Release(msg.sess.ID)
		}
	}()
}

func (a *taskActor) leaseResult(m msgLeaseResult) {
	as := a.byID[m.assignmentID]
	if as == nil || as.attempt != m.attempt || as.Status != types.StatusQueued || a.closing {
		if as != nil && as.attempt == m.attempt {
			as.leasing = false
		}
		if m.sess != nil {
			a.release(m.sess.ID)
		}
		return
	}
	as.leasing = false

	switch {
	case m.err == nil:
		if _, ok := a.o.pool.Get(m.sess.ID); !ok {
			a.logger.Warnf("session %s died before assignment %s started", m.sess.ID, as.ID)
			return
		}
		a.startRun(as, m.sess)
	case errors.Is(m.err, session.ErrBusy):
		if a.o.pool.Generation() != m.generation {
			// Capacity was freed while we leased; dispatch retries now.
			return
		}
		as.block = blockBusy
	case errors.Is(m.err, session.ErrClosed), errors.Is(m.err, context.Canceled):
		as.block = blockBusy
	default:
		a.logger.Warnf("lease for assignment %s failed: %v", as.ID, m.err)
		as.block = blockBackoff
		id, attempt := as.ID, as.attempt
		time.AfterFunc(a.o.cfg.LeaseRetryDelay, func() {
			a.mb.post(msgLeaseRetry{assignmentID: id, attempt: attempt})
		})
	}
}

func (a *taskActor) startRun(as *assignmentState, sess *session.Session) {
	runID := a.o.runIDs.Add(1)
	req := runner.Request{
		TaskID:       a.id,
		AssignmentID: as.ID,
		Description:  as.Description,
		Index:        as.Index,
		Total:        len(a.assignments),
		Session:      sess,
		ResumeCursor: as.Cursor,
		Resumed:      as.started || as.Cursor != "",
	}

	ctx, span := a.o.tracer.Start(a.ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("task.id", a.id),
		attribute.String("assignment.id", as.ID),
		attribute.String("session.id", sess.ID),
		attribute.Bool("assignment.resumed", req.Resumed),
	))

	run, err := runner.Start(ctx, a.o.worker, req, runID, a.runnerSink)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		a.release(sess.ID)
		a.fail(as, types.ErrorKindWorker, err.Error(), "worker_start_failed")
		return
	}

	as.started = true
	as.runID = runID
	as.SessionID = sess.ID
	a.runs[runID] = &runState{run: run, assignment: as, sessionID: sess.ID, span: span}
	a.transition(as, types.StatusRunning, "session_leased")
}

// runnerSink is called from runner goroutines.
func (a *taskActor) runnerSink(env runner.Envelope) {
	if !a.mb.post(msgEnvelope{env: env}) && env.Ack != nil {
		env.Ack <- ErrClosed
	}
}

func (a *taskActor) envelope(env runner.Envelope) {
	rs := a.runs[env.RunID]
	if rs == nil {
		ack(env, errStaleRun)
		return
	}
	if env.Done {
		a.runDone(env.RunID, rs)
		return
	}

	as := rs.assignment
	if env.Event.Kind == runner.KindPaused && as.block == blockRelinquish && !a.closing {
		// A run superseded by resume still hands over its cursor.
		if err := a.checkpoint(as, env.Event.Cursor); err != nil {
			a.logger.Warnf("checkpoint late yield of %s: %v", as.ID, err)
		}
		ack(env, errStaleRun)
		return
	}
	if as.runID != env.RunID || as.Status.IsTerminal() || a.closing {
		ack(env, errStaleRun)
		return
	}

	ev := env.Event
	switch ev.Kind {
	case runner.KindProgress:
		a.progress(as, env)
	case runner.KindPaused:
		a.yielded(as, ev.Cursor)
	case runner.KindResult:
		as.Result = ev.Result
		a.transition(as, types.StatusCompleted, "completed")
	case runner.KindError:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		a.fail(as, types.ErrorKindWorker, msg, "worker_error")
	}
}

func ack(env runner.Envelope, err error) {
	if env.Ack != nil {
		env.Ack <- err
	}
}

// progress checkpoints the cursor before acknowledging it.
func (a *taskActor) progress(as *assignmentState, env runner.Envelope) {
	cursor := env.Event.Cursor
	if err := a.checkpoint(as, cursor); err != nil {
		a.fail(as, types.ErrorKindCheckpointWrite, err.Error(), "checkpoint_write_failure")
		ack(env, err)
		return
	}
	as.SessionLosses = 0
	a.emit(types.NewProgressEvent(a.id, as.ID, cursor, env.Event.Message))
	ack(env, nil)
}

// yielded handles the worker's pause acknowledgement.
func (a *taskActor) yielded(as *assignmentState, cursor string) {
	if err := a.checkpoint(as, cursor); err != nil {
		a.fail(as, types.ErrorKindCheckpointWrite, err.Error(), "checkpoint_write_failure")
		return
	}
	if as.Status == types.StatusRunning {
		a.transition(as, types.StatusPaused, "worker_paused")
	}
}

func (a *taskActor) checkpoint(as *assignmentState, cursor string) error {
	cp := types.Checkpoint{
		AssignmentID: as.ID,
		TaskID:       a.id,
		Cursor:       cursor,
		CapturedAt:   a.o.now(),
		TaskStatus:   a.task.Status,
		Seq:          as.ckptSeq + 1,
	}
	ctx, cancel := storeContext()
	defer cancel()
	if err := a.o.store.Save(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	as.ckptSeq = cp.Seq
	as.Cursor = cursor
	as.UpdatedAt = cp.CapturedAt
	a.changed = true
	return nil
}

func (a *taskActor) runDone(runID uint64, rs *runState) {
	delete(a.runs, runID)
	if rs.grace != nil {
		rs.grace.Stop()
	}

	as := rs.assignment
	if as.runID == runID {
		as.runID = 0
		if as.Status == types.StatusRunning && !a.closing {
			a.fail(as, types.ErrorKindWorker, "worker exited without a result", "worker_exited")
		}
	}
	if as.SessionID == rs.sessionID {
		as.SessionID = ""
		a.changed = true
	}
	a.endRunSpan(rs)

	if !rs.lost && !rs.quarantined {
		a.release(rs.sessionID)
	}
	a.relinquished(as)
}

func (a *taskActor) sessionLost(ev session.LostEvent) {
	as := a.byID[ev.AssignmentID]
	if as == nil {
		return
	}
	var (
		rs    *runState
		runID uint64
	)
	for id, r := range a.runs {
		if r.sessionID == ev.SessionID {
			rs, runID = r, id
			break
		}
	}
	if rs == nil {
		return
	}

	rs.lost = true
	rs.run.Stop()
	if as.SessionID == ev.SessionID {
		as.SessionID = ""
	}
	lost := types.NewSessionLostEvent(a.id, as.ID, ev.SessionID)
	if as.runID != runID {
		a.emit(lost)
		return
	}
	as.runID = 0

	if as.Status != types.StatusRunning {
		// Pausing: the assignment keeps its last checkpoint.
		a.emit(lost)
		return
	}
	as.SessionLosses++
	a.emit(lost.WithMetadata("losses", as.SessionLosses))
	if as.SessionLosses > a.o.cfg.MaxSessionLosses {
		a.fail(as, types.ErrorKindSessionLost,
			fmt.Sprintf("session %s died; %d consecutive losses", ev.SessionID, as.SessionLosses), "session_lost")
		return
	}
	a.transition(as, types.StatusQueued, "session_lost")
}

func (a *taskActor) armGrace(rs *runState) {
	if rs.grace != nil {
		return
	}
	id := rs.run.ID
	rs.grace = time.AfterFunc(a.o.cfg.StopGrace, func() {
		a.mb.post(msgGraceExpired{runID: id})
	})
}

// graceExpired quarantines the session of a runner that did not let go in
// time and forgets the run.
func (a *taskActor) graceExpired(runID uint64) {
	rs := a.runs[runID]
	if rs == nil {
		return
	}
	delete(a.runs, runID)
	rs.run.Stop()

	if !rs.lost {
		rs.quarantined = true
		if err := a.o.pool.Quarantine(rs.sessionID); err != nil {
			a.logger.Debugf("quarantine %s: %v", rs.sessionID, err)
		}
		warn := types.NewWarningEvent(a.id, fmt.Sprintf("runner did not stop within %s; session quarantined", a.o.cfg.StopGrace))
		warn.AssignmentID = rs.assignment.ID
		warn.SessionID = rs.sessionID
		a.emit(warn)
		a.logger.Warnf("session %s quarantined after stop grace", rs.sessionID)
	}

	as := rs.assignment
	if as.runID == runID {
		as.runID = 0
	}
	if as.SessionID == rs.sessionID {
		as.SessionID = ""
		a.changed = true
	}
	a.endRunSpan(rs)
	a.relinquished(as)
}

func (a *taskActor) queuedTimeout(m msgQueuedTimeout) {
	as := a.byID[m.assignmentID]
	if as == nil || as.Status != types.StatusQueued || as.queueEpoch != m.epoch {
		return
	}
	a.fail(as, types.ErrorKindSessionUnavailable,
		fmt.Sprintf("no session available after %s", a.o.cfg.MaxQueuedDuration), "session_unavailable")
}

func (a *taskActor) fail(as *assignmentState, kind types.ErrorKind, msg, reason string) {
	as.Error = &types.AssignmentError{Kind: kind, Message: msg}
	a.transition(as, types.StatusFailed, reason)
	a.logger.Warnf("assignment %s failed (%s): %s", as.ID, kind, msg)
}

func (a *taskActor) release(sessionID string) {
	if err := a.o.pool.Release(sessionID); err != nil {
		a.logger.Debugf("release %s: %v", sessionID, err)
	}
}

// transition moves an assignment to a new status and emits its event.
func (a *taskActor) transition(as *assignmentState, to types.Status, reason string) {
	from := as.Status
	if from == to || from.IsTerminal() {
		return
	}
	now := a.o.now()
	as.Status = to
	as.UpdatedAt = now

	if from == types.StatusQueued {
		as.attempt++
		as.leasing = false
		as.block = blockNone
	}
	if to == types.StatusQueued {
		a.enterQueued(as, now)
	}

	a.emit(types.NewTransitionEvent(a.id, as.ID, from, to, reason))
	a.changed = true
}

func (a *taskActor) enterQueued(as *assignmentState, now time.Time) {
	as.QueuedAt = now
	as.queueEpoch++
	as.block = blockNone

	d := a.o.cfg.MaxQueuedDuration
	if d <= 0 {
		return
	}
	id, epoch := as.ID, as.queueEpoch
	time.AfterFunc(d, func() {
		a.mb.post(msgQueuedTimeout{assignmentID: id, epoch: epoch})
	})
}

// emit stamps the event with the task sequence and publishes it.
func (a *taskActor) emit(ev *types.Event) {
	a.seq++
	ev.Seq = a.seq
	ev.Timestamp = a.o.now()
	a.changed = true
	a.o.sink.Publish(*ev)
}

// afterChange recomputes the task status, publishes the view and persists
// the record when anything changed.
func (a *taskActor) afterChange() {
	if !a.changed {
		return
	}
	a.changed = false

	statuses := make([]types.Status, len(a.assignments))
	for i, as := range a.assignments {
		statuses[i] = as.Status
	}
	if st := types.DeriveStatus(statuses); st != a.task.Status {
		from := a.task.Status
		a.task.Status = st
		a.task.UpdatedAt = a.o.now()
		a.emit(types.NewTransitionEvent(a.id, "", from, st, ""))
		a.changed = false
	}

	a.publish()
	if err := a.persist(); err != nil {
		a.logger.Warnf("persist task record: %v", err)
	}

	if a.isSettled() {
		a.settledOnce.Do(func() {
			close(a.settled)
			a.logger.Infof("task %s settled as %s", a.id, a.task.Status)
		})
		a.endSpan()
	}
}

func (a *taskActor) publish() {
	v := types.TaskView{Task: a.task, Assignments: make([]types.Assignment, len(a.assignments))}
	for i, as := range a.assignments {
		v.Assignments[i] = as.Assignment
	}
	v = v.Clone()

	a.viewMu.Lock()
	a.view = v
	a.viewMu.Unlock()
}

func (a *taskActor) snapshot() types.TaskView {
	a.viewMu.RLock()
	defer a.viewMu.RUnlock()
	return a.view.Clone()
}

// persist writes the published view. A failure leaves the record dirty
// for Flush or the next change.
func (a *taskActor) persist() error {
	a.version++
	v := a.snapshot()
	rec := types.TaskRecord{Task: v.Task, Assignments: v.Assignments, Version: a.version}

	ctx, cancel := storeContext()
	defer cancel()
	if err := a.o.store.SaveTask(ctx, rec); err != nil {
		a.dirty = true
		return fmt.Errorf("save task %s: %w", a.id, err)
	}
	a.dirty = false
	return nil
}

func (a *taskActor) isSettled() bool {
	if len(a.assignments) == 0 {
		return false
	}
	for _, as := range a.assignments {
		if !as.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func (a *taskActor) isSettledView() bool {
	select {
	case <-a.settled:
		return true
	default:
		return false
	}
}

func (a *taskActor) endRunSpan(rs *runState) {
	as := rs.assignment
	rs.span.SetAttributes(attribute.String("assignment.status", string(as.Status)))
	if as.Status == types.StatusFailed && as.Error != nil {
		rs.span.SetStatus(codes.Error, as.Error.Error())
	}
	rs.span.End()
}

func (a *taskActor) endSpan() {
	if a.spanEnded {
		return
	}
	a.spanEnded = true
	a.span.SetAttributes(attribute.String("task.status", string(a.task.Status)))
	if a.task.Status == types.StatusFailed {
		a.span.SetStatus(codes.Error, "task failed")
	}
	a.span.End()
}
