package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vibesurf-ai/VibeSurf-sub002/internal/testing/sessiontest"
	"github.com/vibesurf-ai/VibeSurf-sub002/internal/testing/workertest"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/orchestrator"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

func TestRecoverResumesFromStore(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	pool1 := session.NewPool(sessiontest.New(), 2)
	w1 := workertest.New()
	o1 := orchestrator.New(pool1, w1, orchestrator.WithConfig(testConfig()), orchestrator.WithStore(store))

	running, err := o1.Submit(ctx, "keep going", 1)
	require.NoError(t, err)
	c, err := w1.Next(waitFor)
	require.NoError(t, err)
	require.True(t, c.Progress("c1"))

	paused, err := o1.Submit(ctx, "hold still", 1)
	require.NoError(t, err)
	p, err := w1.Next(waitFor)
	require.NoError(t, err)
	require.True(t, p.Progress("p1"))
	require.NoError(t, o1.Pause(ctx, paused))

	require.Eventually(t, func() bool {
		v, _ := o1.GetStatus(running)
		return v.Assignments[0].Cursor == "c1"
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		v, _ := o1.GetStatus(paused)
		return v.Assignments[0].Cursor == "p1" && pool1.Stats().Leased == 1
	}, waitFor, tick)

	closeCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, o1.Close(closeCtx))
	require.NoError(t, pool1.Close(closeCtx))

	pool2 := session.NewPool(sessiontest.New(), 2)
	w2 := workertest.New()
	events := &recorder{}
	o2 := orchestrator.New(pool2, w2,
		orchestrator.WithConfig(testConfig()),
		orchestrator.WithStore(store),
		orchestrator.WithSink(events))
	t.Cleanup(func() {
		for _, c := range w2.Calls() {
			c.Release()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = o2.Close(ctx)
		_ = pool2.Close(ctx)
	})

	n, err := o2.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resumed, err := w2.Next(waitFor)
	require.NoError(t, err)
	assert.Equal(t, running, resumed.Req.TaskID)
	assert.True(t, resumed.Req.Resumed)
	assert.Equal(t, "c1", resumed.Req.ResumeCursor)

	v, err := o2.GetStatus(paused)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, v.Task.Status)
	assert.Equal(t, "p1", v.Assignments[0].Cursor)

	var ids []string
	for _, v := range o2.List() {
		ids = append(ids, v.Task.ID)
	}
	assert.ElementsMatch(t, []string{running, paused}, ids)

	require.NoError(t, o2.Resume(ctx, paused))
	again, err := w2.Next(waitFor)
	require.NoError(t, err)
	assert.Equal(t, paused, again.Req.TaskID)
	assert.Equal(t, "p1", again.Req.ResumeCursor)

	// A second recovery skips tasks that are already loaded.
	n, err = o2.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Positive(t, events.count(func(ev types.Event) bool { return ev.Reason == "recovered" }))
}

func TestRecoverKeepsSettledTasksSettled(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()

	f := newFixture(t, 1, testConfig(), orchestrator.WithStore(store))
	id := f.submit("finish fast", 1)
	f.next().Complete("done")
	_, err := f.orch.Wait(ctx, id)
	require.NoError(t, err)
	require.NoError(t, f.orch.Flush(ctx))

	pool := session.NewPool(sessiontest.New(), 1)
	w := workertest.New()
	o := orchestrator.New(pool, w, orchestrator.WithConfig(testConfig()), orchestrator.WithStore(store))
	t.Cleanup(func() {
		_ = o.Close(context.Background())
		_ = pool.Close(context.Background())
	})

	n, err := o.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "settled tasks are loaded but not counted")

	v, err := o.Wait(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, v.Task.Status)
	assert.Equal(t, "done", v.Assignments[0].Result)
	_, err = w.Next(quiet)
	assert.ErrorIs(t, err, workertest.ErrNoCall)
	assert.NoError(t, o.Cancel(ctx, id))
}

func TestFlushRetriesFailedRecordWrites(t *testing.T) {
	f := newFixture(t, 1, testConfig())
	ctx := context.Background()

	f.store.failTasks(errors.New("store offline"))
	id := f.submit("persist me", 1)
	f.next()
	f.eventually(id, func(v types.TaskView) bool { return v.Task.Status == types.StatusRunning }, "running")

	recs, err := f.store.LoadTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Error(t, f.orch.Flush(ctx))

	f.store.failTasks(nil)
	require.NoError(t, f.orch.Flush(ctx))

	recs, err = f.store.LoadTasks(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].Task.ID)
	assert.Equal(t, types.StatusRunning, recs[0].Task.Status)
	assert.Positive(t, recs[0].Version)
}

func TestSpansCoverSubmitTaskAndRun(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, 1, testConfig(), orchestrator.WithTracerProvider(tp))
	id := f.submit("traced", 1)
	f.next().Complete("ok")

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := f.orch.Wait(ctx, id)
	require.NoError(t, err)

	ended := func() map[string]int {
		names := map[string]int{}
		for _, s := range sr.Ended() {
			names[s.Name()]++
		}
		return names
	}
	require.Eventually(t, func() bool {
		names := ended()
		return names["orchestrator.Submit"] == 1 && names["orchestrator.task"] == 1 && names["orchestrator.run"] == 1
	}, waitFor, tick)

	var submit, task sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "orchestrator.Submit":
			submit = s
		case "orchestrator.task":
			task = s
		}
	}
	require.Len(t, task.Links(), 1)
	assert.Equal(t, submit.SpanContext().TraceID(), task.Links()[0].SpanContext.TraceID())
}
