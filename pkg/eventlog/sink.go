// Package eventlog delivers orchestrator events to their consumers: live
// subscribers, an append-only JSON lines file and the component log.
package eventlog

import (
	"sync"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// Sink receives every event in per-task order. Publish must not block.
type Sink interface {
	Publish(ev types.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(types.Event)

// Publish calls f.
func (f SinkFunc) Publish(ev types.Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(types.Event) {})

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(ev types.Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ev)
		}
	}
}

// LogSink writes events to a component logger.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(ev types.Event) {
	zl := s.logger.Zerolog()
	e := zl.Info()
	if ev.Type == types.EventTypeWarning || ev.Type == types.EventTypeSessionLost {
		e = zl.Warn()
	}
	e = e.Str("event", string(ev.Type)).
		Str("task_id", ev.TaskID).
		Int64("seq", ev.Seq)
	if ev.AssignmentID != "" {
		e = e.Str("assignment_id", ev.AssignmentID)
	}
	if ev.SessionID != "" {
		e = e.Str("session_id", ev.SessionID)
	}
	if ev.Type == types.EventTypeTransition {
		e = e.Str("from", string(ev.From)).Str("to", string(ev.To))
	}
	if ev.Reason != "" {
		e = e.Str("reason", ev.Reason)
	}
	if ev.Cursor != "" {
		e = e.Str("cursor", ev.Cursor)
	}
	e.Msg(ev.Message)
}

// Broadcaster fans events out to live subscribers. A subscriber that falls
// behind loses events instead of stalling the publisher.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan types.Event
	next    int
	dropped int
	closed  bool
}

// NewBroadcaster returns a broadcaster without subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan types.Event)}
}

// Subscribe returns a channel buffered to buffer events and a function that
// unsubscribes and closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan types.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish implements Sink.
func (b *Broadcaster) Publish(ev types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
