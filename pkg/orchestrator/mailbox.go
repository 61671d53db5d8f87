package orchestrator

import "sync"

// mailbox is an unbounded FIFO queue with a single consumer. Posting never
// blocks, so pool callbacks and runners can deliver from any goroutine.
type mailbox struct {
	mu     sync.Mutex
	queue  []message
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post enqueues msg. It returns false once the mailbox is closed.
func (m *mailbox) post(msg message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything queued so far.
func (m *mailbox) take() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queue
	m.queue = nil
	return msgs
}

// close rejects further posts and returns what was still queued.
func (m *mailbox) close() []message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	msgs := m.queue
	m.queue = nil
	return msgs
}
