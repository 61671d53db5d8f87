// Package sessiontest provides an in-memory session.Capability for tests.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
)

// ErrProbe is returned by Probe for sessions marked unhealthy.
var ErrProbe = errors.New("probe failed")

// Handle is the handle produced by Capability.
type Handle struct {
	N       int
	Profile string
}

// Capability is a thread-safe fake browser launcher.
type Capability struct {
	mu        sync.Mutex
	created   int
	destroyed []int
	failing   map[int]bool
	panicking map[int]bool
	createErr error
	gate      chan struct{}
}

// New returns an empty fake.
func New() *Capability {
	return &Capability{
		failing:   make(map[int]bool),
		panicking: make(map[int]bool),
	}
}

var _ session.Capability = (*Capability)(nil)

// Create returns a new Handle. It blocks while a gate is installed.
func (c *Capability) Create(ctx context.Context, profile string) (session.Handle, string, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, "", c.createErr
	}
	c.created++
	h := &Handle{N: c.created, Profile: profile}
	return h, fmt.Sprintf("%s-%d", profile, c.created), nil
}

// Probe fails for handles set through SetFailing and panics for SetPanicking.
func (c *Capability) Probe(ctx context.Context, h session.Handle) error {
	n := h.(*Handle).N
	c.mu.Lock()
	failing := c.failing[n]
	panicking := c.panicking[n]
	c.mu.Unlock()
	if panicking {
		panic(fmt.Sprintf("probe of handle %d exploded", n))
	}
	if failing {
		return ErrProbe
	}
	return nil
}

// Destroy records the teardown.
func (c *Capability) Destroy(ctx context.Context, h session.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed = append(c.destroyed, h.(*Handle).N)
	return nil
}

// SetFailing makes probes of handle n fail (or succeed again).
func (c *Capability) SetFailing(n int, failing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[n] = failing
}

// SetPanicking makes probes of handle n panic.
func (c *Capability) SetPanicking(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panicking[n] = true
}

// SetCreateError makes every Create fail with err (nil restores).
func (c *Capability) SetCreateError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createErr = err
}

// Gate blocks Create until the returned function is called.
func (c *Capability) Gate() (open func()) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gate = ch
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.gate = nil
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Created returns how many sessions were launched.
func (c *Capability) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// Destroyed returns the handle numbers torn down so far.
func (c *Capability) Destroyed() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.destroyed...)
}

// HandleOf returns the handle number of a leased session.
func HandleOf(s *session.Session) int {
	return s.Handle.(*Handle).N
}
