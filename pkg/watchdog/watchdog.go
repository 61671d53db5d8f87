// Package watchdog probes pooled sessions on a fixed interval and declares
// them dead after consecutive failures.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/session"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// Pool is the part of session.Pool the watchdog drives.
type Pool interface {
	Live() []string
	Get(sessionID string) (session.Info, bool)
	Probe(ctx context.Context, sessionID string) error
	SetHealth(sessionID string, h types.Health) error
	MarkDead(sessionID string) bool
	Reinstate(sessionID string) error
	CleanupIdle(maxIdle time.Duration) int
}

// Config controls the probe cycle.
type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
	// FailureThreshold consecutive failures mark a session dead.
	FailureThreshold int
	// IdleTimeout is passed to the pool's shrink policy each cycle.
	IdleTimeout time.Duration
}

// DefaultConfig returns a 10s cycle with three strikes.
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Second,
		ProbeTimeout:     5 * time.Second,
		FailureThreshold: 3,
	}
}

// Transition reports a health change observed by a cycle.
type Transition struct {
	SessionID string
	From      types.Health
	To        types.Health
}

// Watchdog owns the per-session failure counters.
type Watchdog struct {
	pool   Pool
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	failures map[string]int
	health   map[string]types.Health

	onTransition func(Transition)
}

// New creates a watchdog. Call Run to start probing.
func New(pool Pool, cfg Config, logger *logging.Logger) *Watchdog {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watchdog{
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
		failures: make(map[string]int),
		health:   make(map[string]types.Health),
	}
}

// OnTransition registers a callback for health changes. It must be set
// before Run.
func (w *Watchdog) OnTransition(fn func(Transition)) {
	w.onTransition = fn
}

// Run probes every cfg.Interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.cfg.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Cycle(ctx)
		}
	}
}

// Cycle runs one probe round over every live session and applies the idle
// shrink policy. Probes run concurrently; one failing or panicking probe
// never affects the others.
func (w *Watchdog) Cycle(ctx context.Context) {
	ids := w.pool.Live()

	var wg sync.WaitGroup
	results := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = w.probe(ctx, id)
		}(i, id)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	for i, id := range ids {
		w.apply(id, results[i])
	}
	w.forgetGone(ids)

	if n := w.pool.CleanupIdle(w.cfg.IdleTimeout); n > 0 {
		w.logger.Infof("closed %d idle sessions", n)
	}
}

func (w *Watchdog) probe(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()
	return w.pool.Probe(pctx, id)
}

func (w *Watchdog) apply(id string, probeErr error) {
	info, ok := w.pool.Get(id)
	if !ok {
		// Released for teardown or marked dead while we probed
		return
	}

	w.mu.Lock()
	prev, seen := w.health[id]
	if !seen {
		prev = info.Health
	}

	var next types.Health
	if probeErr == nil {
		w.failures[id] = 0
		next = types.HealthHealthy
	} else {
		w.failures[id]++
		next = stepHealth(w.failures[id], w.cfg.FailureThreshold)
	}
	w.health[id] = next
	failures := w.failures[id]
	w.mu.Unlock()

	if probeErr != nil {
		w.logger.Debugf("probe of session %s failed (%d/%d): %v", id, failures, w.cfg.FailureThreshold, probeErr)
	}

	if next == types.HealthDead {
		if w.pool.MarkDead(id) {
			w.logger.Warnf("session %s dead after %d failed probes", id, failures)
			w.emit(Transition{SessionID: id, From: prev, To: next})
		}
		w.forget(id)
		return
	}

	if err := w.pool.SetHealth(id, next); err != nil {
		w.logger.Debugf("set health for %s: %v", id, err)
		return
	}
	if next == types.HealthHealthy && info.Quarantined {
		if err := w.pool.Reinstate(id); err == nil {
			w.logger.Infof("quarantined session %s answered, reinstated", id)
		}
	}
	if next != prev {
		w.emit(Transition{SessionID: id, From: prev, To: next})
	}
}

// stepHealth maps a failure count onto the health ladder. With the default
// threshold of three each failure moves one step: degraded, unresponsive,
// dead.
func stepHealth(failures, threshold int) types.Health {
	if failures >= threshold {
		return types.HealthDead
	}
	h := types.HealthHealthy
	steps := failures
	if threshold > 3 {
		// Spread intermediate levels over the longer window
		steps = (failures*2 + threshold - 1) / threshold
	}
	for i := 0; i < steps && h != types.HealthUnresponsive; i++ {
		h = h.Worse()
	}
	return h
}

func (w *Watchdog) emit(t Transition) {
	if w.onTransition != nil {
		w.onTransition(t)
	}
}

func (w *Watchdog) forget(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failures, id)
	delete(w.health, id)
}

func (w *Watchdog) forgetGone(live []string) {
	keep := make(map[string]bool, len(live))
	for _, id := range live {
		keep[id] = true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.failures {
		if !keep[id] {
			delete(w.failures, id)
			delete(w.health, id)
		}
	}
}

// Failures returns the consecutive failure count of a session.
func (w *Watchdog) Failures(sessionID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures[sessionID]
}
