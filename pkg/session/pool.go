// Package session owns the pool of isolated browser sessions that
// assignments lease for exclusive use.
//
// The pool is the only place session state is mutated. Lease, Release,
// MarkDead, Quarantine and Reinstate are serialized through one mutex;
// capability calls (create, probe, destroy) run outside of it so a slow
// browser launch never blocks another caller.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

var (
	// ErrBusy is returned by Lease when the pool is at its ceiling and no
	// idle session matches. Callers retry after the next release notification.
	ErrBusy = errors.New("session pool busy")

	// ErrUnknownSession is returned for ids the pool does not track.
	ErrUnknownSession = errors.New("unknown session")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("session pool closed")
)

// DefaultProfile is the family assigned to sessions created without a hint.
const DefaultProfile = "default"

// destroyTimeout bounds a single asynchronous teardown.
const destroyTimeout = 30 * time.Second

// Handle is the opaque control connection produced by a Capability.
type Handle interface{}

// Capability creates, probes and destroys concrete browser sessions.
type Capability interface {
	// Create launches a new isolated session for the given profile family.
	Create(ctx context.Context, profile string) (Handle, string, error)
	// Probe returns nil when the session's control channel answers.
	Probe(ctx context.Context, h Handle) error
	// Destroy tears the session down and removes its profile data.
	Destroy(ctx context.Context, h Handle) error
}

// Session is a pooled browser session. The exported fields never change
// after creation; everything else is owned by the pool.
type Session struct {
	ID         string
	Profile    string
	ProfileRef string
	Handle     Handle

	health      types.Health
	leasedTo    string
	quarantined bool
	createdAt   time.Time
	lastUsedAt  time.Time
}

// Info is a point-in-time copy of a session's state.
type Info struct {
	ID          string       `json:"id"`
	Profile     string       `json:"profile"`
	ProfileRef  string       `json:"profile_ref"`
	Health      types.Health `json:"health"`
	LeasedTo    string       `json:"leased_to,omitempty"`
	Quarantined bool         `json:"quarantined,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	LastUsedAt  time.Time    `json:"last_used_at"`
}

// LostEvent reports that a leased session died under its assignment.
type LostEvent struct {
	SessionID    string
	AssignmentID string
}

// Stats summarizes pool occupancy.
type Stats struct {
	Live     int `json:"live"`
	Idle     int `json:"idle"`
	Leased   int `json:"leased"`
	Creating int `json:"creating"`
	Ceiling  int `json:"ceiling"`
}

// Pool leases sessions up to a fixed ceiling.
type Pool struct {
	mu          sync.Mutex
	capability  Capability
	ceiling     int
	sessions    map[string]*Session
	creating    int
	tearingDown int
	generation  uint64
	closed      bool
	matchers    map[string]glob.Glob

	subMu      sync.RWMutex
	onRelease  []func()
	onLost     []func(LostEvent)
	teardownWG sync.WaitGroup

	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// NewPool creates a pool that never holds more than ceiling sessions.
func NewPool(capability Capability, ceiling int, opts ...Option) *Pool {
	if ceiling < 1 {
		ceiling = 1
	}
	p := &Pool{
		capability: capability,
		ceiling:    ceiling,
		sessions:   make(map[string]*Session),
		matchers:   make(map[string]glob.Glob),
		logger:     logging.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnRelease registers fn to be called whenever capacity may have become
// available: a release, a finished teardown, a failed creation or a reinstated
// session. fn runs on the caller's goroutine and must not block.
func (p *Pool) OnRelease(fn func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.onRelease = append(p.onRelease, fn)
}

// OnSessionLost registers fn to be called when a leased session is marked dead.
func (p *Pool) OnSessionLost(fn func(LostEvent)) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.onLost = append(p.onLost, fn)
}

func (p *Pool) notifyRelease() {
	p.subMu.RLock()
	subs := append([]func(){}, p.onRelease...)
	p.subMu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

func (p *Pool) notifyLost(ev LostEvent) {
	p.subMu.RLock()
	subs := append([]func(LostEvent){}, p.onLost...)
	p.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Generation increases every time capacity may have been freed. A caller
// that saw ErrBusy can compare the generation it captured before leasing
// with the current one to detect a release it raced with.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Ceiling returns the configured maximum number of live sessions.
func (p *Pool) Ceiling() int {
	return p.ceiling
}

func (p *Pool) matcher(hint string) (glob.Glob, error) {
	if m, ok := p.matchers[hint]; ok {
		return m, nil
	}
	m, err := glob.Compile(hint)
	if err != nil {
		return nil, fmt.Errorf("invalid profile hint %q: %w", hint, err)
	}
	p.matchers[hint] = m
	return m, nil
}

// Lease hands an idle session matching profileHint to assignmentID, or
// creates one when the ceiling allows. profileHint is a glob over profile
// families; empty matches any. ErrBusy means retry later.
func (p *Pool) Lease(ctx context.Context, assignmentID, profileHint string) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	var match glob.Glob
	if profileHint != "" {
		m, err := p.matcher(profileHint)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		match = m
	}

	if s := p.pickIdle(match); s != nil {
		s.leasedTo = assignmentID
		s.lastUsedAt = p.now()
		p.mu.Unlock()
		p.logger.Debugf("leased idle session %s to %s", s.ID, assignmentID)
		return s, nil
	}

	if p.occupied() >= p.ceiling {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.creating++
	p.mu.Unlock()

	profile := profileHint
	if profile == "" {
		profile = DefaultProfile
	}

	handle, ref, err := p.capability.Create(ctx, profile)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.generation++
		p.mu.Unlock()
		p.notifyRelease()
		return nil, fmt.Errorf("create session: %w", err)
	}
	if p.closed {
		p.mu.Unlock()
		p.destroy(handle, "")
		return nil, ErrClosed
	}

	now := p.now()
	s := &Session{
		ID:         uuid.New().String(),
		Profile:    profile,
		ProfileRef: ref,
		Handle:     handle,
		health:     types.HealthHealthy,
		leasedTo:   assignmentID,
		createdAt:  now,
		lastUsedAt: now,
	}
	p.sessions[s.ID] = s
	p.mu.Unlock()

	p.logger.Infof("created session %s (profile %s) for %s", s.ID, profile, assignmentID)
	return s, nil
}

// pickIdle returns the least recently used healthy idle session matching m.
// Must hold p.mu.
func (p *Pool) pickIdle(m glob.Glob) *Session {
	var best *Session
	for _, s := range p.sessions {
		if s.leasedTo != "" || s.quarantined || s.health != types.HealthHealthy {
			continue
		}
		if m != nil && !m.Match(s.Profile) {
			continue
		}
		if best == nil || s.lastUsedAt.Before(best.lastUsedAt) {
			best = s
		}
	}
	return best
}

// occupied counts every slot toward the ceiling. Must hold p.mu.
func (p *Pool) occupied() int {
	return len(p.sessions) + p.creating + p.tearingDown
}

// Release returns a leased session to the idle set. Releasing an idle
// session is a no-op.
func (p *Pool) Release(sessionID string) error {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("release %s: %w", sessionID, ErrUnknownSession)
	}
	if s.leasedTo == "" {
		p.mu.Unlock()
		return nil
	}
	holder := s.leasedTo
	s.leasedTo = ""
	s.lastUsedAt = p.now()
	p.generation++
	p.mu.Unlock()

	p.logger.Debugf("session %s released by %s", sessionID, holder)
	p.notifyRelease()
	return nil
}

// MarkDead revokes any lease on the session, tears it down asynchronously
// and notifies OnSessionLost subscribers if it was leased. It reports
// whether this call performed the transition; repeated calls are no-ops.
func (p *Pool) MarkDead(sessionID string) bool {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	holder := s.leasedTo
	s.leasedTo = ""
	s.health = types.HealthDead
	delete(p.sessions, sessionID)
	p.tearingDown++
	p.mu.Unlock()

	p.logger.Warnf("session %s marked dead (leased to %q)", sessionID, holder)
	if holder != "" {
		p.notifyLost(LostEvent{SessionID: sessionID, AssignmentID: holder})
	}

	p.teardownWG.Add(1)
	go func() {
		defer p.teardownWG.Done()
		p.destroy(s.Handle, sessionID)
		p.mu.Lock()
		p.tearingDown--
		p.generation++
		p.mu.Unlock()
		p.notifyRelease()
	}()
	return true
}

// Quarantine revokes the lease on a session whose holder did not let go in
// time. The session is not leased again until Reinstate.
func (p *Pool) Quarantine(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("quarantine %s: %w", sessionID, ErrUnknownSession)
	}
	s.quarantined = true
	s.leasedTo = ""
	p.logger.Warnf("session %s quarantined", sessionID)
	return nil
}

// Reinstate returns a quarantined session to the idle set.
func (p *Pool) Reinstate(sessionID string) error {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("reinstate %s: %w", sessionID, ErrUnknownSession)
	}
	if !s.quarantined {
		p.mu.Unlock()
		return nil
	}
	s.quarantined = false
	s.health = types.HealthHealthy
	s.lastUsedAt = p.now()
	p.generation++
	p.mu.Unlock()

	p.logger.Infof("session %s reinstated", sessionID)
	p.notifyRelease()
	return nil
}

// SetHealth records a probe outcome. Dead is reached only through MarkDead.
func (p *Pool) SetHealth(sessionID string, h types.Health) error {
	if h == types.HealthDead {
		return fmt.Errorf("set health %s: use MarkDead", sessionID)
	}

	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("set health %s: %w", sessionID, ErrUnknownSession)
	}
	recovered := s.health != types.HealthHealthy && h == types.HealthHealthy && s.leasedTo == "" && !s.quarantined
	s.health = h
	if recovered {
		p.generation++
	}
	p.mu.Unlock()

	if recovered {
		p.notifyRelease()
	}
	return nil
}

// Probe runs the capability probe against the session's handle.
func (p *Pool) Probe(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	s, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("probe %s: %w", sessionID, ErrUnknownSession)
	}
	return p.capability.Probe(ctx, s.Handle)
}

// Live returns the ids of every session not yet marked dead.
func (p *Pool) Live() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns a copy of one session's state.
func (p *Pool) Get(sessionID string) (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// Snapshot returns every live session ordered by creation time.
func (p *Pool) Snapshot() []Info {
	p.mu.Lock()
	infos := make([]Info, 0, len(p.sessions))
	for _, s := range p.sessions {
		infos = append(infos, s.info())
	}
	p.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Stats returns the pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Stats{Live: len(p.sessions), Creating: p.creating, Ceiling: p.ceiling}
	for _, s := range p.sessions {
		if s.leasedTo != "" {
			st.Leased++
		} else if !s.quarantined {
			st.Idle++
		}
	}
	return st
}

func (s *Session) info() Info {
	return Info{
		ID:          s.ID,
		Profile:     s.Profile,
		ProfileRef:  s.ProfileRef,
		Health:      s.health,
		LeasedTo:    s.leasedTo,
		Quarantined: s.quarantined,
		CreatedAt:   s.createdAt,
		LastUsedAt:  s.lastUsedAt,
	}
}

// CleanupIdle tears down idle sessions unused for longer than maxIdle and
// returns how many were removed.
func (p *Pool) CleanupIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}

	p.mu.Lock()
	now := p.now()
	var victims []*Session
	for id, s := range p.sessions {
		if s.leasedTo != "" || s.quarantined {
			continue
		}
		if now.Sub(s.lastUsedAt) > maxIdle {
			victims = append(victims, s)
			delete(p.sessions, id)
			p.tearingDown++
		}
	}
	p.mu.Unlock()

	for _, s := range victims {
		p.logger.Debugf("closing idle session %s", s.ID)
		p.teardownWG.Add(1)
		go func(s *Session) {
			defer p.teardownWG.Done()
			p.destroy(s.Handle, s.ID)
			p.mu.Lock()
			p.tearingDown--
			p.generation++
			p.mu.Unlock()
			p.notifyRelease()
		}(s)
	}
	return len(victims)
}

func (p *Pool) destroy(h Handle, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	if err := p.capability.Destroy(ctx, h); err != nil {
		p.logger.Warnf("failed to destroy session %s: %v", sessionID, err)
	}
}

// Close destroys every session, leased or not, and waits for pending
// teardowns. Lease fails with ErrClosed afterwards.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	all := make([]*Session, 0, len(p.sessions))
	for id, s := range p.sessions {
		all = append(all, s)
		delete(p.sessions, id)
	}
	p.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := p.capability.Destroy(ctx, s.Handle); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.teardownWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	return errors.Join(errs...)
}
