package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/eventlog"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/logging"
)

var (
	// ErrInvalidInput rejects a submission; no state was created.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidStateTransition rejects a command the task's state does not allow.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig sets the tuning values.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

// WithStore sets the checkpoint store. Defaults to an in-memory store.
func WithStore(s checkpoint.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithSink sets the event sink.
func WithSink(s eventlog.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

// WithDecomposer replaces the default decomposition.
func WithDecomposer(d Decomposer) Option {
	return func(o *Orchestrator) {
		o.decomposer = d
	}
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithTracerProvider sets where spans go. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// SubmitOption configures one submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	maxConcurrency int
	profileHint    string
	hintSet        bool
}

// WithMaxConcurrency bounds how many assignments of the task run at once.
// Defaults to the parallelism.
func WithMaxConcurrency(n int) SubmitOption {
	return func(s *submitOptions) {
		s.maxConcurrency = n
	}
}

// WithProfileHint restricts the task to sessions whose profile family
// matches the glob.
func WithProfileHint(glob string) SubmitOption {
	return func(s *submitOptions) {
		s.profileHint = glob
		s.hintSet = true
	}
}

// Decomposer splits a task description into one description per assignment.
type Decomposer interface {
	Decompose(ctx context.Context, description string, parallelism int) ([]string, error)
}

// DecomposerFunc adapts a function to Decomposer.
type DecomposerFunc func(ctx context.Context, description string, parallelism int) ([]string, error)

// Decompose calls f.
func (f DecomposerFunc) Decompose(ctx context.Context, description string, parallelism int) ([]string, error) {
	return f(ctx, description, parallelism)
}

// ReplicateDecomposer hands every agent the full description, framed with
// its position so workers can split the work among themselves.
type ReplicateDecomposer struct{}

// Decompose implements Decomposer.
func (ReplicateDecomposer) Decompose(_ context.Context, description string, parallelism int) ([]string, error) {
	if parallelism == 1 {
		return []string{description}, nil
	}
	parts := make([]string, parallelism)
	for i := range parts {
		parts[i] = fmt.Sprintf("[agent %d/%d] %s", i+1, parallelism, description)
	}
	return parts, nil
}
