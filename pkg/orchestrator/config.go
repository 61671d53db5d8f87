package orchestrator

import (
	"time"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
)

// Config holds the orchestration tuning values.
type Config struct {
	// MaxSessionLosses is how many consecutive session deaths an assignment
	// survives through automatic resume. The next one fails it.
	MaxSessionLosses int
	// MaxQueuedDuration fails an assignment that waited this long for a
	// session. Zero waits forever.
	MaxQueuedDuration time.Duration
	// StopGrace bounds how long a canceled or paused runner may hold its
	// session before the session is quarantined.
	StopGrace time.Duration
	// LeaseRetryDelay spaces lease attempts after a failed session creation.
	LeaseRetryDelay time.Duration
	// DefaultProfileHint is used when a task does not carry its own hint.
	DefaultProfileHint string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessionLosses:  1,
		MaxQueuedDuration: 10 * time.Minute,
		StopGrace:         10 * time.Second,
		LeaseRetryDelay:   2 * time.Second,
	}
}

// ConfigFrom converts the file configuration section.
func ConfigFrom(c config.OrchestratorConfig) Config {
	cfg := DefaultConfig()
	cfg.MaxSessionLosses = c.MaxSessionLosses
	cfg.MaxQueuedDuration = c.MaxQueuedDuration.D()
	if c.StopGrace.D() > 0 {
		cfg.StopGrace = c.StopGrace.D()
	}
	if c.LeaseRetryDelay.D() > 0 {
		cfg.LeaseRetryDelay = c.LeaseRetryDelay.D()
	}
	cfg.DefaultProfileHint = c.DefaultProfileHint
	return cfg
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSessionLosses < 0 {
		c.MaxSessionLosses = 0
	}
	if c.StopGrace <= 0 {
		c.StopGrace = def.StopGrace
	}
	if c.LeaseRetryDelay <= 0 {
		c.LeaseRetryDelay = def.LeaseRetryDelay
	}
	return c
}
