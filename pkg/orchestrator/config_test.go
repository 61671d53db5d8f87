package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
)

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.OrchestratorConfig{
		MaxSessionLosses:   2,
		MaxQueuedDuration:  config.Duration(time.Minute),
		StopGrace:          config.Duration(3 * time.Second),
		LeaseRetryDelay:    config.Duration(250 * time.Millisecond),
		DefaultProfileHint: "shop-*",
	})

	assert.Equal(t, 2, cfg.MaxSessionLosses)
	assert.Equal(t, time.Minute, cfg.MaxQueuedDuration)
	assert.Equal(t, 3*time.Second, cfg.StopGrace)
	assert.Equal(t, 250*time.Millisecond, cfg.LeaseRetryDelay)
	assert.Equal(t, "shop-*", cfg.DefaultProfileHint)
}

func TestConfigFromKeepsDefaultsForZeroDurations(t *testing.T) {
	cfg := ConfigFrom(config.OrchestratorConfig{})
	def := DefaultConfig()

	assert.Equal(t, def.StopGrace, cfg.StopGrace)
	assert.Equal(t, def.LeaseRetryDelay, cfg.LeaseRetryDelay)
	assert.Zero(t, cfg.MaxQueuedDuration)
}
