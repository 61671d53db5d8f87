// Package config loads the vibesurf runtime configuration from YAML or
// TOML files and the environment.
package config

import (
	"fmt"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Pool         PoolConfig         `yaml:"pool" toml:"pool"`
	Watchdog     WatchdogConfig     `yaml:"watchdog" toml:"watchdog"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" toml:"orchestrator"`
	Store        StoreConfig        `yaml:"store" toml:"store"`
	Events       EventsConfig       `yaml:"events" toml:"events"`
	LLM          LLMConfig          `yaml:"llm" toml:"llm"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" toml:"telemetry"`
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Logging      LoggingConfig      `yaml:"logging" toml:"logging"`
}

// PoolConfig controls the browser session pool.
type PoolConfig struct {
	// Ceiling is the maximum number of live sessions, including ones being created.
	Ceiling int `yaml:"ceiling" toml:"ceiling"`
	// IdleTimeout tears down idle sessions unused for longer than this. Zero disables shrinking.
	IdleTimeout Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	// ProfileDir is the root directory for per-session browser profiles.
	ProfileDir string `yaml:"profile_dir" toml:"profile_dir"`
	Headless   bool   `yaml:"headless" toml:"headless"`
	// InstallBrowsers downloads the playwright driver and browsers on startup.
	InstallBrowsers bool     `yaml:"install_browsers" toml:"install_browsers"`
	ViewportWidth   int      `yaml:"viewport_width" toml:"viewport_width"`
	ViewportHeight  int      `yaml:"viewport_height" toml:"viewport_height"`
	ActionTimeout   Duration `yaml:"action_timeout" toml:"action_timeout"`
}

// WatchdogConfig controls session health probing.
type WatchdogConfig struct {
	Interval     Duration `yaml:"interval" toml:"interval"`
	ProbeTimeout Duration `yaml:"probe_timeout" toml:"probe_timeout"`
	// FailureThreshold is the number of consecutive failed probes before a session is dead.
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`
}

// OrchestratorConfig holds the tuning values of the task state machine.
type OrchestratorConfig struct {
	// MaxSessionLosses is the number of automatic resumes after a lost session.
	MaxSessionLosses int `yaml:"max_session_losses" toml:"max_session_losses"`
	// MaxQueuedDuration fails an assignment that waited this long for a session. Zero waits forever.
	MaxQueuedDuration Duration `yaml:"max_queued_duration" toml:"max_queued_duration"`
	// StopGrace bounds how long a stopping runner may hold its session.
	StopGrace Duration `yaml:"stop_grace" toml:"stop_grace"`
	// LeaseRetryDelay spaces lease attempts after a failed session creation.
	LeaseRetryDelay    Duration `yaml:"lease_retry_delay" toml:"lease_retry_delay"`
	DefaultProfileHint string   `yaml:"default_profile_hint" toml:"default_profile_hint"`
}

// StoreConfig selects and configures the checkpoint store backend.
type StoreConfig struct {
	// Backend is one of memory, file, redis, sqlite, postgres.
	Backend     string `yaml:"backend" toml:"backend"`
	Dir         string `yaml:"dir" toml:"dir"`
	RedisAddr   string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix" toml:"redis_prefix"`
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" toml:"postgres_dsn"`
}

// EventsConfig controls where task events are written.
type EventsConfig struct {
	// JSONLPath appends every event to this file when set.
	JSONLPath string `yaml:"jsonl_path" toml:"jsonl_path"`
	// Log writes every event to the component log.
	Log bool `yaml:"log" toml:"log"`
}

// LLMConfig configures the model behind the browser agent worker.
type LLMConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
	// MaxSteps bounds the number of actions per assignment run.
	MaxSteps int `yaml:"max_steps" toml:"max_steps"`
	// MaxObservationTokens truncates page text shown to the model.
	MaxObservationTokens int `yaml:"max_observation_tokens" toml:"max_observation_tokens"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Endpoint    string `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool   `yaml:"insecure" toml:"insecure"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// ServerConfig configures the gRPC health endpoint.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level   string `yaml:"level" toml:"level"`
	Console bool   `yaml:"console" toml:"console"`
	Dir     string `yaml:"dir" toml:"dir"`
}

// DefaultConfig returns a configuration suitable for a single local user.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Ceiling:        5,
			IdleTimeout:    Duration(5 * time.Minute),
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 720,
			ActionTimeout:  Duration(30 * time.Second),
		},
		Watchdog: WatchdogConfig{
			Interval:         Duration(10 * time.Second),
			ProbeTimeout:     Duration(5 * time.Second),
			FailureThreshold: 3,
		},
		Orchestrator: OrchestratorConfig{
			MaxSessionLosses:  1,
			MaxQueuedDuration: Duration(10 * time.Minute),
			StopGrace:         Duration(10 * time.Second),
			LeaseRetryDelay:   Duration(2 * time.Second),
		},
		Store: StoreConfig{
			Backend:     "file",
			RedisPrefix: "vibesurf",
		},
		LLM: LLMConfig{
			Model:                "gpt-4o-mini",
			MaxSteps:             40,
			MaxObservationTokens: 3000,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "vibesurf",
		},
		Server: ServerConfig{
			Addr: ":50051",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Pool.Ceiling < 1 {
		return fmt.Errorf("pool.ceiling must be at least 1")
	}
	if c.Pool.IdleTimeout < 0 {
		return fmt.Errorf("pool.idle_timeout cannot be negative")
	}

	if c.Watchdog.Interval <= 0 {
		return fmt.Errorf("watchdog.interval must be positive")
	}
	if c.Watchdog.ProbeTimeout <= 0 {
		return fmt.Errorf("watchdog.probe_timeout must be positive")
	}
	if c.Watchdog.FailureThreshold < 1 {
		return fmt.Errorf("watchdog.failure_threshold must be at least 1")
	}

	if c.Orchestrator.MaxSessionLosses < 0 {
		return fmt.Errorf("orchestrator.max_session_losses cannot be negative")
	}
	if c.Orchestrator.MaxQueuedDuration < 0 {
		return fmt.Errorf("orchestrator.max_queued_duration cannot be negative")
	}
	if c.Orchestrator.StopGrace <= 0 {
		return fmt.Errorf("orchestrator.stop_grace must be positive")
	}
	if c.Orchestrator.LeaseRetryDelay < 0 {
		return fmt.Errorf("orchestrator.lease_retry_delay cannot be negative")
	}

	switch c.Store.Backend {
	case "memory", "file":
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" && c.Store.Dir == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be 'memory', 'file', 'redis', 'sqlite' or 'postgres')", c.Store.Backend)
	}

	if c.LLM.MaxSteps < 1 {
		return fmt.Errorf("llm.max_steps must be at least 1")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Logging.Level)
	}

	return nil
}

// Duration is a time.Duration that reads and writes as a Go duration string ("30s").
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}
