package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvRedisAddr     = "VIBESURF_REDIS_ADDR"
	EnvPostgresDSN   = "VIBESURF_POSTGRES_DSN"
)

// Load reads the configuration file at path on top of DefaultConfig, applies
// environment overrides and validates the result. An empty path loads only
// defaults and environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Decode unmarshals data into cfg, picking the format from the file extension.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Store.PostgresDSN = v
	}
}

// DataDir returns the default directory for profiles, checkpoints and events.
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".vibesurf"), nil
}

// ResolvePaths fills empty directory settings below the data directory.
func (c *Config) ResolvePaths() error {
	if c.Pool.ProfileDir != "" && c.Store.Dir != "" {
		return nil
	}
	base, err := DataDir()
	if err != nil {
		return err
	}
	if c.Pool.ProfileDir == "" {
		c.Pool.ProfileDir = filepath.Join(base, "profiles")
	}
	if c.Store.Dir == "" {
		c.Store.Dir = filepath.Join(base, "state")
	}
	return nil
}
