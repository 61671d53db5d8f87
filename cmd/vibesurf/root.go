package main

import (
	"github.com/spf13/cobra"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
)

const version = "0.1.0"

type rootFlags struct {
	configPath string
	console    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:          "vibesurf",
		Short:        "Run browser agents on a pool of isolated sessions",
		Long:         `vibesurf splits a task across parallel browser agents, each on its own browser profile, and keeps them resumable across pauses, crashes and restarts.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML or TOML config file")
	cmd.PersistentFlags().BoolVar(&flags.console, "console-log", false, "Write logs to stderr instead of the log file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newRecoverCmd(flags))
	cmd.AddCommand(newTasksCmd(flags))
	return cmd
}

// loadConfig reads the config file, applies flag overrides and fills default
// paths.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.console {
		cfg.Logging.Console = true
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}
