package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/tui"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

type recoverFlags struct {
	resume bool
	plain  bool
}

func newRecoverCmd(root *rootFlags) *cobra.Command {
	flags := &recoverFlags{}
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Continue tasks left unfinished by a previous run",
		Long: `Load every stored task, requeue the assignments that were running when the
previous process stopped and continue them from their last checkpoint.
Paused assignments stay paused unless --resume is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return recoverTasks(cmd, root, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Also resume paused tasks")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Print events instead of opening the terminal watcher")
	return cmd
}

func recoverTasks(cmd *cobra.Command, root *rootFlags, flags *recoverFlags) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	quietConsole(cfg, flags.plain)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	events, unsubscribe := a.events.Subscribe(256)
	defer unsubscribe()

	n, err := a.orch.Recover(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if n == 0 {
		fmt.Fprintln(out, "No unfinished tasks.")
		return nil
	}
	fmt.Fprintf(out, "Recovered %d unfinished tasks.\n", n)

	var waitFor []string
	for _, v := range a.orch.List() {
		if v.Task.Status.IsTerminal() {
			continue
		}
		if v.Task.Status == types.StatusPaused {
			if !flags.resume {
				continue
			}
			if err := a.orch.Resume(ctx, v.Task.ID); err != nil {
				a.logger.Warnf("resume %s: %v", v.Task.ID, err)
				continue
			}
		}
		waitFor = append(waitFor, v.Task.ID)
	}

	if flags.plain {
		return watchPlain(ctx, a, out, events, waitFor)
	}
	if err := tui.Run(ctx, a.orch, events); err != nil {
		return err
	}
	return summarize(ctx, a, out)
}
