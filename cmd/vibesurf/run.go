package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/config"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/orchestrator"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/tui"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

type runFlags struct {
	parallel       int
	maxConcurrency int
	profile        string
	plain          bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <task description>",
		Short: "Submit a task and watch it run",
		Long: `Submit a task to a fresh orchestrator. The task is split into --parallel
assignments, each driven by its own agent on its own browser session.

By default the terminal watcher opens; press p, r or c to pause, resume or
cancel the selected task. With --plain, events are printed and the command
exits once the task settles.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, root, flags, strings.Join(args, " "))
		},
	}
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "n", 1, "Number of parallel agents")
	cmd.Flags().IntVar(&flags.maxConcurrency, "max-concurrency", 0, "Cap on concurrently running assignments (0 means no cap)")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "Glob restricting which browser profiles may be reused")
	cmd.Flags().BoolVar(&flags.plain, "plain", false, "Print events instead of opening the terminal watcher")
	return cmd
}

func runTask(cmd *cobra.Command, root *rootFlags, flags *runFlags, description string) error {
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

	var opts []orchestrator.SubmitOption
	if flags.maxConcurrency > 0 {
		opts = append(opts, orchestrator.WithMaxConcurrency(flags.maxConcurrency))
	}
	if flags.profile != "" {
		opts = append(opts, orchestrator.WithProfileHint(flags.profile))
	}
	id, err := a.orch.Submit(ctx, description, flags.parallel, opts...)
	if err != nil {
		return err
	}
	a.logger.Infof("submitted task %s with %d assignments", id, flags.parallel)

	out := cmd.OutOrStdout()
	if flags.plain {
		return watchPlain(ctx, a, out, events, []string{id})
	}
	if err := tui.Run(ctx, a.orch, events); err != nil {
		return err
	}
	return summarize(ctx, a, out)
}

// quietConsole keeps stderr free for the terminal watcher.
func quietConsole(cfg *config.Config, plain bool) {
	if !plain {
		cfg.Logging.Console = false
	}
}

// watchPlain prints events until every task in ids has settled or ctx ends.
func watchPlain(ctx context.Context, a *app, out io.Writer, events <-chan types.Event, ids []string) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			fmt.Fprintln(out, formatEvent(ev))
		}
	}()

	var waitErr error
	for _, id := range ids {
		if _, err := a.orch.Wait(ctx, id); err != nil {
			waitErr = err
			break
		}
	}

	// Closing the broadcaster ends the printer once buffered events are out.
	a.events.Close()
	<-done

	if waitErr != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(out, "Interrupted. Checkpointed progress is kept; run `vibesurf recover` to continue.")
			return nil
		}
		return waitErr
	}
	return summarize(ctx, a, out)
}

// summarize flushes task records and prints each task's final state.
func summarize(ctx context.Context, a *app, out io.Writer) error {
	if err := a.orch.Flush(ctx); err != nil {
		a.logger.Warnf("flush task records: %v", err)
	}
	for _, v := range a.orch.List() {
		printView(out, v)
	}
	return nil
}

func printView(out io.Writer, v types.TaskView) {
	fmt.Fprintf(out, "task %s %s: %s\n", v.Task.ID, v.Task.Status, v.Task.Description)
	for _, asg := range v.Assignments {
		line := fmt.Sprintf("  #%d %s", asg.Index, asg.Status)
		switch {
		case asg.Error != nil:
			line += ": " + asg.Error.Error()
		case asg.Result != "":
			line += ": " + asg.Result
		}
		fmt.Fprintln(out, line)
	}
}

func formatEvent(ev types.Event) string {
	subject := ev.TaskID
	if ev.AssignmentID != "" {
		subject = ev.AssignmentID
	}
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case types.EventTypeTransition:
		s := fmt.Sprintf("%s %s %s -> %s", ts, subject, ev.From, ev.To)
		if ev.Reason != "" {
			s += " (" + ev.Reason + ")"
		}
		return s
	case types.EventTypeProgress:
		return fmt.Sprintf("%s %s progress: %s", ts, subject, ev.Message)
	case types.EventTypeSessionLost:
		return fmt.Sprintf("%s %s lost session %s", ts, subject, ev.SessionID)
	default:
		return fmt.Sprintf("%s %s %s: %s", ts, subject, ev.Type, ev.Message)
	}
}
