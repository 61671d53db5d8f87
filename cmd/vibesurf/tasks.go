package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/checkpoint"
	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

func newTasksCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks [task-id]",
		Short: "List stored tasks",
		Long:  `List the tasks in the checkpoint store, newest first. With a task id, show its assignments and their last checkpoints.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			setupLogging(cfg)

			store, err := checkpoint.Open(cmd.Context(), cfg.Store)
			if err != nil {
				return fmt.Errorf("open checkpoint store: %w", err)
			}
			defer store.Close()

			recs, err := store.LoadTasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				for _, rec := range recs {
					if rec.Task.ID == args[0] {
						return printRecord(cmd, store, rec)
					}
				}
				return fmt.Errorf("task %s not found", args[0])
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No tasks.")
				return nil
			}
			return printTasks(out, recs, time.Now())
		},
	}
}

func printTasks(out io.Writer, recs []types.TaskRecord, now time.Time) error {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Task.CreatedAt.After(recs[j].Task.CreatedAt)
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tASSIGNMENTS\tUPDATED\tDESCRIPTION")
	for _, rec := range recs {
		v := types.TaskView{Task: rec.Task, Assignments: rec.Assignments}
		counts := v.Counts()
		fmt.Fprintf(w, "%s\t%s\t%d/%d done\t%s\t%s\n",
			rec.Task.ID,
			rec.Task.Status,
			counts[types.StatusCompleted],
			len(rec.Assignments),
			formatAge(rec.Task.UpdatedAt, now),
			rec.Task.Description,
		)
	}
	return w.Flush()
}

func printRecord(cmd *cobra.Command, store checkpoint.Store, rec types.TaskRecord) error {
	out := cmd.OutOrStdout()
	printView(out, types.TaskView{Task: rec.Task, Assignments: rec.Assignments})
	for _, asg := range rec.Assignments {
		cp, err := store.Load(cmd.Context(), asg.ID)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "  #%d checkpoint seq %d: %s\n", asg.Index, cp.Seq, cp.Cursor)
	}
	return nil
}

// formatAge returns a human-readable relative time string.
func formatAge(t, now time.Time) string {
	duration := now.Sub(t)

	if duration < time.Minute {
		return "just now"
	}

	minutes := int(duration.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm ago", minutes)
	}

	hours := int(duration.Hours())
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}

	return fmt.Sprintf("%dd ago", hours/24)
}
