package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cthulhu/internal/config"
	"cthulhu/internal/domain"
	"cthulhu/internal/store"
	"cthulhu/internal/validate"
)

func newTasksCommand(cfg *config.Config) *cobra.Command {
	var (
		filters  store.Filters
		status   string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			filters.Status = store.StatusFilter(status)
			a.store.ApplyFilters(ctx, filters)
			if pageSize > 0 {
				a.store.SetTaskPageSize(ctx, pageSize)
			}
			if page > 1 {
				a.store.SetTaskPage(ctx, page)
			}

			snap := a.store.Snapshot()
			if snap.Error != "" {
				return loadFailure(a, snap.Error)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"tasks":      store.PagedTasks(snap),
				"total":      store.TaskTotal(snap),
				"page":       snap.TaskPage,
				"page_count": store.TaskPageCount(snap),
			})
		},
	}
	cmd.Flags().StringVar(&filters.Name, "name", "", "name substring")
	cmd.Flags().StringVar(&filters.Description, "description", "", "description substring")
	cmd.Flags().StringVar(&status, "status", "ALL", "ALL, ENABLED or DISABLED")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")
	return cmd
}

func newRunsCommand(cfg *config.Config) *cobra.Command {
	var (
		taskID   int64
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs of a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.store.LoadRuns(cmd.Context(), taskID, true)
			if pageSize > 0 {
				a.store.SetRunPageSize(taskID, pageSize)
			}
			a.store.SetRunPage(taskID, page)

			snap := a.store.Snapshot()
			if snap.Error != "" {
				return loadFailure(a, snap.Error)
			}
			runs := store.PagedRuns(snap, taskID)
			out := make([]map[string]any, len(runs))
			for i, r := range runs {
				out[i] = map[string]any{
					"id":             r.ID,
					"status":         r.Status,
					"label":          r.Status.Badge().Text,
					"scheduled_time": r.ScheduledTime,
					"attempt":        r.Attempt,
					"can_cancel":     r.CanCancel(),
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"task_id": taskID,
				"runs":    out,
				"total":   len(store.RunsFor(snap, taskID)),
				"page":    store.RunPager(snap, taskID).Page,
			})
		},
	}
	cmd.Flags().Int64VarP(&taskID, "task", "t", 0, "task id (required)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newTriggerCommand(cfg *config.Config) *cobra.Command {
	var taskID int64
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Trigger a task run now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.store.Trigger(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Triggered task %d, run id %d\n", taskID, run.RunID)
			return nil
		},
	}
	cmd.Flags().Int64VarP(&taskID, "task", "t", 0, "task id (required)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newCleanupCommand(cfg *config.Config) *cobra.Command {
	var (
		mode   string
		taskID int64
		maxAge time.Duration
		keep   int
		ids    []int64
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old runs by age, retention count or id",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := cleanupRequest(mode, taskID, maxAge, keep, ids)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.cronjob.CleanupRuns(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs\n", res.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "age", "age, count or ids")
	cmd.Flags().Int64Var(&taskID, "task", 0, "limit to one task")
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "age mode: delete runs older than this")
	cmd.Flags().IntVar(&keep, "keep", 100, "count mode: runs to keep per task")
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "ids mode: run ids to delete")
	return cmd
}

func cleanupRequest(mode string, taskID int64, maxAge time.Duration, keep int, ids []int64) (domain.CleanupRequest, error) {
	switch mode {
	case "age":
		if maxAge < time.Second {
			return nil, errors.New("--max-age must be at least 1s")
		}
		return domain.CleanupByAge{TaskID: taskID, MaxAgeSeconds: int64(maxAge / time.Second)}, nil
	case "count":
		if keep < 0 {
			return nil, errors.New("--keep must not be negative")
		}
		return domain.CleanupByCount{TaskID: taskID, Keep: keep}, nil
	case "ids":
		if len(ids) == 0 {
			return nil, errors.New("--ids is required in ids mode")
		}
		return domain.CleanupByIDs{IDs: ids}, nil
	}
	return nil, fmt.Errorf("unknown cleanup mode %q", mode)
}

func newValidateYAMLCommand(cfg *config.Config) *cobra.Command {
	var push bool
	cmd := &cobra.Command{
		Use:   "validate-yaml <file|->",
		Short: "Check a task YAML file, optionally uploading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if err := validate.TaskYAML(content); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "task yaml is valid")
			if !push {
				return nil
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.artemis.UpdateTaskYAML(cmd.Context(), content); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "task yaml uploaded")
			return nil
		},
	}
	cmd.Flags().BoolVar(&push, "push", false, "upload to the artemis runtime after validation")
	return cmd
}

func readInput(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

// loadFailure turns the store's advisory error into a command error, with the captured
// backend detail when there is one.
func loadFailure(a *app, advisory string) error {
	if recs := a.notifier.Snapshot(); len(recs) > 0 {
		r := recs[0]
		detail := r.Message
		if r.RawMessage != "" {
			detail += " (" + r.RawMessage + ")"
		}
		return fmt.Errorf("%s: %s", advisory, detail)
	}
	return errors.New(advisory)
}

func printJSON(w io.Writer, v any) error {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(formatted))
	return err
}
