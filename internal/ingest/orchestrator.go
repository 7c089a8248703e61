package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"stocksync/internal/synclog"
)

// ErrRunAborted is returned by RunAll when an auth rejection stopped the
// run before all tasks could execute.
var ErrRunAborted = errors.New("run aborted: provider rejected credentials")

// Runner executes a fixed sequence of tasks and records each one in the
// sync log. Tasks run one at a time; the concurrency lives inside each
// task's worker pool.
type Runner struct {
	Scheduler *Scheduler
	Log       *synclog.SyncLog
	Logger    *slog.Logger
}

// RunAll runs the tasks in order under one session. A failing task is
// recorded and the next one still runs; a fatal outcome (or a cancelled
// context) stops the run and marks the remaining tasks skipped. A task
// interrupted mid-run is recorded as failed with its partial counts.
// Returns an error when any task did not succeed.
func (r *Runner) RunAll(ctx context.Context, sessionID string, tasks []Task) error {
	var (
		failed  []string
		aborted bool
		reason  string
	)

	for _, task := range tasks {
		if aborted {
			r.Log.MarkSkipped(ctx, sessionID, task.Name, reason)
			continue
		}
		if ctx.Err() != nil {
			aborted = true
			reason = "run cancelled"
			r.Log.MarkSkipped(ctx, sessionID, task.Name, reason)
			continue
		}

		id, err := r.Log.StartTask(ctx, sessionID, task.Name)
		if err != nil {
			// Bookkeeping must not block ingestion; run the task anyway.
			r.Logger.Error("sync log start write failed", "task", task.Name, "error", err)
		}

		sum := r.Scheduler.Run(ctx, task)

		status := synclog.StatusSuccess
		errMsg := ""
		switch {
		case sum.Err != nil:
			status = synclog.StatusFailed
			errMsg = sum.Err.Error()
			failed = append(failed, task.Name)
		case ctx.Err() != nil || sum.UnitsOK+sum.UnitsFailed < sum.UnitsTotal:
			// Interrupted mid-task: the counts are partial, so the row
			// must not read as success.
			status = synclog.StatusFailed
			errMsg = "run cancelled"
		}
		if id != 0 {
			meta, _ := json.Marshal(map[string]any{"records_deduped": sum.RecordsDeduped})
			r.Log.CompleteTask(ctx, id, status, synclog.TaskCounts{
				UnitsTotal:     sum.UnitsTotal,
				UnitsOK:        sum.UnitsOK,
				UnitsFailed:    sum.UnitsFailed,
				RecordsWritten: sum.RecordsWritten,
				RecordsDropped: sum.RecordsDropped,
			}, errMsg, string(meta))
		}

		if sum.Fatal {
			aborted = true
			reason = "run aborted: provider rejected credentials"
			r.Logger.Error("aborting run", "task", task.Name, "error", sum.Err)
		}
	}

	if aborted && reason != "run cancelled" {
		return ErrRunAborted
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d task(s) failed: %v", len(failed), failed)
	}
	return nil
}
