// Package ingest runs the daily sync: it schedules per-ticker fetches with
// bounded concurrency, pipes payloads through the field mappers, and bulk
// writes the results.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/provider"
	"stocksync/internal/store"
)

// defaultConcurrency bounds in-flight fetches per task when the task does
// not set its own limit.
const defaultConcurrency = 10

// Batch is the output of a transform stage: a typed record slice plus the
// count of source records dropped for missing key fields.
type Batch interface {
	Len() int
	Dropped() int
}

// Fetcher fetches one unit of work. *provider.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, unit domain.Unit) provider.Outcome
}

// Task describes one domain sync: the units to process and the stage
// functions applied to each unit.
type Task struct {
	Name        string
	Units       []domain.Unit
	Concurrency int

	Fetch     func(ctx context.Context, unit domain.Unit) provider.Outcome
	Transform func(unit domain.Unit, body []byte) (Batch, error)
	Store     func(ctx context.Context, batch Batch) (store.Result, error)
}

// Summary reports one finished task. UnitsTotal can exceed
// UnitsOK + UnitsFailed when a cancellation left units unprocessed.
type Summary struct {
	Task           string
	UnitsTotal     int
	UnitsOK        int
	UnitsFailed    int
	RecordsWritten int
	RecordsDropped int
	RecordsDeduped int
	// Fatal is set when the provider rejected our credentials; the whole
	// run must stop, not just this task.
	Fatal bool
	Err   error
}

// Scheduler fans task units out to a bounded worker pool.
type Scheduler struct {
	Logger *slog.Logger
	// OnFetch, when set, observes every fetch outcome. Used for the fetch
	// log; must be safe for concurrent calls.
	OnFetch func(unit domain.Unit, out provider.Outcome)
}

// Run processes every unit of the task and blocks until the pool drains.
// Per-unit failures are counted and skipped; a store write failure or an
// auth rejection cancels the remaining units of this task.
func (s *Scheduler) Run(ctx context.Context, task Task) Summary {
	sum := Summary{Task: task.Name, UnitsTotal: len(task.Units)}
	if len(task.Units) == 0 {
		return sum
	}

	workers := task.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > len(task.Units) {
		workers = len(task.Units)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	units := make(chan domain.Unit, len(task.Units))
	for _, u := range task.Units {
		units <- u
	}
	close(units)

	var (
		wg      sync.WaitGroup
		ok      atomic.Int64
		failed  atomic.Int64
		written atomic.Int64
		dropped atomic.Int64
		deduped atomic.Int64
		fatal   atomic.Bool

		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
		cancel()
	}
	start := time.Now()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range units {
				if taskCtx.Err() != nil {
					return
				}
				s.runUnit(taskCtx, task, unit, &ok, &failed, &written, &dropped, &deduped, &fatal, fail)
			}
		}()
	}
	wg.Wait()

	sum.UnitsOK = int(ok.Load())
	sum.UnitsFailed = int(failed.Load())
	sum.RecordsWritten = int(written.Load())
	sum.RecordsDropped = int(dropped.Load())
	sum.RecordsDeduped = int(deduped.Load())
	sum.Fatal = fatal.Load()
	sum.Err = firstErr

	s.Logger.Info("task finished",
		"task", task.Name,
		"units_total", sum.UnitsTotal,
		"units_ok", sum.UnitsOK,
		"units_failed", sum.UnitsFailed,
		"records_written", sum.RecordsWritten,
		"records_dropped", sum.RecordsDropped,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return sum
}

// runUnit drives one unit through fetch, transform, and store. A panic in
// any stage is converted into a task failure instead of taking down the
// whole process.
func (s *Scheduler) runUnit(
	ctx context.Context, task Task, unit domain.Unit,
	ok, failed, written, dropped, deduped *atomic.Int64,
	fatal *atomic.Bool, fail func(error),
) {
	defer func() {
		if r := recover(); r != nil {
			failed.Add(1)
			fail(fmt.Errorf("unit %s panicked: %v", unit.Key(), r))
			s.Logger.Error("unit panicked", "task", task.Name, "unit", unit.Key(), "panic", r)
		}
	}()

	out := task.Fetch(ctx, unit)
	if s.OnFetch != nil {
		s.OnFetch(unit, out)
	}

	switch out.Class {
	case provider.ClassSuccess:
		// fall through to transform below

	case provider.ClassCanceled:
		return

	case provider.ClassFatal:
		fatal.Store(true)
		failed.Add(1)
		fail(fmt.Errorf("unit %s: %w", unit.Key(), out.Err))
		return

	default:
		// Retryable, rate limited, or permanent: the client already
		// dead-lettered the unit. Skip it and keep the task going.
		failed.Add(1)
		s.Logger.Warn("unit failed",
			"task", task.Name, "unit", unit.Key(),
			"class", out.Class.String(), "status", out.Status, "error", out.Err)
		return
	}

	batch, err := task.Transform(unit, out.Body)
	if err != nil {
		failed.Add(1)
		s.Logger.Warn("unit payload rejected",
			"task", task.Name, "unit", unit.Key(), "error", err)
		return
	}
	dropped.Add(int64(batch.Dropped()))
	if batch.Len() == 0 {
		ok.Add(1)
		return
	}

	res, err := task.Store(ctx, batch)
	written.Add(int64(res.Written))
	deduped.Add(int64(res.Deduped))
	if err != nil {
		// A failing store is not a per-unit problem; stop the task before
		// more workers pile onto a broken database.
		failed.Add(1)
		fail(fmt.Errorf("storing unit %s: %w", unit.Key(), err))
		return
	}
	ok.Add(1)
}
