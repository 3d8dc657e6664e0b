// Package worker contains the sync loop: one long-lived goroutine that
// periodically fetches an incremental extract, reconciles it into the
// invoice store, and advances the job watermark on success.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/invoicesync/internal/reconcile"
	"github.com/hyperengineering/invoicesync/internal/source"
	"github.com/hyperengineering/invoicesync/internal/types"
)

// SyncStore defines the watermark and run-history operations needed by the
// sync worker. Implemented by store.SQLiteStore.
type SyncStore interface {
	LoadWatermark(ctx context.Context, jobName string) (time.Time, error)
	SaveWatermark(ctx context.Context, jobName string, t time.Time) (int64, error)
	RecordRun(ctx context.Context, run types.SyncRun) error
}

// RecordSource fetches one extract for the window starting at since.
// Implemented by source.Client.
type RecordSource interface {
	Fetch(ctx context.Context, since time.Time) (*source.Extract, error)
}

// Reconciler applies one extract to the store. Implemented by
// reconcile.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, rows []source.Row, now time.Time) (reconcile.Result, error)
}

// Archiver stores the raw extract payload of a successful cycle.
// Implemented by archive.S3Archiver and archive.NoopArchiver.
type Archiver interface {
	Archive(ctx context.Context, jobName, runID string, payload []byte) error
}

// SyncWorker drives the fetch → reconcile → advance cycle on a fixed
// interval. One cycle executes at a time; a new cycle never starts before
// the previous one has fully returned.
type SyncWorker struct {
	store    SyncStore
	src      RecordSource
	engine   Reconciler
	archiver Archiver
	jobName  string
	interval time.Duration
}

// NewSyncWorker creates a sync worker for the given job.
func NewSyncWorker(store SyncStore, src RecordSource, engine Reconciler, archiver Archiver, jobName string, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		store:    store,
		src:      src,
		engine:   engine,
		archiver: archiver,
		jobName:  jobName,
		interval: interval,
	}
}

// Run starts the worker loop. Runs one cycle immediately on start, then one
// per interval. Cancellation is honored between cycles; an in-flight cycle
// finishes naturally so a group is never left half-written by the loop
// itself.
func (w *SyncWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "invoice-sync",
		"job", w.jobName,
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "invoice-sync",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle executes one fetch → reconcile → advance pass. Every failure mode
// leaves the watermark untouched and is resolved by the next scheduled
// cycle re-fetching an overlapping window.
func (w *SyncWorker) cycle(ctx context.Context) {
	runID := ulid.Make().String()
	started := time.Now().UTC()

	watermark, err := w.store.LoadWatermark(ctx, w.jobName)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("watermark unavailable",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
			"error", err,
		)
		w.recordRun(ctx, runID, started, 0, err)
		return
	}

	// The pre-fetch wall clock is what the watermark advances to: records
	// created while the fetch and reconcile are in flight fall inside the
	// next cycle's window instead of being skipped.
	preFetch := time.Now().UTC()

	slog.Info("sync cycle started",
		"component", "worker",
		"run_id", runID,
		"job", w.jobName,
		"since", watermark.Format(time.RFC3339),
	)

	extract, err := w.src.Fetch(ctx, watermark)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("extract fetch failed",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
			"error", err,
		)
		w.recordRun(ctx, runID, started, 0, err)
		return
	}

	if extract.Empty() {
		slog.Info("empty extract, advancing watermark",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
		)
	}

	result, err := w.engine.Reconcile(ctx, extract.Rows, preFetch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("reconciliation failed",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
			"error", err,
		)
		w.recordRun(ctx, runID, started, 0, err)
		return
	}

	if affected, err := w.store.SaveWatermark(ctx, w.jobName, preFetch); err != nil {
		// Not fatal: the next cycle re-fetches an overlapping window and
		// reconciliation is idempotent.
		slog.Error("watermark save failed",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
			"error", err,
		)
	} else if affected == 0 {
		slog.Warn("watermark save affected no rows",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
		)
	}

	if !extract.Empty() {
		if err := w.archiver.Archive(ctx, w.jobName, runID, extract.Raw); err != nil {
			slog.Warn("extract archive failed",
				"component", "worker",
				"run_id", runID,
				"job", w.jobName,
				"error", err,
			)
		}
	}

	w.recordRun(ctx, runID, started, result.RowsProcessed, nil)

	slog.Info("sync cycle completed",
		"component", "worker",
		"run_id", runID,
		"job", w.jobName,
		"rows_processed", result.RowsProcessed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// recordRun appends the cycle outcome to the run history. History is
// best-effort observability; a write failure only logs.
func (w *SyncWorker) recordRun(ctx context.Context, runID string, started time.Time, rows int, cycleErr error) {
	run := types.SyncRun{
		ID:            runID,
		JobName:       w.jobName,
		StartedAt:     started,
		FinishedAt:    time.Now().UTC(),
		RowsProcessed: rows,
		Status:        types.RunStatusSucceeded,
	}
	if cycleErr != nil {
		run.Status = types.RunStatusFailed
		run.Error = cycleErr.Error()
	}

	if err := w.store.RecordRun(ctx, run); err != nil {
		slog.Warn("run history write failed",
			"component", "worker",
			"run_id", runID,
			"job", w.jobName,
			"error", err,
		)
	}
}
