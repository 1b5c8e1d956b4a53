// Package refetch implements the one-shot collation correction workflow.
//
// Heights recorded in the suspect_blocks control table are streamed into a
// buffered batch engine. Each batch is invalidated in a single transaction:
// every block row at those heights loses its consensus flag (so the
// downstream fetcher re-ingests them) and the control rows are marked
// corrected. Failed batches re-enter the queue in full; rerunning the whole
// workflow is idempotent because corrected rows are no longer enumerated.
package refetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vietddude/refetcher/internal/batch"
	"github.com/vietddude/refetcher/internal/core/domain"
	"github.com/vietddude/refetcher/internal/indexing/metrics"
	"github.com/vietddude/refetcher/internal/infra/storage"
)

// Config holds the workflow knobs, passed through to the batch engine.
type Config struct {
	FlushInterval time.Duration
	MaxBatchSize  int
	Concurrency   int
	// MaxAttempts caps retries per batch. 0 retries until the batch sticks,
	// relying on the engine's flush cadence as backoff.
	MaxAttempts int
}

// DefaultConfig returns the default workflow configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval: time.Second,
		MaxBatchSize:  10,
		Concurrency:   4,
		MaxAttempts:   0,
	}
}

// FailureSink receives batches that exhausted their retry budget.
type FailureSink interface {
	RecordFailedBatch(ctx context.Context, fb domain.FailedBatch) error
}

// Workflow wires the candidate enumerator, batch invalidator and retry
// controller around a storage handle.
type Workflow struct {
	cfg   Config
	store storage.SuspectBlockRepository
	sink  FailureSink // optional
	log   *slog.Logger

	corrected atomic.Int64
	dropped   atomic.Int64
}

// New creates a workflow. sink may be nil when no failure recording is
// configured.
func New(cfg Config, store storage.SuspectBlockRepository, sink FailureSink) *Workflow {
	return &Workflow{
		cfg:   cfg,
		store: store,
		sink:  sink,
		log:   slog.Default().With("component", "refetch"),
	}
}

// Run performs one full correction pass: enumerate pending heights, drain
// the batch queue, return once nothing is left in flight. Enumeration
// failures other than a missing control table are fatal and nothing is
// mutated.
func (w *Workflow) Run(ctx context.Context) error {
	engine := batch.NewEngine(batch.Config{
		TaskName:       "refetch_invalidator",
		Metadata:       "suspect_blocks",
		FlushInterval:  w.cfg.FlushInterval,
		MaxBatchSize:   w.cfg.MaxBatchSize,
		MaxConcurrency: w.cfg.Concurrency,
	}, w.enumerate, w.process)

	if err := engine.Run(ctx); err != nil {
		return err
	}

	w.log.Info("Correction pass finished",
		"corrected_rows", w.corrected.Load(),
		"dropped_batches", w.dropped.Load(),
	)
	return nil
}

// Corrected returns the number of control rows marked corrected so far.
func (w *Workflow) Corrected() int64 {
	return w.corrected.Load()
}

// Dropped returns the number of batches dropped after exhausting retries.
func (w *Workflow) Dropped() int64 {
	return w.dropped.Load()
}

// enumerate streams pending heights into the engine. A missing control
// table means the suspect list was never produced: zero candidates, not an
// error.
func (w *Workflow) enumerate(ctx context.Context, push func(int64)) error {
	err := w.store.StreamPending(ctx, func(blockNumber int64) error {
		push(blockNumber)
		metrics.CandidatesEnumerated.Inc()
		return nil
	})
	if err != nil {
		if storage.IsUndefinedTable(err) {
			w.log.Info("Control table does not exist, nothing to correct")
			return nil
		}
		return fmt.Errorf("failed to enumerate suspect blocks: %w", err)
	}
	return nil
}

// process invalidates one batch and interprets the outcome.
func (w *Workflow) process(ctx context.Context, b batch.Batch[int64]) batch.Outcome[int64] {
	start := time.Now()
	corrected, err := w.store.InvalidateBatch(ctx, b.Items)
	metrics.BatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return w.handleFailure(ctx, b, err)
	}

	w.corrected.Add(corrected)
	metrics.BatchesTotal.WithLabelValues("success").Inc()
	metrics.CorrectedRows.Add(float64(corrected))
	w.log.Debug("Batch invalidated",
		"batch_id", b.ID, "blocks", len(b.Items), "corrected", corrected)
	return batch.OK[int64]()
}

// handleFailure is the retry controller: log the fault with the full batch
// and resubmit the identical payload, unless the attempt cap is exhausted.
func (w *Workflow) handleFailure(
	ctx context.Context,
	b batch.Batch[int64],
	err error,
) batch.Outcome[int64] {
	w.log.Error("Failed to invalidate batch",
		"batch_id", b.ID, "attempt", b.Attempt, "blocks", b.Items, "error", err)

	if w.cfg.MaxAttempts > 0 && b.Attempt >= w.cfg.MaxAttempts {
		w.dropped.Add(1)
		metrics.BatchesTotal.WithLabelValues("dropped").Inc()
		if w.sink != nil {
			fb := domain.FailedBatch{
				ID:           b.ID,
				BlockNumbers: b.Items,
				Attempts:     b.Attempt,
				Error:        err.Error(),
				FailedAt:     time.Now().Unix(),
			}
			if recErr := w.sink.RecordFailedBatch(ctx, fb); recErr != nil {
				w.log.Warn("Failed to record failed batch", "batch_id", b.ID, "error", recErr)
			}
		}
		return batch.OK[int64]()
	}

	metrics.BatchesTotal.WithLabelValues("retry").Inc()
	return batch.Retry(b.Items)
}
