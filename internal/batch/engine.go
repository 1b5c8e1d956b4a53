// Package batch provides a small buffered queue engine: work items are
// streamed in through a reducer, grouped into bounded batches, and dispatched
// to a fixed pool of workers. A batch whose runner asks for a retry re-enters
// the queue in full after the flush interval.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config controls batching, flow control and supervision labels.
type Config struct {
	// TaskName labels the worker pool in logs.
	TaskName string
	// Metadata is an extra logging tag carried on every batch log line.
	Metadata string
	// FlushInterval is the delay before a retried batch re-enters the queue.
	FlushInterval time.Duration
	// MaxBatchSize bounds the number of items per batch.
	MaxBatchSize int
	// MaxConcurrency is the fixed worker pool size.
	MaxConcurrency int
}

// DefaultConfig returns the engine defaults used across the pipeline.
func DefaultConfig() Config {
	return Config{
		TaskName:       "batch",
		FlushInterval:  time.Second,
		MaxBatchSize:   10,
		MaxConcurrency: 4,
	}
}

// Batch is one unit of work handed to a runner. Attempt starts at 1 and
// increments on every retry of the same batch.
type Batch[T any] struct {
	ID      string
	Attempt int
	Items   []T
}

// Outcome is the runner's verdict on a batch.
type Outcome[T any] struct {
	retry   bool
	payload []T
}

// OK discards the batch.
func OK[T any]() Outcome[T] {
	return Outcome[T]{}
}

// Retry resubmits the given payload as a new attempt of the same batch.
func Retry[T any](payload []T) Outcome[T] {
	return Outcome[T]{retry: true, payload: payload}
}

// InitFunc streams initial work items into the engine via push.
type InitFunc[T any] func(ctx context.Context, push func(T)) error

// Runner processes one batch and reports the outcome.
type Runner[T any] func(ctx context.Context, b Batch[T]) Outcome[T]

// Engine groups streamed items into batches and drains them with a worker
// pool. It is single-shot: Run returns once the queue is empty and no batch
// is in flight.
type Engine[T any] struct {
	cfg  Config
	init InitFunc[T]
	run  Runner[T]
	log  *slog.Logger
}

// NewEngine creates an engine. Zero or negative config values fall back to
// the defaults.
func NewEngine[T any](cfg Config, init InitFunc[T], run Runner[T]) *Engine[T] {
	def := DefaultConfig()
	if cfg.TaskName == "" {
		cfg.TaskName = def.TaskName
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}

	return &Engine[T]{
		cfg:  cfg,
		init: init,
		run:  run,
		log:  slog.Default().With("component", cfg.TaskName, "metadata", cfg.Metadata),
	}
}

// Run loads all work through the init reducer, then drains it. Init errors
// are fatal and no worker starts. Run returns the context error if the run
// was cancelled mid-drain.
func (e *Engine[T]) Run(ctx context.Context) error {
	var batches []Batch[T]
	var cur []T

	push := func(item T) {
		cur = append(cur, item)
		if len(cur) >= e.cfg.MaxBatchSize {
			batches = append(batches, e.newBatch(cur))
			cur = nil
		}
	}

	if err := e.init(ctx, push); err != nil {
		return err
	}
	if len(cur) > 0 {
		batches = append(batches, e.newBatch(cur))
	}

	if len(batches) == 0 {
		e.log.Info("No work to process")
		return nil
	}

	e.log.Info("Draining queue", "batches", len(batches), "workers", e.cfg.MaxConcurrency)

	q := newQueue(batches)
	stop := context.AfterFunc(ctx, q.wake)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, q)
		}()
	}
	wg.Wait()

	return ctx.Err()
}

func (e *Engine[T]) newBatch(items []T) Batch[T] {
	return Batch[T]{ID: uuid.NewString(), Attempt: 1, Items: items}
}

func (e *Engine[T]) worker(ctx context.Context, q *queue[T]) {
	for {
		b, ok := q.take(ctx)
		if !ok {
			return
		}

		e.log.Debug("Processing batch", "batch_id", b.ID, "attempt", b.Attempt, "items", len(b.Items))
		outcome := e.run(ctx, b)

		if outcome.retry {
			next := Batch[T]{ID: b.ID, Attempt: b.Attempt + 1, Items: outcome.payload}
			q.requeueAfter(e.cfg.FlushInterval, next)
			continue
		}
		q.done()
	}
}

// queue is a bounded-outstanding batch queue. outstanding counts queued,
// in-flight and retry-pending batches; workers exit once it reaches zero.
type queue[T any] struct {
	mu          sync.Mutex
	cond        *sync.Cond
	batches     []Batch[T]
	outstanding int
}

func newQueue[T any](initial []Batch[T]) *queue[T] {
	q := &queue[T]{
		batches:     initial,
		outstanding: len(initial),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// take blocks until a batch is available, all work is finished, or ctx is
// cancelled. The second return is false when the worker should exit.
func (q *queue[T]) take(ctx context.Context) (Batch[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.batches) == 0 && q.outstanding > 0 && ctx.Err() == nil {
		q.cond.Wait()
	}
	if ctx.Err() != nil || len(q.batches) == 0 {
		var zero Batch[T]
		return zero, false
	}

	b := q.batches[0]
	q.batches = q.batches[1:]
	return b, true
}

// done marks one in-flight batch as finished.
func (q *queue[T]) done() {
	q.mu.Lock()
	q.outstanding--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// requeueAfter puts a batch back on the queue after the given delay. The
// batch stays counted as outstanding in between, so the drain does not end
// while a retry is pending.
func (q *queue[T]) requeueAfter(d time.Duration, b Batch[T]) {
	time.AfterFunc(d, func() {
		q.mu.Lock()
		q.batches = append(q.batches, b)
		q.mu.Unlock()
		q.cond.Broadcast()
	})
}

// wake unblocks all waiting workers, used on context cancellation.
func (q *queue[T]) wake() {
	q.cond.Broadcast()
}
