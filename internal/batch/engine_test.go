package batch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		TaskName:       "test",
		FlushInterval:  10 * time.Millisecond,
		MaxBatchSize:   10,
		MaxConcurrency: 4,
	}
}

func pushAll(items []int64) InitFunc[int64] {
	return func(ctx context.Context, push func(int64)) error {
		for _, n := range items {
			push(n)
		}
		return nil
	}
}

func TestEngine_BatchingBounds(t *testing.T) {
	items := make([]int64, 25)
	for i := range items {
		items[i] = int64(i)
	}

	var mu sync.Mutex
	var sizes []int

	engine := NewEngine(testConfig(), pushAll(items),
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			mu.Lock()
			sizes = append(sizes, len(b.Items))
			mu.Unlock()
			return OK[int64]()
		})

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sizes) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(sizes))
	}
	total := 0
	for _, s := range sizes {
		if s > 10 {
			t.Errorf("Batch exceeds max size: %d", s)
		}
		total += s
	}
	if total != 25 {
		t.Errorf("Expected 25 items processed, got %d", total)
	}
}

func TestEngine_NoWork(t *testing.T) {
	called := false
	engine := NewEngine(testConfig(), pushAll(nil),
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			called = true
			return OK[int64]()
		})

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if called {
		t.Error("Runner should not be called when there is no work")
	}
}

func TestEngine_InitErrorAborts(t *testing.T) {
	initErr := errors.New("enumeration broke")
	var runs atomic.Int64

	engine := NewEngine(testConfig(),
		func(ctx context.Context, push func(int64)) error {
			push(1)
			return initErr
		},
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			runs.Add(1)
			return OK[int64]()
		})

	if err := engine.Run(context.Background()); !errors.Is(err, initErr) {
		t.Fatalf("Expected init error, got %v", err)
	}
	if runs.Load() != 0 {
		t.Error("No batch should run after a failed init")
	}
}

func TestEngine_RetryPreservesPayload(t *testing.T) {
	var mu sync.Mutex
	attempts := make(map[int][]int64)

	engine := NewEngine(testConfig(), pushAll([]int64{100, 101, 102}),
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			mu.Lock()
			attempts[b.Attempt] = append([]int64(nil), b.Items...)
			mu.Unlock()
			if b.Attempt == 1 {
				return Retry(b.Items)
			}
			return OK[int64]()
		})

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []int64{100, 101, 102}
	if !reflect.DeepEqual(attempts[1], want) {
		t.Errorf("First attempt payload = %v, want %v", attempts[1], want)
	}
	if !reflect.DeepEqual(attempts[2], want) {
		t.Errorf("Retried payload = %v, want %v", attempts[2], want)
	}
}

func TestEngine_ConcurrencyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchSize = 1
	cfg.MaxConcurrency = 3

	items := make([]int64, 30)
	for i := range items {
		items[i] = int64(i)
	}

	var current, peak atomic.Int64
	engine := NewEngine(cfg, pushAll(items),
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return OK[int64]()
		})

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("Concurrency exceeded limit: peak %d > 3", p)
	}
}

func TestEngine_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int64
	engine := NewEngine(testConfig(), pushAll([]int64{1, 2, 3}),
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			if runs.Add(1) == 1 {
				cancel()
			}
			return Retry(b.Items)
		})

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestEngine_AttemptIncrements(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	engine := NewEngine(testConfig(), pushAll([]int64{7}),
		func(ctx context.Context, b Batch[int64]) Outcome[int64] {
			mu.Lock()
			seen = append(seen, b.Attempt)
			mu.Unlock()
			if b.Attempt < 3 {
				return Retry(b.Items)
			}
			return OK[int64]()
		})

	if err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !reflect.DeepEqual(seen, []int{1, 2, 3}) {
		t.Errorf("Attempts = %v, want [1 2 3]", seen)
	}
}
