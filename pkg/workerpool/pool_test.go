package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestProcess_Success(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	items := []WorkItem[string]{
		{ID: "pair-1-2", Execute: func(ctx context.Context) (string, error) { return "eval1", nil }},
		{ID: "pair-1-3", Execute: func(ctx context.Context) (string, error) { return "eval2", nil }},
		{ID: "pair-2-3", Execute: func(ctx context.Context) (string, error) { return "eval3", nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	// Results arrive in completion order, so index by ID.
	resultsByID := make(map[string]string)
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("item %s failed: %v", r.ID, r.Err)
		}
		resultsByID[r.ID] = r.Result
	}

	if resultsByID["pair-1-2"] != "eval1" || resultsByID["pair-1-3"] != "eval2" || resultsByID["pair-2-3"] != "eval3" {
		t.Errorf("unexpected results: %v", resultsByID)
	}
}

func TestProcess_WithErrors(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	expectedErr := errors.New("provider call failed")
	items := []WorkItem[string]{
		{ID: "ok-1", Execute: func(ctx context.Context) (string, error) { return "eval1", nil }},
		{ID: "bad", Execute: func(ctx context.Context) (string, error) { return "", expectedErr }},
		{ID: "ok-2", Execute: func(ctx context.Context) (string, error) { return "eval3", nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	resultsByID := make(map[string]WorkResult[string])
	for _, r := range results {
		resultsByID[r.ID] = r
	}

	if resultsByID["ok-1"].Err != nil {
		t.Errorf("ok-1 should succeed, got error: %v", resultsByID["ok-1"].Err)
	}
	if resultsByID["bad"].Err != expectedErr {
		t.Errorf("bad should fail with expectedErr, got: %v", resultsByID["bad"].Err)
	}
	if resultsByID["ok-2"].Err != nil {
		t.Errorf("ok-2 should succeed, got error: %v", resultsByID["ok-2"].Err)
	}
}

func TestProcess_EmptyItems(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	results := Process(context.Background(), pool, []WorkItem[int]{}, nil)

	if results != nil {
		t.Errorf("expected nil results for empty items, got %v", results)
	}
}

func TestProcess_ContextCancellation(t *testing.T) {
	pool := New(Config{MaxConcurrent: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	items := []WorkItem[string]{
		{ID: "first", Execute: func(ctx context.Context) (string, error) {
			cancel()
			time.Sleep(10 * time.Millisecond)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
				return "eval1", nil
			}
		}},
		{ID: "second", Execute: func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
				return "eval2", nil
			}
		}},
	}

	results := Process(ctx, pool, items, nil)

	foundCancellation := false
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			foundCancellation = true
		}
	}
	if !foundCancellation {
		t.Error("expected at least one item to detect context cancellation")
	}
}

func TestProcess_ConcurrencyLimit(t *testing.T) {
	maxConcurrent := 3
	pool := New(Config{MaxConcurrent: maxConcurrent}, zap.NewNop())

	var currentConcurrent atomic.Int32
	var maxObservedConcurrent atomic.Int32

	items := make([]WorkItem[string], 10)
	for i := 0; i < 10; i++ {
		items[i] = WorkItem[string]{
			ID: fmt.Sprintf("pair-%d", i),
			Execute: func(ctx context.Context) (string, error) {
				current := currentConcurrent.Add(1)
				defer currentConcurrent.Add(-1)

				for {
					max := maxObservedConcurrent.Load()
					if current <= max || maxObservedConcurrent.CompareAndSwap(max, current) {
						break
					}
				}

				time.Sleep(50 * time.Millisecond)
				return "done", nil
			},
		}
	}

	results := Process(context.Background(), pool, items, nil)

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}

	maxObserved := maxObservedConcurrent.Load()
	if maxObserved > int32(maxConcurrent) {
		t.Errorf("concurrency limit violated: observed %d concurrent items, limit was %d", maxObserved, maxConcurrent)
	}
	if maxObserved < 2 {
		t.Errorf("expected some concurrency, but max observed was %d", maxObserved)
	}
}

func TestProcess_ProgressCallback(t *testing.T) {
	pool := New(Config{MaxConcurrent: 2}, zap.NewNop())

	items := []WorkItem[string]{
		{ID: "a", Execute: func(ctx context.Context) (string, error) { return "eval1", nil }},
		{ID: "b", Execute: func(ctx context.Context) (string, error) { return "eval2", nil }},
		{ID: "c", Execute: func(ctx context.Context) (string, error) { return "eval3", nil }},
	}

	var mu sync.Mutex
	progressUpdates := []int{}

	results := Process(context.Background(), pool, items, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		progressUpdates = append(progressUpdates, completed)

		if total != 3 {
			t.Errorf("expected total=3, got total=%d", total)
		}
	})

	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(progressUpdates) != 3 {
		t.Errorf("expected 3 progress updates, got %d", len(progressUpdates))
	}
	if progressUpdates[len(progressUpdates)-1] != 3 {
		t.Errorf("expected final progress of 3, got updates: %v", progressUpdates)
	}
}

func TestNew_ConfigDefault(t *testing.T) {
	pool := New(Config{MaxConcurrent: 0}, zap.NewNop())
	if pool.config.MaxConcurrent != 8 {
		t.Errorf("expected default MaxConcurrent=8, got %d", pool.config.MaxConcurrent)
	}

	pool = New(Config{MaxConcurrent: -1}, zap.NewNop())
	if pool.config.MaxConcurrent != 8 {
		t.Errorf("expected default MaxConcurrent=8, got %d", pool.config.MaxConcurrent)
	}
}
