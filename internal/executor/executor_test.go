package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakePart struct{ n int }

func (p fakePart) HitCount() int { return p.n }

func TestRunCollectsAllParts(t *testing.T) {
	tasks := make([]TaskFunc[fakePart], 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (fakePart, error) {
			return fakePart{n: 1}, nil
		}
	}
	res := Run(context.Background(), tasks, Options{Parallelism: 2, PageSize: 1000})
	if len(res.Parts) != 5 {
		t.Errorf("got %d parts, want 5", len(res.Parts))
	}
	if res.DeadlineHit {
		t.Errorf("did not expect deadline hit")
	}
}

func TestRunCapsConcurrencyAndReportsSaturation(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	tasks := make([]TaskFunc[fakePart], 8)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (fakePart, error) {
			n := inFlight.Add(1)
			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return fakePart{n: 1}, nil
		}
	}
	res := Run(context.Background(), tasks, Options{Parallelism: 2, PageSize: 1000})
	if len(res.Parts) != 8 {
		t.Errorf("got %d parts, want 8", len(res.Parts))
	}
	if maxInFlight.Load() > 2 {
		t.Errorf("max in-flight = %d, want <= 2", maxInFlight.Load())
	}
	if res.SaturatedSem == 0 {
		t.Errorf("expected at least one saturated-semaphore event with 8 tasks and parallelism 2")
	}
}

func TestRunDeadlineHit(t *testing.T) {
	tasks := make([]TaskFunc[fakePart], 3)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (fakePart, error) {
			select {
			case <-ctx.Done():
				return fakePart{}, ctx.Err()
			case <-time.After(200 * time.Millisecond):
				return fakePart{n: 1}, nil
			}
		}
	}
	res := Run(context.Background(), tasks, Options{Parallelism: 3, PageSize: 1000, Deadline: 10 * time.Millisecond})
	if !res.DeadlineHit {
		t.Errorf("expected deadline hit")
	}
}

func TestRunEarlyStopOnPageSize(t *testing.T) {
	started := make(chan struct{}, 10)
	tasks := make([]TaskFunc[fakePart], 6)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (fakePart, error) {
			started <- struct{}{}
			select {
			case <-ctx.Done():
				return fakePart{}, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return fakePart{n: 1}, nil
			}
		}
	}
	res := Run(context.Background(), tasks, Options{Parallelism: 6, PageSize: 1})
	if len(res.Parts) < 1 {
		t.Errorf("expected at least one part to complete before early stop")
	}
}
