// Package executor runs a bounded-concurrency pool of per-segment
// search tasks with deadline cancellation and early stop once enough
// hits have accumulated.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Part is the minimal shape the executor needs from a task's result:
// how many hits it contributed, for the shared early-stop counter.
type Part interface {
	HitCount() int
}

// TaskFunc runs one segment's share of a search, observing ctx for
// cancellation. A task that observes cancellation should return
// promptly with a zero-value (empty) result.
type TaskFunc[T Part] func(ctx context.Context) (T, error)

// Options configures a Run call.
type Options struct {
	// Parallelism caps concurrent task execution. Must be >= 1.
	Parallelism int
	// PageSize is the early-stop threshold: once accumulated hits
	// across completed tasks reach PageSize, remaining tasks are
	// cancelled.
	PageSize int
	// Deadline, if non-zero, cancels all tasks once elapsed and sets
	// Result.DeadlineHit.
	Deadline time.Duration
}

// Result is Run's output.
type Result[T Part] struct {
	Parts        []T
	DeadlineHit  bool
	SaturatedSem int
}

// Run executes tasks with bounded concurrency per Options. A task
// that cannot immediately acquire a concurrency permit increments
// SaturatedSem once and then blocks for a permit; if the merged
// context is cancelled first (deadline, early stop, or caller
// cancellation) while still waiting, that task never runs and
// contributes nothing. Errors from individual tasks are treated the
// same as a cancelled task: they contribute no part and are not
// fatal to the overall run.
func Run[T Part](ctx context.Context, tasks []TaskFunc[T], opts Options) Result[T] {
	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	merged, cancel := context.WithCancel(ctx)
	defer cancel()

	var deadlineHit atomic.Bool
	if opts.Deadline > 0 {
		timer := time.AfterFunc(opts.Deadline, func() {
			deadlineHit.Store(true)
			cancel()
		})
		defer timer.Stop()
	}

	sem := semaphore.NewWeighted(int64(parallelism))
	var saturatedSem atomic.Int64
	var hitCount atomic.Int64

	var mu sync.Mutex
	parts := make([]T, 0, len(tasks))

	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()

			if !sem.TryAcquire(1) {
				saturatedSem.Add(1)
				if err := sem.Acquire(merged, 1); err != nil {
					return
				}
			}
			defer sem.Release(1)

			if merged.Err() != nil {
				return
			}

			part, err := task(merged)
			if err != nil {
				return
			}

			mu.Lock()
			parts = append(parts, part)
			mu.Unlock()

			if int(hitCount.Add(int64(part.HitCount()))) >= opts.PageSize && opts.PageSize > 0 {
				cancel()
			}
		}()
	}
	wg.Wait()

	return Result[T]{
		Parts:        parts,
		DeadlineHit:  deadlineHit.Load(),
		SaturatedSem: int(saturatedSem.Load()),
	}
}
