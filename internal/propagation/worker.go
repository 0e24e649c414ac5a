package propagation

import (
	"context"
	"log/slog"
	"sync"
)

// StopFunc is polled once per offset before it is dispatched. Returning true
// ends the batch early.
type StopFunc func() bool

// indexedSample carries a worker result back to its slot.
type indexedSample struct {
	index  int
	sample Sample
}

// WorkerPool fans per-offset work across a fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// Map applies fn to every offset and returns the samples in offset order.
//
// Offsets are dispatched in order. When ctx is done or stop reports true,
// dispatch ends; every offset already handed to a worker still completes, so
// the result is always a contiguous prefix of offsets. The second result is
// true when the prefix is shorter than offsets.
func (wp *WorkerPool) Map(ctx context.Context, offsets []int64, stop StopFunc, fn func(offset int64) Sample) ([]Sample, bool) {
	if len(offsets) == 0 {
		return nil, false
	}

	jobs := make(chan int, wp.workers*2)
	results := make(chan indexedSample, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- indexedSample{index: idx, sample: fn(offsets[idx])}
			}
		}()
	}

	// Written only by the feeder; read after results is closed.
	var dispatched int
	var truncated bool
	go func() {
		defer close(jobs)
		for i := range offsets {
			if ctx.Err() != nil || (stop != nil && stop()) {
				truncated = true
				return
			}
			select {
			case jobs <- i:
				dispatched++
			case <-ctx.Done():
				truncated = true
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]Sample, len(offsets))
	for r := range results {
		out[r.index] = r.sample
	}

	if truncated {
		wp.logger.Debug("batch stopped early",
			"dispatched", dispatched,
			"requested", len(offsets),
		)
	}
	return out[:dispatched], truncated
}
