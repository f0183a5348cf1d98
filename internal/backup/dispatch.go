package backup

import (
	"context"
	"sync"

	"github.com/onemirror/onemirror/internal/backup/throttle"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// Dispatcher runs the file jobs of one folder. The handler owns error
// isolation; a handler error is recorded by the caller, not fatal to
// the batch. Dispatch itself fails only on context cancellation.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []types.TransferJob, handler func(types.TransferJob)) error
}

// ParallelDispatcher runs jobs in fixed-size batches through a worker
// pool. The pool width is re-read from the throttle at each batch
// boundary, never mid-batch.
type ParallelDispatcher struct {
	throttle  *throttle.AdaptiveThrottle
	batchSize int
}

// NewParallelDispatcher creates a dispatcher over the given throttle.
func NewParallelDispatcher(t *throttle.AdaptiveThrottle, batchSize int) *ParallelDispatcher {
	if batchSize <= 0 {
		batchSize = utils.DefaultBatchSize
	}
	return &ParallelDispatcher{
		throttle:  t,
		batchSize: batchSize,
	}
}

func (d *ParallelDispatcher) Dispatch(ctx context.Context, jobs []types.TransferJob, handler func(types.TransferJob)) error {
	for start := 0; start < len(jobs); start += d.batchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := start + d.batchSize
		if end > len(jobs) {
			end = len(jobs)
		}

		width := d.throttle.Rebalance()
		if err := runPool(ctx, jobs[start:end], width, handler); err != nil {
			return err
		}
	}
	return nil
}

// SequentialDispatcher runs jobs one at a time in order. Used when
// parallelism is disabled or for deterministic runs.
type SequentialDispatcher struct{}

func (SequentialDispatcher) Dispatch(ctx context.Context, jobs []types.TransferJob, handler func(types.TransferJob)) error {
	for _, job := range jobs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(job)
	}
	return nil
}

// runPool fans jobs out over width workers and waits for the batch to
// drain.
func runPool(ctx context.Context, jobs []types.TransferJob, width int, handler func(types.TransferJob)) error {
	if len(jobs) == 0 {
		return nil
	}
	if width <= 0 {
		width = 1
	}
	if width > len(jobs) {
		width = len(jobs)
	}

	queue := make(chan types.TransferJob)
	var wg sync.WaitGroup

	for i := 0; i < width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if ctx.Err() != nil {
					continue
				}
				handler(job)
			}
		}()
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()

	return ctx.Err()
}
