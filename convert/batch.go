package convert

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/meshflow/internal/pool"
	"github.com/BaSui01/meshflow/types"
)

// BatchResult pairs one batch entry with its outcome. Exactly one of
// Output and Err is set.
type BatchResult struct {
	Index  int
	Output *Output
	Err    error
}

// ConvertBatch runs several conversions concurrently on the worker pool.
// Results keep the order of the input slice. A failed entry does not stop
// the others.
func (s *Service) ConvertBatch(ctx context.Context, reqs []Request) ([]BatchResult, error) {
	if len(reqs) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "batch is empty").
			WithHTTPStatus(400)
	}
	if s.cfg.MaxBatch > 0 && len(reqs) > s.cfg.MaxBatch {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("batch size %d exceeds limit %d", len(reqs), s.cfg.MaxBatch)).
			WithHTTPStatus(400)
	}

	results := make([]BatchResult, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(index int, req Request) {
			defer wg.Done()

			// The task reports through its own buffered channel; only this
			// goroutine writes the result slot, even when SubmitWait bails
			// out on a cancelled context while the task is still running.
			done := make(chan BatchResult, 1)
			err := s.workers.SubmitWait(ctx, func(taskCtx context.Context) error {
				output, convErr := s.Convert(taskCtx, req)
				done <- BatchResult{Index: index, Output: output, Err: convErr}
				return convErr
			})

			select {
			case r := <-done:
				results[index] = r
			default:
				// The task never ran: pool closed, queue wait cancelled.
				results[index] = BatchResult{Index: index, Err: err}
			}
		}(i, req)
	}
	wg.Wait()

	return results, nil
}

// WorkerStats reports batch worker pool counters.
func (s *Service) WorkerStats() pool.GoroutinePoolStats {
	return s.workers.Stats()
}
