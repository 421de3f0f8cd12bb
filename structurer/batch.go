package structurer

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/liftback/restruct/lift"
)

// Batch structures every descriptor with a bounded worker pool. Results
// keep the input order; a rejected function becomes a Rejected result and
// never stops the batch. Cancelling ctx stops dequeuing new functions.
func (s *Structurer) Batch(ctx context.Context, ds []*lift.Descriptor, workers int) []*Result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]*Result, len(ds))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, d := range ds {
		if ctx.Err() != nil {
			break
		}
		i, d := i, d
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &Result{Name: d.Name, Status: Rejected, Err: err}
				return nil
			}
			res, err := s.Function(d)
			if err != nil {
				s.Logger.Errorw("function rejected", "function", d.Name, "error", err)
			}
			results[i] = res
			return nil
		})
	}
	eg.Wait() // workers never return errors; rejections live in results

	for i, r := range results {
		if r == nil {
			results[i] = &Result{Name: ds[i].Name, Status: Rejected, Err: ctx.Err()}
		}
	}
	return results
}
