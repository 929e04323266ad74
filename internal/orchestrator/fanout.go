package orchestrator

import (
	"context"

	"github.com/dusk-indust/mailmerge/internal/merge"
	"golang.org/x/sync/errgroup"
)

// rowTask is one data row queued for production.
type rowTask struct {
	Sequence int
	Row      merge.DataRow
}

// rowResult holds the outcome of a single rowTask.
type rowResult struct {
	Sequence int
	Ref      merge.ArtifactRef

	// Err is the row-isolated failure, if any.
	Err error

	// Abandoned rows were never attempted, or were interrupted by
	// cancellation. They are not counted as processed.
	Abandoned bool
}

// rowFanOut runs rows on a bounded worker pool. Results land in a slice
// indexed like the input, so the manifest order never depends on which
// worker finishes first.
type rowFanOut struct {
	workers int

	// work produces one row. It must not return Abandoned unless ctx is done.
	work func(ctx context.Context, task rowTask) rowResult

	// collect is called once per attempted row. Calls may come from several
	// goroutines; serialization is the callee's job. A non-nil error stops
	// further rows from being issued.
	collect func(rowResult) error
}

// Run dispatches every task and waits for the ones already issued. When ctx
// is canceled no new rows start; the returned error is the first collect
// failure, if any.
func (f *rowFanOut) Run(ctx context.Context, tasks []rowTask) ([]rowResult, error) {
	results := make([]rowResult, len(tasks))
	for i, task := range tasks {
		results[i] = rowResult{Sequence: task.Sequence, Abandoned: true}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		// Go blocks while the pool is full.
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := f.work(gctx, task)
			res.Sequence = task.Sequence
			results[i] = res
			if res.Abandoned {
				return nil
			}
			return f.collect(res)
		})
	}

	err := g.Wait()
	return results, err
}
