package dispatch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// minGuidedChunk is the smallest chunk size the cursor ever hands out; below
// this the per-chunk overhead would dominate the work itself.
const minGuidedChunk = 1

// GuidedFor runs fn(workerID, i) for every i in [0, n), fanning the
// iteration space across numWorkers goroutines using guided chunking: each
// worker grabs a chunk sized at remaining/(2*numWorkers), so chunks start
// large and shrink as the range drains, keeping the tail load-balanced
// without per-iteration synchronization overhead. This is the same shape
// as an OpenMP "schedule(guided)" loop, translated to goroutines claiming
// index ranges off a shared atomic cursor instead of a runtime scheduler.
//
// workerID is a stable index in [0, numWorkers) for the lifetime of the
// call, intended for callers to index their own per-worker scratch pack —
// no two goroutines are ever given the same workerID concurrently.
//
// Returns the first error any call to fn returns, after every worker has
// stopped; fn is expected to check ctx.Err() itself at whatever granularity
// makes sense for its own inner loop.
func GuidedFor(ctx context.Context, n int, numWorkers int, fn func(workerID int, i int) error) error {
	if n <= 0 {
		return nil
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if numWorkers > n {
		numWorkers = n
	}

	var cursor atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < numWorkers; w++ {
		workerID := w
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}

				start := cursor.Load()
				if start >= int64(n) {
					return nil
				}
				remaining := int64(n) - start
				chunk := remaining / int64(2*numWorkers)
				if chunk < minGuidedChunk {
					chunk = minGuidedChunk
				}
				if chunk > remaining {
					chunk = remaining
				}
				end := start + chunk
				if !cursor.CompareAndSwap(start, end) {
					continue // another worker raced us; retry with fresh cursor
				}

				for i := start; i < end; i++ {
					if err := fn(workerID, int(i)); err != nil {
						return err
					}
				}
			}
		})
	}

	return g.Wait()
}
