// Package accumulator builds and persists MuHash set commitments.
package accumulator

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Bren2010/muhash/crypto/muhash"
)

// How many elements a worker hashes between checks for cancellation.
const cancelCheckInterval = 64

type operation struct {
	data   []byte
	remove bool
}

// Collector queues up many insertions and removals to an accumulator to be
// applied later, in a bulk operation. It is not safe for concurrent use.
type Collector struct {
	ops []operation
}

func NewCollector() *Collector {
	return &Collector{}
}

// Insert queues one insertion of data. The slice is copied.
func (c *Collector) Insert(data []byte) {
	c.ops = append(c.ops, operation{data: dup(data)})
}

// Remove queues one removal of data. The slice is copied.
func (c *Collector) Remove(data []byte) {
	c.ops = append(c.ops, operation{data: dup(data), remove: true})
}

// Len returns the number of queued operations.
func (c *Collector) Len() int { return len(c.ops) }

// Reset drops all queued operations.
func (c *Collector) Reset() { c.ops = nil }

// Build returns an accumulator containing every queued operation. The
// operations are split into contiguous chunks that are hashed by separate
// goroutines into private accumulators, which are then combined. If workers
// is not positive, one worker per CPU is used.
//
// The queue is left untouched, so Build may be called again.
func (c *Collector) Build(ctx context.Context, workers int) (*muhash.MuHash, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(c.ops) {
		workers = len(c.ops)
	}
	if workers == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return muhash.New(), nil
	}
	chunk := (len(c.ops) + workers - 1) / workers
	workers = (len(c.ops) + chunk - 1) / chunk

	partials := make([]*muhash.MuHash, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		i := i
		start, end := i*chunk, (i+1)*chunk
		if end > len(c.ops) {
			end = len(c.ops)
		}
		ops := c.ops[start:end]

		g.Go(func() error {
			ms := muhash.New()
			for j, op := range ops {
				if j%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				if op.remove {
					ms.Remove(op.data)
				} else {
					ms.Insert(op.data)
				}
			}
			partials[i] = ms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := muhash.New()
	for _, ms := range partials {
		if ms != nil {
			out.Combine(ms)
		}
	}
	return out, nil
}

func dup(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
