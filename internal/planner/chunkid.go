package planner

import "sync/atomic"

// chunkIDCounter assigns unique, monotonically increasing chunk ids scoped
// to a single Plan() call (spec §4.2's "atomic increment counter scoped to
// the run"), grounded on the teacher's atomic.AddUint64 processed-counter
// style in worker.go.
type chunkIDCounter struct {
	next atomic.Int64
}

func (c *chunkIDCounter) nextID() int64 {
	return c.next.Add(1)
}
