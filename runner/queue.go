package runner

import (
	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// WorkQueue hands out identities round-robin in a fixed order, forever. It is
// only used from the scheduler's dispatch loop and is not safe for concurrent
// use.
type WorkQueue struct {
	items []types.TestIdentity
	next  int
	taken int
}

// NewWorkQueue creates a queue over items, which must not be empty.
func NewWorkQueue(items []types.TestIdentity) *WorkQueue {
	if len(items) == 0 {
		panic("runner: work queue needs at least one identity")
	}
	return &WorkQueue{items: append([]types.TestIdentity(nil), items...)}
}

// Next returns the next identity, wrapping around at the end.
func (q *WorkQueue) Next() types.TestIdentity {
	id := q.items[q.next]
	q.next = (q.next + 1) % len(q.items)
	q.taken++
	return id
}

// Len is the number of distinct identities in the cycle.
func (q *WorkQueue) Len() int {
	return len(q.items)
}

// Taken is the number of identities handed out so far.
func (q *WorkQueue) Taken() int {
	return q.taken
}
