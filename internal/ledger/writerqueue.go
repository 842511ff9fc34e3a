package ledger

import "sync"

// WriterQueue gates all ledger writes behind a single queue keyed by
// writer identity. Writers take a ticket and block until it is next;
// this gives FIFO fairness across writer identities instead of
// relying on whatever fairness (or lack of it) the Go runtime's mutex
// happens to provide under contention.
type WriterQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	next   uint64
	serving uint64
}

func NewWriterQueue() *WriterQueue {
	q := &WriterQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Acquire blocks until it is this caller's turn, identified only by
// queue order (writerID is carried for logging/diagnostics, not for
// scheduling). It returns a release func that MUST be called exactly
// once to let the next writer proceed.
func (q *WriterQueue) Acquire(writerID string) (ticket uint64, release func()) {
	q.mu.Lock()
	my := q.next
	q.next++
	for q.serving != my {
		q.cond.Wait()
	}
	q.mu.Unlock()
	released := false
	return my, func() {
		if released {
			return
		}
		released = true
		q.mu.Lock()
		q.serving++
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}
