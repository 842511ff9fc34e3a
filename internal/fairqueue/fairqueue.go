// Package fairqueue implements a multi-source, per-origin priority
// round-robin queue: many bounded input streams (origins), each
// additionally tagged with a source for per-source accounting, drained
// in a priority-weighted rotation so a busy low-priority origin never
// starves the others and a high-priority origin never monopolizes the
// queue either.
package fairqueue

import (
	"container/list"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gonano/nanod/internal/prque"
)

// Queue buckets values by origin O, additionally tagging each with a
// source S for per-source accounting (LenBy). Origins are drained in
// a priority-weighted rotation using a virtual-time scheme: each
// origin accumulates 1/priority of "debt" per pop, and PopNext always
// serves whichever non-empty origin owes the least — higher-priority
// origins owe less per turn and so come up for air more often, without
// ever starving a low-priority origin outright. The set of origins
// currently owed a turn is kept in a priority queue ordered by debt, so
// PopNext doesn't have to rescan every known origin to find the next
// one due.
type Queue[V any, S comparable, O comparable] struct {
	mu sync.Mutex

	buckets  map[O]*list.List
	virtual  map[O]float64
	priority map[O]int
	maxSize  map[O]int

	sourceCounts map[S]int

	ready      *prque.Prque[O, float64]
	readyIndex map[O]int
	inReady    mapset.Set[O]

	defaultPriority int
}

type entry[V any, S comparable] struct {
	value  V
	source S
}

// New builds an empty Queue. defaultPriority is used for any origin
// that SetPriority has not configured explicitly.
func New[V any, S comparable, O comparable](defaultPriority int) *Queue[V, S, O] {
	if defaultPriority <= 0 {
		defaultPriority = 1
	}
	q := &Queue[V, S, O]{
		buckets:         make(map[O]*list.List),
		virtual:         make(map[O]float64),
		priority:        make(map[O]int),
		maxSize:         make(map[O]int),
		sourceCounts:    make(map[S]int),
		readyIndex:      make(map[O]int),
		inReady:         mapset.NewSet[O](),
		defaultPriority: defaultPriority,
	}
	q.ready = prque.New[O, float64](q.setReadyIndex)
	return q
}

func (q *Queue[V, S, O]) setReadyIndex(origin O, index int) {
	if index < 0 {
		delete(q.readyIndex, origin)
		return
	}
	q.readyIndex[origin] = index
}

// SetPriority configures origin's relative scheduling weight; higher
// values are served proportionally more often by PopNext.
func (q *Queue[V, S, O]) SetPriority(origin O, priority int) {
	if priority <= 0 {
		priority = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.priority[origin] = priority
}

// SetMaxSize caps how many items origin may hold at once; Push returns
// false without evicting anything once the cap is reached.
func (q *Queue[V, S, O]) SetMaxSize(origin O, max int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxSize[origin] = max
}

func (q *Queue[V, S, O]) priorityOf(origin O) int {
	if p, ok := q.priority[origin]; ok {
		return p
	}
	return q.defaultPriority
}

// markReady pushes origin into the ready queue if it isn't already
// waiting for a turn there.
func (q *Queue[V, S, O]) markReady(origin O) {
	if q.inReady.Contains(origin) {
		return
	}
	q.ready.Push(origin, -q.virtual[origin])
	q.inReady.Add(origin)
}

// Push enqueues value under (source, origin). Returns false without
// mutating the queue if origin is already at its configured max_size.
func (q *Queue[V, S, O]) Push(value V, source S, origin O) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	bucket, ok := q.buckets[origin]
	if !ok {
		bucket = list.New()
		q.buckets[origin] = bucket
	}
	if max, ok := q.maxSize[origin]; ok && max > 0 && bucket.Len() >= max {
		return false
	}
	bucket.PushBack(entry[V, S]{value: value, source: source})
	q.sourceCounts[source]++
	q.markReady(origin)
	return true
}

// PopNext selects the next non-empty origin in priority-weighted
// rotation and pops its oldest entry (FIFO within an origin).
func (q *Queue[V, S, O]) PopNext() (value V, source S, origin O, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready.Empty() {
		return value, source, origin, false
	}
	best, _ := q.ready.Pop()
	q.inReady.Remove(best)

	bucket := q.buckets[best]
	front := bucket.Front()
	bucket.Remove(front)
	e := front.Value.(entry[V, S])
	q.sourceCounts[e.source]--
	q.virtual[best] += 1.0 / float64(q.priorityOf(best))

	if bucket.Len() > 0 {
		q.markReady(best)
	}

	return e.value, e.source, best, true
}

// Len returns the total number of queued items across all origins.
func (q *Queue[V, S, O]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, b := range q.buckets {
		total += b.Len()
	}
	return total
}

// LenBy returns the number of queued items tagged with source.
func (q *Queue[V, S, O]) LenBy(source S) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sourceCounts[source]
}

// RemoveBy drops every item queued under origin, returning them in
// FIFO order.
func (q *Queue[V, S, O]) RemoveBy(origin O) []V {
	q.mu.Lock()
	defer q.mu.Unlock()
	bucket, ok := q.buckets[origin]
	if !ok {
		return nil
	}
	out := make([]V, 0, bucket.Len())
	for e := bucket.Front(); e != nil; e = e.Next() {
		ent := e.Value.(entry[V, S])
		out = append(out, ent.value)
		q.sourceCounts[ent.source]--
	}
	delete(q.buckets, origin)
	delete(q.virtual, origin)
	if q.inReady.Contains(origin) {
		if idx, ok := q.readyIndex[origin]; ok {
			q.ready.Remove(idx)
		}
		q.inReady.Remove(origin)
	}
	return out
}

// Clear empties the queue entirely, keeping per-origin configuration
// (priority, max_size) intact.
func (q *Queue[V, S, O]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buckets = make(map[O]*list.List)
	q.virtual = make(map[O]float64)
	q.sourceCounts = make(map[S]int)
	q.readyIndex = make(map[O]int)
	q.inReady = mapset.NewSet[O]()
	q.ready = prque.New[O, float64](q.setReadyIndex)
}
