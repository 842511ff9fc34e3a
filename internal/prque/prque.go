// Package prque implements a priority queue over generic (value, priority)
// pairs, popping the highest-priority item first. internal/fairqueue
// builds its per-origin scheduling queue on top of this.
package prque

import "container/heap"

// Ordered is satisfied by any priority type usable with <.
type Ordered interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr |
		~float32 | ~float64 | ~string
}

type item[V any, P Ordered] struct {
	value    V
	priority P
}

// Prque is a priority queue, backed by a binary heap, where higher
// priority values are popped first. Ties are broken by insertion order
// (stable), matching the fair queue's documented tie-break rule.
type Prque[V any, P Ordered] struct {
	h        *innerHeap[V, P]
	setIndex func(data V, index int)
}

// New creates a new priority queue. setIndex, if non-nil, is called
// whenever an item's position in the backing array changes (including
// on removal, with index -1), letting callers maintain an O(log n)
// removable handle; pass nil to skip that bookkeeping.
func New[V any, P Ordered](setIndex func(data V, index int)) *Prque[V, P] {
	return &Prque[V, P]{
		h:        &innerHeap[V, P]{setIndex: setIndex},
		setIndex: setIndex,
	}
}

// Push adds an item with the given priority.
func (p *Prque[V, P]) Push(data V, priority P) {
	heap.Push(p.h, &item[V, P]{value: data, priority: priority})
}

// Pop removes and returns the highest-priority item and its priority.
func (p *Prque[V, P]) Pop() (V, P) {
	it := heap.Pop(p.h).(*item[V, P])
	return it.value, it.priority
}

// PopItem removes and returns only the value of the highest-priority item.
func (p *Prque[V, P]) PopItem() V {
	v, _ := p.Pop()
	return v
}

// Peek returns, without removing, the highest-priority item.
func (p *Prque[V, P]) Peek() (V, P) {
	it := p.h.items[0]
	return it.value, it.priority
}

// Size returns the number of items in the queue.
func (p *Prque[V, P]) Size() int { return p.h.Len() }

// Empty reports whether the queue has no items.
func (p *Prque[V, P]) Empty() bool { return p.h.Len() == 0 }

// Reset clears the queue.
func (p *Prque[V, P]) Reset() {
	*p.h = innerHeap[V, P]{setIndex: p.setIndex}
}

// Remove removes and returns the item at index (as reported to
// setIndex), maintaining the heap invariant for what remains.
func (p *Prque[V, P]) Remove(index int) (V, P) {
	it := heap.Remove(p.h, index).(*item[V, P])
	return it.value, it.priority
}

// innerHeap implements container/heap.Interface over *item[V,P], with a
// small sequence counter so equal priorities pop in insertion order.
type innerHeap[V any, P Ordered] struct {
	items    []*seqItem[V, P]
	seq      int
	setIndex func(data V, index int)
}

type seqItem[V any, P Ordered] struct {
	*item[V, P]
	seq int
}

func (h *innerHeap[V, P]) Len() int { return len(h.items) }

func (h *innerHeap[V, P]) Less(i, j int) bool {
	if h.items[i].priority != h.items[j].priority {
		return h.items[i].priority > h.items[j].priority
	}
	return h.items[i].seq < h.items[j].seq
}

func (h *innerHeap[V, P]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	if h.setIndex != nil {
		h.setIndex(h.items[i].value, i)
		h.setIndex(h.items[j].value, j)
	}
}

func (h *innerHeap[V, P]) Push(x any) {
	it := x.(*item[V, P])
	h.items = append(h.items, &seqItem[V, P]{item: it, seq: h.seq})
	h.seq++
	if h.setIndex != nil {
		h.setIndex(it.value, len(h.items)-1)
	}
}

func (h *innerHeap[V, P]) Pop() any {
	n := len(h.items)
	it := h.items[n-1]
	h.items[n-1] = nil
	h.items = h.items[:n-1]
	if h.setIndex != nil {
		h.setIndex(it.value, -1)
	}
	return it.item
}

var _ heap.Interface = (*innerHeap[int, int])(nil)
