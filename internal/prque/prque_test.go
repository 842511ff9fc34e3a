package prque

import (
	"math/rand"
	"testing"
)

func TestPrqueOrdering(t *testing.T) {
	const size = 128
	q := New[int, int](nil)
	prio := rand.Perm(size)
	for i := 0; i < size; i++ {
		q.Push(i, prio[i])
		if q.Size() != i+1 {
			t.Fatalf("size mismatch: have %d, want %d", q.Size(), i+1)
		}
	}
	prev := size + 1
	for !q.Empty() {
		_, p := q.Pop()
		if p > prev {
			t.Fatalf("invalid priority order: %d after %d", p, prev)
		}
		prev = p
	}
}

func TestPrqueStableOnTies(t *testing.T) {
	q := New[string, int](nil)
	q.Push("a", 1)
	q.Push("b", 1)
	q.Push("c", 1)
	var order []string
	for !q.Empty() {
		v, _ := q.Pop()
		order = append(order, v)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPrqueReset(t *testing.T) {
	q := New[int, int](nil)
	q.Push(1, 1)
	q.Push(2, 2)
	q.Reset()
	if !q.Empty() {
		t.Fatalf("expected empty queue after Reset")
	}
}

func TestPrqueSetIndex(t *testing.T) {
	positions := map[int]int{}
	q := New[int, int](func(data, index int) { positions[data] = index })
	q.Push(10, 1)
	q.Push(20, 5)
	if positions[20] != 0 {
		t.Fatalf("expected higher-priority item at index 0, got %d", positions[20])
	}
	q.Pop()
	if positions[20] != -1 {
		t.Fatalf("expected popped item index -1, got %d", positions[20])
	}
}
