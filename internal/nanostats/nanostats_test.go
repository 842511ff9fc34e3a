package nanostats

import "testing"

func TestCounter(t *testing.T) {
	c := NewCounter()
	c.Inc(3)
	c.Dec(1)
	if got := c.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	snap := c.Snapshot()
	c.Inc(100)
	if got := snap.Count(); got != 2 {
		t.Fatalf("snapshot mutated: Count() = %d, want 2", got)
	}
}

func TestGaugeSnapshot(t *testing.T) {
	g := NewGauge()
	g.Update(47)
	snap := g.Snapshot()
	g.Update(0)
	if got := snap.Value(); got != 47 {
		t.Fatalf("snapshot Value() = %d, want 47", got)
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram([]int64{10, 100})
	for _, v := range []int64{5, 15, 15, 500} {
		h.Update(v)
	}
	if got := h.Count(); got != 4 {
		t.Fatalf("Count() = %d, want 4", got)
	}
	if got := h.Min(); got != 5 {
		t.Fatalf("Min() = %d, want 5", got)
	}
	if got := h.Max(); got != 500 {
		t.Fatalf("Max() = %d, want 500", got)
	}
	buckets := h.Buckets()
	if len(buckets) != 3 {
		t.Fatalf("len(Buckets()) = %d, want 3", len(buckets))
	}
	if buckets[0].Count != 1 || buckets[1].Count != 3 || buckets[2].Count != 4 {
		t.Fatalf("unexpected cumulative counts: %+v", buckets)
	}
}

func TestRegistryGetOrRegister(t *testing.T) {
	r := NewRegistry()
	c := GetOrRegisterCounter("foo", r)
	c.Inc(5)
	if got := GetOrRegisterCounter("foo", r).Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
	seen := map[string]bool{}
	r.Each(func(name string, _ any) { seen[name] = true })
	if !seen["foo"] {
		t.Fatalf("expected registry to contain %q", "foo")
	}
	r.Unregister("foo")
	if r.Get("foo") != nil {
		t.Fatalf("expected foo to be gone after Unregister")
	}
}
