// Package nanostats is the process-wide statistics facility: lock-free
// additive counters and gauges, plus histograms backed by bounded
// bucket arrays. It is a slimmed-down reimplementation of
// go-ethereum's own metrics package (Counter/Gauge/Histogram/Registry,
// NewRegistered*/GetOrRegister* helpers) — that metrics subsystem is
// itself a self-contained, dependency-free package, so nanostats
// follows the same shape rather than reaching for an external
// time-series client.
package nanostats

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Counter is a lock-free, monotonically adjustable counter.
type Counter interface {
	Inc(int64)
	Dec(int64)
	Snapshot() Counter
	Count() int64
}

type counter struct{ n atomic.Int64 }

// NewCounter allocates a new Counter.
func NewCounter() Counter { return &counter{} }

func (c *counter) Inc(v int64)      { c.n.Add(v) }
func (c *counter) Dec(v int64)      { c.n.Add(-v) }
func (c *counter) Count() int64     { return c.n.Load() }
func (c *counter) Snapshot() Counter {
	return counterSnapshot(c.n.Load())
}

type counterSnapshot int64

func (c counterSnapshot) Inc(int64)       {}
func (c counterSnapshot) Dec(int64)       {}
func (c counterSnapshot) Count() int64    { return int64(c) }
func (c counterSnapshot) Snapshot() Counter { return c }

// Gauge holds a single mutable value, e.g. a queue depth.
type Gauge interface {
	Update(int64)
	Value() int64
	Snapshot() Gauge
}

type gauge struct{ v atomic.Int64 }

func NewGauge() Gauge { return &gauge{} }

func (g *gauge) Update(v int64)   { g.v.Store(v) }
func (g *gauge) Value() int64     { return g.v.Load() }
func (g *gauge) Snapshot() Gauge  { return gaugeSnapshot(g.v.Load()) }

type gaugeSnapshot int64

func (g gaugeSnapshot) Update(int64)    {}
func (g gaugeSnapshot) Value() int64    { return int64(g) }
func (g gaugeSnapshot) Snapshot() Gauge { return g }

// FunctionalGauge reports a value computed on demand, e.g. the live
// election count derived from a map's length.
type FunctionalGauge interface {
	Value() int64
}

type funcGauge struct{ f func() int64 }

func NewFunctionalGauge(f func() int64) FunctionalGauge { return &funcGauge{f: f} }
func (g *funcGauge) Value() int64                       { return g.f() }

// Histogram accumulates samples into fixed bucket boundaries (bounded
// memory, as §5 requires for election-duration and bootstrap-tag-
// duration histograms — no unbounded reservoir sampling).
type Histogram interface {
	Update(int64)
	Count() int64
	Sum() int64
	Min() int64
	Max() int64
	Mean() float64
	Buckets() []Bucket
}

// Bucket is one (upper bound, cumulative count) pair; the last bucket
// is the overflow bucket, marked by an UpperBound of -1.
type Bucket struct {
	UpperBound int64
	Count      int64
}

type histogram struct {
	mu      sync.Mutex
	bounds  []int64
	buckets []int64 // len(bounds)+1, last is overflow
	count   int64
	sum     int64
	min     int64
	max     int64
}

// NewHistogram allocates a histogram with the given upper bucket
// boundaries, which must be sorted ascending.
func NewHistogram(bounds []int64) Histogram {
	return &histogram{bounds: bounds, buckets: make([]int64, len(bounds)+1)}
}

// DefaultDurationBoundsMillis is a reasonable default ladder for
// latency-shaped histograms (election duration, bootstrap tag RTT),
// in milliseconds.
var DefaultDurationBoundsMillis = []int64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000}

func (h *histogram) Update(v int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
	idx := sort.Search(len(h.bounds), func(i int) bool { return h.bounds[i] >= v })
	h.buckets[idx]++
}

func (h *histogram) Count() int64 { h.mu.Lock(); defer h.mu.Unlock(); return h.count }
func (h *histogram) Sum() int64   { h.mu.Lock(); defer h.mu.Unlock(); return h.sum }
func (h *histogram) Min() int64   { h.mu.Lock(); defer h.mu.Unlock(); return h.min }
func (h *histogram) Max() int64   { h.mu.Lock(); defer h.mu.Unlock(); return h.max }

func (h *histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

func (h *histogram) Buckets() []Bucket {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Bucket, len(h.buckets))
	var cum int64
	for i, c := range h.buckets {
		cum += c
		ub := int64(-1)
		if i < len(h.bounds) {
			ub = h.bounds[i]
		}
		out[i] = Bucket{UpperBound: ub, Count: cum}
	}
	return out
}

// Registry is a named collection of metrics, mirroring
// go-ethereum's metrics.Registry (Register/Unregister/Each/GetOrRegister).
type Registry interface {
	Register(name string, metric any) error
	Unregister(name string)
	Each(func(name string, metric any))
	Get(name string) any
}

type registry struct {
	mu sync.Mutex
	m  map[string]any
}

// NewRegistry allocates an empty Registry.
func NewRegistry() Registry { return &registry{m: make(map[string]any)} }

var errDuplicateMetric = duplicateMetricError("nanostats: duplicate metric name")

type duplicateMetricError string

func (e duplicateMetricError) Error() string { return string(e) }

func (r *registry) Register(name string, metric any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[name]; ok {
		return errDuplicateMetric
	}
	r.m[name] = metric
	return nil
}

func (r *registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, name)
}

func (r *registry) Get(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[name]
}

func (r *registry) Each(f func(name string, metric any)) {
	r.mu.Lock()
	snap := make(map[string]any, len(r.m))
	for k, v := range r.m {
		snap[k] = v
	}
	r.mu.Unlock()
	for k, v := range snap {
		f(k, v)
	}
}

// NewRegisteredCounter registers and returns a new Counter, panicking
// on a duplicate name (programmer error — callers use constant names).
func NewRegisteredCounter(name string, r Registry) Counter {
	c := NewCounter()
	mustRegister(r, name, c)
	return c
}

func NewRegisteredGauge(name string, r Registry) Gauge {
	g := NewGauge()
	mustRegister(r, name, g)
	return g
}

func NewRegisteredFunctionalGauge(name string, r Registry, f func() int64) FunctionalGauge {
	g := NewFunctionalGauge(f)
	mustRegister(r, name, g)
	return g
}

func NewRegisteredHistogram(name string, r Registry, bounds []int64) Histogram {
	h := NewHistogram(bounds)
	mustRegister(r, name, h)
	return h
}

func mustRegister(r Registry, name string, metric any) {
	if r == nil {
		return
	}
	if err := r.Register(name, metric); err != nil {
		panic(err)
	}
}

func GetOrRegisterCounter(name string, r Registry) Counter {
	if r == nil {
		return NewCounter()
	}
	if v := r.Get(name); v != nil {
		return v.(Counter)
	}
	return NewRegisteredCounter(name, r)
}

func GetOrRegisterGauge(name string, r Registry) Gauge {
	if r == nil {
		return NewGauge()
	}
	if v := r.Get(name); v != nil {
		return v.(Gauge)
	}
	return NewRegisteredGauge(name, r)
}
