package kv

import (
	"sort"
	"sync"
)

// MemBackend is an in-memory Backend, filling the same role as
// go-ethereum's core/rawdb/memorydb: a plain map behind a RWMutex,
// used for tests and for running a node without a disk store.
type MemBackend struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemBackend() *MemBackend {
	return &MemBackend{buckets: make(map[string]map[string][]byte)}
}

func (m *MemBackend) Close() error { return nil }

func (m *MemBackend) BeginRead() Txn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := make(map[string]map[string][]byte, len(m.buckets))
	for b, kvs := range m.buckets {
		inner := make(map[string][]byte, len(kvs))
		for k, v := range kvs {
			cp := make([]byte, len(v))
			copy(cp, v)
			inner[k] = cp
		}
		snap[b] = inner
	}
	return &memTxn{buckets: snap}
}

func (m *MemBackend) BeginWrite() (Writer, error) {
	m.mu.Lock()
	return &memWriter{backend: m, pending: make(map[string]map[string][]byte), deleted: make(map[string]map[string]bool)}, nil
}

type memTxn struct {
	buckets map[string]map[string][]byte
}

func (t *memTxn) Get(bucket, key []byte) ([]byte, bool) {
	b, ok := t.buckets[string(bucket)]
	if !ok {
		return nil, false
	}
	v, ok := b[string(key)]
	return v, ok
}

func (t *memTxn) ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) bool) {
	b, ok := t.buckets[string(bucket)]
	if !ok {
		return
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k[len(prefix):]), b[k]) {
			return
		}
	}
}

func (t *memTxn) Discard() {}

// memWriter buffers Put/Delete until Commit, so a discarded write
// transaction (error path) never touches the backend.
type memWriter struct {
	backend *MemBackend
	pending map[string]map[string][]byte
	deleted map[string]map[string]bool
	done    bool
}

func (w *memWriter) Get(bucket, key []byte) ([]byte, bool) {
	bs, ks := string(bucket), string(key)
	if del, ok := w.deleted[bs]; ok && del[ks] {
		return nil, false
	}
	if p, ok := w.pending[bs]; ok {
		if v, ok := p[ks]; ok {
			return v, true
		}
	}
	b, ok := w.backend.buckets[bs]
	if !ok {
		return nil, false
	}
	v, ok := b[ks]
	return v, ok
}

func (w *memWriter) ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) bool) {
	bs := string(bucket)
	seen := make(map[string]bool)
	var keys []string
	if p, ok := w.pending[bs]; ok {
		for k := range p {
			if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
				keys = append(keys, k)
				seen[k] = true
			}
		}
	}
	if b, ok := w.backend.buckets[bs]; ok {
		for k := range b {
			if seen[k] {
				continue
			}
			if del, ok := w.deleted[bs]; ok && del[k] {
				continue
			}
			if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := w.Get([]byte(bs), []byte(k))
		if !ok {
			continue
		}
		if !fn([]byte(k[len(prefix):]), v) {
			return
		}
	}
}

func (w *memWriter) Put(bucket, key, value []byte) {
	bs, ks := string(bucket), string(key)
	if w.pending[bs] == nil {
		w.pending[bs] = make(map[string][]byte)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	w.pending[bs][ks] = cp
	if del, ok := w.deleted[bs]; ok {
		delete(del, ks)
	}
}

func (w *memWriter) Delete(bucket, key []byte) {
	bs, ks := string(bucket), string(key)
	if w.deleted[bs] == nil {
		w.deleted[bs] = make(map[string]bool)
	}
	w.deleted[bs][ks] = true
	if p, ok := w.pending[bs]; ok {
		delete(p, ks)
	}
}

func (w *memWriter) Commit() error {
	if w.done {
		return nil
	}
	for bs, kvs := range w.pending {
		if w.backend.buckets[bs] == nil {
			w.backend.buckets[bs] = make(map[string][]byte)
		}
		for k, v := range kvs {
			w.backend.buckets[bs][k] = v
		}
	}
	for bs, ks := range w.deleted {
		if b, ok := w.backend.buckets[bs]; ok {
			for k := range ks {
				delete(b, k)
			}
		}
	}
	w.done = true
	w.backend.mu.Unlock()
	return nil
}

func (w *memWriter) Discard() {
	if w.done {
		return
	}
	w.done = true
	w.backend.mu.Unlock()
}
