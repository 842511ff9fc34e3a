// Package unchecked holds blocks the processor could not yet place
// because a dependency (previous, source, or an epoch-open account) is
// missing, keyed by the hash it's waiting on, replayed once that hash
// shows up.
package unchecked

import (
	"sync"

	"github.com/gonano/nanod/internal/nanotype"
)

// PendingBlock is one block staged against a missing dependency.
type PendingBlock struct {
	Block  *nanotype.Block
	Source nanotype.BlockSource
}

// Map is a bounded multimap dependency-hash → []PendingBlock, modeled
// on go-ethereum's per-account pending-transaction queue
// (core/transaction_pool_test.go's pool.queue[addr]), generalized to a
// hash key and given capacity-based FIFO eviction since the Gap set is
// attacker-fillable (an adversary can publish arbitrarily many blocks
// with bogus "previous" hashes) and must never grow unbounded.
type Map struct {
	mu       sync.Mutex
	capacity int
	entries  map[nanotype.Hash][]PendingBlock
	order    []nanotype.Hash // one entry per Put, oldest first
	count    int
}

func New(capacity int) *Map {
	return &Map{capacity: capacity, entries: make(map[nanotype.Hash][]PendingBlock)}
}

// Put stages block against dependency, evicting the oldest staged
// entry first if the map is at capacity.
func (m *Map) Put(dependency nanotype.Hash, block *nanotype.Block, source nanotype.BlockSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count >= m.capacity {
		m.evictOldestLocked()
	}
	m.entries[dependency] = append(m.entries[dependency], PendingBlock{Block: block, Source: source})
	m.order = append(m.order, dependency)
	m.count++
}

// evictOldestLocked drops the single oldest-inserted entry, skipping
// FIFO markers whose bucket has already drained via Release.
func (m *Map) evictOldestLocked() {
	for len(m.order) > 0 {
		dep := m.order[0]
		m.order = m.order[1:]
		bucket := m.entries[dep]
		if len(bucket) == 0 {
			continue
		}
		if len(bucket) == 1 {
			delete(m.entries, dep)
		} else {
			m.entries[dep] = bucket[1:]
		}
		m.count--
		return
	}
}

// Peek returns the blocks staged against dependency without removing
// them.
func (m *Map) Peek(dependency nanotype.Hash) []PendingBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PendingBlock(nil), m.entries[dependency]...)
}

// Release removes and returns every block staged against dependency,
// for the caller to re-submit to the block processor now that the
// dependency has arrived.
func (m *Map) Release(dependency nanotype.Hash) []PendingBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.entries[dependency]
	if len(bucket) == 0 {
		return nil
	}
	delete(m.entries, dependency)
	m.count -= len(bucket)
	return bucket
}

func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
