// Package votecache is the bounded, tally-ordered cache of votes for
// blocks not yet under active election: indexed by insertion order
// (FIFO eviction) and hash (lookup); top-k queries sort by tally at
// query time.
package votecache

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/gonano/nanod/internal/nanotype"
)

// Disposition is the Vote Router's per-hash verdict for a vote being
// routed: only Vote/Indeterminate hashes are ever inserted here;
// already-applied and invalid votes are dropped before they reach the
// cache.
type Disposition int

const (
	DispositionVote Disposition = iota
	DispositionIndeterminate
	DispositionAlreadyApplied
	DispositionInvalid
)

type voter struct {
	representative nanotype.Account
	weight         nanotype.Amount
	timestamp      uint64
	isFinal        bool
}

// Entry is one cached hash's voter tally.
type Entry struct {
	Hash        nanotype.Hash
	voters      []voter
	Tally       nanotype.Amount
	FinalTally  nanotype.Amount
	LastVoteUnix int64

	insertionID uint64
	elem        *list.Element
}

// TopEntry is one row of a top(min_tally) result.
type TopEntry struct {
	Hash       nanotype.Hash
	Tally      nanotype.Amount
	FinalTally nanotype.Amount
	Voters     int
}

// Cache is the Vote Cache component.
type Cache struct {
	mu sync.Mutex

	maxSize   int
	maxVoters int
	ageCutoff time.Duration

	byHash     map[nanotype.Hash]*Entry
	insertOrder *list.List // oldest-first list of *Entry, for FIFO eviction
	nextID     uint64

	lastCleanup time.Time
	nowFn       func() time.Time
}

func New(maxSize, maxVoters int, ageCutoff time.Duration) *Cache {
	return &Cache{
		maxSize:     maxSize,
		maxVoters:   maxVoters,
		ageCutoff:   ageCutoff,
		byHash:      make(map[nanotype.Hash]*Entry),
		insertOrder: list.New(),
		nowFn:       time.Now,
	}
}

// Insert applies vote, weighted by repWeight, to every hash it names
// that results marks Vote or Indeterminate. An empty results map is
// the test-mode path: every hash in the vote is inserted
// unconditionally.
func (c *Cache) Insert(vote nanotype.Vote, repWeight nanotype.Amount, results map[nanotype.Hash]Disposition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn().UnixNano()
	for _, hash := range vote.Hashes {
		if len(results) > 0 {
			d, ok := results[hash]
			if !ok || (d != DispositionVote && d != DispositionIndeterminate) {
				continue
			}
		}
		entry := c.getOrCreateLocked(hash)
		entry.LastVoteUnix = now
		c.applyVoterLocked(entry, vote.VotingAccount, vote.Timestamp, vote.IsFinal(), repWeight)
	}
}

func (c *Cache) getOrCreateLocked(hash nanotype.Hash) *Entry {
	if e, ok := c.byHash[hash]; ok {
		return e
	}
	if len(c.byHash) >= c.maxSize {
		c.evictOldestLocked()
	}
	e := &Entry{Hash: hash, insertionID: c.nextID}
	c.nextID++
	e.elem = c.insertOrder.PushBack(e)
	c.byHash[hash] = e
	return e
}

func (c *Cache) evictOldestLocked() {
	front := c.insertOrder.Front()
	if front == nil {
		return
	}
	e := front.Value.(*Entry)
	c.insertOrder.Remove(front)
	delete(c.byHash, e.Hash)
}

// applyVoterLocked applies one representative's vote to one entry,
// replacing that representative's prior vote or, for a new voter,
// evicting the current minimum-weight voter once at capacity.
func (c *Cache) applyVoterLocked(e *Entry, rep nanotype.Account, timestamp uint64, isFinal bool, weight nanotype.Amount) {
	for i := range e.voters {
		if e.voters[i].representative != rep {
			continue
		}
		if timestamp <= e.voters[i].timestamp {
			return // stale vote from a rep we've already heard from, ignored
		}
		old := e.voters[i]
		e.Tally, _ = e.Tally.Sub(old.weight)
		if old.isFinal {
			e.FinalTally, _ = e.FinalTally.Sub(old.weight)
		}
		e.voters[i] = voter{representative: rep, weight: weight, timestamp: timestamp, isFinal: isFinal}
		e.Tally = e.Tally.Add(weight)
		if isFinal {
			e.FinalTally = e.FinalTally.Add(weight)
		}
		return
	}

	// New representative for this entry.
	if len(e.voters) >= c.maxVoters {
		minIdx := 0
		for i := 1; i < len(e.voters); i++ {
			if e.voters[i].weight.Cmp(e.voters[minIdx].weight) < 0 {
				minIdx = i
			}
		}
		if weight.Cmp(e.voters[minIdx].weight) <= 0 {
			return // new voter's weight doesn't beat the current minimum
		}
		evicted := e.voters[minIdx]
		e.Tally, _ = e.Tally.Sub(evicted.weight)
		if evicted.isFinal {
			e.FinalTally, _ = e.FinalTally.Sub(evicted.weight)
		}
		e.voters[minIdx] = e.voters[len(e.voters)-1]
		e.voters = e.voters[:len(e.voters)-1]
	}
	e.voters = append(e.voters, voter{representative: rep, weight: weight, timestamp: timestamp, isFinal: isFinal})
	e.Tally = e.Tally.Add(weight)
	if isFinal {
		e.FinalTally = e.FinalTally.Add(weight)
	}
}

// Top returns entries with tally >= minTally, ordered by (final_tally
// desc, tally desc). Before returning, if more than age_cutoff/2 has
// elapsed since the last cleanup it purges entries whose last vote is
// older than age_cutoff.
func (c *Cache) Top(minTally nanotype.Amount) []TopEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if c.ageCutoff > 0 && now.Sub(c.lastCleanup) > c.ageCutoff/2 {
		c.cleanupLocked(now)
	}

	out := make([]TopEntry, 0, len(c.byHash))
	for _, e := range c.byHash {
		if e.Tally.Cmp(minTally) < 0 {
			continue
		}
		out = append(out, TopEntry{Hash: e.Hash, Tally: e.Tally, FinalTally: e.FinalTally, Voters: len(e.voters)})
	}
	sort.Slice(out, func(i, j int) bool {
		if cmp := out[i].FinalTally.Cmp(out[j].FinalTally); cmp != 0 {
			return cmp > 0
		}
		return out[i].Tally.Cmp(out[j].Tally) > 0
	})
	return out
}

func (c *Cache) cleanupLocked(now time.Time) {
	c.lastCleanup = now
	cutoff := now.Add(-c.ageCutoff).UnixNano()
	for hash, e := range c.byHash {
		if e.LastVoteUnix < cutoff {
			c.insertOrder.Remove(e.elem)
			delete(c.byHash, hash)
		}
	}
}

// Find returns the cached entry for hash, if any — used by the AEC
// when seeding a fresh election's tally from previously-cached votes.
func (c *Cache) Find(hash nanotype.Hash) (TopEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byHash[hash]
	if !ok {
		return TopEntry{}, false
	}
	return TopEntry{Hash: e.Hash, Tally: e.Tally, FinalTally: e.FinalTally, Voters: len(e.voters)}, true
}

// Erase removes hash from the cache, e.g. once an election has been
// created for it and the cached tally has been copied into the
// election.
func (c *Cache) Erase(hash nanotype.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.byHash[hash]; ok {
		c.insertOrder.Remove(e.elem)
		delete(c.byHash, hash)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHash)
}
