// Package voterouter maintains the hash→election index and dispatches
// incoming votes to the elections they belong to, without ever
// holding an election's own mutex while the vote is being applied.
package voterouter

import (
	"sync"

	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/votecache"
)

// VoteSource distinguishes a vote that arrived live on the network
// from one replayed out of the Vote Cache or rebroadcast locally —
// elections may weight or rate-limit these differently.
type VoteSource int

const (
	VoteSourceLive VoteSource = iota
	VoteSourceCache
	VoteSourceRebroadcast
)

// Election is the subset of the Active Elections object the router
// needs: applying one representative's vote for one hash and
// reporting back how it was classified. Implemented by
// internal/election.Election; kept as an interface here so the router
// never depends on the AEC package — strong ownership lives in the
// AEC, the router only holds a back-reference and must never be the
// one to keep an election alive.
type Election interface {
	Vote(rep nanotype.Account, timestamp uint64, hash nanotype.Hash, source VoteSource) votecache.Disposition
}

// Router is the Vote Router: it owns the hash→election index and
// dispatches votes to the right election without touching its mutex.
type Router struct {
	mu    sync.RWMutex
	byHash map[nanotype.Hash]Election
}

func New() *Router {
	return &Router{byHash: make(map[nanotype.Hash]Election)}
}

// Connect registers hash as resolving to election. Call once per
// qualified root an election is actively contesting.
func (r *Router) Connect(hash nanotype.Hash, election Election) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[hash] = election
}

// Disconnect removes a single hash from the index, e.g. when an
// election's last vote-eligible candidate is replaced.
func (r *Router) Disconnect(hash nanotype.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byHash, hash)
}

// DisconnectElection removes every hash currently resolving to
// election — called once, by the AEC, before it drops its own strong
// reference on erase.
func (r *Router) DisconnectElection(election Election) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, e := range r.byHash {
		if e == election {
			delete(r.byHash, hash)
		}
	}
}

// Route looks up every hash named by vote. For each hash resolving to
// a live election it calls election.Vote outside the router's own
// lock (only a short-held snapshot of the election reference is taken
// under lock) and records the returned disposition; every hash with no
// connected election is reported Indeterminate, matching
// internal/votecache's "unknown hash" disposition so the returned map
// can be passed straight to Cache.Insert by the caller.
func (r *Router) Route(vote nanotype.Vote, repWeight nanotype.Amount, source VoteSource) map[nanotype.Hash]votecache.Disposition {
	type target struct {
		hash     nanotype.Hash
		election Election
	}
	targets := make([]target, len(vote.Hashes))

	r.mu.RLock()
	for i, hash := range vote.Hashes {
		targets[i] = target{hash: hash, election: r.byHash[hash]}
	}
	r.mu.RUnlock()

	results := make(map[nanotype.Hash]votecache.Disposition, len(targets))
	for _, t := range targets {
		if t.election == nil {
			results[t.hash] = votecache.DispositionIndeterminate
			continue
		}
		results[t.hash] = t.election.Vote(vote.VotingAccount, vote.Timestamp, t.hash, source)
	}
	return results
}

// Len reports how many hashes currently resolve to a live election.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}
