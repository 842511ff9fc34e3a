// Package election implements the per-root Election state machine and
// the Active Elections (AEC) bounded set: a fused consensus-engine-
// plus-sealing-loop, generalized to weighted representative voting
// instead of PoW/PoA block sealing.
package election

import (
	"sort"
	"sync"
	"time"

	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/votecache"
	"github.com/gonano/nanod/internal/voterouter"
)

// maxCandidates is the cap on candidate blocks an election tracks at once.
const maxCandidates = 10

// VoteRecord is one representative's most recent vote on this root.
type VoteRecord struct {
	Hash      nanotype.Hash
	Timestamp uint64
	Time      time.Time
}

// Status is the externally-observable snapshot of an election.
type Status struct {
	Winner     nanotype.Hash
	Tally      nanotype.Amount
	FinalTally nanotype.Amount
	VoteCount  int
	BlockCount int
	Duration   time.Duration
	Behavior   nanotype.ElectionBehavior
}

// Election is one contested qualified root. Every field is mutated
// only under mu: each election owns its own mutex rather than sharing
// one with the set that tracks it.
type Election struct {
	mu sync.Mutex

	id            uint64
	qualifiedRoot nanotype.QualifiedRoot
	behavior      nanotype.ElectionBehavior
	state         nanotype.ElectionState

	lastBlocks map[nanotype.Hash]*nanotype.Block
	lastVotes  map[nanotype.Account]VoteRecord
	lastTally  map[nanotype.Hash]nanotype.Amount
	winner     nanotype.Hash

	startedAt   time.Time
	lastVoteAt  time.Time
	lastBlockAt time.Time
	lastReqAt   time.Time
	confirmedAt time.Time

	quorumDelta func() nanotype.Amount
	weightOf    func(nanotype.Account) nanotype.Amount
	votingOn    bool

	notifiedConfirmed bool
}

func newElection(id uint64, block *nanotype.Block, behavior nanotype.ElectionBehavior, quorumDelta func() nanotype.Amount, weightOf func(nanotype.Account) nanotype.Amount, now time.Time) *Election {
	e := &Election{
		id:            id,
		qualifiedRoot: block.QualifiedRoot(),
		behavior:      behavior,
		state:         nanotype.StatePassive,
		lastBlocks:    map[nanotype.Hash]*nanotype.Block{block.Hash(): block},
		lastVotes:     make(map[nanotype.Account]VoteRecord),
		lastTally:     make(map[nanotype.Hash]nanotype.Amount),
		winner:        block.Hash(),
		startedAt:     now,
		quorumDelta:   quorumDelta,
		weightOf:      weightOf,
		votingOn:      true,
	}
	return e
}

func (e *Election) ID() uint64                            { return e.id }
func (e *Election) QualifiedRoot() nanotype.QualifiedRoot  { return e.qualifiedRoot }

func (e *Election) State() nanotype.ElectionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Winner returns the current winning block, which may change over the
// election's lifetime as votes and candidates arrive.
func (e *Election) Winner() *nanotype.Block {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBlocks[e.winner]
}

func (e *Election) StatusLocked() Status {
	return Status{
		Winner:     e.winner,
		Tally:      e.lastTally[e.winner],
		FinalTally: e.finalTallyLocked(e.winner),
		VoteCount:  len(e.lastVotes),
		BlockCount: len(e.lastBlocks),
		Duration:   e.durationLocked(),
		Behavior:   e.behavior,
	}
}

func (e *Election) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.StatusLocked()
}

func (e *Election) durationLocked() time.Duration {
	end := e.confirmedAt
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(e.startedAt)
}

// Vote applies one representative's vote for hash on this root,
// reporting back a disposition so the caller (internal/voterouter)
// can forward it straight to the vote cache for any hash this call
// reports Indeterminate. It satisfies voterouter.Election. Source is
// accepted for future rate-limiting/weighting but is not otherwise
// interpreted yet; finality is derived from the timestamp sentinel.
func (e *Election) Vote(rep nanotype.Account, timestamp uint64, hash nanotype.Hash, source voterouter.VoteSource) votecache.Disposition {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.IsTerminal() {
		return votecache.DispositionAlreadyApplied
	}
	if _, known := e.lastBlocks[hash]; !known {
		// Hash isn't (or is no longer) among this election's
		// candidates; forward it to the cache.
		return votecache.DispositionIndeterminate
	}
	if prev, ok := e.lastVotes[rep]; ok && !(timestamp > prev.Timestamp) {
		return votecache.DispositionAlreadyApplied
	}
	e.lastVotes[rep] = VoteRecord{Hash: hash, Timestamp: timestamp, Time: time.Now()}
	e.lastVoteAt = time.Now()
	e.recomputeTallyLocked()
	e.tryConfirmLocked()
	return votecache.DispositionVote
}

// recomputeTallyLocked rebuilds last_tally by summing, for each
// candidate hash, the weight of every representative whose latest
// recorded vote names that hash, then picks the winner: greatest
// tally, ties broken by hash value.
func (e *Election) recomputeTallyLocked() {
	tally := make(map[nanotype.Hash]nanotype.Amount, len(e.lastBlocks))
	for hash := range e.lastBlocks {
		tally[hash] = nanotype.Amount{}
	}
	for rep, v := range e.lastVotes {
		if _, known := tally[v.Hash]; !known {
			continue
		}
		tally[v.Hash] = tally[v.Hash].Add(e.weightOf(rep))
	}
	e.lastTally = tally

	var best nanotype.Hash
	var bestFound bool
	for hash, t := range tally {
		if !bestFound {
			best, bestFound = hash, true
			continue
		}
		if cmp := t.Cmp(tally[best]); cmp > 0 || (cmp == 0 && hashLess(hash, best)) {
			best = hash
		}
	}
	if bestFound {
		e.winner = best
	}
}

func (e *Election) finalTallyLocked(hash nanotype.Hash) nanotype.Amount {
	var total nanotype.Amount
	for rep, v := range e.lastVotes {
		if v.Hash != hash || v.Timestamp != nanotype.FinalTimestamp {
			continue
		}
		total = total.Add(e.weightOf(rep))
	}
	return total
}

func hashLess(a, b nanotype.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// tryConfirmLocked transitions Passive or Active -> Confirmed once quorum is met,
// either via the normal tally or the final-vote-only fast path.
func (e *Election) tryConfirmLocked() bool {
	if e.state != nanotype.StateActive && e.state != nanotype.StatePassive {
		return false
	}
	delta := e.quorumDelta()
	if e.lastTally[e.winner].Cmp(delta) >= 0 || e.finalTallyLocked(e.winner).Cmp(delta) >= 0 {
		e.state = nanotype.StateConfirmed
		e.confirmedAt = time.Now()
		return true
	}
	return false
}

// Publish inserts a newly-seen candidate block for this root: dropped
// if already confirmed, routed to replaceByWeightLocked once at the
// candidate cap, otherwise added directly. Returns whether the block
// was accepted as a new candidate and whether the winner changed as a
// result (so the caller knows whether to re-flood).
func (e *Election) Publish(block *nanotype.Block, cacheTally func(nanotype.Hash) (nanotype.Amount, bool)) (added bool, winnerChanged bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nanotype.StateConfirmed || e.state.IsTerminal() {
		return false, false
	}
	hash := block.Hash()
	if _, exists := e.lastBlocks[hash]; exists {
		return false, false
	}

	prevWinner := e.winner
	if len(e.lastBlocks) >= maxCandidates {
		if !e.replaceByWeightLocked(hash, cacheTally) {
			return false, false
		}
	}
	e.lastBlocks[hash] = block
	e.lastBlockAt = time.Now()
	e.recomputeTallyLocked()
	added = true
	winnerChanged = e.winner != prevWinner
	return added, winnerChanged
}

// replaceByWeightLocked implements the eviction rule applied when a
// new candidate arrives at the candidate cap: consult the vote
// cache's inactive tally for newHash; if it has a tally and fewer
// than maxCandidates tallied candidates exist yet, evict an untallied
// non-winner; else if it beats the lowest-tally non-winner candidate,
// evict that one. Never evicts the current winner.
func (e *Election) replaceByWeightLocked(newHash nanotype.Hash, cacheTally func(nanotype.Hash) (nanotype.Amount, bool)) bool {
	newTally, hasTally := nanotype.Amount{}, false
	if cacheTally != nil {
		newTally, hasTally = cacheTally(newHash)
	}

	type candidate struct {
		hash  nanotype.Hash
		tally nanotype.Amount
		has   bool
	}
	cands := make([]candidate, 0, len(e.lastBlocks))
	tallied := 0
	for hash := range e.lastBlocks {
		t, ok := e.lastTally[hash]
		if ok && !t.IsZero() {
			tallied++
		}
		cands = append(cands, candidate{hash: hash, tally: t, has: ok && !t.IsZero()})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].tally.Cmp(cands[j].tally) > 0 })

	if hasTally && !newTally.IsZero() && tallied < maxCandidates {
		for _, c := range cands {
			if c.hash == e.winner || c.has {
				continue
			}
			delete(e.lastBlocks, c.hash)
			delete(e.lastTally, c.hash)
			return true
		}
		return false
	}

	// Fall back to evicting the lowest-tally non-winner candidate if
	// the newcomer's cached tally beats it.
	for i := len(cands) - 1; i >= 0; i-- {
		c := cands[i]
		if c.hash == e.winner {
			continue
		}
		if hasTally && newTally.Cmp(c.tally) > 0 {
			delete(e.lastBlocks, c.hash)
			delete(e.lastTally, c.hash)
			return true
		}
		break
	}
	return false
}

// confirmReqInterval computes the confirm-req cadence:
// base_latency*5 for Priority/Manual/Hinted, base_latency*2 for
// Optimistic.
func confirmReqInterval(behavior nanotype.ElectionBehavior, baseLatency time.Duration) time.Duration {
	if behavior == nanotype.BehaviorOptimistic {
		return 2 * baseLatency
	}
	return 5 * baseLatency
}

// tickResult tells the AEC loop what, if anything, to do for this
// election this pass, computed and returned under the election's own
// lock so the AEC loop never has to take it itself for read-only
// cadence checks.
type tickResult struct {
	state           nanotype.ElectionState
	broadcastVote   bool
	voteIsFinal     bool
	broadcastBlock  bool
	sendConfirmReq  bool
	winner          *nanotype.Block
	expiredJustNow  bool
}

// tick evaluates the Passive->Active promotion and, while Active, the
// per-loop broadcast/request actions plus expiration, all under the
// election's own mutex.
func (e *Election) tick(now time.Time, cfg Config) tickResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nanotype.StatePassive && now.Sub(e.startedAt) >= 5*cfg.BaseLatency {
		e.state = nanotype.StateActive
	}
	if e.state == nanotype.StateConfirmed {
		e.state = nanotype.StateExpiredConfirmed
		return tickResult{state: e.state, expiredJustNow: true}
	}
	if e.state != nanotype.StateActive {
		return tickResult{state: e.state}
	}

	ttl := e.timeToLiveLocked(cfg)
	if now.Sub(e.startedAt) >= ttl {
		e.state = nanotype.StateExpiredUnconfirmed
		return tickResult{state: e.state, expiredJustNow: true}
	}

	res := tickResult{state: e.state, winner: e.lastBlocks[e.winner]}
	if e.votingOn && now.Sub(e.lastVoteAt) >= cfg.VoteBroadcastInterval {
		res.broadcastVote = true
		res.voteIsFinal = e.tryConfirmLocked() || e.state == nanotype.StateConfirmed
		e.lastVoteAt = now
	}
	if now.Sub(e.lastBlockAt) >= cfg.BlockBroadcastInterval {
		res.broadcastBlock = true
		e.lastBlockAt = now
	}
	if now.Sub(e.lastReqAt) >= confirmReqInterval(e.behavior, cfg.BaseLatency) {
		res.sendConfirmReq = true
		e.lastReqAt = now
	}
	return res
}

func (e *Election) timeToLiveLocked(cfg Config) time.Duration {
	switch e.behavior {
	case nanotype.BehaviorOptimistic:
		return cfg.OptimisticTimeToLive
	case nanotype.BehaviorHinted:
		return cfg.HintedTimeToLive
	default:
		return cfg.TimeToLive
	}
}

// confirmedUnnotified reports, at most once per election, the instant
// it transitions to Confirmed — the winning hash must be handed to
// the ConfirmingSet queue at that transition, not at the later
// Confirmed->ExpiredConfirmed cleanup step.
func (e *Election) confirmedUnnotified() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nanotype.StateConfirmed && !e.notifiedConfirmed {
		e.notifiedConfirmed = true
		return true
	}
	return false
}

// Cancel force-transitions the election to Cancelled from any
// non-terminal state.
func (e *Election) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.IsTerminal() {
		e.state = nanotype.StateCancelled
	}
}

// CandidateHashes returns every hash currently contesting this root,
// for the AEC to disconnect from the vote router on erase.
func (e *Election) CandidateHashes() []nanotype.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]nanotype.Hash, 0, len(e.lastBlocks))
	for h := range e.lastBlocks {
		out = append(out, h)
	}
	return out
}

var _ voterouter.Election = (*Election)(nil)
