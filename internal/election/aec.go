package election

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/gonano/nanod/internal/nanoevent"
	"github.com/gonano/nanod/internal/nanostats"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/votecache"
	"github.com/gonano/nanod/internal/voterouter"
)

// Config holds Active Elections' tunables: slot limits per behavior,
// confirmation caches, and the base-latency/TTL knobs that derive its
// broadcast and expiry cadence.
type Config struct {
	Size                      int `toml:"size"`
	HintedLimitPercentage     int `toml:"hinted_limit_percentage"`
	OptimisticLimitPercentage int `toml:"optimistic_limit_percentage"`
	ConfirmationHistorySize   int `toml:"confirmation_history_size"`
	ConfirmationCacheSize     int `toml:"confirmation_cache"`
	MaxElectionWinners        int `toml:"max_election_winners"`

	BaseLatency            time.Duration `toml:"base_latency"`
	VoteBroadcastInterval  time.Duration `toml:"vote_broadcast_interval"`
	BlockBroadcastInterval time.Duration `toml:"block_broadcast_interval"`
	TimeToLive             time.Duration `toml:"time_to_live"`
	HintedTimeToLive       time.Duration `toml:"hinted_time_to_live"`
	OptimisticTimeToLive   time.Duration `toml:"optimistic_time_to_live"`
	LoopInterval           time.Duration `toml:"loop_interval"`
}

// DefaultConfig returns the production (non-dev-network) defaults,
// using a 1s base_latency.
func DefaultConfig() Config {
	return Config{
		Size:                      5000,
		HintedLimitPercentage:     20,
		OptimisticLimitPercentage: 10,
		ConfirmationHistorySize:   2048,
		ConfirmationCacheSize:     65536,
		MaxElectionWinners:        16384,
		BaseLatency:               time.Second,
		VoteBroadcastInterval:     3 * time.Second,
		BlockBroadcastInterval:    15 * time.Second,
		TimeToLive:                5 * time.Minute,
		HintedTimeToLive:          30 * time.Second,
		OptimisticTimeToLive:      30 * time.Second,
		LoopInterval:              500 * time.Millisecond,
	}
}

// Solicitor is the confirmation-request/broadcast sink: wire encoding
// and transport live behind this seam, out of this package's concern.
type Solicitor interface {
	BroadcastVote(root nanotype.QualifiedRoot, vote nanotype.Vote)
	BroadcastBlock(root nanotype.QualifiedRoot, block *nanotype.Block)
	SendConfirmReq(root nanotype.QualifiedRoot, winner *nanotype.Block)
}

// VoteSigner produces a signed vote for the local node's represented
// account; wallet key management lives elsewhere, this is only the
// narrow seam the broadcast step needs.
type VoteSigner interface {
	Sign(hashes []nanotype.Hash, final bool) (nanotype.Vote, bool)
}

// ConfirmedEvent is published when an election reaches Confirmed; its
// winning hash is handed to the ConfirmingSet queue from here.
type ConfirmedEvent struct {
	Election *Election
	Winner   *nanotype.SavedBlock
}

// AEC is the bounded set of per-root elections.
type AEC struct {
	cfg Config

	router     *voterouter.Router
	cache      *votecache.Cache
	quorum     func() nanotype.Amount
	weightOf   func(nanotype.Account) nanotype.Amount
	solicitor  Solicitor
	signer     VoteSigner
	getSaved   func(nanotype.Hash) (*nanotype.SavedBlock, bool)
	stats      nanostats.Registry

	mu             sync.Mutex
	byRoot         map[nanotype.QualifiedRoot]*Election
	behaviorCounts map[nanotype.ElectionBehavior]int
	nextID         uint64

	recentlyConfirmed *lru.Cache

	OnStarted      *nanoevent.Feed[*Election]
	OnConfirmed    *nanoevent.Feed[ConfirmedEvent]
	OnBlockDropped *nanoevent.Feed[nanotype.Hash]

	durationHistogram nanostats.Histogram

	stop chan struct{}
	done chan struct{}
}

// Deps bundles AEC's collaborators so New's signature stays readable.
type Deps struct {
	Router    *voterouter.Router
	Cache     *votecache.Cache
	QuorumFn  func() nanotype.Amount
	WeightFn  func(nanotype.Account) nanotype.Amount
	Solicitor Solicitor
	Signer    VoteSigner
	GetSaved  func(nanotype.Hash) (*nanotype.SavedBlock, bool)
	Stats     nanostats.Registry
}

func New(cfg Config, deps Deps) *AEC {
	confirmedCache, _ := lru.New(max(1, cfg.ConfirmationCacheSize))
	a := &AEC{
		cfg:               cfg,
		router:            deps.Router,
		cache:             deps.Cache,
		quorum:            deps.QuorumFn,
		weightOf:          deps.WeightFn,
		solicitor:         deps.Solicitor,
		signer:            deps.Signer,
		getSaved:          deps.GetSaved,
		stats:             deps.Stats,
		byRoot:            make(map[nanotype.QualifiedRoot]*Election),
		behaviorCounts:    make(map[nanotype.ElectionBehavior]int),
		recentlyConfirmed: confirmedCache,
		OnStarted:         &nanoevent.Feed[*Election]{},
		OnConfirmed:       &nanoevent.Feed[ConfirmedEvent]{},
		OnBlockDropped:    &nanoevent.Feed[nanotype.Hash]{},
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
	if deps.Stats != nil {
		a.durationHistogram = nanostats.NewRegisteredHistogram("active_elections/duration_ms", deps.Stats, nanostats.DefaultDurationBoundsMillis)
		nanostats.NewRegisteredFunctionalGauge("active_elections/count", deps.Stats, func() int64 {
			a.mu.Lock()
			defer a.mu.Unlock()
			return int64(len(a.byRoot))
		})
	}
	return a
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (a *AEC) Start() { go a.loop() }

func (a *AEC) Stop() {
	close(a.stop)
	<-a.done
}

func (a *AEC) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byRoot)
}

// capFor returns the slot ceiling for behavior: hinted and optimistic
// each get a configured percentage of cfg.Size, Priority gets the
// remainder, and Manual is uncapped.
func (a *AEC) capFor(behavior nanotype.ElectionBehavior) (limit int, uncapped bool) {
	switch behavior {
	case nanotype.BehaviorManual:
		return 0, true
	case nanotype.BehaviorHinted:
		return a.cfg.Size * a.cfg.HintedLimitPercentage / 100, false
	case nanotype.BehaviorOptimistic:
		return a.cfg.Size * a.cfg.OptimisticLimitPercentage / 100, false
	default: // Priority consumes the remainder of cfg.Size
		return a.cfg.Size - (a.cfg.Size*a.cfg.HintedLimitPercentage)/100 - (a.cfg.Size*a.cfg.OptimisticLimitPercentage)/100, false
	}
}

// Insert creates a fresh election for block's qualified root. If an
// election already exists there, returns it with inserted=false; if
// the root was just confirmed (RecentlyConfirmed), refuses outright.
func (a *AEC) Insert(block *nanotype.Block, behavior nanotype.ElectionBehavior) (inserted bool, el *Election) {
	root := block.QualifiedRoot()

	a.mu.Lock()
	if existing, ok := a.byRoot[root]; ok {
		a.mu.Unlock()
		return false, existing
	}
	if a.recentlyConfirmed != nil && a.recentlyConfirmed.Contains(root) {
		a.mu.Unlock()
		return false, nil
	}
	limit, uncapped := a.capFor(behavior)
	if !uncapped && a.behaviorCounts[behavior] >= limit {
		a.mu.Unlock()
		return false, nil
	}

	a.nextID++
	id := a.nextID
	el = newElection(id, block, behavior, a.quorum, a.weightOf, time.Now())
	a.byRoot[root] = el
	a.behaviorCounts[behavior]++
	a.mu.Unlock()

	a.router.Connect(block.Hash(), el)
	a.OnStarted.Send(el)
	a.replayCachedVotes(el, block.Hash())
	return true, el
}

// replayCachedVotes copies the vote cache's aggregate tally for this
// hash into the new election's tally, then clears that cache entry.
// Individual cached votes are not applied to the election, so the
// copied tally is replaced by the election's own tally on its next
// recount.
func (a *AEC) replayCachedVotes(el *Election, hash nanotype.Hash) {
	if a.cache == nil {
		return
	}
	if top, ok := a.cache.Find(hash); ok && !top.Tally.IsZero() {
		el.mu.Lock()
		el.lastTally[hash] = top.Tally
		if top.Tally.Cmp(el.lastTally[el.winner]) > 0 {
			el.winner = hash
		}
		el.mu.Unlock()
	}
	a.cache.Erase(hash)
}

// Publish routes a freshly-seen alternate block to its election — the
// AEC-facing half; the election's own Publish method does the
// per-candidate bookkeeping. Re-floods the winning block on a winner
// change.
func (a *AEC) Publish(block *nanotype.Block, el *Election) {
	cacheTally := func(h nanotype.Hash) (nanotype.Amount, bool) {
		if a.cache == nil {
			return nanotype.Amount{}, false
		}
		top, ok := a.cache.Find(h)
		return top.Tally, ok
	}
	added, winnerChanged := el.Publish(block, cacheTally)
	if added {
		a.router.Connect(block.Hash(), el)
	}
	if winnerChanged && a.solicitor != nil {
		a.solicitor.BroadcastBlock(el.QualifiedRoot(), el.Winner())
	}
}

// Cancel force-stops an election (e.g. hinted out by rollback of its
// root), disconnecting it from the router.
func (a *AEC) Cancel(root nanotype.QualifiedRoot) {
	a.mu.Lock()
	el, ok := a.byRoot[root]
	a.mu.Unlock()
	if !ok {
		return
	}
	el.Cancel()
	a.erase(root, el)
}

// erase removes an election from the AEC: disconnects its hashes from
// the router, decrements the behavior counter, samples duration, and —
// if it was not confirmed, or if the final hash wasn't the winner —
// fires the block-dropped observer.
func (a *AEC) erase(root nanotype.QualifiedRoot, el *Election) {
	a.mu.Lock()
	if _, ok := a.byRoot[root]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.byRoot, root)
	a.behaviorCounts[el.behavior]--
	a.mu.Unlock()

	a.router.DisconnectElection(el)

	st := el.Status()
	if a.durationHistogram != nil {
		a.durationHistogram.Update(st.Duration.Milliseconds())
	}

	confirmed := el.State() == nanotype.StateExpiredConfirmed
	if confirmed {
		if a.recentlyConfirmed != nil {
			a.recentlyConfirmed.Add(root, struct{}{})
		}
	}
	for _, h := range el.CandidateHashes() {
		if !confirmed || h != st.Winner {
			a.OnBlockDropped.Send(h)
		}
	}
}

// TryConfirm is invoked by the cementation pipeline for every
// newly-cemented block: if root has an open election whose winner is
// exactly hash, force it to Confirmed without waiting for the next
// loop tick.
func (a *AEC) TryConfirm(root nanotype.QualifiedRoot, hash nanotype.Hash) {
	a.mu.Lock()
	el, ok := a.byRoot[root]
	a.mu.Unlock()
	if !ok {
		return
	}
	el.mu.Lock()
	if el.winner == hash && !el.state.IsTerminal() {
		el.state = nanotype.StateConfirmed
		if el.confirmedAt.IsZero() {
			el.confirmedAt = time.Now()
		}
	}
	el.mu.Unlock()
}

// Election looks up the open election for root, if any.
func (a *AEC) Election(root nanotype.QualifiedRoot) (*Election, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	el, ok := a.byRoot[root]
	return el, ok
}

func (a *AEC) loop() {
	defer close(a.done)
	ticker := time.NewTicker(a.cfg.LoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case now := <-ticker.C:
			a.tickAll(now)
		}
	}
}

func (a *AEC) tickAll(now time.Time) {
	a.mu.Lock()
	roots := make([]nanotype.QualifiedRoot, 0, len(a.byRoot))
	elections := make([]*Election, 0, len(a.byRoot))
	for root, el := range a.byRoot {
		roots = append(roots, root)
		elections = append(elections, el)
	}
	a.mu.Unlock()

	for i, el := range elections {
		if el.confirmedUnnotified() {
			if a.getSaved != nil {
				if saved, ok := a.getSaved(el.Status().Winner); ok {
					a.OnConfirmed.Send(ConfirmedEvent{Election: el, Winner: saved})
				}
			}
		}
		res := el.tick(now, a.cfg)
		if res.expiredJustNow {
			a.erase(roots[i], el)
			continue
		}
		if res.state != nanotype.StateActive {
			continue
		}
		if res.broadcastVote && a.solicitor != nil && a.signer != nil {
			if vote, ok := a.signer.Sign([]nanotype.Hash{el.Status().Winner}, res.voteIsFinal); ok {
				a.solicitor.BroadcastVote(roots[i], vote)
			}
		}
		if res.broadcastBlock && a.solicitor != nil && res.winner != nil {
			a.solicitor.BroadcastBlock(roots[i], res.winner)
		}
		if res.sendConfirmReq && a.solicitor != nil && res.winner != nil {
			a.solicitor.SendConfirmReq(roots[i], res.winner)
		}
	}
}
