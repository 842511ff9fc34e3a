// Package bootstrap implements the Ascending Bootstrap subsystem:
// three concurrent fetcher schedulers (priority, database, dependency)
// plus a timeout thread, all streaming fetched blocks into the block
// processor with source=Bootstrap. The shape borrows from
// go-ethereum's `eth/downloader` + `eth/fetcher` pair (per-peer
// request/response tracking, peer scoring, flow control), adapted to
// an account-priority pull model instead of header/body chain sync;
// the scheduling loops are built from first principles as worker
// goroutines that back off with a growing sleep (see backoff) when idle.
package bootstrap

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gonano/nanod/internal/blockprocessor"
	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanostats"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/netinfo"
)

// bootstrapChannel is the fair-queue origin every bootstrap-sourced
// block is enqueued under — bootstrap traffic shares one priority-8
// origin, distinct from any live peer channel number.
const bootstrapChannel uint64 = ^uint64(0)

// Config holds the Ascending Bootstrap's tunables.
type Config struct {
	Enable                  bool          `toml:"enable"`
	EnableDatabaseScan      bool          `toml:"enable_database_scan"`
	EnableDependencyWalker  bool          `toml:"enable_dependency_walker"`
	ChannelLimit            int           `toml:"channel_limit"`
	DatabaseRateLimit       int           `toml:"database_rate_limit"` // accounts/sec the database scheduler may prioritize
	MaxPullCount            uint32        `toml:"max_pull_count"`
	RequestTimeout          time.Duration `toml:"request_timeout"`
	ThrottleCoefficient     int           `toml:"throttle_coefficient"`
	ThrottleWait            time.Duration `toml:"throttle_wait"`
	BlockProcessorThreshold int           `toml:"block_processor_threshold"`
	MaxRequests             int           `toml:"max_requests"`
}

func DefaultConfig() Config {
	return Config{
		Enable:                  true,
		EnableDatabaseScan:      true,
		EnableDependencyWalker:  true,
		ChannelLimit:            16,
		DatabaseRateLimit:       256,
		MaxPullCount:            1024,
		RequestTimeout:          3 * time.Second,
		ThrottleCoefficient:     8192,
		ThrottleWait:            100 * time.Millisecond,
		BlockProcessorThreshold: 1000,
		MaxRequests:             1024,
	}
}

// RequestSender is the wire-transport seam this package excludes from
// scope: issuing an AscPullReq is fire-and-forget from this package's
// point of view — the matching AscPullAck arrives later via
// HandleBlocksReply/HandleAccountInfoReply, replies matched by id
// rather than a blocking request/response call.
type RequestSender interface {
	SendBlocksRequest(ch *netinfo.Channel, tag *Tag) error
	SendAccountInfoRequest(ch *netinfo.Channel, tag *Tag) error
}

// Deps bundles Bootstrap's collaborators.
type Deps struct {
	Store     *ledger.Store
	Processor *blockprocessor.Processor
	Registry  *netinfo.Registry
	Sender    RequestSender
	Stats     nanostats.Registry
}

// Bootstrap is the Ascending Bootstrap component.
type Bootstrap struct {
	cfg       Config
	store     *ledger.Store
	processor *blockprocessor.Processor
	registry  *netinfo.Registry
	sender    RequestSender

	accounts *AccountSets
	scores   *PeerScores
	tags     *OrderedTags
	dbLimiter *rate.Limiter

	mu          sync.Mutex
	inFlight    int
	pending     int // blocks handed to the processor, not yet observed processed
	depInFlight map[nanotype.Hash]bool
	dbCursor    nanotype.Account

	tagDuration nanostats.Histogram

	processedCh chan blockprocessor.Event

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, deps Deps) *Bootstrap {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bootstrap{
		cfg:         cfg,
		store:       deps.Store,
		processor:   deps.Processor,
		registry:    deps.Registry,
		sender:      deps.Sender,
		accounts:    NewAccountSets(),
		scores:      NewPeerScores(cfg.ChannelLimit),
		tags:        NewOrderedTags(),
		dbLimiter:   rate.NewLimiter(rate.Limit(max1(cfg.DatabaseRateLimit)), max1(cfg.DatabaseRateLimit)),
		depInFlight: make(map[nanotype.Hash]bool),
		processedCh: make(chan blockprocessor.Event, 256),
		ctx:         ctx,
		cancel:      cancel,
		stop:        make(chan struct{}),
	}
	if deps.Stats != nil {
		b.tagDuration = nanostats.NewRegisteredHistogram("bootstrap/tag_duration_ms", deps.Stats, nanostats.DefaultDurationBoundsMillis)
		nanostats.NewRegisteredFunctionalGauge("bootstrap/priority_accounts", deps.Stats, func() int64 { return int64(b.accounts.Len()) })
		nanostats.NewRegisteredFunctionalGauge("bootstrap/blocked_accounts", deps.Stats, func() int64 { return int64(b.accounts.BlockedLen()) })
		nanostats.NewRegisteredFunctionalGauge("bootstrap/in_flight_requests", deps.Stats, func() int64 {
			b.mu.Lock()
			defer b.mu.Unlock()
			return int64(b.inFlight)
		})
	}
	if deps.Processor != nil {
		deps.Processor.OnBlockProcessed.Subscribe(b.processedCh)
	}
	return b
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Start launches the three schedulers plus the 1Hz timeout thread.
func (b *Bootstrap) Start() {
	if !b.cfg.Enable {
		return
	}
	b.wg.Add(5)
	go b.priorityScheduler()
	go b.databaseScheduler()
	go b.dependencyScheduler()
	go b.timeoutLoop()
	go b.drainProcessed()
}

func (b *Bootstrap) Stop() {
	close(b.stop)
	b.cancel()
	b.wg.Wait()
}

// drainProcessed consumes the block processor's completion feed,
// decrementing the Bootstrap-pending counter block_processor_threshold
// gates against.
func (b *Bootstrap) drainProcessed() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case ev := <-b.processedCh:
			if ev.Source == nanotype.SourceBootstrap {
				b.mu.Lock()
				if b.pending > 0 {
					b.pending--
				}
				b.mu.Unlock()
			}
		}
	}
}

// Seed primes the priority scheduler with an account worth pulling
// (e.g. a representative account discovered via frontier exchange) —
// the ascending-bootstrap entry point exposed to callers outside this
// package.
func (b *Bootstrap) Seed(account nanotype.Account) { b.accounts.PrioritySet(account) }

func randomTagID() uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

func clampCount(priority float64, max uint32) uint32 {
	n := uint32(priority)
	if n < 2 {
		n = 2
	}
	if n > max {
		n = max
	}
	return n
}

func (b *Bootstrap) atRequestCap() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight >= b.cfg.MaxRequests
}

func (b *Bootstrap) processorSaturated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.BlockProcessorThreshold > 0 && b.pending >= b.cfg.BlockProcessorThreshold
}

func (b *Bootstrap) incInFlight() {
	b.mu.Lock()
	b.inFlight++
	b.mu.Unlock()
}

func (b *Bootstrap) decInFlight() {
	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

// backoff waits with exponential growth up to throttle_wait whenever
// a scheduler's input is empty or the downstream is saturated — a
// buffered sleep-with-growing-duration rather than a condition
// variable, since Go's sync.Cond doesn't compose with a stop channel
// as cleanly as a select.
func (b *Bootstrap) backoff(cur *time.Duration) bool {
	select {
	case <-b.stop:
		return true
	case <-time.After(*cur):
	}
	*cur *= 2
	if *cur > b.cfg.ThrottleWait {
		*cur = b.cfg.ThrottleWait
	}
	return false
}

func (b *Bootstrap) stopped() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

// priorityScheduler chooses the next account from the priority set and
// requests clamp(priority, 2, max_blocks) blocks starting from that
// account's frontier or, if unknown, by account.
func (b *Bootstrap) priorityScheduler() {
	defer b.wg.Done()
	backoff := time.Millisecond
	for {
		if b.stopped() {
			return
		}
		if b.atRequestCap() || b.processorSaturated() {
			if b.backoff(&backoff) {
				return
			}
			continue
		}
		account, priority, ok := b.accounts.NextPriority()
		if !ok {
			if b.backoff(&backoff) {
				return
			}
			continue
		}
		backoff = time.Millisecond
		if !b.issueBlocksRequest(account, priority) {
			b.accounts.Release(account)
		}
	}
}

func (b *Bootstrap) issueBlocksRequest(account nanotype.Account, priority float64) bool {
	ch, ok := b.scores.Channel(b.registry.All())
	if !ok {
		return false
	}
	start, known := b.frontierOf(account)
	tag := &Tag{
		ID:             randomTagID(),
		Kind:           TagKindBlocks,
		Account:        account,
		Start:          start,
		StartIsAccount: !known,
		Count:          clampCount(priority, b.cfg.MaxPullCount),
		Deadline:       time.Now().Add(b.cfg.RequestTimeout),
		ChannelID:      string(ch.ID),
	}
	if !known {
		tag.Start = account.AsHash()
	}
	b.tags.Insert(tag)
	b.incInFlight()
	if err := b.sender.SendBlocksRequest(ch, tag); err != nil {
		b.tags.Match(tag.ID)
		b.decInFlight()
		b.scores.Failed(ch.ID)
		return false
	}
	return true
}

func (b *Bootstrap) frontierOf(account nanotype.Account) (nanotype.Hash, bool) {
	rt := b.store.BeginRead()
	defer rt.Discard()
	info, ok := b.store.GetAccountInfo(rt, account)
	if !ok {
		return nanotype.Hash{}, false
	}
	return info.Head, true
}

// HandleBlocksReply matches id against OrderedTags, verifies the
// returned blocks form a chain from the requested start, and streams
// them into the block processor with source=Bootstrap. It is the
// callback that resets the account's timestamp in AccountSets so
// further requests for that account can proceed — applied to the
// whole reply rather than only its last element, since this package's
// Release already re-admits the account for its very next scheduling
// turn.
func (b *Bootstrap) HandleBlocksReply(id uint64, blocks []*nanotype.Block) {
	tag, ok := b.tags.Match(id)
	b.decInFlight()
	if !ok {
		return // already purged by the timeout thread
	}
	if b.tagDuration != nil {
		b.tagDuration.Update(time.Since(tag.issuedAt).Milliseconds())
	}
	peer := netinfo.PeerID(tag.ChannelID)
	if !verifyChain(tag, blocks) {
		b.scores.Failed(peer)
		b.accounts.PriorityDown(tag.Account)
		b.accounts.Release(tag.Account)
		return
	}
	b.scores.ReceivedMessage(peer)
	if len(blocks) > 0 {
		b.accounts.PriorityUp(tag.Account)
	}
	b.mu.Lock()
	b.pending += len(blocks)
	b.mu.Unlock()
	for _, blk := range blocks {
		b.processor.Add(blk, nanotype.SourceBootstrap, bootstrapChannel)
	}
	b.accounts.Release(tag.Account)
}

// verifyChain checks a bootstrap reply forms a valid chain: the first
// block must extend the requested start (for a by-account request the
// first block is not checked at all), and every subsequent block's
// previous must equal its predecessor's hash.
func verifyChain(tag *Tag, blocks []*nanotype.Block) bool {
	if len(blocks) == 0 {
		return false
	}
	if !tag.StartIsAccount && blocks[0].Previous != tag.Start {
		return false
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Previous != blocks[i-1].Hash() {
			return false
		}
	}
	return true
}

// databaseScheduler walks the ledger's account table for accounts not
// in the priority set, rate-limited via a token bucket.
// golang.org/x/time/rate backs the token bucket here, exercised for a
// rate-limited table scan rather than RPC request shaping.
func (b *Bootstrap) databaseScheduler() {
	defer b.wg.Done()
	if !b.cfg.EnableDatabaseScan {
		return
	}
	backoff := time.Millisecond
	for {
		if b.stopped() {
			return
		}
		if err := b.dbLimiter.Wait(b.ctx); err != nil {
			return
		}
		account, ok := b.nextDatabaseAccount()
		if !ok {
			if b.backoff(&backoff) {
				return
			}
			continue
		}
		backoff = time.Millisecond
		b.accounts.PrioritySet(account)
	}
}

// nextDatabaseAccount scans the ledger's account table in key order
// starting just past dbCursor, wrapping around once it reaches the
// end, returning the first account not already tracked by AccountSets.
func (b *Bootstrap) nextDatabaseAccount() (nanotype.Account, bool) {
	rt := b.store.BeginRead()
	defer rt.Discard()

	var found nanotype.Account
	var foundAny bool
	cursor := b.dbCursor
	b.store.IterateAccounts(rt, func(acc nanotype.Account, _ nanotype.AccountInfo) bool {
		if bytes.Compare(acc[:], cursor[:]) <= 0 {
			return true
		}
		if b.accounts.Contains(acc) {
			return true
		}
		found, foundAny = acc, true
		return false
	})
	if !foundAny {
		b.dbCursor = nanotype.Account{} // wrap to the beginning next pass
		return nanotype.Account{}, false
	}
	b.dbCursor = found
	return found, true
}

// dependencyScheduler pops a blocked hash from AccountSets and issues
// an AccountInfo-by-hash request to resolve which account owns the
// missing source, then re-prioritizes that account.
func (b *Bootstrap) dependencyScheduler() {
	defer b.wg.Done()
	if !b.cfg.EnableDependencyWalker {
		return
	}
	backoff := time.Millisecond
	for {
		if b.stopped() {
			return
		}
		hash, ok := b.accounts.NextBlockedHash()
		if !ok {
			if b.backoff(&backoff) {
				return
			}
			continue
		}
		if !b.issueDependencyRequest(hash) {
			if b.backoff(&backoff) {
				return
			}
			continue
		}
		backoff = time.Millisecond
	}
}

func (b *Bootstrap) issueDependencyRequest(hash nanotype.Hash) bool {
	b.mu.Lock()
	if b.depInFlight[hash] {
		b.mu.Unlock()
		return false
	}
	b.depInFlight[hash] = true
	b.mu.Unlock()

	ch, ok := b.scores.Channel(b.registry.All())
	if !ok {
		b.mu.Lock()
		delete(b.depInFlight, hash)
		b.mu.Unlock()
		return false
	}
	tag := &Tag{
		ID:        randomTagID(),
		Kind:      TagKindAccountInfo,
		Start:     hash,
		Deadline:  time.Now().Add(b.cfg.RequestTimeout),
		ChannelID: string(ch.ID),
	}
	b.tags.Insert(tag)
	if err := b.sender.SendAccountInfoRequest(ch, tag); err != nil {
		b.tags.Match(tag.ID)
		b.mu.Lock()
		delete(b.depInFlight, hash)
		b.mu.Unlock()
		b.scores.Failed(ch.ID)
		return false
	}
	return true
}

// HandleAccountInfoReply resolves a dependency lookup: owner is the
// account that produced the block hashing to tag.Start, found
// reporting whether the peer had it at all.
func (b *Bootstrap) HandleAccountInfoReply(id uint64, owner nanotype.Account, found bool) {
	tag, ok := b.tags.Match(id)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.depInFlight, tag.Start)
	b.mu.Unlock()

	peer := netinfo.PeerID(tag.ChannelID)
	if !found {
		b.scores.Failed(peer)
		return
	}
	b.scores.ReceivedMessage(peer)
	b.accounts.Unblock(tag.Start)
	b.accounts.PrioritySet(owner)
}

// timeoutLoop purges expired tags at 1Hz.
func (b *Bootstrap) timeoutLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case now := <-ticker.C:
			for _, tag := range b.tags.PurgeExpired(now) {
				b.decInFlight()
				b.scores.Failed(netinfo.PeerID(tag.ChannelID))
				switch tag.Kind {
				case TagKindBlocks:
					b.accounts.PriorityDown(tag.Account)
					b.accounts.Release(tag.Account)
				case TagKindAccountInfo:
					b.mu.Lock()
					delete(b.depInFlight, tag.Start)
					b.mu.Unlock()
				}
			}
			b.scores.Timeout(time.Minute, now)
		}
	}
}

// Len reports accounts currently tracked in the priority set.
func (b *Bootstrap) Len() int { return b.accounts.Len() }
