// Package blockprocessor is the single-writer, source-prioritized
// queue that serializes all ledger insertion: one worker thread
// drains a fair queue in batches, opens a write transaction per
// block, and dispatches observers once the transaction has closed and
// outside the processor's own mutex.
package blockprocessor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gonano/nanod/internal/fairqueue"
	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanoevent"
	"github.com/gonano/nanod/internal/nanostats"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/unchecked"
)

// ErrDropped is returned by AddBlocking when the processor stops, or
// the caller's context is canceled, before a result was published.
var ErrDropped = errors.New("blockprocessor: dropped")

const (
	loopbackOrigin uint64 = 0 // Forced blocks bypass peer channels entirely

	defaultBatchCap  = 256
	defaultBatchWait = 50 * time.Millisecond
)

// priorityForSource maps a block's source to its fair-queue priority:
// live network traffic is 1, bootstrap/unchecked resubmission is 8,
// and local RPC submissions are preferred at 16.
func priorityForSource(source nanotype.BlockSource) int {
	switch source {
	case nanotype.SourceLive, nanotype.SourceLiveOriginator:
		return 1
	case nanotype.SourceBootstrap, nanotype.SourceBootstrapLegacy, nanotype.SourceUnchecked:
		return 8
	case nanotype.SourceLocal, nanotype.SourceForced:
		return 16
	default:
		return 1
	}
}

// WorkValidator checks a candidate block's proof-of-work against the
// difficulty threshold for its epoch. The PoW scheme itself is outside
// this package's concern; Add() takes the checker as an injected seam
// so the fair-queue admission rule it implements can still be
// exercised without embedding a concrete difficulty algorithm.
type WorkValidator interface {
	Validate(block *nanotype.Block) bool
}

type alwaysValid struct{}

func (alwaysValid) Validate(*nanotype.Block) bool { return true }

// Context wraps one pending block and is uniquely owned by the queue
// until dequeued, then shared with the observers invoked after
// processing.
type Context struct {
	Block   *nanotype.Block
	Source  nanotype.BlockSource
	Channel uint64

	blocking bool
	result   chan Result
}

// Result is what add_blocking ultimately resolves to.
type Result struct {
	Saved  *nanotype.SavedBlock
	Status nanotype.BlockStatus
}

// Event is published per processed block, after the write transaction
// has committed and outside the processor mutex.
type Event struct {
	Block  *nanotype.Block
	Saved  *nanotype.SavedBlock
	Status nanotype.BlockStatus
	Source nanotype.BlockSource
}

// Processor is the Block Processor component.
type Processor struct {
	ledger    *ledger.Store
	unchecked *unchecked.Map
	work      WorkValidator

	queue *fairqueue.Queue[*Context, nanotype.BlockSource, uint64]

	OnBlockProcessed *nanoevent.Feed[Event]
	OnBatchProcessed *nanoevent.Feed[[]Event]
	OnForked         *nanoevent.Feed[*nanotype.Block]
	OnRolledBack     *nanoevent.Feed[[]*nanotype.SavedBlock]

	stats nanostats.Registry

	mu          sync.Mutex
	seenOrigins map[uint64]bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	batchCap  int
	batchWait time.Duration
}

// New builds a Processor. stats may be nil to skip metrics
// registration; work may be nil to accept every block's work nonce
// (tests / Forced bypass).
func New(store *ledger.Store, unc *unchecked.Map, stats nanostats.Registry, work WorkValidator) *Processor {
	if work == nil {
		work = alwaysValid{}
	}
	p := &Processor{
		ledger:           store,
		unchecked:        unc,
		work:             work,
		queue:            fairqueue.New[*Context, nanotype.BlockSource, uint64](1),
		OnBlockProcessed: &nanoevent.Feed[Event]{},
		OnBatchProcessed: &nanoevent.Feed[[]Event]{},
		OnForked:         &nanoevent.Feed[*nanotype.Block]{},
		OnRolledBack:     &nanoevent.Feed[[]*nanotype.SavedBlock]{},
		stats:            stats,
		seenOrigins:      make(map[uint64]bool),
		wake:             make(chan struct{}, 1),
		stop:             make(chan struct{}),
		done:             make(chan struct{}),
		batchCap:         defaultBatchCap,
		batchWait:        defaultBatchWait,
	}
	if stats != nil {
		for _, s := range []nanotype.BlockStatus{
			nanotype.Progress, nanotype.BadSignature, nanotype.Old, nanotype.NegativeSpend,
			nanotype.Fork, nanotype.Unreceivable, nanotype.GapPrevious, nanotype.GapSource,
			nanotype.GapEpochOpenPending, nanotype.OpenedBurnAccount, nanotype.BalanceMismatch,
			nanotype.RepresentativeMismatch, nanotype.BlockPosition, nanotype.InsufficientWork,
		} {
			nanostats.NewRegisteredCounter("block_processor/status/"+s.String(), stats)
		}
	}
	return p
}

// Start launches the worker goroutine. Safe to call once.
func (p *Processor) Start() {
	go p.run()
}

// Stop signals the worker to exit and waits for it, releasing any
// add_blocking callers still waiting with ErrDropped.
func (p *Processor) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Processor) ensureOriginConfigured(channel uint64, source nanotype.BlockSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seenOrigins[channel] {
		p.queue.SetPriority(channel, priorityForSource(source))
		p.seenOrigins[channel] = true
	}
}

// Add enqueues block for asynchronous processing. It returns false
// (without retry) if the channel's queue is at capacity, or if the
// block's work nonce fails the configured WorkValidator; both cases
// increment a per-source overflow counter.
func (p *Processor) Add(block *nanotype.Block, source nanotype.BlockSource, channel uint64) bool {
	if !p.work.Validate(block) {
		p.countOverflow(source)
		return false
	}
	p.ensureOriginConfigured(channel, source)
	ctx := &Context{Block: block, Source: source, Channel: channel}
	if !p.queue.Push(ctx, source, channel) {
		p.countOverflow(source)
		return false
	}
	p.signalWake()
	return true
}

func (p *Processor) countOverflow(source nanotype.BlockSource) {
	if p.stats == nil {
		return
	}
	nanostats.GetOrRegisterCounter("block_processor/overflow/"+source.String(), p.stats).Inc(1)
}

// AddBlocking enqueues block and blocks until the worker has published
// a result, the Processor stops, or ctx is canceled.
func (p *Processor) AddBlocking(ctx context.Context, block *nanotype.Block, source nanotype.BlockSource) (*nanotype.SavedBlock, nanotype.BlockStatus, error) {
	bctx := &Context{Block: block, Source: source, Channel: loopbackOrigin, blocking: true, result: make(chan Result, 1)}
	p.ensureOriginConfigured(loopbackOrigin, source)
	if !p.queue.Push(bctx, source, loopbackOrigin) {
		return nil, 0, ErrDropped
	}
	p.signalWake()

	select {
	case r := <-bctx.result:
		return r.Saved, r.Status, nil
	case <-p.stop:
		return nil, 0, ErrDropped
	case <-ctx.Done():
		return nil, 0, ErrDropped
	}
}

// Force enqueues block under source=Forced on the loopback origin;
// processing it will attempt rollback_competitor before Ledger.process.
func (p *Processor) Force(block *nanotype.Block) {
	p.ensureOriginConfigured(loopbackOrigin, nanotype.SourceForced)
	ctx := &Context{Block: block, Source: nanotype.SourceForced, Channel: loopbackOrigin}
	p.queue.Push(ctx, nanotype.SourceForced, loopbackOrigin)
	p.signalWake()
}

func (p *Processor) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) run() {
	defer close(p.done)
	timer := time.NewTimer(p.batchWait)
	defer timer.Stop()
	for {
		select {
		case <-p.stop:
			p.drainBlockingOnStop()
			return
		case <-p.wake:
		case <-timer.C:
		}
		p.processBatch()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.batchWait)
	}
}

func (p *Processor) drainBlockingOnStop() {
	for {
		ctx, _, _, ok := p.queue.PopNext()
		if !ok {
			return
		}
		if ctx.blocking {
			ctx.result <- Result{Status: nanotype.BlockPosition}
		}
	}
}

func (p *Processor) processBatch() {
	var events []Event
	for i := 0; i < p.batchCap; i++ {
		ctx, _, _, ok := p.queue.PopNext()
		if !ok {
			break
		}
		ev := p.processOne(ctx)
		events = append(events, ev)
		if ctx.blocking {
			ctx.result <- Result{Saved: ev.Saved, Status: ev.Status}
		}
	}
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		p.OnBlockProcessed.Send(ev)
	}
	p.OnBatchProcessed.Send(events)
}

func (p *Processor) processOne(ctx *Context) Event {
	w, err := p.ledger.BeginWrite("BlockProcessor")
	if err != nil {
		return Event{Block: ctx.Block, Status: nanotype.BlockPosition, Source: ctx.Source}
	}

	if ctx.Source == nanotype.SourceForced {
		p.rollbackCompetitor(w, ctx.Block)
	}

	saved, status := p.ledger.Process(w, ctx.Block)
	if err := w.Commit(); err != nil {
		status = nanotype.BlockPosition
	}

	p.applySideEffects(ctx.Block, saved, ctx.Source, status)
	if p.stats != nil {
		nanostats.GetOrRegisterCounter("block_processor/status/"+status.String(), p.stats).Inc(1)
	}

	return Event{Block: ctx.Block, Saved: saved, Status: status, Source: ctx.Source}
}

// rollbackCompetitor handles fork replacement: if a different block
// already occupies this qualified root, try to roll it back (and its
// descendants) so the forced block can take its place. A failed
// rollback (e.g. already cemented) is left in place — Process will
// then naturally report Fork.
func (p *Processor) rollbackCompetitor(w *ledger.WriteTxn, block *nanotype.Block) {
	root := block.QualifiedRoot()
	existing, ok := p.ledger.BlockSuccessorByQualifiedRootInWrite(w, root)
	if !ok || existing == block.Hash() {
		return
	}
	removed, err := p.ledger.Rollback(w, existing)
	if err != nil {
		return
	}
	p.OnRolledBack.Send(removed)
}

func (p *Processor) applySideEffects(block *nanotype.Block, saved *nanotype.SavedBlock, source nanotype.BlockSource, status nanotype.BlockStatus) {
	switch status {
	case nanotype.Progress:
		for _, pb := range p.unchecked.Release(block.Hash()) {
			p.Add(pb.Block, nanotype.SourceUnchecked, loopbackOrigin)
		}
		if saved != nil && saved.Sideband.Details.IsSend {
			for _, pb := range p.unchecked.Release(block.Link.AsHash()) {
				p.Add(pb.Block, nanotype.SourceUnchecked, loopbackOrigin)
			}
		}
	case nanotype.GapPrevious:
		p.unchecked.Put(block.Previous, block, source)
	case nanotype.GapSource:
		p.unchecked.Put(block.Link.AsHash(), block, source)
	case nanotype.GapEpochOpenPending:
		p.unchecked.Put(block.Account.AsHash(), block, source)
	case nanotype.Fork:
		p.OnForked.Send(block)
	}
}
