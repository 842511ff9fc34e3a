package main

import (
	"github.com/gonano/nanod/internal/blockprocessor"
	"github.com/gonano/nanod/internal/bootstrap"
	"github.com/gonano/nanod/internal/confirming"
	"github.com/gonano/nanod/internal/election"
	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanolog"
	"github.com/gonano/nanod/internal/nanostats"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/netinfo"
	"github.com/gonano/nanod/internal/unchecked"
)

// blockprocessorEvent aliases the processor's own event type so the
// daemon's select loop doesn't need to import blockprocessor by name
// at every use site.
type blockprocessorEvent = blockprocessor.Event

// openStore picks the storage backend: goleveldb for a real data
// directory, the in-memory store for "memory" or an empty path
// (development / tests of the binary itself).
func openStore(dataDir string) (*ledger.Store, error) {
	if dataDir == "" || dataDir == "memory" {
		return ledger.NewMemStore(), nil
	}
	return ledger.NewLevelStore(dataDir)
}

func blockprocessorNew(store *ledger.Store, unc *unchecked.Map, stats nanostats.Registry) *blockprocessor.Processor {
	return blockprocessor.New(store, unc, stats, nil)
}

func subscribeProcessed(p *blockprocessor.Processor, ch chan blockprocessorEvent) {
	p.OnBlockProcessed.Subscribe(ch)
}

// handleProcessed implements the daemon's block-arrival policy: every
// newly progressed block enters an election at Priority behavior, the
// default bucket for network-originated blocks, and a forked
// competitor is published into its existing election if one is
// already open, or starts one otherwise.
func handleProcessed(aec *election.AEC, ev blockprocessorEvent) {
	switch ev.Status {
	case nanotype.Progress:
		aec.Insert(ev.Block, nanotype.BehaviorPriority)
	case nanotype.Fork:
		root := ev.Block.QualifiedRoot()
		if el, ok := aec.Election(root); ok {
			aec.Publish(ev.Block, el)
		} else {
			aec.Insert(ev.Block, nanotype.BehaviorPriority)
		}
	}
}

// activateSuccessor handles the cementation-to-election handoff: a
// cemented section only ever carries the blocks that were already
// confirmed winners, so whatever sits immediately after the new
// confirmed frontier in the same account's chain (already processed
// by the block processor, but never elected because its predecessor
// hadn't confirmed yet) needs its own election opened now that the
// path to it is clear.
func activateSuccessor(store *ledger.Store, aec *election.AEC, sec confirming.Section) {
	rt := store.BeginRead()
	defer rt.Discard()

	root := nanotype.QualifiedRoot{Account: sec.Account, Previous: sec.TopHash}
	hash, ok := store.BlockSuccessorByQualifiedRoot(rt, root)
	if !ok {
		return
	}
	if _, exists := aec.Election(root); exists {
		return
	}
	saved, ok := store.GetBlock(rt, hash)
	if !ok {
		return
	}
	aec.Insert(saved.Block, nanotype.BehaviorPriority)
}

// logOnlyTransport satisfies both netinfo.RequestSender and
// bootstrap.RequestSender by logging instead of sending: actual wire
// framing and peer transport live outside this core, so the daemon's
// only obligation here is to expose a seam a real transport can later
// be dropped behind.
type logOnlyTransport struct {
	log nanolog.Logger
}

func (t *logOnlyTransport) SendConfirmReqBatch(ch *netinfo.Channel, roots []nanotype.QualifiedRoot, winners []*nanotype.Block) {
	t.log.Debug("confirm_req batch", "peer", ch.ID, "count", len(roots))
}

func (t *logOnlyTransport) SendVote(ch *netinfo.Channel, vote nanotype.Vote) {
	t.log.Debug("vote broadcast", "peer", ch.ID, "hashes", len(vote.Hashes))
}

func (t *logOnlyTransport) SendBlock(ch *netinfo.Channel, block *nanotype.Block) {
	t.log.Debug("block broadcast", "peer", ch.ID, "hash", block.Hash())
}

func (t *logOnlyTransport) SendBlocksRequest(ch *netinfo.Channel, tag *bootstrap.Tag) error {
	t.log.Debug("asc_pull_req blocks", "peer", ch.ID, "tag", tag.ID)
	return nil
}

func (t *logOnlyTransport) SendAccountInfoRequest(ch *netinfo.Channel, tag *bootstrap.Tag) error {
	t.log.Debug("asc_pull_req account_info", "peer", ch.ID, "tag", tag.ID)
	return nil
}
