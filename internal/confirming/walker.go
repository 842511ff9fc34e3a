// Package confirming implements the Confirming Set queue and the
// Cementation Walker: given a newly-confirmed block, discover and
// write the minimal set of chain sections that raise every ancestor —
// across receive/send account boundaries — to cemented state, in
// bounded memory via an explicit stack and checkpoints rather than
// recursion.
package confirming

import (
	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanotype"
)

// defaultStackCapacity is the walker's bounded "chains in flight"
// ceiling.
const defaultStackCapacity = 131072

// Section is one (account, bottom..top) span to cement.
type Section struct {
	Account     nanotype.Account
	BottomHeight uint64
	BottomHash  nanotype.Hash
	TopHeight   uint64
	TopHash     nanotype.Hash
}

// accountCacheEntry is one row of the walker's accounts-confirmed
// cache, authoritative over on-disk confirmation height while the
// walk is running.
type accountCacheEntry struct {
	confirmedHeight   uint64
	confirmedFrontier nanotype.Hash
	firstUnconfirmed  uint64
}

// chainIteration is one account-segment being scanned.
type chainIteration struct {
	account nanotype.Account
	bottom  uint64
	top     uint64
	current uint64

	// blocks holds the materialized chain from bottom to top,
	// ascending by height, resolved once when the iteration is first
	// scanned (a bounded backward walk from the top hash).
	blocks []*nanotype.SavedBlock
}

// Walker is the Cementation Walker component. It is single-use:
// construct one per target block, call Run, discard.
type Walker struct {
	ledger *ledger.Store
	w      *ledger.WriteTxn

	stackCap int
	stack    []*chainIteration
	accounts map[nanotype.Account]*accountCacheEntry

	checkpoints []nanotype.Hash

	onSection func(Section) error
}

// NewWalker builds a Walker bound to an in-flight write transaction.
// onSection is invoked once per yielded section, in discovery order,
// so the caller (ConfirmingSet) can write the confirmation height
// immediately and merge the walker's cache forward into persistent
// storage after each yielded section.
func NewWalker(store *ledger.Store, w *ledger.WriteTxn, onSection func(Section) error) *Walker {
	return &Walker{
		ledger:   store,
		w:        w,
		stackCap: defaultStackCapacity,
		accounts: make(map[nanotype.Account]*accountCacheEntry),
		onSection: onSection,
	}
}

// Run walks every ancestor of target that is not yet cemented,
// yielding one Section per contiguous cemented-to range per account
// touched, in an order that respects cross-account receive/send
// dependencies.
func (wk *Walker) Run(target *nanotype.SavedBlock) error {
	if err := wk.enqueue(target); err != nil {
		return err
	}
	for len(wk.stack) > 0 || len(wk.checkpoints) > 0 {
		if len(wk.stack) == 0 {
			// Stack drained but the walk isn't done: resume from the
			// last checkpoint.
			cp := wk.checkpoints[len(wk.checkpoints)-1]
			wk.checkpoints = wk.checkpoints[:len(wk.checkpoints)-1]
			b, ok := wk.ledger.GetBlockInWrite(wk.w, cp)
			if !ok {
				continue
			}
			if err := wk.enqueue(b); err != nil {
				return err
			}
			continue
		}
		if err := wk.step(); err != nil {
			return err
		}
	}
	return nil
}

// confirmedHeightOf consults the accounts-confirmed cache first
// (authoritative while the walk runs), falling back to the persistent
// ledger record.
func (wk *Walker) confirmedHeightOf(account nanotype.Account) uint64 {
	if e, ok := wk.accounts[account]; ok {
		return e.confirmedHeight
	}
	ch, _ := wk.ledger.GetConfirmationHeightInWrite(wk.w, account)
	return ch.Height
}

// enqueue implements "enqueue_for_cementation(block)": compute the
// lowest uncemented ancestor on block's account and push that chain
// segment; a no-op if the account is already cemented up to block.
func (wk *Walker) enqueue(block *nanotype.SavedBlock) error {
	bottom := wk.confirmedHeightOf(block.Account) + 1
	if bottom > block.Sideband.Height {
		return nil // already fully cemented, nothing to do
	}
	if len(wk.stack) >= wk.stackCap {
		// Checkpoint: remember the top hash and unwind; resumed later
		// by Run once the stack drains.
		wk.checkpoints = append(wk.checkpoints, block.Hash())
		return nil
	}
	it := &chainIteration{account: block.Account, bottom: bottom, top: block.Sideband.Height, current: bottom}
	if err := wk.materialize(it, block); err != nil {
		return err
	}
	wk.stack = append(wk.stack, it)
	return nil
}

// materialize resolves it.blocks: walk backward from topBlock via
// Previous until height == it.bottom, then reverse into ascending
// order. Bounded to the segment being cemented, never the whole chain.
func (wk *Walker) materialize(it *chainIteration, topBlock *nanotype.SavedBlock) error {
	rev := make([]*nanotype.SavedBlock, 0, topBlock.Sideband.Height-it.bottom+1)
	cur := topBlock
	for {
		rev = append(rev, cur)
		if cur.Sideband.Height <= it.bottom {
			break
		}
		prev, ok := wk.ledger.GetBlockInWrite(wk.w, cur.Previous)
		if !ok {
			break
		}
		cur = prev
	}
	it.blocks = make([]*nanotype.SavedBlock, len(rev))
	for i, b := range rev {
		it.blocks[len(rev)-1-i] = b
	}
	return nil
}

// step processes the chain iteration on top of the stack: pop and
// yield a section once current passes top; otherwise scan forward for
// a receive block, pushing its corresponding send's chain as a
// dependency.
func (wk *Walker) step() error {
	it := wk.stack[len(wk.stack)-1]

	if it.current > it.top {
		wk.stack = wk.stack[:len(wk.stack)-1]
		return wk.yield(it)
	}

	idx := int(it.current - it.bottom)
	if idx >= len(it.blocks) {
		wk.stack = wk.stack[:len(wk.stack)-1]
		return wk.yield(it)
	}
	b := it.blocks[idx]
	it.current++

	if b.Sideband.Details.IsReceive && !b.Sideband.Details.IsEpoch {
		sourceHash := b.Link.AsHash()
		source, ok := wk.ledger.GetBlockInWrite(wk.w, sourceHash)
		if ok && source.Account != b.Account {
			if err := wk.enqueue(source); err != nil {
				return err
			}
		}
	}
	return nil
}

// yield strips any prefix of it already covered by the accounts
// confirmed cache (another iteration on the same account may have
// advanced it since this one was pushed), updates the cache, and
// emits the remaining section.
func (wk *Walker) yield(it *chainIteration) error {
	bottom := it.bottom
	if e, ok := wk.accounts[it.account]; ok && e.confirmedHeight+1 > bottom {
		bottom = e.confirmedHeight + 1
	}
	if bottom > it.top {
		return nil // fully subsumed by a later cache update, nothing new
	}
	bottomIdx := int(bottom - it.bottom)
	topIdx := len(it.blocks) - 1
	section := Section{
		Account:      it.account,
		BottomHeight: bottom,
		BottomHash:   it.blocks[bottomIdx].Hash(),
		TopHeight:    it.top,
		TopHash:      it.blocks[topIdx].Hash(),
	}
	wk.accounts[it.account] = &accountCacheEntry{
		confirmedHeight:   it.top,
		confirmedFrontier: section.TopHash,
		firstUnconfirmed:  it.top + 1,
	}
	if wk.onSection != nil {
		return wk.onSection(section)
	}
	return nil
}
