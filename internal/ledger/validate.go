package ledger

import (
	"crypto/ed25519"

	"github.com/gonano/nanod/internal/ledger/kv"
	"github.com/gonano/nanod/internal/nanotype"
)

// Process validates block against the account-chain invariants and,
// on success, inserts it and returns its SavedBlock; on rejection it
// returns the typed BlockStatus outcome describing why, performing no
// mutation.
func (s *Store) Process(w *WriteTxn, block *nanotype.Block) (*nanotype.SavedBlock, nanotype.BlockStatus) {
	if !verifySignature(block) {
		return nil, nanotype.BadSignature
	}

	root := block.QualifiedRoot()
	if existing, ok := getSuccessor(w.kvw, root); ok {
		if existing == block.Hash() {
			return nil, nanotype.Old
		}
		return nil, nanotype.Fork
	}

	accInfo, hasAccount := getAccountInfo(w.kvw, block.Account)

	var prevBalance nanotype.Amount
	var prevRepresentative nanotype.Account
	var height uint64
	epoch := nanotype.Epoch0

	if hasAccount {
		if block.Previous != accInfo.Head {
			if _, ok := getBlock(w.kvw, block.Previous); !ok {
				return nil, nanotype.GapPrevious
			}
			return nil, nanotype.BlockPosition
		}
		prevBalance = accInfo.Balance
		prevRepresentative = accInfo.Representative
		height = accInfo.BlockCount + 1
		epoch = accInfo.Epoch
	} else {
		if !block.Previous.IsZero() {
			return nil, nanotype.GapPrevious
		}
		if block.Account.IsZero() {
			return nil, nanotype.OpenedBurnAccount
		}
		height = 1
	}

	details := nanotype.BlockDetails{Epoch: epoch}

	switch cmp := block.Balance.Cmp(prevBalance); {
	case cmp < 0:
		amount, underflow := prevBalance.Sub(block.Balance)
		if underflow {
			return nil, nanotype.NegativeSpend
		}
		details.IsSend = true
		destination := block.Link.AsAccount()
		putPending(w.kvw, nanotype.PendingKey{Destination: destination, SenderHash: block.Hash()},
			nanotype.PendingEntry{Source: block.Account, Amount: amount, Epoch: epoch})

	case cmp > 0:
		if !hasAccount && block.Link.IsZero() {
			// An open block with no source link funds itself: the
			// genesis-style open, with no pending entry to consume.
			break
		}
		sourceHash := block.Link.AsHash()
		pendKey := nanotype.PendingKey{Destination: block.Account, SenderHash: sourceHash}
		entry, ok := getPending(w.kvw, pendKey)
		if !ok {
			if _, exists := getBlock(w.kvw, sourceHash); exists {
				return nil, nanotype.Unreceivable
			}
			return nil, nanotype.GapSource
		}
		received, _ := block.Balance.Sub(prevBalance)
		if received.Cmp(entry.Amount) != 0 {
			return nil, nanotype.BalanceMismatch
		}
		details.IsReceive = true
		deletePending(w.kvw, pendKey)

	default:
		if epochLink, ok := s.EpochLink(epoch + 1); ok && block.Link.AsHash() == epochLink {
			if hasAccount && block.Representative != prevRepresentative {
				return nil, nanotype.RepresentativeMismatch
			}
			details.IsEpoch = true
			epoch++
			details.Epoch = epoch
		} else if !hasAccount {
			if !block.Link.IsZero() {
				return nil, nanotype.GapEpochOpenPending
			}
			return nil, nanotype.Unreceivable
		}
	}

	sideband := nanotype.Sideband{
		Height:      height,
		Account:     block.Account,
		Balance:     block.Balance,
		Timestamp:   s.nowFn(),
		Epoch:       epoch,
		SourceEpoch: epoch,
		Details:     details,
	}
	saved := &nanotype.SavedBlock{Block: block, Sideband: sideband}

	newInfo := nanotype.AccountInfo{
		Head:           block.Hash(),
		Representative: block.Representative,
		Balance:        block.Balance,
		ModifiedUnix:   sideband.Timestamp,
		BlockCount:     height,
		Epoch:          epoch,
	}
	if hasAccount {
		newInfo.OpenBlock = accInfo.OpenBlock
	} else {
		newInfo.OpenBlock = block.Hash()
	}

	w.kvw.Put([]byte(kv.BucketBlocks), block.Hash()[:], encodeSavedBlock(saved))
	w.kvw.Put([]byte(kv.BucketSuccessor), kv.Key(root.Account[:], root.Previous[:]), block.Hash()[:])
	w.kvw.Put([]byte(kv.BucketAccounts), block.Account[:], encodeAccountInfo(newInfo))

	s.adjustWeight(prevRepresentative, prevBalance, false)
	s.adjustWeight(block.Representative, block.Balance, true)

	return saved, nanotype.Progress
}

// Rollback removes block and every descendant up to the account's
// frontier, undoing their ledger effects in frontier-to-target order,
// and returns the removed blocks. It refuses to roll back a block at
// or below the account's confirmation height.
func (s *Store) Rollback(w *WriteTxn, hash nanotype.Hash) ([]*nanotype.SavedBlock, error) {
	target, ok := getBlock(w.kvw, hash)
	if !ok {
		return nil, ErrBlockNotFound
	}
	ch, _ := getConfirmationHeight(w.kvw, target.Account)
	if target.Sideband.Height <= ch.Height {
		return nil, ErrRollbackCemented
	}

	accInfo, ok := getAccountInfo(w.kvw, target.Account)
	if !ok {
		return nil, ErrBlockNotFound
	}

	var chain []*nanotype.SavedBlock
	cur := hash
	for {
		b, ok := getBlock(w.kvw, cur)
		if !ok {
			break
		}
		chain = append(chain, b)
		if cur == accInfo.Head {
			break
		}
		succ, ok := getSuccessor(w.kvw, nanotype.QualifiedRoot{Account: target.Account, Previous: cur})
		if !ok {
			break
		}
		cur = succ
	}

	for i := len(chain) - 1; i >= 0; i-- {
		b := chain[i]

		var prevRep nanotype.Account
		var prevBal nanotype.Amount
		if !b.Previous.IsZero() {
			if prevBlock, ok := getBlock(w.kvw, b.Previous); ok {
				prevRep = prevBlock.Representative
				prevBal = prevBlock.Balance
			}
		}

		s.adjustWeight(b.Representative, b.Balance, false)
		s.adjustWeight(prevRep, prevBal, true)

		if b.Sideband.Details.IsSend {
			destination := b.Link.AsAccount()
			deletePending(w.kvw, nanotype.PendingKey{Destination: destination, SenderHash: b.Hash()})
		} else if b.Sideband.Details.IsReceive {
			sourceHash := b.Link.AsHash()
			if sourceBlock, ok := getBlock(w.kvw, sourceHash); ok {
				amount, _ := b.Balance.Sub(prevBal)
				putPending(w.kvw, nanotype.PendingKey{Destination: b.Account, SenderHash: sourceHash},
					nanotype.PendingEntry{Source: sourceBlock.Account, Amount: amount, Epoch: b.Sideband.Epoch})
			}
		}

		w.kvw.Delete([]byte(kv.BucketBlocks), b.Hash()[:])
		w.kvw.Delete([]byte(kv.BucketSuccessor), kv.Key(b.Account[:], b.Previous[:]))

		if b.Sideband.Height == 1 {
			w.kvw.Delete([]byte(kv.BucketAccounts), b.Account[:])
			continue
		}
		prevBlock, ok := getBlock(w.kvw, b.Previous)
		if !ok {
			continue
		}
		restored := nanotype.AccountInfo{
			Head:           b.Previous,
			Representative: prevBlock.Representative,
			OpenBlock:      accInfo.OpenBlock,
			Balance:        prevBlock.Balance,
			ModifiedUnix:   s.nowFn(),
			BlockCount:     b.Sideband.Height - 1,
			Epoch:          prevBlock.Sideband.Epoch,
		}
		w.kvw.Put([]byte(kv.BucketAccounts), b.Account[:], encodeAccountInfo(restored))
	}

	return chain, nil
}

func putPending(w kv.Writer, key nanotype.PendingKey, entry nanotype.PendingEntry) {
	w.Put([]byte(kv.BucketPending), pendingKeyBytes(key), encodePendingEntry(entry))
}

func deletePending(w kv.Writer, key nanotype.PendingKey) {
	w.Delete([]byte(kv.BucketPending), pendingKeyBytes(key))
}

// verifySignature checks the block's ed25519 signature against its
// account public key over the block hash. An all-zero signature is
// rejected without running the ed25519 check.
func verifySignature(block *nanotype.Block) bool {
	if block.Signature == ([64]byte{}) {
		return false
	}
	hash := block.Hash()
	return ed25519.Verify(ed25519.PublicKey(block.Account[:]), hash[:], block.Signature[:])
}
