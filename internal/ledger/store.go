// Package ledger implements the transactional account-chain store that
// validates and inserts blocks, the only storage abstraction the
// consensus core requires.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/gonano/nanod/internal/ledger/kv"
	"github.com/gonano/nanod/internal/nanotype"
)

var ErrBlockNotFound = errors.New("ledger: block not found")
var ErrRollbackCemented = errors.New("ledger: cannot roll back a cemented block")

// ConfirmedSection is one (account, bottom..top) span the cementation
// walker hands to WriteConfirmationHeight.
type ConfirmedSection struct {
	Account  nanotype.Account
	Height   uint64
	Frontier nanotype.Hash
}

// Store is the ledger's transactional contract, backed by a pluggable
// kv.Backend (kv.MemBackend via NewMemStore for tests, kv.LevelBackend
// via NewLevelStore in production).
type Store struct {
	backend kv.Backend
	Writers *WriterQueue

	epochMu    sync.RWMutex
	epochLinks map[nanotype.Epoch]nanotype.Hash

	weightMu sync.RWMutex
	weights  map[nanotype.Account]nanotype.Amount

	nowFn func() int64
}

func New(backend kv.Backend) *Store {
	return &Store{
		backend:    backend,
		Writers:    NewWriterQueue(),
		epochLinks: make(map[nanotype.Epoch]nanotype.Hash),
		weights:    make(map[nanotype.Account]nanotype.Amount),
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEpochLink registers the link value identifying the transition
// block into epoch `next`.
func (s *Store) SetEpochLink(next nanotype.Epoch, link nanotype.Hash) {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	s.epochLinks[next] = link
}

func (s *Store) EpochLink(epoch nanotype.Epoch) (nanotype.Hash, bool) {
	s.epochMu.RLock()
	defer s.epochMu.RUnlock()
	h, ok := s.epochLinks[epoch]
	return h, ok
}

// Weight returns the representative's total delegated voting weight —
// the sum of every account's balance whose current representative is
// this account, maintained incrementally as blocks are processed and
// rolled back rather than recomputed from a ledger scan.
func (s *Store) Weight(account nanotype.Account) nanotype.Amount {
	s.weightMu.RLock()
	defer s.weightMu.RUnlock()
	return s.weights[account]
}

func (s *Store) adjustWeight(account nanotype.Account, amount nanotype.Amount, add bool) {
	if account.IsZero() || amount.IsZero() {
		return
	}
	s.weightMu.Lock()
	defer s.weightMu.Unlock()
	cur := s.weights[account]
	if add {
		s.weights[account] = cur.Add(amount)
	} else if diff, underflow := cur.Sub(amount); !underflow {
		s.weights[account] = diff
	} else {
		s.weights[account] = nanotype.Amount{}
	}
}

// ReadTxn is a read-only ledger view.
type ReadTxn struct{ kvTxn kv.Txn }

func (s *Store) BeginRead() *ReadTxn { return &ReadTxn{kvTxn: s.backend.BeginRead()} }
func (t *ReadTxn) Discard()          { t.kvTxn.Discard() }

// WriteTxn is the exclusive write handle, obtained only through
// BeginWrite, which blocks on the WriterQueue, this store's single
// write serialization point.
type WriteTxn struct {
	store    *Store
	kvw      kv.Writer
	writerID string
	release  func()
	done     bool
}

// BeginWrite acquires the writer queue ticket for writerID and opens a
// write transaction. Callers must Commit or Discard exactly once.
func (s *Store) BeginWrite(writerID string) (*WriteTxn, error) {
	_, release := s.Writers.Acquire(writerID)
	w, err := s.backend.BeginWrite()
	if err != nil {
		release()
		return nil, err
	}
	return &WriteTxn{store: s, kvw: w, writerID: writerID, release: release}, nil
}

func (w *WriteTxn) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	err := w.kvw.Commit()
	w.release()
	return err
}

func (w *WriteTxn) Discard() {
	if w.done {
		return
	}
	w.done = true
	w.kvw.Discard()
	w.release()
}

// Renew commits the current batch and immediately reacquires the
// writer slot, letting a long-running writer (confirmation, pruning)
// yield to other writers between sections without losing its place in
// the queue any longer than necessary.
func (w *WriteTxn) Renew() error {
	if err := w.Commit(); err != nil {
		return err
	}
	nw, err := w.store.BeginWrite(w.writerID)
	if err != nil {
		return err
	}
	*w = *nw
	return nil
}

// --- record accessors, shared by both ReadTxn and WriteTxn read paths ---

func getBlock(t kv.Txn, hash nanotype.Hash) (*nanotype.SavedBlock, bool) {
	raw, ok := t.Get([]byte(kv.BucketBlocks), hash[:])
	if !ok {
		return nil, false
	}
	return decodeSavedBlock(raw)
}

func getAccountInfo(t kv.Txn, account nanotype.Account) (nanotype.AccountInfo, bool) {
	raw, ok := t.Get([]byte(kv.BucketAccounts), account[:])
	if !ok {
		return nanotype.AccountInfo{}, false
	}
	return decodeAccountInfo(raw)
}

func getPending(t kv.Txn, key nanotype.PendingKey) (nanotype.PendingEntry, bool) {
	raw, ok := t.Get([]byte(kv.BucketPending), pendingKeyBytes(key))
	if !ok {
		return nanotype.PendingEntry{}, false
	}
	return decodePendingEntry(raw)
}

func getConfirmationHeight(t kv.Txn, account nanotype.Account) (nanotype.ConfirmationHeight, bool) {
	raw, ok := t.Get([]byte(kv.BucketConfirmation), account[:])
	if !ok {
		return nanotype.ConfirmationHeight{}, false
	}
	return decodeConfirmationHeight(raw)
}

func getSuccessor(t kv.Txn, root nanotype.QualifiedRoot) (nanotype.Hash, bool) {
	raw, ok := t.Get([]byte(kv.BucketSuccessor), kv.Key(root.Account[:], root.Previous[:]))
	if !ok {
		return nanotype.Hash{}, false
	}
	var h nanotype.Hash
	copy(h[:], raw)
	return h, true
}

func pendingKeyBytes(k nanotype.PendingKey) []byte {
	return kv.Key(k.Destination[:], k.SenderHash[:])
}

// --- public read operations ---

func (s *Store) GetBlock(t *ReadTxn, hash nanotype.Hash) (*nanotype.SavedBlock, bool) {
	return getBlock(t.kvTxn, hash)
}

func (s *Store) GetAccountInfo(t *ReadTxn, account nanotype.Account) (nanotype.AccountInfo, bool) {
	return getAccountInfo(t.kvTxn, account)
}

func (s *Store) GetConfirmationHeight(t *ReadTxn, account nanotype.Account) (nanotype.ConfirmationHeight, bool) {
	return getConfirmationHeight(t.kvTxn, account)
}

func (s *Store) BlockSuccessorByQualifiedRoot(t *ReadTxn, root nanotype.QualifiedRoot) (nanotype.Hash, bool) {
	return getSuccessor(t.kvTxn, root)
}

// BlockSuccessorByQualifiedRootInWrite is the same lookup, usable
// inside an in-flight WriteTxn (e.g. the block processor's
// rollback_competitor check, which must see its own uncommitted
// writes).
func (s *Store) BlockSuccessorByQualifiedRootInWrite(w *WriteTxn, root nanotype.QualifiedRoot) (nanotype.Hash, bool) {
	return getSuccessor(w.kvw, root)
}

// GetBlockInWrite, GetAccountInfoInWrite and GetConfirmationHeightInWrite
// are the same record reads as their ReadTxn counterparts, usable
// inside an in-flight WriteTxn — the cementation walker runs entirely
// within one write transaction and must see its own uncommitted
// confirmation-height writes as it progresses section by section.
func (s *Store) GetBlockInWrite(w *WriteTxn, hash nanotype.Hash) (*nanotype.SavedBlock, bool) {
	return getBlock(w.kvw, hash)
}

func (s *Store) GetAccountInfoInWrite(w *WriteTxn, account nanotype.Account) (nanotype.AccountInfo, bool) {
	return getAccountInfo(w.kvw, account)
}

func (s *Store) GetConfirmationHeightInWrite(w *WriteTxn, account nanotype.Account) (nanotype.ConfirmationHeight, bool) {
	return getConfirmationHeight(w.kvw, account)
}

// IterateAccounts walks every account record in the ledger in key
// order, for the bootstrap database scheduler to find accounts
// outside the priority set. Iteration stops early if fn returns
// false.
func (s *Store) IterateAccounts(t *ReadTxn, fn func(nanotype.Account, nanotype.AccountInfo) bool) {
	t.kvTxn.ForEachPrefix([]byte(kv.BucketAccounts), nil, func(key, value []byte) bool {
		var account nanotype.Account
		copy(account[:], key)
		info, ok := decodeAccountInfo(value)
		if !ok {
			return true
		}
		return fn(account, info)
	})
}

// WriteConfirmationHeight persists one cemented section, advancing the
// account's confirmation height; it never moves it backward.
func (s *Store) WriteConfirmationHeight(w *WriteTxn, section ConfirmedSection) error {
	cur, _ := getConfirmationHeight(w.kvw, section.Account)
	if section.Height <= cur.Height {
		return nil
	}
	w.kvw.Put([]byte(kv.BucketConfirmation), section.Account[:],
		encodeConfirmationHeight(nanotype.ConfirmationHeight{Height: section.Height, Frontier: section.Frontier}))
	return nil
}

// PruningAction discards stored block bodies for up to batchSize
// ancestors of hash, walking back toward the account's open block.
// Each pruned block's whole stored record (body and sideband) is
// deleted; account info and confirmation height are left intact, and
// only already-cemented history is pruned.
func (s *Store) PruningAction(w *WriteTxn, hash nanotype.Hash, batchSize int) (uint64, error) {
	var pruned uint64
	cur := hash
	for i := 0; i < batchSize; i++ {
		b, ok := getBlock(w.kvw, cur)
		if !ok {
			break
		}
		ch, _ := getConfirmationHeight(w.kvw, b.Account)
		if b.Sideband.Height > ch.Height {
			break // never prune past confirmed height
		}
		w.kvw.Delete([]byte(kv.BucketBlocks), cur[:])
		pruned++
		if b.Previous.IsZero() {
			break
		}
		cur = b.Previous
	}
	return pruned, nil
}
