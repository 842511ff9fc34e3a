// Package kv is the narrow key/value transaction abstraction the ledger
// store is built on, so the same validator and record layout can run
// against an in-memory backend (tests) or goleveldb (production)
// without duplicating the account-chain logic per backend.
package kv

// Buckets are key prefixes, not separate namespaces on disk; both
// backends share one flat keyspace.
const (
	BucketBlocks       = "blk"
	BucketAccounts     = "acc"
	BucketPending      = "pen"
	BucketConfirmation = "cnf"
	BucketSuccessor    = "suc"
	BucketMeta         = "met"
)

// Txn is a read-only view. A Txn returned by BeginRead observes a
// consistent snapshot of the store even as writers commit concurrently.
type Txn interface {
	Get(bucket, key []byte) ([]byte, bool)
	// ForEachPrefix iterates keys in bucket with the given prefix in
	// ascending key order, calling fn(key-without-prefix, value) for
	// each; iteration stops early if fn returns false.
	ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) bool)
	// Discard releases resources held by the transaction (snapshot
	// handles, etc). Safe to call multiple times.
	Discard()
}

// Writer is a Txn that can also mutate; exactly one Writer may be open
// at a time, enforced by the WriterQueue above the backend.
type Writer interface {
	Txn
	Put(bucket, key, value []byte)
	Delete(bucket, key []byte)
	// Commit durably applies all Put/Delete calls made so far and
	// invalidates the Writer. The commit-and-reopen step for
	// long-running writers (commit(); renew()) is ledger.WriteTxn.Renew,
	// built on Commit; this interface has no Renew of its own.
	Commit() error
}

// Backend is the storage engine underneath Store; memkv and leveldbkv
// are the two implementations.
type Backend interface {
	BeginRead() Txn
	BeginWrite() (Writer, error)
	Close() error
}

func key(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Key concatenates key components into one flat byte slice (no
// delimiter is needed since every component here is fixed-width).
func Key(parts ...[]byte) []byte { return key(parts...) }
