package kv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelBackend is the production Backend: goleveldb's snapshot reads
// give reader/writer isolation and its Transaction type gives the
// write-exclusive batch semantics this store needs, mirroring
// go-ethereum's own use of goleveldb in core/rawdb.
type LevelBackend struct {
	db *leveldb.DB
}

func OpenLevelBackend(dir string) (*LevelBackend, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, err
	}
	return &LevelBackend{db: db}, nil
}

func (l *LevelBackend) Close() error { return l.db.Close() }

func (l *LevelBackend) BeginRead() Txn {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		// A snapshot only fails if the DB is already closed, which is
		// a programming error in this codebase's lifecycle; callers of
		// BeginRead never expect a nil Txn, so surface it as an empty
		// read rather than a panic mid-walk.
		return &levelTxn{snap: nil}
	}
	return &levelTxn{snap: snap}
}

func (l *LevelBackend) BeginWrite() (Writer, error) {
	tx, err := l.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &levelWriter{tx: tx}, nil
}

type levelTxn struct {
	snap *leveldb.Snapshot
}

func (t *levelTxn) Get(bucket, key []byte) ([]byte, bool) {
	if t.snap == nil {
		return nil, false
	}
	v, err := t.snap.Get(Key(bucket, key), nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (t *levelTxn) ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) bool) {
	if t.snap == nil {
		return
	}
	rng := util.BytesPrefix(Key(bucket, prefix))
	it := t.snap.NewIterator(rng, nil)
	iterateStripping(it, bucket, prefix, fn)
}

func (t *levelTxn) Discard() {
	if t.snap != nil {
		t.snap.Release()
	}
}

type levelWriter struct {
	tx *leveldb.Transaction
}

func (w *levelWriter) Get(bucket, key []byte) ([]byte, bool) {
	v, err := w.tx.Get(Key(bucket, key), nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (w *levelWriter) ForEachPrefix(bucket, prefix []byte, fn func(key, value []byte) bool) {
	rng := util.BytesPrefix(Key(bucket, prefix))
	it := w.tx.NewIterator(rng, nil)
	iterateStripping(it, bucket, prefix, fn)
}

func (w *levelWriter) Put(bucket, key, value []byte) {
	_ = w.tx.Put(Key(bucket, key), value, nil)
}

func (w *levelWriter) Delete(bucket, key []byte) {
	_ = w.tx.Delete(Key(bucket, key), nil)
}

func (w *levelWriter) Commit() error { return w.tx.Commit() }

func (w *levelWriter) Discard() { w.tx.Discard() }

func iterateStripping(it iterator.Iterator, bucket, prefix []byte, fn func(key, value []byte) bool) {
	defer it.Release()
	skip := len(bucket) + len(prefix)
	for it.Next() {
		k := it.Key()
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		strippedKey := make([]byte, len(k)-skip)
		copy(strippedKey, k[skip:])
		if !fn(strippedKey, v) {
			return
		}
	}
}
