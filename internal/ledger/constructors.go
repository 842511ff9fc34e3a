package ledger

import "github.com/gonano/nanod/internal/ledger/kv"

// NewMemStore builds a Store over an in-memory backend, for tests and
// for running a node without a disk store.
func NewMemStore() *Store {
	return New(kv.NewMemBackend())
}

// NewLevelStore builds a Store over a goleveldb-backed backend at dir,
// the production storage engine.
func NewLevelStore(dir string) (*Store, error) {
	backend, err := kv.OpenLevelBackend(dir)
	if err != nil {
		return nil, err
	}
	return New(backend), nil
}

// Close releases the underlying storage backend.
func (s *Store) Close() error { return s.backend.Close() }
