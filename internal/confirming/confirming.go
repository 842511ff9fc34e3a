package confirming

import (
	"sync"
	"time"

	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanoevent"
	"github.com/gonano/nanod/internal/nanostats"
	"github.com/gonano/nanod/internal/nanotype"
)

// CementedEvent is published once per written section, after the
// section's confirmation-height write has committed: by the time a
// subscriber observes it, the account's confirmation height is
// already at or past the section's top.
type CementedEvent struct {
	Section Section
}

// renewEvery batches this many sections per write-transaction
// renewal, the familiar "commit(); renew()" yield point applied at a
// granularity coarser than every single section.
const renewEvery = 64

// Set is the Confirming Set queue: a single worker thread dequeuing
// confirmed roots and driving the Cementation Walker against each,
// modeled on core/chain_indexer.go's background single-worker indexer
// shape (queue + one worker + periodic backlog drain).
type Set struct {
	ledger *ledger.Store
	stats  nanostats.Registry

	mu      sync.Mutex
	queued  map[nanotype.Hash]bool
	order   []nanotype.Hash

	OnCemented      *nanoevent.Feed[CementedEvent]
	OnBatchCemented *nanoevent.Feed[[]CementedEvent]

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	cementedCount nanostats.Counter
}

func New(store *ledger.Store, stats nanostats.Registry) *Set {
	s := &Set{
		ledger:          store,
		stats:           stats,
		queued:          make(map[nanotype.Hash]bool),
		OnCemented:      &nanoevent.Feed[CementedEvent]{},
		OnBatchCemented: &nanoevent.Feed[[]CementedEvent]{},
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	if stats != nil {
		s.cementedCount = nanostats.NewRegisteredCounter("confirming_set/cemented_blocks", stats)
		nanostats.NewRegisteredFunctionalGauge("confirming_set/queue_len", stats, func() int64 { return int64(s.Len()) })
	}
	return s
}

func (s *Set) Start() { go s.run() }

func (s *Set) Stop() {
	close(s.stop)
	<-s.done
}

// Add enqueues hash for cementation: an election's winning hash is
// handed here once it confirms. Duplicate adds of a hash already
// queued or in flight are no-ops.
func (s *Set) Add(hash nanotype.Hash) {
	s.mu.Lock()
	if s.queued[hash] {
		s.mu.Unlock()
		return
	}
	s.queued[hash] = true
	s.order = append(s.order, hash)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *Set) popLocked() (nanotype.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) == 0 {
		return nanotype.Hash{}, false
	}
	h := s.order[0]
	s.order = s.order[1:]
	delete(s.queued, h)
	return h, true
}

func (s *Set) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-time.After(time.Second):
		}
		for {
			h, ok := s.popLocked()
			if !ok {
				break
			}
			s.process(h)
			select {
			case <-s.stop:
				return
			default:
			}
		}
	}
}

// process drives the walker for one target hash end to end: opens a
// write transaction, runs the walker (yielding sections that get
// written and batched via periodic Renew), commits, and fans out
// cemented notifications outside the transaction.
func (s *Set) process(hash nanotype.Hash) {
	w, err := s.ledger.BeginWrite("ConfirmingSet")
	if err != nil {
		return
	}
	target, ok := s.ledger.GetBlockInWrite(w, hash)
	if !ok {
		w.Discard()
		return
	}

	var events []CementedEvent
	sinceRenew := 0
	onSection := func(sec Section) error {
		if err := s.ledger.WriteConfirmationHeight(w, ledger.ConfirmedSection{
			Account: sec.Account, Height: sec.TopHeight, Frontier: sec.TopHash,
		}); err != nil {
			return err
		}
		events = append(events, CementedEvent{Section: sec})
		if s.cementedCount != nil {
			s.cementedCount.Inc(int64(sec.TopHeight - sec.BottomHeight + 1))
		}
		sinceRenew++
		if sinceRenew >= renewEvery {
			sinceRenew = 0
			return w.Renew()
		}
		return nil
	}

	wk := NewWalker(s.ledger, w, onSection)
	if err := wk.Run(target); err != nil {
		w.Discard()
		return
	}
	if err := w.Commit(); err != nil {
		return
	}

	for _, ev := range events {
		s.OnCemented.Send(ev)
	}
	if len(events) > 0 {
		s.OnBatchCemented.Send(events)
	}
}
