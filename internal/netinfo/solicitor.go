package netinfo

import (
	"sync"
	"time"

	"github.com/gonano/nanod/internal/election"
	"github.com/gonano/nanod/internal/nanotype"
)

// RequestSender is the wire-transport seam this package stubs out:
// actually putting bytes on the network happens behind this
// interface.
type RequestSender interface {
	SendConfirmReqBatch(ch *Channel, roots []nanotype.QualifiedRoot, winners []*nanotype.Block)
	SendVote(ch *Channel, vote nanotype.Vote)
	SendBlock(ch *Channel, block *nanotype.Block)
}

type confirmReqEntry struct {
	root   nanotype.QualifiedRoot
	winner *nanotype.Block
}

// Solicitor batches confirm-req sends for every active election
// toward the current representative fanout, grouping multiple roots
// per wire message up to batchCap — the same accumulate/flush-on-cap-
// or-timer/fan-out-to-the-peer-set shape as eth/fetcher's announcement
// batching, applied to confirm requests instead of block
// announcements.
type Solicitor struct {
	registry *Registry
	sender   RequestSender
	batchCap int
	interval time.Duration

	mu      sync.Mutex
	pending []confirmReqEntry

	stop chan struct{}
	done chan struct{}
}

// NewSolicitor builds a Solicitor batching up to batchCap confirm
// requests per flush, on a cap-triggered or interval-triggered
// cadence. It satisfies internal/election.Solicitor.
func NewSolicitor(registry *Registry, sender RequestSender, batchCap int, interval time.Duration) *Solicitor {
	return &Solicitor{
		registry: registry,
		sender:   sender,
		batchCap: batchCap,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Solicitor) Start() { go s.loop() }

func (s *Solicitor) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Solicitor) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// SendConfirmReq buffers one election's confirm-req, flushing
// immediately once the batch reaches batchCap.
func (s *Solicitor) SendConfirmReq(root nanotype.QualifiedRoot, winner *nanotype.Block) {
	s.mu.Lock()
	s.pending = append(s.pending, confirmReqEntry{root: root, winner: winner})
	full := len(s.pending) >= s.batchCap
	s.mu.Unlock()
	if full {
		s.Flush()
	}
}

// Flush sends the accumulated confirm-req batch, one wire message per
// fanout channel, and clears the buffer.
func (s *Solicitor) Flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	roots := make([]nanotype.QualifiedRoot, len(batch))
	winners := make([]*nanotype.Block, len(batch))
	for i, e := range batch {
		roots[i], winners[i] = e.root, e.winner
	}
	for _, ch := range s.registry.RepresentativeFanout() {
		s.sender.SendConfirmReqBatch(ch, roots, winners)
	}
}

// BroadcastVote fans a signed vote out to the representative set.
func (s *Solicitor) BroadcastVote(root nanotype.QualifiedRoot, vote nanotype.Vote) {
	for _, ch := range s.registry.RepresentativeFanout() {
		s.sender.SendVote(ch, vote)
	}
}

// BroadcastBlock re-floods a winning block after a winner change.
func (s *Solicitor) BroadcastBlock(root nanotype.QualifiedRoot, block *nanotype.Block) {
	for _, ch := range s.registry.RepresentativeFanout() {
		s.sender.SendBlock(ch, block)
	}
}

var _ election.Solicitor = (*Solicitor)(nil)
