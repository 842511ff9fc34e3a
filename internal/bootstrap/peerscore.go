package bootstrap

import (
	"sort"
	"sync"
	"time"

	"github.com/gonano/nanod/internal/netinfo"
)

// peerScore is one channel's outstanding/success/failure counters. The
// shape borrows from go-ethereum's peerConnection/peerThroughputSort
// pattern: a small per-peer struct with a scalar metric, sorted to
// pick the best candidate, generalized here from a single throughput
// float to three request-outcome counters.
type peerScore struct {
	outstanding int
	successes   int
	failures    int
	lastActive  time.Time
}

// PeerScores tracks per-channel scores and selects which channel a
// scheduler should use next: one whose outstanding request count is
// below channel_limit.
type PeerScores struct {
	channelLimit int

	mu     sync.Mutex
	scores map[netinfo.PeerID]*peerScore
}

func NewPeerScores(channelLimit int) *PeerScores {
	return &PeerScores{channelLimit: channelLimit, scores: make(map[netinfo.PeerID]*peerScore)}
}

func (p *PeerScores) scoreLocked(id netinfo.PeerID) *peerScore {
	s, ok := p.scores[id]
	if !ok {
		s = &peerScore{}
		p.scores[id] = s
	}
	return s
}

// Channel picks, among candidates, the channel with the fewest
// outstanding requests under channelLimit, preferring the higher
// count of successful replies on ties; it marks the winner as having one more
// outstanding request.
func (p *PeerScores) Channel(candidates []*netinfo.Channel) (*netinfo.Channel, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	type scored struct {
		ch    *netinfo.Channel
		score *peerScore
	}
	eligible := make([]scored, 0, len(candidates))
	for _, ch := range candidates {
		s := p.scoreLocked(ch.ID)
		if s.outstanding < p.channelLimit {
			eligible = append(eligible, scored{ch, s})
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].score.outstanding != eligible[j].score.outstanding {
			return eligible[i].score.outstanding < eligible[j].score.outstanding
		}
		return eligible[i].score.successes > eligible[j].score.successes
	})
	best := eligible[0]
	best.score.outstanding++
	return best.ch, true
}

// ReceivedMessage records a successful reply from id.
func (p *PeerScores) ReceivedMessage(id netinfo.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.scoreLocked(id)
	if s.outstanding > 0 {
		s.outstanding--
	}
	s.successes++
	s.lastActive = time.Now()
}

// Failed records a failed or timed-out request against id.
func (p *PeerScores) Failed(id netinfo.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.scoreLocked(id)
	if s.outstanding > 0 {
		s.outstanding--
	}
	s.failures++
	s.lastActive = time.Now()
}

// Timeout ages out idle scores.
func (p *PeerScores) Timeout(maxAge time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.scores {
		if s.outstanding == 0 && !s.lastActive.IsZero() && now.Sub(s.lastActive) > maxAge {
			delete(p.scores, id)
		}
	}
}
