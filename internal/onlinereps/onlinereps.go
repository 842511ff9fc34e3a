// Package onlinereps tracks the set of representatives seen voting
// within a trailing window and derives the trended online weight that
// Active Elections' quorum check is a function of. Modeled on
// eth/gasprice's trailing-sample suggested-tip estimator: both
// maintain a bounded ring of samples taken on a fixed cadence and
// reduce it to one representative trend value, here a weight instead
// of a gas price.
package onlinereps

import (
	"sync"
	"time"

	"github.com/gonano/nanod/internal/nanotype"
)

// Config holds the online-weight tracker's tunables: a trailing
// window, a sampling cadence, the floor below which trended weight
// never drops, and the quorum percentage applied to it.
type Config struct {
	TrendWindow     time.Duration    `toml:"trend_window"`    // default 2 weeks
	SampleInterval  time.Duration    `toml:"sample_interval"` // default 1 hour
	OnlineWeightMin nanotype.Amount  `toml:"-"`                // not TOML-representable; set programmatically
	QuorumPercent   int              `toml:"quorum_percent"`  // default 67
}

func DefaultConfig() Config {
	return Config{
		TrendWindow:     14 * 24 * time.Hour,
		SampleInterval:  time.Hour,
		OnlineWeightMin: nanotype.AmountFromUint64(0),
		QuorumPercent:   67,
	}
}

type sample struct {
	at     time.Time
	weight nanotype.Amount
}

// Tracker observes which representatives vote, maintains a trailing
// weight-over-time sample window, and exposes the quorum delta the
// election state machine compares tallies against.
type Tracker struct {
	cfg Config

	weightOf func(nanotype.Account) nanotype.Amount

	mu       sync.Mutex
	seen     map[nanotype.Account]time.Time
	samples  []sample
	lastSample time.Time

	nowFn func() time.Time
}

// New builds a Tracker. weightOf resolves a representative's current
// delegated weight, normally internal/ledger.Store.Weight.
func New(cfg Config, weightOf func(nanotype.Account) nanotype.Amount) *Tracker {
	return &Tracker{
		cfg:      cfg,
		weightOf: weightOf,
		seen:     make(map[nanotype.Account]time.Time),
		nowFn:    time.Now,
	}
}

// Observe records that rep was seen voting just now, and — if the
// sampling cadence has elapsed — takes a new trend sample of total
// online weight.
func (t *Tracker) Observe(rep nanotype.Account) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.nowFn()
	t.seen[rep] = now
	if now.Sub(t.lastSample) >= t.cfg.SampleInterval {
		t.sampleLocked(now)
	}
}

func (t *Tracker) sampleLocked(now time.Time) {
	t.lastSample = now
	cutoff := now.Add(-t.cfg.TrendWindow)
	var total nanotype.Amount
	for rep, last := range t.seen {
		if last.Before(cutoff) {
			delete(t.seen, rep)
			continue
		}
		total = total.Add(t.weightOf(rep))
	}
	t.samples = append(t.samples, sample{at: now, weight: total})
	// Drop samples older than the trend window; the ring only needs
	// to span TrendWindow, never more.
	i := 0
	for ; i < len(t.samples); i++ {
		if !t.samples[i].at.Before(cutoff) {
			break
		}
	}
	t.samples = t.samples[i:]
}

// TrendedWeight returns the maximum total online weight observed
// across the retained samples, floored at OnlineWeightMin — the same
// "never trust a single low sample" shape eth/gasprice applies to its
// own trailing tip suggestions.
func (t *Tracker) TrendedWeight() nanotype.Amount {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := t.cfg.OnlineWeightMin
	for _, s := range t.samples {
		if s.weight.Cmp(best) > 0 {
			best = s.weight
		}
	}
	return best
}

// QuorumDelta is the weight threshold an election's winner must meet
// to confirm: trended_weight * quorum_percent / 100.
func (t *Tracker) QuorumDelta() nanotype.Amount {
	trended := t.TrendedWeight()
	return trended.MulUint64(uint64(t.cfg.QuorumPercent)).DivUint64(100)
}

// OnlineCount reports how many distinct representatives have been
// observed within the trend window, for diagnostics/metrics.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
