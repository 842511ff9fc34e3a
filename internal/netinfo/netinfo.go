// Package netinfo is the network info / channel registry: it tracks
// which peers currently have a live channel, enforces per-subnet
// admission ceilings, and exposes the representative fanout set the
// confirmation solicitor and vote broadcast both need.
package netinfo

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/gonano/nanod/internal/nanotype"
)

// PeerID identifies one live channel, opaque to this package — the
// transport layer supplies it.
type PeerID string

// Channel is one live peer connection, the unit netinfo admits,
// tracks and evicts.
type Channel struct {
	ID          PeerID
	Remote      netip.Addr
	Account     nanotype.Account // zero if the peer has not announced as a representative
	ConnectedAt time.Time
}

func (c *Channel) isRepresentative() bool { return !c.Account.IsZero() }

// Config holds netinfo's admission and fanout tunables.
type Config struct {
	MaxPeersTotal     int `toml:"max_peers_total"`
	MaxPeersPerSubnet int `toml:"max_peers_per_subnet"`
	SubnetPrefixV4    int `toml:"subnet_prefix_v4"` // CIDR prefix length bucketing IPv4 peers, default /24
	SubnetPrefixV6    int `toml:"subnet_prefix_v6"` // default /64
	FanoutSize        int `toml:"fanout_size"`      // representative fanout set size for confirm-req/vote broadcast
}

// DefaultConfig mirrors the familiar p2p dial-ratio style of default,
// generalized to this registry's admission knobs.
func DefaultConfig() Config {
	return Config{
		MaxPeersTotal:     256,
		MaxPeersPerSubnet: 4,
		SubnetPrefixV4:    24,
		SubnetPrefixV6:    64,
		FanoutSize:        32,
	}
}

// Registry is the live channel set.
type Registry struct {
	cfg      Config
	weightOf func(nanotype.Account) nanotype.Amount

	mu       sync.RWMutex
	channels map[PeerID]*Channel
	bySubnet map[string]mapset.Set[PeerID]
}

func New(cfg Config, weightOf func(nanotype.Account) nanotype.Amount) *Registry {
	return &Registry{
		cfg:      cfg,
		weightOf: weightOf,
		channels: make(map[PeerID]*Channel),
		bySubnet: make(map[string]mapset.Set[PeerID]),
	}
}

// subnetKey buckets addr to its admission-control subnet, IPv4 /24 or
// IPv6 /64 by default.
func (r *Registry) subnetKey(addr netip.Addr) string {
	prefixLen := r.cfg.SubnetPrefixV4
	if addr.Is6() && !addr.Is4In6() {
		prefixLen = r.cfg.SubnetPrefixV6
	}
	p, err := addr.Prefix(prefixLen)
	if err != nil {
		return addr.String()
	}
	return p.String()
}

// TryAdd admits ch if doing so stays within both the total and
// per-subnet ceilings; returns false (and does not admit) otherwise.
// A channel already registered under its ID is replaced in place.
func (r *Registry) TryAdd(ch *Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.channels[ch.ID]; exists {
		r.removeLocked(ch.ID)
	}

	key := r.subnetKey(ch.Remote)
	subnet := r.bySubnet[key]
	if subnet != nil && subnet.Cardinality() >= r.cfg.MaxPeersPerSubnet {
		return false
	}
	if r.cfg.MaxPeersTotal > 0 && len(r.channels) >= r.cfg.MaxPeersTotal {
		return false
	}

	if subnet == nil {
		subnet = mapset.NewSet[PeerID]()
		r.bySubnet[key] = subnet
	}
	subnet.Add(ch.ID)
	r.channels[ch.ID] = ch
	return true
}

// Remove drops id's channel, if present.
func (r *Registry) Remove(id PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id PeerID) {
	ch, ok := r.channels[id]
	if !ok {
		return
	}
	delete(r.channels, id)
	key := r.subnetKey(ch.Remote)
	if subnet, ok := r.bySubnet[key]; ok {
		subnet.Remove(id)
		if subnet.Cardinality() == 0 {
			delete(r.bySubnet, key)
		}
	}
}

func (r *Registry) Get(id PeerID) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	return ch, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// All returns a snapshot of every live channel.
func (r *Registry) All() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// RepresentativeFanout returns up to cfg.FanoutSize channels whose
// peer has announced a representative account, sorted by descending
// delegated weight — the set confirm-req and vote broadcast target,
// matching how a fetcher picks which peers to announce new blocks to
// rather than flooding every connection.
func (r *Registry) RepresentativeFanout() []*Channel {
	r.mu.RLock()
	reps := make([]*Channel, 0)
	for _, ch := range r.channels {
		if ch.isRepresentative() {
			reps = append(reps, ch)
		}
	}
	r.mu.RUnlock()

	sort.Slice(reps, func(i, j int) bool {
		return r.weightOf(reps[i].Account).Cmp(r.weightOf(reps[j].Account)) > 0
	})
	if len(reps) > r.cfg.FanoutSize {
		reps = reps[:r.cfg.FanoutSize]
	}
	return reps
}
