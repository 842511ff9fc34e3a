package netinfo

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gonano/nanod/internal/nanotype"
)

func acct(b byte) nanotype.Account {
	var a nanotype.Account
	a[0] = b
	return a
}

func noWeight(nanotype.Account) nanotype.Amount { return nanotype.Amount{} }

func TestTryAddEnforcesSubnetCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPeersPerSubnet = 2
	r := New(cfg, noWeight)

	for i, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		ch := &Channel{ID: PeerID(ip), Remote: netip.MustParseAddr(ip), ConnectedAt: time.Now()}
		require.True(t, r.TryAdd(ch), "peer %d", i)
	}
	third := &Channel{ID: "10.0.0.3", Remote: netip.MustParseAddr("10.0.0.3"), ConnectedAt: time.Now()}
	require.False(t, r.TryAdd(third))
	require.Equal(t, 2, r.Len())
}

func TestTryAddEnforcesTotalCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPeersPerSubnet = 100
	cfg.MaxPeersTotal = 1
	r := New(cfg, noWeight)

	require.True(t, r.TryAdd(&Channel{ID: "a", Remote: netip.MustParseAddr("10.0.0.1")}))
	require.False(t, r.TryAdd(&Channel{ID: "b", Remote: netip.MustParseAddr("10.0.0.2")}))
}

func TestRemoveFreesSubnetSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPeersPerSubnet = 1
	r := New(cfg, noWeight)

	require.True(t, r.TryAdd(&Channel{ID: "a", Remote: netip.MustParseAddr("10.0.0.1")}))
	require.False(t, r.TryAdd(&Channel{ID: "b", Remote: netip.MustParseAddr("10.0.0.2")}))
	r.Remove("a")
	require.True(t, r.TryAdd(&Channel{ID: "b", Remote: netip.MustParseAddr("10.0.0.2")}))
}

func TestRepresentativeFanoutSortsByWeightAndCaps(t *testing.T) {
	weights := map[nanotype.Account]uint64{acct(1): 10, acct(2): 100, acct(3): 50}
	weightOf := func(a nanotype.Account) nanotype.Amount { return nanotype.AmountFromUint64(weights[a]) }
	cfg := DefaultConfig()
	cfg.MaxPeersPerSubnet = 100
	cfg.FanoutSize = 2
	r := New(cfg, weightOf)

	r.TryAdd(&Channel{ID: "p1", Remote: netip.MustParseAddr("10.0.0.1"), Account: acct(1)})
	r.TryAdd(&Channel{ID: "p2", Remote: netip.MustParseAddr("10.0.0.2"), Account: acct(2)})
	r.TryAdd(&Channel{ID: "p3", Remote: netip.MustParseAddr("10.0.0.3"), Account: acct(3)})
	r.TryAdd(&Channel{ID: "p4", Remote: netip.MustParseAddr("10.0.0.4")}) // non-representative, excluded

	fanout := r.RepresentativeFanout()
	require.Len(t, fanout, 2)
	require.Equal(t, acct(2), fanout[0].Account)
	require.Equal(t, acct(3), fanout[1].Account)
}

type recordingSender struct {
	batches [][]nanotype.QualifiedRoot
}

func (s *recordingSender) SendConfirmReqBatch(ch *Channel, roots []nanotype.QualifiedRoot, winners []*nanotype.Block) {
	s.batches = append(s.batches, roots)
}
func (s *recordingSender) SendVote(ch *Channel, vote nanotype.Vote)   {}
func (s *recordingSender) SendBlock(ch *Channel, block *nanotype.Block) {}

func TestSolicitorFlushesOnBatchCap(t *testing.T) {
	weightOf := func(a nanotype.Account) nanotype.Amount { return nanotype.AmountFromUint64(1) }
	r := New(DefaultConfig(), weightOf)
	r.TryAdd(&Channel{ID: "p1", Remote: netip.MustParseAddr("10.0.0.1"), Account: acct(1)})

	sender := &recordingSender{}
	sol := NewSolicitor(r, sender, 2, time.Hour)

	sol.SendConfirmReq(nanotype.QualifiedRoot{}, nil)
	require.Empty(t, sender.batches)
	sol.SendConfirmReq(nanotype.QualifiedRoot{}, nil)
	require.Len(t, sender.batches, 1)
	require.Len(t, sender.batches[0], 2)
}
