package election

import (
	"testing"
	"time"

	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/votecache"
	"github.com/gonano/nanod/internal/voterouter"
	"github.com/stretchr/testify/require"
)

func acct(b byte) nanotype.Account {
	var a nanotype.Account
	a[0] = b
	return a
}

func testBlock(account nanotype.Account, previous nanotype.Hash, balance uint64) *nanotype.Block {
	return nanotype.NewBlock(nanotype.BlockTypeState, previous, account, account,
		nanotype.AmountFromUint64(balance), nanotype.Link{}, [64]byte{1}, 0)
}

func newTestElection(quorum uint64, weights map[nanotype.Account]uint64) *Election {
	block := testBlock(acct(1), nanotype.Hash{}, 100)
	return newElection(1, block, nanotype.BehaviorPriority,
		func() nanotype.Amount { return nanotype.AmountFromUint64(quorum) },
		func(a nanotype.Account) nanotype.Amount { return nanotype.AmountFromUint64(weights[a]) },
		time.Now())
}

func TestVoteReachesQuorum(t *testing.T) {
	el := newTestElection(100, map[nanotype.Account]uint64{acct(2): 60, acct(3): 50})
	hash := el.Winner().Hash()

	disp := el.Vote(acct(2), 1, hash, voterouter.VoteSourceLive)
	require.Equal(t, votecache.DispositionVote, disp)
	require.Equal(t, nanotype.StatePassive, el.State())

	disp = el.Vote(acct(3), 1, hash, voterouter.VoteSourceLive)
	require.Equal(t, votecache.DispositionVote, disp)
	require.Equal(t, nanotype.StateConfirmed, el.State())
}

func TestFinalVoteFastPathConfirms(t *testing.T) {
	el := newTestElection(100, map[nanotype.Account]uint64{acct(2): 100})
	hash := el.Winner().Hash()
	disp := el.Vote(acct(2), nanotype.FinalTimestamp, hash, voterouter.VoteSourceLive)
	require.Equal(t, votecache.DispositionVote, disp)
	require.Equal(t, nanotype.StateConfirmed, el.State())
}

func TestVoteForUnknownHashIsIndeterminate(t *testing.T) {
	el := newTestElection(1000, nil)
	disp := el.Vote(acct(2), 1, nanotype.Hash{0xff}, voterouter.VoteSourceLive)
	require.Equal(t, votecache.DispositionIndeterminate, disp)
}

func TestStaleVoteFromSameRepRejected(t *testing.T) {
	el := newTestElection(1000, map[nanotype.Account]uint64{acct(2): 10})
	hash := el.Winner().Hash()
	require.Equal(t, votecache.DispositionVote, el.Vote(acct(2), 5, hash, voterouter.VoteSourceLive))
	require.Equal(t, votecache.DispositionAlreadyApplied, el.Vote(acct(2), 3, hash, voterouter.VoteSourceLive))
	require.Equal(t, votecache.DispositionAlreadyApplied, el.Vote(acct(2), 5, hash, voterouter.VoteSourceLive))
}

func TestPublishAddsCandidateAndTracksWinnerChange(t *testing.T) {
	el := newTestElection(1000, map[nanotype.Account]uint64{acct(2): 50})
	original := el.Winner().Hash()
	el.Vote(acct(2), 1, original, voterouter.VoteSourceLive) // give the original a positive tally first

	altBlock := testBlock(acct(1), nanotype.Hash{}, 200) // same root, different balance => different hash
	added, changed := el.Publish(altBlock, nil)
	require.True(t, added)
	require.False(t, changed) // alt starts at zero tally, original's positive tally still wins

	el.Vote(acct(2), 2, altBlock.Hash(), voterouter.VoteSourceLive)
	require.Equal(t, altBlock.Hash(), el.Winner().Hash())
	require.NotEqual(t, original, el.Winner().Hash())
}

func TestPublishEleventhCandidateGoesThroughReplaceByWeight(t *testing.T) {
	el := newTestElection(100000, map[nanotype.Account]uint64{acct(9): 5})
	// Fill to 10 candidates total (1 already present from construction).
	for i := byte(2); i <= 10; i++ {
		b := testBlock(acct(1), nanotype.Hash{}, uint64(i)*10)
		added, _ := el.Publish(b, nil)
		require.True(t, added)
	}
	require.Equal(t, 10, len(el.lastBlocks))

	eleventh := testBlock(acct(1), nanotype.Hash{}, 999)
	// The newcomer has no cache tally, so neither eviction rule of
	// replaceByWeightLocked applies and the 11th is refused.
	added, _ := el.Publish(eleventh, func(nanotype.Hash) (nanotype.Amount, bool) { return nanotype.Amount{}, false })
	require.False(t, added)
	require.Equal(t, 10, len(el.lastBlocks))
}

func TestCancelIsTerminal(t *testing.T) {
	el := newTestElection(1000, nil)
	el.Cancel()
	require.Equal(t, nanotype.StateCancelled, el.State())
	require.True(t, el.State().IsTerminal())
	disp := el.Vote(acct(2), 1, el.Winner().Hash(), voterouter.VoteSourceLive)
	require.Equal(t, votecache.DispositionAlreadyApplied, disp)
}

func TestTickPromotesPassiveToActiveAfterBaseLatency(t *testing.T) {
	el := newTestElection(1000, nil)
	cfg := DefaultConfig()
	cfg.BaseLatency = time.Millisecond
	el.startedAt = time.Now().Add(-10 * time.Millisecond)
	res := el.tick(time.Now(), cfg)
	require.Equal(t, nanotype.StateActive, res.state)
}

func TestTickExpiresUnconfirmedAfterTTL(t *testing.T) {
	el := newTestElection(1000, nil)
	cfg := DefaultConfig()
	cfg.BaseLatency = time.Millisecond
	cfg.TimeToLive = 5 * time.Millisecond
	el.state = nanotype.StateActive
	el.startedAt = time.Now().Add(-time.Second)
	res := el.tick(time.Now(), cfg)
	require.Equal(t, nanotype.StateExpiredUnconfirmed, res.state)
	require.True(t, res.expiredJustNow)
}

func TestConfirmedGoesToExpiredConfirmedNextLoop(t *testing.T) {
	el := newTestElection(1000, nil)
	el.state = nanotype.StateConfirmed
	cfg := DefaultConfig()
	res := el.tick(time.Now(), cfg)
	require.Equal(t, nanotype.StateExpiredConfirmed, res.state)
	require.True(t, res.expiredJustNow)
}
