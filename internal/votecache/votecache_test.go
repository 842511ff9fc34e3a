package votecache

import (
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

func hash(b byte) nanotype.Hash {
	var h nanotype.Hash
	h[0] = b
	return h
}

func TestInsertAccumulatesTally(t *testing.T) {
	c := New(1024, 8, time.Hour)

	v1 := nanotype.Vote{VotingAccount: acct(1), Timestamp: 10, Hashes: []nanotype.Hash{hash(1)}}
	v2 := nanotype.Vote{VotingAccount: acct(2), Timestamp: 10, Hashes: []nanotype.Hash{hash(1)}}

	c.Insert(v1, nanotype.AmountFromUint64(100), nil)
	c.Insert(v2, nanotype.AmountFromUint64(50), nil)

	top := c.Top(nanotype.AmountFromUint64(0))
	require.Len(t, top, 1)
	require.Equal(t, hash(1), top[0].Hash)
	require.Equal(t, uint64(150), top[0].Tally.Uint64())
}

func TestInsertFiltersByDisposition(t *testing.T) {
	c := New(1024, 8, time.Hour)
	v := nanotype.Vote{VotingAccount: acct(1), Timestamp: 10, Hashes: []nanotype.Hash{hash(1), hash(2)}}
	results := map[nanotype.Hash]Disposition{
		hash(1): DispositionVote,
		hash(2): DispositionAlreadyApplied,
	}
	c.Insert(v, nanotype.AmountFromUint64(10), results)
	require.Equal(t, 1, c.Len())
	_, ok := c.Find(hash(2))
	require.False(t, ok)
}

func TestInsertSupersedesOlderVoteFromSameRep(t *testing.T) {
	c := New(1024, 8, time.Hour)
	rep := acct(1)
	c.Insert(nanotype.Vote{VotingAccount: rep, Timestamp: 10, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(100), nil)
	c.Insert(nanotype.Vote{VotingAccount: rep, Timestamp: 20, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(200), nil)

	entry, ok := c.Find(hash(1))
	require.True(t, ok)
	require.Equal(t, uint64(200), entry.Tally.Uint64())
	require.Equal(t, 1, entry.Voters)
}

func TestInsertIgnoresStaleVoteFromSameRep(t *testing.T) {
	c := New(1024, 8, time.Hour)
	rep := acct(1)
	c.Insert(nanotype.Vote{VotingAccount: rep, Timestamp: 20, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(200), nil)
	c.Insert(nanotype.Vote{VotingAccount: rep, Timestamp: 10, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(999), nil)

	entry, ok := c.Find(hash(1))
	require.True(t, ok)
	require.Equal(t, uint64(200), entry.Tally.Uint64())
}

func TestFinalVoteCountsTowardFinalTally(t *testing.T) {
	c := New(1024, 8, time.Hour)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: nanotype.FinalTimestamp, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(100), nil)

	entry, ok := c.Find(hash(1))
	require.True(t, ok)
	require.Equal(t, uint64(100), entry.FinalTally.Uint64())
	require.Equal(t, uint64(100), entry.Tally.Uint64())
}

func TestMaxVotersEvictsLowestWeight(t *testing.T) {
	c := New(1024, 2, time.Hour)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(10), nil)
	c.Insert(nanotype.Vote{VotingAccount: acct(2), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(20), nil)

	// A third, heavier rep should evict the 10-weight voter.
	c.Insert(nanotype.Vote{VotingAccount: acct(3), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(30), nil)
	entry, ok := c.Find(hash(1))
	require.True(t, ok)
	require.Equal(t, 2, entry.Voters)
	require.Equal(t, uint64(50), entry.Tally.Uint64())

	// A lighter-than-minimum rep should be rejected, leaving tally unchanged.
	c.Insert(nanotype.Vote{VotingAccount: acct(4), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(5), nil)
	entry, _ = c.Find(hash(1))
	require.Equal(t, uint64(50), entry.Tally.Uint64())
}

func TestMaxSizeEvictsOldestEntry(t *testing.T) {
	c := New(2, 8, time.Hour)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(1), nil)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(2)}}, nanotype.AmountFromUint64(1), nil)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(3)}}, nanotype.AmountFromUint64(1), nil)

	require.Equal(t, 2, c.Len())
	_, ok := c.Find(hash(1))
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Find(hash(3))
	require.True(t, ok)
}

func TestTopOrdersByFinalThenTally(t *testing.T) {
	c := New(1024, 8, time.Hour)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(500), nil)
	c.Insert(nanotype.Vote{VotingAccount: acct(2), Timestamp: nanotype.FinalTimestamp, Hashes: []nanotype.Hash{hash(2)}}, nanotype.AmountFromUint64(50), nil)

	top := c.Top(nanotype.AmountFromUint64(0))
	require.Len(t, top, 2)
	require.Equal(t, hash(2), top[0].Hash, "final-tally entry should rank first despite lower raw tally")
}

func TestTopRespectsMinTally(t *testing.T) {
	c := New(1024, 8, time.Hour)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(10), nil)
	require.Empty(t, c.Top(nanotype.AmountFromUint64(100)))
}

func TestCleanupPurgesStaleEntriesOnTop(t *testing.T) {
	c := New(1024, 8, 100*time.Millisecond)
	now := time.Now()
	c.nowFn = func() time.Time { return now }

	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(10), nil)
	require.Equal(t, 1, c.Len())

	now = now.Add(200 * time.Millisecond)
	c.Top(nanotype.AmountFromUint64(0))
	require.Equal(t, 0, c.Len())
}

func TestErase(t *testing.T) {
	c := New(1024, 8, time.Hour)
	c.Insert(nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{hash(1)}}, nanotype.AmountFromUint64(10), nil)
	c.Erase(hash(1))
	_, ok := c.Find(hash(1))
	require.False(t, ok)
}
