package voterouter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/votecache"
)

type fakeElection struct {
	disposition votecache.Disposition
	votes       []nanotype.Account
}

func (f *fakeElection) Vote(rep nanotype.Account, timestamp uint64, hash nanotype.Hash, source VoteSource) votecache.Disposition {
	f.votes = append(f.votes, rep)
	return f.disposition
}

func h(b byte) nanotype.Hash {
	var x nanotype.Hash
	x[0] = b
	return x
}

func acct(b byte) nanotype.Account {
	var a nanotype.Account
	a[0] = b
	return a
}

func TestRouteDispatchesToConnectedElection(t *testing.T) {
	r := New()
	e := &fakeElection{disposition: votecache.DispositionVote}
	r.Connect(h(1), e)

	vote := nanotype.Vote{VotingAccount: acct(9), Timestamp: 5, Hashes: []nanotype.Hash{h(1)}}
	results := r.Route(vote, nanotype.AmountFromUint64(100), VoteSourceLive)

	require.Equal(t, votecache.DispositionVote, results[h(1)])
	require.Len(t, e.votes, 1)
	require.Equal(t, acct(9), e.votes[0])
}

func TestRouteReportsIndeterminateForUnconnectedHash(t *testing.T) {
	r := New()
	vote := nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{h(7)}}
	results := r.Route(vote, nanotype.AmountFromUint64(1), VoteSourceLive)
	require.Equal(t, votecache.DispositionIndeterminate, results[h(7)])
}

func TestDisconnectRemovesHash(t *testing.T) {
	r := New()
	e := &fakeElection{disposition: votecache.DispositionVote}
	r.Connect(h(1), e)
	r.Disconnect(h(1))

	vote := nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{h(1)}}
	results := r.Route(vote, nanotype.AmountFromUint64(1), VoteSourceLive)
	require.Equal(t, votecache.DispositionIndeterminate, results[h(1)])
}

func TestDisconnectElectionRemovesAllItsHashes(t *testing.T) {
	r := New()
	e := &fakeElection{disposition: votecache.DispositionVote}
	other := &fakeElection{disposition: votecache.DispositionVote}
	r.Connect(h(1), e)
	r.Connect(h(2), e)
	r.Connect(h(3), other)

	r.DisconnectElection(e)
	require.Equal(t, 1, r.Len())

	vote := nanotype.Vote{VotingAccount: acct(1), Timestamp: 1, Hashes: []nanotype.Hash{h(1), h(2), h(3)}}
	results := r.Route(vote, nanotype.AmountFromUint64(1), VoteSourceLive)
	require.Equal(t, votecache.DispositionIndeterminate, results[h(1)])
	require.Equal(t, votecache.DispositionIndeterminate, results[h(2)])
	require.Equal(t, votecache.DispositionVote, results[h(3)])
}

func TestRouteHandlesMultipleHashesAcrossElections(t *testing.T) {
	r := New()
	vote1 := &fakeElection{disposition: votecache.DispositionVote}
	vote2 := &fakeElection{disposition: votecache.DispositionAlreadyApplied}
	r.Connect(h(1), vote1)
	r.Connect(h(2), vote2)

	vote := nanotype.Vote{VotingAccount: acct(5), Timestamp: 2, Hashes: []nanotype.Hash{h(1), h(2), h(3)}}
	results := r.Route(vote, nanotype.AmountFromUint64(50), VoteSourceLive)

	require.Equal(t, votecache.DispositionVote, results[h(1)])
	require.Equal(t, votecache.DispositionAlreadyApplied, results[h(2)])
	require.Equal(t, votecache.DispositionIndeterminate, results[h(3)])
}
