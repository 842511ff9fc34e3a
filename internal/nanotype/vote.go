package nanotype

// FinalTimestamp is the sentinel timestamp value that marks a vote as
// final — a representative's irrevocable commitment to a hash on a
// given root.
const FinalTimestamp uint64 = ^uint64(0)

// Vote is a representative's signed statement about one or more block
// hashes sharing a root.
type Vote struct {
	VotingAccount Account
	Timestamp     uint64 // combined timestamp-and-duration field
	Hashes        []Hash
	Signature     [64]byte
}

// IsFinal reports whether this vote is a final vote.
func (v Vote) IsFinal() bool { return v.Timestamp == FinalTimestamp }

// Supersedes reports whether v should replace the representative's
// previously recorded vote with timestamp `prev` for the same root:
// a strictly higher timestamp wins.
func (v Vote) Supersedes(prev uint64) bool { return v.Timestamp > prev }
