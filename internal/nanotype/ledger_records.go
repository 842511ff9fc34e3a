package nanotype

// PendingKey identifies one pending-receive record: the destination
// account and the hash of the send block that created it.
type PendingKey struct {
	Destination Account
	SenderHash  Hash
}

// PendingEntry is the value side of a pending-receive record.
type PendingEntry struct {
	Source Account
	Amount Amount
	Epoch  Epoch
}

// ConfirmationHeight is the highest cemented height for an account,
// monotonically non-decreasing.
type ConfirmationHeight struct {
	Height   uint64
	Frontier Hash
}

// AccountInfo is the ledger's per-account chain head record.
type AccountInfo struct {
	Head           Hash
	Representative Account
	OpenBlock      Hash
	Balance        Amount
	ModifiedUnix   int64
	BlockCount     uint64
	Epoch          Epoch
}
