package nanotype

import "golang.org/x/crypto/blake2b"

// BlockType distinguishes the legacy block formats from the unified
// state block.
type BlockType uint8

const (
	BlockTypeInvalid BlockType = iota
	BlockTypeLegacySend
	BlockTypeLegacyReceive
	BlockTypeLegacyOpen
	BlockTypeLegacyChange
	BlockTypeState
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeLegacySend:
		return "legacy_send"
	case BlockTypeLegacyReceive:
		return "legacy_receive"
	case BlockTypeLegacyOpen:
		return "legacy_open"
	case BlockTypeLegacyChange:
		return "legacy_change"
	case BlockTypeState:
		return "state"
	default:
		return "invalid"
	}
}

// Epoch is the account epoch marker a state block's link may upgrade.
type Epoch uint8

const (
	EpochInvalid Epoch = iota
	Epoch0
	Epoch1
	Epoch2
	epochMaxSentinel // internal sentinel, never a real account epoch
)

// MaxEpoch is the "epoch < MAX" ceiling the block processor's
// Progress/send detection rule checks against.
const MaxEpoch = epochMaxSentinel

// BlockDetails packs {epoch, is_send, is_receive, is_epoch} into a
// single sideband byte.
type BlockDetails struct {
	Epoch      Epoch
	IsSend     bool
	IsReceive  bool
	IsEpoch    bool
}

func (d BlockDetails) Pack() byte {
	b := byte(d.Epoch) & 0x0f
	if d.IsSend {
		b |= 1 << 4
	}
	if d.IsReceive {
		b |= 1 << 5
	}
	if d.IsEpoch {
		b |= 1 << 6
	}
	return b
}

func UnpackBlockDetails(b byte) BlockDetails {
	return BlockDetails{
		Epoch:     Epoch(b & 0x0f),
		IsSend:    b&(1<<4) != 0,
		IsReceive: b&(1<<5) != 0,
		IsEpoch:   b&(1<<6) != 0,
	}
}

// Block is the immutable, hash-identified unit of the account chain.
// Equality is hash equality; callers must not mutate a Block after
// construction, only ever build a new one.
type Block struct {
	Type           BlockType
	Previous       Hash
	Account        Account
	Representative Account
	Balance        Amount
	Link           Link
	Signature      [64]byte
	WorkNonce      uint64

	hash      Hash
	hashValid bool
}

// NewBlock builds a Block and eagerly computes its hash; constructors
// elsewhere in the module always go through this so every Block in
// memory carries a valid cached hash.
func NewBlock(typ BlockType, previous Hash, account, representative Account, balance Amount, link Link, sig [64]byte, work uint64) *Block {
	b := &Block{
		Type:           typ,
		Previous:       previous,
		Account:        account,
		Representative: representative,
		Balance:        balance,
		Link:           link,
		Signature:      sig,
		WorkNonce:      work,
	}
	b.hash = computeHash(b)
	b.hashValid = true
	return b
}

// Hash returns the block's cryptographic digest.
func (b *Block) Hash() Hash {
	if !b.hashValid {
		b.hash = computeHash(b)
		b.hashValid = true
	}
	return b.hash
}

// QualifiedRoot returns the (account, previous) pair uniquely
// identifying the chain position this block claims to occupy — forks
// share a qualified root.
func (b *Block) QualifiedRoot() QualifiedRoot {
	return QualifiedRoot{Account: b.Account, Previous: b.Previous}
}

// QualifiedRoot is the election identity key.
type QualifiedRoot struct {
	Account  Account
	Previous Hash
}

// computeHash derives the block digest via blake2b-256 over a
// canonical field encoding, using the block type as a domain-separating
// preamble so legacy and state blocks with coincidentally identical
// field bytes never collide. This is an internally-consistent digest,
// not a byte-exact reproduction of any specific wire protocol.
func computeHash(b *Block) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // blake2b.New256 only errors on a non-nil key of wrong size
	}
	h.Write([]byte{byte(b.Type)})
	h.Write(b.Account[:])
	h.Write(b.Previous[:])
	h.Write(b.Representative[:])
	bal := b.Balance.Bytes16()
	h.Write(bal[:])
	h.Write(b.Link[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Sideband is the derived metadata the ledger attaches to a block at
// insertion time.
type Sideband struct {
	Height      uint64
	Successor   Hash
	Account     Account
	Balance     Amount
	Timestamp   int64
	Epoch       Epoch
	SourceEpoch Epoch
	Details     BlockDetails
}

// SavedBlock is a Block plus its Sideband, the form the ledger returns
// from process/get_block once inserted. Handles are shared read-only
// between many readers.
type SavedBlock struct {
	*Block
	Sideband Sideband
}
