package nanotype

import (
	"encoding/hex"
	"errors"
)

// Hash is a 32-byte block digest, account public key, or link target —
// the wire format is sometimes typed as one, sometimes the other;
// see Link.
type Hash [32]byte

// Account is a 32-byte ed25519 public key identifying a chain.
type Account [32]byte

// Link is the state-block link field, which is a Hash when it names a
// send-block source and an Account when it names a destination for a
// legacy-style send. The two are bit-identical; this type alias
// documents the dual reading without adding an indirection layer.
type Link = Hash

var ZeroHash Hash
var ZeroAccount Account

func (h Hash) IsZero() bool    { return h == ZeroHash }
func (a Account) IsZero() bool { return a == ZeroAccount }

func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (a Account) String() string { return hex.EncodeToString(a[:]) }

// AsAccount reinterprets a Link as an Account (legacy send destination).
func (h Hash) AsAccount() Account { return Account(h) }

// AsHash reinterprets an Account as a Hash (state block link source).
func (a Account) AsHash() Hash { return Hash(a) }

func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, errors.New("nanotype: wrong hash length")
	}
	copy(h[:], b)
	return h, nil
}
