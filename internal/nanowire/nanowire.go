// Package nanowire is the wire-message shape: plain Go structs for
// Publish, ConfirmAck, ConfirmReq, and the ascending bootstrap
// request/response pair, plus a Codec seam for encode/decode. No
// transport or byte-exact framing is implemented here; the default
// Codec reuses this repo's own internal/ledger/codec.go precedent of
// encoding/gob for Go-to-Go serialization, generalized from storage
// records to wire messages.
package nanowire

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/gonano/nanod/internal/nanotype"
)

// MessageType tags each wire message for framing/dispatch:
// Publish/ConfirmAck/ConfirmReq/AscPullReq/AscPullAck.
type MessageType uint8

const (
	MessageTypePublish MessageType = iota + 1
	MessageTypeConfirmAck
	MessageTypeConfirmReq
	MessageTypeAscPullReq
	MessageTypeAscPullAck
)

func (t MessageType) String() string {
	switch t {
	case MessageTypePublish:
		return "Publish"
	case MessageTypeConfirmAck:
		return "ConfirmAck"
	case MessageTypeConfirmReq:
		return "ConfirmReq"
	case MessageTypeAscPullReq:
		return "AscPullReq"
	case MessageTypeAscPullAck:
		return "AscPullAck"
	default:
		return "Unknown"
	}
}

// Message is satisfied by every wire message struct below; Type lets a
// Codec or dispatcher branch without a type switch at every call site.
type Message interface {
	Type() MessageType
}

// Publish carries one block for live propagation: routed to the
// block processor with source=Live.
type Publish struct {
	Block *nanotype.Block
}

func (Publish) Type() MessageType { return MessageTypePublish }

// ConfirmAck carries one representative's vote: routed to the vote
// router; unmatched hashes go to the vote cache.
type ConfirmAck struct {
	Vote nanotype.Vote
}

func (ConfirmAck) Type() MessageType { return MessageTypeConfirmAck }

// ConfirmReq asks the receiver's confirmation solicitor to answer with
// its current winner's ack for one or more roots.
type ConfirmReq struct {
	Roots []nanotype.QualifiedRoot
}

func (ConfirmReq) Type() MessageType { return MessageTypeConfirmReq }

// PullType selects which payload an AscPullAck carries back: Blocks,
// AccountInfo, or Frontiers.
type PullType uint8

const (
	PullTypeBlocks PullType = iota
	PullTypeAccountInfo
	PullTypeFrontiers
)

// AscPullReq is one outstanding ascending-bootstrap request: id, type,
// start, count. Start is a hash when StartIsAccount
// is false (pull blocks following that hash) and an account otherwise
// (pull the account's own chain from its open block) — mirroring
// internal/bootstrap.Tag's own Start/StartIsAccount pair so a Tag can
// be rendered onto the wire and back without a second representation.
type AscPullReq struct {
	ID             uint64
	PullType       PullType
	Start          nanotype.Hash
	StartIsAccount bool
	Count          uint32
}

func (AscPullReq) Type() MessageType { return MessageTypeAscPullReq }

// Frontier is one row of an AscPullAck Frontiers payload: an account
// and the hash of its current head block.
type Frontier struct {
	Account nanotype.Account
	Head    nanotype.Hash
}

// AscPullAck answers an AscPullReq by id: the request/response pair
// for ascending bootstrap, count capped by a server-side maximum, and
// a Blocks response must itself be a contiguous chain. Exactly one of
// Blocks/AccountInfo/Frontiers is populated, selected by PullType.
type AscPullAck struct {
	ID         uint64
	PullType   PullType
	Blocks     []*nanotype.Block
	AccountInfo *nanotype.AccountInfo // nil if the requested hash's owner is unknown
	Frontiers  []Frontier
}

func (AscPullAck) Type() MessageType { return MessageTypeAscPullAck }

// Codec encodes/decodes one Message to/from its wire representation.
// The transport layer is responsible for framing a Codec's output
// with a type byte and length prefix before it reaches a socket; this
// interface only concerns itself with the payload.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(t MessageType, raw []byte) (Message, error)
}

// GobCodec is the default Codec, encoding/gob over each message struct
// — the same Go-to-Go serialization choice internal/ledger/codec.go
// makes for storage records, here applied to wire payloads instead.
type GobCodec struct{}

func (GobCodec) Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("nanowire: encode %s: %w", msg.Type(), err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(t MessageType, raw []byte) (Message, error) {
	dec := gob.NewDecoder(bytes.NewReader(raw))
	switch t {
	case MessageTypePublish:
		var m Publish
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case MessageTypeConfirmAck:
		var m ConfirmAck
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case MessageTypeConfirmReq:
		var m ConfirmReq
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case MessageTypeAscPullReq:
		var m AscPullReq
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	case MessageTypeAscPullAck:
		var m AscPullAck
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("nanowire: unknown message type %d", t)
	}
}
