package ledger

import (
	"bytes"
	"encoding/gob"

	"github.com/gonano/nanod/internal/nanotype"
)

// Record serialization uses encoding/gob: this is internal Go-to-Go
// storage encoding, not a wire format. go-ethereum's own RLP is
// EVM/consensus-specific framing that would misrepresent a non-EVM
// ledger's storage layer, so the stdlib codec is used directly here.

type storedBlock struct {
	Type           nanotype.BlockType
	Previous       nanotype.Hash
	Account        nanotype.Account
	Representative nanotype.Account
	Balance        [16]byte
	Link           nanotype.Link
	Signature      [64]byte
	WorkNonce      uint64
	Sideband       nanotype.Sideband
}

func encodeSavedBlock(sb *nanotype.SavedBlock) []byte {
	s := storedBlock{
		Type:           sb.Type,
		Previous:       sb.Previous,
		Account:        sb.Account,
		Representative: sb.Representative,
		Balance:        sb.Balance.Bytes16(),
		Link:           sb.Link,
		Signature:      sb.Signature,
		WorkNonce:      sb.WorkNonce,
		Sideband:       sb.Sideband,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&s); err != nil {
		panic(err) // storedBlock has no unsupported field types
	}
	return buf.Bytes()
}

func decodeSavedBlock(raw []byte) (*nanotype.SavedBlock, bool) {
	var s storedBlock
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return nil, false
	}
	b := nanotype.NewBlock(s.Type, s.Previous, s.Account, s.Representative,
		nanotype.AmountFromBytes16(s.Balance), s.Link, s.Signature, s.WorkNonce)
	return &nanotype.SavedBlock{Block: b, Sideband: s.Sideband}, true
}

func encodeAccountInfo(a nanotype.AccountInfo) []byte {
	var buf bytes.Buffer
	enc := struct {
		Head           nanotype.Hash
		Representative nanotype.Account
		OpenBlock      nanotype.Hash
		Balance        [16]byte
		ModifiedUnix   int64
		BlockCount     uint64
		Epoch          nanotype.Epoch
	}{a.Head, a.Representative, a.OpenBlock, a.Balance.Bytes16(), a.ModifiedUnix, a.BlockCount, a.Epoch}
	if err := gob.NewEncoder(&buf).Encode(&enc); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeAccountInfo(raw []byte) (nanotype.AccountInfo, bool) {
	var enc struct {
		Head           nanotype.Hash
		Representative nanotype.Account
		OpenBlock      nanotype.Hash
		Balance        [16]byte
		ModifiedUnix   int64
		BlockCount     uint64
		Epoch          nanotype.Epoch
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&enc); err != nil {
		return nanotype.AccountInfo{}, false
	}
	return nanotype.AccountInfo{
		Head:           enc.Head,
		Representative: enc.Representative,
		OpenBlock:      enc.OpenBlock,
		Balance:        nanotype.AmountFromBytes16(enc.Balance),
		ModifiedUnix:   enc.ModifiedUnix,
		BlockCount:     enc.BlockCount,
		Epoch:          enc.Epoch,
	}, true
}

func encodePendingEntry(p nanotype.PendingEntry) []byte {
	var buf bytes.Buffer
	enc := struct {
		Source nanotype.Account
		Amount [16]byte
		Epoch  nanotype.Epoch
	}{p.Source, p.Amount.Bytes16(), p.Epoch}
	if err := gob.NewEncoder(&buf).Encode(&enc); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodePendingEntry(raw []byte) (nanotype.PendingEntry, bool) {
	var enc struct {
		Source nanotype.Account
		Amount [16]byte
		Epoch  nanotype.Epoch
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&enc); err != nil {
		return nanotype.PendingEntry{}, false
	}
	return nanotype.PendingEntry{Source: enc.Source, Amount: nanotype.AmountFromBytes16(enc.Amount), Epoch: enc.Epoch}, true
}

func encodeConfirmationHeight(c nanotype.ConfirmationHeight) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&c); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func decodeConfirmationHeight(raw []byte) (nanotype.ConfirmationHeight, bool) {
	var c nanotype.ConfirmationHeight
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&c); err != nil {
		return nanotype.ConfirmationHeight{}, false
	}
	return c, true
}
