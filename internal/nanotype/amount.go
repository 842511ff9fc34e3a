package nanotype

import "github.com/holiman/uint256"

// Amount is a 128-bit unsigned balance. It is carried in a uint256.Int
// (a 256-bit word type built for EVM values) truncated to its low 128
// bits — Nano balances never need the upper half, and reusing an
// existing arbitrary-width integer avoids hand-rolling 128-bit
// arithmetic with carry/borrow logic.
type Amount struct {
	v uint256.Int
}

// AmountFromUint64 builds an Amount from a raw integer.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// AmountFromBytes16 builds an Amount from its big-endian 128-bit wire
// representation.
func AmountFromBytes16(b [16]byte) Amount {
	var full [32]byte
	copy(full[16:], b[:])
	var a Amount
	a.v.SetBytes(full[:])
	return a
}

// Bytes16 returns the big-endian 128-bit wire representation.
func (a Amount) Bytes16() [16]byte {
	full := a.v.Bytes32()
	var out [16]byte
	copy(out[:], full[16:])
	return out
}

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	return out
}

// Sub returns a-b and reports whether the subtraction underflowed
// (negative spend), mirroring the check the ledger validator performs
// on every send block.
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.Cmp(b) < 0 {
		return Amount{}, true
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, false
}

func (a Amount) String() string { return a.v.Dec() }

func (a Amount) Uint64() uint64 { return a.v.Uint64() }

// MulUint64 returns a*b, used by the quorum-delta percentage multiply
// (internal/onlinereps) where b is always a small integer (e.g. a
// percentage 0-100) and the product still fits comfortably below the
// full 256-bit ceiling uint256.Int carries internally.
func (a Amount) MulUint64(b uint64) Amount {
	var bb uint256.Int
	bb.SetUint64(b)
	var out Amount
	out.v.Mul(&a.v, &bb)
	return out
}

// DivUint64 returns a/b, 0 if b is 0.
func (a Amount) DivUint64(b uint64) Amount {
	if b == 0 {
		return Amount{}
	}
	var bb uint256.Int
	bb.SetUint64(b)
	var out Amount
	out.v.Div(&a.v, &bb)
	return out
}
