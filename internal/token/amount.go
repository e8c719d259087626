package token

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// Amount is a signed 128-bit integer in the token's smallest unit.
// Decimals are display metadata only and are never applied here.
// All arithmetic detects overflow and returns an error instead of wrapping.
type Amount struct {
	hi int64
	lo uint64
}

// MaxAmount is 2^127 - 1, the largest representable amount.
var MaxAmount = Amount{hi: 0x7fffffffffffffff, lo: 0xffffffffffffffff}

// MinAmount is -2^127, the smallest representable amount.
var MinAmount = Amount{hi: -0x8000000000000000, lo: 0}

var (
	bigMin  = new(big.Int).Lsh(big.NewInt(-1), 127)
	bigMax  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	mask128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// NewAmount returns the Amount for a 64-bit value.
func NewAmount(v int64) Amount {
	a := Amount{lo: uint64(v)}
	if v < 0 {
		a.hi = -1
	}
	return a
}

// ParseAmount parses a base-10 string into an Amount.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("parse amount %q: not a base-10 integer", s)
	}
	return AmountFromBig(v)
}

// AmountFromBig converts a big.Int to an Amount.
// Returns ErrOverflow if the value does not fit in 128 bits.
func AmountFromBig(v *big.Int) (Amount, error) {
	if v.Cmp(bigMin) < 0 || v.Cmp(bigMax) > 0 {
		return Amount{}, ErrOverflow
	}
	// big.Int And on a negative operand yields its two's complement bits.
	t := new(big.Int).And(v, mask128)
	var buf [16]byte
	t.FillBytes(buf[:])
	return AmountFromBytes(buf), nil
}

// Add returns a + b, or ErrOverflow if the sum leaves the 128-bit range.
func (a Amount) Add(b Amount) (Amount, error) {
	lo := a.lo + b.lo
	carry := int64(0)
	if lo < a.lo {
		carry = 1
	}
	sum := Amount{hi: a.hi + b.hi + carry, lo: lo}
	// Overflow iff operands share a sign the result does not.
	if (a.hi < 0) == (b.hi < 0) && (sum.hi < 0) != (a.hi < 0) {
		return Amount{}, ErrOverflow
	}
	return sum, nil
}

// Sub returns a - b, or ErrOverflow if the difference leaves the 128-bit range.
func (a Amount) Sub(b Amount) (Amount, error) {
	nb, err := b.Neg()
	if err != nil {
		// b == MinAmount: a - (-2^127) == a + 2^127 fits only for negative a.
		if a.hi >= 0 {
			return Amount{}, ErrOverflow
		}
		s, _ := a.Add(MaxAmount)
		return s.Add(NewAmount(1))
	}
	return a.Add(nb)
}

// Neg returns -a. Negating MinAmount overflows.
func (a Amount) Neg() (Amount, error) {
	if a == MinAmount {
		return Amount{}, ErrOverflow
	}
	lo := ^a.lo + 1
	hi := ^a.hi
	if lo == 0 {
		hi++
	}
	return Amount{hi: hi, lo: lo}, nil
}

// Cmp returns -1, 0, or +1 according to whether a < b, a == b, or a > b.
func (a Amount) Cmp(b Amount) int {
	if a.hi != b.hi {
		if a.hi < b.hi {
			return -1
		}
		return 1
	}
	if a.lo != b.lo {
		if a.lo < b.lo {
			return -1
		}
		return 1
	}
	return 0
}

// Sign returns -1, 0, or +1 for negative, zero, or positive amounts.
func (a Amount) Sign() int {
	switch {
	case a.hi < 0:
		return -1
	case a.hi == 0 && a.lo == 0:
		return 0
	default:
		return 1
	}
}

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool {
	return a.hi == 0 && a.lo == 0
}

// Big returns the amount as a new big.Int.
func (a Amount) Big() *big.Int {
	v := new(big.Int).SetInt64(a.hi)
	v.Lsh(v, 64)
	return v.Add(v, new(big.Int).SetUint64(a.lo))
}

// String renders the amount in base 10.
func (a Amount) String() string {
	return a.Big().String()
}

// Bytes returns the big-endian two's-complement 16-byte encoding.
func (a Amount) Bytes() [16]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(a.hi))
	binary.BigEndian.PutUint64(buf[8:16], a.lo)
	return buf
}

// AmountFromBytes decodes a big-endian two's-complement 16-byte value.
func AmountFromBytes(buf [16]byte) Amount {
	return Amount{
		hi: int64(binary.BigEndian.Uint64(buf[0:8])),
		lo: binary.BigEndian.Uint64(buf[8:16]),
	}
}
