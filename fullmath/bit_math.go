package fullmath

import (
	"errors"
	"math/big"
	"math/bits"
)

var (
	// ErrInputIsZero is returned when a bit-scan requires a non-zero input.
	ErrInputIsZero = errors.New("input must be greater than zero")
	// ErrInputIsNil is returned when a bit-scan receives a nil pointer.
	ErrInputIsNil = errors.New("input cannot be nil")
)

// MostSignificantBit returns the index of the most significant set bit of x,
// where the least significant bit is index 0.
//
// The result satisfies x >= 2**msb(x) and x < 2**(msb(x)+1).
func MostSignificantBit(x *big.Int) (uint8, error) {
	if x == nil {
		return 0, ErrInputIsNil
	}
	if x.Sign() <= 0 {
		return 0, ErrInputIsZero
	}
	// BitLen is the number of bits needed to represent x, so the index of
	// the highest set bit is always BitLen()-1.
	return uint8(x.BitLen() - 1), nil
}

// LeastSignificantBit returns the index of the least significant set bit of x.
//
// The result satisfies (x & 2**lsb(x)) != 0.
func LeastSignificantBit(x *big.Int) (uint8, error) {
	if x == nil {
		return 0, ErrInputIsNil
	}
	if x.Sign() <= 0 {
		return 0, ErrInputIsZero
	}

	for i, word := range x.Bits() {
		if word > 0 {
			return uint8(i*bits.UintSize + bits.TrailingZeros(uint(word))), nil
		}
	}
	// Unreachable: x > 0 guarantees a set bit.
	return 0, ErrInputIsZero
}
