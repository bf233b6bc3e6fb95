package fullmath

import (
	"errors"
	"math/big"
	"sync"
)

var (
	// Q96 is the UQ64.96 fixed-point number representing 1.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// MaxUint128 is the largest value representable in 128 bits.
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	// MaxUint256 is the largest value representable in 256 bits.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	ErrDenominatorZero = errors.New("denominator must be greater than zero")
	ErrOverflow        = errors.New("result exceeds 256 bits")

	one = big.NewInt(1)
)

// fullMath holds reusable big.Int objects to avoid memory allocations.
type fullMath struct {
	product *big.Int
	rem     *big.Int
}

// pool manages a set of fullMath objects for safe concurrent use.
var pool = sync.Pool{
	New: func() any {
		return &fullMath{
			product: new(big.Int),
			rem:     new(big.Int),
		}
	},
}

// MulDivFloor writes floor(a * b / denom) into dest. The intermediate
// product is computed at full precision, so a*b may exceed 256 bits as
// long as the final quotient does not.
func MulDivFloor(dest, a, b, denom *big.Int) error {
	if denom.Sign() == 0 {
		return ErrDenominatorZero
	}

	m := pool.Get().(*fullMath)
	defer pool.Put(m)

	m.product.Mul(a, b)
	dest.Div(m.product, denom)

	if dest.Cmp(MaxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}

// MulDivCeiling writes ceil(a * b / denom) into dest. Rounding up past
// the 256-bit limit is itself an overflow.
func MulDivCeiling(dest, a, b, denom *big.Int) error {
	if denom.Sign() == 0 {
		return ErrDenominatorZero
	}

	m := pool.Get().(*fullMath)
	defer pool.Put(m)

	m.product.Mul(a, b)
	dest.Div(m.product, denom)
	if m.rem.Rem(m.product, denom).Sign() > 0 {
		dest.Add(dest, one)
	}

	if dest.Cmp(MaxUint256) > 0 {
		return ErrOverflow
	}
	return nil
}

// DivCeiling writes ceil(a / denom) into dest.
func DivCeiling(dest, a, denom *big.Int) error {
	if denom.Sign() == 0 {
		return ErrDenominatorZero
	}

	m := pool.Get().(*fullMath)
	defer pool.Put(m)

	dest.Div(a, denom)
	if m.rem.Rem(a, denom).Sign() > 0 {
		dest.Add(dest, one)
	}
	return nil
}
