// Package qtymath converts between token quantities, liquidity, and sqrt
// price ranges along the constant-liquidity curve, in both directions.
// All routines take sqrt prices in Q64.96 and round via fullmath so that
// amounts owed to the pool round up and amounts owed to callers round down.
package qtymath

import (
	"errors"
	"math/big"

	"github.com/defistate/elastic-amm-go/fullmath"
)

var (
	ErrIdenticalSqrtPrices = errors.New("sqrt prices must differ")
	ErrLiquidityOverflow   = errors.New("liquidity exceeds 128 bits")
)

// LiquidityFromQty0 solves qty0 = L * (1/sqrtLow - 1/sqrtHigh) for L,
// flooring the result. The two sqrt prices may be passed in either order.
func LiquidityFromQty0(dest, sqrtA, sqrtB, qty0 *big.Int) error {
	low, high, err := sortSqrtPrices(sqrtA, sqrtB)
	if err != nil {
		return err
	}
	if qty0.Sign() == 0 {
		dest.SetInt64(0)
		return nil
	}

	// L = qty0 * (sqrtLow*sqrtHigh/Q96) / (sqrtHigh - sqrtLow)
	intermediate := new(big.Int)
	if err := fullmath.MulDivFloor(intermediate, low, high, fullmath.Q96); err != nil {
		return err
	}
	diff := new(big.Int).Sub(high, low)
	if err := fullmath.MulDivFloor(dest, qty0, intermediate, diff); err != nil {
		return err
	}
	if dest.Cmp(fullmath.MaxUint128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// LiquidityFromQty1 solves qty1 = L * (sqrtHigh - sqrtLow) for L, flooring
// the result. The two sqrt prices may be passed in either order.
func LiquidityFromQty1(dest, sqrtA, sqrtB, qty1 *big.Int) error {
	low, high, err := sortSqrtPrices(sqrtA, sqrtB)
	if err != nil {
		return err
	}
	if qty1.Sign() == 0 {
		dest.SetInt64(0)
		return nil
	}

	diff := new(big.Int).Sub(high, low)
	if err := fullmath.MulDivFloor(dest, qty1, fullmath.Q96, diff); err != nil {
		return err
	}
	if dest.Cmp(fullmath.MaxUint128) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// LiquidityFromQties returns the liquidity achievable given both token
// quantities at once. Outside the range only one token matters; inside it,
// the smaller of the two single-sided results is the limiting resource.
func LiquidityFromQties(dest, sqrtCurrent, sqrtA, sqrtB, qty0, qty1 *big.Int) error {
	low, high, err := sortSqrtPrices(sqrtA, sqrtB)
	if err != nil {
		return err
	}

	if sqrtCurrent.Cmp(low) <= 0 {
		return LiquidityFromQty0(dest, low, high, qty0)
	}
	if sqrtCurrent.Cmp(high) >= 0 {
		return LiquidityFromQty1(dest, low, high, qty1)
	}

	liquidity0 := new(big.Int)
	if err := LiquidityFromQty0(liquidity0, sqrtCurrent, high, qty0); err != nil {
		return err
	}
	liquidity1 := new(big.Int)
	if err := LiquidityFromQty1(liquidity1, low, sqrtCurrent, qty1); err != nil {
		return err
	}

	if liquidity0.Cmp(liquidity1) < 0 {
		dest.Set(liquidity0)
	} else {
		dest.Set(liquidity1)
	}
	return nil
}

// RequiredQty0 writes the token0 quantity spanned by liquidity between the
// two sqrt prices: L<<96 * (sqrtHigh - sqrtLow) / sqrtHigh / sqrtLow.
// roundUp selects amounts owed to the pool; floor is owed to the caller.
func RequiredQty0(dest, sqrtA, sqrtB, liquidity *big.Int, roundUp bool) error {
	low, high, err := sortSqrtPrices(sqrtA, sqrtB)
	if err != nil {
		return err
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(high, low)

	term := new(big.Int)
	if roundUp {
		if err := fullmath.MulDivCeiling(term, numerator1, numerator2, high); err != nil {
			return err
		}
		return fullmath.DivCeiling(dest, term, low)
	}
	if err := fullmath.MulDivFloor(term, numerator1, numerator2, high); err != nil {
		return err
	}
	dest.Div(term, low)
	return nil
}

// RequiredQty1 writes the token1 quantity spanned by liquidity between the
// two sqrt prices: L * (sqrtHigh - sqrtLow) / Q96.
func RequiredQty1(dest, sqrtA, sqrtB, liquidity *big.Int, roundUp bool) error {
	low, high, err := sortSqrtPrices(sqrtA, sqrtB)
	if err != nil {
		return err
	}

	diff := new(big.Int).Sub(high, low)
	if roundUp {
		return fullmath.MulDivCeiling(dest, liquidity, diff, fullmath.Q96)
	}
	return fullmath.MulDivFloor(dest, liquidity, diff, fullmath.Q96)
}

// QtyFromBurnReinvestmentShares converts a reinvestment liquidity delta
// being redeemed into token amounts at the current price using the
// single-sided virtual reserve relations, floor-rounded in the redeemer's
// disfavor.
func QtyFromBurnReinvestmentShares(qty0, qty1, sqrtPrice, liquidityDelta *big.Int) error {
	numerator := new(big.Int).Lsh(liquidityDelta, 96)
	qty0.Div(numerator, sqrtPrice)
	return fullmath.MulDivFloor(qty1, liquidityDelta, sqrtPrice, fullmath.Q96)
}

func sortSqrtPrices(sqrtA, sqrtB *big.Int) (low, high *big.Int, err error) {
	switch sqrtA.Cmp(sqrtB) {
	case 0:
		return nil, nil, ErrIdenticalSqrtPrices
	case 1:
		return sqrtB, sqrtA, nil
	default:
		return sqrtA, sqrtB, nil
	}
}
