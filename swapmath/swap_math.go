// Package swapmath computes the result of a swap within a single tick
// range: the next sqrt price, the exact amounts in and out, and the fee
// taken from the input. Input amounts round up against the trader and
// output amounts round down.
package swapmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/defistate/elastic-amm-go/fullmath"
	"github.com/defistate/elastic-amm-go/qtymath"
)

var (
	ErrLiquidityZero = errors.New("liquidity must be greater than zero")
	ErrSqrtPriceZero = errors.New("sqrt price must be greater than zero")
	ErrPriceExceeded = errors.New("output exceeds available reserve")

	// feeDenominator is the basis-point denominator: 10000 == 100%.
	feeDenominator = big.NewInt(10000)
)

// swapStep holds reusable big.Int scratch values for a single
// ComputeSwapStep call. Instances are pooled for safe concurrent use.
type swapStep struct {
	amountRemainingLessFee *big.Int
	amountRemainingAbs     *big.Int
	tempValue              *big.Int
}

var stepPool = sync.Pool{
	New: func() any {
		return &swapStep{
			amountRemainingLessFee: new(big.Int),
			amountRemainingAbs:     new(big.Int),
			tempValue:              new(big.Int),
		}
	},
}

// ComputeSwapStep advances the price from sqrtCurrent toward sqrtTarget,
// constrained by the remaining amount. amountRemaining > 0 means exact
// input (fee is deducted from it), < 0 means exact output. The direction
// of travel is implied by the ordering of current and target.
func ComputeSwapStep(
	sqrtNext, amountIn, amountOut, feeAmount *big.Int,
	sqrtCurrent, sqrtTarget, liquidity, amountRemaining, feeBps *big.Int,
) error {
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}
	if sqrtCurrent.Sign() <= 0 {
		return ErrSqrtPriceZero
	}

	s := stepPool.Get().(*swapStep)
	defer stepPool.Put(s)

	zeroForOne := sqrtCurrent.Cmp(sqrtTarget) >= 0
	exactIn := amountRemaining.Sign() >= 0

	amountIn.SetInt64(0)
	amountOut.SetInt64(0)
	feeAmount.SetInt64(0)

	if exactIn {
		s.tempValue.Sub(feeDenominator, feeBps)
		if err := fullmath.MulDivFloor(s.amountRemainingLessFee, amountRemaining, s.tempValue, feeDenominator); err != nil {
			return err
		}

		if err := amount0or1Delta(amountIn, sqrtTarget, sqrtCurrent, liquidity, true, zeroForOne); err != nil {
			return err
		}

		if s.amountRemainingLessFee.Cmp(amountIn) >= 0 {
			sqrtNext.Set(sqrtTarget)
		} else if err := NextSqrtPriceFromInput(sqrtNext, sqrtCurrent, liquidity, s.amountRemainingLessFee, zeroForOne); err != nil {
			return err
		}
	} else {
		s.amountRemainingAbs.Neg(amountRemaining)

		if err := amount0or1Delta(amountOut, sqrtTarget, sqrtCurrent, liquidity, false, !zeroForOne); err != nil {
			return err
		}

		if s.amountRemainingAbs.Cmp(amountOut) >= 0 {
			sqrtNext.Set(sqrtTarget)
		} else if err := NextSqrtPriceFromOutput(sqrtNext, sqrtCurrent, liquidity, s.amountRemainingAbs, zeroForOne); err != nil {
			return err
		}
	}

	reachedTarget := sqrtTarget.Cmp(sqrtNext) == 0

	// Recompute both legs against the price actually reached.
	if !(reachedTarget && exactIn) {
		if err := amount0or1Delta(amountIn, sqrtNext, sqrtCurrent, liquidity, true, zeroForOne); err != nil {
			return err
		}
	}
	if !(reachedTarget && !exactIn) {
		if err := amount0or1Delta(amountOut, sqrtNext, sqrtCurrent, liquidity, false, !zeroForOne); err != nil {
			return err
		}
	}

	// Output never exceeds what was asked for.
	if !exactIn && amountOut.Cmp(s.amountRemainingAbs) > 0 {
		amountOut.Set(s.amountRemainingAbs)
	}

	if exactIn && sqrtNext.Cmp(sqrtTarget) != 0 {
		// Stopped short of the target: the whole leftover input is fee.
		feeAmount.Sub(amountRemaining, amountIn)
	} else {
		s.tempValue.Sub(feeDenominator, feeBps)
		if err := fullmath.MulDivCeiling(feeAmount, amountIn, feeBps, s.tempValue); err != nil {
			return err
		}
	}
	return nil
}

// amount0or1Delta writes the token0 delta (token0 == true) or token1 delta
// between the two sqrt prices, tolerating a zero-width interval.
func amount0or1Delta(dest, sqrtA, sqrtB, liquidity *big.Int, roundUp, token0 bool) error {
	if sqrtA.Cmp(sqrtB) == 0 {
		dest.SetInt64(0)
		return nil
	}
	if token0 {
		return qtymath.RequiredQty0(dest, sqrtA, sqrtB, liquidity, roundUp)
	}
	return qtymath.RequiredQty1(dest, sqrtA, sqrtB, liquidity, roundUp)
}

// NextSqrtPriceFromInput returns the price after spending amountIn of the
// input token, rounding so the pool never undercharges.
func NextSqrtPriceFromInput(dest, sqrtP, liquidity, amountIn *big.Int, zeroForOne bool) error {
	if sqrtP.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0(dest, sqrtP, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1(dest, sqrtP, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after paying out amountOut of
// the output token, rounding so the pool never overpays.
func NextSqrtPriceFromOutput(dest, sqrtP, liquidity, amountOut *big.Int, zeroForOne bool) error {
	if sqrtP.Sign() <= 0 {
		return ErrSqrtPriceZero
	}
	if liquidity.Sign() <= 0 {
		return ErrLiquidityZero
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1(dest, sqrtP, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0(dest, sqrtP, liquidity, amountOut, false)
}

// nextSqrtPriceFromAmount0 applies a token0 delta, rounding up:
// next = ceil(L<<96 * sqrtP / (L<<96 +- amount*sqrtP)).
func nextSqrtPriceFromAmount0(dest, sqrtP, liquidity, amount *big.Int, add bool) error {
	if amount.Sign() == 0 {
		dest.Set(sqrtP)
		return nil
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	product := new(big.Int).Mul(amount, sqrtP)

	denominator := new(big.Int)
	if add {
		denominator.Add(numerator1, product)
	} else {
		if numerator1.Cmp(product) <= 0 {
			return ErrPriceExceeded
		}
		denominator.Sub(numerator1, product)
	}

	term := new(big.Int)
	if err := fullmath.MulDivCeiling(term, numerator1, sqrtP, denominator); err != nil {
		return err
	}
	dest.Set(term)
	return nil
}

// nextSqrtPriceFromAmount1 applies a token1 delta:
// next = sqrtP +- amount*Q96/L, rounding against the price moving too far.
func nextSqrtPriceFromAmount1(dest, sqrtP, liquidity, amount *big.Int, add bool) error {
	quotient := new(big.Int)
	if add {
		if err := fullmath.MulDivFloor(quotient, amount, fullmath.Q96, liquidity); err != nil {
			return err
		}
		dest.Add(sqrtP, quotient)
		return nil
	}

	if err := fullmath.MulDivCeiling(quotient, amount, fullmath.Q96, liquidity); err != nil {
		return err
	}
	if sqrtP.Cmp(quotient) <= 0 {
		return ErrPriceExceeded
	}
	dest.Sub(sqrtP, quotient)
	return nil
}
