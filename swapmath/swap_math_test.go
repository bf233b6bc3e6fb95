package swapmath

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/elastic-amm-go/tickmath"
)

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func newRandInt(bits int) *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(err)
	}
	return n
}

func sqrtAtTick(t *testing.T, tick int64) *big.Int {
	t.Helper()
	dest := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(dest, tick))
	return dest
}

func TestComputeSwapStepExactInReachesTarget(t *testing.T) {
	sqrtCurrent := sqrtAtTick(t, 0)
	sqrtTarget := sqrtAtTick(t, -10)
	liquidity := fromString("10000000000000000000")
	amountRemaining := fromString("1000000000000000000000")
	feeBps := big.NewInt(30)

	sqrtNext, amountIn, amountOut, feeAmount := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	require.NoError(t, ComputeSwapStep(sqrtNext, amountIn, amountOut, feeAmount, sqrtCurrent, sqrtTarget, liquidity, amountRemaining, feeBps))

	// Plenty of input: the step ends exactly at the target boundary.
	assert.Zero(t, sqrtTarget.Cmp(sqrtNext))
	assert.True(t, amountIn.Sign() > 0)
	assert.True(t, amountOut.Sign() > 0)
	assert.True(t, feeAmount.Sign() > 0)

	consumed := new(big.Int).Add(amountIn, feeAmount)
	assert.True(t, consumed.Cmp(amountRemaining) <= 0)
}

func TestComputeSwapStepExactInStopsShort(t *testing.T) {
	sqrtCurrent := sqrtAtTick(t, 0)
	sqrtTarget := sqrtAtTick(t, -100)
	liquidity := fromString("10000000000000000000000")
	amountRemaining := fromString("1000000")
	feeBps := big.NewInt(30)

	sqrtNext, amountIn, amountOut, feeAmount := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	require.NoError(t, ComputeSwapStep(sqrtNext, amountIn, amountOut, feeAmount, sqrtCurrent, sqrtTarget, liquidity, amountRemaining, feeBps))

	// Tiny input against deep liquidity: the target is not reached and the
	// whole specified amount is consumed.
	assert.True(t, sqrtNext.Cmp(sqrtTarget) > 0)
	assert.True(t, sqrtNext.Cmp(sqrtCurrent) <= 0)
	consumed := new(big.Int).Add(amountIn, feeAmount)
	assert.Zero(t, consumed.Cmp(amountRemaining))
}

func TestComputeSwapStepExactOut(t *testing.T) {
	sqrtCurrent := sqrtAtTick(t, 0)
	sqrtTarget := sqrtAtTick(t, -100)
	liquidity := fromString("10000000000000000000000")
	amountRemaining := fromString("-1000000")
	feeBps := big.NewInt(30)

	sqrtNext, amountIn, amountOut, feeAmount := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	require.NoError(t, ComputeSwapStep(sqrtNext, amountIn, amountOut, feeAmount, sqrtCurrent, sqrtTarget, liquidity, amountRemaining, feeBps))

	// Output is capped by the request and the fee comes on top of input.
	assert.True(t, amountOut.Cmp(big.NewInt(1000000)) <= 0)
	assert.True(t, amountIn.Sign() > 0)
	assert.True(t, feeAmount.Sign() > 0)
}

func TestComputeSwapStepZeroFee(t *testing.T) {
	sqrtCurrent := sqrtAtTick(t, 0)
	sqrtTarget := sqrtAtTick(t, 10)
	liquidity := fromString("1000000000000000000")
	amountRemaining := fromString("1000000000000000000000")

	sqrtNext, amountIn, amountOut, feeAmount := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	require.NoError(t, ComputeSwapStep(sqrtNext, amountIn, amountOut, feeAmount, sqrtCurrent, sqrtTarget, liquidity, amountRemaining, big.NewInt(0)))

	assert.Zero(t, sqrtTarget.Cmp(sqrtNext))
	assert.Zero(t, feeAmount.Sign())
}

func TestComputeSwapStepErrors(t *testing.T) {
	dest := new(big.Int)
	err := ComputeSwapStep(dest, dest, dest, dest, sqrtAtTick(t, 0), sqrtAtTick(t, 10), big.NewInt(0), big.NewInt(1), big.NewInt(30))
	assert.ErrorIs(t, err, ErrLiquidityZero)

	err = ComputeSwapStep(dest, dest, dest, dest, big.NewInt(0), sqrtAtTick(t, 10), big.NewInt(1), big.NewInt(1), big.NewInt(30))
	assert.ErrorIs(t, err, ErrSqrtPriceZero)
}

func TestComputeSwapStepInvariants(t *testing.T) {
	for i := 0; i < 1000; i++ {
		sqrtCurrent := newRandInt(128)
		sqrtTarget := newRandInt(128)
		liquidity := newRandInt(100)
		amountRemaining := newRandInt(96)
		if i%2 == 1 {
			amountRemaining.Neg(amountRemaining)
		}
		feeBps := new(big.Int).Rem(newRandInt(14), big.NewInt(9999))

		if sqrtCurrent.Sign() == 0 {
			sqrtCurrent.SetInt64(1)
		}
		if sqrtTarget.Sign() == 0 {
			sqrtTarget.SetInt64(1)
		}
		if liquidity.Sign() == 0 {
			liquidity.SetInt64(1)
		}

		sqrtNext, amountIn, amountOut, feeAmount := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
		err := ComputeSwapStep(sqrtNext, amountIn, amountOut, feeAmount, sqrtCurrent, sqrtTarget, liquidity, amountRemaining, feeBps)
		if err != nil {
			continue
		}

		if amountRemaining.Sign() >= 0 {
			consumed := new(big.Int).Add(amountIn, feeAmount)
			assert.True(t, consumed.Cmp(amountRemaining) <= 0, "exact in must not overcharge")
		} else {
			abs := new(big.Int).Neg(amountRemaining)
			assert.True(t, amountOut.Cmp(abs) <= 0, "exact out must not overpay")
		}

		// The step never moves past the target.
		if sqrtCurrent.Cmp(sqrtTarget) >= 0 {
			assert.True(t, sqrtNext.Cmp(sqrtTarget) >= 0)
			assert.True(t, sqrtNext.Cmp(sqrtCurrent) <= 0)
		} else {
			assert.True(t, sqrtNext.Cmp(sqrtTarget) <= 0)
			assert.True(t, sqrtNext.Cmp(sqrtCurrent) >= 0)
		}
	}
}

func TestNextSqrtPriceFromInput(t *testing.T) {
	t.Run("zero amount keeps price", func(t *testing.T) {
		sqrtP := sqrtAtTick(t, 0)
		dest := new(big.Int)
		require.NoError(t, NextSqrtPriceFromInput(dest, sqrtP, big.NewInt(1), big.NewInt(0), true))
		assert.Zero(t, sqrtP.Cmp(dest))
	})

	t.Run("token0 input moves price down", func(t *testing.T) {
		sqrtP := sqrtAtTick(t, 0)
		dest := new(big.Int)
		require.NoError(t, NextSqrtPriceFromInput(dest, sqrtP, fromString("1000000000000000000"), big.NewInt(1000000), true))
		assert.True(t, dest.Cmp(sqrtP) < 0)
	})

	t.Run("token1 input moves price up", func(t *testing.T) {
		sqrtP := sqrtAtTick(t, 0)
		dest := new(big.Int)
		require.NoError(t, NextSqrtPriceFromInput(dest, sqrtP, fromString("1000000000000000000"), big.NewInt(1000000), false))
		assert.True(t, dest.Cmp(sqrtP) > 0)
	})
}

func TestNextSqrtPriceFromOutput(t *testing.T) {
	t.Run("output beyond reserve fails", func(t *testing.T) {
		sqrtP := sqrtAtTick(t, 0)
		dest := new(big.Int)
		// Paying out more token1 than the range holds is impossible.
		err := NextSqrtPriceFromOutput(dest, sqrtP, big.NewInt(1), fromString("100000000000000000000000000000000"), true)
		assert.ErrorIs(t, err, ErrPriceExceeded)
	})

	t.Run("token1 output moves price down", func(t *testing.T) {
		sqrtP := sqrtAtTick(t, 0)
		dest := new(big.Int)
		require.NoError(t, NextSqrtPriceFromOutput(dest, sqrtP, fromString("1000000000000000000"), big.NewInt(1000000), true))
		assert.True(t, dest.Cmp(sqrtP) < 0)
	})
}
