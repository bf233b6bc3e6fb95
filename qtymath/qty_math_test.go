package qtymath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/elastic-amm-go/fullmath"
	"github.com/defistate/elastic-amm-go/tickmath"
)

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

// encodePriceSqrt returns sqrt(reserve1/reserve0) in Q64.96.
func encodePriceSqrt(reserve1, reserve0 int64) *big.Int {
	num := new(big.Int).Mul(big.NewInt(reserve1), new(big.Int).Lsh(big.NewInt(1), 192))
	ratio := new(big.Int).Div(num, big.NewInt(reserve0))
	return new(big.Int).Sqrt(ratio)
}

func TestLiquidityFromQty0(t *testing.T) {
	t.Run("price 1 to 1.21", func(t *testing.T) {
		dest := new(big.Int)
		err := LiquidityFromQty0(dest, encodePriceSqrt(1, 1), encodePriceSqrt(121, 100), fromString("1000000000000000000"))
		require.NoError(t, err)
		assert.Zero(t, fromString("11000000000000000000").Cmp(dest))
	})

	t.Run("argument order does not matter", func(t *testing.T) {
		a, b := new(big.Int), new(big.Int)
		qty0 := fromString("1000000000000000000")
		require.NoError(t, LiquidityFromQty0(a, encodePriceSqrt(1, 1), encodePriceSqrt(121, 100), qty0))
		require.NoError(t, LiquidityFromQty0(b, encodePriceSqrt(121, 100), encodePriceSqrt(1, 1), qty0))
		assert.Zero(t, a.Cmp(b))
	})

	t.Run("identical prices", func(t *testing.T) {
		dest := new(big.Int)
		err := LiquidityFromQty0(dest, encodePriceSqrt(1, 1), encodePriceSqrt(1, 1), big.NewInt(1))
		assert.ErrorIs(t, err, ErrIdenticalSqrtPrices)
	})

	t.Run("result above 128 bits", func(t *testing.T) {
		dest := new(big.Int)
		qty0 := new(big.Int).Lsh(big.NewInt(1), 200)
		err := LiquidityFromQty0(dest, encodePriceSqrt(1, 1), encodePriceSqrt(121, 100), qty0)
		assert.ErrorIs(t, err, ErrLiquidityOverflow)
	})
}

func TestLiquidityFromQty1(t *testing.T) {
	t.Run("price 1 to 1.21", func(t *testing.T) {
		// qty1 = L * (sqrtHigh - sqrtLow) / Q96, so with a 0.1 sqrt price
		// width 1e18 of token1 supports about 1e19 liquidity.
		dest := new(big.Int)
		err := LiquidityFromQty1(dest, encodePriceSqrt(1, 1), encodePriceSqrt(121, 100), fromString("1000000000000000000"))
		require.NoError(t, err)

		want := new(big.Int)
		diff := new(big.Int).Sub(encodePriceSqrt(121, 100), encodePriceSqrt(1, 1))
		require.NoError(t, fullmath.MulDivFloor(want, fromString("1000000000000000000"), fullmath.Q96, diff))
		assert.Zero(t, want.Cmp(dest))
	})

	t.Run("argument order does not matter", func(t *testing.T) {
		a, b := new(big.Int), new(big.Int)
		require.NoError(t, LiquidityFromQty1(a, encodePriceSqrt(1, 1), encodePriceSqrt(4, 1), big.NewInt(1<<40)))
		require.NoError(t, LiquidityFromQty1(b, encodePriceSqrt(4, 1), encodePriceSqrt(1, 1), big.NewInt(1<<40)))
		assert.Zero(t, a.Cmp(b))
	})
}

func TestLiquidityFromQties(t *testing.T) {
	low := encodePriceSqrt(1, 1)
	high := encodePriceSqrt(121, 100)
	qty0 := fromString("1000000000000000000")
	qty1 := fromString("1000000000000000000")

	t.Run("current below range uses qty0 only", func(t *testing.T) {
		dest := new(big.Int)
		current := encodePriceSqrt(99, 100)
		require.NoError(t, LiquidityFromQties(dest, current, low, high, qty0, big.NewInt(0)))
		want := new(big.Int)
		require.NoError(t, LiquidityFromQty0(want, low, high, qty0))
		assert.Zero(t, want.Cmp(dest))
	})

	t.Run("current above range uses qty1 only", func(t *testing.T) {
		dest := new(big.Int)
		current := encodePriceSqrt(2, 1)
		require.NoError(t, LiquidityFromQties(dest, current, low, high, big.NewInt(0), qty1))
		want := new(big.Int)
		require.NoError(t, LiquidityFromQty1(want, low, high, qty1))
		assert.Zero(t, want.Cmp(dest))
	})

	t.Run("current inside range takes the limiting side", func(t *testing.T) {
		dest := new(big.Int)
		current := encodePriceSqrt(110, 100)
		require.NoError(t, LiquidityFromQties(dest, current, low, high, qty0, qty1))

		l0, l1 := new(big.Int), new(big.Int)
		require.NoError(t, LiquidityFromQty0(l0, current, high, qty0))
		require.NoError(t, LiquidityFromQty1(l1, low, current, qty1))
		want := l0
		if l1.Cmp(l0) < 0 {
			want = l1
		}
		assert.Zero(t, want.Cmp(dest))
	})
}

func TestRequiredQtyRoundTrip(t *testing.T) {
	// Liquidity derived from a quantity must never demand more than that
	// quantity back, and the round trip loses at most one unit.
	low := new(big.Int)
	high := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(low, -100))
	require.NoError(t, tickmath.GetSqrtRatioAtTick(high, 100))

	for _, qtyStr := range []string{"1000", "123456789", "1000000000000000000"} {
		qty0 := fromString(qtyStr)
		liquidity := new(big.Int)
		require.NoError(t, LiquidityFromQty0(liquidity, low, high, qty0))

		back := new(big.Int)
		require.NoError(t, RequiredQty0(back, low, high, liquidity, true))
		assert.True(t, back.Cmp(qty0) <= 0, "round trip must not exceed the original quantity")

		diff := new(big.Int).Sub(qty0, back)
		// Flooring the liquidity conversion can strand a sliver of qty0.
		assert.True(t, diff.Cmp(fromString("1000")) < 0, "diff %s too large", diff)
	}

	for _, qtyStr := range []string{"1000", "123456789", "1000000000000000000"} {
		qty1 := fromString(qtyStr)
		liquidity := new(big.Int)
		require.NoError(t, LiquidityFromQty1(liquidity, low, high, qty1))

		back := new(big.Int)
		require.NoError(t, RequiredQty1(back, low, high, liquidity, true))
		assert.True(t, back.Cmp(qty1) <= 0)
	}
}

func TestRequiredQtyRounding(t *testing.T) {
	low := new(big.Int)
	high := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(low, -60))
	require.NoError(t, tickmath.GetSqrtRatioAtTick(high, 60))
	liquidity := fromString("1000000000000000000")

	up0, down0 := new(big.Int), new(big.Int)
	require.NoError(t, RequiredQty0(up0, low, high, liquidity, true))
	require.NoError(t, RequiredQty0(down0, low, high, liquidity, false))
	diff := new(big.Int).Sub(up0, down0)
	assert.True(t, diff.Sign() >= 0 && diff.Cmp(big.NewInt(2)) <= 0)

	up1, down1 := new(big.Int), new(big.Int)
	require.NoError(t, RequiredQty1(up1, low, high, liquidity, true))
	require.NoError(t, RequiredQty1(down1, low, high, liquidity, false))
	diff = new(big.Int).Sub(up1, down1)
	assert.True(t, diff.Sign() >= 0 && diff.Cmp(big.NewInt(1)) <= 0)
}

func TestQtyFromBurnReinvestmentShares(t *testing.T) {
	sqrtPrice := encodePriceSqrt(1, 1)
	liquidityDelta := fromString("1000000")

	qty0, qty1 := new(big.Int), new(big.Int)
	require.NoError(t, QtyFromBurnReinvestmentShares(qty0, qty1, sqrtPrice, liquidityDelta))

	// At price 1 both virtual reserves equal the liquidity.
	assert.Zero(t, fromString("1000000").Cmp(qty0))
	assert.Zero(t, fromString("1000000").Cmp(qty1))
}
