// Package reinvest converts growth in the pool's reinvestment liquidity
// (compounded swap fees) into newly minted reinvestment shares.
package reinvest

import (
	"math/big"

	"github.com/defistate/elastic-amm-go/fullmath"
)

// CalcShareMintQty returns the shares to mint for the reinvestment
// liquidity growth since the last checkpoint, pro-rata against the existing
// supply:
//
//	shares = supply * (reinvestmentLiquidity - reinvestmentLiquidityLast) / reinvestmentLiquidityLast
//
// Returns 0 when there has been no growth or the supply is zero; the
// zero-supply bootstrap is handled at pool initialization, which seeds a
// minimum permanently-locked share balance.
func CalcShareMintQty(dest, reinvestLiquidityLast, reinvestLiquidity, shareSupply *big.Int) error {
	dest.SetInt64(0)
	if shareSupply.Sign() == 0 || reinvestLiquidityLast.Sign() == 0 {
		return nil
	}
	if reinvestLiquidity.Cmp(reinvestLiquidityLast) <= 0 {
		return nil
	}

	delta := new(big.Int).Sub(reinvestLiquidity, reinvestLiquidityLast)
	return fullmath.MulDivFloor(dest, shareSupply, delta, reinvestLiquidityLast)
}

// CalcBurnLiquidity returns the reinvestment liquidity backing shares being
// redeemed: reinvestmentLiquidity * shares / supply, floored.
func CalcBurnLiquidity(dest, reinvestLiquidity, shares, shareSupply *big.Int) error {
	if shareSupply.Sign() == 0 {
		dest.SetInt64(0)
		return nil
	}
	return fullmath.MulDivFloor(dest, reinvestLiquidity, shares, shareSupply)
}
