package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/elastic-amm-go/antisnipe"
)

// PositionKey uniquely identifies a position by owner and range.
type PositionKey struct {
	Owner     common.Address
	TickLower int64
	TickUpper int64
}

// Position is the per-(owner, range) liquidity record. It persists for
// accounting continuity even after its liquidity falls to zero.
type Position struct {
	// Liquidity is the owner's active liquidity in this range.
	Liquidity *big.Int
	// FeeGrowthInsideLast snapshots fee growth inside the range at the last
	// update; newly accrued fees are the wrapped difference times liquidity.
	FeeGrowthInsideLast *uint256.Int
	// Vesting is the anti-snipe schedule for this position's fees.
	Vesting antisnipe.State
}

func (p *Position) clone() *Position {
	return &Position{
		Liquidity:           new(big.Int).Set(p.Liquidity),
		FeeGrowthInsideLast: new(uint256.Int).Set(p.FeeGrowthInsideLast),
		Vesting:             p.Vesting.Clone(),
	}
}

// feesAccruedShares returns the reinvestment shares earned by the position
// since its last snapshot: (inside - last) * liquidity / Q96, with the
// subtraction wrapping mod 2^256.
func (p *Position) feesAccruedShares(inside *uint256.Int) *big.Int {
	if p.Liquidity.Sign() == 0 {
		return new(big.Int)
	}
	delta := new(uint256.Int).Sub(inside, p.FeeGrowthInsideLast)
	liquidity, _ := uint256.FromBig(p.Liquidity)
	shares := new(uint256.Int).Mul(delta, liquidity)
	shares.Div(shares, q96U)
	return shares.ToBig()
}
