package pool

import (
	"math/big"

	"github.com/holiman/uint256"
)

// TickData holds the liquidity and fee bookkeeping for one initialized
// tick. A tick exists in the map iff its gross liquidity is nonzero, so
// presence implies initialized.
type TickData struct {
	// LiquidityGross is the unsigned magnitude of all liquidity referencing
	// this tick. It never exceeds the pool's per-tick cap.
	LiquidityGross *big.Int
	// LiquidityNet is the signed delta applied to active liquidity when the
	// price crosses this tick upward.
	LiquidityNet *big.Int
	// FeeGrowthOutside is the fee growth accumulated on the far side of the
	// tick, in the current reference frame. Arithmetic is mod 2^256.
	FeeGrowthOutside *uint256.Int
}

func newTickData() *TickData {
	return &TickData{
		LiquidityGross:   new(big.Int),
		LiquidityNet:     new(big.Int),
		FeeGrowthOutside: new(uint256.Int),
	}
}

// clone returns a deep copy of the tick data.
func (t *TickData) clone() *TickData {
	return &TickData{
		LiquidityGross:   new(big.Int).Set(t.LiquidityGross),
		LiquidityNet:     new(big.Int).Set(t.LiquidityNet),
		FeeGrowthOutside: new(uint256.Int).Set(t.FeeGrowthOutside),
	}
}

// checkTickDelta verifies that applying liquidityDelta to the tick's gross
// liquidity stays within [0, maxLiquidityPerTick]. Read-only: part of the
// validate-everything-then-commit ordering.
func (p *Pool) checkTickDelta(tick int64, liquidityDelta *big.Int) error {
	gross := new(big.Int)
	if data, ok := p.ticks[tick]; ok {
		gross.Set(data.LiquidityGross)
	}
	gross.Add(gross, liquidityDelta)
	if gross.Sign() < 0 {
		return ErrLiquidityUnderflow
	}
	if gross.Cmp(p.maxLiquidityPerTick) > 0 {
		return ErrLiquidityOverflow
	}
	return nil
}

// applyTickDelta updates one boundary tick of a position. It must only run
// after checkTickDelta and hint validation have passed; from here the
// update is infallible. Returns whether the tick flipped between
// initialized and cleared.
func (p *Pool) applyTickDelta(tick int64, liquidityDelta *big.Int, isLower bool, hintLower int64) bool {
	data, ok := p.ticks[tick]
	if !ok {
		data = newTickData()
		p.ticks[tick] = data
	}

	grossBefore := data.LiquidityGross.Sign() != 0
	data.LiquidityGross.Add(data.LiquidityGross, liquidityDelta)
	grossAfter := data.LiquidityGross.Sign() != 0

	if !grossBefore && grossAfter {
		// First reference: attribute all prior fee growth to the side away
		// from the current price.
		if tick <= p.currentTick {
			data.FeeGrowthOutside.Set(p.feeGrowthGlobal)
		}
	}

	if isLower {
		data.LiquidityNet.Add(data.LiquidityNet, liquidityDelta)
	} else {
		data.LiquidityNet.Sub(data.LiquidityNet, liquidityDelta)
	}

	flipped := grossBefore != grossAfter
	if flipped && grossAfter {
		// Hint was validated up front; Insert cannot fail here.
		_ = p.list.Insert(tick, hintLower)
		if tick <= p.currentTick && tick > p.nearestCurrentTick {
			p.nearestCurrentTick = tick
		}
	}
	return flipped
}

// clearTick zeroes and removes a tick whose gross liquidity has returned
// to zero, so subsequent reads see a fresh, uninitialized tick.
func (p *Pool) clearTick(tick int64) {
	prev, err := p.list.Remove(tick)
	if err == nil && tick == p.nearestCurrentTick {
		p.nearestCurrentTick = prev
	}
	delete(p.ticks, tick)
}

// feeGrowthInside computes the fee growth accumulated inside the range, in
// wrapping mod 2^256 arithmetic: global minus both boundary outsides.
func (p *Pool) feeGrowthInside(tickLower, tickUpper int64) *uint256.Int {
	inside := new(uint256.Int).Set(p.feeGrowthGlobal)
	if data, ok := p.ticks[tickLower]; ok {
		inside.Sub(inside, data.FeeGrowthOutside)
	}
	if data, ok := p.ticks[tickUpper]; ok {
		inside.Sub(inside, data.FeeGrowthOutside)
	}
	return inside
}
