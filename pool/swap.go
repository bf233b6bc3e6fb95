package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/elastic-amm-go/reinvest"
	"github.com/defistate/elastic-amm-go/swapmath"
	"github.com/defistate/elastic-amm-go/tickmath"
)

// swapScratch simulates a swap against copies of the pool's hot state.
// Nothing in the pool mutates until the simulation completes and the
// trader's settlement clears, which makes every swap all-or-nothing.
type swapScratch struct {
	specifiedRemaining *big.Int
	amount0            *big.Int
	amount1            *big.Int

	sqrtPriceX96       *big.Int
	currentTick        int64
	nearestCurrentTick int64
	baseLiquidity      *big.Int
	reinvestLiquidity  *big.Int
	reinvestLast       *big.Int
	feeGrowthGlobal    *uint256.Int
	shareSupply        *big.Int

	pendingLPShares  *big.Int
	pendingGovShares *big.Int
	crossings        []tickCrossing

	steps int
}

// tickCrossing records a boundary crossed during simulation together with
// the global fee growth at the moment of crossing, so the outside flip can
// be replayed at commit time.
type tickCrossing struct {
	tick            int64
	feeGrowthGlobal *uint256.Int
	movedUp         bool
}

func (p *Pool) newSwapScratch(amountSpecified *big.Int) *swapScratch {
	return &swapScratch{
		specifiedRemaining: new(big.Int).Set(amountSpecified),
		amount0:            new(big.Int),
		amount1:            new(big.Int),
		sqrtPriceX96:       new(big.Int).Set(p.sqrtPriceX96),
		currentTick:        p.currentTick,
		nearestCurrentTick: p.nearestCurrentTick,
		baseLiquidity:      new(big.Int).Set(p.baseLiquidity),
		reinvestLiquidity:  new(big.Int).Set(p.reinvestLiquidity),
		reinvestLast:       new(big.Int).Set(p.reinvestLiquidityLast),
		feeGrowthGlobal:    new(uint256.Int).Set(p.feeGrowthGlobal),
		shareSupply:        new(big.Int).Set(p.shareSupply),
		pendingLPShares:    new(big.Int),
		pendingGovShares:   new(big.Int),
	}
}

// Swap trades against the pool. amountSpecified is denominated in token0
// when isToken0 is true, token1 otherwise; a positive value is an exact
// input and a negative value an exact output. The price walks toward
// sqrtPriceLimitX96, crossing initialized ticks as needed, and stops at the
// limit or when the amount is exhausted. Returned deltas are signed from
// the pool's perspective: positive amounts were collected from the caller
// through the callback, negative amounts were paid out to the recipient.
func (p *Pool) Swap(
	recipient common.Address,
	amountSpecified *big.Int,
	isToken0 bool,
	sqrtPriceLimitX96 *big.Int,
	callback PaymentCallback,
) (deltaQty0, deltaQty1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if amountSpecified == nil || amountSpecified.Sign() == 0 {
		return nil, nil, ErrZeroQuantity
	}

	exactIn := amountSpecified.Sign() > 0
	priceUp := isToken0 != exactIn

	if err := p.validatePriceLimit(sqrtPriceLimitX96, priceUp); err != nil {
		return nil, nil, err
	}

	s := p.newSwapScratch(amountSpecified)
	if err := p.runSwapLoop(s, priceUp, sqrtPriceLimitX96); err != nil {
		return nil, nil, err
	}

	deltaQty0, deltaQty1 = s.amount0, s.amount1
	if err := p.settleSwap(recipient, deltaQty0, deltaQty1, callback); err != nil {
		return nil, nil, err
	}
	p.commitSwap(s)

	if p.cfg.Observer != nil {
		p.cfg.Observer.RecordObservation(s.currentTick, p.cfg.Now())
	}
	p.metrics.swaps.Inc()
	p.metrics.swapSteps.Observe(float64(s.steps))
	p.logger.Debug("swap",
		"recipient", recipient.Hex(),
		"isToken0", isToken0,
		"amountSpecified", amountSpecified.String(),
		"deltaQty0", deltaQty0.String(),
		"deltaQty1", deltaQty1.String(),
		"tick", s.currentTick,
	)
	return deltaQty0, deltaQty1, nil
}

// validatePriceLimit requires the limit to sit strictly between the current
// price and the protocol bound in the direction of travel.
func (p *Pool) validatePriceLimit(limit *big.Int, priceUp bool) error {
	if limit == nil {
		return ErrInvalidPriceLimit
	}
	if priceUp {
		if limit.Cmp(p.sqrtPriceX96) <= 0 || limit.Cmp(tickmath.MaxSqrtRatio) >= 0 {
			return ErrInvalidPriceLimit
		}
		return nil
	}
	if limit.Cmp(p.sqrtPriceX96) >= 0 || limit.Cmp(tickmath.MinSqrtRatio) <= 0 {
		return ErrInvalidPriceLimit
	}
	return nil
}

// runSwapLoop walks the price across tick ranges until the specified
// amount is exhausted or the limit is reached.
func (p *Pool) runSwapLoop(s *swapScratch, priceUp bool, limit *big.Int) error {
	var (
		sqrtTarget = new(big.Int)
		sqrtNext   = new(big.Int)
		amountIn   = new(big.Int)
		amountOut  = new(big.Int)
		feeAmount  = new(big.Int)
		liquidity  = new(big.Int)
		feeBps     = new(big.Int).SetUint64(p.cfg.SwapFeeBps)
	)

	justCrossedDown := false
	for s.specifiedRemaining.Sign() != 0 && s.sqrtPriceX96.Cmp(limit) != 0 {
		s.steps++

		targetTick, haveTick, err := s.nextTargetTick(p, priceUp)
		if err != nil {
			return err
		}
		if err := tickmath.GetSqrtRatioAtTick(sqrtTarget, targetTick); err != nil {
			return err
		}
		// The nearer of the boundary tick and the price limit caps this step.
		if priceUp && sqrtTarget.Cmp(limit) > 0 || !priceUp && sqrtTarget.Cmp(limit) < 0 {
			sqrtTarget.Set(limit)
			haveTick = false
		}

		liquidity.Add(s.baseLiquidity, s.reinvestLiquidity)
		if err := swapmath.ComputeSwapStep(
			sqrtNext, amountIn, amountOut, feeAmount,
			s.sqrtPriceX96, sqrtTarget, liquidity, s.specifiedRemaining, feeBps,
		); err != nil {
			return err
		}
		zeroStep := sqrtNext.Cmp(s.sqrtPriceX96) == 0 &&
			amountIn.Sign() == 0 && amountOut.Sign() == 0 && feeAmount.Sign() == 0
		// A step that moved nothing ends the loop, unless the price sits on
		// an initialized tick that still has to be crossed before the next
		// step can make progress.
		if zeroStep && !(haveTick && sqrtNext.Cmp(sqrtTarget) == 0) {
			break
		}

		inputIsToken0 := !priceUp
		s.accumulate(amountIn, amountOut, feeAmount, inputIsToken0)
		if err := s.reinvestFee(feeAmount, sqrtNext, inputIsToken0); err != nil {
			return err
		}
		s.sqrtPriceX96.Set(sqrtNext)
		justCrossedDown = false

		if haveTick && sqrtNext.Cmp(sqrtTarget) == 0 {
			s.syncReinvestmentScratch(p)
			s.cross(p, targetTick, priceUp)
			justCrossedDown = !priceUp
		}
	}

	s.syncReinvestmentScratch(p)

	if !justCrossedDown {
		tick, err := tickmath.GetTickAtSqrtRatio(s.sqrtPriceX96)
		if err != nil {
			return err
		}
		s.currentTick = tick
	}
	return nil
}

// nextTargetTick returns the boundary tick capping the current step. The
// bool reports whether reaching it means crossing an initialized tick, as
// opposed to running into a sentinel.
func (s *swapScratch) nextTargetTick(p *Pool, priceUp bool) (int64, bool, error) {
	if !priceUp {
		tick := s.nearestCurrentTick
		_, initialized := p.ticks[tick]
		return tick, initialized, nil
	}
	tick, err := p.list.Next(s.nearestCurrentTick)
	if err != nil {
		return 0, false, err
	}
	_, initialized := p.ticks[tick]
	return tick, initialized, nil
}

// accumulate folds one step's legs into the signed pool-perspective token
// deltas and the remaining specified amount.
func (s *swapScratch) accumulate(amountIn, amountOut, feeAmount *big.Int, inputIsToken0 bool) {
	paid := new(big.Int).Add(amountIn, feeAmount)
	if inputIsToken0 {
		s.amount0.Add(s.amount0, paid)
		s.amount1.Sub(s.amount1, amountOut)
	} else {
		s.amount1.Add(s.amount1, paid)
		s.amount0.Sub(s.amount0, amountOut)
	}

	if s.specifiedRemaining.Sign() > 0 {
		s.specifiedRemaining.Sub(s.specifiedRemaining, paid)
		if s.specifiedRemaining.Sign() < 0 {
			s.specifiedRemaining.SetInt64(0)
		}
	} else {
		s.specifiedRemaining.Add(s.specifiedRemaining, amountOut)
		if s.specifiedRemaining.Sign() > 0 {
			s.specifiedRemaining.SetInt64(0)
		}
	}
}

// reinvestFee converts a fee amount in the input token into virtual
// liquidity at the step's ending price and accrues it.
func (s *swapScratch) reinvestFee(feeAmount, sqrtPrice *big.Int, inputIsToken0 bool) error {
	if feeAmount.Sign() == 0 {
		return nil
	}
	delta := new(big.Int)
	if inputIsToken0 {
		delta.Mul(feeAmount, sqrtPrice)
		delta.Rsh(delta, 96)
	} else {
		delta.Lsh(feeAmount, 96)
		delta.Div(delta, sqrtPrice)
	}
	s.reinvestLiquidity.Add(s.reinvestLiquidity, delta)
	return nil
}

// cross records an initialized tick crossing: the outside flip is deferred
// to commit, while liquidity and position tracking update immediately.
func (s *swapScratch) cross(p *Pool, tick int64, movedUp bool) {
	data := p.ticks[tick]
	s.crossings = append(s.crossings, tickCrossing{
		tick:            tick,
		feeGrowthGlobal: new(uint256.Int).Set(s.feeGrowthGlobal),
		movedUp:         movedUp,
	})

	if movedUp {
		s.baseLiquidity.Add(s.baseLiquidity, data.LiquidityNet)
		s.nearestCurrentTick = tick
		s.currentTick = tick
	} else {
		s.baseLiquidity.Sub(s.baseLiquidity, data.LiquidityNet)
		if prev, err := p.list.Prev(tick); err == nil {
			s.nearestCurrentTick = prev
		}
		s.currentTick = tick - 1
	}
}

// syncReinvestmentScratch mirrors Pool.syncReinvestment against the
// scratch state, deferring share credits until commit.
func (s *swapScratch) syncReinvestmentScratch(p *Pool) {
	minted := new(big.Int)
	if err := reinvest.CalcShareMintQty(minted, s.reinvestLast, s.reinvestLiquidity, s.shareSupply); err != nil || minted.Sign() == 0 {
		s.reinvestLast.Set(s.reinvestLiquidity)
		return
	}

	gov := new(big.Int).Mul(minted, new(big.Int).SetUint64(p.cfg.GovernmentFeeBps))
	gov.Div(gov, bpsBig)
	lp := new(big.Int).Sub(minted, gov)

	s.shareSupply.Add(s.shareSupply, minted)
	s.pendingLPShares.Add(s.pendingLPShares, lp)
	s.pendingGovShares.Add(s.pendingGovShares, gov)

	if s.baseLiquidity.Sign() > 0 {
		lpU, _ := uint256.FromBig(lp)
		baseU, _ := uint256.FromBig(s.baseLiquidity)
		growth := new(uint256.Int).Mul(lpU, q96U)
		growth.Div(growth, baseU)
		s.feeGrowthGlobal.Add(s.feeGrowthGlobal, growth)
	}
	s.reinvestLast.Set(s.reinvestLiquidity)
}

// settleSwap moves tokens: amounts owed to the pool come in through the
// callback and are verified by balance delta; amounts owed to the caller
// go out to the recipient. Outbound balances are checked before any token
// moves so a failure leaves custody untouched.
func (p *Pool) settleSwap(recipient common.Address, deltaQty0, deltaQty1 *big.Int, callback PaymentCallback) error {
	owed0, owed1 := new(big.Int), new(big.Int)
	out0, out1 := new(big.Int), new(big.Int)
	if deltaQty0.Sign() > 0 {
		owed0.Set(deltaQty0)
	} else {
		out0.Neg(deltaQty0)
	}
	if deltaQty1.Sign() > 0 {
		owed1.Set(deltaQty1)
	} else {
		out1.Neg(deltaQty1)
	}

	if p.cfg.Token0.BalanceOf(p.cfg.Address).Cmp(out0) < 0 ||
		p.cfg.Token1.BalanceOf(p.cfg.Address).Cmp(out1) < 0 {
		return ErrInsufficientBalance
	}

	if owed0.Sign() > 0 || owed1.Sign() > 0 {
		if err := p.settle(owed0, owed1, callback); err != nil {
			return err
		}
	}
	return p.payOut(recipient, out0, out1)
}

// commitSwap folds the simulated state back into the pool, replaying
// deferred tick flips against the fee growth observed at each crossing.
func (p *Pool) commitSwap(s *swapScratch) {
	p.sqrtPriceX96.Set(s.sqrtPriceX96)
	p.currentTick = s.currentTick
	p.nearestCurrentTick = s.nearestCurrentTick
	p.baseLiquidity.Set(s.baseLiquidity)
	p.reinvestLiquidity.Set(s.reinvestLiquidity)
	p.reinvestLiquidityLast.Set(s.reinvestLast)
	p.feeGrowthGlobal.Set(s.feeGrowthGlobal)
	p.shareSupply.Set(s.shareSupply)

	for _, c := range s.crossings {
		if data, ok := p.ticks[c.tick]; ok {
			data.FeeGrowthOutside.Sub(c.feeGrowthGlobal, data.FeeGrowthOutside)
		}
		p.metrics.tickCrossings.Inc()
	}
	if s.pendingLPShares.Sign() > 0 {
		p.creditShares(p.cfg.Address, s.pendingLPShares)
	}
	if s.pendingGovShares.Sign() > 0 {
		p.creditShares(p.cfg.FeeTo, s.pendingGovShares)
	}
}
