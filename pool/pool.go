// Package pool implements a concentrated-liquidity AMM pool: liquidity
// positions across tick ranges, swaps that move a Q64.96 sqrt price across
// initialized tick boundaries, fee compounding into reinvestment shares,
// and anti-snipe fee vesting for liquidity providers.
package pool

import (
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/elastic-amm-go/antisnipe"
	"github.com/defistate/elastic-amm-go/fullmath"
	"github.com/defistate/elastic-amm-go/qtymath"
	"github.com/defistate/elastic-amm-go/reinvest"
	"github.com/defistate/elastic-amm-go/ticklist"
	"github.com/defistate/elastic-amm-go/tickmath"
)

const bps = 10000

var (
	// MinLiquidity seeds the reinvestment system at initialization. The
	// matching bootstrap shares are credited to the zero address and are
	// never redeemable, which rules out divide-by-zero and donation
	// attacks on the share price.
	MinLiquidity = big.NewInt(100000)

	bpsBig = big.NewInt(bps)
	q96U   = uint256.MustFromBig(fullmath.Q96)

	// lockedAddress holds the permanently locked bootstrap shares.
	lockedAddress = common.Address{}
)

// Pool owns the entire mutable state of one pool instance. Distinct pools
// share nothing; operations on one pool are serialized by the lock flag.
type Pool struct {
	cfg     Config
	logger  Logger
	metrics *Metrics

	locked      atomic.Bool
	initialized bool

	sqrtPriceX96       *big.Int
	currentTick        int64
	nearestCurrentTick int64
	baseLiquidity      *big.Int
	feeGrowthGlobal    *uint256.Int

	reinvestLiquidity     *big.Int
	reinvestLiquidityLast *big.Int

	ticks     map[int64]*TickData
	list      *ticklist.List
	positions map[PositionKey]*Position

	shareSupply   *big.Int
	shareBalances map[common.Address]*big.Int

	maxLiquidityPerTick *big.Int
}

// NewPool constructs an uninitialized pool from externally-owned
// configuration. Trading requires a subsequent Initialize call.
func NewPool(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	tickCount := (tickmath.MaxTick-tickmath.MinTick)/cfg.TickSpacing + 1
	maxPerTick := new(big.Int).Div(fullmath.MaxUint128, big.NewInt(tickCount))

	return &Pool{
		cfg:                   cfg,
		logger:                cfg.Logger,
		metrics:               NewMetrics(cfg.Registry),
		sqrtPriceX96:          new(big.Int),
		nearestCurrentTick:    tickmath.MinTick,
		baseLiquidity:         new(big.Int),
		feeGrowthGlobal:       new(uint256.Int),
		reinvestLiquidity:     new(big.Int),
		reinvestLiquidityLast: new(big.Int),
		ticks:                 make(map[int64]*TickData),
		list:                  ticklist.New(tickmath.MinTick, tickmath.MaxTick),
		positions:             make(map[PositionKey]*Position),
		shareSupply:           new(big.Int),
		shareBalances:         make(map[common.Address]*big.Int),
		maxLiquidityPerTick:   maxPerTick,
	}, nil
}

// lock acquires the pool's single-writer flag.
func (p *Pool) lock() error {
	if !p.locked.CompareAndSwap(false, true) {
		return ErrPoolLocked
	}
	return nil
}

func (p *Pool) unlock() { p.locked.Store(false) }

// Initialize sets the starting price, derives the matching tick, and seeds
// the reinvestment system with MinLiquidity as an implicit bootstrap
// position. The caller settles the bootstrap token amounts through the
// callback. Calling Initialize twice fails.
func (p *Pool) Initialize(initialSqrtPriceX96 *big.Int, callback PaymentCallback) (qty0, qty1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if p.initialized {
		return nil, nil, ErrAlreadyInitialized
	}
	if initialSqrtPriceX96 == nil ||
		initialSqrtPriceX96.Cmp(tickmath.MinSqrtRatio) < 0 ||
		initialSqrtPriceX96.Cmp(tickmath.MaxSqrtRatio) >= 0 {
		return nil, nil, tickmath.ErrSqrtPriceOutOfBounds
	}

	tick, err := tickmath.GetTickAtSqrtRatio(initialSqrtPriceX96)
	if err != nil {
		return nil, nil, err
	}

	// Bootstrap token amounts for MinLiquidity at the initial price,
	// rounded up in the pool's favor.
	qty0 = new(big.Int)
	if err := fullmath.DivCeiling(qty0, new(big.Int).Lsh(MinLiquidity, 96), initialSqrtPriceX96); err != nil {
		return nil, nil, err
	}
	qty1 = new(big.Int)
	if err := fullmath.MulDivCeiling(qty1, MinLiquidity, initialSqrtPriceX96, fullmath.Q96); err != nil {
		return nil, nil, err
	}

	if err := p.settle(qty0, qty1, callback); err != nil {
		return nil, nil, err
	}

	p.sqrtPriceX96.Set(initialSqrtPriceX96)
	p.currentTick = tick
	p.nearestCurrentTick = tickmath.MinTick
	p.reinvestLiquidity.Set(MinLiquidity)
	p.reinvestLiquidityLast.Set(MinLiquidity)
	p.shareSupply.Set(MinLiquidity)
	p.creditShares(lockedAddress, MinLiquidity)
	p.initialized = true

	p.logger.Info("pool initialized", "tick", tick, "sqrtPriceX96", initialSqrtPriceX96.String())
	return qty0, qty1, nil
}

// Mint adds liquidityDelta to the (owner, range) position. The lower hints
// name a present list tick at or immediately below each boundary; callers
// can derive them with PreviousInitialized. Token amounts owed are rounded
// up and collected through the callback; underpayment fails the whole
// operation with no state change.
func (p *Pool) Mint(
	owner common.Address,
	tickLower, tickUpper int64,
	tickLowerHint, tickUpperHint int64,
	liquidityDelta *big.Int,
	callback PaymentCallback,
) (qty0, qty1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if liquidityDelta == nil || liquidityDelta.Sign() <= 0 {
		return nil, nil, ErrZeroQuantity
	}
	if err := p.validateTickRange(tickLower, tickUpper); err != nil {
		return nil, nil, err
	}
	if err := p.checkTickDelta(tickLower, liquidityDelta); err != nil {
		return nil, nil, err
	}
	if err := p.checkTickDelta(tickUpper, liquidityDelta); err != nil {
		return nil, nil, err
	}

	j := newJournal(p)
	commit := func() error {
		p.syncReinvestment(j)
		if _, err := p.updatePosition(owner, tickLower, tickUpper, liquidityDelta, tickLowerHint, tickUpperHint, j); err != nil {
			return err
		}

		qty0, qty1 = new(big.Int), new(big.Int)
		if err := p.qtysForLiquidity(qty0, qty1, tickLower, tickUpper, liquidityDelta, true); err != nil {
			return err
		}
		return p.settle(qty0, qty1, callback)
	}
	if err := commit(); err != nil {
		j.restore(p)
		return nil, nil, err
	}

	p.metrics.mints.Inc()
	p.logger.Debug("mint", "owner", owner.Hex(), "tickLower", tickLower, "tickUpper", tickUpper, "liquidity", liquidityDelta.String())
	return qty0, qty1, nil
}

// Burn removes liquidityDelta from the (owner, range) position, transfers
// the underlying token amounts (rounded down) to the owner, and settles
// the position's vested reinvestment shares. A burn that empties the
// position inside the vesting window forfeits its unvested locked fees.
func (p *Pool) Burn(
	owner common.Address,
	tickLower, tickUpper int64,
	liquidityDelta *big.Int,
) (qty0, qty1, feeShares *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, nil, nil, ErrNotInitialized
	}
	if liquidityDelta == nil || liquidityDelta.Sign() <= 0 {
		return nil, nil, nil, ErrZeroQuantity
	}
	if err := p.validateTickRange(tickLower, tickUpper); err != nil {
		return nil, nil, nil, err
	}

	key := PositionKey{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	pos, ok := p.positions[key]
	if !ok || pos.Liquidity.Cmp(liquidityDelta) < 0 {
		return nil, nil, nil, ErrLiquidityUnderflow
	}

	negDelta := new(big.Int).Neg(liquidityDelta)
	if err := p.checkTickDelta(tickLower, negDelta); err != nil {
		return nil, nil, nil, err
	}
	if err := p.checkTickDelta(tickUpper, negDelta); err != nil {
		return nil, nil, nil, err
	}

	qty0, qty1 = new(big.Int), new(big.Int)
	if err := p.qtysForLiquidity(qty0, qty1, tickLower, tickUpper, liquidityDelta, false); err != nil {
		return nil, nil, nil, err
	}
	if p.cfg.Token0.BalanceOf(p.cfg.Address).Cmp(qty0) < 0 ||
		p.cfg.Token1.BalanceOf(p.cfg.Address).Cmp(qty1) < 0 {
		return nil, nil, nil, ErrInsufficientBalance
	}

	j := newJournal(p)
	commit := func() error {
		p.syncReinvestment(j)
		var err error
		feeShares, err = p.updatePosition(owner, tickLower, tickUpper, negDelta, 0, 0, j)
		if err != nil {
			return err
		}
		return p.payOut(owner, qty0, qty1)
	}
	if err := commit(); err != nil {
		j.restore(p)
		return nil, nil, nil, err
	}

	p.metrics.burns.Inc()
	p.logger.Debug("burn", "owner", owner.Hex(), "tickLower", tickLower, "tickUpper", tickUpper, "liquidity", liquidityDelta.String(), "feeShares", feeShares.String())
	return qty0, qty1, feeShares, nil
}

// BurnReinvestmentShares redeems the caller's reinvestment shares for the
// underlying token amounts at the current price, rounded down, shrinking
// the reinvestment liquidity and its checkpoint proportionally.
func (p *Pool) BurnReinvestmentShares(owner common.Address, shares *big.Int) (qty0, qty1 *big.Int, err error) {
	if err := p.lock(); err != nil {
		return nil, nil, err
	}
	defer p.unlock()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrZeroQuantity
	}
	if p.balanceOfShares(owner).Cmp(shares) < 0 {
		return nil, nil, ErrInsufficientBalance
	}

	j := newJournal(p)
	commit := func() error {
		p.syncReinvestment(j)

		deltaL := new(big.Int)
		if err := reinvest.CalcBurnLiquidity(deltaL, p.reinvestLiquidity, shares, p.shareSupply); err != nil {
			return err
		}

		qty0, qty1 = new(big.Int), new(big.Int)
		if err := qtymath.QtyFromBurnReinvestmentShares(qty0, qty1, p.sqrtPriceX96, deltaL); err != nil {
			return err
		}
		if p.cfg.Token0.BalanceOf(p.cfg.Address).Cmp(qty0) < 0 ||
			p.cfg.Token1.BalanceOf(p.cfg.Address).Cmp(qty1) < 0 {
			return ErrInsufficientBalance
		}

		j.snapShares(p, owner)
		p.debitShares(owner, shares)
		p.shareSupply.Sub(p.shareSupply, shares)
		p.reinvestLiquidity.Sub(p.reinvestLiquidity, deltaL)
		p.reinvestLiquidityLast.Sub(p.reinvestLiquidityLast, deltaL)

		return p.payOut(owner, qty0, qty1)
	}
	if err := commit(); err != nil {
		j.restore(p)
		return nil, nil, err
	}

	p.metrics.shareBurns.Inc()
	p.logger.Debug("burn reinvestment shares", "owner", owner.Hex(), "shares", shares.String())
	return qty0, qty1, nil
}

// updatePosition applies a signed liquidity delta to a position and its two
// boundary ticks, settles the position's fee shares through the vesting
// schedule, and adjusts active liquidity when the range straddles the
// current tick. Callers validate bounds first; the only failure mode left
// is an invalid insertion hint.
func (p *Pool) updatePosition(
	owner common.Address,
	tickLower, tickUpper int64,
	liquidityDelta *big.Int,
	tickLowerHint, tickUpperHint int64,
	j *journal,
) (feeShares *big.Int, err error) {
	j.snapTick(p, tickLower)
	j.snapTick(p, tickUpper)

	isAdd := liquidityDelta.Sign() > 0
	if isAdd {
		if err := p.list.ValidateHint(tickLower, tickLowerHint); err != nil {
			return nil, err
		}
	}
	flippedLower := p.applyTickDelta(tickLower, liquidityDelta, true, tickLowerHint)
	if isAdd {
		// Validated after the lower insert so a hint naming tickLower
		// itself resolves.
		if err := p.list.ValidateHint(tickUpper, tickUpperHint); err != nil {
			return nil, err
		}
	}
	flippedUpper := p.applyTickDelta(tickUpper, liquidityDelta, false, tickUpperHint)

	inside := p.feeGrowthInside(tickLower, tickUpper)

	key := PositionKey{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	j.snapPosition(p, key)
	pos, ok := p.positions[key]
	if !ok {
		pos = &Position{
			Liquidity:           new(big.Int),
			FeeGrowthInsideLast: new(uint256.Int).Set(inside),
			Vesting:             antisnipe.Initialize(p.cfg.Now()),
		}
		p.positions[key] = pos
	}

	accrued := pos.feesAccruedShares(inside)
	now := p.cfg.Now()

	var claimable, burnable *big.Int
	if isAdd {
		claimable, burnable = pos.Vesting.Update(pos.Liquidity, liquidityDelta, now, true, accrued, p.cfg.VestingPeriod)
	} else {
		removing := new(big.Int).Abs(liquidityDelta)
		fullWithdrawal := removing.Cmp(pos.Liquidity) == 0
		if fullWithdrawal && p.cfg.VestingPeriod > 0 && now < pos.Vesting.UnlockTime {
			claimable, burnable = pos.Vesting.Snip(now, accrued)
		} else {
			claimable, burnable = pos.Vesting.Update(pos.Liquidity, removing, now, false, accrued, p.cfg.VestingPeriod)
		}
	}

	pos.Liquidity.Add(pos.Liquidity, liquidityDelta)
	pos.FeeGrowthInsideLast.Set(inside)

	if tickLower <= p.currentTick && p.currentTick < tickUpper {
		p.baseLiquidity.Add(p.baseLiquidity, liquidityDelta)
	}

	p.settleFeeShares(owner, claimable, burnable, j)

	// Clear any boundary tick whose last reference was just removed.
	if flippedLower && p.tickGross(tickLower).Sign() == 0 {
		j.snapListRemoval(p, tickLower)
		p.clearTick(tickLower)
	}
	if flippedUpper && p.tickGross(tickUpper).Sign() == 0 {
		j.snapListRemoval(p, tickUpper)
		p.clearTick(tickUpper)
	}

	return claimable, nil
}

// settleFeeShares moves a position's vested shares from the pool's custody
// balance to the owner and burns forfeited shares from supply. Burned
// shares take no underlying with them, so their value accrues to the
// remaining holders.
func (p *Pool) settleFeeShares(owner common.Address, claimable, burnable *big.Int, j *journal) {
	if claimable.Sign() > 0 {
		j.snapShares(p, p.cfg.Address)
		j.snapShares(p, owner)
		pay := bigMin(claimable, p.balanceOfShares(p.cfg.Address))
		p.debitShares(p.cfg.Address, pay)
		p.creditShares(owner, pay)
		claimable.Set(pay)
	}
	if burnable.Sign() > 0 {
		j.snapShares(p, p.cfg.Address)
		burn := bigMin(burnable, p.balanceOfShares(p.cfg.Address))
		p.debitShares(p.cfg.Address, burn)
		p.shareSupply.Sub(p.shareSupply, burn)
	}
}

// syncReinvestment converts reinvestment liquidity growth since the last
// checkpoint into newly minted shares: the government cut goes to FeeTo,
// the rest to the pool's custody balance, and the fee growth accumulator
// advances by the LP share per unit of active liquidity.
func (p *Pool) syncReinvestment(j *journal) {
	minted := new(big.Int)
	if err := reinvest.CalcShareMintQty(minted, p.reinvestLiquidityLast, p.reinvestLiquidity, p.shareSupply); err != nil || minted.Sign() == 0 {
		p.reinvestLiquidityLast.Set(p.reinvestLiquidity)
		return
	}

	gov := new(big.Int).Mul(minted, new(big.Int).SetUint64(p.cfg.GovernmentFeeBps))
	gov.Div(gov, bpsBig)
	lp := new(big.Int).Sub(minted, gov)

	j.snapShares(p, p.cfg.Address)
	j.snapShares(p, p.cfg.FeeTo)
	p.shareSupply.Add(p.shareSupply, minted)
	p.creditShares(p.cfg.Address, lp)
	if gov.Sign() > 0 {
		p.creditShares(p.cfg.FeeTo, gov)
	}

	if p.baseLiquidity.Sign() > 0 {
		lpU, _ := uint256.FromBig(lp)
		baseU, _ := uint256.FromBig(p.baseLiquidity)
		growth := new(uint256.Int).Mul(lpU, q96U)
		growth.Div(growth, baseU)
		p.feeGrowthGlobal.Add(p.feeGrowthGlobal, growth)
	}
	p.reinvestLiquidityLast.Set(p.reinvestLiquidity)
}

// qtysForLiquidity computes the token amounts spanned by a liquidity delta
// over a range relative to the current price. roundUp selects amounts owed
// to the pool (mint); floor selects amounts owed to the caller (burn).
func (p *Pool) qtysForLiquidity(qty0, qty1 *big.Int, tickLower, tickUpper int64, liquidity *big.Int, roundUp bool) error {
	sqrtLower, sqrtUpper := new(big.Int), new(big.Int)
	if err := tickmath.GetSqrtRatioAtTick(sqrtLower, tickLower); err != nil {
		return err
	}
	if err := tickmath.GetSqrtRatioAtTick(sqrtUpper, tickUpper); err != nil {
		return err
	}

	switch {
	case p.currentTick < tickLower:
		qty1.SetInt64(0)
		return qtymath.RequiredQty0(qty0, sqrtLower, sqrtUpper, liquidity, roundUp)
	case p.currentTick >= tickUpper:
		qty0.SetInt64(0)
		return qtymath.RequiredQty1(qty1, sqrtLower, sqrtUpper, liquidity, roundUp)
	default:
		// The price can sit exactly on a range bound, right after Initialize
		// at an aligned tick or after a swap that stopped on the boundary
		// ratio. The zero-width leg contributes nothing.
		if p.sqrtPriceX96.Cmp(sqrtUpper) == 0 {
			qty0.SetInt64(0)
		} else if err := qtymath.RequiredQty0(qty0, p.sqrtPriceX96, sqrtUpper, liquidity, roundUp); err != nil {
			return err
		}
		if p.sqrtPriceX96.Cmp(sqrtLower) == 0 {
			qty1.SetInt64(0)
			return nil
		}
		return qtymath.RequiredQty1(qty1, sqrtLower, p.sqrtPriceX96, liquidity, roundUp)
	}
}

// payOut sends both token amounts from pool custody to recipient. If the
// second transfer fails the first is reversed so the backend never keeps a
// partial payout alongside a rolled-back pool state.
func (p *Pool) payOut(recipient common.Address, qty0, qty1 *big.Int) error {
	sent0 := false
	if qty0.Sign() > 0 {
		if err := p.cfg.Token0.Transfer(p.cfg.Address, recipient, qty0); err != nil {
			return err
		}
		sent0 = true
	}
	if qty1.Sign() > 0 {
		if err := p.cfg.Token1.Transfer(p.cfg.Address, recipient, qty1); err != nil {
			if sent0 {
				if rerr := p.cfg.Token0.Transfer(recipient, p.cfg.Address, qty0); rerr != nil {
					p.logger.Error("token0 payout reversal failed",
						"recipient", recipient.Hex(), "qty0", qty0.String(), "err", rerr)
				}
			}
			return err
		}
	}
	return nil
}

// settle collects amounts owed to the pool through the payment callback,
// verifying receipt by balance delta rather than trusting return values.
func (p *Pool) settle(owed0, owed1 *big.Int, callback PaymentCallback) error {
	if callback == nil {
		return fmt.Errorf("%w: no payment callback", ErrInsufficientSettlement)
	}

	before0 := p.cfg.Token0.BalanceOf(p.cfg.Address)
	before1 := p.cfg.Token1.BalanceOf(p.cfg.Address)

	if err := callback.Pay(owed0, owed1); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientSettlement, err)
	}

	delta0 := new(big.Int).Sub(p.cfg.Token0.BalanceOf(p.cfg.Address), before0)
	delta1 := new(big.Int).Sub(p.cfg.Token1.BalanceOf(p.cfg.Address), before1)
	if delta0.Cmp(owed0) < 0 || delta1.Cmp(owed1) < 0 {
		return ErrInsufficientSettlement
	}
	return nil
}

func (p *Pool) validateTickRange(tickLower, tickUpper int64) error {
	if tickLower >= tickUpper {
		return ErrInvalidTickRange
	}
	if tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return tickmath.ErrTickOutOfBounds
	}
	if tickLower%p.cfg.TickSpacing != 0 || tickUpper%p.cfg.TickSpacing != 0 {
		return ErrTickNotAligned
	}
	return nil
}

func (p *Pool) tickGross(tick int64) *big.Int {
	if data, ok := p.ticks[tick]; ok {
		return data.LiquidityGross
	}
	return new(big.Int)
}

func (p *Pool) balanceOfShares(addr common.Address) *big.Int {
	if bal, ok := p.shareBalances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

func (p *Pool) creditShares(addr common.Address, amount *big.Int) {
	bal, ok := p.shareBalances[addr]
	if !ok {
		bal = new(big.Int)
		p.shareBalances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (p *Pool) debitShares(addr common.Address, amount *big.Int) {
	if bal, ok := p.shareBalances[addr]; ok {
		bal.Sub(bal, amount)
	}
}

func bigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}
