package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/defistate/elastic-amm-go/ticklist"
	"github.com/defistate/elastic-amm-go/tickmath"
)

// PoolState is a deep, self-contained snapshot of one pool's bookkeeping.
// It carries everything needed to reconstruct the pool on another engine
// instance; token custody stays with the backends and is not part of it.
type PoolState struct {
	Initialized        bool
	SqrtPriceX96       *big.Int
	CurrentTick        int64
	NearestCurrentTick int64
	BaseLiquidity      *big.Int
	FeeGrowthGlobal    *uint256.Int

	ReinvestmentLiquidity     *big.Int
	ReinvestmentLiquidityLast *big.Int

	Ticks map[int64]*TickData
	// InitializedTicks lists the tick indices in ascending order,
	// sentinels excluded; it rebuilds the linked list on restore.
	InitializedTicks []int64

	Positions     map[PositionKey]*Position
	ShareSupply   *big.Int
	ShareBalances map[common.Address]*big.Int
}

// State returns a deep snapshot of the pool.
func (p *Pool) State() (*PoolState, error) {
	if err := p.lock(); err != nil {
		return nil, err
	}
	defer p.unlock()

	s := &PoolState{
		Initialized:               p.initialized,
		SqrtPriceX96:              new(big.Int).Set(p.sqrtPriceX96),
		CurrentTick:               p.currentTick,
		NearestCurrentTick:        p.nearestCurrentTick,
		BaseLiquidity:             new(big.Int).Set(p.baseLiquidity),
		FeeGrowthGlobal:           new(uint256.Int).Set(p.feeGrowthGlobal),
		ReinvestmentLiquidity:     new(big.Int).Set(p.reinvestLiquidity),
		ReinvestmentLiquidityLast: new(big.Int).Set(p.reinvestLiquidityLast),
		Ticks:                     make(map[int64]*TickData, len(p.ticks)),
		Positions:                 make(map[PositionKey]*Position, len(p.positions)),
		ShareSupply:               new(big.Int).Set(p.shareSupply),
		ShareBalances:             make(map[common.Address]*big.Int, len(p.shareBalances)),
	}
	for tick, data := range p.ticks {
		s.Ticks[tick] = data.clone()
	}
	for _, tick := range p.list.Page(tickmath.MinTick, p.list.Len()) {
		if tick == tickmath.MinTick || tick == tickmath.MaxTick {
			continue
		}
		s.InitializedTicks = append(s.InitializedTicks, tick)
	}
	for key, pos := range p.positions {
		s.Positions[key] = pos.clone()
	}
	for addr, bal := range p.shareBalances {
		s.ShareBalances[addr] = new(big.Int).Set(bal)
	}
	return s, nil
}

// Restore replaces the pool's bookkeeping with a snapshot previously taken
// by State. The caller is responsible for the token backends holding the
// matching custody balances.
func (p *Pool) Restore(s *PoolState) error {
	if err := p.lock(); err != nil {
		return err
	}
	defer p.unlock()

	list := ticklist.New(tickmath.MinTick, tickmath.MaxTick)
	prev := tickmath.MinTick
	for _, tick := range s.InitializedTicks {
		if err := list.Insert(tick, prev); err != nil {
			return err
		}
		prev = tick
	}

	p.initialized = s.Initialized
	p.sqrtPriceX96.Set(s.SqrtPriceX96)
	p.currentTick = s.CurrentTick
	p.nearestCurrentTick = s.NearestCurrentTick
	p.baseLiquidity.Set(s.BaseLiquidity)
	p.feeGrowthGlobal.Set(s.FeeGrowthGlobal)
	p.reinvestLiquidity.Set(s.ReinvestmentLiquidity)
	p.reinvestLiquidityLast.Set(s.ReinvestmentLiquidityLast)
	p.shareSupply.Set(s.ShareSupply)
	p.list = list

	p.ticks = make(map[int64]*TickData, len(s.Ticks))
	for tick, data := range s.Ticks {
		p.ticks[tick] = data.clone()
	}
	p.positions = make(map[PositionKey]*Position, len(s.Positions))
	for key, pos := range s.Positions {
		p.positions[key] = pos.clone()
	}
	p.shareBalances = make(map[common.Address]*big.Int, len(s.ShareBalances))
	for addr, bal := range s.ShareBalances {
		p.shareBalances[addr] = new(big.Int).Set(bal)
	}
	return nil
}

// Initialized reports whether Initialize has completed.
func (p *Pool) Initialized() bool { return p.initialized }

// SqrtPriceX96 returns the current Q64.96 sqrt price.
func (p *Pool) SqrtPriceX96() *big.Int { return new(big.Int).Set(p.sqrtPriceX96) }

// CurrentTick returns the tick consistent with the current sqrt price.
func (p *Pool) CurrentTick() int64 { return p.currentTick }

// NearestCurrentTick returns the nearest initialized tick at or below the
// current tick, MinTick when none is.
func (p *Pool) NearestCurrentTick() int64 { return p.nearestCurrentTick }

// BaseLiquidity returns the liquidity active at the current tick.
func (p *Pool) BaseLiquidity() *big.Int { return new(big.Int).Set(p.baseLiquidity) }

// FeeGrowthGlobal returns the cumulative fee growth per unit of base
// liquidity, Q96-scaled, mod 2^256.
func (p *Pool) FeeGrowthGlobal() *uint256.Int { return new(uint256.Int).Set(p.feeGrowthGlobal) }

// ReinvestmentLiquidity returns the virtual liquidity held by compounded
// fees.
func (p *Pool) ReinvestmentLiquidity() *big.Int { return new(big.Int).Set(p.reinvestLiquidity) }

// ReinvestmentLiquidityLast returns the share-mint checkpoint value.
func (p *Pool) ReinvestmentLiquidityLast() *big.Int {
	return new(big.Int).Set(p.reinvestLiquidityLast)
}

// ShareSupply returns the total reinvestment share supply.
func (p *Pool) ShareSupply() *big.Int { return new(big.Int).Set(p.shareSupply) }

// ShareBalanceOf returns addr's reinvestment share balance.
func (p *Pool) ShareBalanceOf(addr common.Address) *big.Int {
	return new(big.Int).Set(p.balanceOfShares(addr))
}

// TickAt returns a copy of the tick's data and whether it is initialized.
func (p *Pool) TickAt(tick int64) (*TickData, bool) {
	data, ok := p.ticks[tick]
	if !ok {
		return nil, false
	}
	return data.clone(), true
}

// PositionAt returns a copy of the position and whether it exists.
func (p *Pool) PositionAt(owner common.Address, tickLower, tickUpper int64) (*Position, bool) {
	pos, ok := p.positions[PositionKey{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}]
	if !ok {
		return nil, false
	}
	return pos.clone(), true
}

// InitializedTicks pages through the tick list in ascending order starting
// at the first member >= fromTick, sentinels included.
func (p *Pool) InitializedTicks(fromTick int64, limit int) []int64 {
	return p.list.Page(fromTick, limit)
}

// PreviousInitialized returns the nearest list member at or below tick.
// Callers use it to derive mint hints.
func (p *Pool) PreviousInitialized(tick int64) int64 {
	return p.list.PrevInitialized(tick)
}
