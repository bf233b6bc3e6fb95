package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// journal captures the pre-operation state touched by a mint, burn, or
// share redemption so a late failure (bad hint, short settlement, transfer
// error) rolls the pool back to exactly where it started. Scalars are
// snapped eagerly; map entries and list splices are snapped on first touch.
type journal struct {
	sqrtPriceX96          *big.Int
	currentTick           int64
	nearestCurrentTick    int64
	baseLiquidity         *big.Int
	feeGrowthGlobal       *uint256.Int
	reinvestLiquidity     *big.Int
	reinvestLiquidityLast *big.Int
	shareSupply           *big.Int

	ticks     map[int64]*TickData
	removed   []listSplice
	positions map[PositionKey]*Position
	posSeen   map[PositionKey]bool
	shares    map[common.Address]*big.Int
}

type listSplice struct {
	tick int64
	prev int64
}

func newJournal(p *Pool) *journal {
	return &journal{
		sqrtPriceX96:          new(big.Int).Set(p.sqrtPriceX96),
		currentTick:           p.currentTick,
		nearestCurrentTick:    p.nearestCurrentTick,
		baseLiquidity:         new(big.Int).Set(p.baseLiquidity),
		feeGrowthGlobal:       new(uint256.Int).Set(p.feeGrowthGlobal),
		reinvestLiquidity:     new(big.Int).Set(p.reinvestLiquidity),
		reinvestLiquidityLast: new(big.Int).Set(p.reinvestLiquidityLast),
		shareSupply:           new(big.Int).Set(p.shareSupply),
		ticks:                 make(map[int64]*TickData),
		positions:             make(map[PositionKey]*Position),
		posSeen:               make(map[PositionKey]bool),
		shares:                make(map[common.Address]*big.Int),
	}
}

// snapTick records the tick's current data, or its absence, once.
func (j *journal) snapTick(p *Pool, tick int64) {
	if _, seen := j.ticks[tick]; seen {
		return
	}
	if data, ok := p.ticks[tick]; ok {
		j.ticks[tick] = data.clone()
	} else {
		j.ticks[tick] = nil
	}
}

// snapListRemoval records the predecessor of a tick about to leave the
// list, so restore can splice it back in place. Call before clearTick.
func (j *journal) snapListRemoval(p *Pool, tick int64) {
	prev, err := p.list.Prev(tick)
	if err != nil {
		return
	}
	j.removed = append(j.removed, listSplice{tick: tick, prev: prev})
}

// snapPosition records the position's current value, or its absence, once.
func (j *journal) snapPosition(p *Pool, key PositionKey) {
	if j.posSeen[key] {
		return
	}
	j.posSeen[key] = true
	if pos, ok := p.positions[key]; ok {
		j.positions[key] = pos.clone()
	}
}

// snapShares records an address's share balance, or its absence, once.
func (j *journal) snapShares(p *Pool, addr common.Address) {
	if _, seen := j.shares[addr]; seen {
		return
	}
	if bal, ok := p.shareBalances[addr]; ok {
		j.shares[addr] = new(big.Int).Set(bal)
	} else {
		j.shares[addr] = nil
	}
}

// restore rewinds the pool to the journal's snapshot. Safe to call exactly
// once, after which the journal is spent.
func (j *journal) restore(p *Pool) {
	p.sqrtPriceX96.Set(j.sqrtPriceX96)
	p.currentTick = j.currentTick
	p.nearestCurrentTick = j.nearestCurrentTick
	p.baseLiquidity.Set(j.baseLiquidity)
	p.feeGrowthGlobal.Set(j.feeGrowthGlobal)
	p.reinvestLiquidity.Set(j.reinvestLiquidity)
	p.reinvestLiquidityLast.Set(j.reinvestLiquidityLast)
	p.shareSupply.Set(j.shareSupply)

	for tick, before := range j.ticks {
		if before == nil {
			if p.list.Contains(tick) {
				_, _ = p.list.Remove(tick)
			}
			delete(p.ticks, tick)
			continue
		}
		p.ticks[tick] = before
	}
	// Re-splice cleared ticks in reverse removal order so each recorded
	// predecessor is back in the list before its dependent.
	for i := len(j.removed) - 1; i >= 0; i-- {
		s := j.removed[i]
		if !p.list.Contains(s.tick) {
			_ = p.list.Insert(s.tick, s.prev)
		}
	}

	for key := range j.posSeen {
		if before, ok := j.positions[key]; ok {
			p.positions[key] = before
		} else {
			delete(p.positions, key)
		}
	}
	for addr, before := range j.shares {
		if before == nil {
			delete(p.shareBalances, addr)
		} else {
			p.shareBalances[addr] = before
		}
	}
}
