// Package statediff computes structural diffs between two pool state
// snapshots and applies them to reconstruct the later snapshot from the
// earlier one. Consumers can ship incremental updates instead of full
// snapshots.
package statediff

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/elastic-amm-go/pool"
	"github.com/defistate/elastic-amm-go/tickmath"
)

var (
	ErrNilState      = errors.New("statediff: state cannot be nil")
	ErrBaseMismatch  = errors.New("statediff: diff does not apply to this base state")
	ErrUninitialized = errors.New("statediff: initialized pool cannot regress to uninitialized")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TickChange carries one changed tick. A nil Data means the tick was
// cleared.
type TickChange struct {
	Tick int64          `json:"tick"`
	Data *pool.TickData `json:"data,omitempty"`
}

// PositionChange carries one changed position record.
type PositionChange struct {
	Key      pool.PositionKey `json:"key"`
	Position *pool.Position   `json:"position"`
}

// ShareChange carries one changed reinvestment share balance.
type ShareChange struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}

// Diff is the set of changes between two snapshots of the same pool.
// Scalar fields are nil when unchanged; collection entries appear only
// for changed keys, in deterministic order.
type Diff struct {
	// FromSqrtPriceX96 anchors the diff to its base snapshot; Apply
	// rejects any other base.
	FromSqrtPriceX96 *big.Int `json:"fromSqrtPriceX96"`

	Initialized        *bool        `json:"initialized,omitempty"`
	SqrtPriceX96       *big.Int     `json:"sqrtPriceX96,omitempty"`
	CurrentTick        *int64       `json:"currentTick,omitempty"`
	NearestCurrentTick *int64       `json:"nearestCurrentTick,omitempty"`
	BaseLiquidity      *big.Int     `json:"baseLiquidity,omitempty"`
	FeeGrowthGlobal    *uint256.Int `json:"feeGrowthGlobal,omitempty"`

	ReinvestmentLiquidity     *big.Int `json:"reinvestmentLiquidity,omitempty"`
	ReinvestmentLiquidityLast *big.Int `json:"reinvestmentLiquidityLast,omitempty"`
	ShareSupply               *big.Int `json:"shareSupply,omitempty"`

	Ticks         []TickChange     `json:"ticks,omitempty"`
	Positions     []PositionChange `json:"positions,omitempty"`
	ShareBalances []ShareChange    `json:"shareBalances,omitempty"`
}

// Empty reports whether the diff carries no changes.
func (d *Diff) Empty() bool {
	return d.Initialized == nil &&
		d.SqrtPriceX96 == nil &&
		d.CurrentTick == nil &&
		d.NearestCurrentTick == nil &&
		d.BaseLiquidity == nil &&
		d.FeeGrowthGlobal == nil &&
		d.ReinvestmentLiquidity == nil &&
		d.ReinvestmentLiquidityLast == nil &&
		d.ShareSupply == nil &&
		len(d.Ticks) == 0 &&
		len(d.Positions) == 0 &&
		len(d.ShareBalances) == 0
}

// Config holds the differ's dependencies.
type Config struct {
	Registry prometheus.Registerer
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Differ computes and applies pool state diffs.
type Differ struct {
	metrics *Metrics
	logger  Logger
}

// NewDiffer constructs a differ, returning an error if the config is
// invalid.
func NewDiffer(cfg *Config) (*Differ, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Differ{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff compares two snapshots of the same pool and returns the changes
// from prev to next. Neither input is mutated.
func (d *Differ) Diff(prev, next *pool.PoolState) (*Diff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration)
	defer timer.ObserveDuration()

	if prev == nil || next == nil {
		return nil, ErrNilState
	}
	if prev.Initialized && !next.Initialized {
		return nil, ErrUninitialized
	}

	diff := &Diff{FromSqrtPriceX96: new(big.Int).Set(prev.SqrtPriceX96)}

	if prev.Initialized != next.Initialized {
		v := next.Initialized
		diff.Initialized = &v
	}
	if prev.SqrtPriceX96.Cmp(next.SqrtPriceX96) != 0 {
		diff.SqrtPriceX96 = new(big.Int).Set(next.SqrtPriceX96)
	}
	if prev.CurrentTick != next.CurrentTick {
		v := next.CurrentTick
		diff.CurrentTick = &v
	}
	if prev.NearestCurrentTick != next.NearestCurrentTick {
		v := next.NearestCurrentTick
		diff.NearestCurrentTick = &v
	}
	diff.BaseLiquidity = bigIfChanged(prev.BaseLiquidity, next.BaseLiquidity)
	if !prev.FeeGrowthGlobal.Eq(next.FeeGrowthGlobal) {
		diff.FeeGrowthGlobal = new(uint256.Int).Set(next.FeeGrowthGlobal)
	}
	diff.ReinvestmentLiquidity = bigIfChanged(prev.ReinvestmentLiquidity, next.ReinvestmentLiquidity)
	diff.ReinvestmentLiquidityLast = bigIfChanged(prev.ReinvestmentLiquidityLast, next.ReinvestmentLiquidityLast)
	diff.ShareSupply = bigIfChanged(prev.ShareSupply, next.ShareSupply)

	diff.Ticks = diffTicks(prev.Ticks, next.Ticks)
	diff.Positions = diffPositions(prev.Positions, next.Positions)
	diff.ShareBalances = diffShares(prev.ShareBalances, next.ShareBalances)

	d.metrics.diffs.Inc()
	d.logger.Debug("state diff computed",
		"ticks", len(diff.Ticks),
		"positions", len(diff.Positions),
		"shareBalances", len(diff.ShareBalances),
	)
	return diff, nil
}

// Apply builds a new snapshot from a base snapshot and a diff. The base
// is not mutated; unchanged collections are shared by reference, so the
// result must be treated as read-only, which pool.Restore guarantees by
// deep-copying.
func (d *Differ) Apply(base *pool.PoolState, diff *Diff) (*pool.PoolState, error) {
	timer := prometheus.NewTimer(d.metrics.applyDuration)
	defer timer.ObserveDuration()

	if base == nil || diff == nil {
		return nil, ErrNilState
	}
	if base.SqrtPriceX96.Cmp(diff.FromSqrtPriceX96) != 0 {
		return nil, fmt.Errorf("%w: base sqrt price %s, diff expects %s",
			ErrBaseMismatch, base.SqrtPriceX96, diff.FromSqrtPriceX96)
	}

	next := &pool.PoolState{
		Initialized:               base.Initialized,
		SqrtPriceX96:              base.SqrtPriceX96,
		CurrentTick:               base.CurrentTick,
		NearestCurrentTick:        base.NearestCurrentTick,
		BaseLiquidity:             base.BaseLiquidity,
		FeeGrowthGlobal:           base.FeeGrowthGlobal,
		ReinvestmentLiquidity:     base.ReinvestmentLiquidity,
		ReinvestmentLiquidityLast: base.ReinvestmentLiquidityLast,
		Ticks:                     base.Ticks,
		InitializedTicks:          base.InitializedTicks,
		Positions:                 base.Positions,
		ShareSupply:               base.ShareSupply,
		ShareBalances:             base.ShareBalances,
	}

	if diff.Initialized != nil {
		next.Initialized = *diff.Initialized
	}
	if diff.SqrtPriceX96 != nil {
		next.SqrtPriceX96 = diff.SqrtPriceX96
	}
	if diff.CurrentTick != nil {
		next.CurrentTick = *diff.CurrentTick
	}
	if diff.NearestCurrentTick != nil {
		next.NearestCurrentTick = *diff.NearestCurrentTick
	}
	if diff.BaseLiquidity != nil {
		next.BaseLiquidity = diff.BaseLiquidity
	}
	if diff.FeeGrowthGlobal != nil {
		next.FeeGrowthGlobal = diff.FeeGrowthGlobal
	}
	if diff.ReinvestmentLiquidity != nil {
		next.ReinvestmentLiquidity = diff.ReinvestmentLiquidity
	}
	if diff.ReinvestmentLiquidityLast != nil {
		next.ReinvestmentLiquidityLast = diff.ReinvestmentLiquidityLast
	}
	if diff.ShareSupply != nil {
		next.ShareSupply = diff.ShareSupply
	}

	if len(diff.Ticks) > 0 {
		ticks := make(map[int64]*pool.TickData, len(base.Ticks)+len(diff.Ticks))
		for tick, data := range base.Ticks {
			ticks[tick] = data
		}
		for _, change := range diff.Ticks {
			if change.Data == nil {
				delete(ticks, change.Tick)
			} else {
				ticks[change.Tick] = change.Data
			}
		}
		next.Ticks = ticks
		next.InitializedTicks = sortedTicks(ticks)
	}
	if len(diff.Positions) > 0 {
		positions := make(map[pool.PositionKey]*pool.Position, len(base.Positions)+len(diff.Positions))
		for key, pos := range base.Positions {
			positions[key] = pos
		}
		for _, change := range diff.Positions {
			positions[change.Key] = change.Position
		}
		next.Positions = positions
	}
	if len(diff.ShareBalances) > 0 {
		balances := make(map[common.Address]*big.Int, len(base.ShareBalances)+len(diff.ShareBalances))
		for addr, bal := range base.ShareBalances {
			balances[addr] = bal
		}
		for _, change := range diff.ShareBalances {
			balances[change.Address] = change.Balance
		}
		next.ShareBalances = balances
	}

	d.metrics.applies.Inc()
	return next, nil
}

func bigIfChanged(prev, next *big.Int) *big.Int {
	if prev.Cmp(next) == 0 {
		return nil
	}
	return new(big.Int).Set(next)
}

func diffTicks(prev, next map[int64]*pool.TickData) []TickChange {
	var changes []TickChange
	for tick, nextData := range next {
		prevData, ok := prev[tick]
		if ok && tickEqual(prevData, nextData) {
			continue
		}
		changes = append(changes, TickChange{Tick: tick, Data: copyTick(nextData)})
	}
	for tick := range prev {
		if _, ok := next[tick]; !ok {
			changes = append(changes, TickChange{Tick: tick})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Tick < changes[j].Tick })
	return changes
}

func diffPositions(prev, next map[pool.PositionKey]*pool.Position) []PositionChange {
	var changes []PositionChange
	for key, nextPos := range next {
		prevPos, ok := prev[key]
		if ok && positionEqual(prevPos, nextPos) {
			continue
		}
		changes = append(changes, PositionChange{Key: key, Position: copyPosition(nextPos)})
	}
	sort.Slice(changes, func(i, j int) bool { return positionKeyLess(changes[i].Key, changes[j].Key) })
	return changes
}

func diffShares(prev, next map[common.Address]*big.Int) []ShareChange {
	var changes []ShareChange
	for addr, nextBal := range next {
		prevBal, ok := prev[addr]
		if ok && prevBal.Cmp(nextBal) == 0 {
			continue
		}
		changes = append(changes, ShareChange{Address: addr, Balance: new(big.Int).Set(nextBal)})
	}
	for addr := range prev {
		if _, ok := next[addr]; !ok {
			changes = append(changes, ShareChange{Address: addr, Balance: new(big.Int)})
		}
	}
	sort.Slice(changes, func(i, j int) bool {
		return bytes.Compare(changes[i].Address[:], changes[j].Address[:]) < 0
	})
	return changes
}

func tickEqual(a, b *pool.TickData) bool {
	return a.LiquidityGross.Cmp(b.LiquidityGross) == 0 &&
		a.LiquidityNet.Cmp(b.LiquidityNet) == 0 &&
		a.FeeGrowthOutside.Eq(b.FeeGrowthOutside)
}

func positionEqual(a, b *pool.Position) bool {
	return a.Liquidity.Cmp(b.Liquidity) == 0 &&
		a.FeeGrowthInsideLast.Eq(b.FeeGrowthInsideLast) &&
		a.Vesting.LastActionTime == b.Vesting.LastActionTime &&
		a.Vesting.LockTime == b.Vesting.LockTime &&
		a.Vesting.UnlockTime == b.Vesting.UnlockTime &&
		a.Vesting.FeesLocked.Cmp(b.Vesting.FeesLocked) == 0
}

func positionKeyLess(a, b pool.PositionKey) bool {
	if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
		return c < 0
	}
	if a.TickLower != b.TickLower {
		return a.TickLower < b.TickLower
	}
	return a.TickUpper < b.TickUpper
}

func copyTick(t *pool.TickData) *pool.TickData {
	return &pool.TickData{
		LiquidityGross:   new(big.Int).Set(t.LiquidityGross),
		LiquidityNet:     new(big.Int).Set(t.LiquidityNet),
		FeeGrowthOutside: new(uint256.Int).Set(t.FeeGrowthOutside),
	}
}

func copyPosition(p *pool.Position) *pool.Position {
	return &pool.Position{
		Liquidity:           new(big.Int).Set(p.Liquidity),
		FeeGrowthInsideLast: new(uint256.Int).Set(p.FeeGrowthInsideLast),
		Vesting:             p.Vesting.Clone(),
	}
}

func sortedTicks(ticks map[int64]*pool.TickData) []int64 {
	var out []int64
	for tick := range ticks {
		if tick == tickmath.MinTick || tick == tickmath.MaxTick {
			continue
		}
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
