package statediff

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/elastic-amm-go/pool"
	"github.com/defistate/elastic-amm-go/tickmath"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func newDiffer(t *testing.T) *Differ {
	t.Helper()
	d, err := NewDiffer(&Config{Registry: prometheus.NewRegistry(), Logger: testLogger{}})
	require.NoError(t, err)
	return d
}

type fixture struct {
	pool   *pool.Pool
	token0 *pool.Ledger
	token1 *pool.Ledger
}

func (f *fixture) pay(owner common.Address) pool.PaymentCallbackFunc {
	return func(owed0, owed1 *big.Int) error {
		if owed0.Sign() > 0 {
			if err := f.token0.Transfer(owner, poolAddr, owed0); err != nil {
				return err
			}
		}
		if owed1.Sign() > 0 {
			if err := f.token1.Transfer(owner, poolAddr, owed1); err != nil {
				return err
			}
		}
		return nil
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{token0: pool.NewLedger(), token1: pool.NewLedger()}
	grant, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	for _, addr := range []common.Address{alice, bob} {
		f.token0.MintTo(addr, grant)
		f.token1.MintTo(addr, grant)
	}

	p, err := pool.NewPool(pool.Config{
		SwapFeeBps:  30,
		TickSpacing: 10,
		Token0:      f.token0,
		Token1:      f.token1,
		Address:     poolAddr,
	})
	require.NoError(t, err)
	f.pool = p

	price := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(price, 0))
	_, _, err = p.Initialize(price, f.pay(alice))
	require.NoError(t, err)
	return f
}

func (f *fixture) mint(t *testing.T, owner common.Address, lower, upper int64, liquidity *big.Int) {
	t.Helper()
	_, _, err := f.pool.Mint(owner, lower, upper,
		f.pool.PreviousInitialized(lower), f.pool.PreviousInitialized(upper),
		liquidity, f.pay(owner))
	require.NoError(t, err)
}

func (f *fixture) swapDown(t *testing.T, amountIn *big.Int, limitTick int64) {
	t.Helper()
	limit := new(big.Int)
	require.NoError(t, tickmath.GetSqrtRatioAtTick(limit, limitTick))
	_, _, err := f.pool.Swap(bob, amountIn, true, limit, f.pay(bob))
	require.NoError(t, err)
}

func assertStateEqual(t *testing.T, want, got *pool.PoolState) {
	t.Helper()
	assert.Equal(t, want.Initialized, got.Initialized)
	assert.Zero(t, want.SqrtPriceX96.Cmp(got.SqrtPriceX96))
	assert.Equal(t, want.CurrentTick, got.CurrentTick)
	assert.Equal(t, want.NearestCurrentTick, got.NearestCurrentTick)
	assert.Zero(t, want.BaseLiquidity.Cmp(got.BaseLiquidity))
	assert.True(t, want.FeeGrowthGlobal.Eq(got.FeeGrowthGlobal))
	assert.Zero(t, want.ReinvestmentLiquidity.Cmp(got.ReinvestmentLiquidity))
	assert.Zero(t, want.ReinvestmentLiquidityLast.Cmp(got.ReinvestmentLiquidityLast))
	assert.Zero(t, want.ShareSupply.Cmp(got.ShareSupply))
	assert.Equal(t, want.InitializedTicks, got.InitializedTicks)

	require.Len(t, got.Ticks, len(want.Ticks))
	for tick, wantData := range want.Ticks {
		gotData, ok := got.Ticks[tick]
		require.True(t, ok, "missing tick %d", tick)
		assert.True(t, tickEqual(wantData, gotData), "tick %d differs", tick)
	}
	require.Len(t, got.Positions, len(want.Positions))
	for key, wantPos := range want.Positions {
		gotPos, ok := got.Positions[key]
		require.True(t, ok)
		assert.True(t, positionEqual(wantPos, gotPos))
	}
	require.Len(t, got.ShareBalances, len(want.ShareBalances))
	for addr, wantBal := range want.ShareBalances {
		gotBal, ok := got.ShareBalances[addr]
		require.True(t, ok)
		assert.Zero(t, wantBal.Cmp(gotBal))
	}
}

func TestNewDifferValidation(t *testing.T) {
	_, err := NewDiffer(&Config{Logger: testLogger{}})
	assert.Error(t, err)
	_, err = NewDiffer(&Config{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)
}

func TestDiffErrors(t *testing.T) {
	d := newDiffer(t)

	_, err := d.Diff(nil, &pool.PoolState{})
	assert.ErrorIs(t, err, ErrNilState)

	f := newFixture(t)
	snap, err := f.pool.State()
	require.NoError(t, err)
	_, err = d.Diff(snap, &pool.PoolState{
		SqrtPriceX96:              new(big.Int),
		BaseLiquidity:             new(big.Int),
		ReinvestmentLiquidity:     new(big.Int),
		ReinvestmentLiquidityLast: new(big.Int),
		ShareSupply:               new(big.Int),
	})
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, -100, 100, big.NewInt(1000000))

	a, err := f.pool.State()
	require.NoError(t, err)
	b, err := f.pool.State()
	require.NoError(t, err)

	diff, err := newDiffer(t).Diff(a, b)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Zero(t, a.SqrtPriceX96.Cmp(diff.FromSqrtPriceX96))
}

func TestDiffApplyRoundTrip(t *testing.T) {
	f := newFixture(t)
	d := newDiffer(t)

	liquidity, _ := new(big.Int).SetString("1000000000000000000", 10)
	f.mint(t, alice, -100, 100, liquidity)

	base, err := f.pool.State()
	require.NoError(t, err)

	// Mutate across every diff dimension: new position, price move, fees.
	f.mint(t, bob, -200, 200, liquidity)
	f.swapDown(t, big.NewInt(1000000000000), -90)

	target, err := f.pool.State()
	require.NoError(t, err)

	diff, err := d.Diff(base, target)
	require.NoError(t, err)
	require.False(t, diff.Empty())
	assert.NotNil(t, diff.SqrtPriceX96)
	assert.NotNil(t, diff.CurrentTick)
	assert.NotEmpty(t, diff.Ticks)
	assert.NotEmpty(t, diff.Positions)

	applied, err := d.Apply(base, diff)
	require.NoError(t, err)
	assertStateEqual(t, target, applied)

	// The applied snapshot must restore into a working pool.
	restored, err := pool.NewPool(pool.Config{
		SwapFeeBps:  30,
		TickSpacing: 10,
		Token0:      f.token0,
		Token1:      f.token1,
		Address:     poolAddr,
	})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(applied))
	_, _, _, err = restored.Burn(alice, -100, 100, liquidity)
	require.NoError(t, err)
}

func TestDiffTickRemoval(t *testing.T) {
	f := newFixture(t)
	d := newDiffer(t)

	liquidity := big.NewInt(1000000)
	f.mint(t, alice, -100, 100, liquidity)
	base, err := f.pool.State()
	require.NoError(t, err)

	_, _, _, err = f.pool.Burn(alice, -100, 100, liquidity)
	require.NoError(t, err)
	target, err := f.pool.State()
	require.NoError(t, err)

	diff, err := d.Diff(base, target)
	require.NoError(t, err)

	removed := 0
	for _, change := range diff.Ticks {
		if change.Data == nil {
			removed++
		}
	}
	assert.Equal(t, 2, removed, "both range boundaries cleared")

	applied, err := d.Apply(base, diff)
	require.NoError(t, err)
	assert.Empty(t, applied.InitializedTicks)
	assertStateEqual(t, target, applied)
}

func TestApplyBaseMismatch(t *testing.T) {
	f := newFixture(t)
	d := newDiffer(t)

	f.mint(t, alice, -100, 100, big.NewInt(1000000))
	base, err := f.pool.State()
	require.NoError(t, err)

	f.swapDown(t, big.NewInt(100000), -90)
	moved, err := f.pool.State()
	require.NoError(t, err)

	diff, err := d.Diff(base, moved)
	require.NoError(t, err)

	_, err = d.Apply(moved, diff)
	assert.ErrorIs(t, err, ErrBaseMismatch)

	_, err = d.Apply(nil, diff)
	assert.ErrorIs(t, err, ErrNilState)

	_, err = d.Apply(base, nil)
	assert.ErrorIs(t, err, ErrNilState)
}
