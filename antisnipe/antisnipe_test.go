package antisnipe

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	s := Initialize(1000)
	assert.Equal(t, int64(1000), s.LastActionTime)
	assert.Equal(t, int64(1000), s.LockTime)
	assert.Equal(t, int64(1000), s.UnlockTime)
	assert.Zero(t, s.FeesLocked.Sign())
}

func TestUpdateVestingDisabled(t *testing.T) {
	s := Initialize(0)
	s.FeesLocked = big.NewInt(500)

	claimable, burnable := s.Update(big.NewInt(1000), big.NewInt(100), 50, true, big.NewInt(300), 0)

	// Everything unlocks, including the previously locked balance.
	assert.Zero(t, big.NewInt(800).Cmp(claimable))
	assert.Zero(t, burnable.Sign())
	assert.Zero(t, s.FeesLocked.Sign())
	assert.Equal(t, int64(50), s.LastActionTime)
}

func TestUpdateAddLocksNewFees(t *testing.T) {
	s := Initialize(0)
	vestingPeriod := int64(100)

	// First add: no fees yet, window anchors at now.
	claimable, burnable := s.Update(big.NewInt(0), big.NewInt(1000), 0, true, big.NewInt(0), vestingPeriod)
	assert.Zero(t, claimable.Sign())
	assert.Zero(t, burnable.Sign())
	assert.Equal(t, int64(0), s.LockTime)
	assert.Equal(t, int64(100), s.UnlockTime)

	// Second add halfway through the window: half the locked fees have
	// vested, the newly accrued fees lock in full.
	s.FeesLocked = big.NewInt(1000)
	claimable, burnable = s.Update(big.NewInt(1000), big.NewInt(1000), 50, true, big.NewInt(600), vestingPeriod)
	assert.Zero(t, big.NewInt(500).Cmp(claimable))
	assert.Zero(t, burnable.Sign())
	// 500 unvested + 600 new.
	assert.Zero(t, big.NewInt(1100).Cmp(s.FeesLocked))

	// Lock time re-anchored to the liquidity-weighted average rounded up:
	// (1000*0 + 1000*50 + 1999) / 2000 = 25.
	assert.Equal(t, int64(25), s.LockTime)
	assert.Equal(t, int64(125), s.UnlockTime)
}

func TestUpdateRemoveBurnsProportionally(t *testing.T) {
	s := Initialize(0)
	vestingPeriod := int64(100)
	s.Update(big.NewInt(0), big.NewInt(1000), 0, true, big.NewInt(0), vestingPeriod)
	s.FeesLocked = big.NewInt(1000)

	// Remove 40% halfway through: half of the locked fees vest and become
	// claimable along with all newly accrued fees; 40% of the remaining
	// locked balance burns.
	claimable, burnable := s.Update(big.NewInt(1000), big.NewInt(400), 50, false, big.NewInt(200), vestingPeriod)

	assert.Zero(t, big.NewInt(700).Cmp(claimable), "500 vested + 200 since last action")
	assert.Zero(t, big.NewInt(200).Cmp(burnable), "40%% of the 500 still locked")
	assert.Zero(t, big.NewInt(300).Cmp(s.FeesLocked))
}

func TestUpdateAfterWindowExpires(t *testing.T) {
	s := Initialize(0)
	vestingPeriod := int64(100)
	s.Update(big.NewInt(0), big.NewInt(1000), 0, true, big.NewInt(0), vestingPeriod)
	s.FeesLocked = big.NewInt(1000)

	// Past the unlock time everything previously locked has vested; a
	// removal claims it all and burns nothing.
	claimable, burnable := s.Update(big.NewInt(1000), big.NewInt(1000), 500, false, big.NewInt(100), vestingPeriod)

	assert.Zero(t, big.NewInt(1100).Cmp(claimable))
	assert.Zero(t, burnable.Sign())
	assert.Zero(t, s.FeesLocked.Sign())
}

func TestSnip(t *testing.T) {
	s := Initialize(0)
	s.LockTime = 0
	s.UnlockTime = 100
	s.FeesLocked = big.NewInt(900)

	claimable, burnable := s.Snip(10, big.NewInt(50))

	assert.Zero(t, big.NewInt(50).Cmp(claimable), "only fees since last action survive")
	assert.Zero(t, big.NewInt(900).Cmp(burnable), "entire locked balance is forfeited")
	assert.Zero(t, s.FeesLocked.Sign())
	assert.Equal(t, int64(10), s.LastActionTime)
}

func TestCalcFeeProportions(t *testing.T) {
	cases := []struct {
		name               string
		locked, since      int64
		vestedBps, nowBps  int64
		wantLocked, wantCl int64
	}{
		{"all locked", 1000, 500, 0, 0, 1500, 0},
		{"all claimable", 1000, 500, BPS, BPS, 0, 1500},
		{"half vested new locked", 1000, 500, BPS / 2, 0, 1000, 500},
		{"half vested new claimable", 1000, 500, BPS / 2, BPS, 500, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lockedNew, claimable := new(big.Int), new(big.Int)
			calcFeeProportions(lockedNew, claimable, big.NewInt(tc.locked), big.NewInt(tc.since), tc.vestedBps, tc.nowBps)
			assert.Zero(t, big.NewInt(tc.wantLocked).Cmp(lockedNew))
			assert.Zero(t, big.NewInt(tc.wantCl).Cmp(claimable))
		})
	}
}

func TestClone(t *testing.T) {
	s := Initialize(7)
	s.FeesLocked = big.NewInt(123)

	c := s.Clone()
	c.FeesLocked.SetInt64(456)

	require.Zero(t, big.NewInt(123).Cmp(s.FeesLocked))
	assert.Equal(t, int64(7), c.LastActionTime)
}
