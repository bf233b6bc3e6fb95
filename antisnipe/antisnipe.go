// Package antisnipe implements the per-position fee vesting schedule that
// deters just-in-time liquidity attacks: fees accrued since the last
// liquidity change lock up and vest linearly, and a full withdrawal inside
// the vesting window forfeits the unvested remainder.
package antisnipe

import "math/big"

// BPS is the basis-point denominator: 10000 == 100%.
const BPS = 10000

var bpsBig = big.NewInt(BPS)

// State is the vesting sub-state carried by every position.
type State struct {
	LastActionTime int64
	LockTime       int64
	UnlockTime     int64
	FeesLocked     *big.Int
}

// Initialize returns a fresh vesting state anchored at now.
func Initialize(now int64) State {
	return State{
		LastActionTime: now,
		LockTime:       now,
		UnlockTime:     now,
		FeesLocked:     new(big.Int),
	}
}

// Update advances the vesting schedule for a liquidity change and splits the
// position's fees into a claimable portion and a burnable portion.
//
// When liquidity is added, fees accrued since the last action lock in full
// and the lock clock is re-anchored to the liquidity-weighted average of the
// old lock time and now. When liquidity is removed, new fees are immediately
// claimable, previously locked fees keep vesting, and the locked share
// attributable to the removed liquidity is forfeited.
func (s *State) Update(
	currentLiquidity, liquidityDelta *big.Int,
	now int64,
	isAdd bool,
	feesSinceLastAction *big.Int,
	vestingPeriod int64,
) (feesClaimable, feesBurnable *big.Int) {
	feesClaimable = new(big.Int)
	feesBurnable = new(big.Int)

	if vestingPeriod == 0 {
		// Vesting disabled: everything unlocks, including any balance
		// locked while vesting was still on. Nothing is burned here.
		feesClaimable.Add(s.FeesLocked, feesSinceLastAction)
		s.FeesLocked.SetInt64(0)
		s.LastActionTime = now
		return feesClaimable, feesBurnable
	}

	vestedBps := s.vestedBps(now)
	sinceLastActionBps := int64(0)
	if !isAdd {
		sinceLastActionBps = BPS
	}

	feesLockedNew := new(big.Int)
	calcFeeProportions(feesLockedNew, feesClaimable, s.FeesLocked, feesSinceLastAction, vestedBps, sinceLastActionBps)

	if isAdd {
		s.reanchorLockTime(currentLiquidity, liquidityDelta, now, vestingPeriod)
	} else if currentLiquidity.Sign() > 0 {
		// Forfeit the locked fees attributable to the removed liquidity.
		feesBurnable.Mul(feesLockedNew, new(big.Int).Abs(liquidityDelta))
		feesBurnable.Div(feesBurnable, currentLiquidity)
		feesLockedNew.Sub(feesLockedNew, feesBurnable)
	}

	s.FeesLocked.Set(feesLockedNew)
	s.LastActionTime = now
	return feesClaimable, feesBurnable
}

// Snip handles a withdrawal that should forfeit every unvested fee: only the
// fees accrued since the last action are claimable, and the entire locked
// balance is burned.
func (s *State) Snip(now int64, feesSinceLastAction *big.Int) (feesClaimable, feesBurnable *big.Int) {
	feesClaimable = new(big.Int).Set(feesSinceLastAction)
	feesBurnable = new(big.Int).Set(s.FeesLocked)
	s.FeesLocked.SetInt64(0)
	s.LastActionTime = now
	return feesClaimable, feesBurnable
}

// vestedBps returns the fraction of the previously locked fees that has
// vested by now, in basis points.
func (s *State) vestedBps(now int64) int64 {
	window := s.UnlockTime - s.LockTime
	if window <= 0 {
		return BPS
	}
	elapsed := now - s.LastActionTime
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > window {
		elapsed = window
	}
	return elapsed * BPS / window
}

// reanchorLockTime blends the existing lock time with now, weighted by the
// existing liquidity against the liquidity being added, and restarts the
// vesting window from the blended anchor.
func (s *State) reanchorLockTime(currentLiquidity, liquidityDelta *big.Int, now int64, vestingPeriod int64) {
	total := new(big.Int).Add(currentLiquidity, liquidityDelta)
	if total.Sign() <= 0 {
		s.LockTime = now
		s.UnlockTime = now + vestingPeriod
		return
	}

	weighted := new(big.Int).Mul(currentLiquidity, big.NewInt(s.LockTime))
	weighted.Add(weighted, new(big.Int).Mul(liquidityDelta, big.NewInt(now)))
	// Round up so the blended anchor never understates the newest deposit.
	weighted.Add(weighted, new(big.Int).Sub(total, big.NewInt(1)))
	weighted.Div(weighted, total)

	s.LockTime = weighted.Int64()
	s.UnlockTime = s.LockTime + vestingPeriod
}

// calcFeeProportions splits a locked balance and newly accrued fees into the
// portion that stays locked and the portion that is claimable, given the
// vested fraction of the former and the immediately claimable fraction of
// the latter, both in basis points.
func calcFeeProportions(
	feesLockedNew, feesClaimable *big.Int,
	feesLockedCurrent, feesSinceLastAction *big.Int,
	vestedBps, sinceLastActionBps int64,
) {
	vested := big.NewInt(vestedBps)
	since := big.NewInt(sinceLastActionBps)

	claimableFromLocked := new(big.Int).Mul(feesLockedCurrent, vested)
	claimableFromLocked.Div(claimableFromLocked, bpsBig)
	claimableFromNew := new(big.Int).Mul(feesSinceLastAction, since)
	claimableFromNew.Div(claimableFromNew, bpsBig)

	feesClaimable.Add(claimableFromLocked, claimableFromNew)

	feesLockedNew.Sub(feesLockedCurrent, claimableFromLocked)
	feesLockedNew.Add(feesLockedNew, new(big.Int).Sub(feesSinceLastAction, claimableFromNew))
}

// Clone returns a deep copy of the vesting state.
func (s State) Clone() State {
	c := s
	c.FeesLocked = new(big.Int).Set(s.FeesLocked)
	return c
}
