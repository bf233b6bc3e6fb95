package tickmath

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// MinTick is the minimum tick that may be passed to GetSqrtRatioAtTick.
	MinTick = int64(-887272)
	// MaxTick is the maximum tick that may be passed to GetSqrtRatioAtTick.
	MaxTick = int64(887272)
)

var (
	// MinSqrtRatio is GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio, _ = new(big.Int).SetString("4295128739", 10)
	// MaxSqrtRatio is GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970342", 10)

	ErrTickOutOfBounds      = errors.New("tick out of bounds")
	ErrSqrtPriceOutOfBounds = errors.New("sqrt price out of bounds")

	one        = uint256.NewInt(1)
	maxUint256 = uint256.MustFromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))

	// ratioConstants[i] is sqrt(1.0001^-(2^(i-1))) in UQ128.128 for i >= 2,
	// with the i == 0 entry covering the low bit and i == 1 holding one.
	// The final entry is the rounding mask for the Q128 -> Q96 conversion.
	ratioConstants = [22]*uint256.Int{
		uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001"),
		uint256.MustFromHex("0x100000000000000000000000000000000"),
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
		uint256.MustFromHex("0xffffffff"),
	}
)

// tickMath holds reusable scratch values to avoid allocations on the hot path.
type tickMath struct {
	ratio *uint256.Int
	rem   *uint256.Int
	temp  *big.Int
}

var pool = sync.Pool{
	New: func() any {
		return &tickMath{
			ratio: new(uint256.Int),
			rem:   new(uint256.Int),
			temp:  new(big.Int),
		}
	},
}

// GetSqrtRatioAtTick writes sqrt(1.0001^tick) * 2^96 into dest.
// The result is exact to the precision of the Q64.96 representation.
func GetSqrtRatioAtTick(dest *big.Int, tick int64) error {
	if tick < MinTick || tick > MaxTick {
		return ErrTickOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)

	absTick := tick
	if tick < 0 {
		absTick = -tick
	}

	if (absTick & 0x1) != 0 {
		tm.ratio.Set(ratioConstants[0])
	} else {
		tm.ratio.Set(ratioConstants[1])
	}

	// Bit-decomposition of absTick: fold in sqrt(1.0001^-(2^(i-1))) for
	// every set bit.
	for i := 2; i < 21; i++ {
		if (absTick & (1 << (i - 1))) != 0 {
			tm.ratio.Mul(tm.ratio, ratioConstants[i]).Rsh(tm.ratio, 128)
		}
	}

	// The constants encode the negative-tick direction; invert for positive.
	if tick > 0 {
		tm.ratio.Div(maxUint256, tm.ratio)
	}

	// Convert UQ128.128 to Q64.96, rounding up.
	tm.rem.And(tm.ratio, ratioConstants[21])
	tm.ratio.Rsh(tm.ratio, 32)
	if tm.rem.Sign() > 0 {
		tm.ratio.Add(tm.ratio, one)
	}

	tm.ratio.IntoBig(&dest)
	return nil
}

// GetTickAtSqrtRatio returns the greatest tick such that
// GetSqrtRatioAtTick(tick) <= sqrtPriceX96, via binary search so the two
// functions are exact inverses by construction.
func GetTickAtSqrtRatio(sqrtPriceX96 *big.Int) (int64, error) {
	if sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) >= 0 {
		return 0, ErrSqrtPriceOutOfBounds
	}

	tm := pool.Get().(*tickMath)
	defer pool.Put(tm)
	sqrtRatio := tm.temp

	low, high := MinTick, MaxTick
	var tick int64
	for low <= high {
		mid := (low + high) / 2
		if err := GetSqrtRatioAtTick(sqrtRatio, mid); err != nil {
			return 0, err
		}
		if sqrtRatio.Cmp(sqrtPriceX96) <= 0 {
			tick = mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return tick, nil
}
