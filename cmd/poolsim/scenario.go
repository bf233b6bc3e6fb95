package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/defistate/elastic-amm-go/pool"
	"github.com/defistate/elastic-amm-go/statediff"
	"github.com/defistate/elastic-amm-go/tickmath"
)

// Scenario is a scripted sequence of pool operations. All amounts are
// decimal strings so scripts survive JSON number precision.
type Scenario struct {
	StartTime int64  `json:"startTime"`
	Steps     []Step `json:"steps"`
}

// Step is one scripted operation. Op selects which fields apply.
type Step struct {
	Op string `json:"op"`

	Owner             string `json:"owner,omitempty"`
	Amount0           string `json:"amount0,omitempty"`
	Amount1           string `json:"amount1,omitempty"`
	SqrtPriceX96      string `json:"sqrtPriceX96,omitempty"`
	TickLower         int64  `json:"tickLower,omitempty"`
	TickUpper         int64  `json:"tickUpper,omitempty"`
	Liquidity         string `json:"liquidity,omitempty"`
	AmountSpecified   string `json:"amountSpecified,omitempty"`
	IsToken0          bool   `json:"isToken0,omitempty"`
	SqrtPriceLimitX96 string `json:"sqrtPriceLimitX96,omitempty"`
	Shares            string `json:"shares,omitempty"`
	Seconds           int64  `json:"seconds,omitempty"`
}

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type scenarioRunner struct {
	pool     *pool.Pool
	poolAddr common.Address
	token0   *pool.Ledger
	token1   *pool.Ledger
	clock    *simClock
	logger   *zap.Logger
	differ   *statediff.Differ
	lastSnap *pool.PoolState
}

func (r *scenarioRunner) run(s *Scenario) error {
	snap, err := r.pool.State()
	if err != nil {
		return err
	}
	r.lastSnap = snap

	for i, step := range s.Steps {
		if err := r.apply(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		if err := r.logDelta(step.Op); err != nil {
			return err
		}
	}
	return nil
}

// logDelta diffs the pool against the previous step's snapshot and logs a
// summary of what the step changed.
func (r *scenarioRunner) logDelta(op string) error {
	snap, err := r.pool.State()
	if err != nil {
		return err
	}
	delta, err := r.differ.Diff(r.lastSnap, snap)
	if err != nil {
		return err
	}
	r.lastSnap = snap

	if delta.Empty() {
		return nil
	}
	r.logger.Debug("state delta",
		zap.String("op", op),
		zap.Bool("price_changed", delta.SqrtPriceX96 != nil),
		zap.Int("ticks", len(delta.Ticks)),
		zap.Int("positions", len(delta.Positions)),
		zap.Int("share_balances", len(delta.ShareBalances)),
	)
	return nil
}

func (r *scenarioRunner) apply(step Step) error {
	switch step.Op {
	case "advance":
		r.clock.Advance(step.Seconds)
		return nil

	case "fund":
		owner := common.HexToAddress(step.Owner)
		if step.Amount0 != "" {
			amount, err := parseBig(step.Amount0)
			if err != nil {
				return err
			}
			r.token0.MintTo(owner, amount)
		}
		if step.Amount1 != "" {
			amount, err := parseBig(step.Amount1)
			if err != nil {
				return err
			}
			r.token1.MintTo(owner, amount)
		}
		return nil

	case "initialize":
		sqrtPrice, err := parseBig(step.SqrtPriceX96)
		if err != nil {
			return err
		}
		owner := common.HexToAddress(step.Owner)
		qty0, qty1, err := r.pool.Initialize(sqrtPrice, r.paymentFrom(owner))
		if err != nil {
			return err
		}
		r.logger.Info("initialized",
			zap.String("qty0", qty0.String()),
			zap.String("qty1", qty1.String()),
			zap.Int64("tick", r.pool.CurrentTick()),
		)
		return nil

	case "mint":
		owner := common.HexToAddress(step.Owner)
		liquidity, err := parseBig(step.Liquidity)
		if err != nil {
			return err
		}
		lowerHint := r.pool.PreviousInitialized(step.TickLower)
		upperHint := r.pool.PreviousInitialized(step.TickUpper)
		qty0, qty1, err := r.pool.Mint(owner, step.TickLower, step.TickUpper, lowerHint, upperHint, liquidity, r.paymentFrom(owner))
		if err != nil {
			return err
		}
		r.logger.Info("minted",
			zap.String("owner", owner.Hex()),
			zap.Int64("tick_lower", step.TickLower),
			zap.Int64("tick_upper", step.TickUpper),
			zap.String("qty0", qty0.String()),
			zap.String("qty1", qty1.String()),
		)
		return nil

	case "burn":
		owner := common.HexToAddress(step.Owner)
		liquidity, err := parseBig(step.Liquidity)
		if err != nil {
			return err
		}
		qty0, qty1, feeShares, err := r.pool.Burn(owner, step.TickLower, step.TickUpper, liquidity)
		if err != nil {
			return err
		}
		r.logger.Info("burned",
			zap.String("owner", owner.Hex()),
			zap.String("qty0", qty0.String()),
			zap.String("qty1", qty1.String()),
			zap.String("fee_shares", feeShares.String()),
		)
		return nil

	case "swap":
		owner := common.HexToAddress(step.Owner)
		amount, err := parseBig(step.AmountSpecified)
		if err != nil {
			return err
		}
		limit, err := r.swapLimit(step)
		if err != nil {
			return err
		}
		delta0, delta1, err := r.pool.Swap(owner, amount, step.IsToken0, limit, r.paymentFrom(owner))
		if err != nil {
			return err
		}
		r.logger.Info("swapped",
			zap.String("owner", owner.Hex()),
			zap.Bool("is_token0", step.IsToken0),
			zap.String("delta0", delta0.String()),
			zap.String("delta1", delta1.String()),
			zap.Int64("tick", r.pool.CurrentTick()),
		)
		return nil

	case "burn-shares":
		owner := common.HexToAddress(step.Owner)
		shares, err := parseBig(step.Shares)
		if err != nil {
			return err
		}
		qty0, qty1, err := r.pool.BurnReinvestmentShares(owner, shares)
		if err != nil {
			return err
		}
		r.logger.Info("redeemed shares",
			zap.String("owner", owner.Hex()),
			zap.String("qty0", qty0.String()),
			zap.String("qty1", qty1.String()),
		)
		return nil

	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// swapLimit resolves the step's price limit, defaulting to one past the
// relevant protocol bound for the direction of travel.
func (r *scenarioRunner) swapLimit(step Step) (*big.Int, error) {
	if step.SqrtPriceLimitX96 != "" {
		return parseBig(step.SqrtPriceLimitX96)
	}
	amount, err := parseBig(step.AmountSpecified)
	if err != nil {
		return nil, err
	}
	priceUp := step.IsToken0 != (amount.Sign() > 0)
	if priceUp {
		return new(big.Int).Sub(tickmath.MaxSqrtRatio, big.NewInt(1)), nil
	}
	return new(big.Int).Add(tickmath.MinSqrtRatio, big.NewInt(1)), nil
}

// paymentFrom settles pool invoices out of owner's ledger balances.
func (r *scenarioRunner) paymentFrom(owner common.Address) pool.PaymentCallbackFunc {
	return func(owed0, owed1 *big.Int) error {
		if owed0.Sign() > 0 {
			if err := r.token0.Transfer(owner, r.poolAddr, owed0); err != nil {
				return err
			}
		}
		if owed1.Sign() > 0 {
			if err := r.token1.Transfer(owner, r.poolAddr, owed1); err != nil {
				return err
			}
		}
		return nil
	}
}

func (r *scenarioRunner) printState() {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "field\tvalue")
	fmt.Fprintf(w, "sqrtPriceX96\t%s\n", r.pool.SqrtPriceX96())
	fmt.Fprintf(w, "currentTick\t%d\n", r.pool.CurrentTick())
	fmt.Fprintf(w, "nearestCurrentTick\t%d\n", r.pool.NearestCurrentTick())
	fmt.Fprintf(w, "baseLiquidity\t%s\n", r.pool.BaseLiquidity())
	fmt.Fprintf(w, "reinvestmentLiquidity\t%s\n", r.pool.ReinvestmentLiquidity())
	fmt.Fprintf(w, "shareSupply\t%s\n", r.pool.ShareSupply())
	fmt.Fprintf(w, "feeGrowthGlobal\t%s\n", r.pool.FeeGrowthGlobal().Dec())
	w.Flush()

	ticks := r.pool.InitializedTicks(tickmath.MinTick, 64)
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "tick\tliquidityGross\tliquidityNet")
	for _, tick := range ticks {
		data, ok := r.pool.TickAt(tick)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", tick, data.LiquidityGross, data.LiquidityNet)
	}
	tw.Flush()
}
