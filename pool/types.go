package pool

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrAlreadyInitialized     = errors.New("pool already initialized")
	ErrNotInitialized         = errors.New("pool not initialized")
	ErrPoolLocked             = errors.New("pool operation already in progress")
	ErrZeroQuantity           = errors.New("quantity must be nonzero")
	ErrInvalidTickRange       = errors.New("tickLower must be below tickUpper")
	ErrTickNotAligned         = errors.New("tick not a multiple of tick spacing")
	ErrInvalidPriceLimit      = errors.New("price limit not beyond current price")
	ErrInsufficientSettlement = errors.New("callback delivered less than owed")
	ErrInsufficientBalance    = errors.New("balance below requested amount")
	ErrLiquidityOverflow      = errors.New("liquidity exceeds per-tick maximum")
	ErrLiquidityUnderflow     = errors.New("liquidity removal exceeds existing liquidity")
)

// Logger defines a standard interface for structured, leveled logging.
// zap's SugaredLogger satisfies it via Debugw/Infow adapters in cmd.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// TokenBackend is the narrow token interface the engine consumes. The
// engine never trusts a transfer's success blindly for inbound settlement;
// it re-measures its own balance instead.
type TokenBackend interface {
	BalanceOf(addr common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
}

// PaymentCallback settles amounts owed to the pool. Positive values are
// owed to the pool; the callback is expected to transfer them in before
// returning. The pool verifies receipt by balance delta.
type PaymentCallback interface {
	Pay(owed0, owed1 *big.Int) error
}

// PaymentCallbackFunc adapts a function to the PaymentCallback interface.
type PaymentCallbackFunc func(owed0, owed1 *big.Int) error

func (f PaymentCallbackFunc) Pay(owed0, owed1 *big.Int) error { return f(owed0, owed1) }

// Observer is notified of committed swap observations for external TWAP
// computation. Pool correctness never depends on it.
type Observer interface {
	RecordObservation(tick int64, timestamp int64)
}

// Config carries the externally-owned pool parameters. It stands in for
// the factory/configuration provider.
type Config struct {
	// SwapFeeBps is the swap fee in basis points, taken from input amounts.
	SwapFeeBps uint64
	// GovernmentFeeBps is the share of minted reinvestment shares diverted
	// to FeeTo, in basis points.
	GovernmentFeeBps uint64
	FeeTo            common.Address
	// TickSpacing constrains position bounds to aligned ticks.
	TickSpacing int64
	// VestingPeriod is the anti-snipe vesting window in seconds. Zero
	// disables vesting entirely.
	VestingPeriod int64

	Token0 TokenBackend
	Token1 TokenBackend
	// Address is the pool's own identity on the token backends.
	Address common.Address

	Logger   Logger
	Registry prometheus.Registerer
	Observer Observer
	// Now supplies the current unix time; defaults to time.Now.
	Now func() int64
}

func (c *Config) validate() error {
	if c.Token0 == nil || c.Token1 == nil {
		return errors.New("config: Token0 and Token1 cannot be nil")
	}
	if c.TickSpacing <= 0 {
		return errors.New("config: TickSpacing must be positive")
	}
	if c.SwapFeeBps >= bps {
		return errors.New("config: SwapFeeBps must be below 10000")
	}
	if c.GovernmentFeeBps > bps {
		return errors.New("config: GovernmentFeeBps must not exceed 10000")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	if out.Registry == nil {
		out.Registry = prometheus.NewRegistry()
	}
	if out.Now == nil {
		out.Now = func() int64 { return time.Now().Unix() }
	}
	return out
}
