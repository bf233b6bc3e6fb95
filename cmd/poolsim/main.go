package main

import (
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/defistate/elastic-amm-go/events"
	"github.com/defistate/elastic-amm-go/pool"
	"github.com/defistate/elastic-amm-go/statediff"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsim",
		Short:        "Concentrated-liquidity pool simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scripted pool scenario",
		RunE:  runScenario,
	}

	runCmd.Flags().String("scenario", "", "scenario JSON path")
	runCmd.Flags().Uint64("swap-fee-bps", 30, "swap fee in basis points")
	runCmd.Flags().Uint64("government-fee-bps", 0, "government share of minted fees in basis points")
	runCmd.Flags().String("fee-to", "", "government fee recipient address")
	runCmd.Flags().Int64("tick-spacing", 10, "tick spacing")
	runCmd.Flags().Int64("vesting-period", 0, "anti-snipe vesting period in seconds")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScenario(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.ScenarioPath == "" {
		return fmt.Errorf("scenario path is required")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scenario, err := loadScenario(cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}

	clock := &simClock{now: scenario.StartTime}
	token0 := pool.NewLedger()
	token1 := pool.NewLedger()

	poolAddr := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	registry := prometheus.NewRegistry()
	poolLogger := &zapPoolLogger{sugar: logger.Sugar()}

	stream, err := events.NewStream(&events.Config{BufferSize: 64, Logger: poolLogger})
	if err != nil {
		return err
	}
	defer stream.Close()

	p, err := pool.NewPool(pool.Config{
		SwapFeeBps:       cfg.SwapFeeBps,
		GovernmentFeeBps: cfg.GovernmentFeeBps,
		FeeTo:            common.HexToAddress(cfg.FeeTo),
		TickSpacing:      cfg.TickSpacing,
		VestingPeriod:    cfg.VestingPeriod,
		Token0:           token0,
		Token1:           token1,
		Address:          poolAddr,
		Logger:           poolLogger,
		Registry:         registry,
		Observer:         stream,
		Now:              clock.Now,
	})
	if err != nil {
		return err
	}

	differ, err := statediff.NewDiffer(&statediff.Config{Registry: registry, Logger: poolLogger})
	if err != nil {
		return err
	}

	logger.Info("scenario start",
		zap.String("path", cfg.ScenarioPath),
		zap.Uint64("swap_fee_bps", cfg.SwapFeeBps),
		zap.Int64("tick_spacing", cfg.TickSpacing),
		zap.Int64("vesting_period", cfg.VestingPeriod),
		zap.Int("steps", len(scenario.Steps)),
	)

	obsCh, cancelObs := stream.Subscribe()
	obsDone := make(chan struct{})
	go func() {
		defer close(obsDone)
		for obs := range obsCh {
			logger.Debug("observation",
				zap.Uint64("seq", obs.Seq),
				zap.Int64("tick", obs.Tick),
				zap.Int64("timestamp", obs.Timestamp),
			)
		}
	}()

	runner := &scenarioRunner{
		pool:     p,
		poolAddr: poolAddr,
		token0:   token0,
		token1:   token1,
		clock:    clock,
		logger:   logger,
		differ:   differ,
	}
	runErr := runner.run(scenario)
	cancelObs()
	<-obsDone
	if runErr != nil {
		return runErr
	}

	runner.printState()
	return nil
}

// simClock is a manually advanced clock so vesting behavior is scriptable.
type simClock struct {
	now int64
}

func (c *simClock) Now() int64 { return c.now }

func (c *simClock) Advance(seconds int64) { c.now += seconds }

// zapPoolLogger adapts a zap SugaredLogger to the pool Logger interface.
type zapPoolLogger struct {
	sugar *zap.SugaredLogger
}

func (l *zapPoolLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *zapPoolLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *zapPoolLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *zapPoolLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed integer %q", s)
	}
	return v, nil
}
