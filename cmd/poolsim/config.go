package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds simulator settings loaded from flags, env, or config file.
type Config struct {
	ScenarioPath     string
	SwapFeeBps       uint64
	GovernmentFeeBps uint64
	FeeTo            string
	TickSpacing      int64
	VestingPeriod    int64
	LogLevel         string
}

// loadConfig merges config file, environment variables, and flags.
func loadConfig(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("swap-fee-bps", uint64(30))
	v.SetDefault("government-fee-bps", uint64(0))
	v.SetDefault("tick-spacing", int64(10))
	v.SetDefault("vesting-period", int64(0))
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return Config{
		ScenarioPath:     v.GetString("scenario"),
		SwapFeeBps:       v.GetUint64("swap-fee-bps"),
		GovernmentFeeBps: v.GetUint64("government-fee-bps"),
		FeeTo:            v.GetString("fee-to"),
		TickSpacing:      v.GetInt64("tick-spacing"),
		VestingPeriod:    v.GetInt64("vesting-period"),
		LogLevel:         v.GetString("log-level"),
	}, nil
}
