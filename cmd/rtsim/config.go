package main

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cliConfig mirrors the subset of kernel.Config that makes sense to tune
// from outside the process (SPEC_FULL.md §6's "Configuration surface"),
// bound through pflag/viper so it can come from flags, RTSIM_-prefixed
// environment variables, or a config file, in that order of precedence.
type cliConfig struct {
	TickPeriod        time.Duration
	MaxPriority       uint8
	RoundRobinQuantum int
	Scenario          string
	MetricsAddr       string
	ConfigFile        string
}

func bindFlags(flags *pflag.FlagSet) {
	flags.Duration("tick-period", time.Millisecond, "wall-clock duration of one kernel tick")
	flags.Uint8("max-priority", 255, "highest priority value a thread may hold")
	flags.Int("round-robin-quantum", 10, "ticks a round-robin thread runs before rotating behind peers")
	flags.StringP("scenario", "s", "all", "scenario to run: s1-s6, or all")
	flags.String("metrics-addr", "", "if set, serve prometheus metrics at this address (e.g. :9090) while the scenario runs")
	flags.String("config", "", "path to a config file (yaml/json/toml) overriding the defaults")
}

// loadConfig reads bound flags through viper, applying (in increasing
// priority) defaults, a config file if named, RTSIM_* environment
// variables, and finally explicit flags.
func loadConfig(flags *pflag.FlagSet) (*cliConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("rtsim")
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	cfgFilePath := v.GetString("config")
	if cfgFilePath != "" {
		v.SetConfigFile(cfgFilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &cliConfig{
		TickPeriod:        v.GetDuration("tick-period"),
		MaxPriority:       uint8(v.GetUint("max-priority")),
		RoundRobinQuantum: v.GetInt("round-robin-quantum"),
		Scenario:          v.GetString("scenario"),
		MetricsAddr:       v.GetString("metrics-addr"),
		ConfigFile:        cfgFilePath,
	}, nil
}
