// Package config defines the pool engine configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields come from a TOML file and are
// then optionally overridden by POOLENGINE_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Engine   EngineConfig   `toml:"engine"`
	Chain    ChainConfig    `toml:"chain"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// DatabaseConfig points at PostgreSQL. An empty URL selects the in-memory
// store.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// RedisConfig enables the read-through cache and the cross-instance lock.
type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL duration `toml:"cache_ttl"`
	LockTTL  duration `toml:"lock_ttl"`
}

// EngineConfig holds pool lifecycle parameters.
type EngineConfig struct {
	FeeTier                int      `toml:"fee_tier"`
	SwapDeadline           duration `toml:"swap_deadline"`
	RefundDelay            duration `toml:"refund_delay"`
	MaxDeadlineHorizon     duration `toml:"max_deadline_horizon"`
	EmergencyWithdrawDelay duration `toml:"emergency_withdraw_delay"`
	MinOutPolicy           string   `toml:"min_out_policy"` // "any_nonzero" or "oracle_quote"
	OracleQuoteScale       string   `toml:"oracle_quote_scale"`
	ExecutorRewardBps      int      `toml:"executor_reward_bps"`
	BonusBps               int      `toml:"bonus_bps"`
}

// ChainConfig names the escrow account and the contracts it talks to. An
// empty RPCURL keeps prices on the in-process simulator.
type ChainConfig struct {
	RPCURL        string `toml:"rpc_url"`
	Escrow        string `toml:"escrow"`
	WrappedNative string `toml:"wrapped_native"`
	Router        string `toml:"router"`

	Sim SimConfig `toml:"sim"`
}

// SimConfig seeds the in-process chain used when no RPC is configured.
// Rates and Prices are keyed by hex address; assets and venues without an
// entry use the defaults.
type SimConfig struct {
	AttachedValue bool              `toml:"attached_value"` // deposits arrive with the join call
	DefaultRate   string            `toml:"default_rate"`   // output units per wrapped input unit
	DefaultPrice  string            `toml:"default_price"`
	Rates         map[string]string `toml:"rates"`
	Prices        map[string]string `toml:"prices"`
}

// duration wraps time.Duration so TOML strings like "24h" decode.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config that runs a single in-memory node.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
			LockTTL:  duration{30 * time.Second},
		},
		Engine: EngineConfig{
			FeeTier:            10000,
			SwapDeadline:       duration{5 * time.Minute},
			RefundDelay:        duration{24 * time.Hour},
			MaxDeadlineHorizon: duration{365 * 24 * time.Hour},
			MinOutPolicy:       "any_nonzero",
			OracleQuoteScale:   "1",
			ExecutorRewardBps:  100,
			BonusBps:           900,
		},
		Chain: ChainConfig{
			Escrow:        "0x000000000000000000000000000000000000e5c0",
			WrappedNative: "0x000000000000000000000000000000000000eeee",
			Router:        "0x0000000000000000000000000000000000000f00",
			Sim: SimConfig{
				AttachedValue: true,
				DefaultRate:   "1000",
				DefaultPrice:  "1000",
			},
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validMinOutPolicies = map[string]bool{
	"any_nonzero":  true,
	"oracle_quote": true,
}

// Validate checks Config for invalid values and returns a combined error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1..65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "server: shutdown_timeout must be positive")
	}

	if c.Redis.URL != "" {
		if c.Redis.CacheTTL.Duration <= 0 {
			errs = append(errs, "redis: cache_ttl must be positive")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be positive")
		}
	}

	e := c.Engine
	if e.FeeTier <= 0 || e.FeeTier > 1000000 {
		errs = append(errs, fmt.Sprintf("engine: fee_tier must be 1..1000000, got %d", e.FeeTier))
	}
	if e.SwapDeadline.Duration <= 0 {
		errs = append(errs, "engine: swap_deadline must be positive")
	}
	if e.RefundDelay.Duration <= 0 {
		errs = append(errs, "engine: refund_delay must be positive")
	}
	if e.MaxDeadlineHorizon.Duration <= 0 {
		errs = append(errs, "engine: max_deadline_horizon must be positive")
	}
	if e.EmergencyWithdrawDelay.Duration < 0 {
		errs = append(errs, "engine: emergency_withdraw_delay must not be negative")
	}
	if !validMinOutPolicies[e.MinOutPolicy] {
		errs = append(errs, fmt.Sprintf("engine: unknown min_out_policy %q (valid: any_nonzero, oracle_quote)", e.MinOutPolicy))
	}
	if e.ExecutorRewardBps < 0 || e.BonusBps < 0 || e.ExecutorRewardBps+e.BonusBps >= 10000 {
		errs = append(errs, fmt.Sprintf("engine: executor_reward_bps (%d) + bonus_bps (%d) must be in 0..9999",
			e.ExecutorRewardBps, e.BonusBps))
	}

	for name, v := range map[string]string{
		"escrow":         c.Chain.Escrow,
		"wrapped_native": c.Chain.WrappedNative,
		"router":         c.Chain.Router,
	} {
		if !common.IsHexAddress(v) || common.HexToAddress(v) == (common.Address{}) {
			errs = append(errs, fmt.Sprintf("chain: %s must be a non-zero hex address, got %q", name, v))
		}
	}

	sim := c.Chain.Sim
	for name, v := range map[string]string{"default_rate": sim.DefaultRate, "default_price": sim.DefaultPrice} {
		if v == "" {
			continue
		}
		if !positiveDecimal(v) {
			errs = append(errs, fmt.Sprintf("chain.sim: %s must be a positive number, got %q", name, v))
		}
	}
	for table, entries := range map[string]map[string]string{"rates": sim.Rates, "prices": sim.Prices} {
		for k, v := range entries {
			if !common.IsHexAddress(k) {
				errs = append(errs, fmt.Sprintf("chain.sim: %s key %q is not a hex address", table, k))
			}
			if !positiveDecimal(v) {
				errs = append(errs, fmt.Sprintf("chain.sim: %s[%s] must be a positive number, got %q", table, k, v))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func positiveDecimal(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsPositive()
}
