package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when empty) over Defaults,
// loads a .env file if present and applies environment overrides. The
// result has NOT been validated; call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads POOLENGINE_* variables, plus the bare PORT,
// DATABASE_URL and REDIS_URL that container platforms set, and overwrites
// the matching fields when a variable is non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Platform ──
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")

	// ── Server ──
	setInt(&cfg.Server.Port, "POOLENGINE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "POOLENGINE_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.ShutdownTimeout, "POOLENGINE_SERVER_SHUTDOWN_TIMEOUT")

	// ── Storage ──
	setStr(&cfg.Database.URL, "POOLENGINE_DATABASE_URL")
	setStr(&cfg.Redis.URL, "POOLENGINE_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "POOLENGINE_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "POOLENGINE_REDIS_LOCK_TTL")

	// ── Engine ──
	setInt(&cfg.Engine.FeeTier, "POOLENGINE_ENGINE_FEE_TIER")
	setDuration(&cfg.Engine.SwapDeadline, "POOLENGINE_ENGINE_SWAP_DEADLINE")
	setDuration(&cfg.Engine.RefundDelay, "POOLENGINE_ENGINE_REFUND_DELAY")
	setDuration(&cfg.Engine.MaxDeadlineHorizon, "POOLENGINE_ENGINE_MAX_DEADLINE_HORIZON")
	setDuration(&cfg.Engine.EmergencyWithdrawDelay, "POOLENGINE_ENGINE_EMERGENCY_WITHDRAW_DELAY")
	setStr(&cfg.Engine.MinOutPolicy, "POOLENGINE_ENGINE_MIN_OUT_POLICY")
	setStr(&cfg.Engine.OracleQuoteScale, "POOLENGINE_ENGINE_ORACLE_QUOTE_SCALE")
	setInt(&cfg.Engine.ExecutorRewardBps, "POOLENGINE_ENGINE_EXECUTOR_REWARD_BPS")
	setInt(&cfg.Engine.BonusBps, "POOLENGINE_ENGINE_BONUS_BPS")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POOLENGINE_CHAIN_RPC_URL")
	setStr(&cfg.Chain.Escrow, "POOLENGINE_CHAIN_ESCROW")
	setStr(&cfg.Chain.WrappedNative, "POOLENGINE_CHAIN_WRAPPED_NATIVE")
	setStr(&cfg.Chain.Router, "POOLENGINE_CHAIN_ROUTER")
	setBool(&cfg.Chain.Sim.AttachedValue, "POOLENGINE_CHAIN_SIM_ATTACHED_VALUE")
	setStr(&cfg.Chain.Sim.DefaultRate, "POOLENGINE_CHAIN_SIM_DEFAULT_RATE")
	setStr(&cfg.Chain.Sim.DefaultPrice, "POOLENGINE_CHAIN_SIM_DEFAULT_PRICE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "POOLENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
