package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path (skipped when path is empty), merges it
// over Defaults, then applies FUTARCHY_* environment overrides. The result
// has not been validated.
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

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain.RPCURL, "RPC_URL") // compatibility alias
	setStr(&cfg.Chain.RPCURL, "FUTARCHY_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "FUTARCHY_CHAIN_ID")
	setDuration(&cfg.Chain.CallTimeout, "FUTARCHY_CALL_TIMEOUT")

	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Wallet.PrivateKey, "FUTARCHY_PRIVATE_KEY")

	setStr(&cfg.Redis.Addr, "FUTARCHY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTARCHY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTARCHY_REDIS_DB")

	setInt(&cfg.Server.Port, "FUTARCHY_SERVER_PORT")

	setStr(&cfg.Futarchy.Router, "FUTARCHY_ROUTER")
	setStr(&cfg.Futarchy.Proposal, "FUTARCHY_PROPOSAL")

	setBool(&cfg.Debug, "FUTARCHY_DEBUG")
}

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
