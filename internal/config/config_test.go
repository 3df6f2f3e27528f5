package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	venues, err := cfg.BuildVenues(cfg.TokenRegistry())
	require.NoError(t, err)
	require.Len(t, venues, 4)
	assert.Equal(t, entities.WrapVault, venues[0].Kind)
	assert.Equal(t, entities.WeightedPool, venues[1].Kind)
	assert.Equal(t, entities.ConstantProduct, venues[2].Kind)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing rpc", func(c *Config) { c.Chain.RPCURL = "" }, "rpc_url"},
		{"zero chain id", func(c *Config) { c.Chain.ChainID = 0 }, "chain_id"},
		{"slippage over 100%", func(c *Config) { c.Trading.SlippageBps = 10001 }, "slippage_bps"},
		{"bad min reserve", func(c *Config) { c.Trading.MinReserve = "lots" }, "min_reserve"},
		{"unknown token", func(c *Config) { c.Venues[0].Token1 = "DOGE" }, "unknown token"},
		{"weights missing", func(c *Config) { c.Venues[1].Weight0 = 0 }, "weight0"},
		{"unknown protocol", func(c *Config) { c.Venues[2].Protocol = "curve" }, "unsupported venue"},
		{"lock ttl too short", func(c *Config) {
			c.Redis.Addr = "localhost:6379"
			c.Redis.LockTTL = Duration{time.Second}
		}, "lock_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "futarchy.toml")
	content := `
[chain]
rpc_url = "http://localhost:8545"
call_timeout = "3s"

[trading]
slippage_bps = 100

[[tokens]]
address = "0x0000000000000000000000000000000000000abc"
symbol = "TST"
decimals = 6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("FUTARCHY_CHAIN_ID", "10200")
	t.Setenv("FUTARCHY_PRIVATE_KEY", "0xkey")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Chain.RPCURL)
	assert.Equal(t, 3*time.Second, cfg.Chain.CallTimeout.Duration)
	assert.Equal(t, int64(10200), cfg.Chain.ChainID)
	assert.Equal(t, "0xkey", cfg.Wallet.PrivateKey)
	assert.Equal(t, uint64(100), cfg.Trading.SlippageBps)
	assert.Equal(t, uint64(20), cfg.Trading.GasBufferPct, "defaults survive")
	assert.Len(t, cfg.Venues, 4, "venues not in the file keep their defaults")

	tok, ok := cfg.TokenRegistry().GetBySymbol("tst")
	require.True(t, ok)
	assert.Equal(t, uint8(6), tok.Decimals)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
