package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// Config is the root configuration loaded from TOML
type Config struct {
	Debug    bool           `toml:"debug"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Trading  TradingConfig  `toml:"trading"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Futarchy FutarchyConfig `toml:"futarchy"`
	Tokens   []TokenConfig  `toml:"tokens"`
	Venues   []VenueConfig  `toml:"venues"`
}

type ChainConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	ChainID           int64    `toml:"chain_id"`
	CallTimeout       Duration `toml:"call_timeout"`
	ReadRetries       uint     `toml:"read_retries"`
	RetryDelay        Duration `toml:"retry_delay"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	PollInterval      Duration `toml:"poll_interval"`
}

type WalletConfig struct {
	PrivateKey string `toml:"private_key"`
}

type TradingConfig struct {
	SlippageBps       uint64   `toml:"slippage_bps"`
	MinProfitBps      uint64   `toml:"min_profit_bps"`
	GasBufferPct      uint64   `toml:"gas_buffer_pct"`
	Deadline          Duration `toml:"deadline"`
	ConfirmTimeout    Duration `toml:"confirm_timeout"`
	MinReserve        string   `toml:"min_reserve"` // smallest units
	UnlimitedApproval bool     `toml:"unlimited_approval"`
}

type RedisConfig struct {
	Addr      string   `toml:"addr"`
	Password  string   `toml:"password"`
	DB        int      `toml:"db"`
	RecordTTL Duration `toml:"record_ttl"`
	LockTTL   Duration `toml:"lock_ttl"`
}

type ServerConfig struct {
	Port int `toml:"port"`
}

type FutarchyConfig struct {
	Router      string  `toml:"router"`
	Proposal    string  `toml:"proposal"`
	Collateral  string  `toml:"collateral"`
	Company     string  `toml:"company"`
	Probability float64 `toml:"probability"`
}

// TokenConfig adds a token to the built-in registry
type TokenConfig struct {
	Address  string `toml:"address"`
	Symbol   string `toml:"symbol"`
	Name     string `toml:"name"`
	Decimals uint8  `toml:"decimals"`
}

// VenueConfig declares one venue. Tokens are referenced by symbol or address.
type VenueConfig struct {
	Name     string `toml:"name"`
	Protocol string `toml:"protocol"`
	Address  string `toml:"address"`
	PoolID   string `toml:"pool_id"`
	Token0   string `toml:"token0"`
	Token1   string `toml:"token1"`
	FeeBps   uint64 `toml:"fee_bps"`
	Weight0  uint64 `toml:"weight0"`
	Weight1  uint64 `toml:"weight1"`
	Router   string `toml:"router"`
	Quoter   string `toml:"quoter"`
}

// Duration is a time.Duration that decodes from TOML strings such as "30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Gnosis chain deployment
const (
	gnosisChainID    = 100
	balancerVault    = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
	sushiswapRouter  = "0x592abc3734cd0d458e6e44a2db2992a3d00283a4"
	futarchyRouter   = "0x7495a583ba85875d59407781b4958ED6e0E1228f"
	futarchyProposal = "0x6242AbA055957A63d682e9D3de3364ACB53D053A"
)

func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:            "https://rpc.gnosischain.com",
			ChainID:           gnosisChainID,
			CallTimeout:       Duration{10 * time.Second},
			ReadRetries:       3,
			RetryDelay:        Duration{400 * time.Millisecond},
			RequestsPerSecond: 20,
			PollInterval:      Duration{2 * time.Second},
		},
		Trading: TradingConfig{
			SlippageBps:    50,
			MinProfitBps:   10,
			GasBufferPct:   20,
			Deadline:       Duration{20 * time.Minute},
			ConfirmTimeout: Duration{5 * time.Minute},
			MinReserve:     "1000",
		},
		Redis: RedisConfig{
			RecordTTL: Duration{24 * time.Hour},
			LockTTL:   Duration{10 * time.Minute},
		},
		Server: ServerConfig{Port: 8080},
		Futarchy: FutarchyConfig{
			Router:      futarchyRouter,
			Proposal:    futarchyProposal,
			Collateral:  entities.SDAI.Symbol,
			Company:     entities.GNO.Symbol,
			Probability: 0.5,
		},
		Venues: []VenueConfig{
			{
				Name:     "waGNO vault",
				Protocol: string(entities.ProtocolERC4626),
				Address:  entities.WAGNO.Address.Hex(),
				Token0:   entities.GNO.Symbol,
				Token1:   entities.WAGNO.Symbol,
			},
			{
				Name:     "Balancer waGNO/sDAI",
				Protocol: string(entities.ProtocolBalancer),
				Address:  "0xd1d7fa8871d84d0e77020fc28b7cd5718c446522",
				PoolID:   "0xd1d7fa8871d84d0e77020fc28b7cd5718c4465220000000000000000000001d7",
				Token0:   entities.WAGNO.Symbol,
				Token1:   entities.SDAI.Symbol,
				FeeBps:   25,
				Weight0:  5000,
				Weight1:  5000,
				Router:   balancerVault,
			},
			{
				Name:     "YES pool",
				Protocol: string(entities.ProtocolUniswapV3),
				Address:  "0x9a14d28909f42823ee29847f87a15fb3b6e8aed3",
				Token0:   entities.GNOYes.Symbol,
				Token1:   entities.SDAIYes.Symbol,
				FeeBps:   100,
				Router:   sushiswapRouter,
			},
			{
				Name:     "NO pool",
				Protocol: string(entities.ProtocolUniswapV3),
				Address:  "0x6E33153115Ab58dab0e0F1E3a2ccda6e67FA5cD7",
				Token0:   entities.SDAINo.Symbol,
				Token1:   entities.GNONo.Symbol,
				FeeBps:   100,
				Router:   sushiswapRouter,
			},
		},
	}
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Trading.SlippageBps > 10000 {
		errs = append(errs, fmt.Sprintf("trading: slippage_bps %d exceeds 10000", c.Trading.SlippageBps))
	}
	if c.Trading.MinProfitBps > 10000 {
		errs = append(errs, fmt.Sprintf("trading: min_profit_bps %d exceeds 10000", c.Trading.MinProfitBps))
	}
	if _, ok := new(big.Int).SetString(c.Trading.MinReserve, 10); !ok && c.Trading.MinReserve != "" {
		errs = append(errs, fmt.Sprintf("trading: min_reserve %q is not an integer", c.Trading.MinReserve))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL.Duration < 3*time.Second {
		errs = append(errs, fmt.Sprintf("redis: lock_ttl %s must be at least 3s", c.Redis.LockTTL.Duration))
	}
	if c.Futarchy.Probability < 0 || c.Futarchy.Probability > 1 {
		errs = append(errs, "futarchy: probability must be within [0, 1]")
	}
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			errs = append(errs, fmt.Sprintf("tokens: %q has invalid address %q", t.Symbol, t.Address))
		}
	}

	registry := c.TokenRegistry()
	for i, v := range c.Venues {
		if _, err := v.Venue(registry); err != nil {
			errs = append(errs, fmt.Sprintf("venues[%d]: %v", i, err))
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// TokenRegistry returns the built-in tokens plus the configured ones
func (c *Config) TokenRegistry() *entities.TokenRegistry {
	registry := entities.DefaultRegistry()
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			continue
		}
		registry.Register(entities.Token{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Name:     t.Name,
			Decimals: t.Decimals,
		})
	}
	return registry
}

// BuildVenues resolves the venue list in declaration order
func (c *Config) BuildVenues(registry *entities.TokenRegistry) ([]entities.Venue, error) {
	venues := make([]entities.Venue, 0, len(c.Venues))
	for i, v := range c.Venues {
		venue, err := v.Venue(registry)
		if err != nil {
			return nil, fmt.Errorf("venues[%d]: %w", i, err)
		}
		venues = append(venues, venue)
	}
	return venues, nil
}

// MinReserveWei returns trading.min_reserve as an integer, zero when unset
func (c *Config) MinReserveWei() *big.Int {
	n, ok := new(big.Int).SetString(c.Trading.MinReserve, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// Venue resolves token references and derives the curve kind from the protocol
func (v VenueConfig) Venue(registry *entities.TokenRegistry) (entities.Venue, error) {
	protocol := entities.Protocol(strings.ToLower(v.Protocol))
	var kind entities.VenueKind
	switch protocol {
	case entities.ProtocolUniswapV2, entities.ProtocolUniswapV3:
		kind = entities.ConstantProduct
	case entities.ProtocolBalancer:
		kind = entities.WeightedPool
	case entities.ProtocolERC4626:
		kind = entities.WrapVault
	default:
		return entities.Venue{}, fmt.Errorf("%w: protocol %q", entities.ErrUnsupportedVenue, v.Protocol)
	}

	if !common.IsHexAddress(v.Address) {
		return entities.Venue{}, fmt.Errorf("invalid address %q", v.Address)
	}
	token0, err := resolveToken(registry, v.Token0)
	if err != nil {
		return entities.Venue{}, err
	}
	token1, err := resolveToken(registry, v.Token1)
	if err != nil {
		return entities.Venue{}, err
	}
	if token0.Address == token1.Address {
		return entities.Venue{}, fmt.Errorf("token0 and token1 are both %s", token0)
	}
	if kind == entities.WeightedPool && (v.Weight0 == 0 || v.Weight1 == 0) {
		return entities.Venue{}, fmt.Errorf("weighted venue %q needs weight0 and weight1", v.Name)
	}
	if v.FeeBps >= 10000 {
		return entities.Venue{}, fmt.Errorf("fee_bps %d must be below 10000", v.FeeBps)
	}

	venue := entities.Venue{
		Name:     v.Name,
		Kind:     kind,
		Protocol: protocol,
		Address:  common.HexToAddress(v.Address),
		Token0:   token0,
		Token1:   token1,
		FeeBps:   v.FeeBps,
		Weight0:  v.Weight0,
		Weight1:  v.Weight1,
	}
	if v.PoolID != "" {
		venue.PoolID = common.HexToHash(v.PoolID)
	}
	if v.Router != "" {
		venue.Router = common.HexToAddress(v.Router)
	}
	if v.Quoter != "" {
		venue.Quoter = common.HexToAddress(v.Quoter)
	}
	return venue, nil
}

func resolveToken(registry *entities.TokenRegistry, ref string) (entities.Token, error) {
	if t, ok := registry.GetBySymbol(ref); ok {
		return t, nil
	}
	if common.IsHexAddress(ref) {
		if t, ok := registry.GetByAddress(common.HexToAddress(ref)); ok {
			return t, nil
		}
	}
	return entities.Token{}, fmt.Errorf("%w: %q", entities.ErrUnknownToken, ref)
}
