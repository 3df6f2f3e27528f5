package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/config"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/cache"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/dex"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/ethereum"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/logging"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

// app holds the state shared by all commands. Chain-facing dependencies are
// created on first use so that config errors surface before any dialing.
type app struct {
	cfgFile string
	debug   bool

	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tokens   *entities.TokenRegistry
	venues   []entities.Venue

	chain   *ethereum.Client
	dex     *dex.Registry
	erc20   *dex.ERC20Client
	records cache.RecordStore
	locker  services.AccountLocker
	closers []func()
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = *cfg

	if a.logger, err = logging.New(cfg.Debug); err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.tokens = cfg.TokenRegistry()
	if a.venues, err = cfg.BuildVenues(a.tokens); err != nil {
		return err
	}
	return nil
}

// connect dials the RPC endpoint and the optional Redis instance
func (a *app) connect(ctx context.Context) error {
	if a.chain != nil {
		return nil
	}
	c := a.cfg.Chain
	chain, err := ethereum.NewClient(c.RPCURL, ethereum.Options{
		CallTimeout:       c.CallTimeout.Duration,
		ReadRetries:       c.ReadRetries,
		RetryDelay:        c.RetryDelay.Duration,
		RequestsPerSecond: c.RequestsPerSecond,
		PollInterval:      c.PollInterval.Duration,
	}, a.logger, a.metrics)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, chain.Close)

	chainID, err := chain.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	a.logger.Info("connected to chain",
		zap.String("rpc_url", c.RPCURL),
		zap.String("chain_id", chainID.String()),
	)

	a.chain = chain
	a.erc20 = dex.NewERC20Client(chain)
	a.dex = dex.NewRegistry(
		dex.NewUniswapV2Client(chain),
		dex.NewUniswapV3Client(chain),
		dex.NewBalancerClient(chain),
		dex.NewVaultClient(chain, a.logger),
	)

	local := services.NewLocalLocker()
	a.locker = local
	a.records = cache.NewInMemoryCache(a.cfg.Redis.RecordTTL.Duration)
	if addr := a.cfg.Redis.Addr; addr != "" {
		redisCache, err := cache.NewRedisCache(addr, a.cfg.Redis.Password, a.cfg.Redis.DB, a.cfg.Redis.RecordTTL.Duration)
		if err != nil {
			a.logger.Warn("failed to connect to redis, using in-memory records", zap.String("addr", addr), zap.Error(err))
		} else {
			a.records = redisCache
			a.locker = services.StackedLocker{local, cache.NewRedisLocker(redisCache.Client(), a.cfg.Redis.LockTTL.Duration, a.logger)}
			a.closers = append(a.closers, func() { _ = redisCache.Close() })
			a.logger.Info("connected to redis", zap.String("addr", addr))
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) engine() *services.PriceImpactEngine {
	return services.NewPriceImpactEngine(a.cfg.MinReserveWei(), a.metrics)
}

func (a *app) routeBuilder() *services.RouteBuilder {
	t := a.cfg.Trading
	return services.NewRouteBuilder(a.venues, a.dex, a.engine(), t.SlippageBps, t.Deadline.Duration, a.logger, a.metrics)
}

func (a *app) simulator() *services.SimulationExecutor {
	return services.NewSimulationExecutor(a.dex, a.dex, a.chain, a.engine(), a.logger, a.metrics)
}

func (a *app) evaluator(minProfitBps uint64) *services.ArbitrageEvaluator {
	return services.NewArbitrageEvaluator(minProfitBps, a.logger, a.metrics)
}

func (a *app) orchestrator() *services.TransactionOrchestrator {
	t := a.cfg.Trading
	return services.NewTransactionOrchestrator(a.chain, a.erc20, a.dex, a.locker, a.records, services.OrchestratorConfig{
		ChainID:           big.NewInt(a.cfg.Chain.ChainID),
		GasBufferPct:      t.GasBufferPct,
		ConfirmTimeout:    t.ConfirmTimeout.Duration,
		UnlimitedApproval: t.UnlimitedApproval,
	}, a.logger, a.metrics)
}

func (a *app) markets() *services.MarketService {
	f := a.cfg.Futarchy
	collateral, _ := a.tokens.GetBySymbol(f.Collateral)
	company, _ := a.tokens.GetBySymbol(f.Company)
	yesCollateral, noCollateral := a.outcomes(f.Collateral)
	yesCompany, noCompany := a.outcomes(f.Company)

	return services.NewMarketService(a.venues, a.dex, a.engine(), services.Markets{
		Collateral:    collateral,
		Company:       company,
		YesCollateral: yesCollateral,
		NoCollateral:  noCollateral,
		YesCompany:    yesCompany,
		NoCompany:     noCompany,
		Probability:   decimal.NewFromFloat(f.Probability),
	}, a.logger)
}

// outcomes returns the YES_<symbol> and NO_<symbol> tokens, zero when absent
func (a *app) outcomes(symbol string) (entities.Token, entities.Token) {
	yes, _ := a.tokens.GetBySymbol("YES_" + symbol)
	no, _ := a.tokens.GetBySymbol("NO_" + symbol)
	return yes, no
}

func (a *app) positions() *services.PositionService {
	f := a.cfg.Futarchy
	var sets []services.ConditionalSet
	for _, symbol := range []string{f.Collateral, f.Company} {
		collateral, ok := a.tokens.GetBySymbol(symbol)
		yes, no := a.outcomes(symbol)
		if !ok || yes.Address == (common.Address{}) || no.Address == (common.Address{}) {
			continue
		}
		sets = append(sets, services.ConditionalSet{Collateral: collateral, Yes: yes, No: no})
	}
	router := dex.NewFutarchyRouter(common.HexToAddress(f.Router), common.HexToAddress(f.Proposal))
	return services.NewPositionService(a.orchestrator(), a.erc20, router, sets, a.logger)
}

func (a *app) signer() (*ethereum.KeySigner, error) {
	if a.cfg.Wallet.PrivateKey == "" {
		return nil, errors.New("no private key configured (set PRIVATE_KEY or wallet.private_key)")
	}
	return ethereum.NewKeySigner(a.cfg.Wallet.PrivateKey)
}

// token resolves a symbol or address, reading metadata of unknown addresses
func (a *app) token(ctx context.Context, ref string) (entities.Token, error) {
	var fetcher entities.MetadataFetcher
	if a.erc20 != nil {
		fetcher = a.erc20
	}
	return a.tokens.Lookup(ctx, ref, fetcher)
}

// parseAmount converts a human amount of token into smallest units
func parseAmount(token entities.Token, s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", entities.ErrInvalidAmount, s)
	}
	units := token.ToUnits(d)
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", entities.ErrInvalidAmount)
	}
	return units, nil
}

// owner is the address given on the command line, else the wallet's
func (a *app) owner(args []string) (common.Address, error) {
	if len(args) > 0 {
		if !common.IsHexAddress(args[0]) {
			return common.Address{}, fmt.Errorf("invalid address %q", args[0])
		}
		return common.HexToAddress(args[0]), nil
	}
	signer, err := a.signer()
	if err != nil {
		return common.Address{}, err
	}
	return signer.Address(), nil
}
