package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// Snapshot is the result of reading one venue
type Snapshot struct {
	Venue entities.Venue
	Pool  *entities.Pool
	// Price is Token0 in Token1 units, zero when the read failed.
	Price decimal.Decimal
	Err   error
}

// Markets names the tokens whose prices MarketService reports
type Markets struct {
	Collateral    entities.Token
	Company       entities.Token
	YesCollateral entities.Token
	NoCollateral  entities.Token
	YesCompany    entities.Token
	NoCompany     entities.Token
	// Probability is used when no YES-collateral venue prices the event.
	Probability decimal.Decimal
}

// MarketService reads every venue concurrently and derives market prices.
// Snapshots are never cached.
type MarketService struct {
	venues  []entities.Venue
	reader  PoolReader
	engine  *PriceImpactEngine
	markets Markets
	limit   int
	logger  *zap.Logger
}

func NewMarketService(venues []entities.Venue, reader PoolReader, engine *PriceImpactEngine, markets Markets, logger *zap.Logger) *MarketService {
	return &MarketService{
		venues:  venues,
		reader:  reader,
		engine:  engine,
		markets: markets,
		limit:   8,
		logger:  logger,
	}
}

// Markets returns the tokens the service prices
func (s *MarketService) Markets() Markets {
	return s.markets
}

// Snapshot reads all venues. A failed venue is reported in its Snapshot
// and does not fail the others.
func (s *MarketService) Snapshot(ctx context.Context) []Snapshot {
	results := make([]Snapshot, len(s.venues))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, venue := range s.venues {
		g.Go(func() error {
			results[i] = Snapshot{Venue: venue}
			pool, err := s.reader.ReadPool(ctx, venue)
			if err != nil {
				s.logger.Warn("failed to read venue", zap.String("venue", venue.Label()), zap.Error(err))
				results[i].Err = err
				return nil
			}
			if pool.UpdatedAt == 0 {
				pool.UpdatedAt = time.Now().Unix()
			}
			results[i].Pool = pool
			price, err := s.engine.SpotPrice(pool, entities.ZeroForOne)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Price = price
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Prices derives the YES, NO and spot prices of the company token in
// collateral units, the synthetic price and the conditional sum check.
func (s *MarketService) Prices(ctx context.Context, evaluator *ArbitrageEvaluator) (*entities.MarketPrices, []Snapshot, error) {
	snapshots := s.Snapshot(ctx)

	pools := make(map[common.Address]*entities.Pool, len(snapshots))
	for _, snap := range snapshots {
		if snap.Pool != nil {
			pools[snap.Venue.Address] = snap.Pool
		}
	}

	m := s.markets
	prices := &entities.MarketPrices{
		YesPrice:  s.pathPrice(pools, m.YesCompany, m.YesCollateral),
		NoPrice:   s.pathPrice(pools, m.NoCompany, m.NoCollateral),
		SpotPrice: s.pathPrice(pools, m.Company, m.Collateral),
	}
	if prices.YesPrice.IsZero() && prices.NoPrice.IsZero() && prices.SpotPrice.IsZero() {
		return nil, snapshots, fmt.Errorf("%w: no market could be priced", entities.ErrNoRouteFound)
	}

	// YES collateral trades at the market's probability of the event
	yesCollateral := s.pathPrice(pools, m.YesCollateral, m.Collateral)
	noCollateral := s.pathPrice(pools, m.NoCollateral, m.Collateral)

	prices.Probability = m.Probability
	if yesCollateral.IsPositive() {
		prices.Probability = decimal.Min(yesCollateral, decimal.NewFromInt(1))
	}
	prices.SyntheticPrice = SyntheticPrice(prices.YesPrice, prices.NoPrice, prices.Probability)
	if prices.SpotPrice.IsPositive() {
		prices.GapBps = prices.SyntheticPrice.Div(prices.SpotPrice).
			Sub(decimal.NewFromInt(1)).
			Mul(decimal.NewFromInt(bps)).
			Round(0).IntPart()
	}
	if yesCollateral.IsPositive() && noCollateral.IsPositive() && evaluator != nil {
		spread := evaluator.CheckConditionalSum(yesCollateral, noCollateral)
		prices.Spread = &spread
	}
	return prices, snapshots, nil
}

// pathPrice multiplies spot prices along the venue path from base to
// quote. It returns zero when either token is unset, no path exists or a
// pool on the path could not be read.
func (s *MarketService) pathPrice(pools map[common.Address]*entities.Pool, base, quote entities.Token) decimal.Decimal {
	if base.Address == (common.Address{}) || quote.Address == (common.Address{}) {
		return decimal.Zero
	}
	path, err := findPath(s.venues, base.Address, quote.Address)
	if err != nil {
		return decimal.Zero
	}
	price := decimal.NewFromInt(1)
	for _, hop := range path {
		pool, ok := pools[hop.Venue.Address]
		if !ok {
			return decimal.Zero
		}
		spot, err := s.engine.SpotPrice(pool, hop.Direction)
		if err != nil {
			return decimal.Zero
		}
		price = price.Mul(spot)
	}
	return price
}
