package services

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

// ArbitrageEvaluator decides go/no-go on simulated routes. It never
// touches the chain.
type ArbitrageEvaluator struct {
	minProfitBps uint64
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

func NewArbitrageEvaluator(minProfitBps uint64, logger *zap.Logger, m *metrics.Metrics) *ArbitrageEvaluator {
	return &ArbitrageEvaluator{minProfitBps: minProfitBps, logger: logger, metrics: m}
}

// Evaluate values the simulated output of route in input-token units using
// the spot price of referencePool. The route is profitable only when that
// value strictly exceeds the capital plus the minimum profit margin.
// referencePool may be nil when the route ends in its input token.
func (e *ArbitrageEvaluator) Evaluate(route *entities.Route, sim *entities.SimulationResult, referencePool *entities.Pool) (*entities.ArbitrageOpportunity, error) {
	if sim == nil || sim.AmountOut == nil {
		return nil, fmt.Errorf("%w: missing simulation", entities.ErrInvalidRoute)
	}
	if sim.RouteID != route.ID {
		return nil, fmt.Errorf("%w: simulation %s belongs to another route", entities.ErrInvalidRoute, sim.RouteID)
	}

	tokenIn, tokenOut := route.TokenIn(), route.TokenOut()
	rate := big.NewRat(1, 1)
	reference := decimal.NewFromInt(1)

	if tokenIn.Address != tokenOut.Address {
		if referencePool == nil {
			return nil, fmt.Errorf("%w: a reference pool is needed to value %s in %s", entities.ErrInvalidRoute, tokenOut, tokenIn)
		}
		d, ok := referencePool.Venue.DirectionFor(tokenOut.Address)
		if !ok || referencePool.TokenOut(d).Address != tokenIn.Address {
			return nil, fmt.Errorf("%w: reference pool %s does not price %s in %s",
				entities.ErrInvalidRoute, referencePool.Venue.Label(), tokenOut, tokenIn)
		}
		var err error
		if rate, err = rawSpot(referencePool, d); err != nil {
			return nil, err
		}
		shift := int32(tokenOut.Decimals) - int32(tokenIn.Decimals)
		reference = ratToDecimal(rate).Shift(shift)
	}

	capital := new(big.Int).Set(route.AmountIn)
	value := new(big.Rat).Mul(new(big.Rat).SetInt(sim.AmountOut), rate)
	outputValue := entities.FloorRat(value)

	return e.verdict(route.ID, reference, capital, outputValue, sim.Exact()), nil
}

// EvaluateCycle judges a multi-leg plan that starts and ends in the same
// token, such as a split/merge synthetic trade.
func (e *ArbitrageEvaluator) EvaluateCycle(id string, capital, returned *big.Int, exact bool) (*entities.ArbitrageOpportunity, error) {
	if capital == nil || capital.Sign() <= 0 {
		return nil, fmt.Errorf("%w: capital must be positive", entities.ErrInvalidAmount)
	}
	if returned == nil {
		return nil, fmt.Errorf("%w: missing returned amount", entities.ErrInvalidRoute)
	}
	return e.verdict(id, decimal.NewFromInt(1), new(big.Int).Set(capital), new(big.Int).Set(returned), exact), nil
}

func (e *ArbitrageEvaluator) verdict(id string, reference decimal.Decimal, capital, outputValue *big.Int, exact bool) *entities.ArbitrageOpportunity {
	// outputValue * 10000 > capital * (10000 + minProfitBps)
	lhs := new(big.Int).Mul(outputValue, big.NewInt(bps))
	rhs := new(big.Int).Mul(capital, new(big.Int).SetUint64(bps+e.minProfitBps))

	opp := &entities.ArbitrageOpportunity{
		RouteID:        id,
		ReferencePrice: reference,
		Capital:        capital,
		OutputValue:    outputValue,
		ExpectedProfit: new(big.Int).Sub(outputValue, capital),
		MinProfitBps:   e.minProfitBps,
		Exact:          exact,
		Profitable:     lhs.Cmp(rhs) > 0,
	}

	e.metrics.ObserveArbitrage(opp.Profitable)
	e.logger.Debug("arbitrage evaluated",
		zap.String("route_id", id),
		zap.String("capital", capital.String()),
		zap.String("output_value", outputValue.String()),
		zap.Bool("profitable", opp.Profitable),
		zap.Bool("exact", opp.Exact),
	)
	return opp
}

// CheckConditionalSum compares YES and NO prices, both in collateral
// units, against one collateral unit. Since one YES plus one NO redeem for
// one collateral, a sum off by more than the profit margin is an opportunity.
func (e *ArbitrageEvaluator) CheckConditionalSum(yes, no decimal.Decimal) entities.ConditionalSpread {
	one := decimal.NewFromInt(1)
	sum := yes.Add(no)
	deviation := sum.Sub(one).Abs().Mul(decimal.NewFromInt(bps)).Floor().IntPart()

	spread := entities.ConditionalSpread{
		YesPrice:     yes,
		NoPrice:      no,
		Sum:          sum,
		DeviationBps: deviation,
		Profitable:   deviation > int64(e.minProfitBps),
	}
	// YES above 1-NO: YES is rich
	switch yes.Cmp(one.Sub(no)) {
	case 1:
		spread.Action = "sell_yes_buy_no"
	case -1:
		spread.Action = "sell_no_buy_yes"
	}
	return spread
}

// SyntheticPrice is yes*p + no*(1-p)
func SyntheticPrice(yes, no, probability decimal.Decimal) decimal.Decimal {
	return yes.Mul(probability).Add(no.Mul(decimal.NewFromInt(1).Sub(probability)))
}
