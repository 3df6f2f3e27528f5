package services

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

const bps = 10000

// PriceImpactEngine prices trades against pool snapshots. It performs no I/O.
type PriceImpactEngine struct {
	minReserve *big.Int
	metrics    *metrics.Metrics
}

// NewPriceImpactEngine creates an engine that refuses trades leaving less
// than minReserve of the output token in the pool.
func NewPriceImpactEngine(minReserve *big.Int, m *metrics.Metrics) *PriceImpactEngine {
	if minReserve == nil {
		minReserve = new(big.Int)
	}
	return &PriceImpactEngine{minReserve: minReserve, metrics: m}
}

// Quote computes output, effective price and price impact of selling
// amountIn in direction d. The output is rounded toward zero.
func (e *PriceImpactEngine) Quote(pool *entities.Pool, amountIn *big.Int, d entities.Direction) (*entities.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount in must be positive", entities.ErrInvalidAmount)
	}
	curve, err := pool.Curve(d)
	if err != nil {
		return nil, err
	}

	exact := curve.AmountOut(amountIn)
	amountOut := entities.FloorRat(exact)
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s yields nothing for %s", entities.ErrInsufficientLiquidity, pool.Venue.Label(), amountIn)
	}
	if reserveOut := curve.ReserveOut(); reserveOut != nil {
		remaining := new(big.Int).Sub(reserveOut, amountOut)
		if remaining.Cmp(e.minReserve) < 0 {
			return nil, fmt.Errorf("%w: %s would keep %s of %s, minimum is %s",
				entities.ErrInsufficientLiquidity, pool.Venue.Label(), remaining, pool.TokenOut(d), e.minReserve)
		}
	}

	e.metrics.ObserveQuote(string(curve.Kind()))

	tokenIn, tokenOut := pool.TokenIn(d), pool.TokenOut(d)
	return &entities.Quote{
		Pool:           pool,
		Direction:      d,
		AmountIn:       new(big.Int).Set(amountIn),
		AmountOut:      amountOut,
		PriceImpactBps: impactBps(curve, exact, amountIn),
		EffectivePrice: tokenIn.FromUnits(amountIn).Div(tokenOut.FromUnits(amountOut)),
		Authoritative:  curve.Authoritative(),
	}, nil
}

// impactBps = (1 - (out/in) / spot) * 10000, floored. Vault conversions
// have no impact by convention.
func impactBps(curve entities.Curve, exactOut *big.Rat, amountIn *big.Int) uint64 {
	if curve.Kind() == entities.WrapVault {
		return 0
	}
	spot := curve.SpotPrice()
	if spot.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Rat).Quo(exactOut, new(big.Rat).SetInt(amountIn))
	ratio.Quo(ratio, spot)

	impact := new(big.Rat).Sub(big.NewRat(1, 1), ratio)
	if impact.Sign() <= 0 {
		return 0
	}
	impact.Mul(impact, big.NewRat(bps, 1))
	return entities.FloorRat(impact).Uint64()
}

// SpotPrice returns the marginal price of pool.TokenIn(d) in
// pool.TokenOut(d) units, fee excluded and decimals applied.
func (e *PriceImpactEngine) SpotPrice(pool *entities.Pool, d entities.Direction) (decimal.Decimal, error) {
	curve, err := pool.Curve(d)
	if err != nil {
		return decimal.Zero, err
	}
	raw := ratToDecimal(curve.SpotPrice())
	shift := int32(pool.TokenIn(d).Decimals) - int32(pool.TokenOut(d).Decimals)
	return raw.Shift(shift), nil
}

// rawSpot is SpotPrice in smallest units
func rawSpot(pool *entities.Pool, d entities.Direction) (*big.Rat, error) {
	curve, err := pool.Curve(d)
	if err != nil {
		return nil, err
	}
	return curve.SpotPrice(), nil
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	d, err := decimal.NewFromString(r.FloatString(18))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// applyBps returns amount * (10000 - tolerance) / 10000, rounded down
func applyBps(amount *big.Int, tolerance uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps-tolerance))
	return out.Quo(out, big.NewInt(bps))
}
