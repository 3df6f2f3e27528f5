package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

// SimulationExecutor predicts a route's outcome with read-only venue
// previews. It never submits a transaction.
type SimulationExecutor struct {
	reader    PoolReader
	previewer Previewer
	blocks    BlockReader
	engine    *PriceImpactEngine
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewSimulationExecutor(reader PoolReader, previewer Previewer, blocks BlockReader, engine *PriceImpactEngine, logger *zap.Logger, m *metrics.Metrics) *SimulationExecutor {
	return &SimulationExecutor{
		reader:    reader,
		previewer: previewer,
		blocks:    blocks,
		engine:    engine,
		logger:    logger,
		metrics:   m,
	}
}

// Simulate replays route step by step. The predicted output of each step is
// the input of the next, so rounding carries forward as it would live. Steps
// whose venue has no preview use the local curve on a snapshot read during
// this pass and are marked inexact.
func (s *SimulationExecutor) Simulate(ctx context.Context, route *entities.Route) (*entities.SimulationResult, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}

	block, err := s.blocks.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read block number: %w", err)
	}

	result := &entities.SimulationResult{
		RouteID:     route.ID,
		BlockNumber: block,
		Steps:       make([]entities.StepPrediction, 0, len(route.Steps)),
		AmountIn:    new(big.Int).Set(route.AmountIn),
	}

	fresh := make(map[common.Address]*entities.Pool)
	amount := new(big.Int).Set(route.AmountIn)
	for i := range route.Steps {
		step := &route.Steps[i]

		out, exact, err := s.predict(ctx, step, amount, fresh)
		if err != nil {
			return nil, entities.NewStepError(i, step, classify(err, entities.ErrRPCUnavailable), err)
		}
		if out.Sign() <= 0 {
			return nil, entities.NewStepError(i, step, entities.ErrInsufficientLiquidity, nil)
		}

		s.metrics.ObserveSimulatedStep(exact)
		prediction := entities.StepPrediction{
			Venue:     step.Venue().Label(),
			TokenIn:   step.TokenIn(),
			TokenOut:  step.TokenOut(),
			Direction: step.Direction,
			AmountIn:  amount,
			AmountOut: out,
			Exact:     exact,
		}
		if step.MinAmountOut != nil && out.Cmp(step.MinAmountOut) < 0 {
			prediction.BelowMinimum = true
		}
		result.Steps = append(result.Steps, prediction)

		s.logger.Debug("step simulated",
			zap.String("route_id", route.ID),
			zap.Int("step", i),
			zap.String("venue", prediction.Venue),
			zap.String("amount_in", amount.String()),
			zap.String("amount_out", out.String()),
			zap.Bool("exact", exact),
		)
		amount = out
	}

	result.AmountOut = new(big.Int).Set(amount)
	return result, nil
}

// predict returns the venue's preview, or the local estimate when the venue
// cannot preview this operation. The estimate never uses the snapshot the
// route was built from: the venue is read again, once per pass.
func (s *SimulationExecutor) predict(ctx context.Context, step *entities.SwapStep, amountIn *big.Int, fresh map[common.Address]*entities.Pool) (*big.Int, bool, error) {
	out, err := s.previewer.Preview(ctx, step.Pool, step.Direction, amountIn)
	if err == nil {
		return out, true, nil
	}
	if !errors.Is(err, entities.ErrPreviewUnsupported) {
		return nil, false, err
	}

	venue := step.Venue()
	pool, ok := fresh[venue.Address]
	if !ok {
		pool, err = s.reader.ReadPool(ctx, venue)
		if err != nil {
			return nil, false, err
		}
		fresh[venue.Address] = pool
	}

	quote, err := s.engine.Quote(pool, amountIn, step.Direction)
	if err != nil {
		return nil, false, err
	}
	return quote.AmountOut, false, nil
}
