package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

// Hop is one venue traversal of a path
type Hop struct {
	Venue     entities.Venue
	Direction entities.Direction
}

func (h Hop) TokenIn() entities.Token  { return h.Venue.TokenIn(h.Direction) }
func (h Hop) TokenOut() entities.Token { return h.Venue.TokenOut(h.Direction) }

// RouteBuilder assembles routes over the fixed venue registry
type RouteBuilder struct {
	venues      []entities.Venue
	reader      PoolReader
	engine      *PriceImpactEngine
	slippageBps uint64
	horizon     time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewRouteBuilder creates a builder. venues are walked in declaration order.
func NewRouteBuilder(venues []entities.Venue, reader PoolReader, engine *PriceImpactEngine, slippageBps uint64, horizon time.Duration, logger *zap.Logger, m *metrics.Metrics) *RouteBuilder {
	return &RouteBuilder{
		venues:      venues,
		reader:      reader,
		engine:      engine,
		slippageBps: slippageBps,
		horizon:     horizon,
		now:         time.Now,
		logger:      logger,
		metrics:     m,
	}
}

type routeOptions struct {
	slippageBps uint64
}

type RouteOption func(*routeOptions)

// WithSlippage overrides the default slippage tolerance for one route
func WithSlippage(bps uint64) RouteOption {
	return func(o *routeOptions) { o.slippageBps = bps }
}

func (s *RouteBuilder) Venues() []entities.Venue {
	return s.venues
}

// FindPath walks the venue adjacency breadth-first. It performs no I/O, so
// the same registry always yields the same path.
func (s *RouteBuilder) FindPath(from, to common.Address) ([]Hop, error) {
	return findPath(s.venues, from, to)
}

func findPath(venues []entities.Venue, from, to common.Address) ([]Hop, error) {
	if from == to {
		return nil, fmt.Errorf("%w: input and output token are the same", entities.ErrNoRouteFound)
	}

	type visit struct {
		prev common.Address
		hop  Hop
	}
	visited := map[common.Address]visit{from: {}}
	queue := []common.Address{from}

	for len(queue) > 0 {
		token := queue[0]
		queue = queue[1:]

		for _, v := range venues {
			d, ok := v.DirectionFor(token)
			if !ok {
				continue
			}
			next := v.TokenOut(d).Address
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = visit{prev: token, hop: Hop{Venue: v, Direction: d}}
			if next == to {
				var path []Hop
				for at := to; at != from; at = visited[at].prev {
					path = append([]Hop{visited[at].hop}, path...)
				}
				return path, nil
			}
			queue = append(queue, next)
		}
	}
	return nil, fmt.Errorf("%w: %s to %s", entities.ErrNoRouteFound, from.Hex(), to.Hex())
}

// BuildRoute finds a path from tokenIn to tokenOut and quotes it
func (s *RouteBuilder) BuildRoute(ctx context.Context, tokenIn, tokenOut entities.Token, amountIn *big.Int, opts ...RouteOption) (*entities.Route, error) {
	path, err := s.FindPath(tokenIn.Address, tokenOut.Address)
	if err != nil {
		s.metrics.ObserveQuoteFailure("no_route")
		return nil, err
	}
	return s.BuildPath(ctx, path, amountIn, opts...)
}

// BuildVia routes tokenIn to via and then via to tokenOut. With tokenOut
// equal to tokenIn this builds an arbitrage loop.
func (s *RouteBuilder) BuildVia(ctx context.Context, tokenIn, via, tokenOut entities.Token, amountIn *big.Int, opts ...RouteOption) (*entities.Route, error) {
	first, err := s.FindPath(tokenIn.Address, via.Address)
	if err != nil {
		return nil, err
	}
	second, err := s.FindPath(via.Address, tokenOut.Address)
	if err != nil {
		return nil, err
	}
	return s.BuildPath(ctx, append(first, second...), amountIn, opts...)
}

// ReferencePool reads the first venue that trades base directly for quote.
// It returns nil when no such venue is configured.
func (s *RouteBuilder) ReferencePool(ctx context.Context, base, quote entities.Token) (*entities.Pool, error) {
	for _, venue := range s.venues {
		d, ok := venue.DirectionFor(base.Address)
		if !ok || venue.TokenOut(d).Address != quote.Address {
			continue
		}
		pool, err := s.reader.ReadPool(ctx, venue)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference venue %s: %w", venue.Label(), err)
		}
		return pool, nil
	}
	return nil, nil
}

// BuildPath quotes an explicit path, such as a two-leg arbitrage loop.
// Pool snapshots are read concurrently, then quoted in order with each
// step's output feeding the next step.
func (s *RouteBuilder) BuildPath(ctx context.Context, path []Hop, amountIn *big.Int, opts ...RouteOption) (*entities.Route, error) {
	o := routeOptions{slippageBps: s.slippageBps}
	for _, opt := range opts {
		opt(&o)
	}
	if o.slippageBps > bps {
		return nil, fmt.Errorf("%w: slippage %d bps exceeds 100%%", entities.ErrInvalidAmount, o.slippageBps)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", entities.ErrInvalidRoute)
	}
	for i := 0; i+1 < len(path); i++ {
		if path[i].TokenOut().Address != path[i+1].TokenIn().Address {
			return nil, fmt.Errorf("%w: hop %d outputs %s but hop %d expects %s",
				entities.ErrInvalidRoute, i, path[i].TokenOut(), i+1, path[i+1].TokenIn())
		}
	}

	pools, err := s.readPools(ctx, path)
	if err != nil {
		s.metrics.ObserveQuoteFailure(reason(err))
		return nil, err
	}

	now := s.now()
	steps := make([]entities.SwapStep, len(path))
	amount := amountIn
	for i, hop := range path {
		steps[i] = entities.SwapStep{
			Pool:      pools[i],
			Direction: hop.Direction,
			AmountIn:  amount,
			Deadline:  now.Add(s.horizon),
		}
		quote, err := s.engine.Quote(pools[i], amount, hop.Direction)
		if err != nil {
			s.metrics.ObserveQuoteFailure(reason(err))
			return nil, entities.NewStepError(i, &steps[i], classify(err, entities.ErrInsufficientLiquidity), err)
		}
		steps[i].Quote = quote
		steps[i].MinAmountOut = applyBps(quote.AmountOut, o.slippageBps)
		amount = quote.AmountOut
	}

	route, err := entities.NewRoute(steps, o.slippageBps, now)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("route built",
		zap.String("route_id", route.ID),
		zap.String("token_in", route.TokenIn().String()),
		zap.String("token_out", route.TokenOut().String()),
		zap.Int("steps", len(route.Steps)),
		zap.String("amount_out", route.AmountOut.String()),
	)
	return route, nil
}

// readPools snapshots each distinct venue of path once
func (s *RouteBuilder) readPools(ctx context.Context, path []Hop) ([]*entities.Pool, error) {
	index := make(map[common.Address]int)
	var distinct []entities.Venue
	for _, hop := range path {
		if _, ok := index[hop.Venue.Address]; !ok {
			index[hop.Venue.Address] = len(distinct)
			distinct = append(distinct, hop.Venue)
		}
	}

	snapshots := make([]*entities.Pool, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	for i, venue := range distinct {
		g.Go(func() error {
			pool, err := s.reader.ReadPool(gctx, venue)
			if err != nil {
				return fmt.Errorf("read %s: %w", venue.Label(), err)
			}
			snapshots[i] = pool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i, hop := range path {
			if snapshots[index[hop.Venue.Address]] == nil {
				step := entities.SwapStep{Pool: &entities.Pool{Venue: hop.Venue}, Direction: hop.Direction}
				return nil, entities.NewStepError(i, &step, classify(err, entities.ErrRPCUnavailable), err)
			}
		}
		return nil, err
	}

	pools := make([]*entities.Pool, len(path))
	for i, hop := range path {
		pools[i] = snapshots[index[hop.Venue.Address]]
	}
	return pools, nil
}

var taxonomy = []error{
	entities.ErrNoRouteFound,
	entities.ErrInsufficientLiquidity,
	entities.ErrUnsupportedVenue,
	entities.ErrRPCUnavailable,
	entities.ErrGasEstimationFailed,
	entities.ErrApprovalFailed,
	entities.ErrTransactionReverted,
	entities.ErrTransactionStatusUnknown,
	entities.ErrSlippageExceeded,
	entities.ErrInvalidAmount,
	entities.ErrInvalidRoute,
	entities.ErrChainIDMismatch,
	entities.ErrSubmitRejected,
}

// classify returns the taxonomy kind err belongs to, or fallback
func classify(err, fallback error) error {
	for _, kind := range taxonomy {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return fallback
}

func reason(err error) string {
	switch classify(err, nil) {
	case entities.ErrInsufficientLiquidity:
		return "insufficient_liquidity"
	case entities.ErrUnsupportedVenue:
		return "unsupported_venue"
	case entities.ErrRPCUnavailable:
		return "rpc_unavailable"
	case entities.ErrInvalidAmount, entities.ErrInvalidRoute:
		return "invalid"
	}
	return "other"
}
