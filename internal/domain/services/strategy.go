package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// Signal is the decision of the probability strategy
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Synthetic trade directions
const (
	SellSynthetic = "sell_synthetic"
	BuySynthetic  = "buy_synthetic"
)

// ProbabilitySignal buys YES above buyAbove and sells it below sellBelow.
// Both bounds are exclusive.
func ProbabilitySignal(p, buyAbove, sellBelow decimal.Decimal) Signal {
	switch {
	case p.GreaterThan(buyAbove):
		return SignalBuy
	case p.LessThan(sellBelow):
		return SignalSell
	}
	return SignalHold
}

// ProbabilityParams configures one round of the probability strategy
type ProbabilityParams struct {
	BuyAbove  decimal.Decimal
	SellBelow decimal.Decimal
	// Amount is spent in YES collateral when buying and in YES company
	// tokens when selling.
	Amount  *big.Int
	Execute bool
}

// Trade is a strategy decision with the route that would carry it out
type Trade struct {
	Prices     *entities.MarketPrices     `json:"prices"`
	Signal     Signal                     `json:"signal,omitempty"`
	Action     string                     `json:"action,omitempty"`
	Route      *entities.Route            `json:"route,omitempty"`
	Simulation *entities.SimulationResult `json:"simulation,omitempty"`
	Record     *entities.ExecutionRecord  `json:"record,omitempty"`
}

// SyntheticLeg is one planned conversion of a synthetic trade
type SyntheticLeg struct {
	Label     string         `json:"label"`
	TokenIn   entities.Token `json:"tokenIn"`
	TokenOut  entities.Token `json:"tokenOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
	Exact     bool           `json:"exact"`
}

// Leftover is a token amount a synthetic trade cannot turn back into collateral
type Leftover struct {
	Token  entities.Token `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// SyntheticPlan is a split/merge trade between spot GNO and the
// synthetic GNO made of its YES and NO halves.
type SyntheticPlan struct {
	ID        string                         `json:"id"`
	Direction string                         `json:"direction"`
	Prices    *entities.MarketPrices         `json:"prices"`
	Spend     *big.Int                       `json:"spend"`
	Returned  *big.Int                       `json:"returned"`
	Legs      []SyntheticLeg                 `json:"legs"`
	Leftovers []Leftover                     `json:"leftovers,omitempty"`
	Verdict   *entities.ArbitrageOpportunity `json:"verdict"`

	actions []Action
}

// SyntheticResult reports an executed synthetic trade against the
// collateral balance actually gained or lost.
type SyntheticResult struct {
	Plan             *SyntheticPlan            `json:"plan"`
	Record           *entities.ExecutionRecord `json:"record"`
	CollateralBefore *big.Int                  `json:"collateralBefore"`
	CollateralAfter  *big.Int                  `json:"collateralAfter"`
	RealizedProfit   *big.Int                  `json:"realizedProfit"`
}

// StrategyService runs the trading strategies on top of the market,
// routing, simulation and execution services.
type StrategyService struct {
	markets      *MarketService
	routes       *RouteBuilder
	simulator    *SimulationExecutor
	evaluator    *ArbitrageEvaluator
	orchestrator *TransactionOrchestrator
	positions    *PositionService
	tokens       TokenReader
	logger       *zap.Logger
}

func NewStrategyService(
	markets *MarketService,
	routes *RouteBuilder,
	simulator *SimulationExecutor,
	evaluator *ArbitrageEvaluator,
	orchestrator *TransactionOrchestrator,
	positions *PositionService,
	tokens TokenReader,
	logger *zap.Logger,
) *StrategyService {
	return &StrategyService{
		markets:      markets,
		routes:       routes,
		simulator:    simulator,
		evaluator:    evaluator,
		orchestrator: orchestrator,
		positions:    positions,
		tokens:       tokens,
		logger:       logger,
	}
}

// TradeSpread sells the rich side of the conditional collateral for the
// cheap side when YES+NO deviates from one collateral unit by more than
// minDiffBps. amount is in units of the token sold.
func (s *StrategyService) TradeSpread(ctx context.Context, amount *big.Int, minDiffBps int64, execute bool, signer entities.TxSigner) (*Trade, error) {
	prices, _, err := s.markets.Prices(ctx, s.evaluator)
	if err != nil {
		return nil, err
	}
	trade := &Trade{Prices: prices}
	if prices.Spread == nil {
		return nil, fmt.Errorf("%w: YES and NO collateral are not both priced", entities.ErrNoRouteFound)
	}
	if prices.Spread.DeviationBps <= minDiffBps || prices.Spread.Action == "" {
		s.logger.Info("no spread opportunity",
			zap.Int64("deviation_bps", prices.Spread.DeviationBps),
			zap.Int64("threshold_bps", minDiffBps),
		)
		return trade, nil
	}
	trade.Action = prices.Spread.Action

	m := s.markets.Markets()
	sell, buy := m.YesCollateral, m.NoCollateral
	if trade.Action == "sell_no_buy_yes" {
		sell, buy = buy, sell
	}
	trade.Route, err = s.routes.BuildVia(ctx, sell, m.Collateral, buy, amount)
	if err != nil {
		return nil, err
	}
	return trade, s.simulateAndRun(ctx, trade, execute, signer)
}

// TradeProbability runs one round of the probability threshold strategy
func (s *StrategyService) TradeProbability(ctx context.Context, params ProbabilityParams, signer entities.TxSigner) (*Trade, error) {
	prices, _, err := s.markets.Prices(ctx, s.evaluator)
	if err != nil {
		return nil, err
	}
	trade := &Trade{Prices: prices, Signal: ProbabilitySignal(prices.Probability, params.BuyAbove, params.SellBelow)}

	m := s.markets.Markets()
	switch trade.Signal {
	case SignalBuy:
		trade.Route, err = s.routes.BuildRoute(ctx, m.YesCollateral, m.YesCompany, params.Amount)
	case SignalSell:
		trade.Route, err = s.routes.BuildRoute(ctx, m.YesCompany, m.YesCollateral, params.Amount)
	default:
		s.logger.Info("probability between thresholds",
			zap.String("probability", prices.Probability.String()),
			zap.String("buy_above", params.BuyAbove.String()),
			zap.String("sell_below", params.SellBelow.String()),
		)
		return trade, nil
	}
	if err != nil {
		return nil, err
	}
	return trade, s.simulateAndRun(ctx, trade, params.Execute, signer)
}

// Watch runs the probability strategy every interval until iterations
// rounds have run or ctx is done. A failed round is reported and does not
// stop the loop. iterations <= 0 runs until ctx is done.
func (s *StrategyService) Watch(ctx context.Context, iterations int, interval time.Duration, params ProbabilityParams, signer entities.TxSigner, report func(round int, trade *Trade, err error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 1; ; round++ {
		trade, err := s.TradeProbability(ctx, params, signer)
		report(round, trade, err)
		if iterations > 0 && round >= iterations {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *StrategyService) simulateAndRun(ctx context.Context, trade *Trade, execute bool, signer entities.TxSigner) error {
	sim, err := s.simulator.Simulate(ctx, trade.Route)
	if err != nil {
		return err
	}
	trade.Simulation = sim
	if !execute {
		return nil
	}
	if signer == nil {
		return errors.New("execution requires a signer")
	}
	trade.Record, err = s.orchestrator.Execute(ctx, trade.Route, signer)
	return err
}

// PlanSynthetic prices a synthetic trade of capital collateral against the
// current markets and returns its legs and verdict. Nothing is sent.
//
// Selling synthetic buys spot GNO, splits it and sells both halves for
// conditional collateral, which is merged back. Buying synthetic splits
// collateral in the ratio of the YES and NO prices, buys both GNO halves,
// merges them and sells the GNO.
func (s *StrategyService) PlanSynthetic(ctx context.Context, direction string, capital *big.Int, signer entities.TxSigner) (*SyntheticPlan, error) {
	if capital == nil || capital.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", entities.ErrInvalidAmount)
	}
	prices, _, err := s.markets.Prices(ctx, s.evaluator)
	if err != nil {
		return nil, err
	}

	p := &SyntheticPlan{
		ID:        uuid.NewString(),
		Direction: direction,
		Prices:    prices,
		Returned:  new(big.Int),
	}
	b := &synthetic{s: s, plan: p, account: signer.Address(), m: s.markets.Markets(), exact: true}
	switch direction {
	case SellSynthetic:
		err = b.sell(ctx, capital)
	case BuySynthetic:
		err = b.buy(ctx, capital, prices)
	default:
		return nil, fmt.Errorf("unknown synthetic direction %q", direction)
	}
	if err != nil {
		return nil, err
	}

	m := b.m
	balance, err := s.tokens.BalanceOf(ctx, m.Collateral.Address, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s balance: %w", m.Collateral, err)
	}
	if balance.Cmp(p.Spend) < 0 {
		return nil, fmt.Errorf("%w: %s balance %s is below %s",
			entities.ErrInvalidAmount, m.Collateral, m.Collateral.FromUnits(balance), m.Collateral.FromUnits(p.Spend))
	}

	if p.Verdict, err = s.evaluator.EvaluateCycle(p.ID, p.Spend, p.Returned, b.exact); err != nil {
		return nil, err
	}
	s.logger.Info("synthetic trade planned",
		zap.String("id", p.ID),
		zap.String("direction", direction),
		zap.String("spend", p.Spend.String()),
		zap.String("returned", p.Returned.String()),
		zap.Int("legs", len(p.Legs)),
		zap.Bool("profitable", p.Verdict.Profitable),
	)
	return p, nil
}

// ExecuteSynthetic sends the plan's actions as one locked run and measures
// the collateral balance around it.
func (s *StrategyService) ExecuteSynthetic(ctx context.Context, plan *SyntheticPlan, signer entities.TxSigner) (*SyntheticResult, error) {
	if plan == nil || len(plan.actions) == 0 {
		return nil, fmt.Errorf("%w: empty synthetic plan", entities.ErrInvalidRoute)
	}
	collateral := s.markets.Markets().Collateral
	before, err := s.tokens.BalanceOf(ctx, collateral.Address, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s balance: %w", collateral, err)
	}

	result := &SyntheticResult{Plan: plan, CollateralBefore: before}
	result.Record, err = s.orchestrator.Run(ctx, plan.ID, plan.actions, signer)

	after, balanceErr := s.tokens.BalanceOf(context.WithoutCancel(ctx), collateral.Address, signer.Address())
	if balanceErr != nil {
		s.logger.Warn("failed to read collateral after synthetic trade", zap.Error(balanceErr))
		return result, errors.Join(err, balanceErr)
	}
	result.CollateralAfter = after
	result.RealizedProfit = new(big.Int).Sub(after, before)
	return result, err
}

// synthetic accumulates the legs and actions of a plan
type synthetic struct {
	s       *StrategyService
	plan    *SyntheticPlan
	account common.Address
	m       Markets
	exact   bool
}

// swap quotes and simulates tokenIn to tokenOut and appends its actions.
// The first action of a plan spends its planned amount; later ones spend
// what earlier legs left.
func (b *synthetic) swap(ctx context.Context, label string, tokenIn, tokenOut entities.Token, amountIn *big.Int) (*big.Int, error) {
	route, err := b.s.routes.BuildRoute(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	sim, err := b.s.simulator.Simulate(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	b.exact = b.exact && sim.Exact()
	b.plan.Legs = append(b.plan.Legs, SyntheticLeg{
		Label:     label,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		AmountOut: sim.AmountOut,
		Exact:     sim.Exact(),
	})
	b.plan.actions = append(b.plan.actions, b.s.orchestrator.SwapActions(route, b.account, len(b.plan.actions) > 0)...)
	return sim.AmountOut, nil
}

func (b *synthetic) split(set ConditionalSet, amount *big.Int) {
	b.plan.Legs = append(b.plan.Legs, SyntheticLeg{
		Label: "split", TokenIn: set.Collateral, TokenOut: set.Yes, AmountIn: amount, AmountOut: amount, Exact: true,
	})
	b.plan.actions = append(b.plan.actions, b.s.positions.SplitAction(set, amount, len(b.plan.actions) > 0))
}

func (b *synthetic) merge(set ConditionalSet, amount *big.Int) {
	b.plan.Legs = append(b.plan.Legs, SyntheticLeg{
		Label: "merge", TokenIn: set.Yes, TokenOut: set.Collateral, AmountIn: amount, AmountOut: amount, Exact: true,
	})
	b.plan.actions = append(b.plan.actions, b.s.positions.MergeAction(set, amount, true))
}

// settle turns an unmatched conditional amount back into collateral when a
// venue path exists, and records it as a leftover otherwise.
func (b *synthetic) settle(ctx context.Context, label string, token entities.Token, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return nil
	}
	if _, err := b.s.routes.FindPath(token.Address, b.m.Collateral.Address); err != nil {
		if errors.Is(err, entities.ErrNoRouteFound) {
			b.plan.Leftovers = append(b.plan.Leftovers, Leftover{Token: token, Amount: amount})
			return nil
		}
		return err
	}
	out, err := b.swap(ctx, label, token, b.m.Collateral, amount)
	if err != nil {
		return err
	}
	b.plan.Returned.Add(b.plan.Returned, out)
	return nil
}

func (b *synthetic) companySet() ConditionalSet {
	return ConditionalSet{Collateral: b.m.Company, Yes: b.m.YesCompany, No: b.m.NoCompany}
}

func (b *synthetic) collateralSet() ConditionalSet {
	return ConditionalSet{Collateral: b.m.Collateral, Yes: b.m.YesCollateral, No: b.m.NoCollateral}
}

func (b *synthetic) sell(ctx context.Context, capital *big.Int) error {
	m := b.m
	b.plan.Spend = new(big.Int).Set(capital)

	company, err := b.swap(ctx, "buy spot", m.Collateral, m.Company, capital)
	if err != nil {
		return err
	}
	b.split(b.companySet(), company)

	yes, err := b.swap(ctx, "sell YES", m.YesCompany, m.YesCollateral, company)
	if err != nil {
		return err
	}
	no, err := b.swap(ctx, "sell NO", m.NoCompany, m.NoCollateral, company)
	if err != nil {
		return err
	}

	merged := minBig(yes, no)
	switch yes.Cmp(no) {
	case 1:
		err = b.settle(ctx, "sell excess YES", m.YesCollateral, new(big.Int).Sub(yes, no))
	case -1:
		err = b.settle(ctx, "sell excess NO", m.NoCollateral, new(big.Int).Sub(no, yes))
	}
	if err != nil {
		return err
	}
	if merged.Sign() > 0 {
		b.merge(b.collateralSet(), merged)
		b.plan.Returned.Add(b.plan.Returned, merged)
	}
	return nil
}

// buy splits capital so that the YES and NO collateral buy equal GNO
// halves: with r the YES/NO price ratio and p the probability, y is
// split and x = y*r of YES collateral is spent, topping YES up with
// (x-y)*p of collateral when x > y.
func (b *synthetic) buy(ctx context.Context, capital *big.Int, prices *entities.MarketPrices) error {
	m := b.m
	if !prices.YesPrice.IsPositive() || !prices.NoPrice.IsPositive() {
		return fmt.Errorf("%w: YES and NO company prices are needed", entities.ErrNoRouteFound)
	}
	one := decimal.NewFromInt(1)
	r := prices.YesPrice.Div(prices.NoPrice)
	p := prices.Probability
	c := decimal.NewFromBigInt(capital, 0)

	y := c.Div(r.Mul(p).Add(one.Sub(p))).Floor()
	x := y.Mul(r).Floor()
	splitAmount := y.BigInt()
	b.plan.Spend = new(big.Int).Set(splitAmount)

	yesCollateral := new(big.Int).Set(splitAmount)
	if x.GreaterThan(y) {
		topUp := x.Sub(y).Mul(p).Floor().BigInt()
		if topUp.Sign() > 0 {
			out, err := b.swap(ctx, "buy YES collateral", m.Collateral, m.YesCollateral, topUp)
			if err != nil {
				return err
			}
			b.plan.Spend.Add(b.plan.Spend, topUp)
			yesCollateral.Add(yesCollateral, out)
		}
	}
	b.split(b.collateralSet(), splitAmount)
	if x.LessThan(y) {
		excess := y.Sub(x).BigInt()
		if err := b.settle(ctx, "sell excess YES collateral", m.YesCollateral, excess); err != nil {
			return err
		}
		yesCollateral.Sub(yesCollateral, excess)
	}

	yes, err := b.swap(ctx, "buy YES", m.YesCollateral, m.YesCompany, yesCollateral)
	if err != nil {
		return err
	}
	no, err := b.swap(ctx, "buy NO", m.NoCollateral, m.NoCompany, splitAmount)
	if err != nil {
		return err
	}

	merged := minBig(yes, no)
	if merged.Sign() <= 0 {
		return fmt.Errorf("%w: nothing to merge", entities.ErrInsufficientLiquidity)
	}
	b.merge(b.companySet(), merged)
	switch yes.Cmp(no) {
	case 1:
		b.plan.Leftovers = append(b.plan.Leftovers, Leftover{Token: m.YesCompany, Amount: new(big.Int).Sub(yes, no)})
	case -1:
		b.plan.Leftovers = append(b.plan.Leftovers, Leftover{Token: m.NoCompany, Amount: new(big.Int).Sub(no, yes)})
	}

	out, err := b.swap(ctx, "sell spot", m.Company, m.Collateral, merged)
	if err != nil {
		return err
	}
	b.plan.Returned.Add(b.plan.Returned, out)
	return nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
