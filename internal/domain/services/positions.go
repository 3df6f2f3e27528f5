package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/dex"
)

// ConditionalSet is a collateral token and its YES/NO outcome tokens
type ConditionalSet struct {
	Collateral entities.Token
	Yes        entities.Token
	No         entities.Token
}

// PositionService splits collateral into YES+NO through the futarchy
// router and merges them back, using the orchestrator's state machine.
type PositionService struct {
	orchestrator *TransactionOrchestrator
	tokens       TokenReader
	router       *dex.FutarchyRouter
	sets         []ConditionalSet
	logger       *zap.Logger
}

func NewPositionService(orchestrator *TransactionOrchestrator, tokens TokenReader, router *dex.FutarchyRouter, sets []ConditionalSet, logger *zap.Logger) *PositionService {
	return &PositionService{
		orchestrator: orchestrator,
		tokens:       tokens,
		router:       router,
		sets:         sets,
		logger:       logger,
	}
}

// Set finds the conditional set whose collateral matches symbol
func (s *PositionService) Set(symbol string) (ConditionalSet, error) {
	for _, set := range s.sets {
		if strings.EqualFold(set.Collateral.Symbol, symbol) {
			return set, nil
		}
	}
	return ConditionalSet{}, fmt.Errorf("%w: no conditional tokens for %q", entities.ErrUnknownToken, symbol)
}

// Split converts amount of collateral into amount of YES and amount of NO
func (s *PositionService) Split(ctx context.Context, set ConditionalSet, amount *big.Int, signer entities.TxSigner) (*entities.ExecutionRecord, error) {
	if err := s.requireBalance(ctx, signer, amount, set.Collateral); err != nil {
		return nil, err
	}
	return s.orchestrator.Run(ctx, "", []Action{s.SplitAction(set, amount, false)}, signer)
}

// Merge burns amount of YES and NO to get amount of collateral back
func (s *PositionService) Merge(ctx context.Context, set ConditionalSet, amount *big.Int, signer entities.TxSigner) (*entities.ExecutionRecord, error) {
	if err := s.requireBalance(ctx, signer, amount, set.Yes, set.No); err != nil {
		return nil, err
	}
	return s.orchestrator.Run(ctx, "", []Action{s.MergeAction(set, amount, false)}, signer)
}

// SplitAction is the split of amount as a step of a larger run. A clamped
// split spends whatever collateral earlier steps left.
func (s *PositionService) SplitAction(set ConditionalSet, amount *big.Int, clamp bool) Action {
	collateral := set.Collateral.Address
	return Action{
		Label:          fmt.Sprintf("split %s", set.Collateral),
		TokenIn:        set.Collateral,
		AmountIn:       amount,
		ClampToBalance: clamp,
		Build: func(amountIn *big.Int) (dex.Call, error) {
			return s.router.SplitCall(collateral, amountIn)
		},
	}
}

// MergeAction merges amount of YES and NO. A clamped merge is capped by
// the smaller of the two balances.
func (s *PositionService) MergeAction(set ConditionalSet, amount *big.Int, clamp bool) Action {
	a := Action{
		Label:          fmt.Sprintf("merge %s/%s", set.Yes, set.No),
		TokenIn:        set.Yes,
		AmountIn:       amount,
		ClampToBalance: clamp,
		Build: func(amountIn *big.Int) (dex.Call, error) {
			return s.router.MergeCall(set.Collateral.Address, set.Yes.Address, set.No.Address, amountIn)
		},
	}
	if clamp {
		a.ClampAlso = []entities.Token{set.No}
	}
	return a
}

func (s *PositionService) requireBalance(ctx context.Context, signer entities.TxSigner, amount *big.Int, tokens ...entities.Token) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", entities.ErrInvalidAmount)
	}
	for _, t := range tokens {
		balance, err := s.tokens.BalanceOf(ctx, t.Address, signer.Address())
		if err != nil {
			return fmt.Errorf("failed to read %s balance: %w", t, err)
		}
		if balance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s balance %s is below %s",
				entities.ErrInvalidAmount, t, t.FromUnits(balance), t.FromUnits(amount))
		}
	}
	return nil
}
