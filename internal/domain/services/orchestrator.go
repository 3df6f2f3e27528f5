package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/dex"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/metrics"
)

// Action is one state-changing transaction of an execution
type Action struct {
	Label string
	// Step is nil for actions that are not route swaps.
	Step *entities.SwapStep
	// TokenIn is the token the action spends.
	TokenIn  entities.Token
	AmountIn *big.Int
	// ClampToBalance spends min(AmountIn, balance), used for steps whose
	// input is the realized output of an earlier step.
	ClampToBalance bool
	// ClampAlso lists further tokens the action burns one-for-one with
	// TokenIn, such as the NO side of a merge. Their balances cap the spend too.
	ClampAlso    []entities.Token
	MinAmountOut *big.Int
	// Build encodes the call for the amount actually spent.
	Build func(amountIn *big.Int) (dex.Call, error)
	// Preview re-checks the output right before submission; nil skips it.
	Preview func(ctx context.Context, amountIn *big.Int) (*big.Int, error)
}

// OrchestratorConfig holds the execution parameters
type OrchestratorConfig struct {
	ChainID           *big.Int
	GasBufferPct      uint64
	ConfirmTimeout    time.Duration
	UnlimitedApproval bool
}

// TransactionOrchestrator replays routes as signed transactions. Each step
// walks NotStarted -> ApprovalPending -> ApprovalConfirmed -> TxBuilt ->
// TxSubmitted -> Confirmed|Reverted, and the first failure halts the route.
type TransactionOrchestrator struct {
	chain   ChainWriter
	tokens  TokenReader
	venues  interface {
		Previewer
		SwapBuilder
	}
	locker  AccountLocker
	records RecordSaver
	cfg     OrchestratorConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewTransactionOrchestrator(
	chain ChainWriter,
	tokens TokenReader,
	venues interface {
		Previewer
		SwapBuilder
	},
	locker AccountLocker,
	records RecordSaver,
	cfg OrchestratorConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *TransactionOrchestrator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Minute
	}
	return &TransactionOrchestrator{
		chain:   chain,
		tokens:  tokens,
		venues:  venues,
		locker:  locker,
		records: records,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Execute submits route's steps in order on behalf of signer. The returned
// record is non-nil once the account lock is held, even on failure, and
// reflects exactly which steps committed.
func (o *TransactionOrchestrator) Execute(ctx context.Context, route *entities.Route, signer entities.TxSigner) (*entities.ExecutionRecord, error) {
	if err := route.Validate(); err != nil {
		return nil, err
	}
	return o.Run(ctx, route.ID, o.SwapActions(route, signer.Address(), false), signer)
}

// SwapActions turns route's steps into actions paying out to account. Every
// step after the first spends the realized balance; with chained set the
// first does too, for routes that follow earlier actions in one Run.
func (o *TransactionOrchestrator) SwapActions(route *entities.Route, account common.Address, chained bool) []Action {
	actions := make([]Action, len(route.Steps))
	for i := range route.Steps {
		step := &route.Steps[i]
		actions[i] = Action{
			Label:          fmt.Sprintf("%s %s->%s", step.Venue().Label(), step.TokenIn(), step.TokenOut()),
			Step:           step,
			TokenIn:        step.TokenIn(),
			AmountIn:       step.AmountIn,
			ClampToBalance: chained || i > 0,
			MinAmountOut:   step.MinAmountOut,
			Build: func(amountIn *big.Int) (dex.Call, error) {
				return o.venues.BuildSwap(step, amountIn, step.MinAmountOut, account)
			},
			Preview: func(ctx context.Context, amountIn *big.Int) (*big.Int, error) {
				return o.venues.Preview(ctx, step.Pool, step.Direction, amountIn)
			},
		}
	}
	return actions
}

// Run executes arbitrary actions under the same state machine
func (o *TransactionOrchestrator) Run(ctx context.Context, routeID string, actions []Action, signer entities.TxSigner) (*entities.ExecutionRecord, error) {
	account := signer.Address()

	release, err := o.locker.Acquire(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %s: %w", account.Hex(), err)
	}
	defer release()

	record := &entities.ExecutionRecord{
		ID:        uuid.NewString(),
		RouteID:   routeID,
		Account:   account,
		Steps:     make([]entities.StepRecord, len(actions)),
		StartedAt: o.now(),
	}
	for i, a := range actions {
		record.Steps[i] = entities.StepRecord{Label: a.Label, State: entities.StepNotStarted}
	}

	run := &execution{o: o, signer: signer, account: account, record: record, actions: actions}
	err = run.execute(ctx)

	record.FinishedAt = o.now()
	record.Status = summarize(record, err)
	if o.records != nil {
		if saveErr := o.records.SaveRecord(context.WithoutCancel(ctx), record); saveErr != nil {
			o.logger.Warn("failed to save execution record", zap.String("id", record.ID), zap.Error(saveErr))
		}
	}

	o.logger.Info("execution finished",
		zap.String("id", record.ID),
		zap.String("route_id", routeID),
		zap.String("status", string(record.Status)),
		zap.Int("confirmed", record.ConfirmedSteps()),
		zap.Int("steps", len(record.Steps)),
	)
	return record, err
}

func summarize(record *entities.ExecutionRecord, err error) entities.ExecutionStatus {
	switch {
	case err == nil:
		return entities.ExecutionCompleted
	case errors.Is(err, entities.ErrTransactionStatusUnknown):
		return entities.ExecutionUnknown
	case record.ConfirmedSteps() > 0:
		return entities.ExecutionPartial
	}
	return entities.ExecutionFailed
}

type approvalKey struct {
	token   common.Address
	spender common.Address
}

// execution is the mutable state of one Run
type execution struct {
	o        *TransactionOrchestrator
	signer   entities.TxSigner
	account  common.Address
	record   *entities.ExecutionRecord
	actions  []Action
	chainID  *big.Int
	nonce    uint64
	gasPrice *big.Int
}

func (x *execution) execute(ctx context.Context) error {
	o := x.o

	chainID, err := o.chain.ChainID(ctx)
	if err != nil {
		return x.fail(0, entities.ErrRPCUnavailable, err)
	}
	if o.cfg.ChainID != nil && chainID.Cmp(o.cfg.ChainID) != 0 {
		return fmt.Errorf("%w: connected to %s, configured for %s", entities.ErrChainIDMismatch, chainID, o.cfg.ChainID)
	}
	x.chainID = chainID

	// The nonce is read once and advanced locally for every submission.
	if x.nonce, err = o.chain.PendingNonceAt(ctx, x.account); err != nil {
		return x.fail(0, entities.ErrRPCUnavailable, err)
	}
	if x.gasPrice, err = o.chain.SuggestGasPrice(ctx); err != nil {
		return x.fail(0, entities.ErrRPCUnavailable, err)
	}

	approvals, firstUse, err := x.planApprovals()
	if err != nil {
		return err
	}

	for i := range x.actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, key := range firstUse[i] {
			if err := x.approve(ctx, i, key, approvals[key]); err != nil {
				return err
			}
		}
		if err := x.step(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// planApprovals sums the allowance every (token, spender) pair needs across
// the whole execution, so each pair is approved at most once, before the
// first action that uses it.
func (x *execution) planApprovals() (map[approvalKey]*big.Int, [][]approvalKey, error) {
	totals := make(map[approvalKey]*big.Int)
	firstUse := make([][]approvalKey, len(x.actions))

	for i, a := range x.actions {
		call, err := a.Build(a.AmountIn)
		if err != nil {
			return nil, nil, x.fail(i, entities.ErrUnsupportedVenue, err)
		}
		for _, al := range call.Allowances {
			key := approvalKey{token: al.Token, spender: al.Spender}
			if _, seen := totals[key]; !seen {
				totals[key] = new(big.Int)
				firstUse[i] = append(firstUse[i], key)
			}
			totals[key].Add(totals[key], al.Amount)
		}
	}
	return totals, firstUse, nil
}

func (x *execution) approve(ctx context.Context, i int, key approvalKey, required *big.Int) error {
	o := x.o
	current, err := o.tokens.Allowance(ctx, key.token, x.account, key.spender)
	if err != nil {
		return x.fail(i, entities.ErrRPCUnavailable, err)
	}
	if current.Cmp(required) >= 0 {
		return nil
	}

	amount := required
	if o.cfg.UnlimitedApproval {
		amount = dex.MaxUint256
	}
	rec := &x.record.Steps[i]
	rec.State = entities.StepApprovalPending

	call := dex.ApproveCall(key.token, key.spender, amount)
	hash, receipt, err := x.send(ctx, i, call, entities.ErrApprovalFailed)
	rec.ApprovalHash = hash
	if err != nil {
		return err
	}
	o.metrics.ObserveApproval()
	if !receipt.Succeeded() {
		return x.fail(i, entities.ErrApprovalFailed, fmt.Errorf("approval %s reverted", hash.Hex()))
	}

	rec.State = entities.StepApprovalConfirmed
	o.logger.Info("approval confirmed",
		zap.Int("step", i),
		zap.String("token", key.token.Hex()),
		zap.String("spender", key.spender.Hex()),
		zap.String("tx_hash", hash.Hex()),
	)
	return nil
}

func (x *execution) step(ctx context.Context, i int) error {
	o := x.o
	a := x.actions[i]
	rec := &x.record.Steps[i]

	amountIn := new(big.Int).Set(a.AmountIn)
	if a.ClampToBalance {
		for _, token := range append([]entities.Token{a.TokenIn}, a.ClampAlso...) {
			balance, err := o.tokens.BalanceOf(ctx, token.Address, x.account)
			if err != nil {
				return x.fail(i, entities.ErrRPCUnavailable, err)
			}
			if balance.Cmp(amountIn) < 0 {
				amountIn = balance
			}
		}
		if amountIn.Sign() <= 0 {
			return x.fail(i, entities.ErrInsufficientLiquidity, fmt.Errorf("no %s balance to spend", a.TokenIn))
		}
	}

	if a.Preview != nil && a.MinAmountOut != nil {
		out, err := a.Preview(ctx, amountIn)
		switch {
		case errors.Is(err, entities.ErrPreviewUnsupported):
		case err != nil:
			return x.fail(i, classify(err, entities.ErrRPCUnavailable), err)
		case out.Cmp(a.MinAmountOut) < 0:
			return x.fail(i, entities.ErrSlippageExceeded,
				fmt.Errorf("predicted %s, minimum %s", out, a.MinAmountOut))
		}
	}

	call, err := a.Build(amountIn)
	if err != nil {
		return x.fail(i, entities.ErrUnsupportedVenue, err)
	}
	rec.State = entities.StepTxBuilt

	hash, receipt, err := x.send(ctx, i, call, nil)
	if err != nil {
		return err
	}
	rec.GasUsed = receipt.GasUsed
	if !receipt.Succeeded() {
		rec.State = entities.StepReverted
		o.metrics.ObserveTransaction(string(entities.StepReverted))
		return x.fail(i, entities.ErrTransactionReverted, fmt.Errorf("transaction %s reverted", hash.Hex()))
	}
	rec.State = entities.StepConfirmed
	o.metrics.ObserveTransaction(string(entities.StepConfirmed))
	return nil
}

// send estimates, submits and waits for one transaction. Swap transactions
// record their hash, nonce and gas on the step; approvals only their hash.
func (x *execution) send(ctx context.Context, i int, call dex.Call, approvalKind error) (common.Hash, *entities.Receipt, error) {
	o := x.o
	rec := &x.record.Steps[i]
	isSwap := approvalKind == nil

	if err := ctx.Err(); err != nil {
		return common.Hash{}, nil, err
	}

	estimate, err := o.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:     x.account,
		To:       &call.To,
		GasPrice: x.gasPrice,
		Value:    call.Value,
		Data:     call.Data,
	})
	if err != nil {
		return common.Hash{}, nil, x.fail(i, entities.ErrGasEstimationFailed, err)
	}
	gasLimit := estimate * (100 + o.cfg.GasBufferPct) / 100

	req := entities.TxRequest{
		From:     x.account,
		To:       call.To,
		Data:     call.Data,
		Value:    call.Value,
		GasLimit: gasLimit,
		GasPrice: x.gasPrice,
		Nonce:    x.nonce,
		ChainID:  x.chainID,
	}
	hash, err := o.chain.Submit(ctx, req, x.signer)
	if err != nil {
		if errors.Is(err, entities.ErrTransactionStatusUnknown) {
			x.nonce++
			if isSwap {
				rec.State = entities.StepTxSubmitted
				rec.TxHash = hash
				rec.Nonce = req.Nonce
			}
			return hash, nil, x.fail(i, entities.ErrTransactionStatusUnknown, err)
		}
		kind := entities.ErrSubmitRejected
		if !isSwap {
			kind = approvalKind
		}
		return common.Hash{}, nil, x.fail(i, kind, err)
	}
	x.nonce++

	if isSwap {
		rec.State = entities.StepTxSubmitted
		rec.TxHash = hash
		rec.Nonce = req.Nonce
		rec.GasLimit = gasLimit
	}
	o.logger.Info("transaction sent",
		zap.String("route_id", x.record.RouteID),
		zap.Int("step", i),
		zap.Bool("approval", !isSwap),
		zap.String("tx_hash", hash.Hex()),
		zap.Uint64("nonce", req.Nonce),
		zap.Uint64("gas", gasLimit),
	)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.ConfirmTimeout)
	defer cancel()
	receipt, err := o.chain.WaitForReceipt(waitCtx, hash)
	if err != nil {
		return hash, nil, x.fail(i, classify(err, entities.ErrTransactionStatusUnknown), err)
	}
	return hash, receipt, nil
}

// fail records err on step i and wraps it with the step's identity
func (x *execution) fail(i int, kind, err error) error {
	if i < len(x.record.Steps) && err != nil {
		x.record.Steps[i].Error = err.Error()
	}
	var step *entities.SwapStep
	if i < len(x.actions) {
		step = x.actions[i].Step
	}
	stepErr := entities.NewStepError(i, step, kind, err)
	if step == nil && i < len(x.actions) {
		stepErr.Venue = x.actions[i].Label
	}
	x.o.logger.Error("execution step failed",
		zap.String("route_id", x.record.RouteID),
		zap.Int("step", i),
		zap.Error(stepErr),
	)
	return stepErr
}
