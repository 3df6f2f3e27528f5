package services

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/infrastructure/cache"
)

func newTestOrchestrator(t *testing.T, chain *fakeChain, venues *fakeVenues, records RecordSaver) *TransactionOrchestrator {
	return NewTransactionOrchestrator(chain, chain, venues, NewLocalLocker(), records, OrchestratorConfig{
		ChainID:        big.NewInt(100),
		GasBufferPct:   20,
		ConfirmTimeout: time.Second,
	}, zaptest.NewLogger(t), nil)
}

func threeStepRoute(t *testing.T, venues *fakeVenues) *entities.Route {
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.WAGNO, entities.GNOYes, units(entities.WAGNO, "1"))
	require.NoError(t, err)
	require.Len(t, route.Steps, 3)
	return route
}

func TestExecuteCompletes(t *testing.T) {
	chain := newFakeChain()
	venues := newFakeVenues()
	records := cache.NewInMemoryCache(time.Hour)
	route := threeStepRoute(t, venues)

	record, err := newTestOrchestrator(t, chain, venues, records).Execute(context.Background(), route, testAccount)
	require.NoError(t, err)

	assert.Equal(t, entities.ExecutionCompleted, record.Status)
	assert.Equal(t, route.ID, record.RouteID)
	for _, step := range record.Steps {
		assert.Equal(t, entities.StepConfirmed, step.State)
		assert.Equal(t, entities.TxConfirmed, step.Status())
		assert.Equal(t, uint64(42000), step.GasUsed)
		assert.Equal(t, uint64(120000), step.GasLimit, "20% over the estimate")
	}

	// one approval per step's token, each submitted before its swap
	assert.Len(t, chain.approvals(), 3)
	assert.Len(t, chain.swaps(), 3)

	// nonces are read once and increase by one per submission
	for i, tx := range chain.submitted {
		assert.Equal(t, uint64(7+i), tx.Nonce)
		assert.Equal(t, big.NewInt(100), tx.ChainID)
	}

	saved, err := records.GetRecord(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, entities.ExecutionCompleted, saved.Status)
}

func TestExecuteHaltsOnRevert(t *testing.T) {
	chain := newFakeChain()
	chain.revertSwap[1] = true
	venues := newFakeVenues()
	route := threeStepRoute(t, venues)

	record, err := newTestOrchestrator(t, chain, venues, nil).Execute(context.Background(), route, testAccount)
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrTransactionReverted)

	var stepErr *entities.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 1, stepErr.Index)

	require.NotNil(t, record)
	assert.Equal(t, entities.StepConfirmed, record.Steps[0].State)
	assert.Equal(t, entities.StepReverted, record.Steps[1].State)
	assert.Equal(t, entities.StepNotStarted, record.Steps[2].State)
	assert.Equal(t, entities.ExecutionPartial, record.Status)
	assert.True(t, record.HasRevert())

	assert.Len(t, chain.swaps(), 2, "step 3 is never attempted")
}

func TestExecuteApprovesEachPairOnce(t *testing.T) {
	chain := newFakeChain()
	venues := newFakeVenues()
	b := newTestRouteBuilder(t, venues)

	// sDAI -> YES_sDAI -> sDAI -> YES_sDAI on the same pool and router
	hop := Hop{Venue: yesCollateralVenue, Direction: entities.ZeroForOne}
	back := Hop{Venue: yesCollateralVenue, Direction: entities.OneForZero}
	route, err := b.BuildPath(context.Background(), []Hop{hop, back, hop}, units(entities.SDAI, "10"))
	require.NoError(t, err)

	record, err := newTestOrchestrator(t, chain, venues, nil).Execute(context.Background(), route, testAccount)
	require.NoError(t, err)
	assert.Equal(t, entities.ExecutionCompleted, record.Status)

	approvals := chain.approvals()
	require.Len(t, approvals, 2)
	assert.Equal(t, entities.SDAI.Address, approvals[0].To)
	assert.Equal(t, entities.SDAIYes.Address, approvals[1].To)

	// the sDAI approval covers both sDAI-spending steps
	wantSDAI := new(big.Int).Add(route.Steps[0].AmountIn, route.Steps[2].AmountIn)
	approvedSDAI := new(big.Int).SetBytes(approvals[0].Data[36:68])
	assert.Equal(t, wantSDAI, approvedSDAI)

	// approval of a pair precedes the first swap that needs it
	assert.True(t, isApproval(chain.submitted[0].Data))
	assert.False(t, isApproval(chain.submitted[1].Data))
	assert.NotEqual(t, common.Hash{}, record.Steps[0].ApprovalHash)
	assert.Equal(t, common.Hash{}, record.Steps[2].ApprovalHash)
}

func TestExecuteSkipsSufficientAllowance(t *testing.T) {
	chain := newFakeChain()
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.WAGNO, entities.SDAI, units(entities.WAGNO, "1"))
	require.NoError(t, err)

	chain.allowances[allowanceKey{entities.WAGNO.Address, weightedVenue.Router}] = units(entities.WAGNO, "5")

	_, err = newTestOrchestrator(t, chain, venues, nil).Execute(context.Background(), route, testAccount)
	require.NoError(t, err)
	assert.Empty(t, chain.approvals())
}

func TestExecuteUnlimitedApproval(t *testing.T) {
	chain := newFakeChain()
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.WAGNO, entities.SDAI, units(entities.WAGNO, "1"))
	require.NoError(t, err)

	o := newTestOrchestrator(t, chain, venues, nil)
	o.cfg.UnlimitedApproval = true
	_, err = o.Execute(context.Background(), route, testAccount)
	require.NoError(t, err)

	approvals := chain.approvals()
	require.Len(t, approvals, 1)
	amount := new(big.Int).SetBytes(approvals[0].Data[36:68])
	assert.Equal(t, 256, amount.BitLen())
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(c *fakeChain, v *fakeVenues)
		wantErr    error
		wantStatus entities.ExecutionStatus
		wantSwaps  int
	}{
		{
			name:       "gas estimation fails fast",
			setup:      func(c *fakeChain, v *fakeVenues) { c.estimateErr[0] = errors.New("execution reverted") },
			wantErr:    entities.ErrGasEstimationFailed,
			wantStatus: entities.ExecutionFailed,
		},
		{
			name:       "approval reverts",
			setup:      func(c *fakeChain, v *fakeVenues) { c.revertApprv = true },
			wantErr:    entities.ErrApprovalFailed,
			wantStatus: entities.ExecutionFailed,
		},
		{
			name: "submission times out",
			setup: func(c *fakeChain, v *fakeVenues) {
				c.submitErr[1] = entities.ErrTransactionStatusUnknown
			},
			wantErr:    entities.ErrTransactionStatusUnknown,
			wantStatus: entities.ExecutionUnknown,
			wantSwaps:  2,
		},
		{
			name:       "node rejects",
			setup:      func(c *fakeChain, v *fakeVenues) { c.submitErr[0] = errors.New("insufficient funds") },
			wantErr:    entities.ErrSubmitRejected,
			wantStatus: entities.ExecutionFailed,
			wantSwaps:  1,
		},
		{
			name:       "wrong chain",
			setup:      func(c *fakeChain, v *fakeVenues) { c.chainID = 1 },
			wantErr:    entities.ErrChainIDMismatch,
			wantStatus: entities.ExecutionFailed,
		},
		{
			name:       "price moved before submission",
			setup:      func(c *fakeChain, v *fakeVenues) { v.haircut = 1_000_000_000_000_000_000 },
			wantErr:    entities.ErrSlippageExceeded,
			wantStatus: entities.ExecutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newFakeChain()
			venues := newFakeVenues()
			route := threeStepRoute(t, venues)
			tt.setup(chain, venues)

			record, err := newTestOrchestrator(t, chain, venues, nil).Execute(context.Background(), route, testAccount)
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, record)
			assert.Equal(t, tt.wantStatus, record.Status)
			assert.Len(t, chain.swaps(), tt.wantSwaps)
		})
	}
}

func TestExecuteUnknownKeepsHash(t *testing.T) {
	chain := newFakeChain()
	chain.submitErr[0] = entities.ErrTransactionStatusUnknown
	venues := newFakeVenues()
	route := threeStepRoute(t, venues)

	record, err := newTestOrchestrator(t, chain, venues, nil).Execute(context.Background(), route, testAccount)
	assert.ErrorIs(t, err, entities.ErrTransactionStatusUnknown)
	assert.Equal(t, entities.StepTxSubmitted, record.Steps[0].State)
	assert.NotEqual(t, common.Hash{}, record.Steps[0].TxHash)
}

func TestExecuteClampsToBalance(t *testing.T) {
	chain := newFakeChain()
	venues := newFakeVenues()
	route := threeStepRoute(t, venues)

	// the first swap delivered slightly less than quoted
	short := new(big.Int).Sub(route.Steps[1].AmountIn, big.NewInt(5))
	chain.balances[entities.SDAI.Address] = short
	venues.haircut = 0

	_, err := newTestOrchestrator(t, chain, venues, nil).Execute(context.Background(), route, testAccount)
	require.NoError(t, err)

	swaps := chain.swaps()
	require.Len(t, swaps, 3)
	assert.Equal(t, short.Bytes(), swaps[1].Data[2:])
}

func TestExecuteCancelledBeforeLock(t *testing.T) {
	chain := newFakeChain()
	venues := newFakeVenues()
	route := threeStepRoute(t, venues)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err := newTestOrchestrator(t, chain, venues, nil).Execute(ctx, route, testAccount)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, record)
	assert.Empty(t, chain.submitted)
}
