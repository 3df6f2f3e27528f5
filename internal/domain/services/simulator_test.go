package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

func newTestSimulator(t *testing.T, venues *fakeVenues) *SimulationExecutor {
	return NewSimulationExecutor(venues, venues, fakeBlocks{n: 100}, NewPriceImpactEngine(nil, nil), zaptest.NewLogger(t), nil)
}

func TestSimulateChainsPreviews(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.WAGNO, entities.GNOYes, units(entities.WAGNO, "2"))
	require.NoError(t, err)
	require.Len(t, route.Steps, 3)

	sim, err := newTestSimulator(t, venues).Simulate(context.Background(), route)
	require.NoError(t, err)

	assert.Equal(t, route.ID, sim.RouteID)
	assert.Equal(t, uint64(100), sim.BlockNumber)
	assert.True(t, sim.Exact())
	for i := 1; i < len(sim.Steps); i++ {
		assert.Equal(t, sim.Steps[i-1].AmountOut, sim.Steps[i].AmountIn, "step %d input is the previous prediction", i)
	}
	// the preview differs from the local curve, and the difference carries forward
	assert.NotEqual(t, route.AmountOut, sim.AmountOut)
	assert.Equal(t, sim.Steps[2].AmountOut, sim.AmountOut)
}

func TestSimulateIsDeterministic(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.GNO, entities.SDAI, units(entities.GNO, "3"))
	require.NoError(t, err)

	sim := newTestSimulator(t, venues)
	first, err := sim.Simulate(context.Background(), route)
	require.NoError(t, err)
	second, err := sim.Simulate(context.Background(), route)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}

func TestSimulateVaultWrapIsApproximate(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.GNO, entities.SDAI, units(entities.GNO, "1.1"))
	require.NoError(t, err)

	result, err := newTestSimulator(t, venues).Simulate(context.Background(), route)
	require.NoError(t, err)

	assert.False(t, result.Exact())
	assert.Equal(t, []int{0}, result.ApproximateSteps())
	assert.Equal(t, units(entities.WAGNO, "1").String(), result.Steps[0].AmountOut.String())
	assert.True(t, result.Steps[1].Exact)
}

func TestSimulateRereadsVaultRate(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.GNO, entities.SDAI, units(entities.GNO, "1.1"))
	require.NoError(t, err)
	require.Equal(t, units(entities.WAGNO, "1").String(), route.Steps[0].Quote.AmountOut.String())

	venues.pools[vaultVenue.Address] = &entities.Pool{
		Venue:             vaultVenue,
		Rate:              units(entities.GNO, "2.2"),
		RateAuthoritative: true,
	}
	reads := venues.reads

	result, err := newTestSimulator(t, venues).Simulate(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, units(entities.WAGNO, "0.5").String(), result.Steps[0].AmountOut.String())
	assert.Equal(t, result.Steps[0].AmountOut, result.Steps[1].AmountIn)
	assert.Equal(t, reads+1, venues.reads, "only the step without a preview is read again")
}

func TestSimulateVaultReadFailure(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.GNO, entities.SDAI, units(entities.GNO, "1.1"))
	require.NoError(t, err)

	venues.readErr[vaultVenue.Address] = entities.ErrRPCUnavailable
	_, err = newTestSimulator(t, venues).Simulate(context.Background(), route)
	assert.ErrorIs(t, err, entities.ErrRPCUnavailable)

	var stepErr *entities.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 0, stepErr.Index)
}

func TestSimulateFlagsBelowMinimum(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.WAGNO, entities.SDAI, units(entities.WAGNO, "1"), WithSlippage(0))
	require.NoError(t, err)

	result, err := newTestSimulator(t, venues).Simulate(context.Background(), route)
	require.NoError(t, err)
	assert.True(t, result.Steps[0].BelowMinimum, "a one wei haircut is below a zero-slippage minimum")
}

func TestSimulatePreviewFailure(t *testing.T) {
	venues := newFakeVenues()
	route, err := newTestRouteBuilder(t, venues).BuildRoute(context.Background(), entities.WAGNO, entities.SDAI, units(entities.WAGNO, "1"))
	require.NoError(t, err)

	venues.previewErr = entities.ErrRPCUnavailable
	_, err = newTestSimulator(t, venues).Simulate(context.Background(), route)
	assert.ErrorIs(t, err, entities.ErrRPCUnavailable)

	var stepErr *entities.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "balancer", stepErr.Venue)
	assert.Equal(t, "waGNO", stepErr.TokenIn)
	assert.Equal(t, "sDAI", stepErr.TokenOut)
}

func TestSimulateRejectsInvalidRoute(t *testing.T) {
	venues := newFakeVenues()
	pools := testPools()
	route := &entities.Route{
		ID: "broken",
		Steps: []entities.SwapStep{
			{Pool: pools[vaultVenue.Address], Direction: entities.Wrap, AmountIn: big.NewInt(10)},
			{Pool: pools[yesVenue.Address], Direction: entities.ZeroForOne, AmountIn: big.NewInt(10)},
		},
		AmountIn: big.NewInt(10),
	}

	_, err := newTestSimulator(t, venues).Simulate(context.Background(), route)
	assert.ErrorIs(t, err, entities.ErrInvalidRoute)
	assert.Zero(t, venues.previews)
}
