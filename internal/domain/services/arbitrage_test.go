package services

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

func simulated(route *entities.Route, out *big.Int) *entities.SimulationResult {
	return &entities.SimulationResult{
		RouteID:   route.ID,
		AmountIn:  route.AmountIn,
		AmountOut: out,
		Steps:     []entities.StepPrediction{{AmountOut: out, Exact: true}},
	}
}

func loopRoute(t *testing.T, amountIn *big.Int) *entities.Route {
	pool := testPools()[yesCollateralVenue.Address]
	route, err := entities.NewRoute([]entities.SwapStep{
		{Pool: pool, Direction: entities.ZeroForOne, AmountIn: amountIn},
		{Pool: pool, Direction: entities.OneForZero, AmountIn: amountIn},
	}, 50, fixedNow)
	require.NoError(t, err)
	return route
}

func TestEvaluateLoop(t *testing.T) {
	evaluator := NewArbitrageEvaluator(100, zaptest.NewLogger(t), nil)
	capital := units(entities.SDAI, "100")
	route := loopRoute(t, capital)

	tests := []struct {
		name       string
		out        string
		profitable bool
	}{
		{"loss", "99", false},
		{"break even", "100", false},
		{"exactly the margin", "101", false},
		{"above the margin", "101.000000000000000001", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := units(entities.SDAI, tt.out)
			opp, err := evaluator.Evaluate(route, simulated(route, out), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.profitable, opp.Profitable)
			assert.Equal(t, new(big.Int).Sub(out, capital), opp.ExpectedProfit)
			assert.True(t, opp.ReferencePrice.Equal(decimal.NewFromInt(1)))
		})
	}
}

func TestEvaluateWithReferencePool(t *testing.T) {
	evaluator := NewArbitrageEvaluator(0, zaptest.NewLogger(t), nil)
	pools := testPools()

	// waGNO -> sDAI, valued back in waGNO at the pool's 120 sDAI/waGNO spot
	capital := units(entities.WAGNO, "1")
	route, err := entities.NewRoute([]entities.SwapStep{
		{Pool: pools[weightedVenue.Address], Direction: entities.ZeroForOne, AmountIn: capital},
	}, 50, fixedNow)
	require.NoError(t, err)

	opp, err := evaluator.Evaluate(route, simulated(route, units(entities.SDAI, "121")), pools[weightedVenue.Address])
	require.NoError(t, err)
	assert.True(t, opp.Profitable)
	assert.Equal(t, "1008333333333333333", opp.OutputValue.String())
	assert.Equal(t, "0.0083333333333333", opp.ReferencePrice.StringFixed(16))

	opp, err = evaluator.Evaluate(route, simulated(route, units(entities.SDAI, "119")), pools[weightedVenue.Address])
	require.NoError(t, err)
	assert.False(t, opp.Profitable)
}

func TestEvaluateRejects(t *testing.T) {
	evaluator := NewArbitrageEvaluator(0, zaptest.NewLogger(t), nil)
	pools := testPools()
	route, err := entities.NewRoute([]entities.SwapStep{
		{Pool: pools[weightedVenue.Address], Direction: entities.ZeroForOne, AmountIn: big.NewInt(100)},
	}, 50, fixedNow)
	require.NoError(t, err)

	_, err = evaluator.Evaluate(route, simulated(route, big.NewInt(1)), nil)
	assert.ErrorIs(t, err, entities.ErrInvalidRoute, "needs a reference pool")

	_, err = evaluator.Evaluate(route, simulated(route, big.NewInt(1)), pools[yesVenue.Address])
	assert.ErrorIs(t, err, entities.ErrInvalidRoute, "reference pool must price the pair")

	other := simulated(route, big.NewInt(1))
	other.RouteID = "other"
	_, err = evaluator.Evaluate(route, other, pools[weightedVenue.Address])
	assert.ErrorIs(t, err, entities.ErrInvalidRoute)
}

func TestCheckConditionalSum(t *testing.T) {
	evaluator := NewArbitrageEvaluator(50, zaptest.NewLogger(t), nil)

	tests := []struct {
		name          string
		yes, no       string
		wantDeviation int64
		wantAction    string
		profitable    bool
	}{
		{"balanced", "0.6", "0.4", 0, "", false},
		{"yes rich", "0.7", "0.4", 1000, "sell_yes_buy_no", true},
		{"no rich", "0.55", "0.4", 500, "sell_no_buy_yes", true},
		{"within margin", "0.603", "0.4", 30, "sell_yes_buy_no", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spread := evaluator.CheckConditionalSum(decimal.RequireFromString(tt.yes), decimal.RequireFromString(tt.no))
			assert.Equal(t, tt.wantDeviation, spread.DeviationBps)
			assert.Equal(t, tt.wantAction, spread.Action)
			assert.Equal(t, tt.profitable, spread.Profitable)
		})
	}
}

func TestSyntheticPrice(t *testing.T) {
	got := SyntheticPrice(decimal.NewFromInt(130), decimal.NewFromInt(110), decimal.RequireFromString("0.25"))
	assert.True(t, got.Equal(decimal.NewFromInt(115)), got.String())
}
