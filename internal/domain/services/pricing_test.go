package services

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

func scenarioPool() *entities.Pool {
	return &entities.Pool{
		Venue: entities.Venue{
			Name:     "sDAI/waGNO",
			Kind:     entities.ConstantProduct,
			Protocol: entities.ProtocolUniswapV2,
			Token0:   entities.SDAI,
			Token1:   entities.WAGNO,
		},
		Reserve0: units(entities.SDAI, "4.234"),
		Reserve1: units(entities.WAGNO, "0.0188"),
	}
}

func TestQuoteScenario(t *testing.T) {
	engine := NewPriceImpactEngine(nil, nil)

	q, err := engine.Quote(scenarioPool(), units(entities.SDAI, "0.5"), entities.ZeroForOne)
	require.NoError(t, err)

	assert.Equal(t, "1985635825940008", q.AmountOut.String())
	assert.Equal(t, uint64(1056), q.PriceImpactBps)
	price, _ := q.EffectivePrice.Float64()
	assert.InDelta(t, 251.8085, price, 0.001)
	assert.True(t, q.Authoritative)
}

func TestPriceImpactMonotonic(t *testing.T) {
	engine := NewPriceImpactEngine(nil, nil)
	uneven := weightedVenue
	uneven.Weight0, uneven.Weight1 = 8000, 2000

	tests := []struct {
		name      string
		pool      *entities.Pool
		direction entities.Direction
		start     int64
	}{
		{name: "constant product", pool: scenarioPool(), direction: entities.ZeroForOne, start: 1_000_000},
		{name: "weighted", pool: testPools()[weightedVenue.Address], direction: entities.ZeroForOne, start: 1_000_000},
		{
			name: "constant product with fee",
			pool: &entities.Pool{
				Venue:    yesVenue,
				Reserve0: units(entities.GNOYes, "50"),
				Reserve1: units(entities.SDAIYes, "6500"),
			},
			direction: entities.ZeroForOne,
			start:     1_000_000,
		},
		{
			name: "weighted 80/20 fractional exponent",
			pool: &entities.Pool{
				Venue:    uneven,
				Reserve0: units(entities.WAGNO, "100"),
				Reserve1: units(entities.SDAI, "3000"),
			},
			direction: entities.OneForZero,
			start:     10_000_000_000_000,
		},
		{
			name: "weighted 80/20 integer exponent",
			pool: &entities.Pool{
				Venue:    uneven,
				Reserve0: units(entities.WAGNO, "100"),
				Reserve1: units(entities.SDAI, "3000"),
			},
			direction: entities.ZeroForOne,
			start:     1_000_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reserveOut := tt.pool.Reserve1
			if tt.direction == entities.OneForZero {
				reserveOut = tt.pool.Reserve0
			}
			var lastImpact uint64
			amount := big.NewInt(tt.start)
			for i := 0; i < 40; i++ {
				q, err := engine.Quote(tt.pool, amount, tt.direction)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, q.PriceImpactBps, lastImpact, "amount %s", amount)
				assert.Equal(t, -1, q.AmountOut.Cmp(reserveOut))
				lastImpact = q.PriceImpactBps
				amount = new(big.Int).Mul(amount, big.NewInt(3))
			}
		})
	}
}

func TestQuoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		pool       *entities.Pool
		amount     *big.Int
		minReserve *big.Int
		wantErr    error
	}{
		{
			name:    "zero amount",
			pool:    scenarioPool(),
			amount:  big.NewInt(0),
			wantErr: entities.ErrInvalidAmount,
		},
		{
			name:       "drains below minimum reserve",
			pool:       scenarioPool(),
			amount:     units(entities.SDAI, "1000"),
			minReserve: units(entities.WAGNO, "0.001"),
			wantErr:    entities.ErrInsufficientLiquidity,
		},
		{
			name:    "empty pool",
			pool:    &entities.Pool{Venue: yesVenue, Reserve0: big.NewInt(0), Reserve1: big.NewInt(10)},
			amount:  big.NewInt(10),
			wantErr: entities.ErrInsufficientLiquidity,
		},
		{
			name:    "unknown kind",
			pool:    &entities.Pool{Venue: entities.Venue{Kind: "stable"}, Reserve0: big.NewInt(1), Reserve1: big.NewInt(1)},
			amount:  big.NewInt(10),
			wantErr: entities.ErrUnsupportedVenue,
		},
		{
			name:    "dust rounds to nothing",
			pool:    scenarioPool(),
			amount:  big.NewInt(1),
			wantErr: entities.ErrInsufficientLiquidity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewPriceImpactEngine(tt.minReserve, nil)
			_, err := engine.Quote(tt.pool, tt.amount, entities.ZeroForOne)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestQuoteVault(t *testing.T) {
	engine := NewPriceImpactEngine(nil, nil)
	pool := testPools()[vaultVenue.Address]

	wrap, err := engine.Quote(pool, units(entities.GNO, "11"), entities.Wrap)
	require.NoError(t, err)
	assert.Equal(t, units(entities.WAGNO, "10").String(), wrap.AmountOut.String())
	assert.Zero(t, wrap.PriceImpactBps)
	assert.True(t, wrap.Authoritative)

	fallback := *pool
	fallback.RateAuthoritative = false
	unwrap, err := engine.Quote(&fallback, units(entities.WAGNO, "10"), entities.Unwrap)
	require.NoError(t, err)
	assert.Equal(t, units(entities.GNO, "11").String(), unwrap.AmountOut.String())
	assert.False(t, unwrap.Authoritative)
}

func TestSpotPrice(t *testing.T) {
	engine := NewPriceImpactEngine(nil, nil)

	price, err := engine.SpotPrice(testPools()[weightedVenue.Address], entities.ZeroForOne)
	require.NoError(t, err)
	assert.Equal(t, "120", price.String())

	price, err = engine.SpotPrice(testPools()[vaultVenue.Address], entities.Unwrap)
	require.NoError(t, err)
	assert.Equal(t, "1.1", price.String())
}
