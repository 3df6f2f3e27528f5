package services

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

var noCollateralVenue = entities.Venue{
	Name:     "sDAI/NO_sDAI",
	Kind:     entities.ConstantProduct,
	Protocol: entities.ProtocolUniswapV2,
	Address:  common.HexToAddress("0x1003"),
	Token0:   entities.SDAI,
	Token1:   entities.SDAINo,
	FeeBps:   30,
	Router:   common.HexToAddress("0x2002"),
}

func testMarkets() Markets {
	return Markets{
		Collateral:    entities.SDAI,
		Company:       entities.GNO,
		YesCollateral: entities.SDAIYes,
		NoCollateral:  entities.SDAINo,
		YesCompany:    entities.GNOYes,
		NoCompany:     entities.GNONo,
		Probability:   decimal.RequireFromString("0.5"),
	}
}

func newTestMarketService(t *testing.T, venues []entities.Venue, reader *fakeVenues) *MarketService {
	return NewMarketService(venues, reader, NewPriceImpactEngine(nil, nil), testMarkets(), zaptest.NewLogger(t))
}

func TestSnapshotReportsFailuresPerVenue(t *testing.T) {
	reader := newFakeVenues()
	reader.readErr[yesVenue.Address] = errors.New("rpc down")

	snaps := newTestMarketService(t, testVenues(), reader).Snapshot(context.Background())
	require.Len(t, snaps, 4)

	for i, snap := range snaps {
		assert.Equal(t, testVenues()[i].Address, snap.Venue.Address, "order follows the venue list")
	}
	assert.Error(t, snaps[3].Err)
	assert.Nil(t, snaps[3].Pool)

	require.NoError(t, snaps[1].Err)
	assert.Equal(t, "120", snaps[1].Price.String())
	assert.NotZero(t, snaps[1].Pool.UpdatedAt)
}

func TestPrices(t *testing.T) {
	reader := newFakeVenues()
	svc := newTestMarketService(t, testVenues(), reader)

	prices, _, err := svc.Prices(context.Background(), NewArbitrageEvaluator(10, zaptest.NewLogger(t), nil))
	require.NoError(t, err)

	assert.Equal(t, "130", prices.YesPrice.String())
	assert.True(t, prices.NoPrice.IsZero())
	// GNO -> waGNO at 1/1.1, waGNO -> sDAI at 120
	assert.Equal(t, "109.09", prices.SpotPrice.StringFixed(2))
	// YES_sDAI trades at 0.625 sDAI
	assert.Equal(t, "0.625", prices.Probability.String())
	assert.Equal(t, "81.25", prices.SyntheticPrice.String())
	assert.Equal(t, int64(-2552), prices.GapBps)
	assert.Nil(t, prices.Spread, "no NO-collateral venue")
}

func TestPricesFallbackProbability(t *testing.T) {
	venues := []entities.Venue{vaultVenue, weightedVenue, yesVenue}
	prices, _, err := newTestMarketService(t, venues, newFakeVenues()).Prices(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "0.5", prices.Probability.String())
	assert.Equal(t, "65", prices.SyntheticPrice.String())
}

func TestPricesConditionalSpread(t *testing.T) {
	reader := newFakeVenues()
	reader.pools[noCollateralVenue.Address] = &entities.Pool{
		Venue:    noCollateralVenue,
		Reserve0: units(entities.SDAI, "1000"),
		Reserve1: units(entities.SDAINo, "2500"),
	}
	venues := append(testVenues(), noCollateralVenue)

	prices, _, err := newTestMarketService(t, venues, reader).Prices(context.Background(), NewArbitrageEvaluator(10, zaptest.NewLogger(t), nil))
	require.NoError(t, err)
	require.NotNil(t, prices.Spread)

	assert.Equal(t, "1.025", prices.Spread.Sum.String())
	assert.Equal(t, int64(250), prices.Spread.DeviationBps)
	assert.Equal(t, "sell_yes_buy_no", prices.Spread.Action)
	assert.True(t, prices.Spread.Profitable)
}

func TestPricesNothingReadable(t *testing.T) {
	reader := newFakeVenues()
	for _, v := range testVenues() {
		reader.readErr[v.Address] = errors.New("rpc down")
	}

	_, snaps, err := newTestMarketService(t, testVenues(), reader).Prices(context.Background(), nil)
	assert.ErrorIs(t, err, entities.ErrNoRouteFound)
	assert.Len(t, snaps, 4)
}
