package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

var balancer = entities.Venue{
	Name:     "balancer",
	Kind:     entities.WeightedPool,
	Protocol: entities.ProtocolBalancer,
	Address:  common.HexToAddress("0xd1d7fa8871d84d0e77020fc28b7cd5718c446522"),
	Token0:   entities.WAGNO,
	Token1:   entities.SDAI,
	FeeBps:   25,
	Weight0:  5000,
	Weight1:  5000,
}

type fakeQuoter struct {
	err  error
	opts int
}

func (f *fakeQuoter) BuildRoute(ctx context.Context, tokenIn, tokenOut entities.Token, amountIn *big.Int, opts ...services.RouteOption) (*entities.Route, error) {
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	pool := &entities.Pool{Venue: balancer, Reserve0: big.NewInt(1e18), Reserve1: big.NewInt(1e18)}
	step := entities.SwapStep{
		Pool:         pool,
		Direction:    entities.ZeroForOne,
		AmountIn:     amountIn,
		MinAmountOut: big.NewInt(995),
		Quote: &entities.Quote{
			Pool:           pool,
			Direction:      entities.ZeroForOne,
			AmountIn:       amountIn,
			AmountOut:      big.NewInt(1000),
			PriceImpactBps: 12,
			EffectivePrice: decimal.RequireFromString("0.5"),
			Authoritative:  true,
		},
	}
	return entities.NewRoute([]entities.SwapStep{step}, 50, time.Now())
}

type fakeMarkets struct {
	err error
}

func (f fakeMarkets) Prices(ctx context.Context, evaluator *services.ArbitrageEvaluator) (*entities.MarketPrices, []services.Snapshot, error) {
	snaps := []services.Snapshot{
		{Venue: balancer, Pool: &entities.Pool{Venue: balancer, BlockNumber: 77}, Price: decimal.NewFromInt(120)},
		{Venue: balancer, Err: errors.New("rpc down")},
	}
	if f.err != nil {
		return nil, snaps, f.err
	}
	return &entities.MarketPrices{YesPrice: decimal.NewFromInt(130), SpotPrice: decimal.NewFromInt(120)}, snaps, nil
}

type fakeRecords map[string]*entities.ExecutionRecord

func (f fakeRecords) GetRecord(ctx context.Context, id string) (*entities.ExecutionRecord, error) {
	return f[id], nil
}

func newTestRouter(quoter *fakeQuoter, markets fakeMarkets, records fakeRecords) http.Handler {
	return NewRouter(Routes{
		Health:     NewHealthHandler("test", 100, 4),
		Quote:      NewQuoteHandler(quoter, entities.DefaultRegistry(), nil),
		Prices:     NewPriceHandler(markets, nil),
		Executions: NewExecutionHandler(records),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "# metrics")
		}),
	}, zap.NewNop())
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestRouter(&fakeQuoter{}, fakeMarkets{}, nil), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, HealthResponse{Status: "ok", Version: "test", ChainID: 100, Venues: 4}, body)
}

func TestGetQuote(t *testing.T) {
	quoter := &fakeQuoter{}
	rec := get(t, newTestRouter(quoter, fakeMarkets{}, nil), "/api/v1/quote?tokenIn=waGNO&tokenOut=sDAI&amountIn=2000&slippage=100")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body QuoteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, entities.WAGNO.Address.Hex(), body.TokenIn)
	assert.Equal(t, "2000", body.AmountIn)
	assert.Equal(t, "1000", body.AmountOut)
	assert.Equal(t, "995", body.MinAmountOut)
	assert.Equal(t, uint64(12), body.PriceImpactBps)
	require.Len(t, body.Route, 1)
	assert.Equal(t, "sDAI", body.Route[0].TokenOut)
	assert.True(t, body.Route[0].Exact)
	assert.Equal(t, 1, quoter.opts)
}

func TestGetQuoteErrors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		quoteErr error
		want     int
		code     string
	}{
		{"missing params", "/api/v1/quote?tokenIn=sDAI", nil, http.StatusBadRequest, "missing_params"},
		{"bad amount", "/api/v1/quote?tokenIn=sDAI&tokenOut=GNO&amountIn=-1", nil, http.StatusBadRequest, "invalid_amount"},
		{"bad slippage", "/api/v1/quote?tokenIn=sDAI&tokenOut=GNO&amountIn=1&slippage=20000", nil, http.StatusBadRequest, "invalid_slippage"},
		{"unknown token", "/api/v1/quote?tokenIn=WETH&tokenOut=GNO&amountIn=1", nil, http.StatusBadRequest, "invalid_token_in"},
		{"no route", "/api/v1/quote?tokenIn=sDAI&tokenOut=GNO&amountIn=1", entities.ErrNoRouteFound, http.StatusNotFound, "no_route"},
		{"rpc down", "/api/v1/quote?tokenIn=sDAI&tokenOut=GNO&amountIn=1", fmt.Errorf("read: %w", entities.ErrRPCUnavailable), http.StatusBadGateway, "rpc_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, newTestRouter(&fakeQuoter{err: tt.quoteErr}, fakeMarkets{}, nil), tt.target)
			assert.Equal(t, tt.want, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestGetPrices(t *testing.T) {
	rec := get(t, newTestRouter(&fakeQuoter{}, fakeMarkets{}, nil), "/api/v1/prices")
	require.Equal(t, http.StatusOK, rec.Code)

	var body PricesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotNil(t, body.Markets)
	assert.True(t, body.Markets.YesPrice.Equal(decimal.NewFromInt(130)))
	require.Len(t, body.Venues, 2)
	assert.Equal(t, "120", body.Venues[0].Price)
	assert.Equal(t, uint64(77), body.Venues[0].BlockNumber)
	assert.Equal(t, "rpc down", body.Venues[1].Error)

	rec = get(t, newTestRouter(&fakeQuoter{}, fakeMarkets{err: entities.ErrNoRouteFound}, nil), "/api/v1/prices")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetExecution(t *testing.T) {
	records := fakeRecords{"abc": {ID: "abc", Status: entities.ExecutionPartial}}
	router := newTestRouter(&fakeQuoter{}, fakeMarkets{}, records)

	rec := get(t, router, "/api/v1/executions/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	var body entities.ExecutionRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, entities.ExecutionPartial, body.Status)

	rec = get(t, router, "/api/v1/executions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsMounted(t *testing.T) {
	rec := get(t, newTestRouter(&fakeQuoter{}, fakeMarkets{}, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}
