package handlers

import (
	"context"
	"math/big"
	"net/http"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

// RouteQuoter builds quoted routes
type RouteQuoter interface {
	BuildRoute(ctx context.Context, tokenIn, tokenOut entities.Token, amountIn *big.Int, opts ...services.RouteOption) (*entities.Route, error)
}

// QuoteHandler handles quote requests
type QuoteHandler struct {
	router  RouteQuoter
	tokens  *entities.TokenRegistry
	fetcher entities.MetadataFetcher
}

// NewQuoteHandler creates a new quote handler. fetcher resolves tokens
// outside the registry and may be nil.
func NewQuoteHandler(router RouteQuoter, tokens *entities.TokenRegistry, fetcher entities.MetadataFetcher) *QuoteHandler {
	return &QuoteHandler{
		router:  router,
		tokens:  tokens,
		fetcher: fetcher,
	}
}

// QuoteResponse represents a quote response
type QuoteResponse struct {
	RouteID        string     `json:"routeId"`
	TokenIn        string     `json:"tokenIn"`
	TokenOut       string     `json:"tokenOut"`
	AmountIn       string     `json:"amountIn"`
	AmountOut      string     `json:"amountOut"`
	MinAmountOut   string     `json:"minAmountOut"`
	SlippageBps    uint64     `json:"slippageBps"`
	PriceImpactBps uint64     `json:"priceImpactBps"`
	Route          []RouteHop `json:"route"`
}

// RouteHop represents a hop in the route
type RouteHop struct {
	Venue          string `json:"venue"`
	Protocol       string `json:"protocol"`
	Pool           string `json:"pool"`
	TokenIn        string `json:"tokenIn"`
	TokenOut       string `json:"tokenOut"`
	AmountIn       string `json:"amountIn"`
	AmountOut      string `json:"amountOut"`
	FeeBps         uint64 `json:"feeBps"`
	PriceImpactBps uint64 `json:"priceImpactBps"`
	EffectivePrice string `json:"effectivePrice"`
	Exact          bool   `json:"exact"`
}

// GetQuote handles GET /api/v1/quote?tokenIn=&tokenOut=&amountIn=[&slippage=]
// Tokens are symbols or addresses; amountIn is in smallest units.
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenInRef := q.Get("tokenIn")
	tokenOutRef := q.Get("tokenOut")
	amountInStr := q.Get("amountIn")
	slippageStr := q.Get("slippage")

	if tokenInRef == "" || tokenOutRef == "" || amountInStr == "" {
		writeError(w, http.StatusBadRequest, "missing_params", "tokenIn, tokenOut, and amountIn are required")
		return
	}

	amountIn, ok := new(big.Int).SetString(amountInStr, 10)
	if !ok || amountIn.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amountIn must be a positive integer")
		return
	}

	var opts []services.RouteOption
	if slippageStr != "" {
		slippage, ok := new(big.Int).SetString(slippageStr, 10)
		if !ok || slippage.Sign() < 0 || slippage.Cmp(big.NewInt(10000)) > 0 {
			writeError(w, http.StatusBadRequest, "invalid_slippage", "slippage must be 0-10000 basis points")
			return
		}
		opts = append(opts, services.WithSlippage(slippage.Uint64()))
	}

	tokenIn, err := h.tokens.Lookup(r.Context(), tokenInRef, h.fetcher)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token_in", err.Error())
		return
	}
	tokenOut, err := h.tokens.Lookup(r.Context(), tokenOutRef, h.fetcher)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token_out", err.Error())
		return
	}

	route, err := h.router.BuildRoute(r.Context(), tokenIn, tokenOut, amountIn, opts...)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildQuoteResponse(route))
}

// buildQuoteResponse converts a Route to a QuoteResponse
func buildQuoteResponse(route *entities.Route) QuoteResponse {
	hops := make([]RouteHop, len(route.Steps))
	for i := range route.Steps {
		s := &route.Steps[i]
		hops[i] = RouteHop{
			Venue:          s.Venue().Label(),
			Protocol:       string(s.Venue().Protocol),
			Pool:           s.Venue().Address.Hex(),
			TokenIn:        s.TokenIn().Symbol,
			TokenOut:       s.TokenOut().Symbol,
			AmountIn:       s.AmountIn.String(),
			AmountOut:      s.Quote.AmountOut.String(),
			FeeBps:         s.Venue().FeeBps,
			PriceImpactBps: s.Quote.PriceImpactBps,
			EffectivePrice: s.Quote.EffectivePrice.String(),
			Exact:          s.Quote.Authoritative,
		}
	}

	last := route.Steps[len(route.Steps)-1]
	return QuoteResponse{
		RouteID:        route.ID,
		TokenIn:        route.TokenIn().Address.Hex(),
		TokenOut:       route.TokenOut().Address.Hex(),
		AmountIn:       route.AmountIn.String(),
		AmountOut:      route.AmountOut.String(),
		MinAmountOut:   last.MinAmountOut.String(),
		SlippageBps:    route.SlippageBps,
		PriceImpactBps: route.PriceImpactBps(),
		Route:          hops,
	}
}
