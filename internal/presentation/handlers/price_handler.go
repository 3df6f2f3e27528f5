package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
	"github.com/futarchy-fi/futarchy-bots/internal/domain/services"
)

// MarketReader derives market prices from fresh venue snapshots
type MarketReader interface {
	Prices(ctx context.Context, evaluator *services.ArbitrageEvaluator) (*entities.MarketPrices, []services.Snapshot, error)
}

type PriceHandler struct {
	markets   MarketReader
	evaluator *services.ArbitrageEvaluator
}

func NewPriceHandler(markets MarketReader, evaluator *services.ArbitrageEvaluator) *PriceHandler {
	return &PriceHandler{markets: markets, evaluator: evaluator}
}

type VenuePrice struct {
	Venue       string `json:"venue"`
	Token0      string `json:"token0"`
	Token1      string `json:"token1"`
	Price       string `json:"price,omitempty"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Error       string `json:"error,omitempty"`
}

type PricesResponse struct {
	Markets   *entities.MarketPrices `json:"markets"`
	Venues    []VenuePrice           `json:"venues"`
	UpdatedAt string                 `json:"updatedAt"`
}

// GetPrices handles GET /api/v1/prices
func (h *PriceHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	prices, snaps, err := h.markets.Prices(r.Context(), h.evaluator)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	venues := make([]VenuePrice, len(snaps))
	for i, s := range snaps {
		venues[i] = VenuePrice{
			Venue:  s.Venue.Label(),
			Token0: s.Venue.Token0.Symbol,
			Token1: s.Venue.Token1.Symbol,
		}
		if s.Err != nil {
			venues[i].Error = s.Err.Error()
			continue
		}
		venues[i].Price = s.Price.String()
		venues[i].BlockNumber = s.Pool.BlockNumber
	}

	writeJSON(w, http.StatusOK, PricesResponse{
		Markets:   prices,
		Venues:    venues,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
