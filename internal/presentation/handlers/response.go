package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// ErrorResponse carries a machine-readable code next to the message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps the error taxonomy onto HTTP statuses
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrInvalidAmount), errors.Is(err, entities.ErrInvalidRoute), errors.Is(err, entities.ErrUnknownToken):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, entities.ErrNoRouteFound):
		writeError(w, http.StatusNotFound, "no_route", err.Error())
	case errors.Is(err, entities.ErrInsufficientLiquidity):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_liquidity", err.Error())
	case errors.Is(err, entities.ErrRPCUnavailable):
		writeError(w, http.StatusBadGateway, "rpc_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
