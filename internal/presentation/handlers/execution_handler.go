package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/futarchy-fi/futarchy-bots/internal/domain/entities"
)

// RecordReader looks up execution records; a miss is (nil, nil)
type RecordReader interface {
	GetRecord(ctx context.Context, id string) (*entities.ExecutionRecord, error)
}

type ExecutionHandler struct {
	records RecordReader
}

func NewExecutionHandler(records RecordReader) *ExecutionHandler {
	return &ExecutionHandler{records: records}
}

// GetExecution handles GET /api/v1/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id", "execution id is required")
		return
	}

	record, err := h.records.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, "cache_unavailable", err.Error())
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "not_found", "execution record not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, record)
}
