package handlers

import (
	"net/http"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	ChainID int64  `json:"chainId"`
	Venues  int    `json:"venues"`
}

// HealthHandler reports the build version and the configured chain.
type HealthHandler struct {
	body HealthResponse
}

func NewHealthHandler(version string, chainID int64, venues int) *HealthHandler {
	return &HealthHandler{body: HealthResponse{
		Status:  "ok",
		Version: version,
		ChainID: chainID,
		Venues:  venues,
	}}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.body)
}
