package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vidya-labs/studyrag/internal/index"
)

// HealthResponse is the JSON body of the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Index     string `json:"index"`
	Timestamp string `json:"timestamp"`
}

// NewHealthHandler creates an HTTP handler for the /health endpoint. It
// probes the index with a stats read, which exercises the backend without
// mutating anything.
func NewHealthHandler(idx index.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		_, err := idx.Stats(ctx)

		response := HealthResponse{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		w.Header().Set("Content-Type", "application/json")

		if err != nil {
			response.Status = "unhealthy"
			response.Index = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(response)
			return
		}

		response.Status = "healthy"
		response.Index = "available"
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
