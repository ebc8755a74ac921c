package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Qdrant    string `json:"qdrant"`
	Redis     string `json:"redis"`
	Timestamp string `json:"timestamp"`
}

// HealthChecker is implemented by the durable vector store and the query
// cache via their Health() methods.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewHealthHandler creates an HTTP handler for the /health endpoint.
// It probes Qdrant and Redis connectivity; either backend being down
// makes the whole service unhealthy. A nil checker is reported as
// "disabled" and does not affect the status.
func NewHealthHandler(vectors, cache HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		response := HealthResponse{
			Status:    "healthy",
			Qdrant:    "disabled",
			Redis:     "disabled",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		if vectors != nil {
			if err := vectors.Health(ctx); err != nil {
				response.Status = "unhealthy"
				response.Qdrant = "disconnected"
			} else {
				response.Qdrant = "connected"
			}
		}

		if cache != nil {
			if err := cache.Health(ctx); err != nil {
				response.Status = "unhealthy"
				response.Redis = "disconnected"
			} else {
				response.Redis = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if response.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(response)
	}
}
