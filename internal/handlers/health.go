package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/magiclink/pkg/http"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse represents the health check body
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health returns a handler that pings the database with a short deadline
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Database: "down"})
			return
		}

		pkghttp.WriteJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Database: "up"})
	}
}
