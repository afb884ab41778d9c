package handlers

import (
	"context"
	"net/http"
	"time"

	"flower-storefront/internal/models"
)

// Pinger checks backend reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of live sessions
type SessionCounter interface {
	ActiveCount() int
}

// HealthHandler handles health check requests
type HealthHandler struct {
	backend  Pinger
	sessions SessionCounter
	version  string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(backend Pinger, sessions SessionCounter, version string) *HealthHandler {
	return &HealthHandler{backend: backend, sessions: sessions, version: version}
}

// Health handles GET /health. An unreachable backend reports "degraded" with
// status 200 since carts keep working locally.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := models.HealthResponse{
		Status:    "healthy",
		Service:   "flower-storefront",
		Version:   h.version,
		Backend:   "up",
		Timestamp: time.Now().UTC(),
	}
	if err := h.backend.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Backend = "down"
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.ActiveCount()
	}

	writeJSONResponse(w, http.StatusOK, resp)
}
