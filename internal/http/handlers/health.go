package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck pings an optional dependency such as Redis or Postgres.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /health. It answers 503 when any check fails.
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a health handler. checks may be nil.
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"status": "ok"}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			response[name] = "unavailable"
			response["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response[name] = "ok"
	}
	writeJSON(w, status, response)
}
