package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check probes one backing dependency (database, cache, object store).
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// HealthHandler serves the health-check endpoint. The process itself being
// able to answer is the liveness signal; configured dependency checks are
// reported alongside without failing the response.
type HealthHandler struct {
	startedAt time.Time
	checks    []Check
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler running the given dependency
// checks on every request.
func NewHealthHandler(checks []Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		startedAt: time.Now().UTC(),
		checks:    checks,
		logger:    logger,
	}
}

// HealthCheck responds with the process status and per-dependency results.
// Status is "degraded" when any dependency probe fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(r.Context()); err != nil {
			status = "degraded"
			deps[check.Name] = err.Error()
			h.logger.Warn("dependency check failed",
				slog.String("dependency", check.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		deps[check.Name] = "ok"
	}

	resp := map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if len(deps) > 0 {
		resp["dependencies"] = deps
	}
	writeJSON(w, http.StatusOK, resp)
}
