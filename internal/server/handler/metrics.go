package handler

import (
	"log/slog"
	"net/http"

	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/pipeline"
)

// MetricsHandler exposes the metrics registry and queue counters.
type MetricsHandler struct {
	registry *metrics.Registry
	queue    *pipeline.EventQueue
	logger   *slog.Logger
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(registry *metrics.Registry, queue *pipeline.EventQueue, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		registry: registry,
		queue:    queue,
		logger:   logger,
	}
}

// GetMetrics returns a snapshot of all counters and gauges plus the queue
// state. Counter and gauge values are flattened to plain numbers keyed by
// metric name.
// GET /metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot := h.registry.Snapshot()

	flat := make(map[string]any, len(snapshot))
	for name, value := range snapshot {
		switch value.Kind {
		case metrics.KindCounter:
			flat[name] = value.Counter
		case metrics.KindGauge:
			flat[name] = value.Gauge
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": flat,
		"queue":   h.queue.Metrics(),
	})
}
