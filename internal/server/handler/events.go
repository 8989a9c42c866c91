package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/ingest"
	"github.com/solfolio/backend/internal/metrics"
)

// EventsHandler is the generic producer boundary: any canonical raw event
// can be pushed into the pipeline through it.
type EventsHandler struct {
	producer *ingest.Producer
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(producer *ingest.Producer, registry *metrics.Registry, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		producer: producer,
		registry: registry,
		logger:   logger,
	}
}

// PostEvent accepts a raw event, normalizes it, and enqueues it.
// POST /api/events
func (h *EventsHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawEvent
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		record(h.registry, "post_event", http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ev, err := h.producer.Produce(r.Context(), raw)
	if err != nil {
		status := produceErrorStatus(err)
		record(h.registry, "post_event", status)
		writeError(w, status, err.Error())
		return
	}

	record(h.registry, "post_event", http.StatusAccepted)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"kind":   ev.Kind(),
		"wallet": ev.Wallet(),
	})
}

// produceErrorStatus maps producer failures onto HTTP statuses: malformed
// input is the client's fault, backpressure and shutdown are ours.
func produceErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, domain.ErrSendTimeout),
		errors.Is(err, domain.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
