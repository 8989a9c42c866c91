// Package hub fans broadcast messages out to WebSocket subscribers. Each
// subscriber owns a bounded outbox; a slow consumer loses its oldest queued
// messages rather than stalling the pipeline.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
)

// Subscriber is one registered consumer of broadcast messages. Messages are
// delivered through Outbox; the optional wallet filter narrows delivery to
// one wallet's events.
type Subscriber struct {
	id     string
	outbox chan domain.BroadcastMessage

	mu           sync.RWMutex
	closed       bool
	walletFilter string
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Outbox returns the channel messages are delivered on. It is closed when
// the subscriber is removed from the hub.
func (s *Subscriber) Outbox() <-chan domain.BroadcastMessage { return s.outbox }

// SetWalletFilter restricts delivery to messages for the given wallet.
// Messages without a wallet in their payload are always delivered. An empty
// wallet clears the filter.
func (s *Subscriber) SetWalletFilter(wallet string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletFilter = wallet
}

// WalletFilter returns the current wallet filter, empty if unset.
func (s *Subscriber) WalletFilter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walletFilter
}

// closeOutbox marks the subscriber closed and closes its outbox. Taking the
// write lock excludes every in-flight deliver, so no send can race the
// close.
func (s *Subscriber) closeOutbox() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.outbox)
}

// wants reports whether the message passes the subscriber's wallet filter.
func (s *Subscriber) wants(msg domain.BroadcastMessage) bool {
	s.mu.RLock()
	filter := s.walletFilter
	s.mu.RUnlock()

	if filter == "" {
		return true
	}
	wallet, ok := msg.PayloadWallet()
	if !ok {
		// Wallet-less messages (pong, service notices) reach everyone.
		return true
	}
	return wallet == filter
}

// Hub tracks subscribers and broadcasts messages to them. Broadcast never
// blocks: a full outbox drops its oldest entry to make room, and the drop is
// recorded per subscriber in the metrics registry. When a signal bus is
// attached, every broadcast is also mirrored to it as JSON.
type Hub struct {
	outboxCap int
	registry  *metrics.Registry
	logger    *slog.Logger

	bus        domain.SignalBus
	busChannel string

	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool
}

// New creates a Hub whose subscribers buffer up to outboxCap messages.
func New(outboxCap int, registry *metrics.Registry, logger *slog.Logger) *Hub {
	return &Hub{
		outboxCap: outboxCap,
		registry:  registry,
		logger:    logger.With(slog.String("component", "hub")),
		subs:      make(map[string]*Subscriber),
	}
}

// AttachBus mirrors every broadcast to the given signal bus channel, letting
// external consumers follow the live feed without a WebSocket connection.
func (h *Hub) AttachBus(bus domain.SignalBus, channel string) {
	h.bus = bus
	h.busChannel = channel
}

// Subscribe registers a new subscriber and returns it. It fails with
// ErrHubClosed after Close.
func (h *Hub) Subscribe() (*Subscriber, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, domain.ErrHubClosed
	}

	sub := &Subscriber{
		id:     uuid.NewString(),
		outbox: make(chan domain.BroadcastMessage, h.outboxCap),
	}
	h.subs[sub.id] = sub

	h.registry.SetGauge("websocket_connections_total", float64(len(h.subs)))
	h.logger.Info("subscriber registered",
		slog.String("subscriber", sub.id),
		slog.Int("total", len(h.subs)),
	)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its outbox. Unknown IDs are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	sub.closeOutbox()

	h.registry.SetGauge("websocket_connections_total", float64(len(h.subs)))
	h.logger.Info("subscriber removed",
		slog.String("subscriber", id),
		slog.Int("total", len(h.subs)),
	)
}

// Broadcast delivers msg to every subscriber whose filter accepts it. The
// call never blocks; when a subscriber's outbox is full its oldest queued
// message is dropped to make room for the new one.
func (h *Hub) Broadcast(msg domain.BroadcastMessage) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.wants(msg) {
			continue
		}
		h.deliver(sub, msg)
	}

	h.mirror(msg)
}

// deliver enqueues msg on the subscriber's outbox, evicting the oldest
// queued message when the outbox is full. The read lock keeps the outbox
// open for the duration of the send: a subscriber removed between the
// broadcast snapshot and delivery is skipped rather than sent to.
func (h *Hub) deliver(sub *Subscriber, msg domain.BroadcastMessage) {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if sub.closed {
		return
	}

	select {
	case sub.outbox <- msg:
		return
	default:
	}

	// Outbox full: drop the oldest entry, then enqueue the new one.
	select {
	case <-sub.outbox:
		h.registry.Increment("hub_lag_drops_total,subscriber="+sub.id, 1)
		h.logger.Warn("subscriber lagging, dropped oldest message",
			slog.String("subscriber", sub.id),
		)
	default:
	}

	select {
	case sub.outbox <- msg:
	default:
		// A concurrent broadcast refilled the outbox; the new message
		// loses this race and is dropped instead.
		h.registry.Increment("hub_lag_drops_total,subscriber="+sub.id, 1)
	}
}

// mirror publishes msg to the attached signal bus, if any.
func (h *Hub) mirror(msg domain.BroadcastMessage) {
	if h.bus == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast for bus", slog.String("error", err.Error()))
		return
	}
	if err := h.bus.Publish(context.Background(), h.busChannel, payload); err != nil {
		h.registry.Increment("bus_publish_errors_total", 1)
		h.logger.Error("failed to mirror broadcast to bus", slog.String("error", err.Error()))
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close removes all subscribers and rejects future registrations. Broadcast
// becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.closeOutbox()
	}
	h.registry.SetGauge("websocket_connections_total", 0)
	h.logger.Info("hub closed")
}
