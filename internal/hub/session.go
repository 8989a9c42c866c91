package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware in front of
		// the handler.
		return true
	},
}

// session couples one WebSocket connection to one hub subscriber. Either
// pump exiting tears the whole session down.
type session struct {
	server *SessionServer
	conn   *websocket.Conn
	sub    *Subscriber
}

// SessionServer upgrades HTTP requests into WebSocket sessions backed by
// hub subscribers.
type SessionServer struct {
	hub      *Hub
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewSessionServer creates a SessionServer attached to hub.
func NewSessionServer(hub *Hub, registry *metrics.Registry, logger *slog.Logger) *SessionServer {
	return &SessionServer{
		hub:      hub,
		registry: registry,
		logger:   logger.With(slog.String("component", "ws")),
	}
}

// HandleWS upgrades the request and runs the session pumps.
// GET /ws
func (s *SessionServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub, err := s.hub.Subscribe()
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	// A wallet filter can be set at connect time instead of via a
	// SubscribeWallet message.
	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		sub.SetWalletFilter(wallet)
	}

	s.registry.Increment("websocket_sessions_total", 1)

	sess := &session{server: s, conn: conn, sub: sub}
	go sess.writePump()
	go sess.readPump()
}

// readPump reads client control messages until the connection drops. It is
// responsible for unsubscribing, which closes the outbox and stops the
// write pump.
func (s *session) readPump() {
	defer func() {
		s.server.hub.Unsubscribe(s.sub.ID())
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.server.logger.Warn("unexpected close",
					slog.String("subscriber", s.sub.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg domain.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			// Malformed frames are ignored, not fatal.
			s.server.logger.Warn("malformed client message",
				slog.String("subscriber", s.sub.ID()),
			)
			continue
		}
		s.handleClientMessage(msg)
	}
}

// handleClientMessage applies one control message from the client.
func (s *session) handleClientMessage(msg domain.ClientMessage) {
	switch msg.Type {
	case domain.ClientSubscribeWallet:
		if msg.Wallet == "" {
			return
		}
		s.sub.SetWalletFilter(msg.Wallet)
		s.server.logger.Debug("wallet filter set",
			slog.String("subscriber", s.sub.ID()),
			slog.String("wallet", msg.Wallet),
		)
	case domain.ClientUnsubscribeWallet:
		s.sub.SetWalletFilter("")
	case domain.ClientPing:
		// Pong travels through the broadcast path like any other message.
		s.server.hub.Broadcast(domain.NewBroadcast(domain.MessagePong, map[string]any{}))
	default:
		s.server.logger.Warn("unknown client message type",
			slog.String("subscriber", s.sub.ID()),
			slog.String("type", msg.Type),
		)
	}
}

// writePump serializes outbox messages to the connection as JSON text
// frames and keeps the connection alive with periodic pings. It exits when
// the outbox is closed or a write fails.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.sub.Outbox():
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the outbox.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.server.logger.Error("failed to encode broadcast",
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
