package domain

import "time"

// Broadcast message types sent to subscribers.
const (
	MessagePositionUpdated = "position_updated"
	MessageSwapExecuted    = "swap_executed"
	MessageRiskAlert       = "risk_alert"
	MessagePong            = "pong"
)

// BroadcastMessage is the envelope fanned out to hub subscribers.
type BroadcastMessage struct {
	MessageType string         `json:"message_type"`
	Payload     map[string]any `json:"payload"`
	Timestamp   time.Time      `json:"timestamp"`
}

// NewBroadcast builds a BroadcastMessage stamped with the current time.
func NewBroadcast(messageType string, payload map[string]any) BroadcastMessage {
	if payload == nil {
		payload = map[string]any{}
	}
	return BroadcastMessage{
		MessageType: messageType,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	}
}

// PayloadWallet returns the "wallet" field of the payload, if present.
// The hub uses it to apply per-subscriber wallet filters.
func (m BroadcastMessage) PayloadWallet() (string, bool) {
	v, ok := m.Payload["wallet"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Client control message types received from subscribers.
const (
	ClientSubscribeWallet   = "SubscribeWallet"
	ClientUnsubscribeWallet = "UnsubscribeWallet"
	ClientPing              = "Ping"
)

// ClientMessage is a control frame sent by a connected subscriber.
type ClientMessage struct {
	Type   string `json:"type"`
	Wallet string `json:"wallet,omitempty"`
}
