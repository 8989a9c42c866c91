// Package domain defines the canonical types shared across the portfolio
// backend: pipeline events, risk alerts, broadcast messages, and the
// interfaces implemented by storage and messaging adapters.
package domain

import "time"

// MaxIDBytes is the maximum length of a wallet or mint identifier.
const MaxIDBytes = 128

// Event kinds as they appear on the producer wire.
const (
	KindPositionUpdate     = "position_update"
	KindSwapExecuted       = "swap_executed"
	KindRiskAlertTriggered = "risk_alert_triggered"
)

// Event is a canonical pipeline event. The concrete variants are
// PositionUpdate, SwapExecuted, and RiskAlertTriggered; consumers dispatch
// on the concrete type. Every variant carries a non-empty wallet and a
// timestamp no earlier than the source event.
type Event interface {
	// Wallet returns the wallet the event belongs to.
	Wallet() string
	// Timestamp returns the event's canonical timestamp.
	Timestamp() time.Time
	// Kind returns the wire name of the event variant.
	Kind() string
}

// PositionUpdate records a PnL change for a single wallet/mint position.
type PositionUpdate struct {
	WalletID string    `json:"wallet"`
	Mint     string    `json:"mint"`
	PnLDelta float64   `json:"pnl_delta"`
	TS       time.Time `json:"ts"`
}

func (e PositionUpdate) Wallet() string       { return e.WalletID }
func (e PositionUpdate) Timestamp() time.Time { return e.TS }
func (e PositionUpdate) Kind() string         { return KindPositionUpdate }

// SwapExecuted records a completed token swap. Amount is in the smallest
// unit of the input mint.
type SwapExecuted struct {
	WalletID   string    `json:"wallet"`
	InputMint  string    `json:"input_mint"`
	OutputMint string    `json:"output_mint"`
	Amount     uint64    `json:"amount"`
	TS         time.Time `json:"ts"`
}

func (e SwapExecuted) Wallet() string       { return e.WalletID }
func (e SwapExecuted) Timestamp() time.Time { return e.TS }
func (e SwapExecuted) Kind() string         { return KindSwapExecuted }

// RiskAlertTriggered carries an alert raised outside the rules engine, for
// example by an on-chain program log. It is forwarded to subscribers without
// re-evaluation.
type RiskAlertTriggered struct {
	WalletID  string    `json:"wallet"`
	AlertKind string    `json:"alert_kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	TS        time.Time `json:"ts"`
}

func (e RiskAlertTriggered) Wallet() string       { return e.WalletID }
func (e RiskAlertTriggered) Timestamp() time.Time { return e.TS }
func (e RiskAlertTriggered) Kind() string         { return KindRiskAlertTriggered }

// RawEvent is the wire form pushed by producers before normalization.
// Fields are the kind-specific payload; TS is an optional RFC-3339 string.
type RawEvent struct {
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields"`
	TS     string         `json:"ts,omitempty"`
}
