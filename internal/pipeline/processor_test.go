package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/rules"
	"github.com/solfolio/backend/internal/store/memory"
)

type captureHub struct {
	mu       sync.Mutex
	messages []domain.BroadcastMessage
}

func (h *captureHub) Broadcast(msg domain.BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
}

func (h *captureHub) byType(messageType string) []domain.BroadcastMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.BroadcastMessage
	for _, msg := range h.messages {
		if msg.MessageType == messageType {
			out = append(out, msg)
		}
	}
	return out
}

func newTestProcessor(t *testing.T) (*Processor, *captureHub, *memory.AlertStore, *metrics.Registry) {
	t.Helper()
	hub := &captureHub{}
	store := memory.NewAlertStore(100)
	registry := metrics.NewRegistry()
	engine := rules.NewEngine(rules.DefaultRules(0.3, 10_000, 0.01))
	p := NewProcessor(engine, hub, NewPositionBook(), store, registry, discardLogger())
	return p, hub, store, registry
}

func TestProcessorBroadcastsPositionUpdates(t *testing.T) {
	p, hub, _, _ := newTestProcessor(t)
	ctx := context.Background()

	events := []domain.Event{
		positionUpdate("W", "SOL", 10),
		positionUpdate("W", "SOL", 5),
	}
	require.NoError(t, p.HandleWalletEvents(ctx, "W", events))

	updates := hub.byType(domain.MessagePositionUpdated)
	require.Len(t, updates, 2)
	require.Equal(t, "W", updates[1].Payload["wallet"])
	require.Equal(t, 5.0, updates[1].Payload["pnl_delta"])
	// Running total reflects both deltas.
	require.Equal(t, 15.0, updates[1].Payload["pnl"])
}

func TestProcessorEmitsConcentrationAlert(t *testing.T) {
	p, hub, store, registry := newTestProcessor(t)
	ctx := context.Background()

	// Threshold 0.3 scales to 300; a 450 swing crosses it.
	require.NoError(t, p.HandleWalletEvents(ctx, "W", []domain.Event{
		positionUpdate("W", "SOL", 450),
	}))

	alerts := hub.byType(domain.MessageRiskAlert)
	require.Len(t, alerts, 1)
	require.Equal(t, "W", alerts[0].Payload["wallet"])
	require.Equal(t, "high", alerts[0].Payload["severity"])

	stored, err := store.ListRecent(ctx, "W", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, alerts[0].Payload["id"], stored[0].ID)
	require.Equal(t, uint64(1), registry.Counter("alerts_generated_total"))
}

func TestProcessorEmitsLargeTradeAlert(t *testing.T) {
	p, hub, store, _ := newTestProcessor(t)
	ctx := context.Background()

	swap := domain.SwapExecuted{
		WalletID:   "W",
		InputMint:  "SOL",
		OutputMint: "USDC",
		Amount:     1_500_000,
		TS:         time.Now().UTC(),
	}
	require.NoError(t, p.HandleWalletEvents(ctx, "W", []domain.Event{swap}))

	alerts := hub.byType(domain.MessageRiskAlert)
	require.Len(t, alerts, 1)
	require.Equal(t, "Large trade of $15000 detected", alerts[0].Payload["message"])
	require.Equal(t, "medium", alerts[0].Payload["severity"])

	stored, err := store.ListRecent(ctx, "W", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestProcessorBelowThresholdsStaysQuiet(t *testing.T) {
	p, hub, store, _ := newTestProcessor(t)
	ctx := context.Background()

	require.NoError(t, p.HandleWalletEvents(ctx, "W", []domain.Event{
		positionUpdate("W", "SOL", 250),
		domain.SwapExecuted{WalletID: "W", InputMint: "SOL", OutputMint: "USDC", Amount: 500_000, TS: time.Now().UTC()},
	}))

	require.Empty(t, hub.byType(domain.MessageRiskAlert))
	require.Equal(t, 0, store.Len())
}

func TestProcessorForwardsExternalAlerts(t *testing.T) {
	p, hub, store, _ := newTestProcessor(t)
	ctx := context.Background()

	ts := time.Now().UTC().Add(-time.Minute)
	ev := domain.RiskAlertTriggered{
		WalletID:  "W",
		AlertKind: "liquidation_risk",
		Severity:  domain.SeverityCritical,
		Message:   "margin call imminent",
		TS:        ts,
	}
	require.NoError(t, p.HandleWalletEvents(ctx, "W", []domain.Event{ev}))

	alerts := hub.byType(domain.MessageRiskAlert)
	require.Len(t, alerts, 1)
	require.Equal(t, "critical", alerts[0].Payload["severity"])
	require.Equal(t, "margin call imminent", alerts[0].Payload["message"])

	stored, err := store.ListRecent(ctx, "W", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	// External alerts keep the originating event timestamp.
	require.True(t, stored[0].Timestamp.Equal(ts))
	require.Equal(t, "external", stored[0].Metadata["source"])
	require.Equal(t, "liquidation_risk", stored[0].Metadata["alert_kind"])
}

func TestProcessorStopsOnCancelledContext(t *testing.T) {
	p, hub, _, _ := newTestProcessor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.HandleWalletEvents(ctx, "W", []domain.Event{positionUpdate("W", "SOL", 1)})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, hub.byType(domain.MessagePositionUpdated))
}
