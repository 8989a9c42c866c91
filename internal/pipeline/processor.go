package pipeline

import (
	"context"
	"log/slog"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/rules"
)

// Broadcaster fans a message out to live subscribers. Implemented by the
// hub; broadcast never blocks the caller.
type Broadcaster interface {
	Broadcast(msg domain.BroadcastMessage)
}

// Processor is the per-wallet event handler invoked by the micro-batcher.
// It updates position aggregates, runs the rules engine, persists alerts,
// and forwards alerts and position updates to the hub. Failures are
// recorded in metrics and logged; they never propagate past the handler.
type Processor struct {
	engine   *rules.Engine
	hub      Broadcaster
	book     *PositionBook
	alerts   domain.AlertStore
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewProcessor creates a Processor with all required collaborators.
func NewProcessor(
	engine *rules.Engine,
	hub Broadcaster,
	book *PositionBook,
	alerts domain.AlertStore,
	registry *metrics.Registry,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		engine:   engine,
		hub:      hub,
		book:     book,
		alerts:   alerts,
		registry: registry,
		logger:   logger.With(slog.String("component", "processor")),
	}
}

// HandleWalletEvents processes one wallet's slice of a batch in arrival
// order. It returns an error only when the context is cancelled mid-batch.
func (p *Processor) HandleWalletEvents(ctx context.Context, wallet string, events []domain.Event) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch ev := ev.(type) {
		case domain.PositionUpdate:
			p.handlePositionUpdate(ctx, ev)
		case domain.SwapExecuted:
			p.evaluate(ctx, ev)
		case domain.RiskAlertTriggered:
			p.forwardExternalAlert(ctx, ev)
		default:
			p.registry.Increment("unknown_event_kinds_total", 1)
			p.logger.Warn("dropping event of unknown kind",
				slog.String("wallet", wallet),
				slog.String("kind", ev.Kind()),
			)
		}
	}
	return nil
}

func (p *Processor) handlePositionUpdate(ctx context.Context, ev domain.PositionUpdate) {
	totalPnL := p.book.ApplyUpdate(ev)

	p.hub.Broadcast(domain.NewBroadcast(domain.MessagePositionUpdated, map[string]any{
		"wallet":    ev.WalletID,
		"mint":      ev.Mint,
		"pnl_delta": ev.PnLDelta,
		"pnl":       totalPnL,
	}))
	p.registry.Increment("position_updates_total", 1)

	p.evaluate(ctx, ev)
}

// evaluate runs the rules engine and fans out any resulting alerts.
func (p *Processor) evaluate(ctx context.Context, ev domain.Event) {
	for _, alert := range p.engine.Evaluate(ev) {
		p.emitAlert(ctx, alert)
	}
}

// forwardExternalAlert converts an externally raised alert event into a
// RiskAlert and fans it out without rule evaluation.
func (p *Processor) forwardExternalAlert(ctx context.Context, ev domain.RiskAlertTriggered) {
	alert := domain.NewRiskAlert(ev.WalletID, ev.Severity, ev.Message, map[string]any{
		"alert_kind": ev.AlertKind,
		"source":     "external",
	})
	alert.Timestamp = ev.TS

	p.emitAlert(ctx, alert)
}

// emitAlert stores the alert and broadcasts it to subscribers. A store
// failure is counted and logged; the broadcast still happens.
func (p *Processor) emitAlert(ctx context.Context, alert domain.RiskAlert) {
	if err := p.alerts.Insert(ctx, alert); err != nil {
		p.registry.Increment("alert_store_errors_total", 1)
		p.logger.Error("failed to store alert",
			slog.String("wallet", alert.Wallet),
			slog.String("error", err.Error()),
		)
	}

	p.hub.Broadcast(domain.NewBroadcast(domain.MessageRiskAlert, map[string]any{
		"id":       alert.ID,
		"wallet":   alert.Wallet,
		"severity": alert.Severity.String(),
		"message":  alert.Message,
	}))

	p.registry.Increment("alerts_generated_total", 1)
	if alert.IsHighPriority() {
		p.logger.Warn("risk alert", slog.String("summary", alert.Summary()))
	}
}
