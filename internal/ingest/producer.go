package ingest

import (
	"context"
	"log/slog"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/pipeline"
)

// Producer is the boundary through which raw events enter the pipeline. It
// normalizes, counts, and enqueues; every producer in the process goes
// through it so the normalization metrics stay complete.
type Producer struct {
	queue      *pipeline.EventQueue
	normalizer *Normalizer
	registry   *metrics.Registry
	logger     *slog.Logger
}

// NewProducer creates a Producer feeding the given queue.
func NewProducer(queue *pipeline.EventQueue, normalizer *Normalizer, registry *metrics.Registry, logger *slog.Logger) *Producer {
	return &Producer{
		queue:      queue,
		normalizer: normalizer,
		registry:   registry,
		logger:     logger.With(slog.String("component", "producer")),
	}
}

// Produce normalizes raw and enqueues the result. Normalization failures
// are counted and returned; enqueue failures (full, timeout, closed) pass
// through from the queue.
func (p *Producer) Produce(ctx context.Context, raw domain.RawEvent) (domain.Event, error) {
	ev, err := p.normalizer.Normalize(raw)
	if err != nil {
		p.registry.Increment("normalization_errors_total", 1)
		p.logger.Warn("dropping malformed event",
			slog.String("kind", raw.Kind),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if err := p.queue.Send(ctx, ev); err != nil {
		return nil, err
	}

	p.registry.Increment("events_normalized_total", 1)
	return ev, nil
}
