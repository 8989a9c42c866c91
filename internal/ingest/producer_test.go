package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/pipeline"
)

func newTestProducer(capacity int) (*Producer, *pipeline.EventQueue, *metrics.Registry) {
	registry := metrics.NewRegistry()
	queue := pipeline.NewEventQueue(capacity, 100*time.Millisecond)
	logger := slog.New(slog.DiscardHandler)
	return NewProducer(queue, NewNormalizer(), registry, logger), queue, registry
}

func TestProducerEnqueuesNormalizedEvent(t *testing.T) {
	producer, queue, registry := newTestProducer(10)
	ctx := context.Background()

	ev, err := producer.Produce(ctx, domain.RawEvent{
		Kind:   domain.KindPositionUpdate,
		Fields: map[string]any{"wallet": "W", "mint": "SOL", "pnl_delta": 5.0},
	})
	require.NoError(t, err)
	require.Equal(t, "W", ev.Wallet())
	require.Equal(t, uint64(1), registry.Counter("events_normalized_total"))

	got, err := queue.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, ev, got)
}

func TestProducerCountsNormalizationFailures(t *testing.T) {
	producer, queue, registry := newTestProducer(10)

	_, err := producer.Produce(context.Background(), domain.RawEvent{
		Kind:   "price_tick",
		Fields: map[string]any{},
	})
	require.Error(t, err)
	require.Equal(t, uint64(1), registry.Counter("normalization_errors_total"))
	require.Equal(t, uint64(0), registry.Counter("events_normalized_total"))
	require.Equal(t, 0, queue.Metrics().CurrentSize)
}

func TestProducerSurfacesBackpressure(t *testing.T) {
	producer, _, registry := newTestProducer(1)
	ctx := context.Background()

	raw := domain.RawEvent{
		Kind:   domain.KindPositionUpdate,
		Fields: map[string]any{"wallet": "W", "mint": "SOL", "pnl_delta": 1.0},
	}
	_, err := producer.Produce(ctx, raw)
	require.NoError(t, err)

	_, err = producer.Produce(ctx, raw)
	require.ErrorIs(t, err, domain.ErrQueueFull)
	// The event normalized fine; only the enqueue failed.
	require.Equal(t, uint64(1), registry.Counter("events_normalized_total"))
	require.Equal(t, uint64(0), registry.Counter("normalization_errors_total"))
}
