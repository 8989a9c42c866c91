package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
)

type walletCall struct {
	wallet string
	events []domain.Event
}

// captureHandler records every per-wallet dispatch and signals each call on
// a channel so tests can wait without sleeping.
type captureHandler struct {
	mu    sync.Mutex
	calls []walletCall
	seen  chan struct{}
	fail  func(wallet string) error
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{seen: make(chan struct{}, 64)}
}

func (h *captureHandler) HandleWalletEvents(_ context.Context, wallet string, events []domain.Event) error {
	h.mu.Lock()
	h.calls = append(h.calls, walletCall{wallet: wallet, events: events})
	h.mu.Unlock()
	h.seen <- struct{}{}

	if h.fail != nil {
		return h.fail(wallet)
	}
	return nil
}

func (h *captureHandler) snapshot() []walletCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]walletCall(nil), h.calls...)
}

func (h *captureHandler) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for wallet call %d of %d", i+1, n)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBatcherGroupsByWallet(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue(10, time.Second)
	handler := newCaptureHandler()
	registry := metrics.NewRegistry()
	b := NewMicroBatcher(q, handler, 3, 100*time.Millisecond, registry, discardLogger())

	require.NoError(t, q.Send(ctx, testEvent("W", 1)))
	require.NoError(t, q.Send(ctx, testEvent("X", 2)))
	require.NoError(t, q.Send(ctx, testEvent("W", 3)))
	q.Close()

	require.NoError(t, b.Run(ctx))

	byWallet := map[string][]float64{}
	for _, call := range handler.snapshot() {
		for _, ev := range call.events {
			byWallet[call.wallet] = append(byWallet[call.wallet], ev.(domain.PositionUpdate).PnLDelta)
		}
	}

	// W's two events arrive in a single call, in enqueue order.
	require.Equal(t, []float64{1, 3}, byWallet["W"])
	require.Equal(t, []float64{2}, byWallet["X"])
	require.Equal(t, uint64(1), registry.Counter("batches_processed_total"))
}

func TestBatcherDispatchesPartialBatchOnTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewEventQueue(10, time.Second)
	handler := newCaptureHandler()
	registry := metrics.NewRegistry()
	b := NewMicroBatcher(q, handler, 10, 50*time.Millisecond, registry, discardLogger())

	require.NoError(t, q.Send(ctx, testEvent("W", 1)))
	require.NoError(t, q.Send(ctx, testEvent("W", 2)))

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// The window elapses well before batch size 10 is reached.
	handler.waitCalls(t, 1)

	calls := handler.snapshot()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].events, 2)
	require.Equal(t, 2.0, registry.Gauge("last_batch_size"))

	q.Close()
	require.NoError(t, <-done)
}

func TestBatcherFullBatchTriggersDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewEventQueue(10, time.Second)
	handler := newCaptureHandler()
	registry := metrics.NewRegistry()
	b := NewMicroBatcher(q, handler, 3, 10*time.Second, registry, discardLogger())

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Send(ctx, testEvent("W", float64(i))))
	}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	// With a 10s window the dispatch can only come from the size trigger.
	handler.waitCalls(t, 1)

	calls := handler.snapshot()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].events, 3)

	q.Close()
	require.NoError(t, <-done)
}

func TestBatcherDrainsQueueOnClose(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue(100, time.Second)
	handler := newCaptureHandler()
	registry := metrics.NewRegistry()
	b := NewMicroBatcher(q, handler, 4, 50*time.Millisecond, registry, discardLogger())

	for i := 1; i <= 10; i++ {
		require.NoError(t, q.Send(ctx, testEvent("W", float64(i))))
	}
	q.Close()

	require.NoError(t, b.Run(ctx))

	var got []float64
	for _, call := range handler.snapshot() {
		for _, ev := range call.events {
			got = append(got, ev.(domain.PositionUpdate).PnLDelta)
		}
	}
	require.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
	require.Equal(t, uint64(10), q.Metrics().TotalProcessed)
}

func TestBatcherIsolatesWalletFailures(t *testing.T) {
	ctx := context.Background()
	q := NewEventQueue(10, time.Second)
	handler := newCaptureHandler()
	handler.fail = func(wallet string) error {
		if wallet == "BAD" {
			return errors.New("handler exploded")
		}
		return nil
	}
	registry := metrics.NewRegistry()
	b := NewMicroBatcher(q, handler, 2, 50*time.Millisecond, registry, discardLogger())

	require.NoError(t, q.Send(ctx, testEvent("BAD", 1)))
	require.NoError(t, q.Send(ctx, testEvent("GOOD", 2)))
	q.Close()

	require.NoError(t, b.Run(ctx))

	wallets := map[string]bool{}
	for _, call := range handler.snapshot() {
		wallets[call.wallet] = true
	}
	require.True(t, wallets["GOOD"])
	require.True(t, wallets["BAD"])
	require.Equal(t, uint64(1), registry.Counter("wallet_handler_errors_total"))
}

func TestBatcherStopsOnContextCancel(t *testing.T) {
	q := NewEventQueue(10, time.Second)
	handler := newCaptureHandler()
	registry := metrics.NewRegistry()
	b := NewMicroBatcher(q, handler, 10, 20*time.Millisecond, registry, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
