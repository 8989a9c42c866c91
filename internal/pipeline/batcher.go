package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
)

// WalletHandler processes all events of one wallet from a single batch, in
// arrival order.
type WalletHandler interface {
	HandleWalletEvents(ctx context.Context, wallet string, events []domain.Event) error
}

// MicroBatcher owns the queue's single consumer side. It collects events
// until the batch size or the batch window is reached, groups them by
// wallet, and fans the groups out as parallel per-wallet tasks. The next
// batch starts only after every task of the current batch has finished,
// which bounds in-flight work to one batch.
type MicroBatcher struct {
	queue        *EventQueue
	handler      WalletHandler
	batchSize    int
	batchTimeout time.Duration
	registry     *metrics.Registry
	logger       *slog.Logger
}

// NewMicroBatcher creates a MicroBatcher reading from queue and dispatching
// to handler.
func NewMicroBatcher(
	queue *EventQueue,
	handler WalletHandler,
	batchSize int,
	batchTimeout time.Duration,
	registry *metrics.Registry,
	logger *slog.Logger,
) *MicroBatcher {
	return &MicroBatcher{
		queue:        queue,
		handler:      handler,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		registry:     registry,
		logger:       logger.With(slog.String("component", "batcher")),
	}
}

// Run processes batches until the queue is closed and drained. A partial
// batch collected when the close arrives is still dispatched before Run
// returns. Run returns ctx.Err() if the context is cancelled while the
// queue is still open.
func (b *MicroBatcher) Run(ctx context.Context) error {
	b.logger.Info("starting micro-batcher",
		slog.Int("batch_size", b.batchSize),
		slog.Duration("batch_timeout", b.batchTimeout),
	)

	for {
		batch, drained := b.collect(ctx)

		if len(batch) > 0 {
			b.processBatch(ctx, batch)
		}

		if drained {
			b.logger.Info("event queue closed, shutting down batcher")
			return nil
		}
		if len(batch) == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// collect gathers up to batchSize events within one batch window. It
// returns drained=true when the queue is closed and empty.
func (b *MicroBatcher) collect(ctx context.Context) (batch []domain.Event, drained bool) {
	deadline, cancel := context.WithTimeout(ctx, b.batchTimeout)
	defer cancel()

	for len(batch) < b.batchSize {
		ev, err := b.queue.Recv(deadline)
		if err != nil {
			if errors.Is(err, domain.ErrQueueClosed) {
				return batch, true
			}
			// Batch window elapsed or shutdown requested.
			return batch, false
		}
		batch = append(batch, ev)
	}
	return batch, false
}

// processBatch groups the batch by wallet, preserving per-wallet arrival
// order, and runs one task per wallet. A task failure is logged with its
// wallet and does not affect sibling tasks or the batcher loop.
func (b *MicroBatcher) processBatch(ctx context.Context, batch []domain.Event) {
	byWallet := make(map[string][]domain.Event)
	for _, ev := range batch {
		byWallet[ev.Wallet()] = append(byWallet[ev.Wallet()], ev)
	}

	b.logger.Debug("processing batch",
		slog.Int("events", len(batch)),
		slog.Int("wallets", len(byWallet)),
	)

	g := new(errgroup.Group)
	for wallet, events := range byWallet {
		g.Go(func() error {
			if err := b.handler.HandleWalletEvents(ctx, wallet, events); err != nil {
				b.registry.Increment("wallet_handler_errors_total", 1)
				b.logger.Error("wallet batch failed",
					slog.String("wallet", wallet),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.registry.Increment("batches_processed_total", 1)
	b.registry.SetGauge("last_batch_size", float64(len(batch)))
}
