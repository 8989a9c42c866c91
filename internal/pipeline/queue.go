// Package pipeline implements the event processing core: the bounded MPSC
// queue, the micro-batcher that groups events by wallet, and the per-wallet
// processor that drives rules evaluation and broadcast fan-out.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/solfolio/backend/internal/domain"
)

// QueueMetrics is a consistent-at-observation snapshot of queue state.
type QueueMetrics struct {
	TotalReceived  uint64 `json:"total_received"`
	TotalProcessed uint64 `json:"total_processed"`
	CurrentSize    int    `json:"current_size"`
	Capacity       int    `json:"capacity"`
}

// EventQueue is a multi-producer single-consumer queue with a fixed
// capacity. Sends fail fast with ErrQueueFull when the queue is at capacity
// at the moment of the call, time out after the configured send deadline,
// and fail with ErrQueueClosed once Close has been called. FIFO order holds
// across all producers.
type EventQueue struct {
	ch          chan domain.Event
	done        chan struct{}
	capacity    int
	sendTimeout time.Duration

	closeOnce sync.Once

	totalReceived  atomic.Uint64
	totalProcessed atomic.Uint64
}

// NewEventQueue creates a queue with the given capacity and producer send
// deadline.
func NewEventQueue(capacity int, sendTimeout time.Duration) *EventQueue {
	return &EventQueue{
		ch:          make(chan domain.Event, capacity),
		done:        make(chan struct{}),
		capacity:    capacity,
		sendTimeout: sendTimeout,
	}
}

// Send enqueues an event. It returns ErrQueueFull immediately when the
// queue is at capacity, ErrQueueClosed when the queue has been closed, and
// ErrSendTimeout when the event could not be accepted before the send
// deadline. Producers may call Send concurrently.
func (q *EventQueue) Send(ctx context.Context, ev domain.Event) error {
	select {
	case <-q.done:
		return domain.ErrQueueClosed
	default:
	}

	if len(q.ch) >= q.capacity {
		return domain.ErrQueueFull
	}

	timer := time.NewTimer(q.sendTimeout)
	defer timer.Stop()

	select {
	case q.ch <- ev:
		q.totalReceived.Add(1)
		return nil
	case <-q.done:
		return domain.ErrQueueClosed
	case <-timer.C:
		return domain.ErrSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv dequeues the next event, waiting until one is available, the context
// is done, or the queue is closed and drained. After close, buffered events
// are still delivered; ErrQueueClosed is returned only once the queue is
// empty.
func (q *EventQueue) Recv(ctx context.Context) (domain.Event, error) {
	// Fast path: deliver buffered events even after close.
	select {
	case ev := <-q.ch:
		q.totalProcessed.Add(1)
		return ev, nil
	default:
	}

	select {
	case ev := <-q.ch:
		q.totalProcessed.Add(1)
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		// Closed while waiting; drain anything that raced in.
		select {
		case ev := <-q.ch:
			q.totalProcessed.Add(1)
			return ev, nil
		default:
			return nil, domain.ErrQueueClosed
		}
	}
}

// Close marks the queue closed. Pending events remain receivable; new sends
// fail with ErrQueueClosed. Safe to call multiple times.
func (q *EventQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Closed reports whether Close has been called.
func (q *EventQueue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Metrics returns a snapshot of the queue counters. The values are
// individually accurate but not read under a single lock.
func (q *EventQueue) Metrics() QueueMetrics {
	return QueueMetrics{
		TotalReceived:  q.totalReceived.Load(),
		TotalProcessed: q.totalProcessed.Load(),
		CurrentSize:    len(q.ch),
		Capacity:       q.capacity,
	}
}
