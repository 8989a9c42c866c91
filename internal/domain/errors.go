package domain

import "errors"

var (
	// ErrQueueFull is returned when the event queue is at capacity at the
	// moment of the send.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when sending to or after draining a closed
	// queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrSendTimeout is returned when a send could not be accepted before
	// its deadline.
	ErrSendTimeout = errors.New("send operation timed out")

	// ErrHubClosed is returned when subscribing to a hub that has shut down.
	ErrHubClosed = errors.New("hub is closed")
)
