package domain

import (
	"context"
	"io"
	"time"
)

// AlertStore persists risk alerts and supports retention queries. The
// default implementation is in-memory; a Postgres implementation can be
// wired in via configuration.
type AlertStore interface {
	// Insert stores a new alert.
	Insert(ctx context.Context, alert RiskAlert) error

	// ListRecent returns up to limit alerts, newest first. When wallet is
	// non-empty only that wallet's alerts are returned.
	ListRecent(ctx context.Context, wallet string, limit int) ([]RiskAlert, error)

	// ListBefore returns all alerts with a timestamp strictly before cutoff,
	// oldest first.
	ListBefore(ctx context.Context, cutoff time.Time) ([]RiskAlert, error)

	// PurgeBefore deletes alerts older than cutoff and returns the number
	// removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// SignalBus publishes raw payloads to named channels so out-of-process
// consumers (other backend nodes, dashboards) can observe hub traffic.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
