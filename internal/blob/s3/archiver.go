package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
)

// AlertArchiver moves alerts past their retention window out of the alert
// store: it serializes them to JSONL, uploads the file to S3, and only then
// purges them from the store. An upload failure leaves the store untouched
// so the next cycle retries the same records.
type AlertArchiver struct {
	writer    domain.BlobWriter
	alerts    domain.AlertStore
	retention time.Duration
	interval  time.Duration
	registry  *metrics.Registry
	logger    *slog.Logger
}

// NewAlertArchiver creates an AlertArchiver that archives alerts older than
// retention every interval.
func NewAlertArchiver(
	writer domain.BlobWriter,
	alerts domain.AlertStore,
	retention time.Duration,
	interval time.Duration,
	registry *metrics.Registry,
	logger *slog.Logger,
) *AlertArchiver {
	return &AlertArchiver{
		writer:    writer,
		alerts:    alerts,
		retention: retention,
		interval:  interval,
		registry:  registry,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run archives expired alerts on a fixed interval until the context is
// cancelled. A failed cycle is logged and retried on the next tick.
func (a *AlertArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("starting alert archiver",
		slog.Duration("retention", a.retention),
		slog.Duration("interval", a.interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveExpired(ctx)
			if err != nil {
				a.registry.Increment("alert_archive_errors_total", 1)
				a.logger.Error("archive cycle failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.Info("archived expired alerts", slog.Int("count", count))
			}
		}
	}
}

// ArchiveExpired uploads all alerts older than the retention window to S3
// and purges them from the store. It returns the number of alerts archived.
func (a *AlertArchiver) ArchiveExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retention)

	expired, err := a.alerts.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts query: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(expired)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts marshal: %w", err)
	}

	path := archivePath("alerts", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts upload: %w", err)
	}

	purged, err := a.alerts.PurgeBefore(ctx, cutoff)
	if err != nil {
		return len(expired), fmt.Errorf("s3blob: purge archived alerts: %w", err)
	}

	a.registry.Increment("alerts_archived_total", uint64(len(expired)))
	a.logger.Debug("archive cycle complete",
		slog.String("path", path),
		slog.Int("archived", len(expired)),
		slog.Int("purged", purged),
	)
	return len(expired), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/alerts/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
