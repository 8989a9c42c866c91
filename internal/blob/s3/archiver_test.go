package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/store/memory"
)

type captureWriter struct {
	paths        []string
	contentTypes []string
	bodies       [][]byte
	err          error
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.contentTypes = append(w.contentTypes, contentType)
	w.bodies = append(w.bodies, body)
	return nil
}

func newTestArchiver(writer domain.BlobWriter, alerts domain.AlertStore, registry *metrics.Registry) *AlertArchiver {
	logger := slog.New(slog.DiscardHandler)
	return NewAlertArchiver(writer, alerts, 30*24*time.Hour, time.Minute, registry, logger)
}

func TestArchiveExpiredUploadsAndPurges(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAlertStore(100)
	writer := &captureWriter{}
	registry := metrics.NewRegistry()
	archiver := newTestArchiver(writer, store, registry)

	old := domain.NewRiskAlert("W", domain.SeverityHigh, "stale alert", nil)
	old.Timestamp = time.Now().UTC().Add(-60 * 24 * time.Hour)
	fresh := domain.NewRiskAlert("W", domain.SeverityLow, "fresh alert", nil)
	require.NoError(t, store.Insert(ctx, old))
	require.NoError(t, store.Insert(ctx, fresh))

	count, err := archiver.ArchiveExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Only the expired alert left the store.
	require.Equal(t, 1, store.Len())
	require.Equal(t, uint64(1), registry.Counter("alerts_archived_total"))

	require.Len(t, writer.paths, 1)
	require.Regexp(t, `^archive/alerts/\d{4}-\d{2}\.jsonl$`, writer.paths[0])
	require.Equal(t, "application/x-ndjson", writer.contentTypes[0])

	// One JSONL line per archived alert.
	scanner := bufio.NewScanner(bytes.NewReader(writer.bodies[0]))
	var lines int
	for scanner.Scan() {
		var alert domain.RiskAlert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &alert))
		require.Equal(t, old.ID, alert.ID)
		lines++
	}
	require.Equal(t, 1, lines)
}

func TestArchiveExpiredNoopWhenNothingExpired(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAlertStore(100)
	writer := &captureWriter{}
	archiver := newTestArchiver(writer, store, metrics.NewRegistry())

	require.NoError(t, store.Insert(ctx, domain.NewRiskAlert("W", domain.SeverityLow, "fresh", nil)))

	count, err := archiver.ArchiveExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, writer.paths)
	require.Equal(t, 1, store.Len())
}

func TestArchiveExpiredKeepsAlertsOnUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAlertStore(100)
	writer := &captureWriter{err: errors.New("bucket unavailable")}
	archiver := newTestArchiver(writer, store, metrics.NewRegistry())

	old := domain.NewRiskAlert("W", domain.SeverityHigh, "stale alert", nil)
	old.Timestamp = time.Now().UTC().Add(-60 * 24 * time.Hour)
	require.NoError(t, store.Insert(ctx, old))

	_, err := archiver.ArchiveExpired(ctx)
	require.Error(t, err)
	// The store is untouched so the next cycle can retry.
	require.Equal(t, 1, store.Len())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := memory.NewAlertStore(10)
	archiver := newTestArchiver(&captureWriter{}, store, metrics.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, archiver.Run(ctx), context.Canceled)
}
