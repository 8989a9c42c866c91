package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthReportsDependencyStatus(t *testing.T) {
	h := NewHealthHandler([]Check{
		{Name: "postgres", Probe: func(context.Context) error { return nil }},
		{Name: "redis", Probe: func(context.Context) error { return errors.New("connection refused") }},
	}, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])

	deps := body["dependencies"].(map[string]any)
	require.Equal(t, "ok", deps["postgres"])
	require.Equal(t, "connection refused", deps["redis"])
}

func TestHealthWithoutChecks(t *testing.T) {
	h := NewHealthHandler(nil, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.NotContains(t, body, "dependencies")
}
