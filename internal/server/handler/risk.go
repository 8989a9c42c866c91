package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/scoring"
)

// RiskHandler serves stored risk alerts and the blocking risk-analysis
// endpoint.
type RiskHandler struct {
	alerts    domain.AlertStore
	scoring   *scoring.Client
	maxRecent int
	registry  *metrics.Registry
	logger    *slog.Logger
}

// NewRiskHandler creates a RiskHandler. maxRecent caps the alert list size.
func NewRiskHandler(
	alerts domain.AlertStore,
	scoringClient *scoring.Client,
	maxRecent int,
	registry *metrics.Registry,
	logger *slog.Logger,
) *RiskHandler {
	return &RiskHandler{
		alerts:    alerts,
		scoring:   scoringClient,
		maxRecent: maxRecent,
		registry:  registry,
		logger:    logger,
	}
}

// riskAnalysisRequest is the payload for AnalyzePosition.
type riskAnalysisRequest struct {
	Wallet    string             `json:"wallet"`
	Positions []scoring.Position `json:"positions"`
}

// GetRiskAlerts returns recent alerts, newest first, optionally filtered by
// the wallet query parameter.
// GET /api/risk/alerts
func (h *RiskHandler) GetRiskAlerts(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	limit := queryLimit(r, h.maxRecent, h.maxRecent)

	alerts, err := h.alerts.ListRecent(r.Context(), wallet, limit)
	if err != nil {
		h.logger.Error("failed to list alerts", slog.String("error", err.Error()))
		record(h.registry, "get_risk_alerts", http.StatusInternalServerError)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []domain.RiskAlert{}
	}

	record(h.registry, "get_risk_alerts", http.StatusOK)
	writeJSON(w, http.StatusOK, alerts)
}

// AnalyzePosition runs a blocking risk analysis through the scoring client.
// The scoring client degrades to local heuristics on failure, so this
// endpoint always answers with a score.
// POST /api/risk/analyze
func (h *RiskHandler) AnalyzePosition(w http.ResponseWriter, r *http.Request) {
	var req riskAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		record(h.registry, "analyze_position", http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Wallet == "" {
		record(h.registry, "analyze_position", http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "wallet is required")
		return
	}

	h.logger.Info("analyzing risk", slog.String("wallet", req.Wallet))

	analysis := h.scoring.AnalyzePositions(r.Context(), req.Wallet, req.Positions)

	record(h.registry, "analyze_position", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"risk_score":      analysis.RiskScore,
		"alerts":          analysis.Alerts,
		"recommendations": analysis.Recommendations,
	})
}
