package handler

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/ingest"
	"github.com/solfolio/backend/internal/metrics"
	"github.com/solfolio/backend/internal/pipeline"
	"github.com/solfolio/backend/internal/scoring"
)

// PortfolioHandler serves portfolio reads and the position-update producer
// endpoint.
type PortfolioHandler struct {
	book     *pipeline.PositionBook
	scoring  *scoring.Client
	producer *ingest.Producer
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(
	book *pipeline.PositionBook,
	scoringClient *scoring.Client,
	producer *ingest.Producer,
	registry *metrics.Registry,
	logger *slog.Logger,
) *PortfolioHandler {
	return &PortfolioHandler{
		book:     book,
		scoring:  scoringClient,
		producer: producer,
		registry: registry,
		logger:   logger,
	}
}

// portfolioResponse is the shape returned by GetPortfolio.
type portfolioResponse struct {
	Wallet    string              `json:"wallet"`
	TotalPnL  float64             `json:"total_pnl"`
	Positions []pipeline.Position `json:"positions"`
	RiskScore float64             `json:"risk_score"`
}

// updatePositionRequest is the producer payload for a position update.
type updatePositionRequest struct {
	Wallet   string  `json:"wallet"`
	Mint     string  `json:"mint"`
	PnLDelta float64 `json:"pnl_delta"`
}

// GetPortfolio returns the wallet's in-memory position aggregates and a
// portfolio risk score from the scoring service.
// GET /api/portfolio/{wallet}
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	wallet := pathParam(r, "wallet")
	if wallet == "" {
		record(h.registry, "get_portfolio", http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "wallet is required")
		return
	}

	h.logger.Info("fetching portfolio", slog.String("wallet", wallet))

	positions := h.book.Positions(wallet)
	riskScore := h.scoring.AssessPortfolioRisk(r.Context(), wallet, scoringPositions(positions))

	record(h.registry, "get_portfolio", http.StatusOK)
	writeJSON(w, http.StatusOK, portfolioResponse{
		Wallet:    wallet,
		TotalPnL:  h.book.TotalPnL(wallet),
		Positions: positions,
		RiskScore: riskScore,
	})
}

// UpdatePosition turns the request into a position_update event and pushes
// it into the pipeline. The aggregate is updated asynchronously by the
// per-wallet handler, not here.
// POST /api/portfolio/positions
func (h *PortfolioHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req updatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		record(h.registry, "update_position", http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	raw := domain.RawEvent{
		Kind: domain.KindPositionUpdate,
		Fields: map[string]any{
			"wallet":    req.Wallet,
			"mint":      req.Mint,
			"pnl_delta": req.PnLDelta,
		},
	}
	if _, err := h.producer.Produce(r.Context(), raw); err != nil {
		status := produceErrorStatus(err)
		record(h.registry, "update_position", status)
		writeError(w, status, err.Error())
		return
	}

	record(h.registry, "update_position", http.StatusAccepted)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": "Position updated successfully",
	})
}

// scoringPositions converts position aggregates into the canonical scoring
// shape. Only the value weight matters for portfolio-level scoring; the
// absolute PnL stands in for position value.
func scoringPositions(positions []pipeline.Position) []scoring.Position {
	out := make([]scoring.Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, scoring.Position{
			Mint:     pos.Mint,
			ValueUSD: math.Abs(pos.PnL),
		})
	}
	return out
}
