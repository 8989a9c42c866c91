package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/solfolio/backend/internal/domain"
	"github.com/solfolio/backend/internal/ingest"
	"github.com/solfolio/backend/internal/metrics"
)

// SwapHandler is the producer endpoint for executed swaps.
type SwapHandler struct {
	producer *ingest.Producer
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewSwapHandler creates a SwapHandler.
func NewSwapHandler(producer *ingest.Producer, registry *metrics.Registry, logger *slog.Logger) *SwapHandler {
	return &SwapHandler{
		producer: producer,
		registry: registry,
		logger:   logger,
	}
}

// swapRequest is the payload for ExecuteSwap. SlippageBps is accepted for
// client compatibility but does not affect event processing.
type swapRequest struct {
	Wallet      string `json:"wallet"`
	InputMint   string `json:"input_mint"`
	OutputMint  string `json:"output_mint"`
	Amount      uint64 `json:"amount"`
	SlippageBps uint64 `json:"slippage_bps"`
}

// ExecuteSwap turns the request into a swap_executed event and pushes it
// into the pipeline, where the rules engine sizes it against the large-trade
// threshold.
// POST /api/swap/execute
func (h *SwapHandler) ExecuteSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		record(h.registry, "execute_swap", http.StatusBadRequest)
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h.logger.Info("executing swap",
		slog.String("wallet", req.Wallet),
		slog.String("input_mint", req.InputMint),
		slog.String("output_mint", req.OutputMint),
		slog.Uint64("amount", req.Amount),
	)

	raw := domain.RawEvent{
		Kind: domain.KindSwapExecuted,
		Fields: map[string]any{
			"wallet":      req.Wallet,
			"input_mint":  req.InputMint,
			"output_mint": req.OutputMint,
			"amount":      req.Amount,
		},
	}
	if _, err := h.producer.Produce(r.Context(), raw); err != nil {
		status := produceErrorStatus(err)
		record(h.registry, "execute_swap", status)
		writeError(w, status, err.Error())
		return
	}

	record(h.registry, "execute_swap", http.StatusAccepted)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "success",
		"message": "Swap executed successfully",
	})
}
