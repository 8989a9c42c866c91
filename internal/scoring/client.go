// Package scoring talks to the external risk scoring service. The service
// is an opaque request/response collaborator behind a timeout; every
// failure path falls back to a local heuristic so callers always get a
// score.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/solfolio/backend/internal/metrics"
)

// Position is the canonical position shape submitted for analysis.
type Position struct {
	Mint       string  `json:"mint"`
	Amount     float64 `json:"amount"`
	ValueUSD   float64 `json:"value_usd"`
	Volatility float64 `json:"volatility"`
}

// Alert is a finding returned by the scoring service or the fallback
// heuristic.
type Alert struct {
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
}

// Analysis is the full result of a risk analysis request.
type Analysis struct {
	RiskScore       float64  `json:"risk_score"`
	Alerts          []Alert  `json:"alerts"`
	Recommendations []string `json:"recommendations"`
}

// Client calls the scoring service over HTTP. A disabled client serves
// every request from the local heuristics.
type Client struct {
	http     *http.Client
	baseURL  string
	enabled  bool
	registry *metrics.Registry
	logger   *slog.Logger
}

// NewClient creates a Client. When enabled is false the base URL is never
// contacted.
func NewClient(baseURL string, timeout time.Duration, enabled bool, registry *metrics.Registry, logger *slog.Logger) *Client {
	logger = logger.With(slog.String("component", "scoring"))
	if !enabled {
		logger.Warn("scoring service disabled, using local heuristics")
	} else {
		logger.Info("scoring service configured",
			slog.String("url", baseURL),
			slog.Duration("timeout", timeout),
		)
	}

	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		enabled:  enabled,
		registry: registry,
		logger:   logger,
	}
}

// AssessPortfolioRisk returns a risk score in [0, 1] for the wallet's
// positions. The remote service sees aggregate portfolio features, not
// individual positions; on any transport or decode failure the local
// concentration heuristic answers instead.
func (c *Client) AssessPortfolioRisk(ctx context.Context, wallet string, positions []Position) float64 {
	if !c.enabled {
		return ConcentrationScore(positions)
	}

	body := portfolioFeatures(positions)
	var result struct {
		RiskScore *float64 `json:"risk_score"`
	}
	if err := c.post(ctx, "/assess", body, &result); err != nil || result.RiskScore == nil {
		c.fallback(wallet, err)
		return ConcentrationScore(positions)
	}
	return *result.RiskScore
}

// AnalyzePositions runs a full risk analysis. Failures degrade to
// FallbackAnalysis rather than surfacing an error to the caller.
func (c *Client) AnalyzePositions(ctx context.Context, wallet string, positions []Position) Analysis {
	if !c.enabled {
		return FallbackAnalysis(positions)
	}

	body := map[string]any{"wallet": wallet, "positions": positions}
	var analysis Analysis
	if err := c.post(ctx, "/analyze", body, &analysis); err != nil {
		c.fallback(wallet, err)
		return FallbackAnalysis(positions)
	}
	return analysis
}

// post sends a JSON request and decodes a JSON response. Non-2xx statuses
// are errors.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("scoring: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("scoring: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scoring: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scoring: decode response: %w", err)
	}
	return nil
}

// fallback records one degraded request.
func (c *Client) fallback(wallet string, err error) {
	c.registry.Increment("scoring_fallbacks_total", 1)
	attrs := []any{slog.String("wallet", wallet)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	c.logger.Warn("scoring request failed, using local heuristic", attrs...)
}

// portfolioFeatures reduces positions to the aggregate features the remote
// model consumes.
func portfolioFeatures(positions []Position) map[string]float64 {
	var totalValue, maxPosition float64
	for _, p := range positions {
		totalValue += p.ValueUSD
		if p.ValueUSD > maxPosition {
			maxPosition = p.ValueUSD
		}
	}

	concentration := 0.0
	if totalValue > 0 {
		concentration = maxPosition / totalValue
	}

	return map[string]float64{
		"total_value":   totalValue,
		"concentration": concentration,
		"num_positions": float64(len(positions)),
	}
}

// ConcentrationScore is the local heuristic for portfolio-level risk: the
// share of the largest position maps onto three coarse bands.
func ConcentrationScore(positions []Position) float64 {
	var totalValue, maxPosition float64
	for _, p := range positions {
		totalValue += p.ValueUSD
		if p.ValueUSD > maxPosition {
			maxPosition = p.ValueUSD
		}
	}
	if totalValue == 0 {
		return 0
	}

	switch concentration := maxPosition / totalValue; {
	case concentration > 0.5:
		return 0.8
	case concentration > 0.3:
		return 0.5
	default:
		return 0.2
	}
}

// WeightedVolatility is the local heuristic for position-level risk: the
// value-weighted average volatility, capped at 1.0.
func WeightedVolatility(positions []Position) float64 {
	var weighted, totalValue float64
	for _, p := range positions {
		weighted += p.Volatility * p.ValueUSD
		totalValue += p.ValueUSD
	}
	if totalValue == 0 {
		return 0
	}
	return min(weighted/totalValue, 1.0)
}

// FallbackAnalysis builds an Analysis from the local heuristics alone.
func FallbackAnalysis(positions []Position) Analysis {
	score := WeightedVolatility(positions)

	var alerts []Alert
	if score > 0.7 {
		alerts = append(alerts, Alert{
			Severity: "HIGH",
			Message:  "High concentration risk detected",
			Metric:   "concentration",
			Value:    score,
		})
	}

	return Analysis{
		RiskScore: score,
		Alerts:    alerts,
		Recommendations: []string{
			"Consider diversifying across different asset types",
			"Set stop-loss orders for high-risk positions",
		},
	}
}
