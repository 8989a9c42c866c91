// Package rules implements the risk rules engine: a fixed registry of
// conditions evaluated against every canonical event, producing risk
// alerts for matches.
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/solfolio/backend/internal/domain"
)

// Condition is a predicate over a canonical event. Matching conditions
// also render the rule's message template and contribute alert metadata.
type Condition interface {
	Matches(ev domain.Event) bool
	Render(template string, ev domain.Event) string
	Describe(ev domain.Event) map[string]any
}

// Rule couples a condition with the severity and message of the alerts it
// produces. Rules are immutable after registry construction.
type Rule struct {
	ID        string
	Name      string
	Condition Condition
	Severity  domain.Severity
	Template  string
}

// ConcentrationExceeds matches a PositionUpdate whose absolute PnL delta
// exceeds threshold*1000. This is a stand-in for a true portfolio
// concentration signal; the pipeline does not carry total portfolio value
// yet.
type ConcentrationExceeds struct {
	Threshold float64
}

func (c ConcentrationExceeds) Matches(ev domain.Event) bool {
	pu, ok := ev.(domain.PositionUpdate)
	if !ok {
		return false
	}
	return math.Abs(pu.PnLDelta) > c.Threshold*1000
}

func (c ConcentrationExceeds) Render(template string, ev domain.Event) string {
	pu, _ := ev.(domain.PositionUpdate)
	return fmt.Sprintf(template, pu.Mint, pu.PnLDelta)
}

func (c ConcentrationExceeds) Describe(ev domain.Event) map[string]any {
	pu, _ := ev.(domain.PositionUpdate)
	return map[string]any{
		"threshold": c.Threshold,
		"mint":      pu.Mint,
		"pnl_delta": pu.PnLDelta,
	}
}

// TradeSizeExceeds matches a SwapExecuted whose estimated USD value
// (amount * PriceHint) reaches MinValueUSD. PriceHint is a configured
// constant until a price feed is wired in.
type TradeSizeExceeds struct {
	MinValueUSD float64
	PriceHint   float64
}

// ValueUSD estimates the trade's USD value from the input amount.
func (c TradeSizeExceeds) ValueUSD(swap domain.SwapExecuted) float64 {
	return float64(swap.Amount) * c.PriceHint
}

func (c TradeSizeExceeds) Matches(ev domain.Event) bool {
	swap, ok := ev.(domain.SwapExecuted)
	if !ok {
		return false
	}
	return c.ValueUSD(swap) >= c.MinValueUSD
}

func (c TradeSizeExceeds) Render(template string, ev domain.Event) string {
	swap, _ := ev.(domain.SwapExecuted)
	return fmt.Sprintf(template, c.ValueUSD(swap))
}

func (c TradeSizeExceeds) Describe(ev domain.Event) map[string]any {
	swap, _ := ev.(domain.SwapExecuted)
	return map[string]any{
		"min_value_usd": c.MinValueUSD,
		"value_usd":     c.ValueUSD(swap),
		"input_mint":    swap.InputMint,
		"output_mint":   swap.OutputMint,
	}
}

// DefaultRules builds the built-in rule set from the configured thresholds.
func DefaultRules(concentrationThreshold, tradeMinUSD, priceHint float64) []Rule {
	return []Rule{
		{
			ID:        "high_concentration",
			Name:      "High Position Concentration",
			Condition: ConcentrationExceeds{Threshold: concentrationThreshold},
			Severity:  domain.SeverityHigh,
			Template:  "Position %s PnL swing of %.1f exceeds concentration threshold",
		},
		{
			ID:        "large_trade",
			Name:      "Large Trade Detected",
			Condition: TradeSizeExceeds{MinValueUSD: tradeMinUSD, PriceHint: priceHint},
			Severity:  domain.SeverityMedium,
			Template:  "Large trade of $%.0f detected",
		},
	}
}

// Engine evaluates a fixed rule registry against canonical events. It is
// stateless per call and safe for concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine creates an Engine over the given rules. The slice is copied so
// the registry cannot change after construction.
func NewEngine(rules []Rule) *Engine {
	owned := make([]Rule, len(rules))
	copy(owned, rules)
	return &Engine{rules: owned}
}

// Rules returns the registered rules.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule against the event and returns one alert per
// matching rule, in registry order. The engine does not broadcast; the
// caller forwards alerts to the hub.
func (e *Engine) Evaluate(ev domain.Event) []domain.RiskAlert {
	var alerts []domain.RiskAlert

	for _, rule := range e.rules {
		if !rule.Condition.Matches(ev) {
			continue
		}

		metadata := rule.Condition.Describe(ev)
		metadata["rule_id"] = rule.ID
		metadata["rule_name"] = rule.Name
		metadata["triggered_at"] = time.Now().UTC().Format(time.RFC3339)

		alerts = append(alerts, domain.NewRiskAlert(
			ev.Wallet(),
			rule.Severity,
			rule.Condition.Render(rule.Template, ev),
			metadata,
		))
	}

	return alerts
}
