package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
)

func defaultEngine() *Engine {
	return NewEngine(DefaultRules(0.3, 10000, 0.01))
}

func TestLargeTradeRule(t *testing.T) {
	e := defaultEngine()

	// 1_500_000 * 0.01 = 15_000 USD >= 10_000.
	alerts := e.Evaluate(domain.SwapExecuted{
		WalletID:   "W1",
		InputMint:  "A",
		OutputMint: "B",
		Amount:     1500000,
		TS:         time.Now(),
	})
	require.Len(t, alerts, 1)
	require.Equal(t, domain.SeverityMedium, alerts[0].Severity)
	require.Equal(t, "W1", alerts[0].Wallet)
	require.Equal(t, "large_trade", alerts[0].Metadata["rule_id"])
	require.Equal(t, "Large trade of $15000 detected", alerts[0].Message)

	// 500_000 * 0.01 = 5_000 USD < 10_000.
	alerts = e.Evaluate(domain.SwapExecuted{
		WalletID:   "W1",
		InputMint:  "A",
		OutputMint: "B",
		Amount:     500000,
		TS:         time.Now(),
	})
	require.Empty(t, alerts)
}

func TestConcentrationRule(t *testing.T) {
	e := defaultEngine()

	// |pnl_delta| must exceed 0.3 * 1000 = 300.
	alerts := e.Evaluate(domain.PositionUpdate{
		WalletID: "W2",
		Mint:     "MINT",
		PnLDelta: -450,
		TS:       time.Now(),
	})
	require.Len(t, alerts, 1)
	require.Equal(t, domain.SeverityHigh, alerts[0].Severity)
	require.Equal(t, "high_concentration", alerts[0].Metadata["rule_id"])

	alerts = e.Evaluate(domain.PositionUpdate{
		WalletID: "W2",
		Mint:     "MINT",
		PnLDelta: 250,
		TS:       time.Now(),
	})
	require.Empty(t, alerts)
}

func TestRiskAlertTriggeredDoesNotMatch(t *testing.T) {
	e := defaultEngine()

	alerts := e.Evaluate(domain.RiskAlertTriggered{
		WalletID: "W3",
		Severity: domain.SeverityCritical,
		Message:  "external",
		TS:       time.Now(),
	})
	require.Empty(t, alerts)
}

// The same event evaluated twice yields identical severity, rule id, and
// message; only ids and timestamps may differ.
func TestEvaluateIsDeterministic(t *testing.T) {
	e := defaultEngine()
	ev := domain.SwapExecuted{
		WalletID:   "W1",
		InputMint:  "A",
		OutputMint: "B",
		Amount:     2000000,
		TS:         time.Now(),
	}

	first := e.Evaluate(ev)
	second := e.Evaluate(ev)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, first[0].Severity, second[0].Severity)
	require.Equal(t, first[0].Message, second[0].Message)
	require.Equal(t, first[0].Metadata["rule_id"], second[0].Metadata["rule_id"])
	require.NotEqual(t, first[0].ID, second[0].ID)
}

func TestAlertWalletMatchesEventWallet(t *testing.T) {
	e := defaultEngine()

	for _, wallet := range []string{"Wa", "Wb", "Wc"} {
		alerts := e.Evaluate(domain.PositionUpdate{
			WalletID: wallet,
			Mint:     "M",
			PnLDelta: 1000,
			TS:       time.Now(),
		})
		require.Len(t, alerts, 1)
		require.Equal(t, wallet, alerts[0].Wallet)
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	src := DefaultRules(0.3, 10000, 0.01)
	e := NewEngine(src)

	src[0].Severity = domain.SeverityLow
	got := e.Rules()
	require.Equal(t, domain.SeverityHigh, got[0].Severity)
}
