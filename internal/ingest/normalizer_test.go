package ingest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solfolio/backend/internal/domain"
)

func rawPositionUpdate() domain.RawEvent {
	return domain.RawEvent{
		Kind: "position_update",
		Fields: map[string]any{
			"wallet":    "W1",
			"mint":      "So11111111111111111111111111111111111111112",
			"pnl_delta": 12.5,
		},
	}
}

func rawSwapExecuted() domain.RawEvent {
	return domain.RawEvent{
		Kind: "swap_executed",
		Fields: map[string]any{
			"wallet":      "W1",
			"input_mint":  "MINT_IN",
			"output_mint": "MINT_OUT",
			"amount":      float64(1500000),
		},
	}
}

func TestNormalizePositionUpdate(t *testing.T) {
	n := NewNormalizer()

	ev, err := n.Normalize(rawPositionUpdate())
	require.NoError(t, err)

	pu, ok := ev.(domain.PositionUpdate)
	require.True(t, ok)
	require.Equal(t, "W1", pu.Wallet())
	require.Equal(t, 12.5, pu.PnLDelta)
	require.False(t, pu.Timestamp().IsZero())
}

func TestNormalizeSwapExecuted(t *testing.T) {
	n := NewNormalizer()

	ev, err := n.Normalize(rawSwapExecuted())
	require.NoError(t, err)

	swap, ok := ev.(domain.SwapExecuted)
	require.True(t, ok)
	require.Equal(t, uint64(1500000), swap.Amount)
	require.Equal(t, "MINT_IN", swap.InputMint)
	require.Equal(t, "MINT_OUT", swap.OutputMint)
}

func TestNormalizeUnknownKind(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize(domain.RawEvent{Kind: "price_tick", Fields: map[string]any{}})
	require.Error(t, err)

	var nerr *Error
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, ReasonUnknownKind, nerr.Reason)

	// The kind verdict wins even when other parts of the record are also
	// malformed.
	_, err = n.Normalize(domain.RawEvent{Kind: "price_tick", TS: "yesterday"})
	require.ErrorAs(t, err, &nerr)
	require.Equal(t, ReasonUnknownKind, nerr.Reason)
}

// Every required field, when removed, must be reported by name.
func TestNormalizeMissingFieldsAreNamed(t *testing.T) {
	n := NewNormalizer()

	cases := []struct {
		raw    func() domain.RawEvent
		fields []string
	}{
		{rawPositionUpdate, []string{"wallet", "mint", "pnl_delta"}},
		{rawSwapExecuted, []string{"wallet", "input_mint", "output_mint", "amount"}},
	}

	for _, tc := range cases {
		for _, field := range tc.fields {
			raw := tc.raw()
			delete(raw.Fields, field)

			_, err := n.Normalize(raw)
			require.Error(t, err, "field %s", field)

			var nerr *Error
			require.ErrorAs(t, err, &nerr)
			require.Equal(t, ReasonMissingField, nerr.Reason)
			require.Equal(t, field, nerr.Field)
		}
	}
}

func TestNormalizeInvalidFields(t *testing.T) {
	n := NewNormalizer()

	raw := rawPositionUpdate()
	raw.Fields["pnl_delta"] = math.NaN()
	_, err := n.Normalize(raw)
	require.ErrorContains(t, err, "pnl_delta")

	raw = rawPositionUpdate()
	raw.Fields["wallet"] = ""
	_, err = n.Normalize(raw)
	require.ErrorContains(t, err, "wallet")

	raw = rawPositionUpdate()
	raw.Fields["wallet"] = string(make([]byte, domain.MaxIDBytes+1))
	_, err = n.Normalize(raw)
	require.ErrorContains(t, err, "wallet")

	raw = rawSwapExecuted()
	raw.Fields["amount"] = float64(-5)
	_, err = n.Normalize(raw)
	require.ErrorContains(t, err, "amount")

	raw = rawSwapExecuted()
	raw.Fields["amount"] = 1.5
	_, err = n.Normalize(raw)
	require.ErrorContains(t, err, "amount")
}

func TestNormalizeUsesProvidedTimestamp(t *testing.T) {
	n := NewNormalizer()

	raw := rawPositionUpdate()
	raw.TS = "2026-08-01T12:00:00Z"

	ev, err := n.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), ev.Timestamp())
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	n := NewNormalizer()

	raw := rawPositionUpdate()
	raw.TS = "yesterday"

	_, err := n.Normalize(raw)
	require.ErrorContains(t, err, "ts")
}

func TestNormalizeAssignsClockWhenAbsent(t *testing.T) {
	fixed := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	n := &Normalizer{now: func() time.Time { return fixed }}

	ev, err := n.Normalize(rawSwapExecuted())
	require.NoError(t, err)
	require.Equal(t, fixed, ev.Timestamp())
}
