// Package ingest converts heterogeneous raw producer records into canonical
// pipeline events.
package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/solfolio/backend/internal/domain"
)

// Normalization failure reasons.
const (
	ReasonUnknownKind  = "unknown_kind"
	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"
)

// Error is the closed error type of the normalization boundary. Reason is
// one of the Reason* constants; Field names the offending field for missing
// and invalid reasons.
type Error struct {
	Reason string
	Field  string
	Detail string
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonUnknownKind:
		return fmt.Sprintf("unknown event kind %q", e.Detail)
	case ReasonMissingField:
		return fmt.Sprintf("missing field: %s", e.Field)
	case ReasonInvalidField:
		return fmt.Sprintf("invalid field %s: %s", e.Field, e.Detail)
	default:
		return "normalization error"
	}
}

func unknownKind(kind string) *Error {
	return &Error{Reason: ReasonUnknownKind, Detail: kind}
}

func missingField(field string) *Error {
	return &Error{Reason: ReasonMissingField, Field: field}
}

func invalidField(field, detail string) *Error {
	return &Error{Reason: ReasonInvalidField, Field: field, Detail: detail}
}

// Normalizer converts RawEvents into canonical events. It holds no state
// and is safe for concurrent use. The zero value is ready to use; now is
// only overridden in tests.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a Normalizer using the wall clock for events that
// arrive without a timestamp.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: func() time.Time { return time.Now().UTC() }}
}

// Normalize converts a raw record into a canonical event. Supported kinds
// are "position_update" and "swap_executed". The kind is checked before any
// field, so a record of an unknown kind always reports UnknownKind no
// matter what else is malformed. The timestamp is taken from the raw record
// when present (RFC-3339), otherwise the current wall clock.
func (n *Normalizer) Normalize(raw domain.RawEvent) (domain.Event, error) {
	switch raw.Kind {
	case domain.KindPositionUpdate, domain.KindSwapExecuted:
	default:
		return nil, unknownKind(raw.Kind)
	}

	ts, err := n.timestamp(raw)
	if err != nil {
		return nil, err
	}

	if raw.Kind == domain.KindPositionUpdate {
		return normalizePositionUpdate(raw, ts)
	}
	return normalizeSwapExecuted(raw, ts)
}

func (n *Normalizer) timestamp(raw domain.RawEvent) (time.Time, error) {
	if raw.TS == "" {
		now := time.Now().UTC
		if n.now != nil {
			now = n.now
		}
		return now(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw.TS)
	if err != nil {
		return time.Time{}, invalidField("ts", "not an RFC-3339 timestamp")
	}
	return ts.UTC(), nil
}

func normalizePositionUpdate(raw domain.RawEvent, ts time.Time) (domain.Event, error) {
	wallet, err := identifier(raw, "wallet")
	if err != nil {
		return nil, err
	}
	mint, err := identifier(raw, "mint")
	if err != nil {
		return nil, err
	}
	pnlDelta, err := floatField(raw, "pnl_delta")
	if err != nil {
		return nil, err
	}
	if math.IsNaN(pnlDelta) || math.IsInf(pnlDelta, 0) {
		return nil, invalidField("pnl_delta", "must be finite")
	}

	return domain.PositionUpdate{
		WalletID: wallet,
		Mint:     mint,
		PnLDelta: pnlDelta,
		TS:       ts,
	}, nil
}

func normalizeSwapExecuted(raw domain.RawEvent, ts time.Time) (domain.Event, error) {
	wallet, err := identifier(raw, "wallet")
	if err != nil {
		return nil, err
	}
	inputMint, err := identifier(raw, "input_mint")
	if err != nil {
		return nil, err
	}
	outputMint, err := identifier(raw, "output_mint")
	if err != nil {
		return nil, err
	}
	amount, err := uintField(raw, "amount")
	if err != nil {
		return nil, err
	}

	return domain.SwapExecuted{
		WalletID:   wallet,
		InputMint:  inputMint,
		OutputMint: outputMint,
		Amount:     amount,
		TS:         ts,
	}, nil
}

// identifier extracts a wallet or mint id: a non-empty string of at most
// domain.MaxIDBytes bytes.
func identifier(raw domain.RawEvent, field string) (string, error) {
	s, err := stringField(raw, field)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", invalidField(field, "must not be empty")
	}
	if len(s) > domain.MaxIDBytes {
		return "", invalidField(field, fmt.Sprintf("exceeds %d bytes", domain.MaxIDBytes))
	}
	return s, nil
}

func stringField(raw domain.RawEvent, field string) (string, error) {
	v, ok := raw.Fields[field]
	if !ok {
		return "", missingField(field)
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidField(field, "must be a string")
	}
	return s, nil
}

func floatField(raw domain.RawEvent, field string) (float64, error) {
	v, ok := raw.Fields[field]
	if !ok {
		return 0, missingField(field)
	}
	switch f := v.(type) {
	case float64:
		return f, nil
	case int:
		return float64(f), nil
	case int64:
		return float64(f), nil
	case json.Number:
		parsed, err := f.Float64()
		if err != nil {
			return 0, invalidField(field, "must be a number")
		}
		return parsed, nil
	default:
		return 0, invalidField(field, "must be a number")
	}
}

// uintField extracts a non-negative integer. JSON numbers arrive as
// float64; fractional or negative values are rejected.
func uintField(raw domain.RawEvent, field string) (uint64, error) {
	v, ok := raw.Fields[field]
	if !ok {
		return 0, missingField(field)
	}
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, invalidField(field, "must not be negative")
		}
		if n != math.Trunc(n) {
			return 0, invalidField(field, "must be an integer")
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, invalidField(field, "must not be negative")
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, invalidField(field, "must not be negative")
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case json.Number:
		parsed, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return 0, invalidField(field, "must be a non-negative integer")
		}
		return parsed, nil
	default:
		return 0, invalidField(field, "must be a number")
	}
}
