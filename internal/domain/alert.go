package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity is the ordered alert severity scale.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity converts a wire name into a Severity. Unknown names map to
// SeverityLow with ok=false.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	default:
		return SeverityLow, false
	}
}

// MarshalJSON encodes the severity as its lowercase wire name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a lowercase wire name into a Severity.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := ParseSeverity(raw)
	if !ok {
		return fmt.Errorf("unknown severity %q", raw)
	}
	*s = parsed
	return nil
}

// RiskAlert is an alert produced by rule evaluation (or forwarded from an
// external source). ID and Timestamp are assigned at creation.
type RiskAlert struct {
	ID        string         `json:"id"`
	Wallet    string         `json:"wallet"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// NewRiskAlert creates a RiskAlert with a fresh UUID and the current time.
// A nil metadata map is replaced by an empty one so the JSON form is always
// an object.
func NewRiskAlert(wallet string, severity Severity, message string, metadata map[string]any) RiskAlert {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return RiskAlert{
		ID:        uuid.NewString(),
		Wallet:    wallet,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// IsHighPriority reports whether the alert is High or Critical.
func (a RiskAlert) IsHighPriority() bool {
	return a.Severity >= SeverityHigh
}

// Summary returns a one-line human-readable form used in logs.
func (a RiskAlert) Summary() string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(a.Severity.String()), a.Wallet, a.Message)
}
