// Package memory provides in-memory store implementations. They are the
// default backends; durability is not a goal of this service.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/solfolio/backend/internal/domain"
)

// AlertStore keeps recent alerts in memory, bounded by a maximum entry
// count. The oldest alerts are evicted first.
type AlertStore struct {
	mu         sync.RWMutex
	alerts     []domain.RiskAlert // oldest first
	maxEntries int
}

// NewAlertStore creates an AlertStore holding at most maxEntries alerts.
func NewAlertStore(maxEntries int) *AlertStore {
	return &AlertStore{maxEntries: maxEntries}
}

// Insert stores a new alert, evicting the oldest entry when at capacity.
func (s *AlertStore) Insert(_ context.Context, alert domain.RiskAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.maxEntries {
		s.alerts = s.alerts[len(s.alerts)-s.maxEntries:]
	}
	return nil
}

// ListRecent returns up to limit alerts, newest first, optionally filtered
// by wallet.
func (s *AlertStore) ListRecent(_ context.Context, wallet string, limit int) ([]domain.RiskAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RiskAlert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if wallet != "" && s.alerts[i].Wallet != wallet {
			continue
		}
		out = append(out, s.alerts[i])
	}
	return out, nil
}

// ListBefore returns all alerts older than cutoff, oldest first.
func (s *AlertStore) ListBefore(_ context.Context, cutoff time.Time) ([]domain.RiskAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RiskAlert
	for _, alert := range s.alerts {
		if alert.Timestamp.Before(cutoff) {
			out = append(out, alert)
		}
	}
	return out, nil
}

// PurgeBefore removes alerts older than cutoff and returns the number
// removed.
func (s *AlertStore) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.alerts[:0]
	removed := 0
	for _, alert := range s.alerts {
		if alert.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, alert)
	}
	s.alerts = kept
	return removed, nil
}

// Len returns the number of stored alerts.
func (s *AlertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
