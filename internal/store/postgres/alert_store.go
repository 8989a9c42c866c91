package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solfolio/backend/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates an AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert stores a new alert. Metadata is stored as JSONB.
func (s *AlertStore) Insert(ctx context.Context, alert domain.RiskAlert) error {
	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal alert metadata: %w", err)
	}

	const query = `
INSERT INTO risk_alerts (id, wallet, severity, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		alert.ID, alert.Wallet, alert.Severity.String(), alert.Message, metadata, alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// ListRecent returns up to limit alerts, newest first, optionally filtered
// by wallet.
func (s *AlertStore) ListRecent(ctx context.Context, wallet string, limit int) ([]domain.RiskAlert, error) {
	query := `
SELECT id, wallet, severity, message, metadata, created_at
FROM risk_alerts`
	args := []any{}
	if wallet != "" {
		query += ` WHERE wallet = $1`
		args = append(args, wallet)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	return s.queryAlerts(ctx, query, args...)
}

// ListBefore returns all alerts older than cutoff, oldest first.
func (s *AlertStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.RiskAlert, error) {
	const query = `
SELECT id, wallet, severity, message, metadata, created_at
FROM risk_alerts
WHERE created_at < $1
ORDER BY created_at ASC`
	return s.queryAlerts(ctx, query, cutoff)
}

// PurgeBefore deletes alerts older than cutoff and returns the number
// removed.
func (s *AlertStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM risk_alerts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *AlertStore) queryAlerts(ctx context.Context, query string, args ...any) ([]domain.RiskAlert, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.RiskAlert
	for rows.Next() {
		var (
			alert       domain.RiskAlert
			severity    string
			metadataRaw []byte
		)
		if err := rows.Scan(&alert.ID, &alert.Wallet, &severity, &alert.Message, &metadataRaw, &alert.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		alert.Severity, _ = domain.ParseSeverity(severity)
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &alert.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal alert metadata: %w", err)
			}
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate alerts: %w", err)
	}
	return alerts, nil
}
