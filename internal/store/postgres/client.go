// Package postgres implements the alert store on PostgreSQL via pgx. It is
// wired only when DATABASE_URL is configured; the in-memory store remains
// the default.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	URL      string
	MaxConns int
}

// Client wraps a pgxpool.Pool and owns schema setup.
type Client struct {
	pool *pgxpool.Pool
}

// New creates a Client with a connection pool configured from cfg, verifies
// connectivity, and ensures the alert schema exists.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	c := &Client{pool: pool}
	if err := c.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// ensureSchema creates the risk_alerts table if it does not exist.
func (c *Client) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS risk_alerts (
	id         UUID PRIMARY KEY,
	wallet     TEXT        NOT NULL,
	severity   TEXT        NOT NULL,
	message    TEXT        NOT NULL,
	metadata   JSONB       NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_wallet ON risk_alerts (wallet, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_alerts_created ON risk_alerts (created_at);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Pool exposes the underlying connection pool.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Ping verifies database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (c *Client) Close() { c.pool.Close() }
