// Package config defines the top-level configuration for the portfolio
// backend and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Hub      HubConfig      `toml:"hub"`
	Rules    RulesConfig    `toml:"rules"`
	Risk     RiskConfig     `toml:"risk"`
	Scoring  ScoringConfig  `toml:"scoring"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds the HTTP/WebSocket server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
	CORSOrigins []string `toml:"cors_origins"`
}

// PipelineConfig holds the event queue and micro-batcher parameters.
type PipelineConfig struct {
	QueueCapacity  int `toml:"queue_capacity"`
	BatchSize      int `toml:"batch_size"`
	BatchTimeoutMS int `toml:"batch_timeout_ms"`
	SendTimeoutMS  int `toml:"send_timeout_ms"`
}

// BatchTimeout returns the batch window as a Duration.
func (c PipelineConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMS) * time.Millisecond
}

// SendTimeout returns the producer send deadline as a Duration.
func (c PipelineConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutMS) * time.Millisecond
}

// HubConfig holds the subscriber hub parameters.
type HubConfig struct {
	OutboxCapacity int `toml:"outbox_capacity"`
}

// RulesConfig holds the built-in risk rule thresholds.
type RulesConfig struct {
	ConcentrationThreshold float64 `toml:"concentration_threshold"`
	TradeMinUSD            float64 `toml:"trade_min_usd"`
	TradePriceHint         float64 `toml:"trade_price_hint"`
}

// RiskConfig holds alert retention parameters.
type RiskConfig struct {
	AlertRetentionDays int `toml:"alert_retention_days"`
	MaxRecentAlerts    int `toml:"max_recent_alerts"`
}

// Retention returns the alert retention window as a Duration.
func (c RiskConfig) Retention() time.Duration {
	return time.Duration(c.AlertRetentionDays) * 24 * time.Hour
}

// ScoringConfig holds the external scoring service parameters.
type ScoringConfig struct {
	URL      string `toml:"url"`
	TimeoutS int    `toml:"timeout_s"`
	Enabled  bool   `toml:"enabled"`
}

// Timeout returns the scoring request deadline as a Duration.
func (c ScoringConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// DatabaseConfig holds the optional Postgres alert store parameters. An
// empty URL keeps alerts in memory only.
type DatabaseConfig struct {
	URL            string `toml:"url"`
	MaxConnections int    `toml:"max_connections"`
}

// Enabled reports whether a Postgres alert store should be wired.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig holds the optional signal-bus parameters. An empty Addr
// disables publishing hub traffic to Redis.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Enabled reports whether the Redis signal bus should be wired.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// S3Config holds the optional alert archiver parameters. An empty Bucket
// disables archival.
type S3Config struct {
	Endpoint           string `toml:"endpoint"`
	Region             string `toml:"region"`
	Bucket             string `toml:"bucket"`
	AccessKey          string `toml:"access_key"`
	SecretKey          string `toml:"secret_key"`
	UseSSL             bool   `toml:"use_ssl"`
	ForcePathStyle     bool   `toml:"force_path_style"`
	ArchiveIntervalMin int    `toml:"archive_interval_min"`
}

// Enabled reports whether the S3 alert archiver should be wired.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// ArchiveInterval returns the archiver cadence as a Duration.
func (c S3Config) ArchiveInterval() time.Duration {
	return time.Duration(c.ArchiveIntervalMin) * time.Minute
}

// Defaults returns the built-in configuration. Loading a TOML file and env
// variables only overrides these values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Pipeline: PipelineConfig{
			QueueCapacity:  1000,
			BatchSize:      10,
			BatchTimeoutMS: 100,
			SendTimeoutMS:  5000,
		},
		Hub: HubConfig{
			OutboxCapacity: 100,
		},
		Rules: RulesConfig{
			ConcentrationThreshold: 0.3,
			TradeMinUSD:            10000,
			TradePriceHint:         0.01,
		},
		Risk: RiskConfig{
			AlertRetentionDays: 30,
			MaxRecentAlerts:    1000,
		},
		Scoring: ScoringConfig{
			URL:      "http://localhost:8001",
			TimeoutS: 30,
			Enabled:  true,
		},
		Database: DatabaseConfig{
			MaxConnections: 20,
		},
		S3: S3Config{
			Region:             "us-east-1",
			ArchiveIntervalMin: 60,
		},
		LogLevel: "info",
	}
}

// Validate checks all bounds and cross-field requirements. It returns a
// list of human-readable error strings; an empty list means the
// configuration is usable.
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be in 1..65535, got %d", c.Server.Port))
	}

	if c.Pipeline.QueueCapacity <= 0 {
		errs = append(errs, "QUEUE_CAPACITY cannot be 0")
	}
	if c.Pipeline.QueueCapacity > 100000 {
		errs = append(errs, "QUEUE_CAPACITY cannot exceed 100000")
	}
	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, "BATCH_SIZE cannot be 0")
	}
	if c.Pipeline.BatchSize > 1000 {
		errs = append(errs, "BATCH_SIZE cannot exceed 1000")
	}
	if c.Pipeline.BatchTimeoutMS <= 0 {
		errs = append(errs, "BATCH_TIMEOUT_MS cannot be 0")
	}
	if c.Pipeline.BatchTimeoutMS > 60000 {
		errs = append(errs, "BATCH_TIMEOUT_MS cannot exceed 60000 (1 minute)")
	}
	if c.Pipeline.SendTimeoutMS <= 0 {
		errs = append(errs, "SEND_TIMEOUT_MS cannot be 0")
	}

	if c.Hub.OutboxCapacity <= 0 {
		errs = append(errs, "OUTBOX_CAPACITY cannot be 0")
	}

	if c.Rules.ConcentrationThreshold <= 0 {
		errs = append(errs, "RULE_CONCENTRATION_THRESHOLD must be positive")
	}
	if c.Rules.TradeMinUSD < 0 {
		errs = append(errs, "RULE_TRADE_MIN_USD cannot be negative")
	}
	if c.Rules.TradePriceHint <= 0 {
		errs = append(errs, "RULE_TRADE_PRICE_HINT must be positive")
	}

	if c.Risk.AlertRetentionDays <= 0 {
		errs = append(errs, "ALERT_RETENTION_DAYS cannot be 0")
	}
	if c.Risk.MaxRecentAlerts <= 0 {
		errs = append(errs, "MAX_RECENT_ALERTS cannot be 0")
	}

	if c.Scoring.Enabled && c.Scoring.URL == "" {
		errs = append(errs, "SCORING_URL is required when the scoring service is enabled")
	}
	if c.Scoring.Enabled && c.Scoring.URL != "" && !strings.HasPrefix(c.Scoring.URL, "http") {
		errs = append(errs, "SCORING_URL must start with http:// or https://")
	}
	if c.Scoring.TimeoutS <= 0 {
		errs = append(errs, "SCORING_TIMEOUT_S cannot be 0")
	}
	if c.Scoring.TimeoutS > 300 {
		errs = append(errs, "SCORING_TIMEOUT_S cannot exceed 300 seconds")
	}

	if c.Database.Enabled() {
		if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
			errs = append(errs, "DATABASE_URL must start with postgres:// or postgresql://")
		}
		if c.Database.MaxConnections <= 0 {
			errs = append(errs, "DATABASE_MAX_CONNECTIONS cannot be 0")
		}
		if c.Database.MaxConnections > 100 {
			errs = append(errs, "DATABASE_MAX_CONNECTIONS cannot exceed 100")
		}
	}

	if c.S3.Enabled() {
		if c.S3.Region == "" {
			errs = append(errs, "S3_REGION is required when S3 archival is enabled")
		}
		if c.S3.ArchiveIntervalMin <= 0 {
			errs = append(errs, "S3_ARCHIVE_INTERVAL_MIN cannot be 0")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("LOG_LEVEL %q is not one of debug|info|warn|error", c.LogLevel))
	}

	return errs
}
