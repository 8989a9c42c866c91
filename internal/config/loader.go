package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the final configuration: built-in defaults, then the TOML
// file at path (skipped when path is empty or the file does not exist),
// then environment variable overrides. The result has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known environment variables and overwrites
// the corresponding Config fields when a variable is set. This lets
// operators inject settings at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// Server
	setStr(&cfg.Server.Host, "HOST")
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Server.APIKey, "API_KEY")
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}

	// Pipeline
	setInt(&cfg.Pipeline.QueueCapacity, "QUEUE_CAPACITY")
	setInt(&cfg.Pipeline.BatchSize, "BATCH_SIZE")
	setInt(&cfg.Pipeline.BatchTimeoutMS, "BATCH_TIMEOUT_MS")
	setInt(&cfg.Pipeline.SendTimeoutMS, "SEND_TIMEOUT_MS")

	// Hub
	setInt(&cfg.Hub.OutboxCapacity, "OUTBOX_CAPACITY")

	// Rules
	setFloat64(&cfg.Rules.ConcentrationThreshold, "RULE_CONCENTRATION_THRESHOLD")
	setFloat64(&cfg.Rules.TradeMinUSD, "RULE_TRADE_MIN_USD")
	setFloat64(&cfg.Rules.TradePriceHint, "RULE_TRADE_PRICE_HINT")

	// Risk
	setInt(&cfg.Risk.AlertRetentionDays, "ALERT_RETENTION_DAYS")
	setInt(&cfg.Risk.MaxRecentAlerts, "MAX_RECENT_ALERTS")

	// Scoring
	setStr(&cfg.Scoring.URL, "SCORING_URL")
	setInt(&cfg.Scoring.TimeoutS, "SCORING_TIMEOUT_S")
	setBool(&cfg.Scoring.Enabled, "SCORING_ENABLED")

	// Database
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setInt(&cfg.Database.MaxConnections, "DATABASE_MAX_CONNECTIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	// S3
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.ArchiveIntervalMin, "S3_ARCHIVE_INTERVAL_MIN")

	// Logging
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// setStr overwrites dst when the environment variable is set and non-empty.
func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt overwrites dst when the environment variable parses as an int.
func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setFloat64 overwrites dst when the environment variable parses as a float.
func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// setBool overwrites dst when the environment variable parses as a bool.
func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
