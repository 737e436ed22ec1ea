// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing or inconsistent, Load returns
// an error and the process exits.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ID sources.
const (
	IDSourceSnowflake = "snowflake"
	IDSourceRedis     = "redis"
)

// Config holds all runtime configuration for the process service.
type Config struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"process.db"`
	RedisURL    string `env:"REDIS_URL"`

	// Zero keeps the pgx pool defaults.
	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`

	HTTPPort string `env:"PROCESS_HTTP_PORT" envDefault:"8083"`
	GRPCPort string `env:"PROCESS_GRPC_PORT" envDefault:"9083"`

	IDSource        string `env:"ID_SOURCE" envDefault:"snowflake"`
	SnowflakeNodeID int64  `env:"SNOWFLAKE_NODE_ID" envDefault:"1"`

	StatsCacheTTL   time.Duration `env:"STATS_CACHE_TTL" envDefault:"30s"`
	NotifyQueueSize int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`

	StaleSweepSchedule string        `env:"STALE_SWEEP_SCHEDULE" envDefault:"@every 1h"`
	StaleAfter         time.Duration `env:"STALE_AFTER" envDefault:"168h"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	switch c.IDSource {
	case IDSourceSnowflake:
		if c.SnowflakeNodeID < 0 || c.SnowflakeNodeID > 1023 {
			return fmt.Errorf("SNOWFLAKE_NODE_ID must be in [0, 1023], got %d", c.SnowflakeNodeID)
		}
	case IDSourceRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when ID_SOURCE=redis")
		}
	default:
		return fmt.Errorf("ID_SOURCE must be %q or %q, got %q", IDSourceSnowflake, IDSourceRedis, c.IDSource)
	}

	if c.DBMaxConns < 0 || c.DBMaxConnIdleTime < 0 {
		return fmt.Errorf("DB_MAX_CONNS and DB_MAX_CONN_IDLE_TIME must not be negative")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("STALE_AFTER must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
