// Package config assembles runtime configuration from the environment so
// main stays lean.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	pstrings "sealedrecord/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"SEALEDRECORD_ADDR" envDefault:":8080"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Postgres captures the ledger database configuration. An empty DSN selects
// the in-memory stores (development and tests).
type Postgres struct {
	DSN          string        `env:"DATABASE_URL"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnLifetime time.Duration `env:"DB_CONN_LIFETIME" envDefault:"30m"`
}

// Redis captures cache and rate limiter configuration. Empty URL disables
// both.
type Redis struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka captures outbox publisher configuration. Empty brokers disable the
// mirror; the ledger itself remains the source of truth either way.
type Kafka struct {
	Brokers      []string      `env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"sealedrecord.audit-events"`
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// Verification configures the signed certificate verification URLs.
type Verification struct {
	BaseURL     string        `env:"VERIFICATION_BASE_URL" envDefault:"http://localhost:8080"`
	SigningKey  string        `env:"VERIFICATION_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	TokenExpiry time.Duration `env:"VERIFICATION_TOKEN_EXPIRY" envDefault:"720h"`
	// RateLimit is verification attempts per IP per window.
	RateLimit  int           `env:"VERIFICATION_RATE_LIMIT" envDefault:"30"`
	RateWindow time.Duration `env:"VERIFICATION_RATE_WINDOW" envDefault:"1m"`
}

// Config is the full runtime configuration.
type Config struct {
	Server       Server
	Postgres     Postgres
	Redis        Redis
	Kafka        Kafka
	Verification Verification
}

// FromEnv parses the whole configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	for name, target := range map[string]any{
		"server":       &cfg.Server,
		"postgres":     &cfg.Postgres,
		"redis":        &cfg.Redis,
		"kafka":        &cfg.Kafka,
		"verification": &cfg.Verification,
	} {
		if err := env.Parse(target); err != nil {
			return Config{}, fmt.Errorf("parse %s config: %w", name, err)
		}
	}
	// Tolerate trailing commas and repeated entries in KAFKA_BROKERS.
	cfg.Kafka.Brokers = pstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	return cfg, nil
}
