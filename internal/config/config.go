package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type LedgerBackend string

const (
	LedgerBackendPostgres LedgerBackend = "postgres"
	LedgerBackendRedis    LedgerBackend = "redis"
)

type Config struct {
	DatabaseURL    string `env:"DATABASE_URL,required"`
	WebhookSecret  string `env:"WEBHOOK_SECRET,required"`
	AdminJWTSecret string `env:"ADMIN_JWT_SECRET,required"`
	Port           int    `env:"PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv         string `env:"APP_ENV" envDefault:"production"`

	WebhookTolerance time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`

	LedgerBackend         LedgerBackend `env:"LEDGER_BACKEND" envDefault:"postgres"`
	LedgerTimeout         time.Duration `env:"LEDGER_TIMEOUT" envDefault:"3s"`
	LedgerProcessingLease time.Duration `env:"LEDGER_PROCESSING_LEASE" envDefault:"2m"`
	LedgerRetention       time.Duration `env:"LEDGER_RETENTION" envDefault:"720h"`

	ReconcileTimeout time.Duration `env:"RECONCILE_TIMEOUT" envDefault:"5s"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers          []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopicFulfillment string   `env:"KAFKA_TOPIC_FULFILLMENT" envDefault:"orders.fulfillment"`
	KafkaTopicInventory   string   `env:"KAFKA_TOPIC_INVENTORY" envDefault:"orders.inventory"`
	KafkaTopicRemediation string   `env:"KAFKA_TOPIC_REMEDIATION" envDefault:"payments.remediation"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"50"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.LedgerBackend {
	case LedgerBackendPostgres, LedgerBackendRedis:
	default:
		return fmt.Errorf("LEDGER_BACKEND must be postgres or redis, got %q", c.LedgerBackend)
	}
	if c.WebhookTolerance <= 0 {
		return fmt.Errorf("WEBHOOK_TOLERANCE must be positive")
	}
	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("LEDGER_TIMEOUT must be positive")
	}
	if c.ReconcileTimeout <= 0 {
		return fmt.Errorf("RECONCILE_TIMEOUT must be positive")
	}
	// A reclaimed lease must never overlap a request that is still running.
	if c.LedgerProcessingLease <= c.LedgerTimeout*3+c.ReconcileTimeout {
		return fmt.Errorf("LEDGER_PROCESSING_LEASE must exceed three ledger timeouts plus RECONCILE_TIMEOUT")
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}

// String omits secrets so the config can be logged at startup.
func (c Config) String() string {
	return fmt.Sprintf("port=%d env=%s ledger=%s ledger_timeout=%s reconcile_timeout=%s lease=%s retention=%s tolerance=%s kafka=%v",
		c.Port, c.AppEnv, c.LedgerBackend, c.LedgerTimeout, c.ReconcileTimeout, c.LedgerProcessingLease,
		c.LedgerRetention, c.WebhookTolerance, c.KafkaBrokers)
}
