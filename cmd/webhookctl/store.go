package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/storefront-webhooks/internal/config"
	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/repository"
)

// storeConfig is the subset of the service configuration the ledger commands
// need. Secrets unrelated to the ledger are not required here.
type storeConfig struct {
	DatabaseURL           string               `env:"DATABASE_URL"`
	LedgerBackend         config.LedgerBackend `env:"LEDGER_BACKEND" envDefault:"postgres"`
	LedgerProcessingLease time.Duration        `env:"LEDGER_PROCESSING_LEASE" envDefault:"2m"`
	LedgerRetention       time.Duration        `env:"LEDGER_RETENTION" envDefault:"720h"`
	RedisAddr             string               `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword         string               `env:"REDIS_PASSWORD"`
	RedisDB               int                  `env:"REDIS_DB" envDefault:"0"`
}

type ledgerAdmin interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
	List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.IdempotencyRecord, error)
}

func loadStoreConfig() (storeConfig, error) {
	cfg, err := env.ParseAs[storeConfig]()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openLedger(ctx context.Context, cfg storeConfig) (ledgerAdmin, func(), error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendRedis:
		client := repository.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ledger := repository.NewRedisLedger(client, cfg.LedgerProcessingLease, cfg.LedgerRetention)
		return ledger, func() { client.Close() }, nil
	case config.LedgerBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
			MaxOpenConns: 2,
			MaxIdleConns: 1,
		})
		if err != nil {
			return nil, nil, err
		}
		return repository.NewWebhookLedgerRepository(db, cfg.LedgerProcessingLease), closer(db), nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func closer(db *sql.DB) func() {
	return func() { db.Close() }
}
