package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/josh-kwaku/storefront-webhooks/internal/config"
	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/handler"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
	"github.com/josh-kwaku/storefront-webhooks/internal/messaging"
	"github.com/josh-kwaku/storefront-webhooks/internal/middleware"
	"github.com/josh-kwaku/storefront-webhooks/internal/provider"
	"github.com/josh-kwaku/storefront-webhooks/internal/repository"
	"github.com/josh-kwaku/storefront-webhooks/internal/service"
	"github.com/josh-kwaku/storefront-webhooks/internal/telemetry"
)

const serviceName = "storefront-webhooks"

type ledgerStore interface {
	TryBegin(ctx context.Context, event domain.CanonicalEvent) (domain.Admission, error)
	Complete(ctx context.Context, eventID string, status domain.LedgerStatus, reason string) error
	List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.IdempotencyRecord, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)
	logger.Info("config loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	checks := map[string]handler.HealthCheck{"database": db.PingContext}

	ledger, closeLedger, err := buildLedger(cfg, db, checks)
	if err != nil {
		return err
	}
	defer closeLedger()

	publisher := messaging.NewPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	outbox := repository.NewOutboxRepository(db)
	txDB := repository.NewDB(db)
	orders := repository.NewOrderRepository(txDB, outbox)

	dispatcher := service.NewDispatcher(
		provider.NewVerifier(cfg.WebhookSecret, cfg.WebhookTolerance),
		provider.NewNormalizer(),
		ledger,
		service.NewReconciler(orders),
		messaging.NewRemediator(publisher, cfg.KafkaTopicRemediation),
		cfg.LedgerTimeout,
		cfg.ReconcileTimeout,
	)

	relay := service.NewOutboxRelay(outbox, txDB, publisher, map[domain.OutboxKind]string{
		domain.OutboxKindOrderPaid:          cfg.KafkaTopicFulfillment,
		domain.OutboxKindOrderPaymentFailed: cfg.KafkaTopicInventory,
		domain.OutboxKindOrderRefunded:      cfg.KafkaTopicInventory,
	}, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go relay.Start(ctx)

	health := handler.NewHealthHandler(checks)
	webhooks := handler.NewWebhookHandler(dispatcher)
	admin := handler.NewAdminHandler(ledger)
	requireOperator := middleware.RequireOperator(cfg.AdminJWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)
	mux.HandleFunc("POST /api/v1/webhooks/provider", webhooks.ReceiveProviderWebhook)
	mux.Handle("GET /api/v1/admin/webhook-events", requireOperator(http.HandlerFunc(admin.ListWebhookEvents)))

	var h http.Handler = middleware.Recovery(mux)
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID(h)
	h = otelhttp.NewHandler(h, "http.server")

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", addr, "ledger", cfg.LedgerBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func buildLedger(cfg *config.Config, db *sql.DB, checks map[string]handler.HealthCheck) (ledgerStore, func(), error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendRedis:
		client := repository.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ledger := repository.NewRedisLedger(client, cfg.LedgerProcessingLease, cfg.LedgerRetention)
		checks["redis"] = ledger.Ping
		return ledger, func() { client.Close() }, nil
	case config.LedgerBackendPostgres:
		return repository.NewWebhookLedgerRepository(db, cfg.LedgerProcessingLease), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
