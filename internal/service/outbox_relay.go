package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

// OutboxRelay publishes committed order side effects. Rows are claimed with
// SKIP LOCKED, so several relays can run against one database. Delivery is
// at least once; consumers dedupe on the outbox id header.
type OutboxRelay struct {
	outbox    outboxStore
	db        txRunner
	publisher messagePublisher
	topics    map[domain.OutboxKind]string
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewOutboxRelay(
	outbox outboxStore,
	db txRunner,
	publisher messagePublisher,
	topics map[domain.OutboxKind]string,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
) *OutboxRelay {
	return &OutboxRelay{
		outbox:    outbox,
		db:        db,
		publisher: publisher,
		topics:    topics,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *OutboxRelay) poll(ctx context.Context) {
	n, err := r.RelayOnce(ctx)
	if err != nil {
		r.logger.Error("outbox relay pass failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Debug("outbox messages dispatched", "count", n)
	}
}

// RelayOnce claims one batch and returns how many messages were published.
// A failed publish leaves the row pending with its attempt count bumped, and
// later rows for the same subject stay pending untouched.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var dispatched int
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		msgs, err := r.outbox.ClaimPending(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}

		// A subject whose message failed publishes nothing further this pass,
		// so its events reach the topic in commit order.
		held := make(map[string]bool)
		for _, msg := range msgs {
			if held[msg.SubjectID] {
				continue
			}
			if err := r.publish(ctx, msg); err != nil {
				held[msg.SubjectID] = true
				r.logger.Warn("outbox publish failed",
					"outbox_id", msg.ID,
					"kind", msg.Kind,
					"subject_id", msg.SubjectID,
					"attempts", msg.Attempts+1,
					"error", err,
				)
				if err := r.outbox.RecordAttempt(ctx, tx, msg.ID); err != nil {
					return err
				}
				continue
			}

			if err := r.outbox.MarkDispatched(ctx, tx, msg.ID); err != nil {
				return err
			}
			dispatched++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("RelayOnce: %w", err)
	}
	return dispatched, nil
}

func (r *OutboxRelay) publish(ctx context.Context, msg domain.OutboxMessage) error {
	topic, ok := r.topics[msg.Kind]
	if !ok {
		return fmt.Errorf("no topic for outbox kind %q", msg.Kind)
	}

	headers := map[string]string{
		"outbox_id": msg.ID.String(),
		"kind":      string(msg.Kind),
	}
	return r.publisher.Publish(ctx, topic, msg.SubjectID, msg.Payload, headers)
}
