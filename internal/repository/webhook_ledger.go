package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

const ledgerColumns = `event_id, event_type, subject_id, status, failure_reason,
	received_at, started_at, processed_at`

// WebhookLedgerRepository is the Postgres idempotency ledger. The primary key
// on event_id makes TryBegin atomic across concurrent deliveries.
type WebhookLedgerRepository struct {
	db    *sql.DB
	lease time.Duration
}

func NewWebhookLedgerRepository(db *sql.DB, lease time.Duration) *WebhookLedgerRepository {
	return &WebhookLedgerRepository{db: db, lease: lease}
}

func (r *WebhookLedgerRepository) TryBegin(ctx context.Context, event domain.CanonicalEvent) (domain.Admission, error) {
	// The conditional DO UPDATE reclaims a processing record whose owner
	// outlived the lease. Any returned row means this caller owns the event.
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO webhook_ledger (event_id, event_type, subject_id, status, received_at, started_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (event_id) DO UPDATE SET started_at = now()
		WHERE webhook_ledger.status = $4
			AND webhook_ledger.started_at < now() - make_interval(secs => $5)
		RETURNING (xmax = 0)`,
		event.ID, event.Type, event.SubjectID, domain.LedgerStatusProcessing, r.lease.Seconds(),
	).Scan(&inserted)
	if err == nil {
		if !inserted {
			logging.FromContext(ctx).Warn("reclaimed expired ledger lease", "event_id", event.ID)
		}
		return domain.Admitted, nil
	}
	if !isNoRows(err) {
		return 0, fmt.Errorf("TryBegin: %w: %v", domain.ErrLedgerUnavailable, err)
	}

	var status domain.LedgerStatus
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM webhook_ledger WHERE event_id = $1`, event.ID,
	).Scan(&status)
	if err != nil {
		return 0, fmt.Errorf("TryBegin: lookup: %w: %v", domain.ErrLedgerUnavailable, err)
	}

	if status == domain.LedgerStatusProcessing {
		return domain.AlreadyProcessing, nil
	}
	return domain.AlreadyProcessed, nil
}

func (r *WebhookLedgerRepository) Complete(ctx context.Context, eventID string, status domain.LedgerStatus, reason string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("Complete: %q is not a terminal status", status)
	}

	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_ledger SET status = $2, failure_reason = $3, processed_at = now()
		WHERE event_id = $1 AND status = $4`,
		eventID, status, failureReason, domain.LedgerStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w: %v", domain.ErrLedgerUnavailable, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Complete: rows affected: %w: %v", domain.ErrLedgerUnavailable, err)
	}
	if rows == 0 {
		return fmt.Errorf("Complete: %s: %w", eventID, domain.ErrLedgerConflict)
	}
	return nil
}

// Purge deletes terminal records received before the retention window.
// Processing records are never purged.
func (r *WebhookLedgerRepository) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM webhook_ledger
		WHERE status <> $1 AND received_at < now() - make_interval(secs => $2)`,
		domain.LedgerStatusProcessing, retention.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("Purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Purge: rows affected: %w", err)
	}
	return n, nil
}

func (r *WebhookLedgerRepository) Get(ctx context.Context, eventID string) (*domain.IdempotencyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM webhook_ledger WHERE event_id = $1`, eventID,
	)
	rec, err := scanLedgerRecord(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

func (r *WebhookLedgerRepository) List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.IdempotencyRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM webhook_ledger
		WHERE status = $1 ORDER BY received_at DESC LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var records []domain.IdempotencyRecord
	for rows.Next() {
		rec, err := scanLedgerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return records, nil
}

func scanLedgerRecord(s scanner) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := s.Scan(
		&rec.EventID, &rec.EventType, &rec.SubjectID, &rec.Status, &rec.FailureReason,
		&rec.ReceivedAt, &rec.StartedAt, &rec.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
