package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

const outboxColumns = `id, subject_id, kind, payload, status, attempts, created_at, dispatched_at`

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_messages (id, subject_id, kind, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.SubjectID, msg.Kind, string(msg.Payload), msg.Status, msg.Attempts, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit pending messages for the caller's
// transaction. SKIP LOCKED lets several relays run side by side.
func (r *OutboxRepository) ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxMessage, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_messages
		WHERE status = $1 ORDER BY created_at LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return r.update(ctx, tx, "MarkDispatched",
		`UPDATE outbox_messages SET status = $1, attempts = attempts + 1, dispatched_at = now()
		WHERE id = $2`,
		domain.OutboxStatusDispatched, id,
	)
}

func (r *OutboxRepository) RecordAttempt(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	return r.update(ctx, tx, "RecordAttempt",
		`UPDATE outbox_messages SET attempts = attempts + 1 WHERE id = $1`,
		id,
	)
}

func (r *OutboxRepository) ListBySubject(ctx context.Context, subjectID string) ([]domain.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outboxColumns+` FROM outbox_messages WHERE subject_id = $1 ORDER BY created_at`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListBySubject: %w", err)
	}
	defer rows.Close()

	var msgs []domain.OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBySubject: scan: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListBySubject: rows: %w", err)
	}
	return msgs, nil
}

func (r *OutboxRepository) update(ctx context.Context, tx *sql.Tx, op, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

func scanOutboxMessage(s scanner) (*domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	var payload []byte
	err := s.Scan(
		&m.ID, &m.SubjectID, &m.Kind, &payload, &m.Status,
		&m.Attempts, &m.CreatedAt, &m.DispatchedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Payload = payload
	return &m, nil
}
