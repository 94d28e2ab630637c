package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

const orderColumns = `id, status, amount_minor, currency, payment_ref, failure_reason,
	version, created_at, updated_at`

type outboxWriter interface {
	Create(ctx context.Context, tx *sql.Tx, msg *domain.OutboxMessage) error
}

// OrderRepository is the order/cart collaborator. Each Mark* command locks the
// order row, moves it only from its expected source status, and records the
// side effect in the outbox within the same transaction.
type OrderRepository struct {
	db     *DB
	outbox outboxWriter
}

func NewOrderRepository(db *DB, outbox outboxWriter) *OrderRepository {
	return &OrderRepository{db: db, outbox: outbox}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	_, err := r.db.Conn().ExecContext(ctx,
		`INSERT INTO orders (id, status, amount_minor, currency, payment_ref, failure_reason,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.Status, order.AmountMinor, order.Currency, order.PaymentRef,
		order.FailureReason, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateOrder)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	)
	o, err := scanOrder(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error) {
	t, err := r.transition(ctx, cmd, domain.OrderStatusPending, domain.OrderStatusPaid, domain.OutboxKindOrderPaid)
	if err != nil {
		return t, fmt.Errorf("MarkPaid: %w", err)
	}
	return t, nil
}

func (r *OrderRepository) MarkFailed(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error) {
	t, err := r.transition(ctx, cmd, domain.OrderStatusPending, domain.OrderStatusFailed, domain.OutboxKindOrderPaymentFailed)
	if err != nil {
		return t, fmt.Errorf("MarkFailed: %w", err)
	}
	return t, nil
}

func (r *OrderRepository) MarkRefunded(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error) {
	t, err := r.transition(ctx, cmd, domain.OrderStatusPaid, domain.OrderStatusRefunded, domain.OutboxKindOrderRefunded)
	if err != nil {
		return t, fmt.Errorf("MarkRefunded: %w", err)
	}
	return t, nil
}

type orderEventPayload struct {
	OrderID        string             `json:"order_id"`
	EventID        string             `json:"event_id"`
	Status         domain.OrderStatus `json:"status"`
	PreviousStatus domain.OrderStatus `json:"previous_status"`
	Amount         decimal.Decimal    `json:"amount"`
	Currency       string             `json:"currency"`
	PaymentRef     string             `json:"payment_ref,omitempty"`
	Reason         string             `json:"reason,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func (r *OrderRepository) transition(
	ctx context.Context,
	cmd domain.TransitionCommand,
	from, to domain.OrderStatus,
	kind domain.OutboxKind,
) (domain.Transition, error) {
	result := domain.Transition{SubjectID: cmd.SubjectID}

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, cmd.SubjectID,
		)
		order, err := scanOrder(row)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrSubjectNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		result.From = order.Status
		result.To = order.Status
		if order.Status != from {
			return nil
		}

		var paymentRef, failureReason *string
		if cmd.ProviderRef != "" {
			paymentRef = &cmd.ProviderRef
		}
		if to == domain.OrderStatusFailed && cmd.Reason != "" {
			failureReason = &cmd.Reason
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1,
				payment_ref = COALESCE($2, payment_ref),
				failure_reason = COALESCE($3, failure_reason),
				version = version + 1, updated_at = $4
			WHERE id = $5 AND version = $6`,
			to, paymentRef, failureReason, now, order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return fmt.Errorf("update order: version %d no longer current", order.Version)
		}

		ref := cmd.ProviderRef
		if ref == "" && order.PaymentRef != nil {
			ref = *order.PaymentRef
		}
		payload, err := json.Marshal(orderEventPayload{
			OrderID:        order.ID,
			EventID:        cmd.EventID,
			Status:         to,
			PreviousStatus: from,
			Amount:         decimal.New(order.AmountMinor, -2),
			Currency:       order.Currency,
			PaymentRef:     ref,
			Reason:         cmd.Reason,
			OccurredAt:     now,
		})
		if err != nil {
			return fmt.Errorf("marshal outbox payload: %w", err)
		}

		msg := &domain.OutboxMessage{
			ID:        uuid.New(),
			SubjectID: order.ID,
			Kind:      kind,
			Payload:   payload,
			Status:    domain.OutboxStatusPending,
			CreatedAt: now,
		}
		if err := r.outbox.Create(ctx, tx, msg); err != nil {
			return fmt.Errorf("write outbox: %w", err)
		}

		result.To = to
		result.Applied = true
		return nil
	})
	if err != nil {
		return domain.Transition{SubjectID: cmd.SubjectID}, err
	}
	return result, nil
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	err := s.Scan(
		&o.ID, &o.Status, &o.AmountMinor, &o.Currency, &o.PaymentRef, &o.FailureReason,
		&o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
