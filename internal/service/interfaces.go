package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

type orderCommands interface {
	MarkPaid(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error)
	MarkFailed(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error)
	MarkRefunded(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error)
}

type eventVerifier interface {
	Verify(rawBody []byte, header string) error
}

type eventNormalizer interface {
	Normalize(rawBody []byte) (domain.CanonicalEvent, error)
}

type idempotencyLedger interface {
	TryBegin(ctx context.Context, event domain.CanonicalEvent) (domain.Admission, error)
	Complete(ctx context.Context, eventID string, status domain.LedgerStatus, reason string) error
}

type eventApplier interface {
	Apply(ctx context.Context, event domain.CanonicalEvent) (Outcome, error)
}

type remediationRouter interface {
	Route(ctx context.Context, notice domain.RemediationNotice) error
}

type outboxStore interface {
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.OutboxMessage, error)
	MarkDispatched(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	RecordAttempt(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type messagePublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}
