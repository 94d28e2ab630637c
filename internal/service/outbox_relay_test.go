package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

type fakeOutbox struct {
	pending    []domain.OutboxMessage
	dispatched []uuid.UUID
	attempted  []uuid.UUID
}

func (f *fakeOutbox) ClaimPending(_ context.Context, _ *sql.Tx, limit int) ([]domain.OutboxMessage, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkDispatched(_ context.Context, _ *sql.Tx, id uuid.UUID) error {
	f.dispatched = append(f.dispatched, id)
	return nil
}

func (f *fakeOutbox) RecordAttempt(_ context.Context, _ *sql.Tx, id uuid.UUID) error {
	f.attempted = append(f.attempted, id)
	return nil
}

type directTx struct{}

func (directTx) WithTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type scriptedPublisher struct {
	failIDs  map[string]bool
	sent     []string
}

func (p *scriptedPublisher) Publish(_ context.Context, _, _ string, _ []byte, headers map[string]string) error {
	if p.failIDs[headers["outbox_id"]] {
		return errors.New("leader not available")
	}
	p.sent = append(p.sent, headers["outbox_id"])
	return nil
}

func outboxMsg(subject string, kind domain.OutboxKind) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:        uuid.New(),
		SubjectID: subject,
		Kind:      kind,
		Payload:   []byte(`{}`),
		Status:    domain.OutboxStatusPending,
	}
}

func newTestRelay(outbox *fakeOutbox, pub *scriptedPublisher) *OutboxRelay {
	return NewOutboxRelay(outbox, directTx{}, pub, map[domain.OutboxKind]string{
		domain.OutboxKindOrderPaid:     "orders.fulfillment",
		domain.OutboxKindOrderRefunded: "orders.inventory",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second, 10)
}

func TestRelayOnce_PublishesAndMarksDispatched(t *testing.T) {
	paid := outboxMsg("order_1", domain.OutboxKindOrderPaid)
	refunded := outboxMsg("order_1", domain.OutboxKindOrderRefunded)
	outbox := &fakeOutbox{pending: []domain.OutboxMessage{paid, refunded}}
	pub := &scriptedPublisher{}

	n, err := newTestRelay(outbox, pub).RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{paid.ID.String(), refunded.ID.String()}, pub.sent)
	assert.Equal(t, []uuid.UUID{paid.ID, refunded.ID}, outbox.dispatched)
	assert.Empty(t, outbox.attempted)
}

func TestRelayOnce_HoldsSubjectAfterFailedPublish(t *testing.T) {
	paid := outboxMsg("order_1", domain.OutboxKindOrderPaid)
	refunded := outboxMsg("order_1", domain.OutboxKindOrderRefunded)
	other := outboxMsg("order_2", domain.OutboxKindOrderPaid)
	outbox := &fakeOutbox{pending: []domain.OutboxMessage{paid, refunded, other}}
	pub := &scriptedPublisher{failIDs: map[string]bool{paid.ID.String(): true}}

	n, err := newTestRelay(outbox, pub).RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{other.ID.String()}, pub.sent)
	assert.Equal(t, []uuid.UUID{paid.ID}, outbox.attempted)
	assert.Equal(t, []uuid.UUID{other.ID}, outbox.dispatched)
}

func TestRelayOnce_UnknownKindCountsAsFailure(t *testing.T) {
	msg := outboxMsg("order_1", domain.OutboxKindOrderPaymentFailed)
	outbox := &fakeOutbox{pending: []domain.OutboxMessage{msg}}

	n, err := newTestRelay(outbox, &scriptedPublisher{}).RelayOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []uuid.UUID{msg.ID}, outbox.attempted)
}
