package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/provider"
	"github.com/josh-kwaku/storefront-webhooks/internal/repository"
	"github.com/josh-kwaku/storefront-webhooks/internal/testutil"
)

type capturedMessage struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type capturePublisher struct {
	mu   sync.Mutex
	sent []capturedMessage
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, topic, key string, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, capturedMessage{topic, key, value, headers})
	return nil
}

var testTopics = map[domain.OutboxKind]string{
	domain.OutboxKindOrderPaid:          "orders.fulfillment",
	domain.OutboxKindOrderPaymentFailed: "orders.inventory-release",
	domain.OutboxKindOrderRefunded:      "orders.inventory-restock",
}

type pipeline struct {
	db         *repository.DB
	outbox     *repository.OutboxRepository
	dispatcher *Dispatcher
	sender     *provider.Sender
}

func setupPipeline(t *testing.T) *pipeline {
	t.Helper()

	sqlDB := testutil.SetupTestDB(t)
	db := repository.NewDB(sqlDB)
	outbox := repository.NewOutboxRepository(sqlDB)
	orders := repository.NewOrderRepository(db, outbox)

	return &pipeline{
		db:     db,
		outbox: outbox,
		dispatcher: NewDispatcher(
			provider.NewVerifier(testSecret, 5*time.Minute),
			provider.NewNormalizer(),
			repository.NewWebhookLedgerRepository(sqlDB, time.Minute),
			NewReconciler(orders),
			&recordingRemediator{},
			3*time.Second,
			5*time.Second,
		),
		sender: provider.NewSender("", testSecret),
	}
}

func (p *pipeline) raw(t *testing.T, delivery provider.EventSpec) domain.RawEvent {
	t.Helper()
	body, err := p.sender.Encode(delivery)
	require.NoError(t, err)
	return domain.RawEvent{Body: body, Signature: p.sender.Sign(body, time.Now()), ReceivedAt: time.Now()}
}

func TestPipeline_ConcurrentDuplicatesApplyOnce(t *testing.T) {
	p := setupPipeline(t)
	sqlDB := p.db.Conn()
	testutil.SeedOrder(t, sqlDB, "order_42", domain.OrderStatusPending, 4200)

	raw := p.raw(t, paymentIntentEvent("evt_1", "payment_intent.succeeded", "order_42"))

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	dispositions := map[Disposition]int{}
	inFlight := 0
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.dispatcher.Dispatch(context.Background(), raw)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrEventInFlight)
				inFlight++
				return
			}
			dispositions[res.Disposition]++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dispositions[DispositionApplied])
	assert.Equal(t, n-1, dispositions[DispositionDuplicate]+inFlight)
	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, sqlDB, "order_42"))
	assert.Equal(t, 1, testutil.CountOutboxMessages(t, sqlDB, "order_42"))
	assert.Equal(t, domain.LedgerStatusApplied, testutil.GetLedgerStatus(t, sqlDB, "evt_1"))
}

func TestPipeline_SubjectNotFoundLedgersFailed(t *testing.T) {
	p := setupPipeline(t)

	res, err := p.dispatcher.Dispatch(context.Background(),
		p.raw(t, paymentIntentEvent("evt_2", "payment_intent.payment_failed", "order_missing")))

	require.NoError(t, err)
	assert.Equal(t, DispositionFailed, res.Disposition)
	assert.Equal(t, domain.LedgerStatusFailed, testutil.GetLedgerStatus(t, p.db.Conn(), "evt_2"))
}

func TestPipeline_PayThenRefund(t *testing.T) {
	p := setupPipeline(t)
	sqlDB := p.db.Conn()
	testutil.SeedOrder(t, sqlDB, "order_42", domain.OrderStatusPending, 4200)

	refund := provider.EventSpec{
		ID:   "evt_r1",
		Type: "charge.refunded",
		Object: map[string]any{
			"object":          "charge",
			"id":              "ch_1",
			"payment_intent":  "pi_evt_1",
			"amount_refunded": 4200,
			"currency":        "usd",
			"metadata":        map[string]any{"order_id": "order_42"},
		},
	}

	early, err := p.dispatcher.Dispatch(context.Background(), p.raw(t, refund))
	require.NoError(t, err)
	assert.Equal(t, DispositionFailed, early.Disposition)

	_, err = p.dispatcher.Dispatch(context.Background(),
		p.raw(t, paymentIntentEvent("evt_1", "payment_intent.succeeded", "order_42")))
	require.NoError(t, err)

	refund.ID = "evt_r2"
	res, err := p.dispatcher.Dispatch(context.Background(), p.raw(t, refund))
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, res.Disposition)
	assert.Equal(t, domain.OrderStatusRefunded, testutil.GetOrderStatus(t, sqlDB, "order_42"))
	assert.Equal(t, 2, testutil.CountOutboxMessages(t, sqlDB, "order_42"))
}

func TestOutboxRelay_PublishesAndMarksDispatched(t *testing.T) {
	p := setupPipeline(t)
	sqlDB := p.db.Conn()
	testutil.SeedOrder(t, sqlDB, "order_42", domain.OrderStatusPending, 4200)

	_, err := p.dispatcher.Dispatch(context.Background(),
		p.raw(t, paymentIntentEvent("evt_1", "payment_intent.succeeded", "order_42")))
	require.NoError(t, err)

	pub := &capturePublisher{}
	relay := NewOutboxRelay(p.outbox, p.db, pub, testTopics, slog.Default(), time.Second, 10)

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	assert.Equal(t, "orders.fulfillment", msg.topic)
	assert.Equal(t, "order_42", msg.key)
	assert.Equal(t, string(domain.OutboxKindOrderPaid), msg.headers["kind"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.value, &payload))
	assert.Equal(t, "evt_1", payload["event_id"])
	assert.Equal(t, "paid", payload["status"])
	assert.Equal(t, "42", payload["amount"])

	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs, err := p.outbox.ListBySubject(context.Background(), "order_42")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.OutboxStatusDispatched, msgs[0].Status)
	assert.NotNil(t, msgs[0].DispatchedAt)
}

func TestOutboxRelay_PublishFailureKeepsPending(t *testing.T) {
	p := setupPipeline(t)
	sqlDB := p.db.Conn()
	testutil.SeedOrder(t, sqlDB, "order_42", domain.OrderStatusPending, 4200)

	_, err := p.dispatcher.Dispatch(context.Background(),
		p.raw(t, paymentIntentEvent("evt_1", "payment_intent.succeeded", "order_42")))
	require.NoError(t, err)

	pub := &capturePublisher{err: errors.New("broker down")}
	relay := NewOutboxRelay(p.outbox, p.db, pub, testTopics, slog.Default(), time.Second, 10)

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs, err := p.outbox.ListBySubject(context.Background(), "order_42")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.OutboxStatusPending, msgs[0].Status)
	assert.Equal(t, 1, msgs[0].Attempts)

	pub.err = nil
	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
