package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/testutil"
)

func setupOrders(t *testing.T) (*OrderRepository, *OutboxRepository, *DB) {
	t.Helper()
	sqlDB := testutil.SetupTestDB(t)
	outbox := NewOutboxRepository(sqlDB)
	db := NewDB(sqlDB)
	return NewOrderRepository(db, outbox), outbox, db
}

func TestOrderRepository_Create(t *testing.T) {
	orders, _, _ := setupOrders(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	order := &domain.Order{
		ID:          "order_1",
		Status:      domain.OrderStatusPending,
		AmountMinor: 1999,
		Currency:    "usd",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, orders.Create(ctx, order))

	err := orders.Create(ctx, order)
	assert.True(t, errors.Is(err, domain.ErrDuplicateOrder))

	got, err := orders.GetByID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, int64(1999), got.AmountMinor)

	_, err = orders.GetByID(ctx, "order_none")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestOrderRepository_MarkPaid(t *testing.T) {
	orders, outbox, db := setupOrders(t)
	ctx := context.Background()
	testutil.SeedOrder(t, db.Conn(), "order_42", domain.OrderStatusPending, 4200)

	cmd := domain.TransitionCommand{SubjectID: "order_42", EventID: "evt_1", ProviderRef: "pi_1"}
	tr, err := orders.MarkPaid(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, tr.Applied)
	assert.Equal(t, domain.OrderStatusPending, tr.From)
	assert.Equal(t, domain.OrderStatusPaid, tr.To)

	got, err := orders.GetByID(ctx, "order_42")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)
	assert.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.PaymentRef)
	assert.Equal(t, "pi_1", *got.PaymentRef)

	msgs, err := outbox.ListBySubject(ctx, "order_42")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.OutboxKindOrderPaid, msgs[0].Kind)
	assert.Equal(t, domain.OutboxStatusPending, msgs[0].Status)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &payload))
	assert.Equal(t, "42", payload["amount"])
	assert.Equal(t, "pending", payload["previous_status"])
	assert.Equal(t, "pi_1", payload["payment_ref"])

	again, err := orders.MarkPaid(ctx, cmd)
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, domain.OrderStatusPaid, again.From)
	assert.Equal(t, 1, testutil.CountOutboxMessages(t, db.Conn(), "order_42"))
}

func TestOrderRepository_MarkFailedKeepsReason(t *testing.T) {
	orders, _, db := setupOrders(t)
	ctx := context.Background()
	testutil.SeedOrder(t, db.Conn(), "order_7", domain.OrderStatusPending, 500)

	tr, err := orders.MarkFailed(ctx, domain.TransitionCommand{SubjectID: "order_7", EventID: "evt_2", Reason: "card_declined"})
	require.NoError(t, err)
	assert.True(t, tr.Applied)

	got, err := orders.GetByID(ctx, "order_7")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "card_declined", *got.FailureReason)
}

func TestOrderRepository_MarkRefundedRequiresPaid(t *testing.T) {
	orders, _, db := setupOrders(t)
	ctx := context.Background()
	testutil.SeedOrder(t, db.Conn(), "order_42", domain.OrderStatusPending, 4200)

	tr, err := orders.MarkRefunded(ctx, domain.TransitionCommand{SubjectID: "order_42", EventID: "evt_r"})
	require.NoError(t, err)
	assert.False(t, tr.Applied)
	assert.Equal(t, domain.OrderStatusPending, tr.From)
	assert.Equal(t, 0, testutil.CountOutboxMessages(t, db.Conn(), "order_42"))
}

func TestOrderRepository_UnknownSubject(t *testing.T) {
	orders, _, _ := setupOrders(t)

	_, err := orders.MarkPaid(context.Background(), domain.TransitionCommand{SubjectID: "order_missing"})
	assert.True(t, errors.Is(err, domain.ErrSubjectNotFound))
}

func TestOrderRepository_ConcurrentTransitions(t *testing.T) {
	orders, _, db := setupOrders(t)
	testutil.SeedOrder(t, db.Conn(), "order_42", domain.OrderStatusPending, 4200)

	const n = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := domain.TransitionCommand{SubjectID: "order_42", EventID: "evt_c"}
			var tr domain.Transition
			var err error
			if i%2 == 0 {
				tr, err = orders.MarkPaid(context.Background(), cmd)
			} else {
				tr, err = orders.MarkFailed(context.Background(), cmd)
			}
			assert.NoError(t, err)
			if tr.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, testutil.CountOutboxMessages(t, db.Conn(), "order_42"))
	assert.True(t, testutil.GetOrderStatus(t, db.Conn(), "order_42").IsSettled())
}
