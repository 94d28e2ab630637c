package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.CanonicalEvent
	}{
		{
			name: "payment intent succeeded",
			body: `{"id":"evt_1","type":"payment_intent.succeeded","created":1700000000,
				"data":{"object":{"object":"payment_intent","id":"pi_1","amount_received":4200,
				"currency":"usd","metadata":{"order_id":"order_42"}}}}`,
			want: domain.CanonicalEvent{
				ID: "evt_1", Type: domain.EventTypePaymentSucceeded, SubjectID: "order_42",
				ProviderRef: "pi_1", AmountMinor: 4200, Currency: "usd",
			},
		},
		{
			name: "payment intent failed uses error code",
			body: `{"id":"evt_2","type":"payment_intent.payment_failed","created":1700000000,
				"data":{"object":{"object":"payment_intent","id":"pi_2",
				"last_payment_error":{"code":"card_declined","message":"Your card was declined."},
				"metadata":{"order_id":"order_7"}}}}`,
			want: domain.CanonicalEvent{
				ID: "evt_2", Type: domain.EventTypePaymentFailed, SubjectID: "order_7",
				ProviderRef: "pi_2", Reason: "card_declined",
			},
		},
		{
			name: "charge refunded references the intent",
			body: `{"id":"evt_3","type":"charge.refunded","created":1700000000,
				"data":{"object":{"object":"charge","id":"ch_1","payment_intent":"pi_1",
				"amount_refunded":4200,"currency":"usd","metadata":{"order_id":"order_42"}}}}`,
			want: domain.CanonicalEvent{
				ID: "evt_3", Type: domain.EventTypeChargeRefunded, SubjectID: "order_42",
				ProviderRef: "pi_1", AmountMinor: 4200, Currency: "usd",
			},
		},
		{
			name: "checkout session completed via client reference",
			body: `{"id":"evt_4","type":"checkout.session.completed","created":1700000000,
				"data":{"object":{"object":"checkout.session","id":"cs_1","client_reference_id":"order_9",
				"payment_intent":"pi_9","payment_status":"paid","amount_total":1500,"currency":"eur"}}}`,
			want: domain.CanonicalEvent{
				ID: "evt_4", Type: domain.EventTypeSessionCompleted, SubjectID: "order_9",
				ProviderRef: "pi_9", PaymentStatus: "paid", AmountMinor: 1500, Currency: "eur",
			},
		},
		{
			name: "checkout session expired",
			body: `{"id":"evt_5","type":"checkout.session.expired","created":1700000000,
				"data":{"object":{"object":"checkout.session","id":"cs_2","client_reference_id":"order_10"}}}`,
			want: domain.CanonicalEvent{
				ID: "evt_5", Type: domain.EventTypeSessionExpired, SubjectID: "order_10",
				Reason: "checkout_session_expired",
			},
		},
		{
			name: "unknown type without subject",
			body: `{"id":"evt_6","type":"some.new.event","created":1700000000,"data":{"object":{"object":"thing"}}}`,
			want: domain.CanonicalEvent{ID: "evt_6", Type: domain.EventTypeUnhandled},
		},
	}

	n := NewNormalizer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Normalize([]byte(tc.body))
			require.NoError(t, err)

			assert.Equal(t, tc.want.ID, got.ID)
			assert.Equal(t, tc.want.Type, got.Type)
			assert.Equal(t, tc.want.SubjectID, got.SubjectID)
			assert.Equal(t, tc.want.ProviderRef, got.ProviderRef)
			assert.Equal(t, tc.want.Reason, got.Reason)
			assert.Equal(t, tc.want.PaymentStatus, got.PaymentStatus)
			assert.Equal(t, tc.want.AmountMinor, got.AmountMinor)
			assert.Equal(t, tc.want.Currency, got.Currency)
			assert.Equal(t, int64(1700000000), got.OccurredAt.Unix())
		})
	}
}

func TestNormalizer_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not-json`},
		{"empty body", ``},
		{"missing id", `{"type":"payment_intent.succeeded","data":{"object":{"metadata":{"order_id":"o"}}}}`},
		{"missing type", `{"id":"evt_1","data":{"object":{"metadata":{"order_id":"o"}}}}`},
		{"handled type without subject", `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"object":"payment_intent","id":"pi_1"}}}`},
	}

	n := NewNormalizer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize([]byte(tc.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
		})
	}
}

func TestNormalizer_RoundTripsSenderEncoding(t *testing.T) {
	s := NewSender("http://unused", testSecret)
	body, err := s.Encode(EventSpec{
		ID:   "evt_rt",
		Type: "payment_intent.succeeded",
		Object: map[string]any{
			"object":   "payment_intent",
			"id":       "pi_rt",
			"metadata": map[string]any{"order_id": "order_rt"},
		},
	})
	require.NoError(t, err)

	got, err := NewNormalizer().Normalize(body)
	require.NoError(t, err)
	assert.Equal(t, "order_rt", got.SubjectID)
	assert.Equal(t, domain.EventTypePaymentSucceeded, got.Type)
	assert.False(t, got.OccurredAt.IsZero())
}
