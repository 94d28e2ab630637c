package domain

import "time"

type EventType string

const (
	EventTypePaymentSucceeded EventType = "payment_succeeded"
	EventTypePaymentFailed    EventType = "payment_failed"
	EventTypeChargeRefunded   EventType = "charge_refunded"
	EventTypeSessionCompleted EventType = "session_completed"
	EventTypeSessionExpired   EventType = "session_expired"
	EventTypeUnhandled        EventType = "unhandled"
)

// RawEvent is a delivery exactly as received. Body must never be
// re-serialized before signature verification.
type RawEvent struct {
	Body       []byte
	Signature  string
	ReceivedAt time.Time
}

// CanonicalEvent is the provider-agnostic form of a payment notification.
// Typed fields are resolved by the normalizer; Payload is kept for audit only.
type CanonicalEvent struct {
	ID            string
	Type          EventType
	ProviderType  string
	SubjectID     string
	OccurredAt    time.Time
	ProviderRef   string
	Reason        string
	PaymentStatus string
	AmountMinor   int64
	Currency      string
	Livemode      bool
	Payload       map[string]any
}

// Paid reports whether a completed checkout session already captured funds.
// Sessions using delayed payment methods complete as "unpaid" and settle later
// through async_payment_succeeded / async_payment_failed.
func (e CanonicalEvent) Paid() bool {
	return e.PaymentStatus == "paid" || e.PaymentStatus == "no_payment_required"
}
