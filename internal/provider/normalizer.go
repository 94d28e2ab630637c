package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/tidwall/gjson"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

var eventTypes = map[stripe.EventType]domain.EventType{
	"payment_intent.succeeded":                 domain.EventTypePaymentSucceeded,
	"payment_intent.payment_failed":            domain.EventTypePaymentFailed,
	"charge.refunded":                          domain.EventTypeChargeRefunded,
	"checkout.session.completed":               domain.EventTypeSessionCompleted,
	"checkout.session.async_payment_succeeded": domain.EventTypePaymentSucceeded,
	"checkout.session.async_payment_failed":    domain.EventTypePaymentFailed,
	"checkout.session.expired":                 domain.EventTypeSessionExpired,
}

// subjectPaths are tried in order. Checkout sets client_reference_id; payment
// intents and charges carry the order id in metadata.
var subjectPaths = []string{"metadata.order_id", "client_reference_id"}

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

func (n *Normalizer) Normalize(rawBody []byte) (domain.CanonicalEvent, error) {
	var evt stripe.Event
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return domain.CanonicalEvent{}, fmt.Errorf("Normalize: %w: %v", domain.ErrMalformedEvent, err)
	}
	if evt.ID == "" {
		return domain.CanonicalEvent{}, fmt.Errorf("Normalize: %w: missing id", domain.ErrMalformedEvent)
	}
	if evt.Type == "" {
		return domain.CanonicalEvent{}, fmt.Errorf("Normalize: %w: missing type", domain.ErrMalformedEvent)
	}

	ce := domain.CanonicalEvent{
		ID:           evt.ID,
		Type:         domain.EventTypeUnhandled,
		ProviderType: string(evt.Type),
		Livemode:     evt.Livemode,
	}
	if evt.Created > 0 {
		ce.OccurredAt = time.Unix(evt.Created, 0).UTC()
	}

	var obj []byte
	if evt.Data != nil {
		obj = evt.Data.Raw
		ce.Payload = evt.Data.Object
	}
	ce.SubjectID = subjectID(obj)

	t, known := eventTypes[evt.Type]
	if !known {
		return ce, nil
	}
	if ce.SubjectID == "" {
		return domain.CanonicalEvent{}, fmt.Errorf("Normalize: %w: %s has no subject reference", domain.ErrMalformedEvent, evt.Type)
	}
	ce.Type = t
	resolveDetails(&ce, obj)

	return ce, nil
}

func subjectID(obj []byte) string {
	if len(obj) == 0 {
		return ""
	}
	for _, path := range subjectPaths {
		if v := gjson.GetBytes(obj, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

func resolveDetails(ce *domain.CanonicalEvent, obj []byte) {
	fields := gjson.GetManyBytes(obj,
		"object", "id", "payment_intent", "currency",
		"amount_received", "amount_refunded", "amount_total",
		"payment_status", "last_payment_error.code", "last_payment_error.message",
	)
	object, id, intent, currency := fields[0].Str, fields[1].Str, fields[2].Str, fields[3].Str
	received, refunded, total := fields[4].Int(), fields[5].Int(), fields[6].Int()

	ce.Currency = currency
	ce.PaymentStatus = fields[7].Str

	switch object {
	case "payment_intent":
		ce.ProviderRef = id
		ce.AmountMinor = received
	case "charge":
		ce.ProviderRef = intent
		ce.AmountMinor = refunded
	case "checkout.session":
		ce.ProviderRef = intent
		ce.AmountMinor = total
	default:
		ce.ProviderRef = id
	}

	switch ce.Type {
	case domain.EventTypePaymentFailed:
		ce.Reason = fields[8].Str
		if ce.Reason == "" {
			ce.Reason = fields[9].Str
		}
		if ce.Reason == "" {
			ce.Reason = "payment_failed"
		}
	case domain.EventTypeSessionExpired:
		ce.Reason = "checkout_session_expired"
	}
}
