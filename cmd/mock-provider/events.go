package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/storefront-webhooks/internal/provider"
)

type eventRequest struct {
	Type          string `json:"type"`
	OrderID       string `json:"order_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

func (r eventRequest) validate() error {
	if r.Type == "" {
		return fmt.Errorf("type is required")
	}
	if r.OrderID == "" && !strings.HasPrefix(r.Type, "custom.") {
		return fmt.Errorf("order_id is required")
	}
	return nil
}

// buildEvent shapes a provider event the way the real provider would for the
// object family named by the type prefix.
func buildEvent(req eventRequest) provider.EventSpec {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	intentID := "pi_" + suffix
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	var obj map[string]any
	switch {
	case strings.HasPrefix(req.Type, "payment_intent."):
		obj = map[string]any{
			"object":          "payment_intent",
			"id":              intentID,
			"amount_received": req.Amount,
			"currency":        currency,
			"metadata":        map[string]any{"order_id": req.OrderID},
		}
		if req.Reason != "" {
			obj["last_payment_error"] = map[string]any{"code": req.Reason}
		}
	case strings.HasPrefix(req.Type, "charge."):
		obj = map[string]any{
			"object":          "charge",
			"id":              "ch_" + suffix,
			"payment_intent":  intentID,
			"amount_refunded": req.Amount,
			"currency":        currency,
			"metadata":        map[string]any{"order_id": req.OrderID},
		}
	case strings.HasPrefix(req.Type, "checkout.session."):
		status := req.PaymentStatus
		if status == "" {
			status = "paid"
		}
		obj = map[string]any{
			"object":              "checkout.session",
			"id":                  "cs_" + suffix,
			"client_reference_id": req.OrderID,
			"payment_intent":      intentID,
			"payment_status":      status,
			"amount_total":        req.Amount,
			"currency":            currency,
		}
	default:
		obj = map[string]any{"object": "unknown", "id": "obj_" + suffix}
	}

	return provider.EventSpec{
		ID:      "evt_" + suffix,
		Type:    req.Type,
		Created: time.Now().Unix(),
		Object:  obj,
	}
}
