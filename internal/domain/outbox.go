package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxKind string

const (
	OutboxKindOrderPaid          OutboxKind = "order.paid"
	OutboxKindOrderPaymentFailed OutboxKind = "order.payment_failed"
	OutboxKindOrderRefunded      OutboxKind = "order.refunded"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusDispatched OutboxStatus = "dispatched"
)

type OutboxMessage struct {
	ID           uuid.UUID
	SubjectID    string
	Kind         OutboxKind
	Payload      json.RawMessage
	Status       OutboxStatus
	Attempts     int
	CreatedAt    time.Time
	DispatchedAt *time.Time
}
