package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"
)

func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusRefunded
}

type Order struct {
	ID            string
	Status        OrderStatus
	AmountMinor   int64
	Currency      string
	PaymentRef    *string
	FailureReason *string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transition is what an order command observed. Applied is false when the
// order was not in a state the command moves from; nothing was written then.
type Transition struct {
	SubjectID string
	From      OrderStatus
	To        OrderStatus
	Applied   bool
}

// TransitionCommand is what the reconciliation engine asks the order store
// to do. EventID ties the resulting outbox message back to the delivery.
type TransitionCommand struct {
	SubjectID   string
	EventID     string
	ProviderRef string
	Reason      string
}
