package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

func SeedOrder(t *testing.T, db *sql.DB, id string, status domain.OrderStatus, amountMinor int64) *domain.Order {
	t.Helper()

	now := time.Now().UTC()
	o := &domain.Order{
		ID:          id,
		Status:      status,
		AmountMinor: amountMinor,
		Currency:    "usd",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := db.Exec(
		`INSERT INTO orders (id, status, amount_minor, currency, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		o.ID, o.Status, o.AmountMinor, o.Currency, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed order %s: %v", id, err)
	}
	return o
}

func GetOrderStatus(t *testing.T, db *sql.DB, id string) domain.OrderStatus {
	t.Helper()

	var status domain.OrderStatus
	if err := db.QueryRow(`SELECT status FROM orders WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get order status %s: %v", id, err)
	}
	return status
}

func CountOutboxMessages(t *testing.T, db *sql.DB, subjectID string) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM outbox_messages WHERE subject_id = $1`, subjectID).Scan(&count)
	if err != nil {
		t.Fatalf("count outbox messages for %s: %v", subjectID, err)
	}
	return count
}

func GetLedgerStatus(t *testing.T, db *sql.DB, eventID string) domain.LedgerStatus {
	t.Helper()

	var status domain.LedgerStatus
	if err := db.QueryRow(`SELECT status FROM webhook_ledger WHERE event_id = $1`, eventID).Scan(&status); err != nil {
		t.Fatalf("get ledger status %s: %v", eventID, err)
	}
	return status
}

// AgeLedgerLease pushes a processing record's lease start into the past.
func AgeLedgerLease(t *testing.T, db *sql.DB, eventID string, by time.Duration) {
	t.Helper()

	_, err := db.Exec(
		`UPDATE webhook_ledger SET started_at = started_at - make_interval(secs => $2),
			received_at = received_at - make_interval(secs => $2)
		 WHERE event_id = $1`,
		eventID, by.Seconds(),
	)
	if err != nil {
		t.Fatalf("age ledger record %s: %v", eventID, err)
	}
}
