package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

// MemoryLedger is an in-process idempotency ledger with the same admission
// semantics as the Postgres and Redis ledgers.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
	lease   time.Duration
	Now     func() time.Time

	// BeginErr and CompleteErr, when set, are returned instead of touching state.
	BeginErr    error
	CompleteErr error
}

func NewMemoryLedger(lease time.Duration) *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*domain.IdempotencyRecord),
		lease:   lease,
		Now:     time.Now,
	}
}

func (l *MemoryLedger) TryBegin(_ context.Context, event domain.CanonicalEvent) (domain.Admission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.BeginErr != nil {
		return 0, l.BeginErr
	}

	now := l.Now()
	rec, ok := l.records[event.ID]
	if !ok {
		l.records[event.ID] = &domain.IdempotencyRecord{
			EventID:    event.ID,
			EventType:  event.Type,
			SubjectID:  event.SubjectID,
			Status:     domain.LedgerStatusProcessing,
			ReceivedAt: now,
			StartedAt:  now,
		}
		return domain.Admitted, nil
	}

	if rec.Status != domain.LedgerStatusProcessing {
		return domain.AlreadyProcessed, nil
	}
	if now.Sub(rec.StartedAt) > l.lease {
		rec.StartedAt = now
		return domain.Admitted, nil
	}
	return domain.AlreadyProcessing, nil
}

func (l *MemoryLedger) Complete(_ context.Context, eventID string, status domain.LedgerStatus, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.CompleteErr != nil {
		return l.CompleteErr
	}

	rec, ok := l.records[eventID]
	if !ok || rec.Status != domain.LedgerStatusProcessing {
		return fmt.Errorf("Complete: %s: %w", eventID, domain.ErrLedgerConflict)
	}

	now := l.Now()
	rec.Status = status
	rec.ProcessedAt = &now
	if reason != "" {
		rec.FailureReason = &reason
	}
	return nil
}

func (l *MemoryLedger) Purge(_ context.Context, retention time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.Now().Add(-retention)
	var n int64
	for id, rec := range l.records {
		if rec.Status.IsTerminal() && rec.ReceivedAt.Before(cutoff) {
			delete(l.records, id)
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) List(_ context.Context, status domain.LedgerStatus, limit int) ([]domain.IdempotencyRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.IdempotencyRecord
	for _, rec := range l.records {
		if rec.Status == status && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Record returns a copy of the record for eventID, or nil.
func (l *MemoryLedger) Record(eventID string) *domain.IdempotencyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[eventID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// MemoryOrderStore is an in-process order collaborator. Transitions are
// serialized per store, which is stricter than the per-row locking in
// Postgres but has the same observable outcome.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	// Effects counts applied transitions per subject and target status.
	Effects map[string]map[domain.OrderStatus]int

	Err error
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:  make(map[string]*domain.Order),
		Effects: make(map[string]map[domain.OrderStatus]int),
	}
}

func (s *MemoryOrderStore) Put(id string, status domain.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[id] = &domain.Order{ID: id, Status: status, Currency: "usd"}
}

func (s *MemoryOrderStore) Status(id string) domain.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		return o.Status
	}
	return ""
}

func (s *MemoryOrderStore) EffectCount(id string, status domain.OrderStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Effects[id][status]
}

func (s *MemoryOrderStore) MarkPaid(_ context.Context, cmd domain.TransitionCommand) (domain.Transition, error) {
	return s.transition(cmd, domain.OrderStatusPending, domain.OrderStatusPaid)
}

func (s *MemoryOrderStore) MarkFailed(_ context.Context, cmd domain.TransitionCommand) (domain.Transition, error) {
	return s.transition(cmd, domain.OrderStatusPending, domain.OrderStatusFailed)
}

func (s *MemoryOrderStore) MarkRefunded(_ context.Context, cmd domain.TransitionCommand) (domain.Transition, error) {
	return s.transition(cmd, domain.OrderStatusPaid, domain.OrderStatusRefunded)
}

func (s *MemoryOrderStore) transition(cmd domain.TransitionCommand, from, to domain.OrderStatus) (domain.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return domain.Transition{}, s.Err
	}

	o, ok := s.orders[cmd.SubjectID]
	if !ok {
		return domain.Transition{}, domain.ErrSubjectNotFound
	}
	if o.Status != from {
		return domain.Transition{SubjectID: o.ID, From: o.Status, To: o.Status}, nil
	}

	o.Status = to
	o.Version++
	if s.Effects[o.ID] == nil {
		s.Effects[o.ID] = make(map[domain.OrderStatus]int)
	}
	s.Effects[o.ID][to]++
	return domain.Transition{SubjectID: o.ID, From: from, To: to, Applied: true}, nil
}
