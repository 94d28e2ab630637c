package service

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadySettled Outcome = "already_settled"
	OutcomeIgnored        Outcome = "ignored"
)

// LedgerStatus is the terminal ledger status recorded for a successful
// outcome. Ignored events count as applied no-ops.
func (o Outcome) LedgerStatus() domain.LedgerStatus {
	if o == OutcomeAlreadySettled {
		return domain.LedgerStatusSkipped
	}
	return domain.LedgerStatusApplied
}

// Reconciler applies canonical events to orders. It holds no state of its
// own; per-order atomicity is the order store's job.
type Reconciler struct {
	orders orderCommands
}

func NewReconciler(orders orderCommands) *Reconciler {
	return &Reconciler{orders: orders}
}

func (r *Reconciler) Apply(ctx context.Context, event domain.CanonicalEvent) (Outcome, error) {
	cmd := domain.TransitionCommand{
		SubjectID:   event.SubjectID,
		EventID:     event.ID,
		ProviderRef: event.ProviderRef,
		Reason:      event.Reason,
	}

	switch event.Type {
	case domain.EventTypePaymentSucceeded:
		return r.settle(ctx, cmd, r.orders.MarkPaid)
	case domain.EventTypeSessionCompleted:
		if !event.Paid() {
			logging.FromContext(ctx).Info("checkout completed without captured payment",
				"payment_status", event.PaymentStatus)
			return OutcomeIgnored, nil
		}
		return r.settle(ctx, cmd, r.orders.MarkPaid)
	case domain.EventTypePaymentFailed, domain.EventTypeSessionExpired:
		return r.settle(ctx, cmd, r.orders.MarkFailed)
	case domain.EventTypeChargeRefunded:
		return r.refund(ctx, cmd)
	default:
		logging.FromContext(ctx).Info("event type not handled, acknowledging",
			"provider_type", event.ProviderType)
		return OutcomeIgnored, nil
	}
}

type transitionFunc func(ctx context.Context, cmd domain.TransitionCommand) (domain.Transition, error)

// settle moves a pending order to a settled status. An order that already
// settled is a benign no-op regardless of which way it settled.
func (r *Reconciler) settle(ctx context.Context, cmd domain.TransitionCommand, fn transitionFunc) (Outcome, error) {
	t, err := fn(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("Apply: %s: %w", cmd.SubjectID, err)
	}
	if t.Applied {
		logging.FromContext(ctx).Info("order transitioned", "from", t.From, "to", t.To)
		return OutcomeApplied, nil
	}
	if t.From.IsSettled() {
		logging.FromContext(ctx).Info("order already settled", "order_status", t.From)
		return OutcomeAlreadySettled, nil
	}
	return "", fmt.Errorf("Apply: %s in %s: %w", cmd.SubjectID, t.From, domain.ErrInvalidTransition)
}

func (r *Reconciler) refund(ctx context.Context, cmd domain.TransitionCommand) (Outcome, error) {
	t, err := r.orders.MarkRefunded(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("Apply: %s: %w", cmd.SubjectID, err)
	}
	if t.Applied {
		logging.FromContext(ctx).Info("order transitioned", "from", t.From, "to", t.To)
		return OutcomeApplied, nil
	}

	switch t.From {
	case domain.OrderStatusRefunded:
		logging.FromContext(ctx).Info("order already refunded")
		return OutcomeAlreadySettled, nil
	case domain.OrderStatusPending:
		return "", fmt.Errorf("Apply: refund for unpaid order %s: %w", cmd.SubjectID, domain.ErrOutOfOrder)
	default:
		return "", fmt.Errorf("Apply: refund for %s order %s: %w", t.From, cmd.SubjectID, domain.ErrInvalidTransition)
	}
}
