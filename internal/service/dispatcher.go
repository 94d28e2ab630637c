package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

const tracerName = "github.com/josh-kwaku/storefront-webhooks/internal/service"

type Disposition string

const (
	DispositionApplied        Disposition = "applied"
	DispositionAlreadySettled Disposition = "already_settled"
	DispositionIgnored        Disposition = "ignored"
	DispositionDuplicate      Disposition = "duplicate"
	DispositionFailed         Disposition = "failed"
)

// Result is what the dispatcher tells the transport about an acknowledged
// delivery. Any returned error means the delivery was not acknowledged.
type Result struct {
	EventID     string
	EventType   domain.EventType
	SubjectID   string
	Disposition Disposition
}

// Dispatcher runs one delivery through verify, normalize, ledger admission,
// reconciliation and ledger completion.
type Dispatcher struct {
	verifier      eventVerifier
	normalizer    eventNormalizer
	ledger        idempotencyLedger
	engine        eventApplier
	remediation   remediationRouter
	ledgerTimeout time.Duration
	applyTimeout  time.Duration
	tracer        trace.Tracer
	now           func() time.Time
}

func NewDispatcher(
	verifier eventVerifier,
	normalizer eventNormalizer,
	ledger idempotencyLedger,
	engine eventApplier,
	remediation remediationRouter,
	ledgerTimeout time.Duration,
	applyTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		verifier:      verifier,
		normalizer:    normalizer,
		ledger:        ledger,
		engine:        engine,
		remediation:   remediation,
		ledgerTimeout: ledgerTimeout,
		applyTimeout:  applyTimeout,
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, raw domain.RawEvent) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "webhook.dispatch")
	defer span.End()

	result, err := d.dispatch(ctx, raw)
	span.SetAttributes(
		attribute.String("webhook.event_id", result.EventID),
		attribute.String("webhook.event_type", string(result.EventType)),
		attribute.String("webhook.disposition", string(result.Disposition)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook not acknowledged")
	}
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, raw domain.RawEvent) (Result, error) {
	if err := d.verifier.Verify(raw.Body, raw.Signature); err != nil {
		return Result{}, fmt.Errorf("Dispatch: %w", err)
	}

	event, err := d.normalizer.Normalize(raw.Body)
	if err != nil {
		return Result{}, fmt.Errorf("Dispatch: %w", err)
	}

	result := Result{EventID: event.ID, EventType: event.Type, SubjectID: event.SubjectID}
	ctx = logging.With(ctx,
		"event_id", event.ID,
		"event_type", event.Type,
		"subject_id", event.SubjectID,
	)
	log := logging.FromContext(ctx)

	admission, err := d.begin(ctx, event)
	if err != nil {
		return result, fmt.Errorf("Dispatch: %w", err)
	}
	switch admission {
	case domain.Admitted:
	case domain.AlreadyProcessed:
		log.Info("duplicate delivery acknowledged")
		result.Disposition = DispositionDuplicate
		return result, nil
	default:
		// The record may belong to an attempt that died before Complete.
		// The provider retries until the lease lets one reclaim it.
		return result, fmt.Errorf("Dispatch: %s: %w", event.ID, domain.ErrEventInFlight)
	}

	// Admitted work finishes even if the provider hangs up.
	ctx = context.WithoutCancel(ctx)

	outcome, applyErr := d.apply(ctx, event)
	if errors.Is(applyErr, context.DeadlineExceeded) {
		return result, fmt.Errorf("Dispatch: %w", ledgerFailure(applyErr))
	}
	if applyErr != nil {
		return d.fail(ctx, event, result, applyErr)
	}

	if err := d.complete(ctx, event.ID, outcome.LedgerStatus(), ""); err != nil {
		return result, fmt.Errorf("Dispatch: %w", err)
	}

	result.Disposition = Disposition(outcome)
	log.Info("webhook event processed",
		"outcome", outcome,
		"latency_ms", d.now().Sub(raw.ReceivedAt).Milliseconds(),
	)
	return result, nil
}

// fail ledgers a reconciliation error as terminal and hands it to
// remediation. The delivery is acknowledged only if the ledger write lands.
func (d *Dispatcher) fail(ctx context.Context, event domain.CanonicalEvent, result Result, cause error) (Result, error) {
	log := logging.FromContext(ctx)
	reason := FailureReason(cause)

	log.Error("reconciliation failed", "reason", reason, "error", cause)

	if err := d.complete(ctx, event.ID, domain.LedgerStatusFailed, fmt.Sprintf("%s: %v", reason, cause)); err != nil {
		return result, fmt.Errorf("Dispatch: %w", err)
	}

	notice := domain.RemediationNotice{
		EventID:      event.ID,
		EventType:    event.Type,
		ProviderType: event.ProviderType,
		SubjectID:    event.SubjectID,
		Reason:       reason,
		Detail:       cause.Error(),
		FailedAt:     d.now().UTC(),
	}
	if err := d.remediation.Route(ctx, notice); err != nil {
		log.Error("failed to route event to remediation", "error", err)
	}

	result.Disposition = DispositionFailed
	return result, nil
}

// apply bounds reconciliation. A deadline leaves the ledger record in
// processing so a retry after the lease can pick it up.
func (d *Dispatcher) apply(ctx context.Context, event domain.CanonicalEvent) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, d.applyTimeout)
	defer cancel()

	outcome, err := d.engine.Apply(ctx, event)
	if err != nil && ctx.Err() != nil {
		return outcome, fmt.Errorf("Apply: %w: %v", context.DeadlineExceeded, err)
	}
	return outcome, err
}

func (d *Dispatcher) begin(ctx context.Context, event domain.CanonicalEvent) (domain.Admission, error) {
	ctx, cancel := context.WithTimeout(ctx, d.ledgerTimeout)
	defer cancel()

	admission, err := d.ledger.TryBegin(ctx, event)
	if err != nil {
		return 0, ledgerFailure(err)
	}
	return admission, nil
}

func (d *Dispatcher) complete(ctx context.Context, eventID string, status domain.LedgerStatus, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, d.ledgerTimeout)
	defer cancel()

	if err := d.ledger.Complete(ctx, eventID, status, reason); err != nil {
		return ledgerFailure(err)
	}
	return nil
}

func ledgerFailure(err error) error {
	if errors.Is(err, domain.ErrLedgerUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
}

// FailureReason maps a reconciliation error to the enumerated reason
// recorded in the ledger and sent to remediation.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, domain.ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "reconcile_error"
	}
}
