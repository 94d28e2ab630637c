package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type ledgerLister interface {
	List(ctx context.Context, status domain.LedgerStatus, limit int) ([]domain.IdempotencyRecord, error)
}

// AdminHandler serves the operator view of the idempotency ledger.
type AdminHandler struct {
	ledger ledgerLister
}

func NewAdminHandler(ledger ledgerLister) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

type ledgerRecordResponse struct {
	EventID       string     `json:"event_id"`
	EventType     string     `json:"event_type"`
	SubjectID     string     `json:"subject_id"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

func toLedgerRecordResponse(rec domain.IdempotencyRecord) ledgerRecordResponse {
	return ledgerRecordResponse{
		EventID:       rec.EventID,
		EventType:     string(rec.EventType),
		SubjectID:     rec.SubjectID,
		Status:        string(rec.Status),
		FailureReason: rec.FailureReason,
		ReceivedAt:    rec.ReceivedAt,
		ProcessedAt:   rec.ProcessedAt,
	}
}

func (h *AdminHandler) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var fields []FieldError

	status := domain.LedgerStatusFailed
	if s := q.Get("status"); s != "" {
		status = domain.LedgerStatus(s)
		if !status.IsValid() {
			fields = append(fields, FieldError{Field: "status", Message: "must be processing, applied, skipped or failed"})
		}
	}

	limit := defaultListLimit
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > maxListLimit {
			fields = append(fields, FieldError{Field: "limit", Message: "must be between 1 and 500"})
		}
		limit = n
	}

	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	records, err := h.ledger.List(r.Context(), status, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list ledger records", "status", status, "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	out := make([]ledgerRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toLedgerRecordResponse(rec))
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}
