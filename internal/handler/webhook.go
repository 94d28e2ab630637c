package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
	"github.com/josh-kwaku/storefront-webhooks/internal/provider"
	"github.com/josh-kwaku/storefront-webhooks/internal/service"
)

const maxWebhookBody = 1 << 20

type webhookDispatcher interface {
	Dispatch(ctx context.Context, raw domain.RawEvent) (service.Result, error)
}

type WebhookHandler struct {
	dispatcher webhookDispatcher
}

func NewWebhookHandler(dispatcher webhookDispatcher) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

type webhookAck struct {
	Status    service.Disposition `json:"status"`
	EventID   string              `json:"event_id"`
	EventType domain.EventType    `json:"event_type"`
}

func (h *WebhookHandler) ReceiveProviderWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	raw := domain.RawEvent{
		Body:       body,
		Signature:  r.Header.Get(provider.SignatureHeader),
		ReceivedAt: time.Now().UTC(),
	}

	result, err := h.dispatcher.Dispatch(r.Context(), raw)
	if err != nil {
		appErr := webhookAppError(err)
		switch {
		case domain.IsVerificationError(err):
			log.Warn("webhook verification failed", "code", appErr.Code, "error", err)
		case errors.Is(err, domain.ErrMalformedEvent):
			log.Warn("malformed webhook event", "error", err, "body_bytes", len(body))
		case errors.Is(err, domain.ErrEventInFlight):
			log.Info("webhook event still in flight, asking for retry", "event_id", result.EventID)
		default:
			log.Error("webhook not acknowledged",
				"code", appErr.Code,
				"event_id", result.EventID,
				"error", err,
			)
		}
		RespondAppError(w, appErr, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, webhookAck{
		Status:    result.Disposition,
		EventID:   result.EventID,
		EventType: result.EventType,
	})
}
