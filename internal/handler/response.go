package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// webhookAppError maps a dispatch error to the enumerated code returned to the
// provider. Anything unrecognised is an internal error so the provider retries.
func webhookAppError(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrBadSignature):
		return ErrInvalidSignature
	case errors.Is(err, domain.ErrStaleTimestamp):
		return ErrStaleTimestamp
	case errors.Is(err, domain.ErrMalformedHeader):
		return ErrMalformedSignature
	case errors.Is(err, domain.ErrMalformedEvent):
		return ErrMalformedEvent
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return ErrLedgerUnavailable
	case errors.Is(err, domain.ErrEventInFlight):
		return ErrEventInFlight
	default:
		return ErrInternalError
	}
}
