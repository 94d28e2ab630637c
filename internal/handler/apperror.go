package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrForbidden        = &AppError{http.StatusForbidden, "FORBIDDEN", "Operator role required"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidSignature   = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrStaleTimestamp     = &AppError{http.StatusUnauthorized, "STALE_TIMESTAMP", "Webhook timestamp is outside the tolerance window"}
	ErrMalformedSignature = &AppError{http.StatusBadRequest, "MALFORMED_SIGNATURE", "Webhook signature header is malformed"}
	ErrMalformedEvent     = &AppError{http.StatusBadRequest, "MALFORMED_EVENT", "Webhook event is malformed"}
	ErrLedgerUnavailable  = &AppError{http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", "Event could not be recorded, retry later"}
	ErrEventInFlight      = &AppError{http.StatusConflict, "EVENT_IN_FLIGHT", "Event is still being processed, retry later"}
)
