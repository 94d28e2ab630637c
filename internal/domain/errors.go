package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateOrder = errors.New("order already exists")

	ErrMalformedHeader = errors.New("malformed signature header")
	ErrBadSignature    = errors.New("signature mismatch")
	ErrStaleTimestamp  = errors.New("signature timestamp outside tolerance")

	ErrMalformedEvent = errors.New("malformed event payload")

	ErrLedgerUnavailable = errors.New("idempotency ledger unavailable")
	ErrLedgerConflict    = errors.New("ledger record not in processing state")
	ErrEventInFlight     = errors.New("event is still being processed")

	ErrSubjectNotFound   = errors.New("subject not found")
	ErrOutOfOrder        = errors.New("event arrived before its prerequisite transition")
	ErrInvalidTransition = errors.New("invalid order transition")
)

// IsVerificationError reports whether err means the delivery could not be
// authenticated. Retrying the same payload can never succeed.
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrMalformedHeader) ||
		errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrStaleTimestamp)
}
