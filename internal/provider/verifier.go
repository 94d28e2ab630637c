package provider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

const SignatureHeader = "Stripe-Signature"

// Verifier checks the provider's HMAC-SHA256 signature over the raw body.
// The signed string is "<t>.<body>", so the body must be the exact bytes
// received; a re-encoded body will not match.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// Verify accepts a signature whose timestamp is within tolerance on either
// side of now.
func (v *Verifier) Verify(rawBody []byte, header string) error {
	signedAt, err := parseSignatureHeader(header)
	if err != nil {
		return fmt.Errorf("Verify: %w", err)
	}
	if signedAt.Sub(v.now()) > v.tolerance {
		return fmt.Errorf("Verify: %w", domain.ErrStaleTimestamp)
	}

	err = webhook.ValidatePayloadWithTolerance(rawBody, header, v.secret, v.tolerance)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader):
		return fmt.Errorf("Verify: %w", domain.ErrMalformedHeader)
	case errors.Is(err, webhook.ErrTooOld):
		return fmt.Errorf("Verify: %w", domain.ErrStaleTimestamp)
	case errors.Is(err, webhook.ErrNoValidSignature):
		return fmt.Errorf("Verify: %w", domain.ErrBadSignature)
	default:
		return fmt.Errorf("Verify: %w: %v", domain.ErrBadSignature, err)
	}
}

// parseSignatureHeader requires a numeric t and at least one v1 entry. The
// stripe parser lets a missing t through as the zero time.
func parseSignatureHeader(header string) (time.Time, error) {
	var (
		signedAt time.Time
		hasTime  bool
		hasSig   bool
	)
	for _, pair := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			unix, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return time.Time{}, domain.ErrMalformedHeader
			}
			signedAt, hasTime = time.Unix(unix, 0), true
		case "v1":
			hasSig = hasSig || value != ""
		}
	}
	if !hasTime || !hasSig {
		return time.Time{}, domain.ErrMalformedHeader
	}
	return signedAt, nil
}
