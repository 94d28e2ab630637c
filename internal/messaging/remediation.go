package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/josh-kwaku/storefront-webhooks/internal/domain"
)

type publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// Remediator routes failed ledger outcomes to the remediation topic, keyed by
// event id so a consumer can deduplicate.
type Remediator struct {
	publisher publisher
	topic     string
}

func NewRemediator(p publisher, topic string) *Remediator {
	return &Remediator{publisher: p, topic: topic}
}

func (r *Remediator) Route(ctx context.Context, notice domain.RemediationNotice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("Route: marshal: %w", err)
	}

	headers := map[string]string{
		"event_type": string(notice.EventType),
		"reason":     notice.Reason,
	}
	if err := r.publisher.Publish(ctx, r.topic, notice.EventID, body, headers); err != nil {
		return fmt.Errorf("Route: %w", err)
	}
	return nil
}
