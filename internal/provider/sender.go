package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
)

// Sender signs provider events and delivers them to a webhook endpoint.
// It plays the provider in local environments and end-to-end tests.
type Sender struct {
	callbackURL string
	secret      string
	httpClient  *http.Client
	now         func() time.Time
}

func NewSender(callbackURL, secret string) *Sender {
	return &Sender{
		callbackURL: callbackURL,
		secret:      secret,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		now: time.Now,
	}
}

type EventSpec struct {
	ID        string
	Type      string
	Created   int64
	Livemode  bool
	Object    map[string]any
	SignedAt  time.Time
	Signature string
}

type envelope struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object map[string]any `json:"object"`
	} `json:"data"`
}

// Encode renders the event body exactly as it will be sent.
func (s *Sender) Encode(delivery EventSpec) ([]byte, error) {
	env := envelope{
		ID:       delivery.ID,
		Object:   "event",
		Type:     delivery.Type,
		Created:  delivery.Created,
		Livemode: delivery.Livemode,
	}
	if env.Created == 0 {
		env.Created = s.now().Unix()
	}
	env.Data.Object = delivery.Object

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("Encode: %w", err)
	}
	return body, nil
}

// Sign returns the signature header for body at the given time.
func (s *Sender) Sign(body []byte, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    s.secret,
		Timestamp: at,
	})
	return signed.Header
}

// Deliver posts the event and returns the endpoint's status code. A non-empty
// delivery.Signature is sent verbatim instead of a fresh signature.
func (s *Sender) Deliver(ctx context.Context, delivery EventSpec) (int, []byte, error) {
	log := logging.FromContext(ctx)

	body, err := s.Encode(delivery)
	if err != nil {
		return 0, nil, fmt.Errorf("Deliver: %w", err)
	}

	sig := delivery.Signature
	if sig == "" {
		at := delivery.SignedAt
		if at.IsZero() {
			at = s.now()
		}
		sig = s.Sign(body, at)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.callbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("Deliver: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("Deliver: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	log.Info("webhook delivered",
		"event_id", delivery.ID,
		"event_type", delivery.Type,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp.StatusCode, respBody, nil
}
