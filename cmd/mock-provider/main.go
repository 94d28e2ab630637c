package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/storefront-webhooks/internal/handler"
	"github.com/josh-kwaku/storefront-webhooks/internal/logging"
	"github.com/josh-kwaku/storefront-webhooks/internal/provider"
)

type mockConfig struct {
	Port          int    `env:"MOCK_PROVIDER_PORT" envDefault:"8081"`
	WebhookURL    string `env:"WEBHOOK_URL" envDefault:"http://localhost:8080/api/v1/webhooks/provider"`
	WebhookSecret string `env:"WEBHOOK_SECRET,required"`
	AppEnv        string `env:"APP_ENV" envDefault:"development"`
}

// mockProvider emits signed events at the webhook endpoint and remembers them
// so a delivery can be replayed, which is how duplicates are produced locally.
type mockProvider struct {
	sender *provider.Sender
	mu     sync.Mutex
	sent   map[string]provider.EventSpec
}

func main() {
	cfg, err := env.ParseAs[mockConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-provider", "info", cfg.AppEnv)

	mp := &mockProvider{
		sender: provider.NewSender(cfg.WebhookURL, cfg.WebhookSecret),
		sent:   make(map[string]provider.EventSpec),
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("mock provider started", "addr", addr, "webhook_url", cfg.WebhookURL)
	if err := http.ListenAndServe(addr, mp.routes()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (m *mockProvider) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handler.RespondSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /v1/events", m.emit)
	mux.HandleFunc("POST /v1/events/{id}/replay", m.replay)
	return mux
}

func (m *mockProvider) emit(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
		return
	}
	if err := req.validate(); err != nil {
		handler.RespondValidationError(w, []handler.FieldError{{Field: "body", Message: err.Error()}})
		return
	}

	evt := buildEvent(req)
	m.mu.Lock()
	m.sent[evt.ID] = evt
	m.mu.Unlock()

	m.deliver(w, r, evt)
}

func (m *mockProvider) replay(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	evt, ok := m.sent[r.PathValue("id")]
	m.mu.Unlock()
	if !ok {
		handler.RespondAppError(w, handler.ErrResourceNotFound, nil)
		return
	}
	m.deliver(w, r, evt)
}

func (m *mockProvider) deliver(w http.ResponseWriter, r *http.Request, evt provider.EventSpec) {
	status, body, err := m.sender.Deliver(r.Context(), evt)
	if err != nil {
		logging.FromContext(r.Context()).Error("delivery failed", "event_id", evt.ID, "error", err)
		handler.RespondAppError(w, &handler.AppError{
			Status:  http.StatusBadGateway,
			Code:    "DELIVERY_FAILED",
			Message: "Webhook endpoint unreachable",
		}, nil)
		return
	}

	var webhookBody any = string(body)
	if json.Valid(body) {
		webhookBody = json.RawMessage(body)
	}
	handler.RespondSuccess(w, http.StatusOK, map[string]any{
		"event_id":       evt.ID,
		"type":           evt.Type,
		"webhook_status": status,
		"webhook_body":   webhookBody,
	})
}
