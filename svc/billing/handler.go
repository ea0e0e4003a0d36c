// Package billing receives payment provider webhooks over HTTP and hands
// verified events to the subscription reconciler.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
)

// WebhookPath is where providers are configured to deliver events.
const WebhookPath = "/webhooks/billing"

const defaultMaxBodyBytes = 1 << 20

// EventHandler applies a verified event. *subscription.Reconciler implements it.
type EventHandler interface {
	Handle(ctx context.Context, ev subscription.BillingEvent) (subscription.Outcome, error)
}

type Handler struct {
	provider subscription.BillingProvider
	events   EventHandler
	metrics  *metrics.Lifecycle
	logger   *slog.Logger
	maxBody  int64
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMetrics(m *metrics.Lifecycle) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithMaxBodyBytes caps the accepted payload size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

func NewHandler(provider subscription.BillingProvider, events EventHandler, opts ...Option) *Handler {
	if provider == nil || events == nil {
		panic("billing: provider and event handler are required")
	}
	h := &Handler{
		provider: provider,
		events:   events,
		logger:   slog.Default(),
		maxBody:  defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers the webhook route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post(WebhookPath, h.ServeHTTP)
}

// ServeHTTP answers 400 for anything that fails verification or parsing,
// 500 when applying the event failed so the provider redelivers, and 200
// otherwise, including duplicates and events for unknown customers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.logger.With(logger.Component("billing_webhook"), slog.String("provider", h.provider.Name()))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.metrics.BillingEvent("unknown", metrics.OutcomeBadRequest)
		log.WarnContext(ctx, "webhook body rejected", logger.Error(err))
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ev, err := h.provider.ParseWebhook(ctx, payload, r.Header.Get(h.provider.SignatureHeader()))
	if err != nil {
		h.metrics.BillingEvent("unknown", metrics.OutcomeBadRequest)
		msg := "malformed webhook"
		if errors.Is(err, subscription.ErrWebhookVerificationFailed) {
			msg = "invalid signature"
		}
		log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	out, err := h.events.Handle(ctx, ev)
	if err != nil {
		// Handle already logged and counted the failure.
		http.Error(w, "event not processed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"event_id": ev.ID, "outcome": string(out)})
}
