package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleProvider verifies Paddle-Signature headers with the SDK verifier and
// maps subscription and transaction notifications.
type PaddleProvider struct {
	verifier *paddle.WebhookVerifier
}

func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &PaddleProvider{verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret)}, nil
}

func (p *PaddleProvider) Name() string            { return "paddle" }
func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

type paddleNotification struct {
	EventID    string     `json:"event_id"`
	EventType  string     `json:"event_type"`
	OccurredAt time.Time  `json:"occurred_at"`
	Data       paddleData `json:"data"`
}

type paddleData struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	CustomerID      string `json:"customer_id"`
	SubscriptionID  string `json:"subscription_id"`
	ScheduledChange *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	CurrentBillingPeriod *paddlePeriod `json:"current_billing_period"`
	BillingPeriod        *paddlePeriod `json:"billing_period"`
}

type paddlePeriod struct {
	EndsAt time.Time `json:"ends_at"`
}

func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (BillingEvent, error) {
	// The SDK verifier works on requests.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return BillingEvent{}, fmt.Errorf("build verification request: %w", err)
	}
	req.Header.Set(p.SignatureHeader(), signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return BillingEvent{}, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return BillingEvent{}, ErrWebhookVerificationFailed
	}

	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return BillingEvent{}, errors.Join(ErrMalformedWebhook, err)
	}
	if n.EventID == "" || n.EventType == "" {
		return BillingEvent{}, fmt.Errorf("%w: missing event_id or event_type", ErrMalformedWebhook)
	}

	ev := BillingEvent{
		ID:           n.EventID,
		ProviderType: n.EventType,
		CustomerID:   n.Data.CustomerID,
		Status:       strings.ToLower(n.Data.Status),
		OccurredAt:   n.OccurredAt.UTC(),
	}

	switch n.EventType {
	case "subscription.created", "subscription.updated", "subscription.activated",
		"subscription.resumed", "subscription.canceled":
		ev.Type = paddleSubscriptionEventType(n.EventType)
		ev.SubscriptionID = n.Data.ID
		ev.CancelAtPeriodEnd = n.Data.ScheduledChange != nil && n.Data.ScheduledChange.Action == "cancel"
		if n.Data.CurrentBillingPeriod != nil && !n.Data.CurrentBillingPeriod.EndsAt.IsZero() {
			end := n.Data.CurrentBillingPeriod.EndsAt.UTC()
			ev.CurrentPeriodEnd = &end
		}

	case "transaction.completed", "transaction.payment_failed":
		if n.Data.SubscriptionID == "" {
			// One-off purchase, not a subscription payment.
			ev.Type = EventIgnored
			break
		}
		ev.Type = EventPaymentSucceeded
		if n.EventType == "transaction.payment_failed" {
			ev.Type = EventPaymentFailed
		}
		ev.SubscriptionID = n.Data.SubscriptionID
		if n.Data.BillingPeriod != nil && !n.Data.BillingPeriod.EndsAt.IsZero() {
			end := n.Data.BillingPeriod.EndsAt.UTC()
			ev.CurrentPeriodEnd = &end
		}

	default:
		ev.Type = EventIgnored
	}

	return ev, nil
}

func paddleSubscriptionEventType(t string) EventType {
	switch t {
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.canceled":
		return EventSubscriptionCanceled
	}
	// activated and resumed carry status=active, which reads as reactivation.
	return EventSubscriptionUpdated
}
