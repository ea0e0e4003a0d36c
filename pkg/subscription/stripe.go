package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider verifies Stripe-Signature headers and maps subscription
// and invoice events.
type StripeProvider struct {
	secret string
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &StripeProvider{secret: cfg.WebhookSecret}, nil
}

func (p *StripeProvider) Name() string            { return "stripe" }
func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return BillingEvent{}, errors.Join(ErrWebhookVerificationFailed, err)
		}
		return BillingEvent{}, errors.Join(ErrMalformedWebhook, err)
	}

	if event.Data == nil {
		return BillingEvent{}, errors.Join(ErrMalformedWebhook, errors.New("stripe event has no data"))
	}

	ev := BillingEvent{
		ID:           event.ID,
		ProviderType: string(event.Type),
		OccurredAt:   time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return BillingEvent{}, errors.Join(ErrMalformedWebhook, err)
		}
		ev.Type = stripeSubscriptionEventType(event.Type)
		ev.SubscriptionID = sub.ID
		ev.Status = strings.ToLower(string(sub.Status))
		ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
			ev.CurrentPeriodEnd = unixPtr(sub.Items.Data[0].CurrentPeriodEnd)
		}

	// invoice.paid also fires for successful invoices; only one of the two
	// is mapped so a renewal counts once.
	case "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return BillingEvent{}, errors.Join(ErrMalformedWebhook, err)
		}
		ev.Type = EventPaymentSucceeded
		if event.Type == "invoice.payment_failed" {
			ev.Type = EventPaymentFailed
		}
		if inv.Customer != nil {
			ev.CustomerID = inv.Customer.ID
		}
		if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
			ev.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
		}
		if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil && inv.Lines.Data[0].Period.End > 0 {
			ev.CurrentPeriodEnd = unixPtr(inv.Lines.Data[0].Period.End)
		}

	default:
		ev.Type = EventIgnored
	}

	return ev, nil
}

func stripeSubscriptionEventType(t stripe.EventType) EventType {
	switch t {
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.deleted":
		return EventSubscriptionCanceled
	}
	return EventSubscriptionUpdated
}

func unixPtr(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}
