package subscription

import "time"

// EventType is the provider-neutral kind of a billing event.
type EventType string

const (
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventPaymentSucceeded     EventType = "payment_succeeded"
	EventPaymentFailed        EventType = "payment_failed"
	// EventIgnored marks verified events the lifecycle does not act on.
	EventIgnored EventType = "ignored"
)

// BillingEvent is a verified, normalized webhook event.
type BillingEvent struct {
	// ID is the provider's event id, used for de-duplication.
	ID             string
	Type           EventType
	ProviderType   string
	CustomerID     string
	SubscriptionID string
	// Status is the provider's subscription status, lowercased.
	Status            string
	CancelAtPeriodEnd bool
	CurrentPeriodEnd  *time.Time
	OccurredAt        time.Time
}

// IsCancellation reports whether the event cancels the subscription or
// schedules it to end at period end.
func (e BillingEvent) IsCancellation() bool {
	switch e.Type {
	case EventSubscriptionCanceled:
		return true
	case EventSubscriptionUpdated:
		return e.CancelAtPeriodEnd || e.Status == "canceled"
	}
	return false
}

// IsReactivation reports whether the provider says the subscription is
// active with auto-renewal on.
func (e BillingEvent) IsReactivation() bool {
	return e.Type == EventSubscriptionUpdated && e.Status == "active" && !e.CancelAtPeriodEnd
}
