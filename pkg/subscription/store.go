package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions. One row per provider, keyed by ProviderID.
type Store interface {
	// Get returns ErrSubscriptionNotFound when the provider has no row.
	Get(ctx context.Context, providerID uuid.UUID) (*Subscription, error)
	// Save inserts or updates by ProviderID.
	Save(ctx context.Context, sub *Subscription) error
	// ListDueForReminder returns active subscriptions with a pending renewal
	// reminder whose period ends in (now, now+lookahead].
	ListDueForReminder(ctx context.Context, now time.Time, lookahead time.Duration) ([]Subscription, error)
	// ListGraceExpired returns subscriptions in grace_period whose grace end is <= now.
	ListGraceExpired(ctx context.Context, now time.Time) ([]Subscription, error)
}
