package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/logger"
)

// Get returns the provider's subscription or ErrSubscriptionNotFound.
func (r *Reconciler) Get(ctx context.Context, providerID uuid.UUID) (*Subscription, error) {
	return r.store.Get(ctx, providerID)
}

// CanPublish reports whether the provider may publish one more listing.
// Providers without a subscription cannot publish; fee-waived providers
// always can. Others need an active or past-due subscription with a free
// slot.
func (r *Reconciler) CanPublish(ctx context.Context, providerID uuid.UUID) (bool, error) {
	sub, err := r.store.Get(ctx, providerID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if sub.HasFeeWaiver {
		return true, nil
	}
	if !sub.Status.InGoodStanding() {
		return false, nil
	}
	if r.published == nil {
		return false, errors.New("subscription: published listing counter not configured")
	}
	n, err := r.published.CountPublished(ctx, providerID)
	if err != nil {
		return false, fmt.Errorf("count published listings: %w", err)
	}
	return sub.AllowsPublishing(n), nil
}

// GrantFeeWaiver lifts every allowance check for the provider, creating
// the subscription row if needed.
func (r *Reconciler) GrantFeeWaiver(ctx context.Context, providerID uuid.UUID) error {
	return r.grant(ctx, providerID, "fee waiver granted", func(sub *Subscription) {
		sub.HasFeeWaiver = true
	})
}

// GrantListingSlots adds n listing slots outside of billing.
func (r *Reconciler) GrantListingSlots(ctx context.Context, providerID uuid.UUID, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: slot count must be positive, got %d", ErrInvalidGrant, n)
	}
	return r.grant(ctx, providerID, "listing slots granted", func(sub *Subscription) {
		sub.ListingAllowance += n
	})
}

func (r *Reconciler) grant(ctx context.Context, providerID uuid.UUID, msg string, mutate func(*Subscription)) error {
	release, err := r.locker.Acquire(ctx, LockKey(providerID), r.lockTTL)
	if err != nil {
		return fmt.Errorf("lock provider subscription: %w", err)
	}
	defer release()

	now := r.now().UTC()
	sub, err := r.store.Get(ctx, providerID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		sub = &Subscription{ProviderID: providerID, Status: StatusActive, CreatedAt: now}
	} else if err != nil {
		return err
	}

	mutate(sub)
	sub.UpdatedAt = now
	if err := r.store.Save(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	r.logger.InfoContext(ctx, msg,
		logger.Component("reconciler"),
		logger.ProviderID(providerID),
		slog.Bool("fee_waiver", sub.HasFeeWaiver),
		slog.Int("listing_allowance", sub.ListingAllowance),
	)
	return nil
}
