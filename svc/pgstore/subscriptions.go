package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sobernest/pkg/pg"
	"github.com/dmitrymomot/sobernest/pkg/reminder"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
)

const subscriptionColumns = `provider_id, status, billing_customer_id, billing_subscription_id,
	current_period_end, listing_allowance, has_fee_waiver, grace_period_ends_at,
	renewal_reminder, canceled_at, last_payment_event_id, created_at, updated_at`

type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

func (s *SubscriptionStore) Get(ctx context.Context, providerID uuid.UUID) (*subscription.Subscription, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_id = $1`, providerID)
	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", providerID, err)
	}
	return &sub, nil
}

func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (provider_id) DO UPDATE SET
			status = EXCLUDED.status,
			billing_customer_id = EXCLUDED.billing_customer_id,
			billing_subscription_id = EXCLUDED.billing_subscription_id,
			current_period_end = EXCLUDED.current_period_end,
			listing_allowance = EXCLUDED.listing_allowance,
			has_fee_waiver = EXCLUDED.has_fee_waiver,
			grace_period_ends_at = EXCLUDED.grace_period_ends_at,
			renewal_reminder = EXCLUDED.renewal_reminder,
			canceled_at = EXCLUDED.canceled_at,
			last_payment_event_id = EXCLUDED.last_payment_event_id,
			updated_at = EXCLUDED.updated_at`,
		sub.ProviderID, string(sub.Status), sub.BillingCustomerID, sub.BillingSubscriptionID,
		sub.CurrentPeriodEnd, sub.ListingAllowance, sub.HasFeeWaiver, sub.GracePeriodEndsAt,
		sub.RenewalReminder.String(), sub.CanceledAt, sub.LastPaymentEventID, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save subscription %s: %w", sub.ProviderID, err)
	}
	return nil
}

func (s *SubscriptionStore) ListDueForReminder(ctx context.Context, now time.Time, lookahead time.Duration) ([]subscription.Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'active' AND renewal_reminder = 'pending'
		  AND current_period_end > $1 AND current_period_end <= $2
		ORDER BY current_period_end`,
		now, now.Add(lookahead))
}

func (s *SubscriptionStore) ListGraceExpired(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'grace_period' AND grace_period_ends_at <= $1
		ORDER BY grace_period_ends_at`,
		now)
}

func (s *SubscriptionStore) list(ctx context.Context, query string, args ...any) ([]subscription.Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []subscription.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func scanSubscription(row pgx.Row) (subscription.Subscription, error) {
	var (
		sub              subscription.Subscription
		status, reminded string
	)
	err := row.Scan(
		&sub.ProviderID, &status, &sub.BillingCustomerID, &sub.BillingSubscriptionID,
		&sub.CurrentPeriodEnd, &sub.ListingAllowance, &sub.HasFeeWaiver, &sub.GracePeriodEndsAt,
		&reminded, &sub.CanceledAt, &sub.LastPaymentEventID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return sub, err
	}
	sub.Status = subscription.Status(status)
	if sub.RenewalReminder, err = reminder.Parse(reminded); err != nil {
		return sub, err
	}
	return sub, nil
}
