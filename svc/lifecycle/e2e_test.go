package lifecycle_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/application"
	"github.com/dmitrymomot/sobernest/pkg/email"
	"github.com/dmitrymomot/sobernest/pkg/listing"
	"github.com/dmitrymomot/sobernest/pkg/lock"
	"github.com/dmitrymomot/sobernest/pkg/reminder"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/svc/lifecycle"
	"github.com/dmitrymomot/sobernest/svc/mailer"
)

type tagSender struct {
	mu   sync.Mutex
	tags []string
}

func (s *tagSender) SendEmail(_ context.Context, p email.SendEmailParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append(s.tags, p.Tag)
	return uuid.NewString(), nil
}

func TestLifecycle_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2025, 2, 25, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	discard := slog.New(slog.DiscardHandler)

	provider := user.User{ID: uuid.New(), Email: "p@hopehouse.test", Name: "Hope House", Role: user.RoleProvider, BillingCustomerID: "cus_P"}
	users := user.NewMemoryStore(provider)
	listings := listing.NewMemoryStore(
		listing.Listing{ID: uuid.New(), ProviderID: provider.ID, IsVisible: true, Published: true},
		listing.Listing{ID: uuid.New(), ProviderID: provider.ID, IsVisible: true, Published: true},
	)
	subs := subscription.NewMemoryStore(subscription.Subscription{
		ProviderID:        provider.ID,
		Status:            subscription.StatusActive,
		BillingCustomerID: "cus_P",
		CurrentPeriodEnd:  ptr(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)),
		ListingAllowance:  2,
	})
	gate := listing.NewGate(listings)
	locker := lock.NewMemoryLocker()
	sender := &tagSender{}
	m := mailer.New(sender, mailer.Config{BaseURL: "https://sobernest.test"})

	reconciler := subscription.NewReconciler(subs, users, gate,
		subscription.WithClock(clock),
		subscription.WithLogger(discard),
		subscription.WithLocker(locker, time.Second),
		subscription.WithMailer(m),
	)
	scheduler := lifecycle.NewScheduler(lifecycle.Config{}, subs, application.NewMemoryStore(), users, gate, m,
		lifecycle.WithClock(clock),
		lifecycle.WithLogger(discard),
		lifecycle.WithLocker(locker),
	)

	get := func() *subscription.Subscription {
		t.Helper()
		sub, err := subs.Get(ctx, provider.ID)
		require.NoError(t, err)
		return sub
	}
	visible := func() int {
		n := 0
		for _, l := range listings.ByProvider(provider.ID) {
			if l.IsVisible {
				n++
			}
		}
		return n
	}

	// 2025-02-25: inside the reminder window.
	scheduler.RunOnce(ctx)
	assert.Equal(t, reminder.Sent, get().RenewalReminder)
	assert.Equal(t, []string{mailer.TagRenewalReminder}, sender.tags)

	// 2025-03-02: cancellation webhook.
	now = time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	out, err := reconciler.Handle(ctx, subscription.BillingEvent{
		ID: "evt_cancel", Type: subscription.EventSubscriptionCanceled, CustomerID: "cus_P", Status: "canceled",
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, out)
	sub := get()
	assert.Equal(t, subscription.StatusGracePeriod, sub.Status)
	require.NotNil(t, sub.GracePeriodEndsAt)
	assert.Equal(t, time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC), *sub.GracePeriodEndsAt)
	assert.Equal(t, mailer.TagCancellationNotice, sender.tags[len(sender.tags)-1])

	// Still inside grace: nothing happens.
	now = time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)
	scheduler.RunOnce(ctx)
	assert.Equal(t, 2, visible())

	// 2025-03-10: grace expired.
	now = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	scheduler.RunOnce(ctx)
	assert.Equal(t, subscription.StatusCanceled, get().Status)
	assert.Zero(t, visible())
	assert.Equal(t, mailer.TagListingsHidden, sender.tags[len(sender.tags)-1])

	// 2025-03-15: re-subscription.
	now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	out, err = reconciler.Handle(ctx, subscription.BillingEvent{
		ID: "evt_pay", Type: subscription.EventPaymentSucceeded, CustomerID: "cus_P",
		CurrentPeriodEnd: ptr(time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.OutcomeApplied, out)

	sub = get()
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, 3, sub.ListingAllowance)
	assert.Nil(t, sub.GracePeriodEndsAt)
	assert.Nil(t, sub.CanceledAt)
	assert.Equal(t, reminder.Pending, sub.RenewalReminder)
	assert.Equal(t, 2, visible())
	assert.Equal(t, []string{
		mailer.TagRenewalReminder,
		mailer.TagCancellationNotice,
		mailer.TagListingsHidden,
	}, sender.tags)
}
