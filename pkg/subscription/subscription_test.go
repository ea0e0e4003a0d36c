package subscription_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sobernest/pkg/reminder"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
)

var t0 = time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestSubscription_BeginGracePeriod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    subscription.Status
		changed bool
	}{
		{subscription.StatusActive, true},
		{subscription.StatusPastDue, true},
		{subscription.StatusGracePeriod, false},
		{subscription.StatusCanceled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			t.Parallel()

			sub := subscription.Subscription{ProviderID: uuid.New(), Status: tt.from}
			changed := sub.BeginGracePeriod(t0, 7*24*time.Hour)
			assert.Equal(t, tt.changed, changed)
			if !tt.changed {
				assert.Equal(t, tt.from, sub.Status)
				assert.Nil(t, sub.GracePeriodEndsAt)
				return
			}
			assert.Equal(t, subscription.StatusGracePeriod, sub.Status)
			require.NotNil(t, sub.GracePeriodEndsAt)
			assert.Equal(t, t0.Add(7*24*time.Hour), *sub.GracePeriodEndsAt)
			assert.True(t, sub.GracePeriodEndsAt.After(t0))
			assert.Equal(t, t0, *sub.CanceledAt)
		})
	}
}

func TestSubscription_Reactivate(t *testing.T) {
	t.Parallel()

	sub := subscription.Subscription{
		Status:            subscription.StatusGracePeriod,
		GracePeriodEndsAt: ptr(t0.Add(time.Hour)),
		CanceledAt:        ptr(t0),
		RenewalReminder:   reminder.Sent,
	}
	require.True(t, sub.Reactivate(t0))
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Nil(t, sub.GracePeriodEndsAt)
	assert.Nil(t, sub.CanceledAt)
	assert.False(t, sub.RenewalReminderSent())

	assert.False(t, sub.Reactivate(t0), "already active is a no-op")
}

func TestSubscription_MarkPastDue(t *testing.T) {
	t.Parallel()

	active := subscription.Subscription{Status: subscription.StatusActive}
	assert.True(t, active.MarkPastDue(t0))
	assert.Equal(t, subscription.StatusPastDue, active.Status)
	assert.False(t, active.MarkPastDue(t0))

	grace := subscription.Subscription{Status: subscription.StatusGracePeriod, GracePeriodEndsAt: ptr(t0)}
	assert.False(t, grace.MarkPastDue(t0))
	assert.Equal(t, subscription.StatusGracePeriod, grace.Status)
}

func TestSubscription_RecordPayment(t *testing.T) {
	t.Parallel()

	sub := subscription.Subscription{
		Status:            subscription.StatusCanceled,
		ListingAllowance:  2,
		GracePeriodEndsAt: ptr(t0),
		CanceledAt:        ptr(t0),
		RenewalReminder:   reminder.Sent,
	}
	end := t0.AddDate(0, 1, 0)
	prev, err := sub.RecordPayment(t0, &end)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, prev)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, 3, sub.ListingAllowance)
	assert.Equal(t, end, *sub.CurrentPeriodEnd)
	assert.Nil(t, sub.GracePeriodEndsAt)
	assert.Nil(t, sub.CanceledAt)
	assert.False(t, sub.RenewalReminderSent())

	_, err = (&subscription.Subscription{Status: "bogus"}).RecordPayment(t0, nil)
	assert.ErrorIs(t, err, subscription.ErrInvalidSubscriptionState)
}

func TestSubscription_ExpireGrace(t *testing.T) {
	t.Parallel()

	sub := subscription.Subscription{Status: subscription.StatusGracePeriod, GracePeriodEndsAt: ptr(t0)}
	assert.False(t, sub.ExpireGrace(t0.Add(-time.Second)))
	assert.True(t, sub.ExpireGrace(t0))
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	assert.False(t, sub.ExpireGrace(t0.Add(time.Hour)))
}

func TestSubscription_RenewalReminder(t *testing.T) {
	t.Parallel()

	sub := subscription.Subscription{Status: subscription.StatusActive, CurrentPeriodEnd: ptr(t0.Add(72 * time.Hour))}
	week := 7 * 24 * time.Hour

	assert.True(t, sub.DueForRenewalReminder(t0, week))
	assert.False(t, sub.DueForRenewalReminder(t0, 24*time.Hour), "outside lookahead")
	assert.False(t, sub.DueForRenewalReminder(t0.Add(96*time.Hour), week), "period already ended")

	require.NoError(t, sub.MarkRenewalReminderSent(t0))
	assert.True(t, sub.RenewalReminderSent())
	assert.False(t, sub.DueForRenewalReminder(t0, week))
	assert.ErrorIs(t, sub.MarkRenewalReminderSent(t0), subscription.ErrReminderAlreadySent)
}

func TestSubscription_AllowsPublishing(t *testing.T) {
	t.Parallel()

	sub := subscription.Subscription{Status: subscription.StatusActive, ListingAllowance: 2}
	assert.True(t, sub.AllowsPublishing(1))
	assert.False(t, sub.AllowsPublishing(2))

	sub.Status = subscription.StatusPastDue
	assert.True(t, sub.AllowsPublishing(1))

	for _, status := range []subscription.Status{subscription.StatusGracePeriod, subscription.StatusCanceled} {
		sub.Status = status
		assert.False(t, sub.AllowsPublishing(0), status)
	}

	waived := subscription.Subscription{Status: subscription.StatusCanceled, HasFeeWaiver: true}
	for _, published := range []int{0, 1, 10, 1000} {
		assert.True(t, waived.AllowsPublishing(published))
	}
}
