package subscription

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/reminder"
	"github.com/dmitrymomot/sobernest/pkg/statemachine"
)

// Status is the provider-facing subscription state.
type Status string

const (
	StatusActive      Status = "active"
	StatusPastDue     Status = "past_due"
	StatusGracePeriod Status = "grace_period"
	StatusCanceled    Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPastDue, StatusGracePeriod, StatusCanceled:
		return true
	}
	return false
}

// InGoodStanding reports whether the provider is still paying. A past-due
// provider keeps publishing until the provider cancels.
func (s Status) InGoodStanding() bool {
	return s == StatusActive || s == StatusPastDue
}

// Subscription is the single billing record of a provider. Rows are created
// lazily on the first payment or admin grant and never deleted.
type Subscription struct {
	ProviderID            uuid.UUID
	Status                Status
	BillingCustomerID     string
	BillingSubscriptionID string
	CurrentPeriodEnd      *time.Time
	// ListingAllowance grows by one per confirmed payment and via admin grants.
	ListingAllowance  int
	HasFeeWaiver      bool
	GracePeriodEndsAt *time.Time
	RenewalReminder   reminder.State
	CanceledAt        *time.Time
	// LastPaymentEventID is the billing event id behind the latest allowance
	// increment.
	LastPaymentEventID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type action string

const (
	actionCancel           action = "cancel"
	actionReactivate       action = "reactivate"
	actionPaymentFailed    action = "payment_failed"
	actionPaymentSucceeded action = "payment_succeeded"
	actionExpireGrace      action = "expire_grace"
)

var transitions = statemachine.New[Status, action]().
	Allow(actionCancel, StatusGracePeriod, []Status{StatusActive, StatusPastDue}).
	Allow(actionReactivate, StatusActive, []Status{StatusGracePeriod, StatusCanceled}).
	Allow(actionPaymentFailed, StatusPastDue, []Status{StatusActive, StatusPastDue}).
	Allow(actionPaymentSucceeded, StatusActive, []Status{StatusActive, StatusPastDue, StatusGracePeriod, StatusCanceled}).
	Allow(actionExpireGrace, StatusCanceled, []Status{StatusGracePeriod})

// RenewalReminderSent is the boolean view of the renewal reminder state.
func (s *Subscription) RenewalReminderSent() bool {
	return s.RenewalReminder.IsSent()
}

// BeginGracePeriod moves an active or past-due subscription into its grace
// period. It reports false, leaving s untouched, when the subscription is
// already in grace or canceled, so the grace clock is never recomputed.
func (s *Subscription) BeginGracePeriod(now time.Time, grace time.Duration) bool {
	next, err := transitions.Next(s.Status, actionCancel)
	if err != nil {
		return false
	}
	ends := now.Add(grace)
	s.Status = next
	s.GracePeriodEndsAt = &ends
	s.CanceledAt = &now
	s.UpdatedAt = now
	return true
}

// Reactivate restores a subscription in grace or canceled to active.
// It reports false for any other status.
func (s *Subscription) Reactivate(now time.Time) bool {
	next, err := transitions.Next(s.Status, actionReactivate)
	if err != nil {
		return false
	}
	s.Status = next
	s.clearCancellation()
	s.resetReminder()
	s.UpdatedAt = now
	return true
}

// MarkPastDue records a failed payment. Subscriptions in grace or canceled
// keep their status.
func (s *Subscription) MarkPastDue(now time.Time) bool {
	next, err := transitions.Next(s.Status, actionPaymentFailed)
	if err != nil || next == s.Status {
		return false
	}
	s.Status = next
	s.UpdatedAt = now
	return true
}

// RecordPayment applies a confirmed payment: the subscription becomes
// active, the reminder resets for the new cycle and one listing slot is
// added. It returns the status held before the payment.
func (s *Subscription) RecordPayment(now time.Time, periodEnd *time.Time) (Status, error) {
	prev := s.Status
	next, err := transitions.Next(prev, actionPaymentSucceeded)
	if err != nil {
		return prev, errors.Join(ErrInvalidSubscriptionState, err)
	}
	s.Status = next
	s.clearCancellation()
	s.resetReminder()
	s.ListingAllowance++
	if periodEnd != nil {
		s.CurrentPeriodEnd = periodEnd
	}
	s.UpdatedAt = now
	return prev, nil
}

// GraceExpired reports whether the grace period has run out at now.
func (s *Subscription) GraceExpired(now time.Time) bool {
	return s.Status == StatusGracePeriod && s.GracePeriodEndsAt != nil && !s.GracePeriodEndsAt.After(now)
}

// ExpireGrace cancels a subscription whose grace period has run out.
func (s *Subscription) ExpireGrace(now time.Time) bool {
	if !s.GraceExpired(now) {
		return false
	}
	next, err := transitions.Next(s.Status, actionExpireGrace)
	if err != nil {
		return false
	}
	s.Status = next
	s.UpdatedAt = now
	return true
}

// DueForRenewalReminder reports whether the current period ends within
// lookahead of now and no reminder has gone out this cycle.
func (s *Subscription) DueForRenewalReminder(now time.Time, lookahead time.Duration) bool {
	if s.Status != StatusActive || s.RenewalReminderSent() || s.CurrentPeriodEnd == nil {
		return false
	}
	end := *s.CurrentPeriodEnd
	return end.After(now) && !end.After(now.Add(lookahead))
}

// MarkRenewalReminderSent fires the sent event. A second call in the same
// cycle returns ErrReminderAlreadySent.
func (s *Subscription) MarkRenewalReminderSent(now time.Time) error {
	next, err := s.RenewalReminder.Fire(reminder.EventSent)
	if err != nil {
		return errors.Join(ErrReminderAlreadySent, err)
	}
	s.RenewalReminder = next
	s.UpdatedAt = now
	return nil
}

// AllowsPublishing reports whether one more listing fits next to published.
// Fee-waived providers are never blocked; others must be in good standing.
func (s *Subscription) AllowsPublishing(published int) bool {
	if s.HasFeeWaiver {
		return true
	}
	return s.Status.InGoodStanding() && published < s.ListingAllowance
}

// RefreshBilling copies provider references and the period end from an
// event. It reports whether anything changed.
func (s *Subscription) RefreshBilling(ev BillingEvent) bool {
	changed := false
	if ev.CustomerID != "" && ev.CustomerID != s.BillingCustomerID {
		s.BillingCustomerID = ev.CustomerID
		changed = true
	}
	if ev.SubscriptionID != "" && ev.SubscriptionID != s.BillingSubscriptionID {
		s.BillingSubscriptionID = ev.SubscriptionID
		changed = true
	}
	if ev.CurrentPeriodEnd != nil && (s.CurrentPeriodEnd == nil || !s.CurrentPeriodEnd.Equal(*ev.CurrentPeriodEnd)) {
		end := *ev.CurrentPeriodEnd
		s.CurrentPeriodEnd = &end
		changed = true
	}
	return changed
}

func (s *Subscription) clearCancellation() {
	s.GracePeriodEndsAt = nil
	s.CanceledAt = nil
}

func (s *Subscription) resetReminder() {
	// Reset is allowed from every reminder state.
	s.RenewalReminder, _ = s.RenewalReminder.Fire(reminder.EventReset)
}
