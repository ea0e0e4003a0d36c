package subscription

import "errors"

var (
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrInvalidSubscriptionState = errors.New("invalid subscription state")
	ErrReminderAlreadySent      = errors.New("renewal reminder already sent for this cycle")
	ErrListingLimitReached      = errors.New("listing allowance exhausted")
	ErrInvalidGrant             = errors.New("invalid admin grant")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrMalformedWebhook          = errors.New("malformed webhook payload")
	ErrMissingWebhookSecret      = errors.New("billing provider webhook secret is required")
	ErrUnknownBillingProvider    = errors.New("unknown billing provider")

	ErrFailedToRecordEvent = errors.New("failed to record processed billing event")
)
