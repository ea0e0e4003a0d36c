// Package subscription owns the provider subscription lifecycle:
//
//	active ──cancel──▶ grace_period ──grace ends──▶ canceled
//	   ▲  ╲                 │                          │
//	   │   payment failed   └──────reactivate/pay──────┘
//	   │     ▼
//	   └─ past_due
//
// BillingProvider implementations (Stripe, Paddle) verify webhook
// signatures and normalize deliveries into BillingEvent values. The
// Reconciler applies them to the Store: cancellations start a grace period,
// payments reactivate and add one listing slot, failed payments mark the
// subscription past due. Time-driven transitions (grace expiry, renewal
// reminders) belong to the scheduler, which uses the same Subscription
// methods and LockKey.
//
// Webhooks are delivered at least once. The Reconciler records every event
// id in an EventLog and skips ids it has seen, and serializes events for one
// provider through a lock.Locker.
package subscription
