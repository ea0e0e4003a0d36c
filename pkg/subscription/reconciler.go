package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/lock"
	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
	"github.com/dmitrymomot/sobernest/pkg/notifications"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
)

// DefaultGracePeriod is how long a canceled provider keeps visible listings.
const DefaultGracePeriod = 7 * 24 * time.Hour

// UserDirectory resolves billing customers to providers.
type UserDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByBillingCustomerID(ctx context.Context, customerID string) (user.User, error)
}

// VisibilityGate hides and restores a provider's listings.
type VisibilityGate interface {
	HideProviderListings(ctx context.Context, providerID uuid.UUID) (int, error)
	ShowProviderListings(ctx context.Context, providerID uuid.UUID) (int, error)
}

// Mailer sends the provider-facing email the reconciler triggers.
type Mailer interface {
	SendCancellationNotice(ctx context.Context, provider user.User, sub Subscription) error
}

// AdminNotifier is the best-effort operator channel.
type AdminNotifier interface {
	Notify(ctx context.Context, notif notifications.Notification)
}

// Enroller starts lifecycle email workflows.
type Enroller interface {
	Enroll(ctx context.Context, userID uuid.UUID, trigger workflow.Trigger) (int, error)
}

type PublishedCounter interface {
	CountPublished(ctx context.Context, providerID uuid.UUID) (int, error)
}

// Outcome describes what Handle did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = metrics.OutcomeApplied
	OutcomeNoop      Outcome = metrics.OutcomeNoop
	OutcomeDuplicate Outcome = metrics.OutcomeDuplicate
	OutcomeDropped   Outcome = metrics.OutcomeDropped
	OutcomeIgnored   Outcome = metrics.OutcomeIgnored
)

// LockKey is the lock key guarding one provider's subscription row.
// The scheduler takes the same key.
func LockKey(providerID uuid.UUID) string {
	return "subscription:" + providerID.String()
}

// Reconciler applies billing events to subscriptions. Events for one
// provider are serialized through a keyed lock; an event id is recorded only
// after its change is saved, so redelivery after a crash is reprocessed.
type Reconciler struct {
	store     Store
	users     UserDirectory
	gate      VisibilityGate
	mailer    Mailer
	notifier  AdminNotifier
	enroller  Enroller
	published PublishedCounter
	events    EventLog
	locker    lock.Locker
	lockTTL   time.Duration
	metrics   *metrics.Lifecycle
	logger    *slog.Logger
	now       func() time.Time

	gracePeriod time.Duration
}

func NewReconciler(store Store, users UserDirectory, gate VisibilityGate, opts ...Option) *Reconciler {
	if store == nil {
		panic("subscription: Store is required")
	}
	if users == nil {
		panic("subscription: UserDirectory is required")
	}
	if gate == nil {
		panic("subscription: VisibilityGate is required")
	}

	r := &Reconciler{
		store:       store,
		users:       users,
		gate:        gate,
		events:      NewMemoryEventLog(0),
		locker:      lock.NewMemoryLocker(),
		lockTTL:     30 * time.Second,
		logger:      slog.Default(),
		now:         time.Now,
		gracePeriod: DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// effect is a side effect of an applied event, such as an email. Effects
// run after the provider lock is released and never fail the event.
type effect func(ctx context.Context)

// Handle applies ev. Unresolvable customers and already-seen event ids are
// not errors. A returned error means nothing was recorded and the provider
// should redeliver.
func (r *Reconciler) Handle(ctx context.Context, ev BillingEvent) (out Outcome, err error) {
	log := r.logger.With(
		logger.Component("reconciler"),
		logger.EventID(ev.ID),
		logger.EventType(ev.ProviderType),
	)
	defer func() {
		label := string(out)
		if err != nil {
			label = metrics.OutcomeFailed
		}
		r.metrics.BillingEvent(string(ev.Type), label)
	}()

	if ev.Type == EventIgnored || ev.Type == "" {
		return OutcomeIgnored, nil
	}

	out, effects, err := r.apply(ctx, ev, log)
	if err != nil {
		log.ErrorContext(ctx, "billing event failed", logger.Error(err))
		return "", err
	}
	log.InfoContext(ctx, "billing event handled", slog.String("outcome", string(out)))

	fxCtx := context.WithoutCancel(ctx)
	for _, fx := range effects {
		fx(fxCtx)
	}
	return out, nil
}

// apply runs under the provider lock: check the event log, change the row,
// then record the event id. A crash before the record means the event is
// reprocessed, which the transitions and LastPaymentEventID make harmless.
func (r *Reconciler) apply(ctx context.Context, ev BillingEvent, log *slog.Logger) (Outcome, []effect, error) {
	provider, err := r.users.GetByBillingCustomerID(ctx, ev.CustomerID)
	if errors.Is(err, user.ErrUserNotFound) {
		log.WarnContext(ctx, "billing event for unknown customer dropped", slog.String("customer_id", ev.CustomerID))
		return OutcomeDropped, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("resolve billing customer: %w", err)
	}
	log = log.With(logger.ProviderID(provider.ID))

	release, err := r.locker.Acquire(ctx, LockKey(provider.ID), r.lockTTL)
	if err != nil {
		return "", nil, fmt.Errorf("lock provider subscription: %w", err)
	}
	defer release()

	if ev.ID != "" {
		seen, err := r.events.Seen(ctx, ev.ID)
		if err != nil {
			return "", nil, err
		}
		if seen {
			log.DebugContext(ctx, "duplicate billing event skipped")
			return OutcomeDuplicate, nil, nil
		}
	}

	out, effects, err := r.dispatch(ctx, provider, ev, log)
	if err != nil {
		return "", nil, err
	}

	if ev.ID != "" {
		if _, err := r.events.MarkProcessed(ctx, ev.ID); err != nil {
			log.WarnContext(ctx, "billing event applied but not recorded", logger.Error(err))
		}
	}
	return out, effects, nil
}

func (r *Reconciler) dispatch(ctx context.Context, provider user.User, ev BillingEvent, log *slog.Logger) (Outcome, []effect, error) {
	sub, err := r.store.Get(ctx, provider.ID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return "", nil, fmt.Errorf("load subscription: %w", err)
	}
	now := r.now().UTC()

	if ev.Type == EventPaymentSucceeded {
		return r.applyPayment(ctx, provider, sub, ev, now, log)
	}
	if sub == nil {
		log.WarnContext(ctx, "billing event for provider without subscription dropped")
		return OutcomeDropped, nil, nil
	}

	refreshed := sub.RefreshBilling(ev)
	switch {
	case ev.IsCancellation():
		return r.applyCancellation(ctx, provider, sub, refreshed, now, log)
	case ev.IsReactivation():
		return r.applyReactivation(ctx, provider, sub, refreshed, now, log)
	case ev.Type == EventPaymentFailed:
		changed := sub.MarkPastDue(now)
		if changed {
			log.InfoContext(ctx, "subscription past due", logger.Status(string(sub.Status)))
		}
		out, err := r.saveIf(ctx, sub, changed || refreshed, now)
		return out, nil, err
	default:
		out, err := r.saveIf(ctx, sub, refreshed, now)
		return out, nil, err
	}
}

func (r *Reconciler) applyPayment(ctx context.Context, provider user.User, sub *Subscription, ev BillingEvent, now time.Time, log *slog.Logger) (Outcome, []effect, error) {
	if sub != nil && ev.ID != "" && sub.LastPaymentEventID == ev.ID {
		log.DebugContext(ctx, "payment already recorded on subscription")
		return OutcomeDuplicate, nil, nil
	}

	isNew := sub == nil
	if isNew {
		sub = &Subscription{ProviderID: provider.ID, Status: StatusActive, CreatedAt: now}
	}
	sub.RefreshBilling(ev)

	prev := sub.Status
	resubscribed := prev == StatusGracePeriod || prev == StatusCanceled
	if resubscribed {
		// Listings first: if saving fails the redelivery still sees the old
		// status and retries both writes.
		if _, err := r.gate.ShowProviderListings(ctx, provider.ID); err != nil {
			return "", nil, err
		}
	}

	if _, err := sub.RecordPayment(now, ev.CurrentPeriodEnd); err != nil {
		return "", nil, err
	}
	sub.LastPaymentEventID = ev.ID
	if err := r.store.Save(ctx, sub); err != nil {
		return "", nil, fmt.Errorf("save subscription: %w", err)
	}
	log.InfoContext(ctx, "payment recorded",
		slog.String("previous_status", string(prev)),
		slog.Int("listing_allowance", sub.ListingAllowance),
	)

	if !isNew && !resubscribed {
		return OutcomeApplied, nil, nil
	}
	n := notifications.Notification{
		Kind:    notifications.KindSubscriptionStarted,
		Title:   "New provider subscription",
		Message: fmt.Sprintf("%s started a subscription.", displayName(provider)),
		Data:    providerData(provider, sub),
	}
	return OutcomeApplied, []effect{
		func(ctx context.Context) { r.notify(ctx, n) },
		func(ctx context.Context) { r.enroll(ctx, provider.ID, workflow.TriggerSubscriptionStarted, log) },
	}, nil
}

func (r *Reconciler) applyCancellation(ctx context.Context, provider user.User, sub *Subscription, refreshed bool, now time.Time, log *slog.Logger) (Outcome, []effect, error) {
	if !sub.BeginGracePeriod(now, r.gracePeriod) {
		out, err := r.saveIf(ctx, sub, refreshed, now)
		return out, nil, err
	}
	if err := r.store.Save(ctx, sub); err != nil {
		return "", nil, fmt.Errorf("save subscription: %w", err)
	}
	log.InfoContext(ctx, "subscription entered grace period", slog.Time("grace_period_ends_at", *sub.GracePeriodEndsAt))

	snapshot := *sub
	n := notifications.Notification{
		Kind:    notifications.KindSubscriptionCanceled,
		Title:   "Provider subscription canceled",
		Message: fmt.Sprintf("%s canceled. Listings stay visible until %s.", displayName(provider), sub.GracePeriodEndsAt.Format(time.DateOnly)),
		Data:    providerData(provider, sub),
	}
	return OutcomeApplied, []effect{
		func(ctx context.Context) {
			if r.mailer == nil {
				return
			}
			err := r.mailer.SendCancellationNotice(ctx, provider, snapshot)
			r.metrics.Email("cancellation_notice", err)
			if err != nil {
				log.ErrorContext(ctx, "cancellation notice not sent", logger.Error(err))
			}
		},
		func(ctx context.Context) { r.notify(ctx, n) },
		func(ctx context.Context) { r.enroll(ctx, provider.ID, workflow.TriggerSubscriptionCanceled, log) },
	}, nil
}

func (r *Reconciler) applyReactivation(ctx context.Context, provider user.User, sub *Subscription, refreshed bool, now time.Time, log *slog.Logger) (Outcome, []effect, error) {
	if sub.Status != StatusGracePeriod && sub.Status != StatusCanceled {
		out, err := r.saveIf(ctx, sub, refreshed, now)
		return out, nil, err
	}
	if _, err := r.gate.ShowProviderListings(ctx, provider.ID); err != nil {
		return "", nil, err
	}
	sub.Reactivate(now)
	if err := r.store.Save(ctx, sub); err != nil {
		return "", nil, fmt.Errorf("save subscription: %w", err)
	}
	log.InfoContext(ctx, "subscription reactivated")
	return OutcomeApplied, nil, nil
}

func (r *Reconciler) saveIf(ctx context.Context, sub *Subscription, changed bool, now time.Time) (Outcome, error) {
	if !changed {
		return OutcomeNoop, nil
	}
	sub.UpdatedAt = now
	if err := r.store.Save(ctx, sub); err != nil {
		return "", fmt.Errorf("save subscription: %w", err)
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) notify(ctx context.Context, n notifications.Notification) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, n)
	}
}

func (r *Reconciler) enroll(ctx context.Context, userID uuid.UUID, trigger workflow.Trigger, log *slog.Logger) {
	if r.enroller == nil {
		return
	}
	if _, err := r.enroller.Enroll(ctx, userID, trigger); err != nil {
		log.WarnContext(ctx, "workflow enrollment failed", slog.String("trigger", string(trigger)), logger.Error(err))
	}
}

func displayName(u user.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func providerData(u user.User, sub *Subscription) map[string]string {
	return map[string]string{
		"provider_id":       u.ID.String(),
		"provider_email":    u.Email,
		"status":            string(sub.Status),
		"listing_allowance": fmt.Sprint(sub.ListingAllowance),
	}
}
