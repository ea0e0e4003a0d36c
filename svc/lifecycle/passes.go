package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sobernest/pkg/application"
	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/notifications"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
	"github.com/dmitrymomot/sobernest/svc/mailer"
)

func (s *Scheduler) sendRenewalReminders(ctx context.Context, rep *PassReport) error {
	now := s.now().UTC()
	due, err := s.subs.ListDueForReminder(ctx, now, s.cfg.RenewalReminderLookahead)
	if err != nil {
		return fmt.Errorf("list subscriptions due for reminder: %w", err)
	}

	for _, sub := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		sent, err := s.remindRenewal(ctx, sub, now)
		switch {
		case err != nil:
			rep.Failed++
			s.logger.ErrorContext(ctx, "renewal reminder failed",
				logger.Component("scheduler"),
				logger.ProviderID(sub.ProviderID),
				logger.Error(err),
			)
		case sent:
			rep.Processed++
		}
	}
	return nil
}

// remindRenewal re-reads the row under the provider lock so a payment or a
// second instance in between is respected. The reminder stays pending when
// the send fails.
func (s *Scheduler) remindRenewal(ctx context.Context, candidate subscription.Subscription, now time.Time) (bool, error) {
	provider, err := s.users.Get(ctx, candidate.ProviderID)
	if err != nil {
		return false, fmt.Errorf("load provider: %w", err)
	}

	sent := false
	err = s.withLock(ctx, subscription.LockKey(candidate.ProviderID), func() error {
		sub, err := s.subs.Get(ctx, candidate.ProviderID)
		if err != nil {
			return err
		}
		if !sub.DueForRenewalReminder(now, s.cfg.RenewalReminderLookahead) {
			return nil
		}

		err = s.mailer.SendRenewalReminder(ctx, provider, *sub)
		s.metrics.Email(mailer.TagRenewalReminder, err)
		if err != nil {
			return err
		}
		sent = true

		if err := sub.MarkRenewalReminderSent(now); err != nil {
			return err
		}
		return s.subs.Save(ctx, sub)
	})
	return sent, err
}

func (s *Scheduler) expireGracePeriods(ctx context.Context, rep *PassReport) error {
	now := s.now().UTC()
	expired, err := s.subs.ListGraceExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("list expired grace periods: %w", err)
	}

	for _, sub := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := s.expireGrace(ctx, sub, now)
		switch {
		case err != nil:
			rep.Failed++
			s.logger.ErrorContext(ctx, "grace expiry failed",
				logger.Component("scheduler"),
				logger.ProviderID(sub.ProviderID),
				logger.Error(err),
			)
		case done:
			rep.Processed++
		}
	}
	return nil
}

// expireGrace hides listings before flipping the status. Both writes are
// idempotent, so a crash between them is repaired by the next tick, which
// still sees grace_period.
func (s *Scheduler) expireGrace(ctx context.Context, candidate subscription.Subscription, now time.Time) (bool, error) {
	var (
		hidden  int
		expired subscription.Subscription
		done    bool
	)
	err := s.withLock(ctx, subscription.LockKey(candidate.ProviderID), func() error {
		sub, err := s.subs.Get(ctx, candidate.ProviderID)
		if err != nil {
			return err
		}
		if !sub.GraceExpired(now) {
			// Reactivated since the listing query.
			return nil
		}

		if hidden, err = s.gate.HideProviderListings(ctx, sub.ProviderID); err != nil {
			return fmt.Errorf("hide listings: %w", err)
		}
		sub.ExpireGrace(now)
		if err := s.subs.Save(ctx, sub); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		expired, done = *sub, true
		return nil
	})
	if err != nil || !done {
		return false, err
	}

	log := s.logger.With(logger.Component("scheduler"), logger.ProviderID(expired.ProviderID))
	log.InfoContext(ctx, "grace period expired", slog.Int("listings_hidden", hidden))

	provider, err := s.users.Get(ctx, expired.ProviderID)
	if err != nil {
		// The transition is committed; only the email is lost.
		log.WarnContext(ctx, "provider for expired subscription not found", logger.Error(err))
		return true, nil
	}

	err = s.mailer.SendListingsHidden(ctx, provider, hidden)
	s.metrics.Email(mailer.TagListingsHidden, err)
	if err != nil {
		log.ErrorContext(ctx, "listings hidden email not sent", logger.Error(err))
	}

	if s.notifier != nil {
		name := provider.Name
		if name == "" {
			name = provider.Email
		}
		s.notifier.Notify(ctx, notifications.Notification{
			Kind:    notifications.KindListingsHidden,
			Title:   "Provider listings hidden",
			Message: fmt.Sprintf("Grace period for %s ended; %d listing(s) hidden.", name, hidden),
			Data: map[string]string{
				"provider_id":    provider.ID.String(),
				"provider_email": provider.Email,
				"hidden":         fmt.Sprint(hidden),
			},
		})
	}
	return true, nil
}

func (s *Scheduler) sendMoveInReminders(ctx context.Context, rep *PassReport) error {
	now := s.now().UTC()
	lookahead := s.cfg.MoveInReminderLookahead
	apps, err := s.apps.ListUpcomingMoveIns(ctx, now, now.Add(lookahead))
	if err != nil {
		return fmt.Errorf("list upcoming move-ins: %w", err)
	}

	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !app.DueForMoveInReminder(now, lookahead) {
			continue
		}
		if err := s.remindMoveIn(ctx, app); err != nil {
			rep.Failed++
			s.logger.ErrorContext(ctx, "move-in reminder failed",
				logger.Component("scheduler"),
				slog.String("application_id", app.ID.String()),
				logger.UserID(app.TenantID),
				logger.Error(err),
			)
			continue
		}
		rep.Processed++
	}
	return nil
}

func (s *Scheduler) remindMoveIn(ctx context.Context, app application.Application) error {
	tenant, err := s.users.Get(ctx, app.TenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}

	return s.withLock(ctx, "application:"+app.ID.String(), func() error {
		err := s.mailer.SendMoveInReminder(ctx, tenant, app)
		s.metrics.Email(mailer.TagMoveInReminder, err)
		if err != nil {
			return err
		}
		err = s.apps.MarkMoveInReminderSent(ctx, app.ID)
		if errors.Is(err, application.ErrReminderAlreadySent) {
			return nil
		}
		return err
	})
}

func (s *Scheduler) advanceWorkflows(ctx context.Context, rep *PassReport) error {
	if s.workflows == nil {
		return nil
	}
	res, err := s.workflows.AdvanceDue(ctx)
	rep.Processed = res.Sent + res.Skipped + res.Completed + res.Canceled
	rep.Failed = res.Failed
	return err
}
