package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/sobernest/pkg/application"
	"github.com/dmitrymomot/sobernest/pkg/email"
	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/notifications"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
	"github.com/dmitrymomot/sobernest/pkg/user"
)

// Email tags, also used as metric labels.
const (
	TagRenewalReminder    = "renewal_reminder"
	TagCancellationNotice = "cancellation_notice"
	TagListingsHidden     = "listings_hidden"
	TagMoveInReminder     = "move_in_reminder"
)

// Mailer renders lifecycle emails and hands them to an email.Sender.
// Sends are never retried here; callers decide what a failure means.
type Mailer struct {
	sender email.Sender
	cfg    Config
	logger *slog.Logger
}

type Option func(*Mailer)

func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(sender email.Sender, cfg Config, opts ...Option) *Mailer {
	if sender == nil {
		panic("mailer: email sender is required")
	}
	if cfg.AppName == "" {
		cfg.AppName = "SoberNest"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	m := &Mailer{sender: sender, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendRenewalReminder tells a provider their subscription renews soon.
func (m *Mailer) SendRenewalReminder(ctx context.Context, provider user.User, sub subscription.Subscription) error {
	if sub.CurrentPeriodEnd == nil {
		return fmt.Errorf("%w: subscription has no period end", email.ErrInvalidParams)
	}
	subject := fmt.Sprintf("Your %s subscription renews on %s", m.cfg.AppName, sub.CurrentPeriodEnd.Format(dateLayout))
	return m.send(ctx, provider, TagRenewalReminder, subject, renewalReminder(renewalReminderData{
		layoutData: m.layout(subject),
		Name:       greetingName(provider.Name),
		RenewsOn:   *sub.CurrentPeriodEnd,
		Allowance:  sub.ListingAllowance,
		ManageURL:  m.cfg.BaseURL + "/provider/billing",
	}))
}

// SendCancellationNotice confirms a cancellation and states when listings
// will be hidden.
func (m *Mailer) SendCancellationNotice(ctx context.Context, provider user.User, sub subscription.Subscription) error {
	if sub.GracePeriodEndsAt == nil {
		return fmt.Errorf("%w: subscription has no grace period", email.ErrInvalidParams)
	}
	subject := "Your subscription has been canceled"
	return m.send(ctx, provider, TagCancellationNotice, subject, cancellationNotice(cancellationNoticeData{
		layoutData: m.layout(subject),
		Name:       greetingName(provider.Name),
		GraceEnds:  *sub.GracePeriodEndsAt,
		RenewalURL: m.cfg.BaseURL + "/provider/billing",
	}))
}

// SendListingsHidden tells a provider their grace period ran out.
func (m *Mailer) SendListingsHidden(ctx context.Context, provider user.User, hidden int) error {
	subject := "Your listings are no longer visible"
	return m.send(ctx, provider, TagListingsHidden, subject, listingsHidden(listingsHiddenData{
		layoutData: m.layout(subject),
		Name:       greetingName(provider.Name),
		Hidden:     hidden,
		RenewalURL: m.cfg.BaseURL + "/provider/billing",
	}))
}

// SendMoveInReminder reminds a tenant of an approved move-in date.
func (m *Mailer) SendMoveInReminder(ctx context.Context, tenant user.User, app application.Application) error {
	if app.MoveInDate == nil {
		return fmt.Errorf("%w: application has no move-in date", email.ErrInvalidParams)
	}
	subject := fmt.Sprintf("Your move-in at %s is coming up", app.ListingTitle)
	return m.send(ctx, tenant, TagMoveInReminder, subject, moveInReminder(moveInReminderData{
		layoutData:   m.layout(subject),
		Name:         greetingName(tenant.Name),
		ListingTitle: app.ListingTitle,
		MoveInDate:   *app.MoveInDate,
		ListingURL:   fmt.Sprintf("%s/listings/%s", m.cfg.BaseURL, app.ListingID),
	}))
}

// RenderAdmin lays out operator notifications. It satisfies
// notifications.RenderFunc.
func (m *Mailer) RenderAdmin(ctx context.Context, n notifications.Notification) (string, string, error) {
	subject := "[" + m.cfg.AppName + " admin] " + n.Title
	body, err := renderString(ctx, adminNotification(m.layout(n.Title), n))
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func (m *Mailer) layout(title string) layoutData {
	return layoutData{AppName: m.cfg.AppName, Title: title, SupportEmail: m.cfg.SupportEmail}
}

func (m *Mailer) send(ctx context.Context, to user.User, tag, subject string, body templ.Component) error {
	html, err := renderString(ctx, body)
	if err != nil {
		return fmt.Errorf("render %s: %w", tag, err)
	}
	id, err := m.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to.Email,
		Subject:  subject,
		BodyHTML: html,
		Tag:      tag,
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", tag, err)
	}
	m.logger.DebugContext(ctx, "lifecycle email sent",
		logger.Component("mailer"),
		logger.UserID(to.ID),
		logger.MessageID(id),
		slog.String("tag", tag),
	)
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
