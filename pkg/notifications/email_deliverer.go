package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/dmitrymomot/sobernest/pkg/email"
)

// RecipientsFunc returns the addresses a notification goes to,
// typically every admin user.
type RecipientsFunc func(ctx context.Context) ([]string, error)

// RenderFunc turns a notification into an email subject and HTML body.
type RenderFunc func(ctx context.Context, notif Notification) (subject, bodyHTML string, err error)

// EmailDeliverer fans a notification out to operator mailboxes.
type EmailDeliverer struct {
	sender      email.Sender
	recipients  RecipientsFunc
	render      RenderFunc
	concurrency int
}

// EmailDelivererOption configures an EmailDeliverer.
type EmailDelivererOption func(*EmailDeliverer)

// WithRenderer replaces the plain default layout.
func WithRenderer(fn RenderFunc) EmailDelivererOption {
	return func(d *EmailDeliverer) {
		if fn != nil {
			d.render = fn
		}
	}
}

// WithConcurrency bounds parallel sends.
func WithConcurrency(n int) EmailDelivererOption {
	return func(d *EmailDeliverer) {
		d.concurrency = n
	}
}

func NewEmailDeliverer(sender email.Sender, recipients RecipientsFunc, opts ...EmailDelivererOption) *EmailDeliverer {
	d := &EmailDeliverer{
		sender:      sender,
		recipients:  recipients,
		render:      PlainRender,
		concurrency: 5,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *EmailDeliverer) Deliver(ctx context.Context, notif Notification) error {
	to, err := d.recipients(ctx)
	if err != nil {
		return fmt.Errorf("notifications: list recipients: %w", err)
	}
	if len(to) == 0 {
		return ErrNoRecipients
	}

	subject, body, err := d.render(ctx, notif)
	if err != nil {
		return errors.Join(ErrRenderingMessage, err)
	}

	res := email.Broadcast(ctx, d.sender, to, email.SendEmailParams{
		Subject:  subject,
		BodyHTML: body,
		Tag:      string(notif.Kind),
	}, d.concurrency)
	if res.Failed > 0 {
		errs := make([]error, 0, len(res.Errors)+1)
		errs = append(errs, fmt.Errorf("%w: %d of %d", ErrPartialDelivery, res.Failed, len(to)))
		for _, e := range res.Errors {
			errs = append(errs, e)
		}
		return errors.Join(errs...)
	}
	return nil
}

// PlainRender is the default layout: title as subject, escaped message and data rows.
func PlainRender(_ context.Context, notif Notification) (string, string, error) {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(notif.Message))
	b.WriteString("</p>")
	if len(notif.Data) > 0 {
		b.WriteString("<ul>")
		for _, k := range sortedKeys(notif.Data) {
			fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>", html.EscapeString(k), html.EscapeString(notif.Data[k]))
		}
		b.WriteString("</ul>")
	}
	return "[Admin] " + notif.Title, b.String(), nil
}
