package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/sobernest/pkg/notifications"
)

const dateLayout = "January 2, 2006"

// htmlWriter keeps the first write error so templates read top to bottom.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) p(parts ...string) {
	h.raw("<p>")
	for _, s := range parts {
		h.text(s)
	}
	h.raw("</p>")
}

func (h *htmlWriter) button(label, href string) {
	h.raw(`<p><a href="`)
	h.text(href)
	h.raw(`" style="display:inline-block;padding:10px 18px;background:#2f6f5e;color:#fff;text-decoration:none;border-radius:4px">`)
	h.text(label)
	h.raw("</a></p>")
}

type layoutData struct {
	AppName      string
	Title        string
	SupportEmail string
}

func layout(d layoutData, body func(h *htmlWriter)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		h.text(d.Title)
		h.raw(`</title></head><body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933;line-height:1.5">`)
		h.raw(`<h2 style="color:#2f6f5e">`)
		h.text(d.AppName)
		h.raw("</h2>")
		body(h)
		if d.SupportEmail != "" {
			h.raw(`<p style="color:#7b8794;font-size:12px">Questions? Reply to this email or write to `)
			h.text(d.SupportEmail)
			h.raw(".</p>")
		}
		h.raw("</body></html>")
		return h.err
	})
}

type renewalReminderData struct {
	layoutData
	Name      string
	RenewsOn  time.Time
	Allowance int
	ManageURL string
}

func renewalReminder(d renewalReminderData) templ.Component {
	return layout(d.layoutData, func(h *htmlWriter) {
		h.p("Hi ", d.Name, ",")
		h.p("Your subscription renews on ", d.RenewsOn.Format(dateLayout), ". No action is needed to keep your listings live.")
		h.p(fmt.Sprintf("Your plan currently covers %d listing slot(s).", d.Allowance))
		h.button("Manage subscription", d.ManageURL)
	})
}

type cancellationNoticeData struct {
	layoutData
	Name       string
	GraceEnds  time.Time
	RenewalURL string
}

func cancellationNotice(d cancellationNoticeData) templ.Component {
	return layout(d.layoutData, func(h *htmlWriter) {
		h.p("Hi ", d.Name, ",")
		h.p("Your subscription has been canceled. Your listings stay visible to people searching for housing until ", d.GraceEnds.Format(dateLayout), ".")
		h.p("Reactivate before then and nothing changes for the residents looking at your homes.")
		h.button("Reactivate subscription", d.RenewalURL)
	})
}

type listingsHiddenData struct {
	layoutData
	Name       string
	Hidden     int
	RenewalURL string
}

func listingsHidden(d listingsHiddenData) templ.Component {
	return layout(d.layoutData, func(h *htmlWriter) {
		h.p("Hi ", d.Name, ",")
		h.p(fmt.Sprintf("Your grace period has ended and %d listing(s) are no longer visible on the marketplace.", d.Hidden))
		h.p("Subscribe again to restore them. Your listing details are kept.")
		h.button("Restore my listings", d.RenewalURL)
	})
}

type moveInReminderData struct {
	layoutData
	Name         string
	ListingTitle string
	MoveInDate   time.Time
	ListingURL   string
}

func moveInReminder(d moveInReminderData) templ.Component {
	return layout(d.layoutData, func(h *htmlWriter) {
		h.p("Hi ", d.Name, ",")
		h.p("Your move-in at ", d.ListingTitle, " is on ", d.MoveInDate.Format(dateLayout), ".")
		h.p("Reach out to the house manager if your plans have changed.")
		h.button("View listing", d.ListingURL)
	})
}

func adminNotification(d layoutData, n notifications.Notification) templ.Component {
	return layout(d, func(h *htmlWriter) {
		h.p(n.Message)
		if len(n.Data) == 0 {
			return
		}
		h.raw(`<table style="border-collapse:collapse">`)
		for _, k := range sortedKeys(n.Data) {
			h.raw(`<tr><td style="padding:2px 12px 2px 0;color:#7b8794">`)
			h.text(k)
			h.raw("</td><td>")
			h.text(n.Data[k])
			h.raw("</td></tr>")
		}
		h.raw("</table>")
	})
}

func renderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// greetingName title-cases the recipient's name, falling back to "there".
func greetingName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "there"
	}
	return cases.Title(language.English).String(name)
}
