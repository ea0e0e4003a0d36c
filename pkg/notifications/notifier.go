package notifications

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/logger"
)

// Notifier is the fire-and-forget admin channel. Delivery errors are
// logged and never returned to the caller.
type Notifier struct {
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

func WithLogger(l *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = l
	}
}

func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) {
		n.now = now
	}
}

func NewNotifier(d Deliverer, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		deliverer: d,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers notif, assigning an ID and timestamp when missing.
func (n *Notifier) Notify(ctx context.Context, notif Notification) {
	if n == nil || n.deliverer == nil {
		return
	}
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = n.now()
	}

	if err := n.deliverer.Deliver(ctx, notif); err != nil {
		n.logger.LogAttrs(ctx, slog.LevelWarn, "admin notification not delivered",
			logger.Component("notifications"),
			slog.String("kind", string(notif.Kind)),
			slog.String("notification_id", notif.ID),
			logger.Error(err),
		)
	}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
