package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sobernest/pkg/lock"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
)

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithGracePeriod overrides the default seven-day grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.gracePeriod = d
		}
	}
}

// WithEventLog replaces the in-memory de-duplication log.
func WithEventLog(l EventLog) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.events = l
		}
	}
}

// WithLocker replaces the in-process per-provider lock.
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func WithMailer(m Mailer) Option {
	return func(r *Reconciler) {
		r.mailer = m
	}
}

func WithNotifier(n AdminNotifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

func WithEnroller(e Enroller) Option {
	return func(r *Reconciler) {
		r.enroller = e
	}
}

// WithPublishedCounter enables CanPublish.
func WithPublishedCounter(c PublishedCounter) Option {
	return func(r *Reconciler) {
		r.published = c
	}
}

func WithMetrics(m *metrics.Lifecycle) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}
