package lifecycle

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/sobernest/pkg/lock"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now; tests drive ticks through it.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocker shares per-provider locks with the billing reconciler.
// Pass the same Locker to both.
func WithLocker(l lock.Locker) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithNotifier(n AdminNotifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// WithWorkflows enables the workflow advancement pass.
func WithWorkflows(w WorkflowAdvancer) Option {
	return func(s *Scheduler) { s.workflows = w }
}

func WithMetrics(m *metrics.Lifecycle) Option {
	return func(s *Scheduler) { s.metrics = m }
}
