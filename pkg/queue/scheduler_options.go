package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithCheckInterval sets how often the scheduler looks for due tasks.
// It bounds how late a task can start.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// SchedulerTaskOption configures one registered task.
type SchedulerTaskOption func(*scheduledTask)

// WithRunOnStart makes the task due as soon as the scheduler starts
// instead of one schedule step later.
func WithRunOnStart() SchedulerTaskOption {
	return func(t *scheduledTask) { t.runOnStart = true }
}
