package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/application"
	"github.com/dmitrymomot/sobernest/pkg/lock"
	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/metrics"
	"github.com/dmitrymomot/sobernest/pkg/notifications"
	"github.com/dmitrymomot/sobernest/pkg/queue"
	"github.com/dmitrymomot/sobernest/pkg/subscription"
	"github.com/dmitrymomot/sobernest/pkg/user"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
)

// Pass names, also used as metric labels.
const (
	PassRenewalReminders = "renewal_reminders"
	PassGraceExpiry      = "grace_expiry"
	PassMoveInReminders  = "move_in_reminders"
	PassWorkflowSteps    = "workflow_steps"
)

// Mailer sends the emails the scheduler is responsible for.
type Mailer interface {
	SendRenewalReminder(ctx context.Context, provider user.User, sub subscription.Subscription) error
	SendListingsHidden(ctx context.Context, provider user.User, hidden int) error
	SendMoveInReminder(ctx context.Context, tenant user.User, app application.Application) error
}

type UserLookup interface {
	Get(ctx context.Context, id uuid.UUID) (user.User, error)
}

type VisibilityGate interface {
	HideProviderListings(ctx context.Context, providerID uuid.UUID) (int, error)
}

type AdminNotifier interface {
	Notify(ctx context.Context, notif notifications.Notification)
}

type WorkflowAdvancer interface {
	AdvanceDue(ctx context.Context) (workflow.AdvanceResult, error)
}

// PassReport summarizes one pass of one tick.
type PassReport struct {
	Name      string
	Processed int
	Failed    int
	Took      time.Duration
	Err       error
}

// Scheduler runs the time-driven lifecycle transitions: renewal
// reminders, grace expiry, move-in reminders and workflow steps. The passes
// are periodic tasks on a queue.Scheduler, so they never overlap.
type Scheduler struct {
	cfg       Config
	subs      subscription.Store
	apps      application.Store
	users     UserLookup
	gate      VisibilityGate
	mailer    Mailer
	workflows WorkflowAdvancer
	notifier  AdminNotifier
	locker    lock.Locker
	metrics   *metrics.Lifecycle
	logger    *slog.Logger
	now       func() time.Time
	runner    *queue.Scheduler
}

func NewScheduler(cfg Config, subs subscription.Store, apps application.Store, users UserLookup, gate VisibilityGate, mailer Mailer, opts ...Option) *Scheduler {
	if subs == nil || apps == nil || users == nil || gate == nil || mailer == nil {
		panic("lifecycle: scheduler dependencies are required")
	}
	s := &Scheduler{
		cfg:    cfg.withDefaults(),
		subs:   subs,
		apps:   apps,
		users:  users,
		gate:   gate,
		mailer: mailer,
		locker: lock.NewMemoryLocker(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runner = queue.NewScheduler(
		queue.WithCheckInterval(min(s.cfg.Interval, time.Minute)),
		queue.WithSchedulerLogger(s.logger.With(logger.Component("scheduler"))),
	)
	s.register()
	return s
}

// Start runs every pass immediately and then once per interval until ctx
// is canceled or Stop is called. It returns without blocking.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		if errors.Is(err, queue.ErrAlreadyStarted) {
			return ErrAlreadyStarted
		}
		return err
	}
	s.logger.Info("lifecycle scheduler started",
		logger.Component("scheduler"),
		slog.Duration("interval", s.cfg.Interval),
	)
	return nil
}

// Stop cancels the loop and waits for the running pass to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if err := s.runner.Stop(ctx); err != nil {
		return errors.Join(ErrStopTimeout, err)
	}
	s.logger.Info("lifecycle scheduler stopped", logger.Component("scheduler"))
	return nil
}

type pass struct {
	name string
	run  func(context.Context, *PassReport) error
}

func (s *Scheduler) passes() []pass {
	return []pass{
		{PassRenewalReminders, s.sendRenewalReminders},
		{PassGraceExpiry, s.expireGracePeriods},
		{PassMoveInReminders, s.sendMoveInReminders},
		{PassWorkflowSteps, s.advanceWorkflows},
	}
}

// register adds each pass as a periodic task. The queue runs due tasks in
// registration order on one goroutine, so a tick is the four passes in order.
func (s *Scheduler) register() {
	every := queue.EveryInterval(s.cfg.Interval)
	for _, p := range s.passes() {
		h := queue.NewPeriodicTaskHandler(p.name, func(ctx context.Context) error {
			return s.runPass(ctx, p.name, p.run).Err
		})
		if err := s.runner.AddTask(h, every, queue.WithRunOnStart()); err != nil {
			panic(err)
		}
	}
}

// RunOnce runs the four passes in order. A failing or panicking pass does
// not stop the ones after it.
func (s *Scheduler) RunOnce(ctx context.Context) []PassReport {
	passes := s.passes()
	reports := make([]PassReport, 0, len(passes))
	for _, p := range passes {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, s.runPass(ctx, p.name, p.run))
	}
	return reports
}

func (s *Scheduler) runPass(ctx context.Context, name string, run func(context.Context, *PassReport) error) (rep PassReport) {
	rep.Name = name
	start := time.Now()
	log := s.logger.With(logger.Component("scheduler"), logger.Pass(name))

	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
			log.ErrorContext(ctx, "scheduler pass panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		rep.Took = time.Since(start)
		s.metrics.SchedulerPass(name, rep.Took, rep.Err)

		if rep.Err != nil {
			log.ErrorContext(ctx, "scheduler pass failed", logger.Error(rep.Err), logger.Duration(rep.Took))
			return
		}
		log.InfoContext(ctx, "scheduler pass finished",
			logger.Count(rep.Processed),
			slog.Int("failed", rep.Failed),
			logger.Duration(rep.Took),
		)
	}()

	rep.Err = run(ctx, &rep)
	return rep
}

func (s *Scheduler) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := s.locker.Acquire(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	defer release()
	return fn()
}
