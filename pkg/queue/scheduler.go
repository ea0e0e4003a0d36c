package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// TaskInfo is a snapshot of one registered task.
type TaskInfo struct {
	Name      string
	Schedule  string
	NextRunAt time.Time
	LastRunAt *time.Time
	LastErr   error
	Runs      int
	Failures  int
}

type scheduledTask struct {
	handler    Handler
	schedule   Schedule
	runOnStart bool

	nextRunAt time.Time
	lastRunAt *time.Time
	lastErr   error
	runs      int
	failures  int
}

// Scheduler runs registered periodic tasks on a single goroutine.
type Scheduler struct {
	checkInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.Mutex
	tasks   []*scheduledTask
	byName  map[string]*scheduledTask
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		checkInterval: 30 * time.Second,
		logger:        slog.Default(),
		now:           time.Now,
		byName:        make(map[string]*scheduledTask),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask registers h to run on schedule. Tasks run in registration order
// when several are due at once.
func (s *Scheduler) AddTask(h Handler, schedule Schedule, opts ...SchedulerTaskOption) error {
	if h == nil {
		return ErrHandlerNil
	}
	if schedule == nil {
		return ErrNoScheduleSpecified
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[h.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, h.Name())
	}

	t := &scheduledTask{handler: h, schedule: schedule}
	for _, opt := range opts {
		opt(t)
	}
	t.nextRunAt = s.firstRun(t)
	s.tasks = append(s.tasks, t)
	s.byName[h.Name()] = t

	s.logger.Debug("registered periodic task",
		slog.String("task_name", h.Name()),
		slog.String("schedule", schedule.String()),
	)
	return nil
}

func (s *Scheduler) firstRun(t *scheduledTask) time.Time {
	now := s.now()
	if t.runOnStart {
		return now
	}
	return t.schedule.Next(now)
}

// Start checks for due tasks immediately and then every check interval
// until ctx is canceled or Stop is called. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return ErrSchedulerNotConfigured
	}
	if s.started {
		return ErrAlreadyStarted
	}
	for _, t := range s.tasks {
		t.nextRunAt = s.firstRun(t)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for the running task to return, or for
// ctx to expire. Stopping a scheduler that never started is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ErrStopTimeout
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("scheduler shutting down")
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every task whose next run time has passed and returns how
// many ran. The loop calls it on each check; tests call it directly.
func (s *Scheduler) RunDue(ctx context.Context) int {
	s.mu.Lock()
	now := s.now()
	due := make([]*scheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.nextRunAt.After(now) {
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	ran := 0
	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		err := s.runTask(ctx, t)
		ran++

		s.mu.Lock()
		finished := s.now()
		t.lastRunAt = &finished
		t.lastErr = err
		t.runs++
		if err != nil {
			t.failures++
		}
		// Missed runs are dropped: the next one is computed from now.
		t.nextRunAt = t.schedule.Next(finished)
		s.mu.Unlock()
	}
	return ran
}

func (s *Scheduler) runTask(ctx context.Context, t *scheduledTask) (err error) {
	name := t.handler.Name()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrTaskPanicked, name, r)
			s.logger.ErrorContext(ctx, "periodic task panicked",
				slog.String("task_name", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err = t.handler.Handle(ctx); err != nil {
		s.logger.ErrorContext(ctx, "periodic task failed",
			slog.String("task_name", name),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// Tasks returns a snapshot of the registered tasks in registration order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, TaskInfo{
			Name:      t.handler.Name(),
			Schedule:  t.schedule.String(),
			NextRunAt: t.nextRunAt,
			LastRunAt: t.lastRunAt,
			LastErr:   t.lastErr,
			Runs:      t.runs,
			Failures:  t.failures,
		})
	}
	return out
}
