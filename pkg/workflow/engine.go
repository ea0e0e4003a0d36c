package workflow

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/email"
	"github.com/dmitrymomot/sobernest/pkg/logger"
	"github.com/dmitrymomot/sobernest/pkg/user"
)

// UserLookup resolves enrollment owners to an address and display name.
type UserLookup interface {
	Get(ctx context.Context, id uuid.UUID) (user.User, error)
}

// AdvanceResult summarizes one AdvanceDue run.
type AdvanceResult struct {
	Sent      int
	Skipped   int
	Completed int
	Canceled  int
	Failed    int
}

type Engine struct {
	store  Store
	users  UserLookup
	sender email.Sender
	logger *slog.Logger
	now    func() time.Time
}

type EngineOption func(*Engine)

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(store Store, users UserLookup, sender email.Sender, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		users:  users,
		sender: sender,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enroll puts userID into every active workflow bound to trigger, skipping
// workflows the user is already actively enrolled in. It returns the number
// of new enrollments.
func (e *Engine) Enroll(ctx context.Context, userID uuid.UUID, trigger Trigger) (int, error) {
	workflows, err := e.store.ListActiveWorkflows(ctx, trigger)
	if err != nil {
		return 0, fmt.Errorf("list workflows for %s: %w", trigger, err)
	}

	now := e.now().UTC()
	created := 0
	for _, wf := range workflows {
		if len(wf.Steps) == 0 {
			continue
		}
		_, err := e.store.FindActiveEnrollment(ctx, userID, wf.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrEnrollmentNotFound) {
			return created, fmt.Errorf("check enrollment: %w", err)
		}

		next := now.Add(wf.Steps[0].Delay())
		enr := Enrollment{
			ID:         uuid.New(),
			UserID:     userID,
			WorkflowID: wf.ID,
			NextStepAt: &next,
			State:      StateActive,
			EnrolledAt: now,
			UpdatedAt:  now,
		}
		if err := e.store.SaveEnrollment(ctx, enr); err != nil {
			return created, fmt.Errorf("save enrollment: %w", err)
		}
		created++

		e.logger.InfoContext(ctx, "user enrolled in workflow",
			logger.Component("workflow"),
			logger.UserID(userID),
			slog.String("workflow", wf.Name),
			slog.String("trigger", string(trigger)),
		)
	}
	return created, nil
}

// Cancel stops an active enrollment. It keeps CurrentStep so Resume can
// continue where it left off.
func (e *Engine) Cancel(ctx context.Context, enrollmentID uuid.UUID) error {
	enr, err := e.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if err := enr.fire(eventCancel); err != nil {
		return err
	}
	enr.NextStepAt = nil
	enr.UpdatedAt = e.now().UTC()
	return e.store.SaveEnrollment(ctx, enr)
}

// Resume reactivates a canceled enrollment at its current step, due
// immediately.
func (e *Engine) Resume(ctx context.Context, enrollmentID uuid.UUID) error {
	enr, err := e.store.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return err
	}
	if err := enr.fire(eventResume); err != nil {
		return err
	}
	now := e.now().UTC()
	enr.NextStepAt = &now
	enr.UpdatedAt = now
	return e.store.SaveEnrollment(ctx, enr)
}

// AdvanceDue processes every due enrollment once. A failed send leaves the
// enrollment untouched so the next run retries it.
func (e *Engine) AdvanceDue(ctx context.Context) (AdvanceResult, error) {
	var res AdvanceResult
	now := e.now().UTC()

	due, err := e.store.ListDueEnrollments(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list due enrollments: %w", err)
	}

	for _, enr := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.advance(ctx, enr, now, &res); err != nil {
			res.Failed++
			e.logger.ErrorContext(ctx, "workflow step failed",
				logger.Component("workflow"),
				slog.String("enrollment_id", enr.ID.String()),
				logger.UserID(enr.UserID),
				logger.Error(err),
			)
		}
	}
	return res, nil
}

func (e *Engine) advance(ctx context.Context, enr Enrollment, now time.Time, res *AdvanceResult) error {
	wf, err := e.store.GetWorkflow(ctx, enr.WorkflowID)
	switch {
	case errors.Is(err, ErrWorkflowNotFound):
		return e.finish(ctx, &enr, eventCancel, now, res)
	case err != nil:
		return fmt.Errorf("get workflow: %w", err)
	case !wf.Active:
		return e.finish(ctx, &enr, eventCancel, now, res)
	}

	if enr.CurrentStep >= len(wf.Steps) {
		return e.finish(ctx, &enr, eventComplete, now, res)
	}

	step := wf.Steps[enr.CurrentStep]
	if !step.Active {
		res.Skipped++
		return e.moveOn(ctx, &enr, wf, now, res)
	}

	u, err := e.users.Get(ctx, enr.UserID)
	if errors.Is(err, user.ErrUserNotFound) {
		return e.finish(ctx, &enr, eventCancel, now, res)
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	msgID, err := e.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   u.Email,
		Subject:  fillPlaceholders(step.Subject, u, false),
		BodyHTML: fillPlaceholders(step.BodyHTML, u, true),
		Tag:      "workflow",
	})
	if err != nil {
		return fmt.Errorf("send step %d of %q: %w", step.Position, wf.Name, err)
	}
	res.Sent++
	e.logger.DebugContext(ctx, "workflow step sent",
		logger.Component("workflow"),
		logger.UserID(u.ID),
		slog.String("workflow", wf.Name),
		slog.Int("step", enr.CurrentStep),
		logger.MessageID(msgID),
	)

	return e.moveOn(ctx, &enr, wf, now, res)
}

// moveOn advances past the current step and schedules the following one.
func (e *Engine) moveOn(ctx context.Context, enr *Enrollment, wf Workflow, now time.Time, res *AdvanceResult) error {
	enr.CurrentStep++
	if enr.CurrentStep >= len(wf.Steps) {
		return e.finish(ctx, enr, eventComplete, now, res)
	}
	next := now.Add(wf.Steps[enr.CurrentStep].Delay())
	enr.NextStepAt = &next
	enr.UpdatedAt = now
	return e.store.SaveEnrollment(ctx, *enr)
}

func (e *Engine) finish(ctx context.Context, enr *Enrollment, event stateEvent, now time.Time, res *AdvanceResult) error {
	if err := enr.fire(event); err != nil {
		return err
	}
	enr.NextStepAt = nil
	enr.UpdatedAt = now
	if event == eventComplete {
		enr.CompletedAt = &now
	}
	if err := e.store.SaveEnrollment(ctx, *enr); err != nil {
		return err
	}
	if event == eventComplete {
		res.Completed++
	} else {
		res.Canceled++
	}
	return nil
}

func fillPlaceholders(s string, u user.User, escape bool) string {
	name := u.Name
	if name == "" {
		name = "there"
	}
	addr := u.Email
	if escape {
		name = html.EscapeString(name)
		addr = html.EscapeString(addr)
	}
	return strings.NewReplacer("{{name}}", name, "{{email}}", addr).Replace(s)
}
