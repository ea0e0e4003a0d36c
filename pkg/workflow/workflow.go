// Package workflow runs multi-step, delay-based email campaigns.
//
// A Workflow is an ordered list of Steps bound to a lifecycle Trigger.
// Enrolling a user creates an Enrollment whose NextStepAt tells the
// scheduler when the next step is due. Each step's delay counts from the
// previous step's send, so a workflow with delays [0, 2d, 5d] sends its
// second email no earlier than two days after enrollment.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Trigger string

// Signup and application triggers are raised by the account and application
// flows through the enrollment endpoint; subscription triggers come from the
// reconciler.
const (
	TriggerUserSignup           Trigger = "user_signup"
	TriggerProviderSignup       Trigger = "provider_signup"
	TriggerSubscriptionStarted  Trigger = "subscription_started"
	TriggerSubscriptionCanceled Trigger = "subscription_canceled"
	TriggerApplicationSubmitted Trigger = "application_submitted"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerUserSignup, TriggerProviderSignup, TriggerSubscriptionStarted,
		TriggerSubscriptionCanceled, TriggerApplicationSubmitted:
		return true
	}
	return false
}

// External reports whether the trigger is raised outside billing.
func (t Trigger) External() bool {
	switch t {
	case TriggerUserSignup, TriggerProviderSignup, TriggerApplicationSubmitted:
		return true
	}
	return false
}

type Workflow struct {
	ID      uuid.UUID
	Name    string
	Trigger Trigger
	Active  bool
	// Steps are ordered by Position.
	Steps []Step
}

type Step struct {
	ID         uuid.UUID
	WorkflowID uuid.UUID
	Position   int
	Subject    string
	BodyHTML   string
	DelayDays  int
	DelayHours int
	Active     bool
}

// Delay is the wait between the previous send and this step.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}

type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
)

type Enrollment struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	WorkflowID uuid.UUID
	// CurrentStep counts completed or skipped steps. It never decreases.
	CurrentStep int
	// NextStepAt is non-nil while State is active.
	NextStepAt  *time.Time
	State       State
	EnrolledAt  time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

type Store interface {
	// GetWorkflow returns the workflow with its steps, or ErrWorkflowNotFound.
	GetWorkflow(ctx context.Context, id uuid.UUID) (Workflow, error)
	// ListActiveWorkflows returns active workflows bound to trigger.
	ListActiveWorkflows(ctx context.Context, trigger Trigger) ([]Workflow, error)
	// SaveWorkflow upserts a workflow and replaces its steps.
	SaveWorkflow(ctx context.Context, wf Workflow) error

	// GetEnrollment returns ErrEnrollmentNotFound for unknown ids.
	GetEnrollment(ctx context.Context, id uuid.UUID) (Enrollment, error)
	// FindActiveEnrollment returns ErrEnrollmentNotFound when the user has no
	// active enrollment in the workflow.
	FindActiveEnrollment(ctx context.Context, userID, workflowID uuid.UUID) (Enrollment, error)
	SaveEnrollment(ctx context.Context, e Enrollment) error
	// ListDueEnrollments returns active enrollments with NextStepAt <= now.
	ListDueEnrollments(ctx context.Context, now time.Time) ([]Enrollment, error)
}
