package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sobernest/pkg/pg"
	"github.com/dmitrymomot/sobernest/pkg/workflow"
)

const enrollmentColumns = `id, user_id, workflow_id, current_step, next_step_at, state, enrolled_at, completed_at, updated_at`

// WorkflowStore persists workflows, their steps and enrollments.
type WorkflowStore struct {
	pool *pgxpool.Pool
}

func NewWorkflowStore(pool *pgxpool.Pool) *WorkflowStore {
	return &WorkflowStore{pool: pool}
}

func (s *WorkflowStore) GetWorkflow(ctx context.Context, id uuid.UUID) (workflow.Workflow, error) {
	var (
		wf      workflow.Workflow
		trigger string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, trigger, active FROM email_workflows WHERE id = $1`, id,
	).Scan(&wf.ID, &wf.Name, &trigger, &wf.Active)
	if pg.IsNotFoundError(err) {
		return wf, workflow.ErrWorkflowNotFound
	}
	if err != nil {
		return wf, fmt.Errorf("get workflow %s: %w", id, err)
	}
	wf.Trigger = workflow.Trigger(trigger)

	if wf.Steps, err = s.steps(ctx, wf.ID); err != nil {
		return wf, err
	}
	return wf, nil
}

func (s *WorkflowStore) ListActiveWorkflows(ctx context.Context, trigger workflow.Trigger) ([]workflow.Workflow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM email_workflows WHERE trigger = $1 AND active ORDER BY id`, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan workflow ids: %w", err)
	}

	out := make([]workflow.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// SaveWorkflow upserts the workflow and replaces its steps in one transaction.
func (s *WorkflowStore) SaveWorkflow(ctx context.Context, wf workflow.Workflow) error {
	return pg.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO email_workflows (id, name, trigger, active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				trigger = EXCLUDED.trigger,
				active = EXCLUDED.active,
				updated_at = NOW()`,
			wf.ID, wf.Name, string(wf.Trigger), wf.Active)
		if err != nil {
			return fmt.Errorf("upsert workflow %s: %w", wf.ID, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM email_workflow_steps WHERE workflow_id = $1`, wf.ID); err != nil {
			return fmt.Errorf("clear workflow steps: %w", err)
		}

		batch := &pgx.Batch{}
		for _, st := range wf.Steps {
			batch.Queue(`
				INSERT INTO email_workflow_steps (id, workflow_id, position, subject, body_html, delay_days, delay_hours, active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				st.ID, wf.ID, st.Position, st.Subject, st.BodyHTML, st.DelayDays, st.DelayHours, st.Active)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert workflow steps: %w", err)
		}
		return nil
	})
}

func (s *WorkflowStore) steps(ctx context.Context, workflowID uuid.UUID) ([]workflow.Step, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, position, subject, body_html, delay_days, delay_hours, active
		FROM email_workflow_steps WHERE workflow_id = $1 ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
	}
	defer rows.Close()

	var out []workflow.Step
	for rows.Next() {
		var st workflow.Step
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.Position, &st.Subject, &st.BodyHTML, &st.DelayDays, &st.DelayHours, &st.Active); err != nil {
			return nil, fmt.Errorf("scan workflow step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *WorkflowStore) GetEnrollment(ctx context.Context, id uuid.UUID) (workflow.Enrollment, error) {
	return s.oneEnrollment(ctx, `SELECT `+enrollmentColumns+` FROM email_workflow_enrollments WHERE id = $1`, id)
}

func (s *WorkflowStore) FindActiveEnrollment(ctx context.Context, userID, workflowID uuid.UUID) (workflow.Enrollment, error) {
	return s.oneEnrollment(ctx, `
		SELECT `+enrollmentColumns+` FROM email_workflow_enrollments
		WHERE user_id = $1 AND workflow_id = $2 AND state = 'active'`, userID, workflowID)
}

func (s *WorkflowStore) SaveEnrollment(ctx context.Context, e workflow.Enrollment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_workflow_enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			next_step_at = EXCLUDED.next_step_at,
			state = EXCLUDED.state,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`,
		e.ID, e.UserID, e.WorkflowID, e.CurrentStep, e.NextStepAt, string(e.State), e.EnrolledAt, e.CompletedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save enrollment %s: %w", e.ID, err)
	}
	return nil
}

func (s *WorkflowStore) ListDueEnrollments(ctx context.Context, now time.Time) ([]workflow.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+enrollmentColumns+` FROM email_workflow_enrollments
		WHERE state = 'active' AND next_step_at <= $1
		ORDER BY next_step_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list due enrollments: %w", err)
	}
	defer rows.Close()

	var out []workflow.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *WorkflowStore) oneEnrollment(ctx context.Context, query string, args ...any) (workflow.Enrollment, error) {
	e, err := scanEnrollment(s.pool.QueryRow(ctx, query, args...))
	if pg.IsNotFoundError(err) {
		return e, workflow.ErrEnrollmentNotFound
	}
	if err != nil {
		return e, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func scanEnrollment(row pgx.Row) (workflow.Enrollment, error) {
	var (
		e     workflow.Enrollment
		state string
	)
	err := row.Scan(&e.ID, &e.UserID, &e.WorkflowID, &e.CurrentStep, &e.NextStepAt, &state, &e.EnrolledAt, &e.CompletedAt, &e.UpdatedAt)
	e.State = workflow.State(state)
	return e, err
}
