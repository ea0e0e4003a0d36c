package workflow

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[uuid.UUID]Workflow
	enrollments map[uuid.UUID]Enrollment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[uuid.UUID]Workflow),
		enrollments: make(map[uuid.UUID]Enrollment),
	}
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id uuid.UUID) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}
	wf.Steps = slices.Clone(wf.Steps)
	return wf, nil
}

func (s *MemoryStore) ListActiveWorkflows(_ context.Context, trigger Trigger) ([]Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Workflow
	for _, wf := range s.workflows {
		if wf.Active && wf.Trigger == trigger {
			wf.Steps = slices.Clone(wf.Steps)
			out = append(out, wf)
		}
	}
	slices.SortFunc(out, func(a, b Workflow) int { return compareIDs(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) SaveWorkflow(_ context.Context, wf Workflow) error {
	steps := slices.Clone(wf.Steps)
	slices.SortStableFunc(steps, func(a, b Step) int { return a.Position - b.Position })
	for i := range steps {
		steps[i].WorkflowID = wf.ID
		if steps[i].ID == uuid.Nil {
			steps[i].ID = uuid.New()
		}
	}
	wf.Steps = steps

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
	return nil
}

func (s *MemoryStore) GetEnrollment(_ context.Context, id uuid.UUID) (Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return Enrollment{}, ErrEnrollmentNotFound
	}
	return e, nil
}

func (s *MemoryStore) FindActiveEnrollment(_ context.Context, userID, workflowID uuid.UUID) (Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.enrollments {
		if e.UserID == userID && e.WorkflowID == workflowID && e.State == StateActive {
			return e, nil
		}
	}
	return Enrollment{}, ErrEnrollmentNotFound
}

func (s *MemoryStore) SaveEnrollment(_ context.Context, e Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
	return nil
}

func (s *MemoryStore) ListDueEnrollments(_ context.Context, now time.Time) ([]Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Enrollment
	for _, e := range s.enrollments {
		if e.State == StateActive && e.NextStepAt != nil && !e.NextStepAt.After(now) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Enrollment) int { return a.NextStepAt.Compare(*b.NextStepAt) })
	return out, nil
}

// Enrollments returns a snapshot of every enrollment of userID.
func (s *MemoryStore) Enrollments(userID uuid.UUID) []Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Enrollment
	for _, e := range s.enrollments {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func compareIDs(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}
