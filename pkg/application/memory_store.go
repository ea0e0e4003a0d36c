package application

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sobernest/pkg/reminder"
)

type MemoryStore struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]Application
}

func NewMemoryStore(apps ...Application) *MemoryStore {
	s := &MemoryStore{apps: make(map[uuid.UUID]Application, len(apps))}
	for _, a := range apps {
		s.apps[a.ID] = a
	}
	return s
}

func (s *MemoryStore) Put(a Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[a.ID] = a
}

func (s *MemoryStore) Get(id uuid.UUID) (Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[id]
	if !ok {
		return Application{}, ErrApplicationNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListUpcomingMoveIns(_ context.Context, from, to time.Time) ([]Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Application
	for _, a := range s.apps {
		if a.DueForMoveInReminder(from, to.Sub(from)) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Application) int { return a.MoveInDate.Compare(*b.MoveInDate) })
	return out, nil
}

func (s *MemoryStore) MarkMoveInReminderSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return ErrApplicationNotFound
	}
	next, err := a.MoveInReminder.Fire(reminder.EventSent)
	if err != nil {
		return errors.Join(ErrReminderAlreadySent, err)
	}
	a.MoveInReminder = next
	s.apps[id] = a
	return nil
}
