package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps subscriptions in process. It counts Save calls so tests
// can assert that no-op paths do not write.
type MemoryStore struct {
	mu    sync.RWMutex
	subs  map[uuid.UUID]Subscription
	saves int
}

func NewMemoryStore(subs ...Subscription) *MemoryStore {
	s := &MemoryStore{subs: make(map[uuid.UUID]Subscription, len(subs))}
	for _, sub := range subs {
		s.subs[sub.ProviderID] = clone(sub)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, providerID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[providerID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	out := clone(sub)
	return &out, nil
}

func (s *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ProviderID] = clone(*sub)
	s.saves++
	return nil
}

// Saves returns the number of Save calls so far.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemoryStore) ListDueForReminder(_ context.Context, now time.Time, lookahead time.Duration) ([]Subscription, error) {
	return s.filter(func(sub *Subscription) bool { return sub.DueForRenewalReminder(now, lookahead) }), nil
}

func (s *MemoryStore) ListGraceExpired(_ context.Context, now time.Time) ([]Subscription, error) {
	return s.filter(func(sub *Subscription) bool { return sub.GraceExpired(now) }), nil
}

func (s *MemoryStore) filter(keep func(*Subscription) bool) []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, sub := range s.subs {
		if keep(&sub) {
			out = append(out, clone(sub))
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int { return slices.Compare(a.ProviderID[:], b.ProviderID[:]) })
	return out
}

// clone copies pointer fields so callers cannot mutate stored rows.
func clone(sub Subscription) Subscription {
	sub.CurrentPeriodEnd = copyTime(sub.CurrentPeriodEnd)
	sub.GracePeriodEndsAt = copyTime(sub.GracePeriodEndsAt)
	sub.CanceledAt = copyTime(sub.CanceledAt)
	return sub
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
