package listing

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store that also counts visibility writes,
// which tests use to assert idempotence.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]Listing
	writes   int
}

func NewMemoryStore(listings ...Listing) *MemoryStore {
	s := &MemoryStore{listings: make(map[uuid.UUID]Listing, len(listings))}
	for _, l := range listings {
		s.listings[l.ID] = l
	}
	return s
}

func (s *MemoryStore) Put(l Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

func (s *MemoryStore) Get(id uuid.UUID) (Listing, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	return l, ok
}

// ByProvider returns a snapshot of the provider's listings.
func (s *MemoryStore) ByProvider(providerID uuid.UUID) []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Listing
	for _, l := range s.listings {
		if l.ProviderID == providerID {
			out = append(out, l)
		}
	}
	return out
}

// Writes returns how many listing rows have been modified so far.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *MemoryStore) SetVisibilityByProvider(_ context.Context, providerID uuid.UUID, visible bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, l := range s.listings {
		if l.ProviderID != providerID || l.IsVisible == visible {
			continue
		}
		l.IsVisible = visible
		s.listings[id] = l
		n++
	}
	s.writes += n
	return n, nil
}

func (s *MemoryStore) CountPublished(_ context.Context, providerID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.listings {
		if l.ProviderID == providerID && l.Published {
			n++
		}
	}
	return n, nil
}
