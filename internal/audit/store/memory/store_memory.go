package memory

import (
	"context"
	"sync"

	"subport/internal/audit"
	id "subport/pkg/domain"
)

// Store keeps audit events in memory, in append order. Tests assert on the
// exact sequence of emitted events.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListByOrder(_ context.Context, orderID id.OrderID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]audit.Event, 0, len(s.events))
	for _, event := range s.events {
		if event.OrderID == orderID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

// All returns every stored event, for tests.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]audit.Event, len(s.events))
	copy(all, s.events)
	return all
}
