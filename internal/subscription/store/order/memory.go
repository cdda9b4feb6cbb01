// Package order provides the order aggregate stores. Both implementations
// expose the same Execute contract: validation and mutation run while the
// aggregate is exclusively held (mutex here, SELECT ... FOR UPDATE in
// postgres), so read-modify-write sequences like increment-or-create never
// lose updates under concurrent requests.
package order

import (
	"context"
	"sync"

	"subport/internal/subscription/models"
	id "subport/pkg/domain"
	"subport/pkg/platform/sentinel"
)

// InMemory stores order aggregates in memory.
type InMemory struct {
	mu     sync.Mutex
	orders map[id.OrderID]*models.Order
}

func NewInMemory() *InMemory {
	return &InMemory{orders: make(map[id.OrderID]*models.Order)}
}

func (s *InMemory) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return sentinel.ErrConflict
	}
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orderID id.OrderID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return order.Clone(), nil
}

// Execute runs validate then mutate while the aggregate is exclusively
// held. Mutation happens on a working copy; a failing callback leaves the
// stored aggregate untouched, so no partial write is ever observable.
func (s *InMemory) Execute(ctx context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(context.Context, *models.Order) error) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[orderID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := stored.Clone()
	if validate != nil {
		if err := validate(working); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		if err := mutate(ctx, working); err != nil {
			return nil, err
		}
	}

	s.orders[orderID] = working
	return working.Clone(), nil
}

// DeleteLine is the deletion entry point with the intercept policy: a hard
// delete of a non-structural line on a confirmed order is transparently
// converted into a soft remove so billing history is never lost. A delete
// of an already-removed line is a distinct no-op outcome so callers can
// skip their side effects.
func (s *InMemory) DeleteLine(ctx context.Context, orderID id.OrderID, lineID id.LineID, actor id.UserID) (models.DeleteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[orderID]
	if !ok {
		return models.DeleteHard, sentinel.ErrNotFound
	}
	line := stored.Line(lineID)
	if line == nil {
		return models.DeleteHard, sentinel.ErrNotFound
	}

	if line.CanHardDelete(stored.State) {
		kept := stored.Lines[:0]
		for _, l := range stored.Lines {
			if l.ID != lineID {
				kept = append(kept, l)
			}
		}
		stored.Lines = kept
		return models.DeleteHard, nil
	}

	if line.IsRemovedNoop() {
		return models.DeleteNoop, nil
	}
	if err := line.CanSoftRemove(); err != nil {
		return models.DeleteHard, err
	}
	line.ApplySoftRemove(actor, "delete intercepted", id.SourceBackend, nowFromContext(ctx))
	return models.DeleteIntercepted, nil
}
