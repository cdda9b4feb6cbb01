package audit

import (
	"context"
	"time"

	id "subport/pkg/domain"
)

// Store persists audit events. Append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByOrder(ctx context.Context, orderID id.OrderID) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses
// the storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, event)
}

func (p *Publisher) List(ctx context.Context, orderID id.OrderID) ([]Event, error) {
	return p.store.ListByOrder(ctx, orderID)
}
