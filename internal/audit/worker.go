package audit

import (
	"context"
	"time"
)

// Queue is a channel-backed publisher for deployments without a
// transactional outbox: Emit hands the event to an in-process Worker so
// persistence stays off the request path. Deployments with postgres use
// the store-backed Publisher instead, which shares the mutation
// transaction.
type Queue struct {
	inbox chan Event
}

func NewQueue(buffer int) *Queue {
	return &Queue{inbox: make(chan Event, buffer)}
}

func (q *Queue) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case q.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox is the consuming side, handed to a Worker.
func (q *Queue) Inbox() <-chan Event {
	return q.inbox
}

// Worker consumes audit events from a channel and persists them. It keeps
// background processing testable without wiring queue implementations.
type Worker struct {
	store Store
	inbox <-chan Event
}

func NewWorker(store Store, inbox <-chan Event) *Worker {
	return &Worker{store: store, inbox: inbox}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}
