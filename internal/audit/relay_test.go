package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subport/internal/audit"
	id "subport/pkg/domain"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []audit.Event
	published map[string]bool
}

func newFakeOutbox(events ...audit.Event) *fakeOutbox {
	return &fakeOutbox{pending: events, published: make(map[string]bool)}
}

func (f *fakeOutbox) FetchUnpublished(_ context.Context, limit int) ([]audit.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.Event, 0, limit)
	for _, event := range f.pending {
		if f.published[event.ID] {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, eventIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, eventID := range eventIDs {
		f.published[eventID] = true
	}
	return nil
}

func (f *fakeOutbox) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeSink struct {
	mu       sync.Mutex
	received []audit.Event
	failOn   string
}

func (f *fakeSink) Emit(_ context.Context, event audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && event.ID == f.failOn {
		return errors.New("broker unavailable")
	}
	f.received = append(f.received, event)
	return nil
}

func (f *fakeSink) receivedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.received))
	for i, event := range f.received {
		ids[i] = event.ID
	}
	return ids
}

func someEvent() audit.Event {
	return audit.Event{
		ID:      uuid.NewString(),
		OrderID: id.OrderID(uuid.New()),
		Action:  audit.EventProductAdded,
	}
}

func TestRelayShipsAndMarks(t *testing.T) {
	first, second := someEvent(), someEvent()
	outbox := newFakeOutbox(first, second)
	sink := &fakeSink{}
	relay := audit.NewRelay(outbox, sink, audit.WithRelayInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return outbox.publishedCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{first.ID, second.ID}, sink.receivedIDs())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRelayKeepsFailedEventsPending(t *testing.T) {
	first, second := someEvent(), someEvent()
	outbox := newFakeOutbox(first, second)
	sink := &fakeSink{failOn: second.ID}
	relay := audit.NewRelay(outbox, sink, audit.WithRelayInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		return outbox.publishedCount() == 1
	}, time.Second, 5*time.Millisecond)

	// The broker recovers; the pending event ships on a later tick.
	sink.mu.Lock()
	sink.failOn = ""
	sink.mu.Unlock()

	require.Eventually(t, func() bool {
		return outbox.publishedCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, sink.receivedIDs(), second.ID)
}
