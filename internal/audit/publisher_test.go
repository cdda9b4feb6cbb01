package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subport/internal/audit"
	"subport/internal/audit/store/memory"
	id "subport/pkg/domain"
)

func TestEmitDefaultsTimestamp(t *testing.T) {
	store := memory.New()
	publisher := audit.NewPublisher(store)

	err := publisher.Emit(context.Background(), audit.Event{
		ID:      uuid.NewString(),
		OrderID: id.OrderID(uuid.New()),
		Action:  audit.EventProductAdded,
		Source:  id.SourcePortal,
	})
	require.NoError(t, err)

	events := store.All()
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), events[0].Timestamp, time.Minute)
}

func TestEmitKeepsExplicitTimestamp(t *testing.T) {
	store := memory.New()
	publisher := audit.NewPublisher(store)
	stamp := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	err := publisher.Emit(context.Background(), audit.Event{
		ID:        uuid.NewString(),
		Timestamp: stamp,
		OrderID:   id.OrderID(uuid.New()),
		Action:    audit.EventNextDatePushed,
		Source:    id.SourceBackend,
	})
	require.NoError(t, err)
	assert.Equal(t, stamp, store.All()[0].Timestamp)
}

func TestListFiltersByOrder(t *testing.T) {
	store := memory.New()
	publisher := audit.NewPublisher(store)
	orderA := id.OrderID(uuid.New())
	orderB := id.OrderID(uuid.New())

	for _, event := range []audit.Event{
		{ID: uuid.NewString(), OrderID: orderA, Action: audit.EventProductAdded},
		{ID: uuid.NewString(), OrderID: orderB, Action: audit.EventSubscriptionPaused},
		{ID: uuid.NewString(), OrderID: orderA, Action: audit.EventProductRemoved},
	} {
		require.NoError(t, publisher.Emit(context.Background(), event))
	}

	events, err := publisher.List(context.Background(), orderA)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventProductAdded, events[0].Action)
	assert.Equal(t, audit.EventProductRemoved, events[1].Action)
}

func TestWorkerDrainsInbox(t *testing.T) {
	store := memory.New()
	inbox := make(chan audit.Event, 4)
	worker := audit.NewWorker(store, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	orderID := id.OrderID(uuid.New())
	inbox <- audit.Event{ID: uuid.NewString(), OrderID: orderID, Action: audit.EventProductAdded}
	inbox <- audit.Event{ID: uuid.NewString(), OrderID: orderID, Action: audit.EventQuantityIncreased}

	require.Eventually(t, func() bool {
		return len(store.All()) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueFeedsWorker(t *testing.T) {
	store := memory.New()
	queue := audit.NewQueue(4)
	worker := audit.NewWorker(store, queue.Inbox())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	orderID := id.OrderID(uuid.New())
	require.NoError(t, queue.Emit(ctx, audit.Event{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Action:  audit.EventProductRemoved,
	}))

	require.Eventually(t, func() bool {
		return len(store.All()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.False(t, store.All()[0].Timestamp.IsZero(), "emit stamps the event")
}

func TestQueueEmitHonorsCancelledContext(t *testing.T) {
	queue := audit.NewQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := queue.Emit(ctx, audit.Event{ID: uuid.NewString()})
	assert.ErrorIs(t, err, context.Canceled)
}
