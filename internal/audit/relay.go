package audit

import (
	"context"
	"log/slog"
	"time"
)

// OutboxSource is the outbox side of the relay: fetch what has not been
// shipped yet, mark what has.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, eventIDs []string) error
}

// Sink receives relayed events. The Kafka publisher implements it.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// Relay drains the transactional outbox into a sink. Events are shipped
// oldest first and only marked published after the sink accepts them, so a
// crash between the two replays the event: downstream consumers must treat
// the event ID as the dedup key.
type Relay struct {
	source    OutboxSource
	sink      Sink
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayOption func(*Relay)

func WithRelayInterval(interval time.Duration) RelayOption {
	return func(r *Relay) {
		r.interval = interval
	}
}

func WithRelayBatchSize(size int) RelayOption {
	return func(r *Relay) {
		r.batchSize = size
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(source OutboxSource, sink Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		source:    source,
		sink:      sink,
		logger:    slog.Default(),
		interval:  time.Second,
		batchSize: 100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	for {
		events, err := r.source.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		shipped := make([]string, 0, len(events))
		for _, event := range events {
			if err := r.sink.Emit(ctx, event); err != nil {
				// Mark what went through; the rest is retried next tick.
				if len(shipped) > 0 {
					if markErr := r.source.MarkPublished(ctx, shipped); markErr != nil {
						return markErr
					}
				}
				return err
			}
			shipped = append(shipped, event.ID)
		}
		if err := r.source.MarkPublished(ctx, shipped); err != nil {
			return err
		}
		if len(events) < r.batchSize {
			return nil
		}
	}
}
