// Package fulfillment notifies the warehouse side when a subscription line
// stops shipping. Cancellation is best-effort: the order mutation is the
// source of truth and never fails because the warehouse was unreachable.
package fulfillment

import (
	"context"
	"log/slog"

	id "subport/pkg/domain"
	"subport/pkg/platform/circuit"
)

// Client cancels outstanding warehouse work for a removed or replaced line.
type Client interface {
	CancelLineWork(ctx context.Context, orderID id.OrderID, lineID id.LineID) error
}

// Noop is the default client when no warehouse integration is configured.
type Noop struct{}

func (Noop) CancelLineWork(context.Context, id.OrderID, id.LineID) error { return nil }

// Guarded wraps a client with a circuit breaker. While the breaker is open,
// cancellations are skipped immediately instead of waiting on a downstream
// that is known to be failing.
type Guarded struct {
	inner   Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// Option configures a Guarded client.
type Option func(*Guarded)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guarded) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithBreaker replaces the default breaker.
func WithBreaker(breaker *circuit.Breaker) Option {
	return func(g *Guarded) {
		if breaker != nil {
			g.breaker = breaker
		}
	}
}

// NewGuarded wraps inner with breaker protection.
func NewGuarded(inner Client, opts ...Option) *Guarded {
	g := &Guarded{
		inner:   inner,
		breaker: circuit.New("fulfillment", circuit.WithFailureThreshold(5)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guarded) CancelLineWork(ctx context.Context, orderID id.OrderID, lineID id.LineID) error {
	if g.breaker.IsOpen() {
		// Probe anyway so successes can close the breaker again; a closed
		// warehouse pipe self-heals without operator action.
		if err := g.inner.CancelLineWork(ctx, orderID, lineID); err != nil {
			g.breaker.RecordFailure()
			return err
		}
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "fulfillment circuit closed",
				"breaker", g.breaker.Name(),
			)
		}
		return nil
	}

	if err := g.inner.CancelLineWork(ctx, orderID, lineID); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "fulfillment circuit opened",
				"breaker", g.breaker.Name(),
				"order_id", orderID.String(),
			)
		}
		return err
	}
	g.breaker.RecordSuccess()
	return nil
}
