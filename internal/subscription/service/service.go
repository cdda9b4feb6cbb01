// Package service orchestrates subscription order mutations. Every
// operation follows the same template: authorize, validate, resolve engine
// fields, apply atomically inside the store's Execute section, emit one
// audit event. Handlers stay thin and domain rules live in models/access.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"subport/internal/audit"
	"subport/internal/catalog"
	"subport/internal/directory"
	"subport/internal/subscription/access"
	"subport/internal/subscription/metrics"
	"subport/internal/subscription/models"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
	"subport/pkg/platform/sentinel"
	"subport/pkg/requestcontext"
)

// OrderStore is the order persistence contract. Execute holds an exclusive
// per-order section (mutex or SELECT FOR UPDATE) across validate and
// mutate; the context passed to mutate carries the store transaction so the
// audit outbox shares it.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error)
	Execute(ctx context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(context.Context, *models.Order) error) (*models.Order, error)
	DeleteLine(ctx context.Context, orderID id.OrderID, lineID id.LineID, actor id.UserID) (models.DeleteOutcome, error)
}

// AuditPublisher records one event per successful mutation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SubmissionGuard deduplicates portal form resubmissions. Claim reports
// whether this call was the first to present the token.
type SubmissionGuard interface {
	Claim(ctx context.Context, token string) (bool, error)
}

// Fulfillment cancels outstanding warehouse work for a stopped line.
// Best-effort; never blocks a mutation.
type Fulfillment interface {
	CancelLineWork(ctx context.Context, orderID id.OrderID, lineID id.LineID) error
}

// Service is the mutation engine for subscription orders.
type Service struct {
	orders      OrderStore
	products    catalog.Products
	plans       catalog.Plans
	directory   directory.Directory
	gate        *access.Gate
	logger      *slog.Logger
	audit       AuditPublisher
	metrics     *metrics.Metrics
	guard       SubmissionGuard
	fulfillment Fulfillment
	tracer      trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.audit = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSubmissionGuard(guard SubmissionGuard) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

func WithFulfillment(f Fulfillment) Option {
	return func(s *Service) {
		s.fulfillment = f
	}
}

// New constructs a Service.
func New(orders OrderStore, products catalog.Products, plans catalog.Plans, dir directory.Directory, opts ...Option) *Service {
	s := &Service{
		orders:    orders,
		products:  products,
		plans:     plans,
		directory: dir,
		gate:      access.NewGate(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("subport/subscription"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// loadAuthorized fetches the order and runs the access rule chain. Callers
// at the transport boundary translate Forbidden/NotSubscription to 404.
func (s *Service) loadAuthorized(ctx context.Context, caller id.Caller, orderID id.OrderID, requireSubscription bool) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load subscription")
	}
	if err := s.gate.Authorize(caller, order, requireSubscription); err != nil {
		return nil, err
	}
	return order, nil
}

// requirePermission enforces the per-order portal toggles. Privileged
// callers bypass them. Denial is a user error, not an access error, so it
// never masquerades as a missing order.
func requirePermission(caller id.Caller, allowed bool) error {
	if caller.Privileged {
		return nil
	}
	if !allowed {
		return dErrors.New(dErrors.CodeBusinessRule, "this action is not enabled for this subscription")
	}
	return nil
}

// begin starts a traced, timed mutation. The returned finish func records
// the outcome once, with the error that ends the operation.
func (s *Service) begin(ctx context.Context, operation string, orderID id.OrderID) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "subscription."+operation,
		trace.WithAttributes(attribute.String("order_id", orderID.String())),
	)
	return ctx, func(err error) {
		defer span.End()
		if s.metrics != nil {
			s.metrics.ObserveMutation(start)
			if err != nil {
				s.metrics.IncrementDenied(operation, string(dErrors.GetCode(err)))
			} else {
				s.metrics.IncrementMutation(operation)
			}
		}
		if err != nil {
			span.SetAttributes(attribute.String("error_code", string(dErrors.GetCode(err))))
		}
	}
}

// emitAudit appends the event through the publisher (sharing the store
// transaction when ctx carries one) and mirrors it to the audit log stream.
func (s *Service) emitAudit(ctx context.Context, caller id.Caller, event audit.Event) error {
	event.Timestamp = requestcontext.Now(ctx)
	event.ActorID = caller.UserID
	event.Source = caller.Source
	event.RequestID = requestcontext.RequestID(ctx)

	if s.audit != nil {
		if err := s.audit.Emit(ctx, event); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
		}
	}
	s.logger.InfoContext(ctx, "audit event",
		"log_type", "audit",
		"action", event.Action,
		"order_id", event.OrderID.String(),
		"line_id", event.LineID.String(),
		"actor_id", event.ActorID.String(),
		"source", event.Source,
		"request_id", event.RequestID,
	)
	return nil
}

// cancelLineWork is fire-and-forget toward the warehouse; the mutation has
// already committed when this runs.
func (s *Service) cancelLineWork(ctx context.Context, orderID id.OrderID, lineID id.LineID) {
	if s.fulfillment == nil {
		return
	}
	if err := s.fulfillment.CancelLineWork(ctx, orderID, lineID); err != nil {
		s.logger.WarnContext(ctx, "fulfillment cancellation failed",
			"order_id", orderID.String(),
			"line_id", lineID.String(),
			"error", err,
		)
	}
}
