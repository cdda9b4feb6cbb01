package models

import (
	"time"

	"subport/internal/subscription/schema"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
)

// OrderState is the commercial state of the order.
type OrderState string

const (
	StateDraft     OrderState = "draft"
	StateConfirmed OrderState = "confirmed"
	StateDone      OrderState = "done"
	StateCancelled OrderState = "cancelled"
)

// closedStatuses are engine subscription-status values that block all
// portal mutations regardless of order state.
var closedStatuses = map[string]bool{
	"closed":  true,
	"cancel":  true,
	"churned": true,
}

// Order is the aggregate root for a recurring subscription order.
//
// Invariants:
//   - every mutating operation requires State confirmed or done
//   - a closed/cancelled SubscriptionStatus blocks all mutations
//   - a removed line always has quantity 0
//
// The underlying subscription engine is heterogeneous; Engine describes
// which fields and capabilities this order's engine exposes, and NextDates
// holds each engine-named next-date field's current value.
type Order struct {
	ID              id.OrderID
	CustomerID      id.PartnerID
	CommercialGroup id.PartnerID
	CompanyID       id.CompanyID
	State           OrderState

	// SubscriptionStatus is the engine-specific status value, empty when
	// the engine has no status concept.
	SubscriptionStatus string
	// StageID is the current lifecycle stage, stage-based engines only.
	StageID string
	// PlanID references the recurrence plan, nil when absent.
	PlanID *id.PlanID
	// SubscriptionFlag is the explicit is-subscription marker some engines
	// carry instead of a status or plan.
	SubscriptionFlag bool

	ShippingAddressID id.PartnerID
	InvoiceAddressID  id.PartnerID

	// NextDates maps engine next-date field names to their values. Reads
	// and writes go through the resolved field name (see schema package).
	NextDates map[string]time.Time

	Engine      schema.Descriptor
	Permissions PortalPermissions
	Lines       []*Line

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsSubscription classifies the order as a subscription. Best-effort across
// engine shapes: a non-empty status, a plan reference, or the explicit flag
// each suffice. Keep this an extensible predicate, not a field lookup.
func (o *Order) IsSubscription() bool {
	if o.SubscriptionStatus != "" {
		return true
	}
	if o.PlanID != nil && !o.PlanID.IsNil() {
		return true
	}
	return o.SubscriptionFlag
}

// IsMutable reports whether the commercial state allows mutations.
func (o *Order) IsMutable() bool {
	return o.State == StateConfirmed || o.State == StateDone
}

// IsClosed reports whether the engine status marks the subscription closed.
func (o *Order) IsClosed() bool {
	return closedStatuses[o.SubscriptionStatus]
}

// Line returns the line with the given ID, or nil.
func (o *Order) Line(lineID id.LineID) *Line {
	for _, line := range o.Lines {
		if line.ID == lineID {
			return line
		}
	}
	return nil
}

// ActiveLineForProduct returns the first non-structural, non-removed line
// for the product, or nil. AddProduct increments this line instead of
// creating a duplicate; removed lines are never reused.
func (o *Order) ActiveLineForProduct(productID id.ProductID) *Line {
	for _, line := range o.Lines {
		if line.IsStructural() || line.Removed {
			continue
		}
		if line.ProductID != nil && *line.ProductID == productID {
			return line
		}
	}
	return nil
}

// NextDate returns the value of the named engine next-date field.
func (o *Order) NextDate(field string) (time.Time, bool) {
	value, ok := o.NextDates[field]
	return value, ok
}

// SetNextDate writes the named engine next-date field.
func (o *Order) SetNextDate(field string, value time.Time) {
	if o.NextDates == nil {
		o.NextDates = make(map[string]time.Time, 1)
	}
	o.NextDates[field] = value
}

// ApplyStateWrite applies a resolved pause/resume write to the aggregate.
func (o *Order) ApplyStateWrite(write schema.StateWrite, now time.Time) {
	switch write.Target {
	case schema.WriteStage:
		o.StageID = write.Value
	default:
		o.SubscriptionStatus = write.Value
	}
	o.UpdatedAt = now
}

// Clone returns a deep copy. The memory store hands out clones so callers
// never mutate shared state outside an Execute section.
func (o *Order) Clone() *Order {
	clone := *o
	clone.Lines = make([]*Line, len(o.Lines))
	for i, line := range o.Lines {
		lineCopy := *line
		clone.Lines[i] = &lineCopy
	}
	if o.NextDates != nil {
		clone.NextDates = make(map[string]time.Time, len(o.NextDates))
		for k, v := range o.NextDates {
			clone.NextDates[k] = v
		}
	}
	if o.PlanID != nil {
		planID := *o.PlanID
		clone.PlanID = &planID
	}
	return &clone
}

// NewOrder constructs a confirmed subscription order.
func NewOrder(orderID id.OrderID, customerID, commercialGroup id.PartnerID, now time.Time) (*Order, error) {
	if orderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "order id is required")
	}
	if customerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "order customer is required")
	}
	if commercialGroup.IsNil() {
		commercialGroup = customerID
	}
	return &Order{
		ID:              orderID,
		CustomerID:      customerID,
		CommercialGroup: commercialGroup,
		State:           StateConfirmed,
		Permissions:     DefaultPermissions(),
		NextDates:       make(map[string]time.Time),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
