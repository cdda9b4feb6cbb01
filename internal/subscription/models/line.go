package models

import (
	"time"

	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
)

// DisplayType marks structural lines that carry no product. Structural
// lines are never removable and pass through all billing filters untouched.
type DisplayType string

const (
	DisplayNone    DisplayType = ""
	DisplaySection DisplayType = "section"
	DisplayNote    DisplayType = "note"
)

// Line is one item within a subscription order.
//
// Lifecycle: Active (quantity > 0, not removed) transitions once to Removed
// (quantity forced to 0, metadata stamped) and never back; re-adding the
// same product creates a fresh line so history stays intact. Engines that
// track billing windows additionally use StartDate/EndDate and
// ActiveForBilling to open and close eligibility without zeroing quantity.
type Line struct {
	ID        id.LineID
	OrderID   id.OrderID
	ProductID *id.ProductID
	Display   DisplayType
	Name      string

	Quantity  float64
	Delivered float64

	Removed      bool
	RemovedAt    *time.Time
	RemovedBy    id.UserID
	RemoveReason string

	ActiveForBilling bool
	StartDate        *time.Time
	EndDate          *time.Time

	ChangeSource id.ChangeSource
	ChangeNote   string
	ChangedBy    id.UserID
	ChangedAt    time.Time

	CreatedAt time.Time
}

// IsStructural reports whether the line is a section or note marker.
func (l *Line) IsStructural() bool {
	return l.Display != DisplayNone
}

// IsRemovedForBilling treats any non-structural zero-quantity line as
// removed even when the flag was never set. Defensive double condition so
// inconsistent engine data never leaks into invoicing.
func (l *Line) IsRemovedForBilling() bool {
	if l.IsStructural() {
		return false
	}
	return l.Removed || l.Quantity <= 0
}

// BillableAt is the single eligibility predicate: structural lines always
// pass; product lines require not-removed, positive quantity, an open
// billing window at asOf, and the active flag.
func (l *Line) BillableAt(asOf time.Time) bool {
	if l.IsStructural() {
		return true
	}
	if l.IsRemovedForBilling() {
		return false
	}
	if l.StartDate != nil && l.StartDate.After(asOf) {
		return false
	}
	if l.EndDate != nil && !asOf.Before(*l.EndDate) {
		return false
	}
	return l.ActiveForBilling
}

// CanSoftRemove checks whether the line may be soft-removed. A line that is
// already removed with quantity 0 is a valid no-op, distinguished by
// IsRemovedNoop. Structural lines and lines with delivered quantity are
// rejected; mandatory-product checks happen at the service layer where the
// catalog is available.
func (l *Line) CanSoftRemove() error {
	if l.IsStructural() {
		return dErrors.New(dErrors.CodeBusinessRule, "section and note lines cannot be removed")
	}
	if l.Delivered > 0 {
		return dErrors.New(dErrors.CodeBusinessRule, "a line with delivered quantity cannot be removed")
	}
	return nil
}

// IsRemovedNoop reports whether a soft remove would change nothing.
func (l *Line) IsRemovedNoop() bool {
	return l.Removed && l.Quantity == 0
}

// ApplySoftRemove zeroes the quantity and stamps removal metadata. Call
// CanSoftRemove first. Idempotent callers should skip when IsRemovedNoop.
func (l *Line) ApplySoftRemove(actor id.UserID, reason string, source id.ChangeSource, now time.Time) {
	l.Quantity = 0
	l.Removed = true
	removedAt := now
	l.RemovedAt = &removedAt
	l.RemovedBy = actor
	l.RemoveReason = reason
	l.ChangeSource = source
	l.ChangedBy = actor
	l.ChangedAt = now
}

// CanEnd checks whether the billing window may be closed.
func (l *Line) CanEnd() error {
	if l.IsStructural() {
		return dErrors.New(dErrors.CodeBusinessRule, "section and note lines have no billing window")
	}
	return nil
}

// ApplyEnd closes the billing-eligibility window without zeroing quantity.
// Used by the product-replacement workflow so history stays continuous.
func (l *Line) ApplyEnd(endDate time.Time, note string, actor id.UserID, source id.ChangeSource, now time.Time) {
	l.ActiveForBilling = false
	end := dateOnly(endDate)
	l.EndDate = &end
	if note != "" {
		l.ChangeNote = note
	}
	l.ChangeSource = source
	l.ChangedBy = actor
	l.ChangedAt = now
}

// ApplyActivate opens a fresh billing window starting at startDate.
func (l *Line) ApplyActivate(startDate time.Time, note string, actor id.UserID, source id.ChangeSource, now time.Time) {
	l.ActiveForBilling = true
	start := dateOnly(startDate)
	l.StartDate = &start
	l.EndDate = nil
	if note != "" {
		l.ChangeNote = note
	}
	l.ChangeSource = source
	l.ChangedBy = actor
	l.ChangedAt = now
}

// CanHardDelete reports whether a physical delete is permitted: only
// structural lines, or lines on unconfirmed orders. Everything else must go
// through the soft-remove path (delete-intercept policy, enforced at the
// store's delete entry point).
func (l *Line) CanHardDelete(orderState OrderState) bool {
	if l.IsStructural() {
		return true
	}
	return orderState == StateDraft
}

// DeleteOutcome reports how a line delete request was resolved by the store.
type DeleteOutcome int

const (
	// DeleteHard removed the line record entirely.
	DeleteHard DeleteOutcome = iota
	// DeleteIntercepted converted the delete into a soft remove.
	DeleteIntercepted
	// DeleteNoop found the line already soft-removed and changed nothing.
	DeleteNoop
)

// Intercepted reports whether the line survives as a soft-removed record.
func (o DeleteOutcome) Intercepted() bool {
	return o == DeleteIntercepted || o == DeleteNoop
}

// NewLine constructs an active product line.
func NewLine(lineID id.LineID, orderID id.OrderID, productID id.ProductID, name string, qty float64, source id.ChangeSource, actor id.UserID, now time.Time) (*Line, error) {
	if qty <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "line quantity must be greater than 0")
	}
	if productID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "line product is required")
	}
	pid := productID
	return &Line{
		ID:               lineID,
		OrderID:          orderID,
		ProductID:        &pid,
		Name:             name,
		Quantity:         qty,
		ActiveForBilling: true,
		ChangeSource:     source,
		ChangedBy:        actor,
		ChangedAt:        now,
		CreatedAt:        now,
	}, nil
}

// NewStructuralLine constructs a section or note marker line.
func NewStructuralLine(lineID id.LineID, orderID id.OrderID, display DisplayType, name string, now time.Time) (*Line, error) {
	if display == DisplayNone {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "structural lines require a display type")
	}
	return &Line{
		ID:        lineID,
		OrderID:   orderID,
		Display:   display,
		Name:      name,
		CreatedAt: now,
		ChangedAt: now,
	}, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
