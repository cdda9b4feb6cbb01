// Package domain defines typed identifiers shared across services.
//
// Each ID is a distinct named type over uuid.UUID so the compiler rejects
// cross-type assignment (an OrderID can never be passed where a LineID is
// expected). Parse helpers enforce the invariant that IDs are valid,
// non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "subport/pkg/domain-errors"
)

type (
	// OrderID identifies a subscription order aggregate.
	OrderID uuid.UUID
	// LineID identifies a single line within an order.
	LineID uuid.UUID
	// UserID identifies a calling user (portal customer or internal operator).
	UserID uuid.UUID
	// PartnerID identifies a contact/address record. Commercial grouping is
	// expressed as the PartnerID of the commercial parent.
	PartnerID uuid.UUID
	// ProductID identifies a catalog product.
	ProductID uuid.UUID
	// PlanID identifies a recurrence plan.
	PlanID uuid.UUID
	// CompanyID identifies the selling company an order belongs to.
	CompanyID uuid.UUID
)

func (id OrderID) String() string   { return uuid.UUID(id).String() }
func (id LineID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id PartnerID) String() string { return uuid.UUID(id).String() }
func (id ProductID) String() string { return uuid.UUID(id).String() }
func (id PlanID) String() string    { return uuid.UUID(id).String() }
func (id CompanyID) String() string { return uuid.UUID(id).String() }

func (id OrderID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id LineID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id PartnerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProductID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PlanID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func parseUUID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, what+" id cannot be the nil UUID")
	}
	return parsed, nil
}

func ParseOrderID(raw string) (OrderID, error) {
	parsed, err := parseUUID(raw, "order")
	return OrderID(parsed), err
}

func ParseLineID(raw string) (LineID, error) {
	parsed, err := parseUUID(raw, "line")
	return LineID(parsed), err
}

func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	return UserID(parsed), err
}

func ParsePartnerID(raw string) (PartnerID, error) {
	parsed, err := parseUUID(raw, "partner")
	return PartnerID(parsed), err
}

func ParseProductID(raw string) (ProductID, error) {
	parsed, err := parseUUID(raw, "product")
	return ProductID(parsed), err
}

func ParsePlanID(raw string) (PlanID, error) {
	parsed, err := parseUUID(raw, "plan")
	return PlanID(parsed), err
}
