package models

import (
	"strings"
	"time"

	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
)

// AddressValues are inline address fields for the change-address upsert.
// Empty fields are left untouched on update.
type AddressValues struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

// IsEmpty reports whether no field is supplied.
func (v AddressValues) IsEmpty() bool {
	return v.Name == "" && v.Street == "" && v.City == "" && v.Zip == "" &&
		v.Country == "" && v.Phone == ""
}

func (v *AddressValues) normalize() {
	v.Name = strings.TrimSpace(v.Name)
	v.Street = strings.TrimSpace(v.Street)
	v.City = strings.TrimSpace(v.City)
	v.Zip = strings.TrimSpace(v.Zip)
	v.Country = strings.TrimSpace(v.Country)
	v.Phone = strings.TrimSpace(v.Phone)
}

// ChangeAddressRequest selects existing child addresses of the caller's
// commercial partner, or supplies inline values that create or update one.
type ChangeAddressRequest struct {
	ShippingAddressID id.PartnerID
	InvoiceAddressID  id.PartnerID
	ShippingValues    *AddressValues
	InvoiceValues     *AddressValues
}

func (r *ChangeAddressRequest) Normalize() {
	if r.ShippingValues != nil {
		r.ShippingValues.normalize()
		if r.ShippingValues.IsEmpty() {
			r.ShippingValues = nil
		}
	}
	if r.InvoiceValues != nil {
		r.InvoiceValues.normalize()
		if r.InvoiceValues.IsEmpty() {
			r.InvoiceValues = nil
		}
	}
}

func (r *ChangeAddressRequest) Validate() error {
	if r.ShippingAddressID.IsNil() && r.InvoiceAddressID.IsNil() &&
		r.ShippingValues == nil && r.InvoiceValues == nil {
		return dErrors.New(dErrors.CodeValidation, "please fill at least one address field")
	}
	return nil
}

// PushNextDateRequest carries the raw date input; parsing depends on the
// resolved engine field kind (date vs datetime), so the service parses it.
type PushNextDateRequest struct {
	NextDate string
}

func (r *PushNextDateRequest) Normalize() {
	r.NextDate = strings.TrimSpace(r.NextDate)
}

func (r *PushNextDateRequest) Validate() error {
	if r.NextDate == "" {
		return dErrors.New(dErrors.CodeValidation, "please provide a date")
	}
	return nil
}

// AddProductRequest adds quantity of a catalog product to the order.
// SubmissionToken is an optional client idempotency token: AddProduct is
// not idempotent at the state level (re-invoking increments further), so
// resubmission-prone callers supply a token that is claimed once.
type AddProductRequest struct {
	ProductID       id.ProductID
	Quantity        float64
	SubmissionToken string
}

func (r *AddProductRequest) Normalize() {
	r.SubmissionToken = strings.TrimSpace(r.SubmissionToken)
}

func (r *AddProductRequest) Validate() error {
	if r.ProductID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "invalid product")
	}
	if r.Quantity <= 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity must be greater than 0")
	}
	return nil
}

// RemoveProductRequest soft-removes one line with an optional reason.
type RemoveProductRequest struct {
	LineID id.LineID
	Reason string
}

func (r *RemoveProductRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RemoveProductRequest) Validate() error {
	if r.LineID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "invalid line")
	}
	return nil
}

// ChangeIntervalRequest switches the order to another recurrence plan.
type ChangeIntervalRequest struct {
	PlanID id.PlanID
}

func (r *ChangeIntervalRequest) Validate() error {
	if r.PlanID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "please select an interval")
	}
	return nil
}

// ReplaceProductRequest ends the old line's billing window and creates a
// replacement line starting at the effective date. Quantity defaults to the
// old line's quantity when zero.
type ReplaceProductRequest struct {
	OldLineID     id.LineID
	NewProductID  id.ProductID
	Quantity      float64
	EffectiveDate *time.Time
	Note          string
}

func (r *ReplaceProductRequest) Normalize() {
	r.Note = strings.TrimSpace(r.Note)
}

func (r *ReplaceProductRequest) Validate() error {
	if r.OldLineID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "invalid line")
	}
	if r.NewProductID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "invalid product")
	}
	if r.Quantity < 0 {
		return dErrors.New(dErrors.CodeValidation, "quantity cannot be negative")
	}
	return nil
}
