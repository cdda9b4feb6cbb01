package handler

import (
	"time"

	"subport/internal/subscription/models"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
)

type changeAddressRequest struct {
	ShippingAddressID string                `json:"shipping_address_id"`
	InvoiceAddressID  string                `json:"invoice_address_id"`
	ShippingValues    *models.AddressValues `json:"shipping_values"`
	InvoiceValues     *models.AddressValues `json:"invoice_values"`
}

func (r changeAddressRequest) toModel() (*models.ChangeAddressRequest, error) {
	shippingID, err := optionalPartnerID(r.ShippingAddressID, "shipping address")
	if err != nil {
		return nil, err
	}
	invoiceID, err := optionalPartnerID(r.InvoiceAddressID, "invoice address")
	if err != nil {
		return nil, err
	}
	return &models.ChangeAddressRequest{
		ShippingAddressID: shippingID,
		InvoiceAddressID:  invoiceID,
		ShippingValues:    r.ShippingValues,
		InvoiceValues:     r.InvoiceValues,
	}, nil
}

type pushNextDateRequest struct {
	NextDate string `json:"next_date"`
}

type addProductRequest struct {
	ProductID       string  `json:"product_id"`
	Quantity        float64 `json:"quantity"`
	SubmissionToken string  `json:"submission_token"`
}

func (r addProductRequest) toModel() (*models.AddProductRequest, error) {
	productID, err := id.ParseProductID(r.ProductID)
	if err != nil {
		return nil, err
	}
	return &models.AddProductRequest{
		ProductID:       productID,
		Quantity:        r.Quantity,
		SubmissionToken: r.SubmissionToken,
	}, nil
}

type removeProductRequest struct {
	Reason string `json:"reason"`
}

type changeIntervalRequest struct {
	PlanID string `json:"plan_id"`
}

func (r changeIntervalRequest) toModel() (*models.ChangeIntervalRequest, error) {
	planID, err := id.ParsePlanID(r.PlanID)
	if err != nil {
		return nil, err
	}
	return &models.ChangeIntervalRequest{PlanID: planID}, nil
}

type replaceProductRequest struct {
	OldLineID     string  `json:"old_line_id"`
	NewProductID  string  `json:"new_product_id"`
	Quantity      float64 `json:"quantity"`
	EffectiveDate string  `json:"effective_date"`
	Note          string  `json:"note"`
}

func (r replaceProductRequest) toModel() (*models.ReplaceProductRequest, error) {
	oldLineID, err := id.ParseLineID(r.OldLineID)
	if err != nil {
		return nil, err
	}
	newProductID, err := id.ParseProductID(r.NewProductID)
	if err != nil {
		return nil, err
	}
	req := &models.ReplaceProductRequest{
		OldLineID:    oldLineID,
		NewProductID: newProductID,
		Quantity:     r.Quantity,
		Note:         r.Note,
	}
	if r.EffectiveDate != "" {
		effective, err := time.Parse("2006-01-02", r.EffectiveDate)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "effective_date must be a YYYY-MM-DD date")
		}
		req.EffectiveDate = &effective
	}
	return req, nil
}

// lineWindowRequest carries the backend end/activate line payload. An empty
// date means "effective now".
type lineWindowRequest struct {
	Date string `json:"date"`
	Note string `json:"note"`
}

func (r lineWindowRequest) effectiveDate(now time.Time) (time.Time, error) {
	if r.Date == "" {
		return now, nil
	}
	parsed, err := time.Parse("2006-01-02", r.Date)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, "date must be a YYYY-MM-DD date")
	}
	return parsed, nil
}

type permissionsPayload struct {
	AllowAddressChange  bool `json:"allow_address_change"`
	AllowDatePush       bool `json:"allow_date_push"`
	AllowAddProduct     bool `json:"allow_add_product"`
	AllowRemoveProduct  bool `json:"allow_remove_product"`
	AllowPause          bool `json:"allow_pause"`
	AllowIntervalChange bool `json:"allow_interval_change"`
	AllowProductChange  bool `json:"allow_product_change"`
}

func (p permissionsPayload) toModel() models.PortalPermissions {
	return models.PortalPermissions{
		AllowAddressChange:  p.AllowAddressChange,
		AllowDatePush:       p.AllowDatePush,
		AllowAddProduct:     p.AllowAddProduct,
		AllowRemoveProduct:  p.AllowRemoveProduct,
		AllowPause:          p.AllowPause,
		AllowIntervalChange: p.AllowIntervalChange,
		AllowProductChange:  p.AllowProductChange,
	}
}

func toPermissionsPayload(p models.PortalPermissions) permissionsPayload {
	return permissionsPayload{
		AllowAddressChange:  p.AllowAddressChange,
		AllowDatePush:       p.AllowDatePush,
		AllowAddProduct:     p.AllowAddProduct,
		AllowRemoveProduct:  p.AllowRemoveProduct,
		AllowPause:          p.AllowPause,
		AllowIntervalChange: p.AllowIntervalChange,
		AllowProductChange:  p.AllowProductChange,
	}
}

func optionalPartnerID(raw, what string) (id.PartnerID, error) {
	if raw == "" {
		return id.PartnerID{}, nil
	}
	parsed, err := id.ParsePartnerID(raw)
	if err != nil {
		return id.PartnerID{}, dErrors.New(dErrors.CodeValidation, what+" id is not a valid UUID")
	}
	return parsed, nil
}
