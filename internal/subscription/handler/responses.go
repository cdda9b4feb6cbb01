package handler

import (
	"time"

	"subport/internal/catalog"
	"subport/internal/directory"
	"subport/internal/subscription/models"
	"subport/internal/subscription/service"
)

type orderResponse struct {
	ID                 string             `json:"id"`
	State              string             `json:"state"`
	SubscriptionStatus string             `json:"subscription_status,omitempty"`
	StageID            string             `json:"stage_id,omitempty"`
	PlanID             string             `json:"plan_id,omitempty"`
	ShippingAddressID  string             `json:"shipping_address_id,omitempty"`
	InvoiceAddressID   string             `json:"invoice_address_id,omitempty"`
	NextDates          map[string]string  `json:"next_dates,omitempty"`
	Permissions        permissionsPayload `json:"permissions"`
	Lines              []lineResponse     `json:"lines"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type lineResponse struct {
	ID               string     `json:"id"`
	ProductID        string     `json:"product_id,omitempty"`
	Display          string     `json:"display,omitempty"`
	Name             string     `json:"name"`
	Quantity         float64    `json:"quantity"`
	Delivered        float64    `json:"delivered,omitempty"`
	Removed          bool       `json:"removed,omitempty"`
	RemovedAt        *time.Time `json:"removed_at,omitempty"`
	RemoveReason     string     `json:"remove_reason,omitempty"`
	ActiveForBilling bool       `json:"active_for_billing"`
	StartDate        *string    `json:"start_date,omitempty"`
	EndDate          *string    `json:"end_date,omitempty"`
}

type productResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type planResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RuleType string `json:"rule_type,omitempty"`
	Interval int    `json:"interval,omitempty"`
}

type addressResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type,omitempty"`
	Name    string `json:"name"`
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type manageViewResponse struct {
	Order         orderResponse      `json:"order"`
	Lines         []lineResponse     `json:"lines"`
	NextDateField string             `json:"next_date_field,omitempty"`
	NextDate      *string            `json:"next_date,omitempty"`
	Addresses     []addressResponse  `json:"addresses"`
	Addable       []productResponse  `json:"addable_products"`
	Changeable    []planResponse     `json:"changeable_plans,omitempty"`
	Permissions   permissionsPayload `json:"permissions"`
	CanPause      bool               `json:"can_pause"`
	CanChangePlan bool               `json:"can_change_plan"`
}

type deleteLineResponse struct {
	Intercepted bool `json:"intercepted"`
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:                 order.ID.String(),
		State:              string(order.State),
		SubscriptionStatus: order.SubscriptionStatus,
		StageID:            order.StageID,
		Permissions:        toPermissionsPayload(order.Permissions),
		Lines:              toLinesResponse(order.Lines),
		UpdatedAt:          order.UpdatedAt,
	}
	if order.PlanID != nil && !order.PlanID.IsNil() {
		resp.PlanID = order.PlanID.String()
	}
	if !order.ShippingAddressID.IsNil() {
		resp.ShippingAddressID = order.ShippingAddressID.String()
	}
	if !order.InvoiceAddressID.IsNil() {
		resp.InvoiceAddressID = order.InvoiceAddressID.String()
	}
	if len(order.NextDates) > 0 {
		resp.NextDates = make(map[string]string, len(order.NextDates))
		for field, value := range order.NextDates {
			resp.NextDates[field] = value.Format("2006-01-02")
		}
	}
	return resp
}

func toLinesResponse(lines []*models.Line) []lineResponse {
	resp := make([]lineResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, toLineResponse(line))
	}
	return resp
}

func toLineResponse(line *models.Line) lineResponse {
	resp := lineResponse{
		ID:               line.ID.String(),
		Display:          string(line.Display),
		Name:             line.Name,
		Quantity:         line.Quantity,
		Delivered:        line.Delivered,
		Removed:          line.Removed,
		RemovedAt:        line.RemovedAt,
		RemoveReason:     line.RemoveReason,
		ActiveForBilling: line.ActiveForBilling,
	}
	if line.ProductID != nil && !line.ProductID.IsNil() {
		resp.ProductID = line.ProductID.String()
	}
	if line.StartDate != nil {
		start := line.StartDate.Format("2006-01-02")
		resp.StartDate = &start
	}
	if line.EndDate != nil {
		end := line.EndDate.Format("2006-01-02")
		resp.EndDate = &end
	}
	return resp
}

func toProductsResponse(products []catalog.Product) []productResponse {
	resp := make([]productResponse, 0, len(products))
	for _, product := range products {
		resp = append(resp, productResponse{ID: product.ID.String(), Name: product.Name})
	}
	return resp
}

func toPlansResponse(plans []catalog.Plan) []planResponse {
	resp := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		resp = append(resp, planResponse{
			ID:       plan.ID.String(),
			Name:     plan.Name,
			RuleType: plan.RuleType,
			Interval: plan.Interval,
		})
	}
	return resp
}

func toAddressesResponse(addresses []directory.Partner) []addressResponse {
	resp := make([]addressResponse, 0, len(addresses))
	for _, address := range addresses {
		resp = append(resp, addressResponse{
			ID:      address.ID.String(),
			Type:    string(address.Type),
			Name:    address.Name,
			Street:  address.Street,
			City:    address.City,
			Zip:     address.Zip,
			Country: address.Country,
			Phone:   address.Phone,
		})
	}
	return resp
}

func toManageViewResponse(view *service.ManageView) manageViewResponse {
	resp := manageViewResponse{
		Order:         toOrderResponse(view.Order),
		Lines:         toLinesResponse(view.Lines),
		NextDateField: view.NextDateField,
		Addresses:     toAddressesResponse(view.Addresses),
		Addable:       toProductsResponse(view.Addable),
		Changeable:    toPlansResponse(view.Changeable),
		Permissions:   toPermissionsPayload(view.Permissions),
		CanPause:      view.CanPause,
		CanChangePlan: view.CanChangePlan,
	}
	if view.NextDate != nil {
		next := view.NextDate.Format("2006-01-02")
		resp.NextDate = &next
	}
	return resp
}
