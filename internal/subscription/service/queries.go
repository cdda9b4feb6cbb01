package service

import (
	"context"
	"time"

	"subport/internal/catalog"
	"subport/internal/directory"
	"subport/internal/subscription/billing"
	"subport/internal/subscription/models"
	"subport/internal/subscription/schema"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
	"subport/pkg/requestcontext"
)

// ManageView is the portal manage-page read model: everything the page
// needs in one authorized load.
type ManageView struct {
	Order         *models.Order
	Lines         []*models.Line
	NextDateField string
	NextDate      *time.Time
	Addresses     []directory.Partner
	Addable       []catalog.Product
	Changeable    []catalog.Plan
	Permissions   models.PortalPermissions
	CanPause      bool
	CanChangePlan bool
}

// GetManageView assembles the manage page for one order. The read path runs
// the same access chain as mutations, so a caller who cannot mutate an
// order cannot view it either.
func (s *Service) GetManageView(ctx context.Context, caller id.Caller, orderID id.OrderID) (*ManageView, error) {
	order, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	view := &ManageView{
		Order:       order,
		Lines:       billing.ReportLines(order, now),
		Permissions: order.Permissions,
	}

	if field, _, resolveErr := schema.ResolveNextDateField(order.Engine); resolveErr == nil {
		view.NextDateField = field
		if value, ok := order.NextDate(field); ok {
			view.NextDate = &value
		}
	}
	if _, pauseErr := schema.ResolvePausedState(order.Engine, true); pauseErr == nil {
		view.CanPause = true
	}
	view.CanChangePlan = schema.ResolvePlanCapability(order.Engine) == nil

	addresses, err := s.directory.ChildrenOf(ctx, order.CommercialGroup)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load addresses")
	}
	view.Addresses = addresses

	addable, err := s.products.Addable(ctx, order.CompanyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load addable products")
	}
	view.Addable = addable

	if view.CanChangePlan {
		changeable, plansErr := s.plans.Changeable(ctx, order.CompanyID)
		if plansErr != nil {
			return nil, dErrors.Wrap(plansErr, dErrors.CodeInternal, "failed to load plans")
		}
		view.Changeable = changeable
	}
	return view, nil
}

// InvoiceableLines is the invoicing hook: the lines eligible for billing at
// asOf. Deterministic and order-preserving.
func (s *Service) InvoiceableLines(ctx context.Context, caller id.Caller, orderID id.OrderID, asOf time.Time) ([]*models.Line, error) {
	order, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	return billing.Invoiceable(order, asOf), nil
}

// ReportLines feeds order rendering and printed documents. Shares the
// billing predicate with InvoiceableLines so the surfaces cannot disagree.
func (s *Service) ReportLines(ctx context.Context, caller id.Caller, orderID id.OrderID, asOf time.Time) ([]*models.Line, error) {
	order, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	return billing.ReportLines(order, asOf), nil
}

// AddableProducts lists the catalog a portal caller may add to the order.
func (s *Service) AddableProducts(ctx context.Context, caller id.Caller, orderID id.OrderID) ([]catalog.Product, error) {
	order, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	products, err := s.products.Addable(ctx, order.CompanyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load addable products")
	}
	return products, nil
}

// ChangeablePlans lists the recurrence plans the order may switch to.
func (s *Service) ChangeablePlans(ctx context.Context, caller id.Caller, orderID id.OrderID) ([]catalog.Plan, error) {
	order, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err := schema.ResolvePlanCapability(order.Engine); err != nil {
		return nil, err
	}
	plans, err := s.plans.Changeable(ctx, order.CompanyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load plans")
	}
	return plans, nil
}
