package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"subport/internal/audit"
	"subport/internal/catalog"
	"subport/internal/directory"
	"subport/internal/subscription/models"
	"subport/internal/subscription/schema"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
	"subport/pkg/platform/sentinel"
	"subport/pkg/requestcontext"
)

// ChangeAddress points the order at different delivery and/or invoicing
// addresses. Existing addresses must belong to the caller's commercial
// group; inline values create or update a child contact under it.
func (s *Service) ChangeAddress(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.ChangeAddressRequest) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "change_address", orderID)
	defer func() { finish(err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowAddressChange); err != nil {
		return nil, err
	}

	// Address resolution runs inside the exclusive section: existing IDs
	// are validated for both sides before any directory write, so a
	// rejected request never strands a freshly created contact.
	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			shippingID, resolveErr := s.lookupAddress(txCtx, o, req.ShippingAddressID)
			if resolveErr != nil {
				return resolveErr
			}
			invoiceID, resolveErr := s.lookupAddress(txCtx, o, req.InvoiceAddressID)
			if resolveErr != nil {
				return resolveErr
			}
			if shippingID.IsNil() && req.ShippingValues != nil {
				shippingID, resolveErr = s.upsertAddress(txCtx, o, o.ShippingAddressID, req.ShippingValues, directory.AddressDelivery)
				if resolveErr != nil {
					return resolveErr
				}
			}
			if invoiceID.IsNil() && req.InvoiceValues != nil {
				invoiceID, resolveErr = s.upsertAddress(txCtx, o, o.InvoiceAddressID, req.InvoiceValues, directory.AddressInvoice)
				if resolveErr != nil {
					return resolveErr
				}
			}
			if !shippingID.IsNil() {
				o.ShippingAddressID = shippingID
			}
			if !invoiceID.IsNil() {
				o.InvoiceAddressID = invoiceID
			}
			o.UpdatedAt = requestcontext.Now(txCtx)
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				Action:  audit.EventAddressChanged,
			})
		},
	)
	return order, err
}

// lookupAddress validates an existing address identifier, or returns zero
// when none was requested. Address identifiers outside the order's
// commercial group are indistinguishable from invalid input.
func (s *Service) lookupAddress(ctx context.Context, order *models.Order, requested id.PartnerID) (id.PartnerID, error) {
	if requested.IsNil() {
		return id.PartnerID{}, nil
	}
	partner, err := s.directory.FindByID(ctx, requested)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.PartnerID{}, dErrors.New(dErrors.CodeValidation, "invalid address")
		}
		return id.PartnerID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve address")
	}
	if partner.CommercialGroup != order.CommercialGroup {
		return id.PartnerID{}, dErrors.New(dErrors.CodeValidation, "invalid address")
	}
	return partner.ID, nil
}

func (s *Service) upsertAddress(ctx context.Context, order *models.Order, current id.PartnerID, values *models.AddressValues, addrType directory.AddressType) (id.PartnerID, error) {
	upserted, err := s.directory.UpsertChild(ctx, order.CommercialGroup, current, addrType, *values)
	if err != nil {
		return id.PartnerID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save address")
	}
	return upserted, nil
}

// PushNextDate moves the engine's next billing/delivery date forward. The
// engine field is resolved by priority; date-only fields take YYYY-MM-DD
// input, datetime fields also accept a time component. Dates before today
// are rejected; today is allowed.
func (s *Service) PushNextDate(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.PushNextDateRequest) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "push_next_date", orderID)
	defer func() { finish(err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowDatePush); err != nil {
		return nil, err
	}

	field, kind, err := schema.ResolveNextDateField(current.Engine)
	if err != nil {
		return nil, err
	}
	value, err := parseNextDate(req.NextDate, kind)
	if err != nil {
		return nil, err
	}

	// Date-only fields accept any moment of today; timestamp fields must
	// not point before the current instant.
	now := requestcontext.Now(ctx)
	threshold := startOfDay(now)
	if kind == schema.FieldDateTime {
		threshold = now
	}
	if value.Before(threshold) {
		return nil, dErrors.New(dErrors.CodeValidation, "the date must be today or later")
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			o.SetNextDate(field, value)
			o.UpdatedAt = requestcontext.Now(txCtx)
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				Action:  audit.EventNextDatePushed,
				Reason:  req.NextDate,
			})
		},
	)
	return order, err
}

func parseNextDate(raw string, kind schema.FieldKind) (time.Time, error) {
	if kind == schema.FieldDate {
		value, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
		if err != nil {
			return time.Time{}, dErrors.New(dErrors.CodeValidation, "invalid date format, expected YYYY-MM-DD")
		}
		return value, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if value, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return value, nil
		}
	}
	return time.Time{}, dErrors.New(dErrors.CodeValidation, "invalid date format")
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddProduct adds quantity of a catalog product. When an active line for
// the same product already exists its quantity is incremented in place;
// removed lines are never reused. Not idempotent, so resubmission-prone
// callers supply a submission token that is honored once.
func (s *Service) AddProduct(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.AddProductRequest) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "add_product", orderID)
	defer func() { finish(err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return nil, err
	}

	if req.SubmissionToken != "" && s.guard != nil {
		first, claimErr := s.guard.Claim(ctx, req.SubmissionToken)
		if claimErr != nil {
			err = dErrors.Wrap(claimErr, dErrors.CodeInternal, "failed to check submission token")
			return nil, err
		}
		if !first {
			if s.metrics != nil {
				s.metrics.IncrementResubmissionDrop()
			}
			s.logger.InfoContext(ctx, "duplicate submission dropped",
				"order_id", orderID.String(),
				"product_id", req.ProductID.String(),
			)
			return s.loadAuthorized(ctx, caller, orderID, true)
		}
	}

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowAddProduct); err != nil {
		return nil, err
	}

	product, err := s.addableProduct(ctx, current, req.ProductID)
	if err != nil {
		return nil, err
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			now := requestcontext.Now(txCtx)
			o.UpdatedAt = now

			if existing := o.ActiveLineForProduct(product.ID); existing != nil {
				existing.Quantity += req.Quantity
				existing.ChangedBy = caller.UserID
				existing.ChangeSource = caller.Source
				existing.ChangedAt = now
				return s.emitAudit(txCtx, caller, audit.Event{
					ID:      uuid.NewString(),
					OrderID: orderID,
					LineID:  existing.ID,
					Action:  audit.EventQuantityIncreased,
				})
			}

			line, lineErr := models.NewLine(id.LineID(uuid.New()), orderID, product.ID, product.Name, req.Quantity, caller.Source, caller.UserID, now)
			if lineErr != nil {
				return lineErr
			}
			o.Lines = append(o.Lines, line)
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				LineID:  line.ID,
				Action:  audit.EventProductAdded,
			})
		},
	)
	return order, err
}

// addableProduct loads the product and applies the addable rules: sellable,
// subscription-eligible, company-compatible.
func (s *Service) addableProduct(ctx context.Context, order *models.Order, productID id.ProductID) (*catalog.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid product")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load product")
	}
	if !product.Sellable || !product.SubscriptionOK {
		return nil, dErrors.New(dErrors.CodeBusinessRule, "this product cannot be added to a subscription")
	}
	if product.CompanyID != nil && *product.CompanyID != order.CompanyID {
		return nil, dErrors.New(dErrors.CodeBusinessRule, "this product is not available for this subscription")
	}
	return product, nil
}

// RemoveProduct soft-removes a line: quantity zeroed, removal metadata
// stamped, the row kept for history. Removing an already-removed line is a
// no-op that emits no audit event. Structural lines, delivered lines and
// mandatory delivery products are rejected.
func (s *Service) RemoveProduct(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.RemoveProductRequest) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "remove_product", orderID)
	defer func() { finish(err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowRemoveProduct); err != nil {
		return nil, err
	}

	target := current.Line(req.LineID)
	if target == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "line not found")
	}
	if target.ProductID != nil {
		product, findErr := s.products.FindByID(ctx, *target.ProductID)
		if findErr != nil && !errors.Is(findErr, sentinel.ErrNotFound) {
			err = dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load product")
			return nil, err
		}
		if product != nil && product.MandatoryDelivery {
			return nil, dErrors.New(dErrors.CodeBusinessRule, "delivery products cannot be removed from a subscription")
		}
	}

	noop := false
	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			line := o.Line(req.LineID)
			if line == nil {
				return dErrors.New(dErrors.CodeNotFound, "line not found")
			}
			if line.IsRemovedNoop() {
				noop = true
				return nil
			}
			if removeErr := line.CanSoftRemove(); removeErr != nil {
				return removeErr
			}
			now := requestcontext.Now(txCtx)
			line.ApplySoftRemove(caller.UserID, req.Reason, caller.Source, now)
			o.UpdatedAt = now
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				LineID:  line.ID,
				Action:  audit.EventProductRemoved,
				Reason:  req.Reason,
			})
		},
	)
	if err != nil {
		return nil, err
	}
	if !noop {
		s.cancelLineWork(ctx, orderID, req.LineID)
	}
	return order, nil
}

// Pause moves the subscription into its paused state using the first engine
// capability that applies: transition action, stage relabel, or status
// selection.
func (s *Service) Pause(ctx context.Context, caller id.Caller, orderID id.OrderID) (*models.Order, error) {
	return s.writePausedState(ctx, caller, orderID, true)
}

// Resume moves the subscription back into progress.
func (s *Service) Resume(ctx context.Context, caller id.Caller, orderID id.OrderID) (*models.Order, error) {
	return s.writePausedState(ctx, caller, orderID, false)
}

func (s *Service) writePausedState(ctx context.Context, caller id.Caller, orderID id.OrderID, paused bool) (order *models.Order, err error) {
	operation := "pause"
	action := audit.EventSubscriptionPaused
	if !paused {
		operation = "resume"
		action = audit.EventSubscriptionResumed
	}
	ctx, finish := s.begin(ctx, operation, orderID)
	defer func() { finish(err) }()

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowPause); err != nil {
		return nil, err
	}

	write, err := schema.ResolvePausedState(current.Engine, paused)
	if err != nil {
		return nil, err
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			o.ApplyStateWrite(write, requestcontext.Now(txCtx))
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				Action:  action,
			})
		},
	)
	return order, err
}

// ChangeInterval switches the order to another recurrence plan. The target
// must be in the changeable set for the order's company.
func (s *Service) ChangeInterval(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.ChangeIntervalRequest) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "change_interval", orderID)
	defer func() { finish(err) }()

	if err = req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowIntervalChange); err != nil {
		return nil, err
	}
	if err = schema.ResolvePlanCapability(current.Engine); err != nil {
		return nil, err
	}

	changeable, err := s.plans.Changeable(ctx, current.CompanyID)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to load plans")
		return nil, err
	}
	allowed := false
	for _, plan := range changeable {
		if plan.ID == req.PlanID {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, dErrors.New(dErrors.CodeValidation, "this interval is not available")
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			planID := req.PlanID
			o.PlanID = &planID
			o.UpdatedAt = requestcontext.Now(txCtx)
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				Action:  audit.EventIntervalChanged,
			})
		},
	)
	return order, err
}

// ReplaceProduct ends the old line's billing window and creates a
// replacement line for the new product, both inside one exclusive section.
// Quantity defaults to the old line's quantity.
func (s *Service) ReplaceProduct(ctx context.Context, caller id.Caller, orderID id.OrderID, req *models.ReplaceProductRequest) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "replace_product", orderID)
	defer func() { finish(err) }()

	req.Normalize()
	if err = req.Validate(); err != nil {
		return nil, err
	}

	current, err := s.loadAuthorized(ctx, caller, orderID, true)
	if err != nil {
		return nil, err
	}
	if err = requirePermission(caller, current.Permissions.AllowProductChange); err != nil {
		return nil, err
	}

	product, err := s.addableProduct(ctx, current, req.NewProductID)
	if err != nil {
		return nil, err
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			old := o.Line(req.OldLineID)
			if old == nil {
				return dErrors.New(dErrors.CodeNotFound, "line not found")
			}
			if old.IsRemovedForBilling() {
				return dErrors.New(dErrors.CodeBusinessRule, "this line is no longer active")
			}
			if endErr := old.CanEnd(); endErr != nil {
				return endErr
			}

			quantity := req.Quantity
			if quantity == 0 {
				quantity = old.Quantity
			}

			now := requestcontext.Now(txCtx)
			effective := now
			if req.EffectiveDate != nil {
				effective = *req.EffectiveDate
			}

			old.ApplyEnd(effective, req.Note, caller.UserID, caller.Source, now)

			replacement, lineErr := models.NewLine(id.LineID(uuid.New()), orderID, product.ID, product.Name, quantity, caller.Source, caller.UserID, now)
			if lineErr != nil {
				return lineErr
			}
			replacement.ApplyActivate(effective, req.Note, caller.UserID, caller.Source, now)
			o.Lines = append(o.Lines, replacement)
			o.UpdatedAt = now

			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				LineID:  replacement.ID,
				Action:  audit.EventProductReplaced,
				Reason:  req.Note,
			})
		},
	)
	if err != nil {
		return nil, err
	}
	s.cancelLineWork(ctx, orderID, req.OldLineID)
	return order, nil
}

// EndLine closes a line's billing window without removing it. Backend-only
// window management; portal callers go through RemoveProduct or
// ReplaceProduct.
func (s *Service) EndLine(ctx context.Context, caller id.Caller, orderID id.OrderID, lineID id.LineID, endDate time.Time, note string) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "end_line", orderID)
	defer func() { finish(err) }()

	if !caller.Privileged {
		return nil, dErrors.New(dErrors.CodeForbidden, "you do not have access to this operation")
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			line := o.Line(lineID)
			if line == nil {
				return dErrors.New(dErrors.CodeNotFound, "line not found")
			}
			if endErr := line.CanEnd(); endErr != nil {
				return endErr
			}
			now := requestcontext.Now(txCtx)
			line.ApplyEnd(endDate, note, caller.UserID, caller.Source, now)
			o.UpdatedAt = now
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				LineID:  lineID,
				Action:  audit.EventLineEnded,
				Reason:  note,
			})
		},
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	return order, err
}

// ActivateLine reopens a line's billing window from startDate. Backend-only.
func (s *Service) ActivateLine(ctx context.Context, caller id.Caller, orderID id.OrderID, lineID id.LineID, startDate time.Time, note string) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "activate_line", orderID)
	defer func() { finish(err) }()

	if !caller.Privileged {
		return nil, dErrors.New(dErrors.CodeForbidden, "you do not have access to this operation")
	}

	order, err = s.orders.Execute(ctx, orderID,
		func(o *models.Order) error {
			return s.gate.Authorize(caller, o, true)
		},
		func(txCtx context.Context, o *models.Order) error {
			line := o.Line(lineID)
			if line == nil {
				return dErrors.New(dErrors.CodeNotFound, "line not found")
			}
			if line.IsStructural() {
				return dErrors.New(dErrors.CodeBusinessRule, "section and note lines have no billing window")
			}
			now := requestcontext.Now(txCtx)
			line.ApplyActivate(startDate, note, caller.UserID, caller.Source, now)
			o.UpdatedAt = now
			return s.emitAudit(txCtx, caller, audit.Event{
				ID:      uuid.NewString(),
				OrderID: orderID,
				LineID:  lineID,
				Action:  audit.EventLineActivated,
				Reason:  note,
			})
		},
	)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	return order, err
}

// DeleteLine is the backend delete entry point. Physical deletes are
// intercepted for product lines on confirmed orders and converted to a soft
// remove so history survives careless backend deletions.
func (s *Service) DeleteLine(ctx context.Context, caller id.Caller, orderID id.OrderID, lineID id.LineID) (intercepted bool, err error) {
	ctx, finish := s.begin(ctx, "delete_line", orderID)
	defer func() { finish(err) }()

	if !caller.Privileged {
		return false, dErrors.New(dErrors.CodeForbidden, "you do not have access to this operation")
	}

	outcome, err := s.orders.DeleteLine(ctx, orderID, lineID, caller.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "line not found")
		}
		return false, err
	}
	intercepted = outcome.Intercepted()
	// A repeated delete of an already-removed line changes nothing and
	// leaves no audit trace.
	if outcome == models.DeleteIntercepted {
		if auditErr := s.emitAudit(ctx, caller, audit.Event{
			ID:      uuid.NewString(),
			OrderID: orderID,
			LineID:  lineID,
			Action:  audit.EventProductRemoved,
			Reason:  "delete intercepted",
		}); auditErr != nil {
			s.logger.WarnContext(ctx, "audit emit failed after delete intercept", "error", auditErr)
		}
	}
	return intercepted, nil
}

// SetPermissions replaces the per-order portal toggles. Privileged only.
func (s *Service) SetPermissions(ctx context.Context, caller id.Caller, orderID id.OrderID, perms models.PortalPermissions) (order *models.Order, err error) {
	ctx, finish := s.begin(ctx, "set_permissions", orderID)
	defer func() { finish(err) }()

	if !caller.Privileged {
		return nil, dErrors.New(dErrors.CodeForbidden, "you do not have access to this operation")
	}

	order, err = s.orders.Execute(ctx, orderID,
		nil,
		func(txCtx context.Context, o *models.Order) error {
			o.Permissions = perms
			o.UpdatedAt = requestcontext.Now(txCtx)
			return nil
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "portal permissions updated", "order_id", orderID.String())
	return order, nil
}
