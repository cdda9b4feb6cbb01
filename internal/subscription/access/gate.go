// Package access gates every mutating operation on a subscription order.
// The rules are centralized here so the service layer stays a thin
// composition and the rule chain is testable in isolation.
package access

import (
	"subport/internal/subscription/models"
	id "subport/pkg/domain"
	dErrors "subport/pkg/domain-errors"
)

// Gate validates that a caller may act on an order. Stateless; rules only.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

// Authorize applies the rule chain in order:
//  1. privileged callers pass unconditionally (state checks still apply)
//  2. anonymous callers are rejected
//  3. non-subscription orders are rejected when the operation requires one
//  4. commercial-group mismatch is rejected
//  5. order state must be confirmed or done
//  6. a closed/cancelled subscription status blocks the action
//
// Forbidden and NotSubscription results are translated to not-found at the
// transport boundary so callers cannot probe for other customers' orders.
func (g *Gate) Authorize(caller id.Caller, order *models.Order, requireSubscription bool) error {
	if !caller.Privileged {
		if caller.IsAnonymous() {
			return dErrors.New(dErrors.CodeUnauthorized, "you must be logged in to manage subscriptions")
		}
		if requireSubscription && !order.IsSubscription() {
			return dErrors.New(dErrors.CodeNotSubscription, "this record is not a subscription")
		}
		if !caller.Owns(order.CommercialGroup) {
			return dErrors.New(dErrors.CodeForbidden, "you do not have access to this subscription")
		}
	}
	if !order.IsMutable() {
		return dErrors.New(dErrors.CodeInvalidState, "this subscription is not in a confirmed state")
	}
	if order.IsClosed() {
		return dErrors.New(dErrors.CodeInvalidState, "this subscription is closed")
	}
	return nil
}
