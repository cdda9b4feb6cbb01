// Package catalog is the product/plan lookup collaborator. The mutation
// engine treats it as external: it only ever asks which products a portal
// caller may add and which recurrence plans an order may switch to.
package catalog

import (
	"context"
	"sort"

	id "subport/pkg/domain"
)

// Product is the subset of catalog data the mutation engine needs.
type Product struct {
	ID        id.ProductID
	Name      string
	Sellable  bool
	// SubscriptionOK marks products eligible for recurring orders. Engines
	// name this differently (subscription_ok vs recurring_invoice); the
	// catalog adapter normalizes it to one flag.
	SubscriptionOK bool
	// CompanyID restricts the product to one selling company; nil means
	// shared across companies.
	CompanyID *id.CompanyID
	// MandatoryDelivery marks delivery/shipping items the customer can
	// never remove from an order.
	MandatoryDelivery bool
}

// Plan is a recurrence plan an order can bill on.
type Plan struct {
	ID   id.PlanID
	Name string
	// RuleType is the recurrence unit ("month", "week", ...). Empty when
	// the engine does not expose it.
	RuleType string
	// Interval is the recurrence multiplier; 0 when the engine does not
	// expose an interval field.
	Interval  int
	CompanyID *id.CompanyID
}

// addableLimit caps the portal catalog so the
// selection stays renderable.
const addableLimit = 200

// Products looks up catalog products.
type Products interface {
	FindByID(ctx context.Context, productID id.ProductID) (*Product, error)
	// Addable returns the caller-visible addable set for a company:
	// sellable, subscription-eligible, company-compatible, ordered by name
	// then ID, capped at 200.
	Addable(ctx context.Context, companyID id.CompanyID) ([]Product, error)
}

// Plans looks up recurrence plans.
type Plans interface {
	// Changeable returns the plans a portal caller may switch to for a
	// company: monthly plans with interval 1-3. When no plan matches that
	// shape the full company catalog is returned so the caller is never
	// presented an empty choice.
	Changeable(ctx context.Context, companyID id.CompanyID) ([]Plan, error)
}

// companyCompatible reports whether an item restricted to ownerID may be
// used on an order of companyID.
func companyCompatible(ownerID *id.CompanyID, companyID id.CompanyID) bool {
	return ownerID == nil || *ownerID == companyID
}

// planAllowed is the monthly interval-1..3 shape filter. Plans without a
// rule type or interval field pass, mirroring engines that lack them.
func planAllowed(p Plan) bool {
	if p.RuleType != "" && p.RuleType != "month" {
		return false
	}
	if p.Interval != 0 {
		return p.Interval >= 1 && p.Interval <= 3
	}
	return true
}

func sortProducts(products []Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID.String() < products[j].ID.String()
	})
}

func sortPlans(plans []Plan) {
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Name != plans[j].Name {
			return plans[i].Name < plans[j].Name
		}
		return plans[i].ID.String() < plans[j].ID.String()
	})
}
