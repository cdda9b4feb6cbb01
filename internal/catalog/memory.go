package catalog

import (
	"context"
	"sync"

	id "subport/pkg/domain"
	"subport/pkg/platform/sentinel"
)

// InMemory holds catalog data in memory. Production deployments adapt the
// real catalog service behind the same interfaces; tests and the dev server
// seed this one.
type InMemory struct {
	mu       sync.RWMutex
	products map[id.ProductID]Product
	plans    map[id.PlanID]Plan
}

func NewInMemory() *InMemory {
	return &InMemory{
		products: make(map[id.ProductID]Product),
		plans:    make(map[id.PlanID]Plan),
	}
}

// AddProduct seeds a product.
func (c *InMemory) AddProduct(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// AddPlan seeds a plan.
func (c *InMemory) AddPlan(p Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[p.ID] = p
}

func (c *InMemory) FindByID(_ context.Context, productID id.ProductID) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	product, ok := c.products[productID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &product, nil
}

func (c *InMemory) Addable(_ context.Context, companyID id.CompanyID) ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	addable := make([]Product, 0, len(c.products))
	for _, product := range c.products {
		if !product.Sellable || !product.SubscriptionOK {
			continue
		}
		if !companyCompatible(product.CompanyID, companyID) {
			continue
		}
		addable = append(addable, product)
	}
	sortProducts(addable)
	if len(addable) > addableLimit {
		addable = addable[:addableLimit]
	}
	return addable, nil
}

func (c *InMemory) Changeable(_ context.Context, companyID id.CompanyID) ([]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	visible := make([]Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		if companyCompatible(plan.CompanyID, companyID) {
			visible = append(visible, plan)
		}
	}

	allowed := make([]Plan, 0, len(visible))
	for _, plan := range visible {
		if planAllowed(plan) {
			allowed = append(allowed, plan)
		}
	}
	// Fall back to the full visible catalog rather than presenting an
	// empty choice.
	if len(allowed) == 0 {
		allowed = visible
	}
	sortPlans(allowed)
	return allowed, nil
}
