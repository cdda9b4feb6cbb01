package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"subport/internal/subscription/models"
	id "subport/pkg/domain"
	"subport/pkg/platform/sentinel"
)

// InMemory is the in-memory partner directory for tests and the dev server.
type InMemory struct {
	mu       sync.RWMutex
	partners map[id.PartnerID]Partner
}

func NewInMemory() *InMemory {
	return &InMemory{partners: make(map[id.PartnerID]Partner)}
}

// Add seeds a partner record.
func (d *InMemory) Add(p Partner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partners[p.ID] = p
}

func (d *InMemory) FindByID(_ context.Context, partnerID id.PartnerID) (*Partner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	partner, ok := d.partners[partnerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &partner, nil
}

func (d *InMemory) ChildrenOf(_ context.Context, commercialGroup id.PartnerID) ([]Partner, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	children := make([]Partner, 0, 4)
	for _, partner := range d.partners {
		if partner.CommercialGroup == commercialGroup {
			children = append(children, partner)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Type != children[j].Type {
			return children[i].Type < children[j].Type
		}
		return children[i].Name < children[j].Name
	})
	return children, nil
}

func (d *InMemory) UpsertChild(_ context.Context, commercialGroup id.PartnerID, current id.PartnerID, addrType AddressType, values models.AddressValues) (id.PartnerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Update in place when the current address already belongs to the
	// caller's commercial group.
	if existing, ok := d.partners[current]; ok && existing.CommercialGroup == commercialGroup {
		applyValues(&existing, values)
		existing.Type = addrType
		d.partners[existing.ID] = existing
		return existing.ID, nil
	}

	partner := Partner{
		ID:              id.PartnerID(uuid.New()),
		CommercialGroup: commercialGroup,
		Type:            addrType,
	}
	applyValues(&partner, values)
	d.partners[partner.ID] = partner
	return partner.ID, nil
}

func applyValues(p *Partner, values models.AddressValues) {
	if values.Name != "" {
		p.Name = values.Name
	}
	if values.Street != "" {
		p.Street = values.Street
	}
	if values.City != "" {
		p.City = values.City
	}
	if values.Zip != "" {
		p.Zip = values.Zip
	}
	if values.Country != "" {
		p.Country = values.Country
	}
	if values.Phone != "" {
		p.Phone = values.Phone
	}
}
