// Package directory is the contact/address collaborator. Addresses live as
// child records under a commercial partner; the change-address operation
// only ever selects or upserts children of the caller's own commercial
// group.
package directory

import (
	"context"

	"subport/internal/subscription/models"
	id "subport/pkg/domain"
)

// AddressType distinguishes delivery from invoicing addresses.
type AddressType string

const (
	AddressDelivery AddressType = "delivery"
	AddressInvoice  AddressType = "invoice"
)

// Partner is a contact record. CommercialGroup points at the commercial
// parent; for the parent itself it equals its own ID.
type Partner struct {
	ID              id.PartnerID
	CommercialGroup id.PartnerID
	Type            AddressType
	Name            string
	Street          string
	City            string
	Zip             string
	Country         string
	Phone           string
}

// Directory resolves and maintains partner records.
type Directory interface {
	FindByID(ctx context.Context, partnerID id.PartnerID) (*Partner, error)
	// ChildrenOf lists the addresses under a commercial partner, the
	// commercial parent included, ordered by type then name.
	ChildrenOf(ctx context.Context, commercialGroup id.PartnerID) ([]Partner, error)
	// UpsertChild creates or updates a child address under the commercial
	// partner from the supplied values and returns its ID. Empty fields
	// leave existing values untouched on update.
	UpsertChild(ctx context.Context, commercialGroup id.PartnerID, current id.PartnerID, addrType AddressType, values models.AddressValues) (id.PartnerID, error)
}
