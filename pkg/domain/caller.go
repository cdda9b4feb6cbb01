package domain

// ChangeSource records which surface initiated a mutation.
type ChangeSource string

const (
	SourcePortal  ChangeSource = "portal"
	SourceBackend ChangeSource = "backend"
)

// Caller is the authenticated identity invoking a mutation. Internal
// operators are privileged: they bypass ownership checks but remain subject
// to order-state checks. Portal callers own an order when their commercial
// group matches the order customer's commercial group, so a company's
// multiple contacts share access.
type Caller struct {
	UserID          UserID
	PartnerID       PartnerID
	CommercialGroup PartnerID
	Privileged      bool
	Source          ChangeSource
}

// IsAnonymous reports whether the caller carries no authenticated identity.
func (c Caller) IsAnonymous() bool {
	return c.UserID.IsNil() && !c.Privileged
}

// Owns reports whether the caller's commercial group matches the given
// commercial group. Exact partner equality is deliberately not required.
func (c Caller) Owns(commercialGroup PartnerID) bool {
	return !c.CommercialGroup.IsNil() && c.CommercialGroup == commercialGroup
}
