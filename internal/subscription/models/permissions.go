package models

// PortalPermissions are per-order toggles for what the owning customer may
// do from the portal. Privileged callers bypass them; they gate portal
// callers only.
type PortalPermissions struct {
	AllowAddressChange  bool
	AllowDatePush       bool
	AllowAddProduct     bool
	AllowRemoveProduct  bool
	AllowPause          bool
	AllowIntervalChange bool
	AllowProductChange  bool
}

// DefaultPermissions enables every portal action.
func DefaultPermissions() PortalPermissions {
	return PortalPermissions{
		AllowAddressChange:  true,
		AllowDatePush:       true,
		AllowAddProduct:     true,
		AllowRemoveProduct:  true,
		AllowPause:          true,
		AllowIntervalChange: true,
		AllowProductChange:  true,
	}
}
