package jwttoken

import (
	"subport/internal/platform/middleware"
)

// ServiceAdapter bridges the token service to the middleware validator
// interface.
type ServiceAdapter struct {
	service *Service
}

func NewServiceAdapter(service *Service) *ServiceAdapter {
	return &ServiceAdapter{service: service}
}

func (a *ServiceAdapter) ValidateToken(tokenString string) (*middleware.PortalClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.PortalClaims{
		UserID:          claims.UserID,
		PartnerID:       claims.PartnerID,
		CommercialGroup: claims.CommercialGroup,
	}, nil
}
