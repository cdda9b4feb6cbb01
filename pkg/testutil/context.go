package testutil

import (
	"net/http"
	"time"

	id "subport/pkg/domain"
	"subport/pkg/requestcontext"
)

// WithCaller injects an authenticated caller into the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithCaller(req *http.Request, caller id.Caller) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithRequestTime pins the request time in the request context so date
// comparisons in the handler under test are deterministic.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// PortalCaller builds a non-privileged portal caller owning the given
// commercial group.
func PortalCaller(userID id.UserID, commercialGroup id.PartnerID) id.Caller {
	return id.Caller{
		UserID:          userID,
		PartnerID:       commercialGroup,
		CommercialGroup: commercialGroup,
		Source:          id.SourcePortal,
	}
}

// BackendCaller builds a privileged operator caller.
func BackendCaller(userID id.UserID) id.Caller {
	return id.Caller{
		UserID:     userID,
		Privileged: true,
		Source:     id.SourceBackend,
	}
}
