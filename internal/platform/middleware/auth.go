package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	id "subport/pkg/domain"
	"subport/pkg/requestcontext"
)

// PortalClaims are the validated claims of a portal access token.
type PortalClaims struct {
	UserID          string
	PartnerID       string
	CommercialGroup string
}

// JWTValidator validates portal access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*PortalClaims, error)
}

// Authenticate resolves the portal caller from the Authorization header.
// Requests without a token pass through anonymous; the access gate rejects
// them per order. A token that is present but unusable is rejected here.
func Authenticate(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeAuthError(w, "Invalid or expired token")
				return
			}

			caller, err := callerFromClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed claims",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeAuthError(w, "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithCaller(ctx, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFromClaims(claims *PortalClaims) (id.Caller, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.Caller{}, err
	}
	partnerID, err := id.ParsePartnerID(claims.PartnerID)
	if err != nil {
		return id.Caller{}, err
	}
	commercialGroup, err := id.ParsePartnerID(claims.CommercialGroup)
	if err != nil {
		return id.Caller{}, err
	}
	return id.Caller{
		UserID:          userID,
		PartnerID:       partnerID,
		CommercialGroup: commercialGroup,
		Source:          id.SourcePortal,
	}, nil
}

// RequireBackendToken gates privileged routes on the X-Backend-Token header.
// The configured value is a bcrypt hash so operator tokens never sit in the
// environment in clear text. The resolved caller is privileged; an optional
// X-Backend-Actor header attributes mutations to an operator.
func RequireBackendToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Backend-Token")
			if tokenHash == "" || token == "" ||
				bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)) != nil {
				logger.WarnContext(ctx, "backend token mismatch",
					"request_id", GetRequestID(ctx),
				)
				writeAuthError(w, "backend token required")
				return
			}

			caller := id.Caller{Privileged: true, Source: id.SourceBackend}
			if actor := r.Header.Get("X-Backend-Actor"); actor != "" {
				actorID, err := id.ParseUserID(actor)
				if err != nil {
					logger.WarnContext(ctx, "invalid backend actor header",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeAuthError(w, "invalid backend actor")
					return
				}
				caller.UserID = actorID
			}

			ctx = requestcontext.WithCaller(ctx, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
