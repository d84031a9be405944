package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"compass/internal/model"
)

const bearerPrefix = "bearer "

type tokenValidator interface {
	ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error)
}

type elevationPolicy interface {
	IsElevated(role string) bool
}

type claimsKey struct{}

// AuthMiddleware turns a bearer access token into request claims.
type AuthMiddleware struct {
	validator tokenValidator
}

func NewAuthMiddleware(validator tokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.validator.ValidateToken(token, "access")
		if err != nil {
			message := "invalid or expired token"
			if errors.Is(err, model.ErrTokenExpired) {
				message = "token expired"
			}
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
			return
		}

		recordActor(r.Context(), claims.UserID, claims.Role)
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireElevated admits only callers whose role holds the hard-delete privilege.
func (m *AuthMiddleware) RequireElevated(policy elevationPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			switch {
			case !ok:
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			case !policy.IsElevated(claims.Role):
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

func WithClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*model.AuthClaims)
	return claims, ok && claims != nil
}
