package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AuthenticatedPrincipalContextKey = ContextKey("authenticatedPrincipal")

// AuthenticatedPrincipal identifies the Slack user/workspace pair behind a
// session token. The session JWT is minted by the OAuth layer after the
// Slack install flow completes.
type AuthenticatedPrincipal struct {
	PrincipalID string
	WorkspaceID string
}

type sessionClaims struct {
	PrincipalID string `json:"principal_id"`
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// SessionAuth creates a middleware that authenticates requests with a
// Bearer session JWT and puts the principal into the request context.
func SessionAuth(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &sessionClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "Session token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if claims.PrincipalID == "" || claims.WorkspaceID == "" {
				logger.WarnContext(r.Context(), "Session token missing principal claims")
				http.Error(w, "Invalid session token", http.StatusUnauthorized)
				return
			}

			principal := AuthenticatedPrincipal{
				PrincipalID: claims.PrincipalID,
				WorkspaceID: claims.WorkspaceID,
			}
			ctx := context.WithValue(r.Context(), AuthenticatedPrincipalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext extracts the authenticated principal placed there by
// SessionAuth.
func PrincipalFromContext(ctx context.Context) (AuthenticatedPrincipal, bool) {
	principal, ok := ctx.Value(AuthenticatedPrincipalContextKey).(AuthenticatedPrincipal)
	return principal, ok
}
