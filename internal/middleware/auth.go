// Package middleware contains the HTTP middleware of the service.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/arjunvn/kaapi-store/internal/token"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the result of request authentication. The zero value is
// anonymous.
type Identity struct {
	Username      string
	Authenticated bool
}

// Anonymous is the identity attached to requests without a valid token.
var Anonymous = Identity{}

// AuthMiddleware authenticates requests by their bearer token.
type AuthMiddleware struct {
	tokens *token.Manager
}

// NewAuthMiddleware creates an AuthMiddleware verifying with the given
// token manager.
func NewAuthMiddleware(tokens *token.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Middleware rejects requests without a valid bearer token and puts the
// authenticated identity into the request context.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := a.TryAuthenticate(r)
		if !id.Authenticated {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the caller's identity when a valid token is present and
// falls back to Anonymous otherwise. It never rejects the request.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), identityKey, a.TryAuthenticate(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TryAuthenticate inspects the Authorization header and returns either the
// authenticated identity or Anonymous. Invalid tokens are treated the same
// as absent ones.
func (a *AuthMiddleware) TryAuthenticate(r *http.Request) Identity {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Anonymous
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Anonymous
	}

	username, err := a.tokens.Verify(parts[1])
	if err != nil {
		return Anonymous
	}

	return Identity{Username: username, Authenticated: true}
}

// IdentityFromContext extracts the caller identity from the request context.
func IdentityFromContext(ctx context.Context) Identity {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return Anonymous
	}
	return id
}

// UsernameFromContext extracts the authenticated username from the request
// context.
func UsernameFromContext(ctx context.Context) (string, bool) {
	id := IdentityFromContext(ctx)
	return id.Username, id.Authenticated
}
