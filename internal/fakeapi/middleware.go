package fakeapi

import (
	"context"
	"net/http"
	"strings"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified token claims of the request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*Claims)
	return c, ok
}

// requireAuth rejects requests without a valid bearer token the way
// flask-jwt-extended does: 401 with a "msg" field.
func requireAuth(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Missing Authorization Header"})
				return
			}
			claims, err := issuer.Verify(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole must run after requireAuth.
func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			role := "user"
			if ok && claims.Role != "" {
				role = claims.Role
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, map[string]any{
				"success": false,
				"message": "Insufficient permissions",
				"error":   "FORBIDDEN",
			})
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
