package shared

import (
	"net/http"
	"strings"
)

// Roles understood by the warehouse. The upstream auth layer owns role
// assignment; this service only enforces them.
const (
	// RoleViewer may call every read operation.
	RoleViewer = "viewer"
	// RoleSteward may mutate dimensions: merge, unmerge, archive, clusters.
	RoleSteward = "steward"
	// RoleSupplier may submit weekly stock entries for its own user id.
	RoleSupplier = "supplier"
)

// Header names populated by the gateway after authentication.
const (
	HeaderUserID = "X-User-Id"
	HeaderRoles  = "X-User-Roles"
)

// IdentityMiddleware lifts gateway identity headers into the request context.
// Requests without an identity still pass through; role guards decide later.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		var roles []string
		for _, role := range strings.Split(r.Header.Get(HeaderRoles), ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		ctx := ContextWithIdentity(r.Context(), Identity{UserID: userID, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose identity lacks the role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if !id.HasRole(role) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
