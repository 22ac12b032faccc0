package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/shared"
)

// PermissionSource resolves the permission names held by a user.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service PermissionSource
	Logger  *slog.Logger
}

type permissionsContextKey struct{}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission, htmlDeny)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAllPermissions, htmlDeny)
}

// APIRequireAny is RequireAny answering with the JSON envelope: 401 when no
// user is logged in, 403 when the permission is missing.
func (m Middleware) APIRequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(normalizePermissions(perms), hasAnyPermission, jsonDeny)
}

// Can reports whether the request's user holds perm. Handlers use it for
// actions that need an extra permission on top of the route guard.
func (m Middleware) Can(r *http.Request, perm string) bool {
	granted, ok := r.Context().Value(permissionsContextKey{}).([]string)
	if !ok {
		userID, logged := shared.CurrentUserID(r.Context())
		if !logged {
			return false
		}
		var err error
		granted, err = m.Service.EffectivePermissions(r.Context(), userID)
		if err != nil {
			m.logError("rbac can", err)
			return false
		}
	}
	return hasAnyPermission(granted, normalizePermissions([]string{perm}))
}

// PermissionsFromContext returns the permissions loaded by a guard, if any.
func PermissionsFromContext(ctx context.Context) []string {
	granted, _ := ctx.Value(permissionsContextKey{}).([]string)
	return granted
}

type denyFunc func(w http.ResponseWriter, status int)

func htmlDeny(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func jsonDeny(w http.ResponseWriter, status int) {
	switch status {
	case http.StatusUnauthorized:
		httpx.Fail(w, status, "Authentication required")
	case http.StatusForbidden:
		httpx.Fail(w, status, "You do not have permission to perform this action")
	default:
		httpx.Fail(w, status, "An internal error occurred")
	}
}

func (m Middleware) require(required []string, check func(granted, required []string) bool, deny denyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.CurrentUserID(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized)
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), userID)
			if err != nil {
				m.logError("rbac require", err)
				deny(w, http.StatusInternalServerError)
				return
			}
			if !check(granted, required) {
				deny(w, http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), permissionsContextKey{}, granted)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}

func permissionSet(granted []string) map[string]struct{} {
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	return set
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := permissionSet(granted)
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	set := permissionSet(granted)
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
