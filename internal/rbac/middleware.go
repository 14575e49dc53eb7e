package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/shared"
)

// CheckerPort answers whether a user's effective set covers a pair.
type CheckerPort interface {
	CheckPermission(ctx context.Context, userID uuid.UUID, resource, action string) (bool, error)
}

// Middleware wires authorization helpers for HTTP handlers. The actor is
// taken from the request context, where the router's header middleware
// put it.
type Middleware struct {
	Checker CheckerPort
	Logger  *slog.Logger
}

// Require ensures the current actor holds the permission, given as a
// "resource:action" pair. Missing actor and missing grant are both a
// bare 403; a resolver failure is a bare 500 with no internal detail.
func (m Middleware) Require(perm string) func(http.Handler) http.Handler {
	resource, action, _ := strings.Cut(perm, ":")
	return m.RequirePermission(resource, action)
}

// RequirePermission ensures the current actor holds resource:action.
func (m Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			allowed, err := m.Checker.CheckPermission(r.Context(), actorID, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require permission", slog.Any("error", err), slog.String("resource", resource), slog.String("action", action))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
