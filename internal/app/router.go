package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegisx-platform/authz/internal/assignments"
	"github.com/aegisx-platform/authz/internal/observability"
	"github.com/aegisx-platform/authz/internal/permissions"
	"github.com/aegisx-platform/authz/internal/rbac"
	"github.com/aegisx-platform/authz/internal/roles"
	"github.com/aegisx-platform/authz/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RolesHandler       *roles.Handler
	PermissionsHandler *permissions.Handler
	AssignmentsHandler *assignments.Handler
	RBACHandler        *rbac.Handler
	RBACMiddleware     rbac.Middleware
	JobsHandler        *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/rbac", func(r chi.Router) {
		gate := params.RBACMiddleware
		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				params.RolesHandler.MountRoutes(r, gate)
			})
			r.With(gate.Require(rbac.PermRolesWrite)).Post("/bulk/roles", params.RolesHandler.BulkUpdate)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", func(r chi.Router) {
				params.PermissionsHandler.MountRoutes(r, gate)
			})
			r.With(gate.Require(rbac.PermPermissionsWrite)).Post("/bulk/permissions", params.PermissionsHandler.BulkUpdate)
		}
		if params.AssignmentsHandler != nil {
			r.Route("/assignments", func(r chi.Router) {
				params.AssignmentsHandler.MountRoutes(r, gate)
			})
			r.With(gate.Require(rbac.PermAssignmentsWrite)).Post("/bulk/assign-role", params.AssignmentsHandler.BulkAssign)
		}
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r, gate)
		}
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
