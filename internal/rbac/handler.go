package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/platform/httpx"
	"github.com/aegisx-platform/authz/internal/shared"
)

// StatsPort reads the dashboard snapshot.
type StatsPort interface {
	Snapshot(ctx context.Context) (Stats, error)
}

// ResolverPort resolves effective permission sets.
type ResolverPort interface {
	EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Handler serves the aggregate administrative endpoints.
type Handler struct {
	stats    StatsPort
	resolver ResolverPort
	logger   *slog.Logger
}

// NewHandler builds Handler instance.
func NewHandler(stats StatsPort, resolver ResolverPort, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{stats: stats, resolver: resolver, logger: logger}
}

// MountRoutes registers the aggregate endpoints.
func (h *Handler) MountRoutes(r chi.Router, gate Middleware) {
	r.With(gate.Require(PermStatsRead)).Get("/stats", h.getStats)
	r.With(gate.Require(PermAssignmentsRead)).Get("/users/{userID}/effective-permissions", h.getEffectivePermissions)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("rbac stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) getEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	perms, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err), slog.String("user_id", userID.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
}
