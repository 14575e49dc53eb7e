package permissions

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/platform/httpx"
	"github.com/aegisx-platform/authz/internal/rbac"
	"github.com/aegisx-platform/authz/internal/shared"
)

// Handler wires HTTP endpoints for the permission catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers permission routes on provided router.
func (h *Handler) MountRoutes(r chi.Router, gate rbac.Middleware) {
	r.With(gate.Require(rbac.PermPermissionsRead)).Get("/", h.list)
	r.With(gate.Require(rbac.PermPermissionsRead)).Get("/by-category", h.byCategory)
	r.With(gate.Require(rbac.PermPermissionsRead)).Get("/{id}", h.get)
	r.With(gate.Require(rbac.PermPermissionsWrite)).Post("/", h.create)
	r.With(gate.Require(rbac.PermPermissionsWrite)).Put("/{id}", h.update)
	r.With(gate.Require(rbac.PermPermissionsWrite)).Delete("/{id}", h.delete)
}

// BulkUpdate applies one patch to many permissions. Mounted at the API
// root alongside the other bulk endpoints.
func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdatePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.BulkUpdate(r.Context(), req.PermissionIDs, req.Updates.toInput(), actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Search:             strings.TrimSpace(q.Get("search")),
		Category:           strings.TrimSpace(q.Get("category")),
		Resource:           strings.TrimSpace(q.Get("resource")),
		Action:             strings.TrimSpace(q.Get("action")),
		IsActive:           httpx.QueryBool(r, "is_active"),
		IsSystemPermission: httpx.QueryBool(r, "is_system_permission"),
		Page:               httpx.QueryInt(r, "page", 1),
		Limit:              httpx.QueryInt(r, "limit", 20),
	}
	perms, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": perms, "pagination": pagination})
}

func (h *Handler) byCategory(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.service.ByCategory(r.Context())
	if err != nil {
		h.logger.Error("permissions by category", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grouped)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	p, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.Create(r.Context(), CreateInput{
		Resource:    req.Resource,
		Action:      req.Action,
		Description: req.Description,
		Category:    req.Category,
		Conditions:  req.Conditions,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	var req updatePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), id, req.toInput(), actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}
