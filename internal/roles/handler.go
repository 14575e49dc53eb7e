package roles

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

// Handler wires HTTP endpoints for the role hierarchy.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes on provided router.
func (h *Handler) MountRoutes(r chi.Router, gate rbac.Middleware) {
	r.With(gate.Require(rbac.PermRolesRead)).Get("/", h.list)
	r.With(gate.Require(rbac.PermRolesRead)).Get("/hierarchy", h.hierarchy)
	r.With(gate.Require(rbac.PermRolesRead)).Get("/{id}", h.get)
	r.With(gate.Require(rbac.PermRolesWrite)).Post("/", h.create)
	r.With(gate.Require(rbac.PermRolesWrite)).Put("/{id}", h.update)
	r.With(gate.Require(rbac.PermRolesDelete)).Delete("/{id}", h.delete)
}

// BulkUpdate applies one patch to many roles. Mounted at the API root
// alongside the other bulk endpoints.
func (h *Handler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	in, err := req.Updates.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.BulkUpdate(r.Context(), req.RoleIDs, in, actorID)
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
		IsActive:           httpx.QueryBool(r, "is_active"),
		IsSystemRole:       httpx.QueryBool(r, "is_system_role"),
		RootOnly:           q.Get("root_only") == "true",
		IncludePermissions: q.Get("include_permissions") == "true",
		IncludeUserCount:   q.Get("include_user_count") == "true",
		Page:               httpx.QueryInt(r, "page", 1),
		Limit:              httpx.QueryInt(r, "limit", 20),
	}
	if raw := q.Get("parent_role_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrInvalidRequest)
			return
		}
		filter.ParentRoleID = &id
	}
	list, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list, "pagination": pagination})
}

func (h *Handler) hierarchy(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.Hierarchy(r.Context())
	if err != nil {
		h.logger.Error("role hierarchy", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tree)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	role, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
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
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		ParentRoleID:  req.ParentRoleID,
		PermissionIDs: req.PermissionIDs,
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
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), id, in, actorID)
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
