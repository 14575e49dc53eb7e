package assignments

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/platform/httpx"
	"github.com/aegisx-platform/authz/internal/rbac"
	"github.com/aegisx-platform/authz/internal/shared"
)

// Handler wires HTTP endpoints for the assignment ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers assignment routes on provided router.
func (h *Handler) MountRoutes(r chi.Router, gate rbac.Middleware) {
	r.With(gate.Require(rbac.PermAssignmentsRead)).Get("/", h.list)
	r.With(gate.Require(rbac.PermAssignmentsRead)).Get("/users/{userID}", h.listForUser)
	r.With(gate.Require(rbac.PermAssignmentsWrite)).Post("/", h.assign)
	r.With(gate.Require(rbac.PermAssignmentsWrite)).Delete("/users/{userID}/roles/{roleID}", h.revoke)
	r.With(gate.Require(rbac.PermAssignmentsWrite)).Put("/users/{userID}/roles/{roleID}/expiry", h.updateExpiry)
}

// BulkAssign grants one role to many users. Mounted at the API root
// alongside the other bulk endpoints.
func (h *Handler) BulkAssign(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.BulkAssign(r.Context(), req.UserIDs, req.RoleID, req.ExpiresAt, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		IsActive: httpx.QueryBool(r, "is_active"),
		Page:     httpx.QueryInt(r, "page", 1),
		Limit:    httpx.QueryInt(r, "limit", 20),
	}
	q := r.URL.Query()
	if raw := q.Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrInvalidRequest)
			return
		}
		filter.UserID = &id
	}
	if raw := q.Get("role_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrInvalidRequest)
			return
		}
		filter.RoleID = &id
	}
	if raw := q.Get("expires_after"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrInvalidRequest)
			return
		}
		filter.ExpiresAfter = &ts
	}
	if raw := q.Get("expires_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrInvalidRequest)
			return
		}
		filter.ExpiresBefore = &ts
	}
	list, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list, "pagination": pagination})
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	list, err := h.service.ListActiveForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list user assignments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": list})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	created, err := h.service.Assign(r.Context(), AssignInput{
		UserID:    req.UserID,
		RoleID:    req.RoleID,
		ExpiresAt: req.ExpiresAt,
	}, actorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), userID, roleID, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) updateExpiry(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, shared.ErrInvalidRequest)
		return
	}
	var req updateExpiryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	actorID, _ := shared.ActorFromContext(r.Context())
	if err := h.service.UpdateExpiry(r.Context(), userID, roleID, req.ExpiresAt, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}
