package permissions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/bulk"
	"github.com/aegisx-platform/authz/internal/shared"
)

// RepositoryPort defines data access methods for permissions. Lookups
// return shared.ErrNotFound when no record matches.
type RepositoryPort interface {
	GetByID(ctx context.Context, id uuid.UUID) (Permission, error)
	FindByResourceAction(ctx context.Context, resource, action string, exclude uuid.UUID) (uuid.UUID, bool, error)
	List(ctx context.Context, filter ListFilter) ([]Permission, int, error)
	ListActive(ctx context.Context) ([]Permission, error)
	Insert(ctx context.Context, p Permission) (Permission, error)
	Update(ctx context.Context, p Permission) (Permission, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RoleIDsFor(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

// InvalidatorPort busts cached effective permission sets for every user
// holding a given role. Called after commit, never before.
type InvalidatorPort interface {
	InvalidateRole(ctx context.Context, roleID uuid.UUID) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles permission catalog business logic.
type Service struct {
	repo        RepositoryPort
	invalidator InvalidatorPort
	audit       AuditPort
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator InvalidatorPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, audit: audit, logger: logger}
}

// Create inserts a new administrator-defined permission.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID uuid.UUID) (Permission, error) {
	resource := strings.TrimSpace(in.Resource)
	action := strings.TrimSpace(in.Action)
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("permissions: resource and action are required: %w", shared.ErrInvalidRequest)
	}
	if _, exists, err := s.repo.FindByResourceAction(ctx, resource, action, uuid.Nil); err != nil {
		return Permission{}, err
	} else if exists {
		return Permission{}, fmt.Errorf("permissions: %s:%s already exists: %w", resource, action, shared.ErrConflict)
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "general"
	}
	created, err := s.repo.Insert(ctx, Permission{
		ID:          uuid.New(),
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		IsActive:    true,
		Conditions:  in.Conditions,
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, actorID, "permission.create", created.ID, map[string]any{"resource": created.Resource, "action": created.Action})
	return created, nil
}

// Update applies a partial patch to an existing permission.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, actorID uuid.UUID) (Permission, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Permission{}, err
	}

	resourceChanging := in.Resource != nil && strings.TrimSpace(*in.Resource) != existing.Resource
	actionChanging := in.Action != nil && strings.TrimSpace(*in.Action) != existing.Action
	if existing.IsSystemPermission && (resourceChanging || actionChanging) {
		return Permission{}, fmt.Errorf("permissions: cannot modify resource or action of system permission: %w", shared.ErrForbidden)
	}

	next := existing
	if in.Resource != nil {
		next.Resource = strings.TrimSpace(*in.Resource)
	}
	if in.Action != nil {
		next.Action = strings.TrimSpace(*in.Action)
	}
	if next.Resource == "" || next.Action == "" {
		return Permission{}, fmt.Errorf("permissions: resource and action are required: %w", shared.ErrInvalidRequest)
	}
	if resourceChanging || actionChanging {
		if _, exists, err := s.repo.FindByResourceAction(ctx, next.Resource, next.Action, id); err != nil {
			return Permission{}, err
		} else if exists {
			return Permission{}, fmt.Errorf("permissions: %s:%s already exists: %w", next.Resource, next.Action, shared.ErrConflict)
		}
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.Category != nil {
		next.Category = strings.TrimSpace(*in.Category)
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}
	if in.ConditionsSet {
		next.Conditions = in.Conditions
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Permission{}, err
	}

	// Any change to the pair or activation alters some user's effective set.
	if resourceChanging || actionChanging || (in.IsActive != nil && *in.IsActive != existing.IsActive) {
		s.invalidateLinkedRoles(ctx, id)
	}
	s.recordAudit(ctx, actorID, "permission.update", id, map[string]any{"resource": updated.Resource, "action": updated.Action})
	updated.RoleCount = existing.RoleCount
	return updated, nil
}

// Delete removes a permission and its role links.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystemPermission {
		return fmt.Errorf("permissions: cannot delete system permission: %w", shared.ErrForbidden)
	}
	roleIDs, err := s.repo.RoleIDsFor(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateRoles(ctx, roleIDs)
	s.recordAudit(ctx, actorID, "permission.delete", id, map[string]any{"resource": existing.Resource, "action": existing.Action})
	return nil
}

// GetByID fetches a single permission.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Permission, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a filtered page of permissions.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Permission, shared.Pagination, error) {
	perms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	return perms, shared.NewPagination(page, limit, total), nil
}

// ByCategory groups all active permissions by category for administrative display.
func (s *Service) ByCategory(ctx context.Context) (map[string][]Permission, error) {
	perms, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]Permission)
	for _, p := range perms {
		grouped[p.Category] = append(grouped[p.Category], p)
	}
	return grouped, nil
}

// BulkUpdate applies one patch to many permissions with per-item failure
// isolation. All referenced ids must exist up front.
func (s *Service) BulkUpdate(ctx context.Context, ids []uuid.UUID, in UpdateInput, actorID uuid.UUID) (bulk.Result, error) {
	for _, id := range ids {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return bulk.Result{}, fmt.Errorf("permissions: %s: %w", id, err)
		}
	}
	result := bulk.Run(ids, uuid.UUID.String, func(id uuid.UUID) error {
		_, err := s.Update(ctx, id, in, actorID)
		return err
	})
	return result, nil
}

func (s *Service) invalidateLinkedRoles(ctx context.Context, id uuid.UUID) {
	roleIDs, err := s.repo.RoleIDsFor(ctx, id)
	if err != nil {
		s.logger.Error("list roles for invalidation", slog.Any("error", err), slog.String("permission_id", id.String()))
		return
	}
	s.invalidateRoles(ctx, roleIDs)
}

func (s *Service) invalidateRoles(ctx context.Context, roleIDs []uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	for _, roleID := range roleIDs {
		if err := s.invalidator.InvalidateRole(ctx, roleID); err != nil {
			s.logger.Error("invalidate role cache", slog.Any("error", err), slog.String("role_id", roleID.String()))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "permission", EntityID: entityID.String(), Meta: meta}); err != nil {
		s.logger.Error("record audit", slog.Any("error", err))
	}
}
