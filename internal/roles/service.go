package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/aegisx-platform/authz/internal/bulk"
	"github.com/aegisx-platform/authz/internal/permissions"
	"github.com/aegisx-platform/authz/internal/shared"
)

// RepositoryPort defines data access methods for roles. Lookups return
// shared.ErrNotFound when no record matches.
type RepositoryPort interface {
	GetByID(ctx context.Context, id uuid.UUID) (Role, error)
	GetPermissions(ctx context.Context, roleID uuid.UUID) ([]permissions.Permission, error)
	FindByNameFold(ctx context.Context, nameFold string, exclude uuid.UUID) (uuid.UUID, bool, error)
	List(ctx context.Context, filter ListFilter) ([]Role, int, error)
	ListSummariesActive(ctx context.Context) ([]Summary, error)
	ListActive(ctx context.Context) ([]Role, error)
	Insert(ctx context.Context, role Role, permissionIDs []uuid.UUID) (Role, error)
	Update(ctx context.Context, role Role, permissionIDs *[]uuid.UUID) (Role, error)
	UpdateHierarchyLevel(ctx context.Context, id uuid.UUID, level int) error
	Delete(ctx context.Context, id uuid.UUID) error
	CountActiveChildren(ctx context.Context, id uuid.UUID) (int, error)
	CountActiveAssignments(ctx context.Context, id uuid.UUID) (int, error)
	CountActivePermissions(ctx context.Context, ids []uuid.UUID) (int, error)
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

// Service handles role hierarchy business logic.
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

// NameFold normalises a role name for uniqueness comparison. Uniqueness is
// case-insensitive: "Admin" and "admin" are the same role name.
func NameFold(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Create inserts a new administrator-defined role, optionally with an
// initial permission set. Link insertion is atomic with the role row.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID uuid.UUID) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("roles: name is required: %w", shared.ErrInvalidRequest)
	}
	if _, exists, err := s.repo.FindByNameFold(ctx, NameFold(name), uuid.Nil); err != nil {
		return Role{}, err
	} else if exists {
		return Role{}, fmt.Errorf("roles: name %q already exists: %w", name, shared.ErrConflict)
	}

	level := 0
	if in.ParentRoleID != nil {
		parent, err := s.repo.GetByID(ctx, *in.ParentRoleID)
		if err != nil {
			return Role{}, fmt.Errorf("roles: parent role: %w", err)
		}
		summaries, err := s.repo.ListSummariesActive(ctx)
		if err != nil {
			return Role{}, err
		}
		if wouldCreateCycle(summaries, parent.ID, name, uuid.Nil) {
			return Role{}, fmt.Errorf("roles: circular role hierarchy: %w", shared.ErrInvalidRequest)
		}
		level = parent.HierarchyLevel + 1
	}

	permissionIDs, err := s.validatePermissionSet(ctx, in.PermissionIDs)
	if err != nil {
		return Role{}, err
	}

	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "general"
	}
	created, err := s.repo.Insert(ctx, Role{
		ID:             uuid.New(),
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		Category:       category,
		ParentRoleID:   in.ParentRoleID,
		HierarchyLevel: level,
		IsActive:       true,
	}, permissionIDs)
	if err != nil {
		return Role{}, err
	}
	if created.Permissions, err = s.repo.GetPermissions(ctx, created.ID); err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "role.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Update applies a partial patch. Reparenting runs the cycle check and
// recomputes hierarchy levels for the role and its active descendants;
// a non-nil permission set fully replaces the existing links.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, actorID uuid.UUID) (Role, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}

	next := existing
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Role{}, fmt.Errorf("roles: name is required: %w", shared.ErrInvalidRequest)
		}
		if name != existing.Name {
			if existing.IsSystemRole {
				return Role{}, fmt.Errorf("roles: cannot change name of system role: %w", shared.ErrForbidden)
			}
			if _, exists, err := s.repo.FindByNameFold(ctx, NameFold(name), id); err != nil {
				return Role{}, err
			} else if exists {
				return Role{}, fmt.Errorf("roles: name %q already exists: %w", name, shared.ErrConflict)
			}
		}
		next.Name = name
	}
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if category != existing.Category && existing.IsSystemRole {
			return Role{}, fmt.Errorf("roles: cannot change category of system role: %w", shared.ErrForbidden)
		}
		next.Category = category
	}
	if in.Description != nil {
		next.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsActive != nil {
		next.IsActive = *in.IsActive
	}

	reparented := false
	if in.ParentSet {
		if in.ParentRoleID != nil {
			if *in.ParentRoleID == id {
				return Role{}, fmt.Errorf("roles: role cannot be its own parent: %w", shared.ErrInvalidRequest)
			}
			parent, err := s.repo.GetByID(ctx, *in.ParentRoleID)
			if err != nil {
				return Role{}, fmt.Errorf("roles: parent role: %w", err)
			}
			if !parentEqual(in.ParentRoleID, existing.ParentRoleID) {
				summaries, err := s.repo.ListSummariesActive(ctx)
				if err != nil {
					return Role{}, err
				}
				if wouldCreateCycle(summaries, parent.ID, existing.Name, id) {
					return Role{}, fmt.Errorf("roles: circular role hierarchy: %w", shared.ErrInvalidRequest)
				}
			}
			next.ParentRoleID = in.ParentRoleID
			next.HierarchyLevel = parent.HierarchyLevel + 1
		} else {
			next.ParentRoleID = nil
			next.HierarchyLevel = 0
		}
		reparented = next.HierarchyLevel != existing.HierarchyLevel || !parentEqual(next.ParentRoleID, existing.ParentRoleID)
	}

	var permissionIDs *[]uuid.UUID
	if in.PermissionIDs != nil {
		ids, err := s.validatePermissionSet(ctx, *in.PermissionIDs)
		if err != nil {
			return Role{}, err
		}
		permissionIDs = &ids
	}

	updated, err := s.repo.Update(ctx, next, permissionIDs)
	if err != nil {
		return Role{}, err
	}
	if reparented {
		if err := s.recomputeDescendantLevels(ctx, id, next.HierarchyLevel); err != nil {
			return Role{}, err
		}
	}
	if updated.Permissions, err = s.repo.GetPermissions(ctx, id); err != nil {
		return Role{}, err
	}
	if permissionIDs != nil {
		s.invalidateRole(ctx, id)
	}
	s.recordAudit(ctx, actorID, "role.update", id, map[string]any{"name": updated.Name})
	return updated, nil
}

// Delete hard-deletes a role. System roles, roles with active children,
// and roles with active assignments are protected.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystemRole {
		return fmt.Errorf("roles: cannot delete system role: %w", shared.ErrForbidden)
	}
	children, err := s.repo.CountActiveChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return fmt.Errorf("roles: cannot delete role with active child roles: %w", shared.ErrInvalidRequest)
	}
	assignments, err := s.repo.CountActiveAssignments(ctx, id)
	if err != nil {
		return err
	}
	if assignments > 0 {
		return fmt.Errorf("roles: cannot delete role with active user assignments: %w", shared.ErrInvalidRequest)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "role.delete", id, map[string]any{"name": existing.Name})
	return nil
}

// GetByID fetches a role with its permissions.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if role.Permissions, err = s.repo.GetPermissions(ctx, id); err != nil {
		return Role{}, err
	}
	return role, nil
}

// List returns a filtered page of roles.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Role, shared.Pagination, error) {
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	return list, shared.NewPagination(page, limit, total), nil
}

// Hierarchy returns the full tree of active roles.
func (s *Service) Hierarchy(ctx context.Context) ([]*Node, error) {
	list, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return buildTree(list), nil
}

// BulkUpdate applies one patch to many roles with per-item failure
// isolation. All referenced ids must exist up front.
func (s *Service) BulkUpdate(ctx context.Context, ids []uuid.UUID, in UpdateInput, actorID uuid.UUID) (bulk.Result, error) {
	for _, id := range ids {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return bulk.Result{}, fmt.Errorf("roles: %s: %w", id, err)
		}
	}
	result := bulk.Run(ids, uuid.UUID.String, func(id uuid.UUID) error {
		_, err := s.Update(ctx, id, in, actorID)
		return err
	})
	return result, nil
}

func (s *Service) validatePermissionSet(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	count, err := s.repo.CountActivePermissions(ctx, unique)
	if err != nil {
		return nil, err
	}
	if count != len(unique) {
		return nil, fmt.Errorf("roles: one or more permissions not found or inactive: %w", shared.ErrInvalidRequest)
	}
	return unique, nil
}

// recomputeDescendantLevels walks the active subtree under rootID and
// rewrites hierarchy levels so the parent-chain invariant holds after a
// reparent.
func (s *Service) recomputeDescendantLevels(ctx context.Context, rootID uuid.UUID, rootLevel int) error {
	summaries, err := s.repo.ListSummariesActive(ctx)
	if err != nil {
		return err
	}
	children := make(map[uuid.UUID][]uuid.UUID, len(summaries))
	for _, sum := range summaries {
		if sum.ParentRoleID != nil {
			children[*sum.ParentRoleID] = append(children[*sum.ParentRoleID], sum.ID)
		}
	}
	type frame struct {
		id    uuid.UUID
		level int
	}
	stack := []frame{{rootID, rootLevel}}
	visited := map[uuid.UUID]struct{}{}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[f.id]; seen {
			continue
		}
		visited[f.id] = struct{}{}
		for _, childID := range children[f.id] {
			if err := s.repo.UpdateHierarchyLevel(ctx, childID, f.level+1); err != nil {
				return err
			}
			stack = append(stack, frame{childID, f.level + 1})
		}
	}
	return nil
}

func (s *Service) invalidateRole(ctx context.Context, id uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateRole(ctx, id); err != nil {
		s.logger.Error("invalidate role cache", slog.Any("error", err), slog.String("role_id", id.String()))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "role", EntityID: entityID.String(), Meta: meta}); err != nil {
		s.logger.Error("record audit", slog.Any("error", err))
	}
}

func parentEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
