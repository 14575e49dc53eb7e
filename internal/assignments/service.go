package assignments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/bulk"
	"github.com/aegisx-platform/authz/internal/shared"
)

// RepositoryPort defines data access methods for the assignment ledger.
// GetUserActive consults the externally managed users table.
type RepositoryPort interface {
	GetByID(ctx context.Context, id uuid.UUID) (UserRole, error)
	FindActive(ctx context.Context, userID, roleID uuid.UUID) (UserRole, bool, error)
	GetRoleInfo(ctx context.Context, roleID uuid.UUID) (RoleInfo, error)
	GetUserActive(ctx context.Context, userID uuid.UUID) (bool, error)
	Insert(ctx context.Context, ur UserRole) (UserRole, error)
	Deactivate(ctx context.Context, userID, roleID uuid.UUID) error
	UpdateExpiry(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time) error
	List(ctx context.Context, filter ListFilter) ([]UserRole, int, error)
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]UserRole, error)
	SweepExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// InvalidatorPort busts a user's cached effective permission set.
// Called after commit, never before.
type InvalidatorPort interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles assignment ledger business logic.
type Service struct {
	repo        RepositoryPort
	invalidator InvalidatorPort
	audit       AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, invalidator InvalidatorPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, audit: audit, logger: logger, now: time.Now}
}

// Assign grants a role to a user, optionally time-boxed. The target
// user must exist and be active in the users table; the actor is
// recorded as assigned_by. A user may hold a role at most once at a time.
func (s *Service) Assign(ctx context.Context, in AssignInput, actorID uuid.UUID) (UserRole, error) {
	if in.UserID == uuid.Nil || in.RoleID == uuid.Nil {
		return UserRole{}, fmt.Errorf("assignments: user_id and role_id are required: %w", shared.ErrInvalidRequest)
	}
	role, err := s.repo.GetRoleInfo(ctx, in.RoleID)
	if err != nil {
		return UserRole{}, fmt.Errorf("assignments: role: %w", err)
	}
	if !role.IsActive {
		return UserRole{}, fmt.Errorf("assignments: role %q is inactive: %w", role.Name, shared.ErrInvalidRequest)
	}
	userActive, err := s.repo.GetUserActive(ctx, in.UserID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return UserRole{}, err
	}
	if err != nil || !userActive {
		return UserRole{}, fmt.Errorf("assignments: user %s not found or inactive: %w", in.UserID, shared.ErrInvalidRequest)
	}
	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return UserRole{}, fmt.Errorf("assignments: expires_at must be in the future: %w", shared.ErrInvalidRequest)
	}
	if _, exists, err := s.repo.FindActive(ctx, in.UserID, in.RoleID); err != nil {
		return UserRole{}, err
	} else if exists {
		return UserRole{}, fmt.Errorf("assignments: user already holds role %q: %w", role.Name, shared.ErrConflict)
	}

	var assignedBy *uuid.UUID
	if actorID != uuid.Nil {
		assignedBy = &actorID
	}
	created, err := s.repo.Insert(ctx, UserRole{
		ID:         uuid.New(),
		UserID:     in.UserID,
		RoleID:     in.RoleID,
		AssignedBy: assignedBy,
		AssignedAt: now,
		ExpiresAt:  in.ExpiresAt,
		IsActive:   true,
	})
	if err != nil {
		return UserRole{}, err
	}
	s.invalidateUser(ctx, in.UserID)
	s.recordAudit(ctx, actorID, "assignment.create", created.ID, map[string]any{"user_id": in.UserID.String(), "role": role.Name})
	return created, nil
}

// Revoke soft-deactivates the active assignment for a user-role pair.
// The row is kept for grant history.
func (s *Service) Revoke(ctx context.Context, userID, roleID uuid.UUID, actorID uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, userID, roleID); err != nil {
		return fmt.Errorf("assignments: revoke: %w", err)
	}
	s.invalidateUser(ctx, userID)
	s.recordAudit(ctx, actorID, "assignment.revoke", userID, map[string]any{"user_id": userID.String(), "role_id": roleID.String()})
	return nil
}

// UpdateExpiry rewrites the expiry on an active assignment. A nil
// expiresAt clears the time box so the grant becomes permanent.
func (s *Service) UpdateExpiry(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time, actorID uuid.UUID) error {
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return fmt.Errorf("assignments: expires_at must be in the future: %w", shared.ErrInvalidRequest)
	}
	if err := s.repo.UpdateExpiry(ctx, userID, roleID, expiresAt); err != nil {
		return fmt.Errorf("assignments: update expiry: %w", err)
	}
	s.invalidateUser(ctx, userID)
	s.recordAudit(ctx, actorID, "assignment.update_expiry", userID, map[string]any{"user_id": userID.String(), "role_id": roleID.String()})
	return nil
}

// List returns a filtered page of assignments.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]UserRole, shared.Pagination, error) {
	list, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	return list, shared.NewPagination(page, limit, total), nil
}

// ListActiveForUser returns a user's active, non-expired assignments.
func (s *Service) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	return s.repo.ListActiveForUser(ctx, userID)
}

// BulkAssign grants one role to many users with per-user failure
// isolation. The role itself must exist and be active up front; a
// duplicate grant or a missing or inactive user fails only that
// user's item.
func (s *Service) BulkAssign(ctx context.Context, userIDs []uuid.UUID, roleID uuid.UUID, expiresAt *time.Time, actorID uuid.UUID) (bulk.Result, error) {
	role, err := s.repo.GetRoleInfo(ctx, roleID)
	if err != nil {
		return bulk.Result{}, fmt.Errorf("assignments: role: %w", err)
	}
	if !role.IsActive {
		return bulk.Result{}, fmt.Errorf("assignments: role %q is inactive: %w", role.Name, shared.ErrInvalidRequest)
	}
	result := bulk.Run(userIDs, uuid.UUID.String, func(userID uuid.UUID) error {
		_, err := s.Assign(ctx, AssignInput{UserID: userID, RoleID: roleID, ExpiresAt: expiresAt}, actorID)
		return err
	})
	return result, nil
}

// SweepExpired deactivates assignments past their expiry and busts the
// cache of every user touched. Returns the number of users affected.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	userIDs, err := s.repo.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, userID := range userIDs {
		s.invalidateUser(ctx, userID)
	}
	if len(userIDs) > 0 {
		s.logger.Info("expired assignments swept", slog.Int("users", len(userIDs)))
	}
	return len(userIDs), nil
}

func (s *Service) invalidateUser(ctx context.Context, userID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
		s.logger.Error("invalidate user cache", slog.Any("error", err), slog.String("user_id", userID.String()))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user_role", EntityID: entityID.String(), Meta: meta}); err != nil {
		s.logger.Error("record audit", slog.Any("error", err))
	}
}
