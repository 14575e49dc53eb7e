package roles

import (
	"time"

	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/permissions"
)

// Role represents an administratively defined permission bundle. The
// parent reference is organisational grouping only; permissions are
// never inherited through the hierarchy.
type Role struct {
	ID             uuid.UUID                `json:"id"`
	Name           string                   `json:"name"`
	Description    string                   `json:"description"`
	Category       string                   `json:"category"`
	ParentRoleID   *uuid.UUID               `json:"parent_role_id,omitempty"`
	HierarchyLevel int                      `json:"hierarchy_level"`
	IsSystemRole   bool                     `json:"is_system_role"`
	IsActive       bool                     `json:"is_active"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	UserCount      int                      `json:"user_count"`
	Permissions    []permissions.Permission `json:"permissions"`
}

// Node is a role plus its direct children, used for the hierarchy tree.
type Node struct {
	Role
	Children []*Node `json:"children"`
}

// Summary is the minimal projection needed for cycle checks and tree builds.
type Summary struct {
	ID           uuid.UUID
	Name         string
	ParentRoleID *uuid.UUID
}

// ListFilter narrows role listings.
type ListFilter struct {
	Search             string
	Category           string
	IsActive           *bool
	IsSystemRole       *bool
	ParentRoleID       *uuid.UUID
	RootOnly           bool
	IncludePermissions bool
	IncludeUserCount   bool
	Page               int
	Limit              int
}

// CreateInput carries the fields for a new role.
type CreateInput struct {
	Name          string
	Description   string
	Category      string
	ParentRoleID  *uuid.UUID
	PermissionIDs []uuid.UUID
}

// UpdateInput is a partial patch. ParentSet distinguishes "reparent to
// ParentRoleID (possibly nil, meaning detach)" from "leave parent alone";
// PermissionIDs non-nil replaces the full permission set.
type UpdateInput struct {
	Name          *string
	Description   *string
	Category      *string
	ParentSet     bool
	ParentRoleID  *uuid.UUID
	IsActive      *bool
	PermissionIDs *[]uuid.UUID
}
