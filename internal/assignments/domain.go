package assignments

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is one user-to-role grant. Revocation is soft: the row stays
// with is_active=false so the grant history survives.
type UserRole struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	RoleID     uuid.UUID  `json:"role_id"`
	RoleName   string     `json:"role_name,omitempty"`
	AssignedBy *uuid.UUID `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Expired reports whether the assignment has an expiry in the past.
func (ur UserRole) Expired(now time.Time) bool {
	return ur.ExpiresAt != nil && !ur.ExpiresAt.After(now)
}

// ListFilter narrows assignment listings. The expiry bounds select
// time-boxed assignments only; rows without an expiry never match a
// bounded window.
type ListFilter struct {
	UserID        *uuid.UUID
	RoleID        *uuid.UUID
	IsActive      *bool
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
	Page          int
	Limit         int
}

// AssignInput carries the fields for a new assignment.
type AssignInput struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	ExpiresAt *time.Time
}

// RoleInfo is the minimal role projection the ledger needs for
// validation and display.
type RoleInfo struct {
	ID       uuid.UUID
	Name     string
	IsActive bool
}
