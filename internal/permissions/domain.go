package permissions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Permission represents an atomic (resource, action) capability.
// Conditions is an opaque payload stored and returned verbatim; the
// engine never interprets it.
type Permission struct {
	ID                 uuid.UUID       `json:"id"`
	Resource           string          `json:"resource"`
	Action             string          `json:"action"`
	Description        string          `json:"description"`
	Category           string          `json:"category"`
	IsSystemPermission bool            `json:"is_system_permission"`
	IsActive           bool            `json:"is_active"`
	Conditions         json.RawMessage `json:"conditions,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	RoleCount          int             `json:"role_count"`
}

// Key renders the permission as the canonical "resource:action" string.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// ListFilter narrows permission listings.
type ListFilter struct {
	Search             string
	Category           string
	Resource           string
	Action             string
	IsActive           *bool
	IsSystemPermission *bool
	Page               int
	Limit              int
}

// CreateInput carries the fields for a new permission.
type CreateInput struct {
	Resource    string
	Action      string
	Description string
	Category    string
	Conditions  json.RawMessage
}

// UpdateInput is a partial patch; nil fields are left unchanged.
// ConditionsSet distinguishes "clear conditions" from "leave alone".
type UpdateInput struct {
	Resource      *string
	Action        *string
	Description   *string
	Category      *string
	IsActive      *bool
	Conditions    json.RawMessage
	ConditionsSet bool
}
