package roles

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aegisx-platform/authz/internal/shared"
)

type createRoleRequest struct {
	Name          string      `json:"name" validate:"required,max=100"`
	Description   string      `json:"description" validate:"max=500"`
	Category      string      `json:"category" validate:"max=100"`
	ParentRoleID  *uuid.UUID  `json:"parent_role_id"`
	PermissionIDs []uuid.UUID `json:"permission_ids" validate:"omitempty,dive,required"`
}

// updateRoleRequest is a partial patch. ParentRoleID uses a raw message
// so "parent_role_id": null (detach) is told apart from an absent key.
type updateRoleRequest struct {
	Name          *string          `json:"name" validate:"omitempty,max=100"`
	Description   *string          `json:"description" validate:"omitempty,max=500"`
	Category      *string          `json:"category" validate:"omitempty,max=100"`
	ParentRoleID  *json.RawMessage `json:"parent_role_id"`
	IsActive      *bool            `json:"is_active"`
	PermissionIDs *[]uuid.UUID     `json:"permission_ids" validate:"omitempty,dive,required"`
}

func (req updateRoleRequest) toInput() (UpdateInput, error) {
	in := UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		IsActive:      req.IsActive,
		PermissionIDs: req.PermissionIDs,
	}
	if req.ParentRoleID != nil {
		in.ParentSet = true
		if !bytes.Equal(bytes.TrimSpace(*req.ParentRoleID), []byte("null")) {
			var id uuid.UUID
			if err := json.Unmarshal(*req.ParentRoleID, &id); err != nil {
				return UpdateInput{}, fmt.Errorf("roles: parent_role_id must be a uuid or null: %w", shared.ErrInvalidRequest)
			}
			in.ParentRoleID = &id
		}
	}
	return in, nil
}

type bulkUpdateRolesRequest struct {
	RoleIDs []uuid.UUID       `json:"role_ids" validate:"required,min=1,dive,required"`
	Updates updateRoleRequest `json:"updates"`
}
