package permissions

import (
	"encoding/json"

	"github.com/google/uuid"
)

type createPermissionRequest struct {
	Resource    string          `json:"resource" validate:"required,max=100"`
	Action      string          `json:"action" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Category    string          `json:"category" validate:"max=100"`
	Conditions  json.RawMessage `json:"conditions"`
}

// updatePermissionRequest is a partial patch. Conditions uses a pointer
// to tell "conditions": null (clear) apart from an absent key (leave).
type updatePermissionRequest struct {
	Resource    *string          `json:"resource" validate:"omitempty,max=100"`
	Action      *string          `json:"action" validate:"omitempty,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Category    *string          `json:"category" validate:"omitempty,max=100"`
	IsActive    *bool            `json:"is_active"`
	Conditions  *json.RawMessage `json:"conditions"`
}

func (req updatePermissionRequest) toInput() UpdateInput {
	in := UpdateInput{
		Resource:    req.Resource,
		Action:      req.Action,
		Description: req.Description,
		Category:    req.Category,
		IsActive:    req.IsActive,
	}
	if req.Conditions != nil {
		in.ConditionsSet = true
		if string(*req.Conditions) != "null" {
			in.Conditions = *req.Conditions
		}
	}
	return in
}

type bulkUpdatePermissionsRequest struct {
	PermissionIDs []uuid.UUID             `json:"permission_ids" validate:"required,min=1,dive,required"`
	Updates       updatePermissionRequest `json:"updates"`
}
