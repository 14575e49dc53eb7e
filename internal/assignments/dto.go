package assignments

import (
	"time"

	"github.com/google/uuid"
)

type assignRoleRequest struct {
	UserID    uuid.UUID  `json:"user_id" validate:"required"`
	RoleID    uuid.UUID  `json:"role_id" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// updateExpiryRequest sets the time box on an assignment. A null or
// absent expires_at clears it, making the grant permanent.
type updateExpiryRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

type bulkAssignRequest struct {
	UserIDs   []uuid.UUID `json:"user_ids" validate:"required,min=1,dive,required"`
	RoleID    uuid.UUID   `json:"role_id" validate:"required"`
	ExpiresAt *time.Time  `json:"expires_at"`
}
