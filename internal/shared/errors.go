package shared

import "errors"

var (
	// ErrNotFound indicates a role, permission, or assignment that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation such as a duplicate role name.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates a mutation attempted on a system-protected record.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidRequest indicates a request that fails domain validation.
	ErrInvalidRequest = errors.New("invalid request")
)
