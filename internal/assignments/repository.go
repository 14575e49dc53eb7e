package assignments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisx-platform/authz/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `ur.id, ur.user_id, ur.role_id, ur.assigned_by, ur.assigned_at, ur.expires_at, ur.is_active, ur.created_at, ur.updated_at`

func scanAssignment(row pgx.Row, withRoleName bool) (UserRole, error) {
	var ur UserRole
	dest := []any{&ur.ID, &ur.UserID, &ur.RoleID, &ur.AssignedBy, &ur.AssignedAt, &ur.ExpiresAt, &ur.IsActive, &ur.CreatedAt, &ur.UpdatedAt}
	if withRoleName {
		dest = append(dest, &ur.RoleName)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRole{}, shared.ErrNotFound
		}
		return UserRole{}, err
	}
	return ur, nil
}

// GetByID fetches one assignment with its role name.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (UserRole, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.id = $1`, id)
	return scanAssignment(row, true)
}

// FindActive returns the active assignment for a user-role pair, if any.
func (r *Repository) FindActive(ctx context.Context, userID, roleID uuid.UUID) (UserRole, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM user_roles ur
		WHERE ur.user_id = $1 AND ur.role_id = $2 AND ur.is_active`, userID, roleID)
	ur, err := scanAssignment(row, false)
	if errors.Is(err, shared.ErrNotFound) {
		return UserRole{}, false, nil
	}
	if err != nil {
		return UserRole{}, false, err
	}
	return ur, true, nil
}

// GetRoleInfo loads the minimal role projection for validation.
func (r *Repository) GetRoleInfo(ctx context.Context, roleID uuid.UUID) (RoleInfo, error) {
	var info RoleInfo
	err := r.pool.QueryRow(ctx, `SELECT id, name, is_active FROM roles WHERE id = $1`, roleID).
		Scan(&info.ID, &info.Name, &info.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoleInfo{}, shared.ErrNotFound
	}
	return info, err
}

// GetUserActive reports whether the user exists and is active in the
// externally managed users table. Returns shared.ErrNotFound for an
// unknown id.
func (r *Repository) GetUserActive(ctx context.Context, userID uuid.UUID) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT status = 'active' FROM users WHERE id = $1`, userID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, shared.ErrNotFound
	}
	return active, err
}

// Insert stores a new assignment row. The partial unique index on
// (user_id, role_id) WHERE is_active backs the duplicate-grant guard.
func (r *Repository) Insert(ctx context.Context, ur UserRole) (UserRole, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (id, user_id, role_id, assigned_by, assigned_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ur.ID, ur.UserID, ur.RoleID, ur.AssignedBy, ur.AssignedAt, ur.ExpiresAt, ur.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return UserRole{}, fmt.Errorf("assignments: user already holds this role: %w", shared.ErrConflict)
		}
		return UserRole{}, err
	}
	return r.GetByID(ctx, ur.ID)
}

// Deactivate soft-revokes an active assignment for a user-role pair.
func (r *Repository) Deactivate(ctx context.Context, userID, roleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND role_id = $2 AND is_active`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateExpiry rewrites the expiry of an active assignment; nil clears it.
func (r *Repository) UpdateExpiry(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_roles
		SET expires_at = $3, updated_at = NOW()
		WHERE user_id = $1 AND role_id = $2 AND is_active`, userID, roleID, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns a page of assignments and the total matching count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]UserRole, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != nil {
		where = append(where, "ur.user_id = "+arg(*filter.UserID))
	}
	if filter.RoleID != nil {
		where = append(where, "ur.role_id = "+arg(*filter.RoleID))
	}
	if filter.IsActive != nil {
		where = append(where, "ur.is_active = "+arg(*filter.IsActive))
	}
	if filter.ExpiresAfter != nil {
		where = append(where, "ur.expires_at >= "+arg(*filter.ExpiresAfter))
	}
	if filter.ExpiresBefore != nil {
		where = append(where, "ur.expires_at <= "+arg(*filter.ExpiresBefore))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles ur`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	query := `
		SELECT ` + assignmentColumns + `, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id` + clause + `
		ORDER BY ur.assigned_at DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg((page-1)*limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]UserRole, 0)
	for rows.Next() {
		ur, err := scanAssignment(rows, true)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, ur)
	}
	return list, total, rows.Err()
}

// ListActiveForUser returns a user's active, non-expired assignments.
func (r *Repository) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+assignmentColumns+`, r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.is_active
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		ORDER BY ur.assigned_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]UserRole, 0)
	for rows.Next() {
		ur, err := scanAssignment(rows, true)
		if err != nil {
			return nil, err
		}
		list = append(list, ur)
	}
	return list, rows.Err()
}

// SweepExpired deactivates assignments whose expiry has passed and
// returns the distinct user ids touched, so their caches can be busted.
func (r *Repository) SweepExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE user_roles
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING user_id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]struct{})
	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
