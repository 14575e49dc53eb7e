package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegisx-platform/authz/internal/permissions"
	"github.com/aegisx-platform/authz/internal/platform/db"
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

const roleColumns = `r.id, r.name, r.description, r.category, r.parent_role_id, r.hierarchy_level, r.is_system_role, r.is_active, r.created_at, r.updated_at`

func scanRole(row pgx.Row, withUserCount bool) (Role, error) {
	var r Role
	dest := []any{&r.ID, &r.Name, &r.Description, &r.Category, &r.ParentRoleID, &r.HierarchyLevel, &r.IsSystemRole, &r.IsActive, &r.CreatedAt, &r.UpdatedAt}
	if withUserCount {
		dest = append(dest, &r.UserCount)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return r, nil
}

// GetByID fetches a role with its active-assignment count.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+roleColumns+`,
		       (SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = r.id AND ur.is_active) AS user_count
		FROM roles r
		WHERE r.id = $1`, id)
	return scanRole(row, true)
}

// GetPermissions loads the active permissions linked to a role.
func (r *Repository) GetPermissions(ctx context.Context, roleID uuid.UUID) ([]permissions.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.resource, p.action, p.description, p.category, p.is_system_permission, p.is_active, p.conditions, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 AND p.is_active
		ORDER BY p.resource, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := make([]permissions.Permission, 0)
	for rows.Next() {
		var p permissions.Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action, &p.Description, &p.Category, &p.IsSystemPermission, &p.IsActive, &p.Conditions, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// FindByNameFold returns the id of the role whose case-folded name matches,
// excluding the given id (uuid.Nil to exclude nothing). The stored
// name_fold column is written by this repository using NameFold, so the
// lookup and the unique index agree on what "the same name" means.
func (r *Repository) FindByNameFold(ctx context.Context, nameFold string, exclude uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM roles WHERE name_fold = $1 AND id <> $2`, nameFold, exclude).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// List returns a page of roles and the total matching count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Role, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(r.name ILIKE %s OR r.description ILIKE %s)", p, p))
	}
	if filter.Category != "" {
		where = append(where, "r.category = "+arg(filter.Category))
	}
	if filter.IsActive != nil {
		where = append(where, "r.is_active = "+arg(*filter.IsActive))
	}
	if filter.IsSystemRole != nil {
		where = append(where, "r.is_system_role = "+arg(*filter.IsSystemRole))
	}
	if filter.RootOnly {
		where = append(where, "r.parent_role_id IS NULL")
	} else if filter.ParentRoleID != nil {
		where = append(where, "r.parent_role_id = "+arg(*filter.ParentRoleID))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles r`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	userCount := "0 AS user_count"
	if filter.IncludeUserCount {
		userCount = "(SELECT COUNT(*) FROM user_roles ur WHERE ur.role_id = r.id AND ur.is_active) AS user_count"
	}
	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	query := `
		SELECT ` + roleColumns + `, ` + userCount + `
		FROM roles r` + clause + `
		ORDER BY r.created_at DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg((page-1)*limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows, true)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if filter.IncludePermissions {
		for i := range list {
			perms, err := r.GetPermissions(ctx, list[i].ID)
			if err != nil {
				return nil, 0, err
			}
			list[i].Permissions = perms
		}
	}
	return list, total, nil
}

// ListSummariesActive projects all active roles for cycle checks.
func (r *Repository) ListSummariesActive(ctx context.Context) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, parent_role_id FROM roles WHERE is_active`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.ParentRoleID); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListActive returns all active roles ordered by hierarchy level.
func (r *Repository) ListActive(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roleColumns+`
		FROM roles r
		WHERE r.is_active
		ORDER BY r.hierarchy_level, r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Role
	for rows.Next() {
		role, err := scanRole(rows, false)
		if err != nil {
			return nil, err
		}
		list = append(list, role)
	}
	return list, rows.Err()
}

// Insert stores a new role and its initial permission links atomically.
func (r *Repository) Insert(ctx context.Context, role Role, permissionIDs []uuid.UUID) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO roles (id, name, name_fold, description, category, parent_role_id, hierarchy_level, is_system_role, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			role.ID, role.Name, NameFold(role.Name), role.Description, role.Category, role.ParentRoleID, role.HierarchyLevel, role.IsSystemRole, role.IsActive); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("roles: name %q already exists: %w", role.Name, shared.ErrConflict)
			}
			return err
		}
		return insertLinks(ctx, tx, role.ID, permissionIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetByID(ctx, role.ID)
}

// Update persists field changes and, when permissionIDs is non-nil,
// replaces the full permission set in the same transaction.
func (r *Repository) Update(ctx context.Context, role Role, permissionIDs *[]uuid.UUID) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE roles
			SET name = $2, name_fold = $3, description = $4, category = $5, parent_role_id = $6, hierarchy_level = $7, is_active = $8, updated_at = NOW()
			WHERE id = $1`,
			role.ID, role.Name, NameFold(role.Name), role.Description, role.Category, role.ParentRoleID, role.HierarchyLevel, role.IsActive)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("roles: name %q already exists: %w", role.Name, shared.ErrConflict)
			}
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if permissionIDs == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, role.ID); err != nil {
			return err
		}
		return insertLinks(ctx, tx, role.ID, *permissionIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetByID(ctx, role.ID)
}

// UpdateHierarchyLevel rewrites a single role's hierarchy level.
func (r *Repository) UpdateHierarchyLevel(ctx context.Context, id uuid.UUID, level int) error {
	_, err := r.pool.Exec(ctx, `UPDATE roles SET hierarchy_level = $2, updated_at = NOW() WHERE id = $1`, id, level)
	return err
}

// Delete removes the role and its permission links atomically.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// CountActiveChildren counts active roles parented under the given role.
func (r *Repository) CountActiveChildren(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles WHERE parent_role_id = $1 AND is_active`, id).Scan(&count)
	return count, err
}

// CountActiveAssignments counts active user assignments for the role.
func (r *Repository) CountActiveAssignments(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_roles WHERE role_id = $1 AND is_active`, id).Scan(&count)
	return count, err
}

// CountActivePermissions counts how many of the given ids are active permissions.
func (r *Repository) CountActivePermissions(ctx context.Context, ids []uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions WHERE id = ANY($1) AND is_active`, ids).Scan(&count)
	return count, err
}

func insertLinks(ctx context.Context, tx pgx.Tx, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	for _, pid := range permissionIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
