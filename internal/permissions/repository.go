package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

const permissionColumns = `p.id, p.resource, p.action, p.description, p.category, p.is_system_permission, p.is_active, p.conditions, p.created_at, p.updated_at`

func scanPermission(row pgx.Row, withRoleCount bool) (Permission, error) {
	var p Permission
	dest := []any{&p.ID, &p.Resource, &p.Action, &p.Description, &p.Category, &p.IsSystemPermission, &p.IsActive, &p.Conditions, &p.CreatedAt, &p.UpdatedAt}
	if withRoleCount {
		dest = append(dest, &p.RoleCount)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// GetByID fetches a permission with its role count.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+permissionColumns+`,
		       (SELECT COUNT(*) FROM role_permissions rp WHERE rp.permission_id = p.id) AS role_count
		FROM permissions p
		WHERE p.id = $1`, id)
	return scanPermission(row, true)
}

// FindByResourceAction returns the id of the permission with the given pair,
// excluding the given id (uuid.Nil to exclude nothing).
func (r *Repository) FindByResourceAction(ctx context.Context, resource, action string, exclude uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT id FROM permissions WHERE resource = $1 AND action = $2 AND id <> $3`, resource, action, exclude).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// List returns a page of permissions and the total matching count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Permission, int, error) {
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
		where = append(where, fmt.Sprintf("(p.resource ILIKE %s OR p.action ILIKE %s OR p.description ILIKE %s)", p, p, p))
	}
	if filter.Category != "" {
		where = append(where, "p.category = "+arg(filter.Category))
	}
	if filter.Resource != "" {
		where = append(where, "p.resource = "+arg(filter.Resource))
	}
	if filter.Action != "" {
		where = append(where, "p.action = "+arg(filter.Action))
	}
	if filter.IsActive != nil {
		where = append(where, "p.is_active = "+arg(*filter.IsActive))
	}
	if filter.IsSystemPermission != nil {
		where = append(where, "p.is_system_permission = "+arg(*filter.IsSystemPermission))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions p`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, limit := shared.NormalizePage(filter.Page, filter.Limit)
	query := `
		SELECT ` + permissionColumns + `,
		       (SELECT COUNT(*) FROM role_permissions rp WHERE rp.permission_id = p.id) AS role_count
		FROM permissions p` + clause + `
		ORDER BY p.created_at DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg((page-1)*limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	perms := make([]Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows, true)
		if err != nil {
			return nil, 0, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

// ListActive returns all active permissions ordered by category and resource.
func (r *Repository) ListActive(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+permissionColumns+`
		FROM permissions p
		WHERE p.is_active
		ORDER BY p.category, p.resource, p.action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows, false)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// Insert stores a new permission.
func (r *Repository) Insert(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (id, resource, action, description, category, is_system_permission, is_active, conditions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+strings.ReplaceAll(permissionColumns, "p.", "")+``,
		p.ID, p.Resource, p.Action, p.Description, p.Category, p.IsSystemPermission, p.IsActive, p.Conditions)
	stored, err := scanPermission(row, false)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permissions: %s:%s already exists: %w", p.Resource, p.Action, shared.ErrConflict)
		}
		return Permission{}, err
	}
	return stored, nil
}

// Update persists field changes for an existing permission.
func (r *Repository) Update(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions
		SET resource = $2, action = $3, description = $4, category = $5, is_active = $6, conditions = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+strings.ReplaceAll(permissionColumns, "p.", "")+``,
		p.ID, p.Resource, p.Action, p.Description, p.Category, p.IsActive, p.Conditions)
	stored, err := scanPermission(row, false)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, fmt.Errorf("permissions: %s:%s already exists: %w", p.Resource, p.Action, shared.ErrConflict)
		}
		return Permission{}, err
	}
	return stored, nil
}

// Delete removes the permission and its role links atomically.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// RoleIDsFor lists the roles currently linked to a permission.
func (r *Repository) RoleIDsFor(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id FROM role_permissions WHERE permission_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var roleID uuid.UUID
		if err := rows.Scan(&roleID); err != nil {
			return nil, err
		}
		ids = append(ids, roleID)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
