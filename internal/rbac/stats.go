package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stats is the administrative dashboard snapshot.
type Stats struct {
	TotalRoles          int `json:"total_roles"`
	ActiveRoles         int `json:"active_roles"`
	SystemRoles         int `json:"system_roles"`
	CustomRoles         int `json:"custom_roles"`
	TotalPermissions    int `json:"total_permissions"`
	ActivePermissions   int `json:"active_permissions"`
	SystemPermissions   int `json:"system_permissions"`
	CustomPermissions   int `json:"custom_permissions"`
	ActiveAssignments   int `json:"active_assignments"`
	ExpiringAssignments int `json:"expiring_assignments"`
}

// StatsRepository reads aggregate counts straight off the pool.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository constructs a stats repository.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// Snapshot gathers the dashboard counts. Expiring means an active
// assignment whose expiry falls within the next 30 days.
func (r *StatsRepository) Snapshot(ctx context.Context) (Stats, error) {
	var s Stats
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_system_role)
		FROM roles`).Scan(&s.TotalRoles, &s.ActiveRoles, &s.SystemRoles); err != nil {
		return Stats{}, err
	}
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_system_permission)
		FROM permissions`).Scan(&s.TotalPermissions, &s.ActivePermissions, &s.SystemPermissions); err != nil {
		return Stats{}, err
	}
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_active AND expires_at IS NOT NULL AND expires_at <= NOW() + INTERVAL '30 days')
		FROM user_roles`).Scan(&s.ActiveAssignments, &s.ExpiringAssignments); err != nil {
		return Stats{}, err
	}
	s.CustomRoles = s.TotalRoles - s.SystemRoles
	s.CustomPermissions = s.TotalPermissions - s.SystemPermissions
	return s, nil
}
