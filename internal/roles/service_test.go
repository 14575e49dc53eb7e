package roles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegisx-platform/authz/internal/permissions"
	"github.com/aegisx-platform/authz/internal/shared"
)

type fakeRepo struct {
	roles       map[uuid.UUID]Role
	links       map[uuid.UUID][]uuid.UUID
	perms       map[uuid.UUID]permissions.Permission
	assignments map[uuid.UUID]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		roles:       map[uuid.UUID]Role{},
		links:       map[uuid.UUID][]uuid.UUID{},
		perms:       map[uuid.UUID]permissions.Permission{},
		assignments: map[uuid.UUID]int{},
	}
}

func (f *fakeRepo) addRole(r Role) Role {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.roles[r.ID] = r
	return r
}

func (f *fakeRepo) addPermission(resource, action string, active bool) permissions.Permission {
	p := permissions.Permission{ID: uuid.New(), Resource: resource, Action: action, IsActive: active}
	f.perms[p.ID] = p
	return p
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	r.UserCount = f.assignments[id]
	return r, nil
}

func (f *fakeRepo) GetPermissions(_ context.Context, roleID uuid.UUID) ([]permissions.Permission, error) {
	perms := make([]permissions.Permission, 0)
	for _, pid := range f.links[roleID] {
		if p, ok := f.perms[pid]; ok && p.IsActive {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

func (f *fakeRepo) FindByNameFold(_ context.Context, nameFold string, exclude uuid.UUID) (uuid.UUID, bool, error) {
	for id, r := range f.roles {
		if id != exclude && NameFold(r.Name) == nameFold {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeRepo) List(_ context.Context, _ ListFilter) ([]Role, int, error) {
	list := make([]Role, 0, len(f.roles))
	for _, r := range f.roles {
		list = append(list, r)
	}
	return list, len(list), nil
}

func (f *fakeRepo) ListSummariesActive(_ context.Context) ([]Summary, error) {
	var list []Summary
	for _, r := range f.roles {
		if r.IsActive {
			list = append(list, Summary{ID: r.ID, Name: r.Name, ParentRoleID: r.ParentRoleID})
		}
	}
	return list, nil
}

func (f *fakeRepo) ListActive(_ context.Context) ([]Role, error) {
	var list []Role
	for _, r := range f.roles {
		if r.IsActive {
			list = append(list, r)
		}
	}
	return list, nil
}

func (f *fakeRepo) Insert(_ context.Context, role Role, permissionIDs []uuid.UUID) (Role, error) {
	for _, r := range f.roles {
		if NameFold(r.Name) == NameFold(role.Name) {
			return Role{}, shared.ErrConflict
		}
	}
	f.roles[role.ID] = role
	f.links[role.ID] = append([]uuid.UUID(nil), permissionIDs...)
	return role, nil
}

func (f *fakeRepo) Update(_ context.Context, role Role, permissionIDs *[]uuid.UUID) (Role, error) {
	if _, ok := f.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	f.roles[role.ID] = role
	if permissionIDs != nil {
		f.links[role.ID] = append([]uuid.UUID(nil), (*permissionIDs)...)
	}
	return role, nil
}

func (f *fakeRepo) UpdateHierarchyLevel(_ context.Context, id uuid.UUID, level int) error {
	r, ok := f.roles[id]
	if !ok {
		return shared.ErrNotFound
	}
	r.HierarchyLevel = level
	f.roles[id] = r
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.roles, id)
	delete(f.links, id)
	return nil
}

func (f *fakeRepo) CountActiveChildren(_ context.Context, id uuid.UUID) (int, error) {
	count := 0
	for _, r := range f.roles {
		if r.IsActive && r.ParentRoleID != nil && *r.ParentRoleID == id {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) CountActiveAssignments(_ context.Context, id uuid.UUID) (int, error) {
	return f.assignments[id], nil
}

func (f *fakeRepo) CountActivePermissions(_ context.Context, ids []uuid.UUID) (int, error) {
	count := 0
	for _, id := range ids {
		if p, ok := f.perms[id]; ok && p.IsActive {
			count++
		}
	}
	return count, nil
}

type fakeInvalidator struct {
	roleIDs []uuid.UUID
}

func (f *fakeInvalidator) InvalidateRole(_ context.Context, roleID uuid.UUID) error {
	f.roleIDs = append(f.roleIDs, roleID)
	return nil
}

func newRoleService(repo *fakeRepo) (*Service, *fakeInvalidator) {
	inv := &fakeInvalidator{}
	return NewService(repo, inv, nil, nil), inv
}

func TestCreateRole(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()

	parent := repo.addRole(Role{Name: "manager", HierarchyLevel: 1, IsActive: true})
	perm := repo.addPermission("documents", "read", true)

	created, err := svc.Create(ctx, CreateInput{
		Name:          "Team Lead",
		ParentRoleID:  &parent.ID,
		PermissionIDs: []uuid.UUID{perm.ID},
	}, uuid.New())
	require.NoError(t, err)
	require.Equal(t, "Team Lead", created.Name)
	require.Equal(t, 2, created.HierarchyLevel)
	require.Equal(t, "general", created.Category)
	require.True(t, created.IsActive)
	require.False(t, created.IsSystemRole)
	require.Len(t, created.Permissions, 1)
}

func TestCreateRoleValidation(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()
	repo.addRole(Role{Name: "Admin", IsActive: true})

	_, err := svc.Create(ctx, CreateInput{Name: "   "}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidRequest)

	_, err = svc.Create(ctx, CreateInput{Name: "admin"}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrConflict)

	missing := uuid.New()
	_, err = svc.Create(ctx, CreateInput{Name: "staff", ParentRoleID: &missing}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrNotFound)

	inactive := repo.addPermission("documents", "purge", false)
	_, err = svc.Create(ctx, CreateInput{Name: "staff", PermissionIDs: []uuid.UUID{inactive.ID}}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidRequest)
}

func TestUpdateRoleSystemGuards(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()
	system := repo.addRole(Role{Name: "super-admin", Category: "system", IsSystemRole: true, IsActive: true})

	name := "root"
	_, err := svc.Update(ctx, system.ID, UpdateInput{Name: &name}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	category := "custom"
	_, err = svc.Update(ctx, system.ID, UpdateInput{Category: &category}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Deactivation of a system role is allowed.
	inactive := false
	updated, err := svc.Update(ctx, system.ID, UpdateInput{IsActive: &inactive}, uuid.Nil)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestRoleNameFoldUnicode(t *testing.T) {
	// Case folding, not lowercasing: the eszett folds to "ss", so these
	// two spellings are the same name.
	require.Equal(t, NameFold("Straße"), NameFold("STRASSE"))

	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	repo.addRole(Role{Name: "Straße", IsActive: true})

	_, err := svc.Create(context.Background(), CreateInput{Name: "STRASSE"}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateRoleNameConflict(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()
	repo.addRole(Role{Name: "Admin", IsActive: true})
	other := repo.addRole(Role{Name: "Editor", IsActive: true})

	name := "ADMIN"
	_, err := svc.Update(ctx, other.ID, UpdateInput{Name: &name}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateRoleCycleRejectedAndHierarchyUnchanged(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()

	root := repo.addRole(Role{Name: "root", IsActive: true})
	mid := repo.addRole(Role{Name: "mid", ParentRoleID: &root.ID, HierarchyLevel: 1, IsActive: true})
	leaf := repo.addRole(Role{Name: "leaf", ParentRoleID: &mid.ID, HierarchyLevel: 2, IsActive: true})

	_, err := svc.Update(ctx, root.ID, UpdateInput{ParentSet: true, ParentRoleID: &leaf.ID}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidRequest)

	_, err = svc.Update(ctx, mid.ID, UpdateInput{ParentSet: true, ParentRoleID: &mid.ID}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidRequest)

	got, err := svc.GetByID(ctx, root.ID)
	require.NoError(t, err)
	require.Nil(t, got.ParentRoleID)
	require.Zero(t, got.HierarchyLevel)
}

func TestUpdateRoleReparentRecomputesLevels(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()

	rootA := repo.addRole(Role{Name: "root-a", IsActive: true})
	rootB := repo.addRole(Role{Name: "root-b", IsActive: true})
	mid := repo.addRole(Role{Name: "mid", ParentRoleID: &rootB.ID, HierarchyLevel: 1, IsActive: true})
	leaf := repo.addRole(Role{Name: "leaf", ParentRoleID: &mid.ID, HierarchyLevel: 2, IsActive: true})

	// Hang root-b (and its subtree) under root-a.
	updated, err := svc.Update(ctx, rootB.ID, UpdateInput{ParentSet: true, ParentRoleID: &rootA.ID}, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 1, updated.HierarchyLevel)

	gotMid, err := svc.GetByID(ctx, mid.ID)
	require.NoError(t, err)
	require.Equal(t, 2, gotMid.HierarchyLevel)
	gotLeaf, err := svc.GetByID(ctx, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, 3, gotLeaf.HierarchyLevel)

	// Detach again, everything shifts back down.
	updated, err = svc.Update(ctx, rootB.ID, UpdateInput{ParentSet: true}, uuid.Nil)
	require.NoError(t, err)
	require.Zero(t, updated.HierarchyLevel)
	gotLeaf, err = svc.GetByID(ctx, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, 2, gotLeaf.HierarchyLevel)
}

func TestUpdateRolePermissionReplacementInvalidates(t *testing.T) {
	repo := newFakeRepo()
	svc, inv := newRoleService(repo)
	ctx := context.Background()

	role := repo.addRole(Role{Name: "editor", IsActive: true})
	p1 := repo.addPermission("documents", "read", true)
	p2 := repo.addPermission("documents", "write", true)

	perms := []uuid.UUID{p1.ID, p2.ID, p1.ID}
	updated, err := svc.Update(ctx, role.ID, UpdateInput{PermissionIDs: &perms}, uuid.Nil)
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 2)
	require.Equal(t, []uuid.UUID{role.ID}, inv.roleIDs)

	// A rename alone does not touch the cache.
	inv.roleIDs = nil
	name := "writer"
	_, err = svc.Update(ctx, role.ID, UpdateInput{Name: &name}, uuid.Nil)
	require.NoError(t, err)
	require.Empty(t, inv.roleIDs)
}

func TestDeleteRoleGuards(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()

	require.ErrorIs(t, svc.Delete(ctx, uuid.New(), uuid.Nil), shared.ErrNotFound)

	system := repo.addRole(Role{Name: "super-admin", IsSystemRole: true, IsActive: true})
	require.ErrorIs(t, svc.Delete(ctx, system.ID, uuid.Nil), shared.ErrForbidden)

	parent := repo.addRole(Role{Name: "parent", IsActive: true})
	child := repo.addRole(Role{Name: "child", ParentRoleID: &parent.ID, HierarchyLevel: 1, IsActive: true})
	require.ErrorIs(t, svc.Delete(ctx, parent.ID, uuid.Nil), shared.ErrInvalidRequest)

	// Deactivating the child lifts the guard.
	inactive := false
	_, err := svc.Update(ctx, child.ID, UpdateInput{IsActive: &inactive}, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, parent.ID, uuid.Nil))

	assigned := repo.addRole(Role{Name: "assigned", IsActive: true})
	repo.assignments[assigned.ID] = 2
	require.ErrorIs(t, svc.Delete(ctx, assigned.ID, uuid.Nil), shared.ErrInvalidRequest)
}

func TestBulkUpdateRoles(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()

	system := repo.addRole(Role{Name: "super-admin", IsSystemRole: true, IsActive: true})
	custom := repo.addRole(Role{Name: "custom", IsActive: true})

	_, err := svc.BulkUpdate(ctx, []uuid.UUID{custom.ID, uuid.New()}, UpdateInput{}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrNotFound)

	category := "ops"
	result, err := svc.BulkUpdate(ctx, []uuid.UUID{custom.ID, system.ID}, UpdateInput{Category: &category}, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 1, result.ErrorCount)
	require.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Errors, 1)
	require.Equal(t, system.ID.String(), result.Errors[0].ID)
}

func TestHierarchy(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newRoleService(repo)
	ctx := context.Background()

	root := repo.addRole(Role{Name: "root", IsActive: true})
	repo.addRole(Role{Name: "child", ParentRoleID: &root.ID, HierarchyLevel: 1, IsActive: true})
	repo.addRole(Role{Name: "hidden", IsActive: false})

	tree, err := svc.Hierarchy(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Equal(t, "root", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
}
