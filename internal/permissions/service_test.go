package permissions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegisx-platform/authz/internal/shared"
)

type fakeRepo struct {
	perms map[uuid.UUID]Permission
	roles map[uuid.UUID][]uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{perms: map[uuid.UUID]Permission{}, roles: map[uuid.UUID][]uuid.UUID{}}
}

func (f *fakeRepo) add(p Permission) Permission {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.perms[p.ID] = p
	return p
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (Permission, error) {
	p, ok := f.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (f *fakeRepo) FindByResourceAction(_ context.Context, resource, action string, exclude uuid.UUID) (uuid.UUID, bool, error) {
	for id, p := range f.perms {
		if id != exclude && p.Resource == resource && p.Action == action {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeRepo) List(_ context.Context, _ ListFilter) ([]Permission, int, error) {
	list := make([]Permission, 0, len(f.perms))
	for _, p := range f.perms {
		list = append(list, p)
	}
	return list, len(list), nil
}

func (f *fakeRepo) ListActive(_ context.Context) ([]Permission, error) {
	var list []Permission
	for _, p := range f.perms {
		if p.IsActive {
			list = append(list, p)
		}
	}
	return list, nil
}

func (f *fakeRepo) Insert(_ context.Context, p Permission) (Permission, error) {
	f.perms[p.ID] = p
	return p, nil
}

func (f *fakeRepo) Update(_ context.Context, p Permission) (Permission, error) {
	if _, ok := f.perms[p.ID]; !ok {
		return Permission{}, shared.ErrNotFound
	}
	f.perms[p.ID] = p
	return p, nil
}

func (f *fakeRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.perms, id)
	return nil
}

func (f *fakeRepo) RoleIDsFor(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), f.roles[id]...), nil
}

type fakeInvalidator struct {
	roleIDs []uuid.UUID
}

func (f *fakeInvalidator) InvalidateRole(_ context.Context, roleID uuid.UUID) error {
	f.roleIDs = append(f.roleIDs, roleID)
	return nil
}

func newPermissionService(repo *fakeRepo) (*Service, *fakeInvalidator) {
	inv := &fakeInvalidator{}
	return NewService(repo, inv, nil, nil), inv
}

func TestCreatePermission(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newPermissionService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		Resource:   " documents ",
		Action:     "read",
		Conditions: json.RawMessage(`{"own_only":true}`),
	}, uuid.New())
	require.NoError(t, err)
	require.Equal(t, "documents", created.Resource)
	require.Equal(t, "documents:read", created.Key())
	require.Equal(t, "general", created.Category)
	require.True(t, created.IsActive)
	require.JSONEq(t, `{"own_only":true}`, string(created.Conditions))

	_, err = svc.Create(ctx, CreateInput{Resource: "documents", Action: "read"}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Create(ctx, CreateInput{Resource: "documents"}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrInvalidRequest)
}

func TestUpdatePermissionSystemGuards(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newPermissionService(repo)
	ctx := context.Background()
	system := repo.add(Permission{Resource: "rbac", Action: "read", IsSystemPermission: true, IsActive: true})

	resource := "other"
	_, err := svc.Update(ctx, system.ID, UpdateInput{Resource: &resource}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	action := "write"
	_, err = svc.Update(ctx, system.ID, UpdateInput{Action: &action}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Description edits and deactivation stay allowed.
	desc := "engine internals"
	inactive := false
	updated, err := svc.Update(ctx, system.ID, UpdateInput{Description: &desc, IsActive: &inactive}, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, "engine internals", updated.Description)
	require.False(t, updated.IsActive)
}

func TestUpdatePermissionPairConflict(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newPermissionService(repo)
	ctx := context.Background()
	repo.add(Permission{Resource: "documents", Action: "read", IsActive: true})
	other := repo.add(Permission{Resource: "documents", Action: "write", IsActive: true})

	action := "read"
	_, err := svc.Update(ctx, other.ID, UpdateInput{Action: &action}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrConflict)

	// Re-sending the current pair is not a conflict.
	same := "write"
	_, err = svc.Update(ctx, other.ID, UpdateInput{Action: &same}, uuid.Nil)
	require.NoError(t, err)
}

func TestUpdatePermissionConditionsTriState(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newPermissionService(repo)
	ctx := context.Background()
	p := repo.add(Permission{Resource: "documents", Action: "read", IsActive: true, Conditions: json.RawMessage(`{"own_only":true}`)})

	// Absent conditions leave the stored payload alone.
	desc := "doc read"
	updated, err := svc.Update(ctx, p.ID, UpdateInput{Description: &desc}, uuid.Nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"own_only":true}`, string(updated.Conditions))

	// Replacing stores the new payload verbatim.
	updated, err = svc.Update(ctx, p.ID, UpdateInput{ConditionsSet: true, Conditions: json.RawMessage(`{"max":5}`)}, uuid.Nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"max":5}`, string(updated.Conditions))

	// ConditionsSet with a nil payload clears.
	updated, err = svc.Update(ctx, p.ID, UpdateInput{ConditionsSet: true}, uuid.Nil)
	require.NoError(t, err)
	require.Nil(t, updated.Conditions)
}

func TestUpdatePermissionInvalidation(t *testing.T) {
	repo := newFakeRepo()
	svc, inv := newPermissionService(repo)
	ctx := context.Background()
	p := repo.add(Permission{Resource: "documents", Action: "read", IsActive: true})
	r1, r2 := uuid.New(), uuid.New()
	repo.roles[p.ID] = []uuid.UUID{r1, r2}

	// Description edits leave caches alone.
	desc := "doc read"
	_, err := svc.Update(ctx, p.ID, UpdateInput{Description: &desc}, uuid.Nil)
	require.NoError(t, err)
	require.Empty(t, inv.roleIDs)

	// Deactivation fans out to every linked role.
	inactive := false
	_, err = svc.Update(ctx, p.ID, UpdateInput{IsActive: &inactive}, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{r1, r2}, inv.roleIDs)

	// Renaming the resource does too.
	inv.roleIDs = nil
	resource := "files"
	_, err = svc.Update(ctx, p.ID, UpdateInput{Resource: &resource}, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{r1, r2}, inv.roleIDs)
}

func TestDeletePermission(t *testing.T) {
	repo := newFakeRepo()
	svc, inv := newPermissionService(repo)
	ctx := context.Background()

	require.ErrorIs(t, svc.Delete(ctx, uuid.New(), uuid.Nil), shared.ErrNotFound)

	system := repo.add(Permission{Resource: "rbac", Action: "read", IsSystemPermission: true, IsActive: true})
	require.ErrorIs(t, svc.Delete(ctx, system.ID, uuid.Nil), shared.ErrForbidden)

	p := repo.add(Permission{Resource: "documents", Action: "read", IsActive: true})
	roleID := uuid.New()
	repo.roles[p.ID] = []uuid.UUID{roleID}

	require.NoError(t, svc.Delete(ctx, p.ID, uuid.Nil))
	_, err := svc.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, []uuid.UUID{roleID}, inv.roleIDs)
}

func TestByCategory(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newPermissionService(repo)
	ctx := context.Background()
	repo.add(Permission{Resource: "documents", Action: "read", Category: "content", IsActive: true})
	repo.add(Permission{Resource: "documents", Action: "write", Category: "content", IsActive: true})
	repo.add(Permission{Resource: "reports", Action: "read", Category: "reporting", IsActive: true})
	repo.add(Permission{Resource: "reports", Action: "export", Category: "reporting", IsActive: false})

	grouped, err := svc.ByCategory(ctx)
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	require.Len(t, grouped["content"], 2)
	require.Len(t, grouped["reporting"], 1)
}

func TestBulkUpdatePermissions(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newPermissionService(repo)
	ctx := context.Background()
	system := repo.add(Permission{Resource: "rbac", Action: "read", IsSystemPermission: true, IsActive: true})
	custom := repo.add(Permission{Resource: "documents", Action: "read", IsActive: true})

	_, err := svc.BulkUpdate(ctx, []uuid.UUID{custom.ID, uuid.New()}, UpdateInput{}, uuid.Nil)
	require.ErrorIs(t, err, shared.ErrNotFound)

	resource := "files"
	result, err := svc.BulkUpdate(ctx, []uuid.UUID{custom.ID, system.ID}, UpdateInput{Resource: &resource}, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.SuccessCount)
	require.Equal(t, 1, result.ErrorCount)
	require.Equal(t, 2, result.TotalCount)
	require.Len(t, result.Errors, 1)
	require.Equal(t, system.ID.String(), result.Errors[0].ID)
}
