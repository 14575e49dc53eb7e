package roles

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWouldCreateCycle(t *testing.T) {
	root := Summary{ID: uuid.New(), Name: "root"}
	grandparent := Summary{ID: uuid.New(), Name: "grandparent", ParentRoleID: &root.ID}
	parent := Summary{ID: uuid.New(), Name: "parent", ParentRoleID: &grandparent.ID}
	role := Summary{ID: uuid.New(), Name: "role", ParentRoleID: &parent.ID}
	child := Summary{ID: uuid.New(), Name: "child", ParentRoleID: &role.ID}
	sibling := Summary{ID: uuid.New(), Name: "sibling", ParentRoleID: &root.ID}
	all := []Summary{root, grandparent, parent, role, child, sibling}

	t.Run("reparent to ancestor rejected", func(t *testing.T) {
		require.True(t, wouldCreateCycle(all, grandparent.ID, role.Name, role.ID))
		require.True(t, wouldCreateCycle(all, root.ID, role.Name, role.ID))
	})

	t.Run("reparent to own descendant rejected", func(t *testing.T) {
		require.True(t, wouldCreateCycle(all, child.ID, role.Name, role.ID))
	})

	t.Run("self parent rejected", func(t *testing.T) {
		require.True(t, wouldCreateCycle(all, role.ID, role.Name, role.ID))
	})

	t.Run("unrelated branch allowed", func(t *testing.T) {
		require.False(t, wouldCreateCycle(all, sibling.ID, role.Name, role.ID))
	})

	t.Run("creation under any existing role allowed", func(t *testing.T) {
		require.False(t, wouldCreateCycle(all, parent.ID, "brand-new", uuid.Nil))
		require.False(t, wouldCreateCycle(all, child.ID, "brand-new", uuid.Nil))
	})
}

func TestWouldCreateCycleSurvivesCorruptHierarchy(t *testing.T) {
	// a and b already point at each other; the visited set must keep the
	// walk from looping forever.
	a := Summary{ID: uuid.New(), Name: "a"}
	b := Summary{ID: uuid.New(), Name: "b", ParentRoleID: &a.ID}
	a.ParentRoleID = &b.ID
	all := []Summary{a, b}

	require.True(t, wouldCreateCycle(all, b.ID, "a", a.ID))
	require.False(t, wouldCreateCycle(all, b.ID, "c", uuid.Nil))
}

func TestBuildTree(t *testing.T) {
	root := Role{ID: uuid.New(), Name: "root"}
	mid := Role{ID: uuid.New(), Name: "mid", ParentRoleID: &root.ID}
	leaf := Role{ID: uuid.New(), Name: "leaf", ParentRoleID: &mid.ID}
	orphanParent := uuid.New()
	orphan := Role{ID: uuid.New(), Name: "orphan", ParentRoleID: &orphanParent}

	tree := buildTree([]Role{root, mid, leaf, orphan})

	require.Len(t, tree, 2)
	require.Equal(t, "root", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, "mid", tree[0].Children[0].Name)
	require.Len(t, tree[0].Children[0].Children, 1)
	require.Equal(t, "leaf", tree[0].Children[0].Children[0].Name)
	require.Equal(t, "orphan", tree[1].Name)
	require.Empty(t, tree[1].Children)
}
