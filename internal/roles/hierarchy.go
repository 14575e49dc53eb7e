package roles

import "github.com/google/uuid"

// wouldCreateCycle reports whether making parentID the parent of the
// role named roleName (roleID, or uuid.Nil during creation) would bend
// the hierarchy back on itself. Two walks over one parent->children
// adjacency map built from the full active role set, so the whole check
// is O(number of roles):
//
//  1. down from parentID, matching by name: finds the role inside the
//     candidate parent's subtree, i.e. the parent is already one of the
//     role's ancestors. Name matching covers creation, where the role
//     row does not exist yet.
//  2. down from roleID, matching the parent's id: finds the candidate
//     parent inside the role's own subtree, which would make the role
//     an ancestor of its own ancestor.
//
// The visited set guards against pre-existing corruption in the stored
// hierarchy.
func wouldCreateCycle(all []Summary, parentID uuid.UUID, roleName string, roleID uuid.UUID) bool {
	if parentID == roleID {
		return true
	}
	children := make(map[uuid.UUID][]uuid.UUID, len(all))
	byID := make(map[uuid.UUID]Summary, len(all))
	for _, s := range all {
		byID[s.ID] = s
		if s.ParentRoleID != nil {
			children[*s.ParentRoleID] = append(children[*s.ParentRoleID], s.ID)
		}
	}

	walk := func(from uuid.UUID, match func(Summary) bool) bool {
		visited := make(map[uuid.UUID]struct{}, len(all))
		var descend func(id uuid.UUID) bool
		descend = func(id uuid.UUID) bool {
			if _, seen := visited[id]; seen {
				return false
			}
			visited[id] = struct{}{}

			current, ok := byID[id]
			if !ok {
				return false
			}
			if match(current) {
				return true
			}
			for _, childID := range children[id] {
				if descend(childID) {
					return true
				}
			}
			return false
		}
		return descend(from)
	}

	if walk(parentID, func(s Summary) bool { return s.Name == roleName && s.ID != parentID }) {
		return true
	}
	if roleID != uuid.Nil && walk(roleID, func(s Summary) bool { return s.ID == parentID }) {
		return true
	}
	return false
}

// buildTree assembles the role hierarchy from a flat role list. Roles whose
// parent is missing from the input are treated as roots.
func buildTree(list []Role) []*Node {
	nodes := make(map[uuid.UUID]*Node, len(list))
	for _, r := range list {
		nodes[r.ID] = &Node{Role: r, Children: []*Node{}}
	}
	var roots []*Node
	for _, r := range list {
		node := nodes[r.ID]
		if r.ParentRoleID != nil {
			if parent, ok := nodes[*r.ParentRoleID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
