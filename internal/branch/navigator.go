package branch

import (
	"fmt"

	"github.com/loom-engine/loom/pkg/types"
)

// Direction selects which neighbor SwitchSibling moves to.
type Direction string

const (
	DirPrev Direction = "prev"
	DirNext Direction = "next"
)

// ActivePath walks the parent chain from session.ActiveLeafID to the root
// and returns the nodes root-first, leaf-last.
func ActivePath(session *types.Session) ([]*types.Node, error) {
	node, ok := session.Nodes[session.ActiveLeafID]
	if !ok {
		return nil, fmt.Errorf("active_path: active leaf %q: %w", session.ActiveLeafID, types.ErrNodeNotFound)
	}

	var reversed []*types.Node
	for {
		reversed = append(reversed, node)
		if node.ParentID == "" {
			break
		}
		parent, ok := session.Nodes[node.ParentID]
		if !ok {
			return nil, fmt.Errorf("active_path: missing parent %q of %q: %w", node.ParentID, node.ID, types.ErrNodeNotFound)
		}
		node = parent
	}

	path := make([]*types.Node, len(reversed))
	for i, n := range reversed {
		path[len(reversed)-1-i] = n
	}
	return path, nil
}

// Siblings returns nodeID's parent's children, mapped to Nodes in order.
// The root has no siblings and returns a single-element slice containing
// itself.
func Siblings(session *types.Session, nodeID string) ([]*types.Node, error) {
	node, ok := session.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("siblings: node %q: %w", nodeID, types.ErrNodeNotFound)
	}
	if node.ParentID == "" {
		return []*types.Node{node}, nil
	}
	parent, ok := session.Nodes[node.ParentID]
	if !ok {
		return nil, fmt.Errorf("siblings: missing parent %q of %q: %w", node.ParentID, nodeID, types.ErrNodeNotFound)
	}
	out := make([]*types.Node, 0, len(parent.ChildrenIDs))
	for _, id := range parent.ChildrenIDs {
		if n, ok := session.Nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// SwitchTo makes nodeID's branch active: it records the descent choice on
// every ancestor as it walks up from nodeID to the root, then walks back
// down preferring each node's LastSelectedChildID (falling back to the last
// child) until it reaches a leaf, which becomes the new ActiveLeafID.
func SwitchTo(session *types.Session, nodeID string) error {
	node, ok := session.Nodes[nodeID]
	if !ok {
		return fmt.Errorf("switch_to: node %q: %w", nodeID, types.ErrNodeNotFound)
	}

	child := node
	for child.ParentID != "" {
		parent, ok := session.Nodes[child.ParentID]
		if !ok {
			return fmt.Errorf("switch_to: missing parent %q of %q: %w", child.ParentID, child.ID, types.ErrNodeNotFound)
		}
		parent.LastSelectedChildID = child.ID
		child = parent
	}

	current := node
	for len(current.ChildrenIDs) > 0 {
		next := pickDescent(session, current)
		if next == nil {
			break
		}
		current = next
	}

	session.ActiveLeafID = current.ID
	return nil
}

// pickDescent chooses which child to descend into from node: its
// LastSelectedChildID if that id still names a real child, else the last
// (most recently created) child.
func pickDescent(session *types.Session, node *types.Node) *types.Node {
	if node.LastSelectedChildID != "" {
		for _, id := range node.ChildrenIDs {
			if id == node.LastSelectedChildID {
				if n, ok := session.Nodes[id]; ok {
					return n
				}
				break
			}
		}
	}
	lastID := node.ChildrenIDs[len(node.ChildrenIDs)-1]
	return session.Nodes[lastID]
}

// SwitchSibling moves nodeID's index among its siblings by one in
// direction, saturating at the ends (no wraparound), then activates that
// sibling's branch via SwitchTo.
func SwitchSibling(session *types.Session, nodeID string, direction Direction) error {
	sibs, err := Siblings(session, nodeID)
	if err != nil {
		return err
	}

	idx := -1
	for i, s := range sibs {
		if s.ID == nodeID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("switch_sibling: node %q: %w", nodeID, types.ErrNodeNotFound)
	}

	target := idx
	switch direction {
	case DirPrev:
		if idx > 0 {
			target = idx - 1
		}
	case DirNext:
		if idx < len(sibs)-1 {
			target = idx + 1
		}
	default:
		return fmt.Errorf("switch_sibling: %w: unknown direction %q", types.ErrInvalidMutation, direction)
	}

	return SwitchTo(session, sibs[target].ID)
}

// EnsureValidActiveLeaf repairs session.ActiveLeafID after a structural
// change (e.g. an undo) may have invalidated it: if the id no longer exists
// in Nodes, it is replaced with the deepest descendant of the root reached
// by following each node's LastSelectedChildID / last-child preference.
func EnsureValidActiveLeaf(session *types.Session) error {
	if _, ok := session.Nodes[session.ActiveLeafID]; ok {
		return nil
	}

	root, ok := session.Nodes[session.RootNodeID]
	if !ok {
		return fmt.Errorf("ensure_valid_active_leaf: root %q: %w", session.RootNodeID, types.ErrNodeNotFound)
	}

	current := root
	for len(current.ChildrenIDs) > 0 {
		next := pickDescent(session, current)
		if next == nil {
			break
		}
		current = next
	}
	session.ActiveLeafID = current.ID
	return nil
}
