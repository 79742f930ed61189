package nodestore

import (
	"fmt"

	"github.com/loom-engine/loom/pkg/types"
)

// CheckInvariants verifies the structural invariants every committed
// mutation must preserve. It is used by property tests over random
// operation sequences, not on the hot path.
func CheckInvariants(session *types.Session) error {
	root, ok := session.Nodes[session.RootNodeID]
	if !ok {
		return errf("root_node_id %q not present in nodes", session.RootNodeID)
	}
	if root.ParentID != "" {
		return errf("root node %q has a parent_id", root.ID)
	}

	for id, n := range session.Nodes {
		if n.ID != id {
			return errf("node stored under key %q has id %q", id, n.ID)
		}
		seen := map[string]bool{}
		for _, c := range n.ChildrenIDs {
			if seen[c] {
				return errf("node %q lists child %q more than once", id, c)
			}
			seen[c] = true
			child, ok := session.Nodes[c]
			if !ok {
				return errf("node %q lists missing child %q", id, c)
			}
			if child.ParentID != id {
				return errf("child %q of %q does not point back (parent_id=%q)", c, id, child.ParentID)
			}
		}
		if id != session.RootNodeID {
			parent, ok := session.Nodes[n.ParentID]
			if !ok {
				return errf("node %q has missing parent %q", id, n.ParentID)
			}
			count := 0
			for _, c := range parent.ChildrenIDs {
				if c == id {
					count++
				}
			}
			if count != 1 {
				return errf("node %q appears %d times in parent %q's children", id, count, n.ParentID)
			}
		}
	}

	if err := checkAcyclic(session); err != nil {
		return err
	}

	if _, ok := session.Nodes[session.ActiveLeafID]; !ok {
		return errf("active_leaf_id %q not present in nodes", session.ActiveLeafID)
	}

	return nil
}

func checkAcyclic(session *types.Session) error {
	for id := range session.Nodes {
		seen := map[string]bool{}
		current := id
		for current != "" {
			if seen[current] {
				return errf("cycle detected walking parent chain from %q", id)
			}
			seen[current] = true
			n, ok := session.Nodes[current]
			if !ok {
				return errf("dangling parent reference while walking from %q", id)
			}
			current = n.ParentID
		}
	}
	return nil
}

func errf(format string, args ...any) error {
	return &invariantError{msg: fmt.Sprintf(format, args...)}
}

type invariantError struct{ msg string }

func (e *invariantError) Error() string { return e.msg }
