package nodestore

import (
	"fmt"

	"github.com/loom-engine/loom/pkg/types"
)

// Store owns the Node arena for a single Session and performs every
// structural mutation atomically: a call either commits a fully valid
// session or leaves the session untouched.
type Store struct {
	session *types.Session
	idGen   func() string
	clock   func() int64
}

// New wraps an existing Session. idGen mints node ids (ulid.Make().String
// in production); clock returns the current unix-millis timestamp.
func New(session *types.Session, idGen func() string, clock func() int64) *Store {
	return &Store{session: session, idGen: idGen, clock: clock}
}

// Session returns the wrapped session. Callers must not mutate Nodes
// directly; all structural changes go through the Store's methods.
func (s *Store) Session() *types.Session { return s.session }

// ContentUpdate lists the fields update_content may replace; role,
// parent_id and id are immutable by construction — they simply have no
// setter here.
type ContentUpdate struct {
	Content     *string
	Attachments []types.Asset
	Status      *types.Status
	Metadata    *types.NodeMetadata
}

// NodeFields supplies the mutable content of a newly created node.
type NodeFields struct {
	Role        types.Role
	Content     string
	Attachments []types.Asset
	Status      types.Status
	Type        types.NodeType
	Metadata    types.NodeMetadata
}

// CreateChild appends a new node as the rightmost child of parentID.
func (s *Store) CreateChild(parentID string, fields NodeFields) (*types.Node, types.RelationChange, error) {
	parent, ok := s.session.Nodes[parentID]
	if !ok {
		return nil, types.RelationChange{}, fmt.Errorf("create_child: parent %q: %w", parentID, types.ErrNodeNotFound)
	}

	status := fields.Status
	if status == "" {
		status = types.StatusComplete
	}
	nodeType := fields.Type
	if nodeType == "" {
		nodeType = types.NodeTypeMessage
	}

	node := &types.Node{
		ID:          s.idGen(),
		ParentID:    parentID,
		ChildrenIDs: []string{},
		Role:        fields.Role,
		Content:     fields.Content,
		Attachments: fields.Attachments,
		Status:      status,
		IsEnabled:   true,
		Type:        nodeType,
		Timestamp:   s.clock(),
		Metadata:    fields.Metadata,
	}

	oldChildren := append([]string(nil), parent.ChildrenIDs...)
	parent.ChildrenIDs = append(parent.ChildrenIDs, node.ID)
	s.session.Nodes[node.ID] = node

	rel := types.RelationChange{
		NodeID:      node.ID,
		NewParentID: parentID,
		AffectedParents: map[string]types.ChildrenDelta{
			parentID: {OldChildren: oldChildren, NewChildren: append([]string(nil), parent.ChildrenIDs...)},
		},
	}
	return node, rel, nil
}

// UpdateContent atomically replaces the mutable fields of an existing node
// and returns deep copies of its previous and final state for the history
// log's Update delta.
func (s *Store) UpdateContent(nodeID string, update ContentUpdate) (previous, final *types.Node, err error) {
	node, ok := s.session.Nodes[nodeID]
	if !ok {
		return nil, nil, fmt.Errorf("update_content: node %q: %w", nodeID, types.ErrNodeNotFound)
	}

	previous = node.Clone()

	if update.Content != nil {
		node.Content = *update.Content
	}
	if update.Attachments != nil {
		node.Attachments = update.Attachments
	}
	if update.Status != nil {
		node.Status = *update.Status
	}
	if update.Metadata != nil {
		node.Metadata = *update.Metadata
	}

	return previous, node.Clone(), nil
}

// Detach removes nodeID from its parent's children list, leaving nodeID
// itself (and its subtree) in the arena but parentless until a subsequent
// Attach.
func (s *Store) Detach(nodeID string) (types.RelationChange, error) {
	node, ok := s.session.Nodes[nodeID]
	if !ok {
		return types.RelationChange{}, fmt.Errorf("detach: node %q: %w", nodeID, types.ErrNodeNotFound)
	}
	if nodeID == s.session.RootNodeID {
		return types.RelationChange{}, fmt.Errorf("detach: %w: cannot detach the root node", types.ErrInvalidMutation)
	}

	oldParentID := node.ParentID
	parent, ok := s.session.Nodes[oldParentID]
	if !ok {
		return types.RelationChange{}, fmt.Errorf("detach: parent %q of %q: %w", oldParentID, nodeID, types.ErrNodeNotFound)
	}

	oldChildren := append([]string(nil), parent.ChildrenIDs...)
	parent.ChildrenIDs = removeID(parent.ChildrenIDs, nodeID)
	node.ParentID = ""

	return types.RelationChange{
		NodeID:      nodeID,
		OldParentID: oldParentID,
		AffectedParents: map[string]types.ChildrenDelta{
			oldParentID: {OldChildren: oldChildren, NewChildren: append([]string(nil), parent.ChildrenIDs...)},
		},
	}, nil
}

// Attach inserts a detached nodeID into newParentID's children at index (or
// at the end when index < 0), after verifying the move would not create a
// cycle.
func (s *Store) Attach(nodeID, newParentID string, index int) (types.RelationChange, error) {
	node, ok := s.session.Nodes[nodeID]
	if !ok {
		return types.RelationChange{}, fmt.Errorf("attach: node %q: %w", nodeID, types.ErrNodeNotFound)
	}
	newParent, ok := s.session.Nodes[newParentID]
	if !ok {
		return types.RelationChange{}, fmt.Errorf("attach: new parent %q: %w", newParentID, types.ErrNodeNotFound)
	}
	if s.wouldCycle(newParentID, nodeID) {
		return types.RelationChange{}, fmt.Errorf("attach %q under %q: %w", nodeID, newParentID, types.ErrCycleWouldBeCreated)
	}

	oldChildren := append([]string(nil), newParent.ChildrenIDs...)
	if index < 0 || index >= len(newParent.ChildrenIDs) {
		newParent.ChildrenIDs = append(newParent.ChildrenIDs, nodeID)
	} else {
		newParent.ChildrenIDs = append(newParent.ChildrenIDs[:index:index],
			append([]string{nodeID}, newParent.ChildrenIDs[index:]...)...)
	}
	oldParentID := node.ParentID
	node.ParentID = newParentID

	return types.RelationChange{
		NodeID:      nodeID,
		OldParentID: oldParentID,
		NewParentID: newParentID,
		AffectedParents: map[string]types.ChildrenDelta{
			newParentID: {OldChildren: oldChildren, NewChildren: append([]string(nil), newParent.ChildrenIDs...)},
		},
	}, nil
}

// wouldCycle reports whether walking the parent chain from candidateParent
// would ever reach nodeID — i.e. nodeID is an ancestor of candidateParent.
func (s *Store) wouldCycle(candidateParent, nodeID string) bool {
	current := candidateParent
	seen := map[string]bool{}
	for current != "" {
		if current == nodeID {
			return true
		}
		if seen[current] {
			return false // already-cyclic data defensively stops here
		}
		seen[current] = true
		n, ok := s.session.Nodes[current]
		if !ok {
			return false
		}
		current = n.ParentID
	}
	return false
}

// DeleteSubtree removes nodeID and every descendant from the arena,
// returning the removed nodes in pre-order plus the RelationChange for the
// edge that connected the subtree to the rest of the tree.
func (s *Store) DeleteSubtree(nodeID string) ([]*types.Node, types.RelationChange, error) {
	node, ok := s.session.Nodes[nodeID]
	if !ok {
		return nil, types.RelationChange{}, fmt.Errorf("delete_subtree: node %q: %w", nodeID, types.ErrNodeNotFound)
	}
	if nodeID == s.session.RootNodeID {
		return nil, types.RelationChange{}, fmt.Errorf("delete_subtree: %w: cannot delete the root node", types.ErrInvalidMutation)
	}

	oldParentID := node.ParentID
	parent := s.session.Nodes[oldParentID]
	var oldChildren, newChildren []string
	if parent != nil {
		oldChildren = append([]string(nil), parent.ChildrenIDs...)
	}

	var removed []*types.Node
	var walk func(id string)
	walk = func(id string) {
		n, ok := s.session.Nodes[id]
		if !ok {
			return
		}
		removed = append(removed, n.Clone())
		children := append([]string(nil), n.ChildrenIDs...)
		for _, c := range children {
			walk(c)
		}
		delete(s.session.Nodes, id)
	}
	walk(nodeID)

	if parent != nil {
		parent.ChildrenIDs = removeID(parent.ChildrenIDs, nodeID)
		newChildren = append([]string(nil), parent.ChildrenIDs...)
	}

	rel := types.RelationChange{
		NodeID:      nodeID,
		OldParentID: oldParentID,
		AffectedParents: map[string]types.ChildrenDelta{
			oldParentID: {OldChildren: oldChildren, NewChildren: newChildren},
		},
	}
	return removed, rel, nil
}

// SetEnabled toggles is_enabled and returns the node's state before and
// after, for the history log's Update delta.
func (s *Store) SetEnabled(nodeID string, value bool) (previous, final *types.Node, err error) {
	node, ok := s.session.Nodes[nodeID]
	if !ok {
		return nil, nil, fmt.Errorf("set_enabled: node %q: %w", nodeID, types.ErrNodeNotFound)
	}
	previous = node.Clone()
	node.IsEnabled = value
	return previous, node.Clone(), nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
