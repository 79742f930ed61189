package executor

import (
	"context"
	"fmt"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/event"
	"github.com/loom-engine/loom/internal/nodestore"
	"github.com/loom-engine/loom/pkg/types"
)

// EditContent replaces a node's text and attachments, recording the edit.
func (e *Executor) EditContent(ctx context.Context, session *types.Session, nodeID, newText string, newAttachments []types.Asset) error {
	store := e.store(session)
	prev, final, err := store.UpdateContent(nodeID, nodestore.ContentUpdate{
		Content:     &newText,
		Attachments: newAttachments,
	})
	if err != nil {
		return fmt.Errorf("edit_content: %w", err)
	}

	e.log().Record(session, types.ActionUpdateContent, []types.Delta{{
		Kind:          types.DeltaUpdate,
		NodeID:        nodeID,
		PreviousState: prev,
		FinalState:    final,
	}}, "edit content")
	e.publishHistoryChanged(session)
	event.Publish(event.Event{
		Type: event.NodeUpdated,
		Data: event.NodeUpdatedData{SessionID: session.ID, Node: session.Nodes[nodeID]},
	})
	return e.persist(ctx, session)
}

// ToggleEnabled flips a node's enabled flag, recording the change.
func (e *Executor) ToggleEnabled(ctx context.Context, session *types.Session, nodeID string) error {
	node, ok := session.Nodes[nodeID]
	if !ok {
		return fmt.Errorf("toggle_enabled: node %q: %w", nodeID, types.ErrNodeNotFound)
	}

	store := e.store(session)
	prev, final, err := store.SetEnabled(nodeID, !node.IsEnabled)
	if err != nil {
		return fmt.Errorf("toggle_enabled: %w", err)
	}

	e.log().Record(session, types.ActionToggleEnabled, []types.Delta{{
		Kind:          types.DeltaUpdate,
		NodeID:        nodeID,
		PreviousState: prev,
		FinalState:    final,
	}}, "toggle enabled")
	e.publishHistoryChanged(session)
	event.Publish(event.Event{
		Type: event.NodeUpdated,
		Data: event.NodeUpdatedData{SessionID: session.ID, Node: session.Nodes[nodeID]},
	})
	return e.persist(ctx, session)
}

// DeleteSubtree removes a node and its descendants from the tree. The
// history entry captures every removed node, so undo restores the whole
// subtree; the top node's delta carries the edge RelationChange.
func (e *Executor) DeleteSubtree(ctx context.Context, session *types.Session, nodeID string) error {
	store := e.store(session)
	removed, rel, err := store.DeleteSubtree(nodeID)
	if err != nil {
		return fmt.Errorf("delete_subtree: %w", err)
	}

	deltas := make([]types.Delta, 0, len(removed))
	for i, n := range removed {
		d := types.Delta{Kind: types.DeltaDelete, Node: n}
		if i == 0 {
			relCopy := rel
			d.RelationChange = &relCopy
		}
		deltas = append(deltas, d)
	}
	e.log().Record(session, types.ActionDeleteSubtree, deltas, "delete subtree")
	e.publishHistoryChanged(session)

	if err := branch.EnsureValidActiveLeaf(session); err != nil {
		return fmt.Errorf("delete_subtree: repair active leaf: %w", err)
	}
	e.publishActiveLeafChanged(session)

	ids := make([]string, len(removed))
	for i, n := range removed {
		ids[i] = n.ID
	}
	event.Publish(event.Event{
		Type: event.NodeDeleted,
		Data: event.NodeDeletedData{SessionID: session.ID, NodeIDs: ids},
	})
	return e.persist(ctx, session)
}

// MoveNode grafts a node (and its subtree) under a new parent at index
// (-1 appends). The detach and attach are committed together as one
// recorded relation entry; a rejected attach rolls the detach back so the
// session is never left with an orphan.
func (e *Executor) MoveNode(ctx context.Context, session *types.Session, nodeID, newParentID string, index int) error {
	store := e.store(session)

	detachRel, err := store.Detach(nodeID)
	if err != nil {
		return fmt.Errorf("move_node: %w", err)
	}
	attachRel, err := store.Attach(nodeID, newParentID, index)
	if err != nil {
		// Roll back: reattach where it was.
		oldIndex := indexIn(detachRel.AffectedParents[detachRel.OldParentID].OldChildren, nodeID)
		if _, reErr := store.Attach(nodeID, detachRel.OldParentID, oldIndex); reErr != nil {
			return fmt.Errorf("move_node: %w (rollback also failed: %v)", err, reErr)
		}
		return fmt.Errorf("move_node: %w", err)
	}

	e.log().Record(session, types.ActionMove, []types.Delta{{
		Kind:    types.DeltaRelation,
		Changes: []types.RelationChange{detachRel, attachRel},
	}}, "move node")
	e.publishHistoryChanged(session)
	event.Publish(event.Event{
		Type: event.RelationChanged,
		Data: event.RelationChangedData{SessionID: session.ID, Changes: []types.RelationChange{detachRel, attachRel}},
	})
	return e.persist(ctx, session)
}

func indexIn(ids []string, target string) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}

// CreateBranch duplicates a node as its own next sibling with copied
// content (children are not copied), then switches the active branch to
// the duplicate.
func (e *Executor) CreateBranch(ctx context.Context, session *types.Session, sourceNodeID string) (string, error) {
	source, ok := session.Nodes[sourceNodeID]
	if !ok {
		return "", fmt.Errorf("create_branch: node %q: %w", sourceNodeID, types.ErrNodeNotFound)
	}
	if source.ParentID == "" {
		return "", fmt.Errorf("create_branch: %w: cannot duplicate the root node", types.ErrInvalidMutation)
	}

	store := e.store(session)
	dup, rel, err := store.CreateChild(source.ParentID, nodestore.NodeFields{
		Role:        source.Role,
		Content:     source.Content,
		Attachments: append([]types.Asset(nil), source.Attachments...),
		Status:      source.Status,
		Type:        source.Type,
		Metadata:    source.Clone().Metadata,
	})
	if err != nil {
		return "", fmt.Errorf("create_branch: %w", err)
	}

	e.log().Record(session, types.ActionBranchDuplicate, []types.Delta{{
		Kind:           types.DeltaCreate,
		Node:           dup.Clone(),
		RelationChange: &rel,
	}}, "duplicate branch")
	e.publishHistoryChanged(session)
	event.Publish(event.Event{
		Type: event.NodeCreated,
		Data: event.NodeCreatedData{SessionID: session.ID, Node: dup},
	})

	if err := branch.SwitchTo(session, dup.ID); err != nil {
		return "", fmt.Errorf("create_branch: switch to duplicate: %w", err)
	}
	e.publishActiveLeafChanged(session)
	return dup.ID, e.persist(ctx, session)
}

// SwitchActiveLeaf moves the active branch to pass through nodeID.
// Navigation is not an edit: nothing is recorded.
func (e *Executor) SwitchActiveLeaf(ctx context.Context, session *types.Session, nodeID string) error {
	if err := branch.SwitchTo(session, nodeID); err != nil {
		return fmt.Errorf("switch_active_leaf: %w", err)
	}
	e.publishActiveLeafChanged(session)
	return e.persist(ctx, session)
}

// SwitchSibling moves the active branch to nodeID's previous or next
// sibling, saturating at the ends.
func (e *Executor) SwitchSibling(ctx context.Context, session *types.Session, nodeID string, direction branch.Direction) error {
	if err := branch.SwitchSibling(session, nodeID, direction); err != nil {
		return fmt.Errorf("switch_sibling: %w", err)
	}
	e.publishActiveLeafChanged(session)
	return e.persist(ctx, session)
}

// Undo steps the session one history entry backward.
func (e *Executor) Undo(ctx context.Context, session *types.Session) error {
	if err := e.log().Undo(session); err != nil {
		return fmt.Errorf("undo: %w", err)
	}
	e.publishHistoryChanged(session)
	e.publishActiveLeafChanged(session)
	return e.persist(ctx, session)
}

// Redo steps the session one history entry forward.
func (e *Executor) Redo(ctx context.Context, session *types.Session) error {
	if err := e.log().Redo(session); err != nil {
		return fmt.Errorf("redo: %w", err)
	}
	e.publishHistoryChanged(session)
	e.publishActiveLeafChanged(session)
	return e.persist(ctx, session)
}
