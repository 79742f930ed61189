package history

import (
	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/pkg/types"
)

// Tunable thresholds for the recording policy.
const (
	// SnapshotComplexityThreshold: a Delta-list entry whose traversal back
	// to the nearest Snapshot would touch more than this many distinct
	// nodes is recorded as a fresh Snapshot instead.
	SnapshotComplexityThreshold = 30

	// SnapshotInterval: once this many Delta entries have accumulated
	// since the nearest Snapshot, the next entry is a fresh Snapshot.
	SnapshotInterval = 15

	// MaxHistoryLength bounds Session.History; oldest entries are
	// discarded first, never orphaning a leading Delta.
	MaxHistoryLength = 50
)

// Log wraps a Session's History/HistoryIndex fields and implements the
// record/jump/undo/redo/clear algorithm. It holds no state
// of its own — every field it reads or writes lives on the Session, so
// multiple Logs may wrap the same session across calls without aliasing
// problems, so long as callers serialize access per session.
type Log struct {
	clock func() int64
}

// New builds a Log. clock supplies the unix-millis timestamp stamped on
// every recorded entry.
func New(clock func() int64) *Log {
	return &Log{clock: clock}
}

// Record appends a new HistoryEntry describing deltas (already applied
// forward to session.Nodes by the caller) under actionTag, then enforces
// the length bound. It never fails: a malformed session is impossible to
// reach from nodestore's atomic mutations, so Record has no error return.
func (l *Log) Record(session *types.Session, actionTag types.ActionTag, deltas []types.Delta, context string) {
	if session.HistoryIndex < len(session.History)-1 {
		session.History = session.History[:session.HistoryIndex+1]
	}

	entry := types.HistoryEntry{
		ActionTag: actionTag,
		Timestamp: l.clock(),
		Context:   context,
	}

	if l.shouldSnapshot(session, deltas) {
		entry.Kind = types.EntrySnapshot
		entry.Snapshot = types.CloneNodeMap(session.Nodes)
	} else {
		entry.Kind = types.EntryDeltas
		entry.Deltas = deltas
	}

	session.History = append(session.History, entry)
	session.HistoryIndex = len(session.History) - 1

	l.enforceMaxLength(session)
}

// shouldSnapshot implements step 2-3 of the recording policy: it walks
// backward from the current tail to the nearest Snapshot, accumulating the
// set of distinct nodes touched and the count of Delta entries passed, and
// decides whether the new entry should itself be a Snapshot.
func (l *Log) shouldSnapshot(session *types.Session, deltas []types.Delta) bool {
	if len(session.History) == 0 {
		return true
	}

	affected := map[string]bool{}
	for _, d := range deltas {
		collectAffectedNodes(d, affected)
	}

	deltasSinceSnapshot := 0
	for i := len(session.History) - 1; i >= 0; i-- {
		entry := session.History[i]
		if entry.Kind == types.EntrySnapshot {
			break
		}
		deltasSinceSnapshot++
		for _, d := range entry.Deltas {
			collectAffectedNodes(d, affected)
		}
	}

	if len(affected) > SnapshotComplexityThreshold {
		return true
	}
	if deltasSinceSnapshot >= SnapshotInterval {
		return true
	}
	return false
}

func collectAffectedNodes(d types.Delta, into map[string]bool) {
	switch d.Kind {
	case types.DeltaCreate, types.DeltaDelete:
		if d.Node != nil {
			into[d.Node.ID] = true
		}
		if d.RelationChange != nil {
			into[d.RelationChange.NodeID] = true
			for p := range d.RelationChange.AffectedParents {
				into[p] = true
			}
		}
	case types.DeltaUpdate:
		into[d.NodeID] = true
	case types.DeltaRelation:
		for _, rc := range d.Changes {
			into[rc.NodeID] = true
			for p := range rc.AffectedParents {
				into[p] = true
			}
		}
	}
}

// enforceMaxLength drops oldest entries once History exceeds
// MaxHistoryLength, but only so long as the remaining history keeps a
// leading Snapshot; it stops early rather than orphan a leading Delta,
// accepting a temporarily larger history.
func (l *Log) enforceMaxLength(session *types.Session) {
	for len(session.History) > MaxHistoryLength {
		// Find the earliest index > 0 that is itself a Snapshot: dropping
		// everything before it keeps history[0] a Snapshot. Prefer
		// dropping the single oldest entry when it's safe to do so.
		next := -1
		for i := 1; i < len(session.History); i++ {
			if session.History[i].Kind == types.EntrySnapshot {
				next = i
				break
			}
		}
		if next == -1 {
			// Only the leading Snapshot and its Deltas remain: dropping
			// any of them would orphan a Delta, so stop trimming early.
			return
		}
		session.History = session.History[next:]
		session.HistoryIndex -= next
	}
}

// JumpTo replays history to reconstruct session.Nodes exactly as it stood
// at targetIndex, then repairs ActiveLeafID. If no Snapshot anchor can be
// found at or before targetIndex the history is corrupt: JumpTo clears
// history and returns ErrHistoryCorruption.
func (l *Log) JumpTo(session *types.Session, targetIndex int) error {
	anchor := -1
	for i := targetIndex; i >= 0; i-- {
		if session.History[i].Kind == types.EntrySnapshot {
			anchor = i
			break
		}
	}
	if anchor == -1 {
		l.ClearHistory(session)
		return types.ErrHistoryCorruption
	}

	session.Nodes = types.CloneNodeMap(session.History[anchor].Snapshot)

	for i := anchor + 1; i <= targetIndex; i++ {
		entry := session.History[i]
		if entry.Kind == types.EntrySnapshot {
			session.Nodes = types.CloneNodeMap(entry.Snapshot)
			continue
		}
		for _, d := range entry.Deltas {
			applyDeltaForward(session, d)
		}
	}

	session.HistoryIndex = targetIndex
	return branch.EnsureValidActiveLeaf(session)
}

// Undo moves one entry toward the start of history. It is a no-op
// returning nil when already at the first entry.
func (l *Log) Undo(session *types.Session) error {
	if session.HistoryIndex <= 0 {
		return nil
	}
	return l.JumpTo(session, session.HistoryIndex-1)
}

// Redo moves one entry toward the end of history. It is a no-op returning
// nil when already at the last entry.
func (l *Log) Redo(session *types.Session) error {
	if session.HistoryIndex >= len(session.History)-1 {
		return nil
	}
	return l.JumpTo(session, session.HistoryIndex+1)
}

// ClearHistory replaces History with a single INITIAL_STATE Snapshot of
// the current Nodes — the "history breakpoint" the Executor triggers after
// a turn completes.
func (l *Log) ClearHistory(session *types.Session) {
	session.History = []types.HistoryEntry{{
		Kind:      types.EntrySnapshot,
		ActionTag: types.ActionInitialState,
		Timestamp: l.clock(),
		Snapshot:  types.CloneNodeMap(session.Nodes),
	}}
	session.HistoryIndex = 0
}

// applyDeltaForward applies one Delta in the forward direction, mutating
// session.Nodes in place. Missing nodes referenced by a RelationChange are
// silently skipped — they may be restored by a later delta in the same
// entry.
func applyDeltaForward(session *types.Session, d types.Delta) {
	switch d.Kind {
	case types.DeltaCreate:
		if d.Node != nil {
			session.Nodes[d.Node.ID] = d.Node.Clone()
		}
		if d.RelationChange != nil {
			applyRelationChange(session, *d.RelationChange, true)
		}
	case types.DeltaDelete:
		if d.RelationChange != nil {
			applyRelationChange(session, *d.RelationChange, true)
		}
		if d.Node != nil {
			delete(session.Nodes, d.Node.ID)
		}
	case types.DeltaUpdate:
		if d.FinalState != nil {
			session.Nodes[d.NodeID] = d.FinalState.Clone()
		}
	case types.DeltaRelation:
		for _, rc := range d.Changes {
			applyRelationChange(session, rc, true)
		}
	}
}

// applyRelationChange sets node_id's ParentID and every affected parent's
// ChildrenIDs to the new (forward) or old (backward) value. Missing nodes
// are silently skipped.
func applyRelationChange(session *types.Session, rc types.RelationChange, forward bool) {
	if node, ok := session.Nodes[rc.NodeID]; ok {
		if forward {
			node.ParentID = rc.NewParentID
		} else {
			node.ParentID = rc.OldParentID
		}
	}
	for parentID, cd := range rc.AffectedParents {
		parent, ok := session.Nodes[parentID]
		if !ok {
			continue
		}
		if forward {
			parent.ChildrenIDs = append([]string(nil), cd.NewChildren...)
		} else {
			parent.ChildrenIDs = append([]string(nil), cd.OldChildren...)
		}
	}
}
