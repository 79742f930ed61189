package event

import "github.com/loom-engine/loom/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	SessionID string `json:"sessionID"`
}

// NodeCreatedData is the data for node.created events.
type NodeCreatedData struct {
	SessionID string      `json:"sessionID"`
	Node      *types.Node `json:"node"`
}

// NodeUpdatedData is the data for node.updated events. Emitted for content
// edits, enabled toggles and stream finalization, not for per-chunk
// streaming deltas (those flow through stream.delta).
type NodeUpdatedData struct {
	SessionID string      `json:"sessionID"`
	Node      *types.Node `json:"node"`
}

// NodeDeletedData is the data for node.deleted events. NodeIDs lists the
// removed subtree in pre-order; the first entry is the subtree root.
type NodeDeletedData struct {
	SessionID string   `json:"sessionID"`
	NodeIDs   []string `json:"nodeIDs"`
}

// RelationChangedData is the data for relation.changed events — a graft,
// move or duplicate altered parent/child structure without creating or
// deleting content.
type RelationChangedData struct {
	SessionID string                 `json:"sessionID"`
	Changes   []types.RelationChange `json:"changes"`
}

// HistoryChangedData is the data for history.changed events: a new entry
// was recorded, an undo/redo jump completed, or the log was cleared at a
// breakpoint.
type HistoryChangedData struct {
	SessionID    string `json:"sessionID"`
	HistoryIndex int    `json:"historyIndex"`
	Length       int    `json:"length"`
}

// ActiveLeafChangedData is the data for activeleaf.changed events.
type ActiveLeafChangedData struct {
	SessionID    string `json:"sessionID"`
	ActiveLeafID string `json:"activeLeafID"`
}

// StreamDeltaData is the data for stream.delta events, published on the
// throttled flush cadence while an assistant node is generating. Content
// and Reasoning carry the node's full accumulated text, not an increment,
// so a late subscriber renders correctly from its first event.
type StreamDeltaData struct {
	SessionID string `json:"sessionID"`
	NodeID    string `json:"nodeID"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

// StreamFinalizedData is the data for stream.finalized events: the node
// reached a terminal status (complete or error).
type StreamFinalizedData struct {
	SessionID string      `json:"sessionID"`
	Node      *types.Node `json:"node"`
}
