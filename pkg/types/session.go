package types

// Session is a single conversation: its node tree, the active branch
// pointer, and its undo/redo history.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	Nodes       map[string]*Node `json:"nodes"`
	RootNodeID  string           `json:"rootNodeId"`
	ActiveLeafID string          `json:"activeLeafId"`

	DisplayAgentID string         `json:"displayAgentId,omitempty"`
	AgentUsage     map[string]int `json:"agentUsage,omitempty"`

	ParameterOverrides *Parameters `json:"parameterOverrides,omitempty"`

	// RegexBindingMode governs whether the Regex Processor uses the rule
	// set captured at node-creation time or the session's current rules.
	RegexBindingMode RegexBindingMode `json:"regexBindingMode"`

	History      []HistoryEntry `json:"history"`
	HistoryIndex int            `json:"historyIndex"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// RegexBindingMode selects how Stage 2 picks a message's active rule set.
type RegexBindingMode string

const (
	RegexMessageBound RegexBindingMode = "message_bound"
	RegexSessionBound RegexBindingMode = "session_bound"
)

// NewSession builds an empty Session rooted at a freshly created system
// Node; callers still owe it an initial history Snapshot.
func NewSession(id string, root *Node, now int64) *Session {
	return &Session{
		ID:               id,
		Nodes:            map[string]*Node{root.ID: root},
		RootNodeID:       root.ID,
		ActiveLeafID:     root.ID,
		AgentUsage:       map[string]int{},
		RegexBindingMode: RegexSessionBound,
		History:          nil,
		HistoryIndex:     -1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SessionMeta is the lightweight record returned by a session index listing.
type SessionMeta struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
