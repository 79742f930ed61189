// Package types holds the data model shared by every core package: the
// conversation tree, its history log, and the agent configuration that
// drives the context pipeline.
package types

// Role identifies who authored a Node's content.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status tracks a Node's lifecycle, in particular an assistant Node being
// streamed into by the Chat Executor.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// NodeType distinguishes ordinary conversation messages from the sentinel
// anchor nodes that only ever appear inside an Agent's preset message list.
type NodeType string

const (
	NodeTypeMessage           NodeType = "message"
	NodeTypeChatHistoryAnchor NodeType = "chat_history_anchor"
	NodeTypeUserProfileAnchor NodeType = "user_profile_anchor"
)

// Node is one message in the conversation tree. The tree is a strict forest:
// every non-root Node has exactly one parent, and ids are the only
// cross-references between Nodes — the NodeStore owns every Node and hands
// out ids as string handles into its arena.
type Node struct {
	ID                  string `json:"id"`
	ParentID            string `json:"parentId,omitempty"`
	ChildrenIDs         []string `json:"childrenIds"`
	LastSelectedChildID string `json:"lastSelectedChildId,omitempty"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	Attachments []Asset `json:"attachments,omitempty"`

	Status    Status   `json:"status"`
	IsEnabled bool     `json:"isEnabled"`
	Type      NodeType `json:"type"`

	Timestamp int64        `json:"timestamp"`
	Metadata  NodeMetadata `json:"metadata"`
}

// NodeMetadata is the structured side-channel attached to every Node.
type NodeMetadata struct {
	Agent             *AgentSnapshot    `json:"agent,omitempty"`
	ModelID           string            `json:"modelId,omitempty"`
	Usage             *Usage            `json:"usage,omitempty"`
	TokenCount        int               `json:"tokenCount,omitempty"`
	ReasoningContent  string            `json:"reasoningContent,omitempty"`
	Performance       *Performance      `json:"performance,omitempty"`
	IsTruncated       bool              `json:"isTruncated,omitempty"`
	Error             string            `json:"error,omitempty"`
	Compression       *CompressionInfo  `json:"compression,omitempty"`
	RegexRulesetID    string            `json:"regexRulesetId,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// AgentSnapshot freezes the identity of the agent that produced a Node, so
// the UI can still show "who said this" after the agent config changes.
type AgentSnapshot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Usage reports provider-side token accounting for one assistant turn.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Performance captures the metrics an executor derives from stream timing.
type Performance struct {
	FirstTokenLatencyMs int64   `json:"firstTokenLatencyMs"`
	TokensPerSecond     float64 `json:"tokensPerSecond"`
}

// CompressionInfo records that the Token Limiter replaced a message with a
// head-summary.
type CompressionInfo struct {
	OriginalCharacters int `json:"originalCharacters"`
	RetainedCharacters int `json:"retainedCharacters"`
}

// Asset is an opaque handle to attached media; binary content is never part
// of a Session record. AssetKind distinguishes how the pipeline may treat it.
type Asset struct {
	Handle   string    `json:"handle"`
	Kind     AssetKind `json:"kind"`
	Filename string    `json:"filename,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`

	// Width/Height are used by vision token-cost rules; Duration by
	// audio/video rules; Pages by document rules.
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"durationSeconds,omitempty"`
	Pages    int     `json:"pages,omitempty"`
}

// AssetKind classifies an attachment for transcription and token-cost rules.
type AssetKind string

const (
	AssetText     AssetKind = "text"
	AssetImage    AssetKind = "image"
	AssetAudio    AssetKind = "audio"
	AssetVideo    AssetKind = "video"
	AssetDocument AssetKind = "document"
)

// NewNode builds a Node with the defaults every constructor in the NodeStore
// must apply: empty children, enabled, message type.
func NewNode(id string, role Role, content string, timestamp int64) *Node {
	return &Node{
		ID:          id,
		ChildrenIDs: []string{},
		Role:        role,
		Content:     content,
		Status:      StatusComplete,
		IsEnabled:   true,
		Type:        NodeTypeMessage,
		Timestamp:   timestamp,
	}
}

// Clone deep-copies a Node so History snapshots and delta previous/final
// states never alias live session state.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.ChildrenIDs = append([]string(nil), n.ChildrenIDs...)
	if n.Attachments != nil {
		cp.Attachments = append([]Asset(nil), n.Attachments...)
	}
	cp.Metadata = n.Metadata.clone()
	return &cp
}

func (m NodeMetadata) clone() NodeMetadata {
	cp := m
	if m.Agent != nil {
		a := *m.Agent
		cp.Agent = &a
	}
	if m.Usage != nil {
		u := *m.Usage
		cp.Usage = &u
	}
	if m.Performance != nil {
		p := *m.Performance
		cp.Performance = &p
	}
	if m.Compression != nil {
		c := *m.Compression
		cp.Compression = &c
	}
	if m.Extra != nil {
		cp.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			cp.Extra[k] = v
		}
	}
	return cp
}

// CloneNodeMap deep-copies an entire node arena, the unit a History
// Snapshot stores.
func CloneNodeMap(nodes map[string]*Node) map[string]*Node {
	out := make(map[string]*Node, len(nodes))
	for id, n := range nodes {
		out[id] = n.Clone()
	}
	return out
}
