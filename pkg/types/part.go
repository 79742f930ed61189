package types

// PartKind enumerates the content-part vocabulary a message may carry once
// it leaves plain-text form. tool_use and tool_result are inert — nothing
// in the core executes them, they only ride along unchanged to Stage 8.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartAudio      PartKind = "audio"
	PartVideo      PartKind = "video"
	PartDocument   PartKind = "document"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
)

// Part is a single element of a message's content. A message's content is
// either plain text or an ordered sequence of Parts (a tagged union on
// Kind). Before Stage 8 media Parts carry an AssetRef handle rather than
// bytes ("intermediate form"); Stage 8 resolves AssetRef into Resolved.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text holds content for PartText, and the inlined transcript/decoded
	// text for media parts the pipeline has already converted to text.
	Text string `json:"text,omitempty"`

	// AssetRef is set for media parts still in intermediate form.
	AssetRef *Asset `json:"assetRef,omitempty"`

	// Resolved is set once Stage 8 has turned AssetRef into a canonical
	// data URI or file URI; mutually exclusive with AssetRef on output.
	Resolved *ResolvedAsset `json:"resolved,omitempty"`

	// ToolUseID/ToolName/ToolInput back PartToolUse.
	ToolUseID string         `json:"toolUseId,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	ToolInput map[string]any `json:"toolInput,omitempty"`

	// ToolResultFor/ToolOutput back PartToolResult.
	ToolResultFor string `json:"toolResultFor,omitempty"`
	ToolOutput    string `json:"toolOutput,omitempty"`
}

// ResolvedAsset is the canonical, provider-ready form of a media Part.
type ResolvedAsset struct {
	// Exactly one of DataURI or FileURI is set, depending on the
	// provider's document-format preference.
	DataURI  string `json:"dataUri,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
	MimeType string `json:"mimeType"`
}

// Content is a message's body: either a bare string or an ordered sequence
// of typed Parts. Exactly one of Text/Parts is meaningful at a time.
type Content struct {
	Text  string `json:"text,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// IsPlainText reports whether this Content has no typed parts.
func (c Content) IsPlainText() bool { return len(c.Parts) == 0 }
