package pipeline

import (
	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/pkg/types"
)

// StageSessionLoader produces the initial linear message list from the
// session's active branch.
func StageSessionLoader(c *Context) error {
	path, err := branch.ActivePath(c.Session)
	if err != nil {
		return &types.PipelineFatalError{Stage: "session_loader", Err: err}
	}

	messages := make([]Message, 0, len(path))
	idx := 0
	for _, n := range path {
		if n.ID == c.ExcludeNodeID {
			continue
		}
		if !n.IsEnabled {
			continue
		}
		if n.Role != types.RoleUser && n.Role != types.RoleAssistant {
			continue
		}
		if n.Status != types.StatusComplete {
			continue
		}

		messages = append(messages, Message{
			Role:           n.Role,
			Content:        nodeContent(n),
			SourceType:     SourceSessionHistory,
			SourceID:       n.ID,
			SourceIndex:    idx,
			RegexRulesetID: n.Metadata.RegexRulesetID,
		})
		idx++
	}

	c.Messages = messages
	c.trace("session_loader", "loaded active branch")
	return nil
}

// nodeContent renders a Node's body as pipeline Content: plain text when it
// carries no attachments, else a text Part followed by one Part per
// attachment, each still in intermediate (AssetRef) form for Stage 4/8 to
// resolve.
func nodeContent(n *types.Node) types.Content {
	if len(n.Attachments) == 0 {
		return types.Content{Text: n.Content}
	}

	parts := make([]types.Part, 0, len(n.Attachments)+1)
	if n.Content != "" {
		parts = append(parts, types.Part{Kind: types.PartText, Text: n.Content})
	}
	for i := range n.Attachments {
		asset := n.Attachments[i]
		parts = append(parts, types.Part{Kind: assetPartKind(asset.Kind), AssetRef: &asset})
	}
	return types.Content{Parts: parts}
}

func assetPartKind(kind types.AssetKind) types.PartKind {
	switch kind {
	case types.AssetImage:
		return types.PartImage
	case types.AssetAudio:
		return types.PartAudio
	case types.AssetVideo:
		return types.PartVideo
	case types.AssetDocument:
		return types.PartDocument
	default:
		return types.PartText
	}
}
