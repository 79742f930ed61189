package executor

import (
	"fmt"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/pkg/types"
)

// ContextPreviewData is the structured report PreviewContext returns: what
// the provider would receive if a message were sent from the given node,
// broken out for inspection.
type ContextPreviewData struct {
	PresetMessages []pipeline.Message `json:"presetMessages"`
	ChatHistory    []pipeline.Message `json:"chatHistory"`
	FinalMessages  []pipeline.Message `json:"finalMessages"`

	TokenCounts []int `json:"tokenCounts"`
	TotalTokens int   `json:"totalTokens"`

	Trace    []pipeline.TraceEntry `json:"trace,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
}

// PreviewContext runs the pipeline as if sending from nodeID, without
// touching the session: the run sees a deep copy with its active branch
// rerouted through nodeID.
func (e *Executor) PreviewContext(session *types.Session, agent *types.Agent, profile *types.UserProfile, nodeID string) (*ContextPreviewData, error) {
	if nodeID == "" {
		nodeID = session.ActiveLeafID
	}
	if _, ok := session.Nodes[nodeID]; !ok {
		return nil, fmt.Errorf("preview_context: node %q: %w", nodeID, types.ErrNodeNotFound)
	}

	shadow := *session
	shadow.Nodes = types.CloneNodeMap(session.Nodes)
	shadow.History = nil
	shadow.HistoryIndex = -1
	if err := branch.SwitchTo(&shadow, nodeID); err != nil {
		return nil, fmt.Errorf("preview_context: %w", err)
	}

	pc := e.buildContext(&shadow, agent, profile, "")
	if err := pipeline.RunPipeline(pc); err != nil {
		return nil, fmt.Errorf("preview_context: pipeline: %w", err)
	}

	data := &ContextPreviewData{
		FinalMessages: pc.Messages,
		Trace:         pc.Trace,
	}
	for _, m := range pc.Messages {
		switch m.SourceType {
		case pipeline.SourceSessionHistory:
			data.ChatHistory = append(data.ChatHistory, m)
		default:
			data.PresetMessages = append(data.PresetMessages, m)
		}
		data.TokenCounts = append(data.TokenCounts, m.TokenCount)
		data.TotalTokens += m.TokenCount
	}
	for _, w := range pc.Warnings {
		data.Warnings = append(data.Warnings, w.Error())
	}
	return data, nil
}
