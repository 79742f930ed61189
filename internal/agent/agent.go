// Package agent provides agent configuration management: the personas a
// session can converse with, their preset message lists, and the user
// profiles bound to them.
package agent

import (
	"fmt"
	"strconv"

	"github.com/loom-engine/loom/pkg/types"
)

// DefaultAgentID names the built-in agent every fresh install starts with.
const DefaultAgentID = "assistant"

// DefaultAgent returns the built-in persona: one system preset followed by
// the chat-history anchor, so session history lands after the system
// message and before nothing.
func DefaultAgent(modelID string) *types.Agent {
	return &types.Agent{
		ID:      DefaultAgentID,
		Name:    "Assistant",
		Icon:    "sparkles",
		ModelID: modelID,
		PresetMessages: []types.Node{
			PresetMessage("preset-system", types.RoleSystem, "You are a helpful assistant."),
			AnchorNode("preset-anchor-history", types.NodeTypeChatHistoryAnchor),
		},
		DisplayPresetCount: 1,
		Parameters: types.Parameters{
			Temperature: 0.7,
			ContextManagement: types.ContextManagement{
				Enabled: false,
			},
		},
	}
}

// PresetMessage builds a default-strategy preset node. Preset nodes reuse
// the Node type but never enter a session tree; their position among the
// agent's presets, relative to the chat-history anchor, is their placement
// directive.
func PresetMessage(id string, role types.Role, content string) types.Node {
	return types.Node{
		ID:        id,
		Role:      role,
		Content:   content,
		Status:    types.StatusComplete,
		IsEnabled: true,
		Type:      types.NodeTypeMessage,
	}
}

// AnchorNode builds a sentinel anchor preset node.
func AnchorNode(id string, anchorType types.NodeType) types.Node {
	return types.Node{
		ID:        id,
		Status:    types.StatusComplete,
		IsEnabled: true,
		Type:      anchorType,
	}
}

// WithStrategy stamps an injection strategy onto a preset node. The
// strategy rides in Metadata.Extra so preset nodes stay plain Nodes.
func WithStrategy(n types.Node, s types.InjectionStrategy) types.Node {
	if n.Metadata.Extra == nil {
		n.Metadata.Extra = map[string]string{}
	}
	n.Metadata.Extra["injection_strategy_kind"] = string(s.Kind)
	if s.Kind == types.InjectDepth {
		n.Metadata.Extra["injection_depth"] = strconv.Itoa(s.Depth)
	}
	if s.AdvancedDepth != "" {
		n.Metadata.Extra["injection_advanced_depth"] = s.AdvancedDepth
	}
	if s.Target != "" {
		n.Metadata.Extra["injection_target"] = string(s.Target)
	}
	if s.Position != "" {
		n.Metadata.Extra["injection_position"] = string(s.Position)
	}
	n.Metadata.Extra["injection_order"] = strconv.Itoa(s.Order)
	return n
}

// Snapshot freezes an agent's identity for node metadata.
func Snapshot(a *types.Agent) *types.AgentSnapshot {
	if a == nil {
		return nil
	}
	return &types.AgentSnapshot{ID: a.ID, Name: a.Name, Icon: a.Icon}
}

// Validate rejects agents the pipeline cannot consume: a missing id, a
// second chat-history anchor (the injection assembler splits around exactly
// one), or an anchor node carrying content.
func Validate(a *types.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("agent has no id")
	}
	historyAnchors := 0
	profileAnchors := 0
	for _, n := range a.PresetMessages {
		switch n.Type {
		case types.NodeTypeChatHistoryAnchor:
			historyAnchors++
		case types.NodeTypeUserProfileAnchor:
			profileAnchors++
		case types.NodeTypeMessage:
			continue
		default:
			return fmt.Errorf("agent %q: preset %q has unknown type %q", a.ID, n.ID, n.Type)
		}
		if n.Content != "" {
			return fmt.Errorf("agent %q: anchor %q must not carry content", a.ID, n.ID)
		}
	}
	if historyAnchors > 1 {
		return fmt.Errorf("agent %q: %d chat-history anchors, at most one allowed", a.ID, historyAnchors)
	}
	if profileAnchors > 1 {
		return fmt.Errorf("agent %q: %d user-profile anchors, at most one allowed", a.ID, profileAnchors)
	}
	if a.DisplayPresetCount < 0 || a.DisplayPresetCount > len(a.PresetMessages) {
		return fmt.Errorf("agent %q: display preset count %d out of range", a.ID, a.DisplayPresetCount)
	}
	return nil
}

// Clone deep-copies an agent so registry callers can mutate their copy
// without touching the stored value.
func Clone(a *types.Agent) *types.Agent {
	if a == nil {
		return nil
	}
	cp := *a
	if a.PresetMessages != nil {
		cp.PresetMessages = make([]types.Node, len(a.PresetMessages))
		for i := range a.PresetMessages {
			cp.PresetMessages[i] = *a.PresetMessages[i].Clone()
		}
	}
	if a.LlmThinkRules != nil {
		cp.LlmThinkRules = append([]types.LlmThinkRule(nil), a.LlmThinkRules...)
	}
	if a.RegexConfig != nil {
		cp.RegexConfig = append([]types.RegexRule(nil), a.RegexConfig...)
	}
	return &cp
}
