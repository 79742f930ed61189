package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-engine/loom/pkg/types"
)

func presetNode(id string, role types.Role, content string) types.Node {
	return types.Node{
		ID: id, Role: role, Content: content,
		Status: types.StatusComplete, IsEnabled: true, Type: types.NodeTypeMessage,
	}
}

func anchorPreset(id string, t types.NodeType) types.Node {
	return types.Node{ID: id, Status: types.StatusComplete, IsEnabled: true, Type: t}
}

func withStrategy(n types.Node, extra map[string]string) types.Node {
	n.Metadata.Extra = extra
	return n
}

func historyMessages(texts ...string) []Message {
	out := make([]Message, 0, len(texts))
	for i, t := range texts {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		out = append(out, Message{Role: role, Content: types.Content{Text: t}, SourceType: SourceSessionHistory})
	}
	return out
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Text()
	}
	return out
}

func TestInjection_DefaultPlacementAroundAnchor(t *testing.T) {
	c := &Context{
		Messages: historyMessages("h1", "h2"),
		Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
			presetNode("pre", types.RoleSystem, "before history"),
			anchorPreset("anchor", types.NodeTypeChatHistoryAnchor),
			presetNode("post", types.RoleSystem, "after history"),
		}},
	}
	require.NoError(t, StageInjectionAssembler(c))
	assert.Equal(t, []string{"before history", "h1", "h2", "after history"}, texts(c.Messages))
}

func TestInjection_NoAnchorMeansAllPrepended(t *testing.T) {
	c := &Context{
		Messages: historyMessages("h1"),
		Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
			presetNode("p1", types.RoleSystem, "s1"),
			presetNode("p2", types.RoleSystem, "s2"),
		}},
	}
	require.NoError(t, StageInjectionAssembler(c))
	assert.Equal(t, []string{"s1", "s2", "h1"}, texts(c.Messages))
}

func TestInjection_AnchorOrderTieBreak(t *testing.T) {
	// Two presets targeting the same insertion point: smaller order first.
	c := &Context{
		Messages: historyMessages("h1"),
		Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
			anchorPreset("anchor", types.NodeTypeChatHistoryAnchor),
			withStrategy(presetNode("late", types.RoleSystem, "order ten"), map[string]string{
				"injection_strategy_kind": "anchor",
				"injection_target":        "chat_history",
				"injection_position":      "before",
				"injection_order":         "10",
			}),
			withStrategy(presetNode("early", types.RoleSystem, "order five"), map[string]string{
				"injection_strategy_kind": "anchor",
				"injection_target":        "chat_history",
				"injection_position":      "before",
				"injection_order":         "5",
			}),
		}},
	}
	require.NoError(t, StageInjectionAssembler(c))
	assert.Equal(t, []string{"order five", "order ten", "h1"}, texts(c.Messages))
	assert.Equal(t, SourceAnchorInjection, c.Messages[0].SourceType)
}

func TestInjection_DepthStrategy(t *testing.T) {
	// depth 0 appends after the last message; depth 2 lands two from the end.
	c := &Context{
		Messages: historyMessages("h1", "h2", "h3"),
		Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
			withStrategy(presetNode("d0", types.RoleSystem, "at tail"), map[string]string{
				"injection_strategy_kind": "depth",
				"injection_depth":         "0",
			}),
			withStrategy(presetNode("d2", types.RoleSystem, "two up"), map[string]string{
				"injection_strategy_kind": "depth",
				"injection_depth":         "2",
			}),
		}},
	}
	require.NoError(t, StageInjectionAssembler(c))
	assert.Equal(t, []string{"h1", "two up", "h2", "h3", "at tail"}, texts(c.Messages))
	assert.Equal(t, SourceDepthInjection, c.Messages[1].SourceType)
}

func TestInjection_AdvancedDepthMultiPoint(t *testing.T) {
	// "3~1" inserts the same preset at depth 3 and depth 1.
	c := &Context{
		Messages: historyMessages("h1", "h2", "h3", "h4"),
		Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
			withStrategy(presetNode("multi", types.RoleSystem, "reminder"), map[string]string{
				"injection_strategy_kind":  "advanced_depth",
				"injection_advanced_depth": "3~1",
			}),
		}},
	}
	require.NoError(t, StageInjectionAssembler(c))
	assert.Equal(t, []string{"h1", "reminder", "h2", "h3", "reminder", "h4"}, texts(c.Messages))
}

func TestInjection_UserProfilePlacement(t *testing.T) {
	profile := &types.UserProfile{ID: "me", Content: "I prefer brevity."}

	t.Run("at user_profile anchor", func(t *testing.T) {
		c := &Context{
			Messages:    historyMessages("h1"),
			UserProfile: profile,
			Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
				presetNode("sys", types.RoleSystem, "system"),
				anchorPreset("up", types.NodeTypeUserProfileAnchor),
				anchorPreset("ch", types.NodeTypeChatHistoryAnchor),
			}},
		}
		require.NoError(t, StageInjectionAssembler(c))
		assert.Equal(t, []string{"system", "I prefer brevity.", "h1"}, texts(c.Messages))
		assert.Equal(t, SourceUserProfile, c.Messages[1].SourceType)
	})

	t.Run("before chat_history when no profile anchor", func(t *testing.T) {
		c := &Context{
			Messages:    historyMessages("h1"),
			UserProfile: profile,
			Agent: &types.Agent{ID: "a", PresetMessages: []types.Node{
				presetNode("sys", types.RoleSystem, "system"),
				anchorPreset("ch", types.NodeTypeChatHistoryAnchor),
			}},
		}
		require.NoError(t, StageInjectionAssembler(c))
		assert.Equal(t, []string{"system", "I prefer brevity.", "h1"}, texts(c.Messages))
	})

	t.Run("at list start when no anchors at all", func(t *testing.T) {
		c := &Context{
			Messages:    historyMessages("h1"),
			UserProfile: profile,
			Agent:       &types.Agent{ID: "a"},
		}
		require.NoError(t, StageInjectionAssembler(c))
		assert.Equal(t, []string{"I prefer brevity.", "h1"}, texts(c.Messages))
	})

	t.Run("empty profile content injects nothing", func(t *testing.T) {
		c := &Context{
			Messages:    historyMessages("h1"),
			UserProfile: &types.UserProfile{ID: "me", Content: "   "},
			Agent:       &types.Agent{ID: "a"},
		}
		require.NoError(t, StageInjectionAssembler(c))
		assert.Equal(t, []string{"h1"}, texts(c.Messages))
	})
}
