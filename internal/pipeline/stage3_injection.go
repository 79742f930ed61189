package pipeline

import (
	"strconv"
	"strings"

	"github.com/loom-engine/loom/pkg/types"
)

// StageInjectionAssembler merges agent.PresetMessages and the user
// profile into the message list, honoring each preset's injection
// strategy. This is the pipeline's most intricate stage.
//
// Every non-default strategy resolves its target position against a
// fixed "skeleton" list — presets before the chat_history anchor, then
// the current (post Stage 2) message list, then presets after the
// anchor — computed once before any insertion, so the whole stage is a
// single deterministic pass rather than a sequence of index-shifting
// mutations.
func StageInjectionAssembler(c *Context) error {
	if c.Agent == nil {
		return nil
	}

	presetBefore, presetAfter, presetAnchorIdx := splitAroundChatHistoryAnchor(c.Agent.PresetMessages)
	skeleton := make([]Message, 0, len(presetBefore)+len(c.Messages)+len(presetAfter))
	skeleton = append(skeleton, presetBefore...)
	skeleton = append(skeleton, c.Messages...)
	skeleton = append(skeleton, presetAfter...)

	historyStart := len(presetBefore)
	historyEnd := historyStart + len(c.Messages)

	var pending []pendingInjection
	for i, n := range c.Agent.PresetMessages {
		if n.Type != types.NodeTypeMessage {
			continue
		}
		strategy := presetStrategy(n)
		if strategy.Kind == types.InjectDefault {
			continue // already placed in the skeleton by position
		}
		pending = append(pending, resolvePresetInjections(strategy, i, n, skeleton, historyStart, historyEnd)...)
	}

	if c.UserProfile != nil && strings.TrimSpace(c.UserProfile.Content) != "" {
		pending = append(pending, userProfileInjection(c, presetAnchorIdx, presetBefore, historyStart, historyEnd))
	}

	c.Messages = spliceInjections(skeleton, pending)
	c.trace("injection_assembler", "merged presets and user profile")
	return nil
}

// splitAroundChatHistoryAnchor splits preset messages (rendered as
// Messages, excluding anchor sentinels themselves) into those before and
// after the chat_history anchor. If no anchor is present every preset is
// treated as "before" (equivalent to anchor-at-end, the default
// Stage 3's default strategy). It also returns the anchor's index among
// PresetMessages, or -1 if absent.
func splitAroundChatHistoryAnchor(presets []types.Node) (before, after []Message, anchorIdx int) {
	anchorIdx = -1
	for i, n := range presets {
		if n.Type == types.NodeTypeChatHistoryAnchor {
			anchorIdx = i
			break
		}
	}

	for i, n := range presets {
		if n.Type != types.NodeTypeMessage {
			continue
		}
		if presetStrategy(n).Kind != types.InjectDefault {
			continue // handled as a pending injection, not part of the skeleton
		}
		msg := presetMessage(n, i)
		if anchorIdx == -1 || i < anchorIdx {
			before = append(before, msg)
		} else {
			after = append(after, msg)
		}
	}
	return before, after, anchorIdx
}

// presetStrategy reads the injection strategy carried on a preset Node.
// Preset nodes store it in Metadata.Extra["injection_strategy_kind"] plus
// sibling keys, since types.Node has no first-class strategy field (only
// session nodes are ever Node values; preset nodes reuse the type but
// live only inside Agent.PresetMessages, never a session tree).
func presetStrategy(n types.Node) types.InjectionStrategy {
	if n.Metadata.Extra == nil {
		return types.InjectionStrategy{Kind: types.InjectDefault}
	}
	s := types.InjectionStrategy{Kind: types.InjectionStrategyKind(n.Metadata.Extra["injection_strategy_kind"])}
	if s.Kind == "" {
		s.Kind = types.InjectDefault
	}
	if v, ok := n.Metadata.Extra["injection_depth"]; ok {
		s.Depth, _ = strconv.Atoi(v)
	}
	s.AdvancedDepth = n.Metadata.Extra["injection_advanced_depth"]
	s.Target = types.AnchorTarget(n.Metadata.Extra["injection_target"])
	s.Position = types.AnchorPosition(n.Metadata.Extra["injection_position"])
	if v, ok := n.Metadata.Extra["injection_order"]; ok {
		s.Order, _ = strconv.Atoi(v)
	}
	return s
}

// countDefaultPresetsBefore counts how many default-strategy message
// presets precede index upTo in presets — the number of skeleton slots
// they occupy, since only default-strategy presets live directly in the
// skeleton.
func countDefaultPresetsBefore(presets []types.Node, upTo int) int {
	count := 0
	for i := 0; i < upTo && i < len(presets); i++ {
		n := presets[i]
		if n.Type != types.NodeTypeMessage {
			continue
		}
		if presetStrategy(n).Kind != types.InjectDefault {
			continue
		}
		count++
	}
	return count
}

func presetMessage(n types.Node, originalIndex int) Message {
	return Message{
		Role:        n.Role,
		Content:     types.Content{Text: n.Content},
		SourceType:  SourceAgentPreset,
		SourceID:    n.ID,
		SourceIndex: originalIndex,
	}
}

// resolvePresetInjections expands one non-default preset Node into one or
// more pendingInjections against skeleton.
func resolvePresetInjections(strategy types.InjectionStrategy, originalIndex int, n types.Node, skeleton []Message, historyStart, historyEnd int) []pendingInjection {
	msg := presetMessage(n, originalIndex)
	msg.SourceType = SourceDepthInjection
	if strategy.Kind == types.InjectAnchor {
		msg.SourceType = SourceAnchorInjection
	}

	switch strategy.Kind {
	case types.InjectDepth:
		return []pendingInjection{{
			msg:           msg,
			targetIndex:   len(skeleton) - strategy.Depth,
			order:         strategy.Order,
			originalIndex: originalIndex,
		}}
	case types.InjectAdvancedDepth:
		var out []pendingInjection
		for _, d := range parseAdvancedDepth(strategy.AdvancedDepth, len(skeleton)) {
			out = append(out, pendingInjection{
				msg:           msg,
				targetIndex:   len(skeleton) - d,
				order:         strategy.Order,
				originalIndex: originalIndex,
			})
		}
		return out
	case types.InjectAnchor:
		return []pendingInjection{{
			msg:           msg,
			targetIndex:   resolveAnchorIndex(strategy, skeleton, historyStart, historyEnd),
			order:         strategy.Order,
			originalIndex: originalIndex,
		}}
	default:
		return nil
	}
}

// parseAdvancedDepth parses the "10~5" multi-point form (insert at depth
// 10, then again at depth 5) and the "N*" cycle form (insert at every
// multiple of N, from N up to the skeleton's length). Unrecognized or
// empty specs resolve to a single depth-0 (append at the very end).
func parseAdvancedDepth(spec string, skeletonLen int) []int {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return []int{0}
	}
	if strings.HasSuffix(spec, "*") {
		n, err := strconv.Atoi(strings.TrimSuffix(spec, "*"))
		if err != nil || n <= 0 {
			return []int{0}
		}
		var depths []int
		for d := n; d <= skeletonLen; d += n {
			depths = append(depths, d)
		}
		if len(depths) == 0 {
			depths = []int{0}
		}
		return depths
	}

	parts := strings.Split(spec, "~")
	var depths []int
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		depths = append(depths, d)
	}
	if len(depths) == 0 {
		return []int{0}
	}
	return depths
}

// resolveAnchorIndex maps an anchor strategy to a skeleton index.
func resolveAnchorIndex(strategy types.InjectionStrategy, skeleton []Message, historyStart, historyEnd int) int {
	base := historyStart
	if strategy.Target == types.AnchorUserProfile {
		// No separate user_profile anchor bookkeeping is kept once the
		// skeleton is built: a preset anchored to user_profile resolves
		// against the chat_history seam (historyStart) whether or not the
		// preset list holds a user_profile anchor node; that node's own
		// position is not consulted.
		base = historyStart
	} else {
		base = historyEnd
		if strategy.Position == types.PositionBefore {
			base = historyStart
		}
		return base
	}
	if strategy.Position == types.PositionAfter {
		return base + 1
	}
	return base
}

// userProfileInjection builds the pending injection for the synthetic
// user-profile message: placed at the
// user_profile anchor if present, else immediately before chat_history,
// else at list start.
func userProfileInjection(c *Context, presetAnchorIdx int, presetBefore []Message, historyStart, historyEnd int) pendingInjection {
	msg := Message{
		Role:       types.RoleSystem,
		Content:    types.Content{Text: c.UserProfile.Content},
		SourceType: SourceUserProfile,
		SourceID:   c.UserProfile.ID,
	}

	for i, n := range c.Agent.PresetMessages {
		if n.Type == types.NodeTypeUserProfileAnchor {
			before := countDefaultPresetsBefore(c.Agent.PresetMessages, i)
			if presetAnchorIdx == -1 || i < presetAnchorIdx {
				return pendingInjection{msg: msg, targetIndex: before, order: 0}
			}
			afterCount := before - len(presetBefore)
			return pendingInjection{msg: msg, targetIndex: historyEnd + afterCount, order: 0}
		}
	}

	if presetAnchorIdx != -1 {
		return pendingInjection{msg: msg, targetIndex: historyStart, order: 0}
	}
	return pendingInjection{msg: msg, targetIndex: 0, order: 0}
}
