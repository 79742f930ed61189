package pipeline

import "github.com/loom-engine/loom/pkg/types"

// FormatRuleKind enumerates the message-shape normalizations a provider
// adapter may require before a request is sent.
type FormatRuleKind string

const (
	// FormatMergeSystemToHead collapses every system message into a single
	// leading system message, preserving relative order of their text.
	FormatMergeSystemToHead FormatRuleKind = "merge_system_to_head"
	// FormatMergeConsecutiveRoles joins adjacent messages sharing a role
	// into one, since some providers reject back-to-back same-role turns.
	FormatMergeConsecutiveRoles FormatRuleKind = "merge_consecutive_roles"
	// FormatEnsureAlternating inserts an empty opposite-role placeholder
	// between same-role runs a provider requires to strictly alternate.
	// Like every rule it runs at its Order position; ordered after
	// merge_consecutive_roles it only sees same-role pairs that merge left
	// unmerged.
	FormatEnsureAlternating FormatRuleKind = "ensure_alternating_roles"
	// FormatSystemToUser downgrades every system message after the first
	// message to a user message; a leading system message is kept.
	FormatSystemToUser FormatRuleKind = "convert_system_to_user"
)

// DefaultMergeSeparator joins merged message texts unless a rule names
// its own separator.
const DefaultMergeSeparator = "\n\n---\n\n"

// FormatRule is one provider-shape normalization, applied in the order
// given by Order. Separator overrides DefaultMergeSeparator for the two
// merge rules; the others ignore it.
type FormatRule struct {
	Kind      FormatRuleKind
	Order     int
	Separator string
}

func (r FormatRule) separator() string {
	if r.Separator != "" {
		return r.Separator
	}
	return DefaultMergeSeparator
}

// StageFormatProcessors applies the agent's configured provider-shape
// normalizations in order.
func StageFormatProcessors(c *Context) error {
	if len(c.FormatRules) == 0 {
		return nil
	}
	rules := append([]FormatRule(nil), c.FormatRules...)
	insertionSort(rules)

	for _, r := range rules {
		switch r.Kind {
		case FormatMergeSystemToHead:
			c.Messages = mergeSystemToHead(c.Messages, r.separator())
		case FormatMergeConsecutiveRoles:
			c.Messages = mergeConsecutiveRoles(c.Messages, r.separator())
		case FormatEnsureAlternating:
			c.Messages = ensureAlternatingRoles(c.Messages)
		case FormatSystemToUser:
			c.Messages = convertSystemToUser(c.Messages)
		}
	}
	c.trace("format_processors", "normalized message shape for provider")
	return nil
}

func insertionSort(rules []FormatRule) {
	for i := 1; i < len(rules); i++ {
		for j := i; j > 0 && rules[j-1].Order > rules[j].Order; j-- {
			rules[j-1], rules[j] = rules[j], rules[j-1]
		}
	}
}

// mergeSystemToHead collapses every system message into one leading system
// message, text joined with sep between entries.
func mergeSystemToHead(msgs []Message, sep string) []Message {
	var systemText string
	first := true
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != types.RoleSystem {
			out = append(out, m)
			continue
		}
		if !first {
			systemText += sep
		}
		systemText += m.Text()
		first = false
	}
	if first {
		return out // no system messages present
	}
	head := Message{Role: types.RoleSystem, Content: types.Content{Text: systemText}, SourceType: SourceAgentPreset}
	return append([]Message{head}, out...)
}

// mergeConsecutiveRoles joins adjacent same-role messages into one,
// concatenating plain text with sep; a run containing any typed-Part
// message is left unmerged rather than risk losing structure. Idempotent:
// running it again on its own output is a no-op, since the only adjacent
// same-role pairs left in the output involve a typed-Part message.
func mergeConsecutiveRoles(msgs []Message, sep string) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	cur := msgs[0]
	for _, m := range msgs[1:] {
		if m.Role == cur.Role && cur.Content.IsPlainText() && m.Content.IsPlainText() {
			cur.Content.Text = cur.Content.Text + sep + m.Content.Text
			continue
		}
		out = append(out, cur)
		cur = m
	}
	out = append(out, cur)
	return out
}

// ensureAlternatingRoles inserts an empty opposite-role placeholder between
// any two adjacent messages sharing a role, so the result strictly
// alternates. Run this after merge_consecutive_roles.
func ensureAlternatingRoles(msgs []Message) []Message {
	if len(msgs) == 0 {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	out = append(out, msgs[0])
	for i := 1; i < len(msgs); i++ {
		prev := out[len(out)-1]
		cur := msgs[i]
		if cur.Role == prev.Role {
			out = append(out, Message{Role: oppositeRole(prev.Role), SourceType: prev.SourceType})
		}
		out = append(out, cur)
	}
	return out
}

func oppositeRole(r types.Role) types.Role {
	if r == types.RoleUser {
		return types.RoleAssistant
	}
	return types.RoleUser
}

// convertSystemToUser downgrades system messages past the head to user,
// for providers that accept a single leading system message and only
// user/assistant turns after it.
func convertSystemToUser(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if i == 0 && out[i].Role == types.RoleSystem {
			continue
		}
		if out[i].Role == types.RoleSystem {
			out[i].Role = types.RoleUser
		}
	}
	return out
}
