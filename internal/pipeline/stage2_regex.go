package pipeline

import (
	"github.com/loom-engine/loom/internal/regexrule"
	"github.com/loom-engine/loom/pkg/types"
)

// StageRegexProcessor strips reasoning blocks from assistant history via
// the agent's think rules, then applies the merged global/agent-bound/
// user-profile-bound substitution rules to every message's text content.
func StageRegexProcessor(c *Context) error {
	stripThinkBlocks(c)

	rules := mergedRules(c)
	if len(rules) == 0 {
		return nil
	}
	sorted := regexrule.Sort(rules)

	vars := templateVars(c)
	n := len(c.Messages)

	for i := range c.Messages {
		msg := &c.Messages[i]
		if !msg.Content.IsPlainText() {
			continue // Stage 2 only substitutes into plain text; media parts are untouched.
		}
		depth := n - 1 - i

		if c.Session.RegexBindingMode == types.RegexMessageBound &&
			msg.RegexRulesetID != "" && msg.RegexRulesetID != c.CurrentRegexRulesetID {
			continue // stamped under a since-changed ruleset; no historical snapshot to reapply
		}

		text := msg.Content.Text
		for _, rule := range sorted {
			if rule.ApplyTo != "" && rule.ApplyTo != types.ApplyRequest {
				continue
			}
			if !regexrule.Applies(rule, msg.Role, depth) {
				continue
			}
			substituted, err := regexrule.Apply(rule, text, vars)
			if err != nil {
				c.warn(&types.PipelineProcessorFailure{Stage: "regex_processor", Err: err})
				continue
			}
			text = substituted
		}
		msg.SetText(text)
	}

	c.trace("regex_processor", "applied merged rule set")
	return nil
}

// stripThinkBlocks removes extended-reasoning framing from assistant
// history messages so a model is never shown its own prior chain of
// thought as conversation text.
func stripThinkBlocks(c *Context) {
	if c.Agent == nil || len(c.Agent.LlmThinkRules) == 0 {
		return
	}
	for i := range c.Messages {
		msg := &c.Messages[i]
		if msg.Role != types.RoleAssistant || !msg.Content.IsPlainText() {
			continue
		}
		stripped, err := regexrule.StripThinkRules(c.Agent.LlmThinkRules, msg.Content.Text)
		if err != nil {
			c.warn(&types.PipelineProcessorFailure{Stage: "regex_processor", Err: err})
		}
		msg.SetText(stripped)
	}
}

// mergedRules combines global ∪ agent-bound ∪ user-profile-bound rule
// sources.
func mergedRules(c *Context) []types.RegexRule {
	var rules []types.RegexRule
	if c.Agent != nil {
		rules = append(rules, c.Agent.RegexConfig...)
	}
	if c.UserProfile != nil {
		rules = append(rules, c.UserProfile.RegexConfig...)
	}
	rules = append(rules, c.GlobalRegexRules...)
	return rules
}

func templateVars(c *Context) regexrule.TemplateVars {
	vars := regexrule.TemplateVars{}
	if c.Agent != nil {
		vars["char"] = c.Agent.Name
	}
	if c.UserProfile != nil {
		vars["user"] = c.UserProfile.ID
	}
	return vars
}
