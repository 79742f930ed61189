package regexrule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/loom-engine/loom/pkg/types"
)

// TemplateVars supplies the {{user}}-style variable values a rule's
// replacement string may reference.
type TemplateVars map[string]string

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Sort stable-sorts rules by Priority ascending, the merge order applied
// across global, agent-bound and user-profile-bound sources.
func Sort(rules []types.RegexRule) []types.RegexRule {
	out := append([]types.RegexRule(nil), rules...)
	// insertion sort: stable and the rule sets are small (tens, not
	// thousands, of presets per agent).
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].Priority > out[j].Priority {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}

// StripThinkRules removes every region matched by the agent's
// reasoning-block rules (e.g. <think>...</think> framing) from text.
// Rules that fail to compile or match are skipped; the first error seen
// is returned alongside the text processed by the remaining rules.
func StripThinkRules(rules []types.LlmThinkRule, text string) (string, error) {
	var firstErr error
	for _, rule := range rules {
		re, err := regexp2.Compile(rule.Pattern, parseOptions(rule.Flags))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stripped, err := re.Replace(text, "", -1, -1)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		text = stripped
	}
	return text, firstErr
}

// Applies reports whether rule fires for a message at role/depth: role ∈
// target_roles and depth within depth_range (depth counted from the
// tail, 0 = last).
func Applies(rule types.RegexRule, role types.Role, depth int) bool {
	if !rule.DepthRange.Contains(depth) {
		return false
	}
	if len(rule.TargetRoles) == 0 {
		return true
	}
	for _, r := range rule.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

func parseOptions(flags string) regexp2.RegexOptions {
	opts := regexp2.None
	for _, c := range flags {
		switch c {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		}
	}
	return opts
}

// Apply runs one rule against text, substituting every match with the
// rule's replacement template. Replacement templates may reference
// capture groups ($1, ${name}) and, depending on SubstitutionMode,
// {{template vars}} resolved from vars.
func Apply(rule types.RegexRule, text string, vars TemplateVars) (string, error) {
	re, err := regexp2.Compile(rule.Pattern, parseOptions(rule.Flags))
	if err != nil {
		return text, err
	}

	replacement := resolveTemplateVars(rule.Replacement, rule.SubstitutionMode, vars)

	var out strings.Builder
	pos := 0
	match, err := re.FindStringMatch(text)
	if err != nil {
		return text, err
	}
	for match != nil {
		out.WriteString(text[pos:match.Index])
		out.WriteString(expandReplacement(replacement, match, rule.TrimFromGroups))
		pos = match.Index + match.Length

		match, err = re.FindNextMatch(match)
		if err != nil {
			return text, err
		}
	}
	out.WriteString(text[pos:])
	return out.String(), nil
}

// resolveTemplateVars substitutes {{var}} placeholders in a replacement
// template per the three substitution modes: none leaves the
// template's $-group references as the only dynamic content, raw inserts
// each template var's value verbatim, escaped regex-escapes the value
// first with regexp.QuoteMeta. A '$' inside a value is still read as a
// group reference by the later group expansion in either mode.
func resolveTemplateVars(replacement string, mode types.SubstitutionMode, vars TemplateVars) string {
	if mode == types.SubstitutionNone {
		return replacement
	}
	return templateVarPattern.ReplaceAllStringFunc(replacement, func(m string) string {
		name := templateVarPattern.FindStringSubmatch(m)[1]
		val, ok := vars[name]
		if !ok {
			return m
		}
		if mode == types.SubstitutionEscaped {
			val = regexp.QuoteMeta(val)
		}
		return val
	})
}

// expandReplacement substitutes $1/${name} group references in template
// against match's captured groups, applying TrimFromGroups to each
// captured value first.
func expandReplacement(template string, match *regexp2.Match, trimFromGroups []string) string {
	var out strings.Builder
	runes := []rune(template)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '$' || i == len(runes)-1 {
			out.WriteRune(c)
			continue
		}
		next := runes[i+1]
		switch {
		case next == '$':
			out.WriteByte('$')
			i++
		case next == '{':
			end := i + 2
			for end < len(runes) && runes[end] != '}' {
				end++
			}
			if end >= len(runes) {
				out.WriteRune(c)
				continue
			}
			name := string(runes[i+2 : end])
			out.WriteString(trimGroup(groupValue(match, name), trimFromGroups))
			i = end
		case next >= '0' && next <= '9':
			j := i + 1
			for j < len(runes) && runes[j] >= '0' && runes[j] <= '9' {
				j++
			}
			name := string(runes[i+1 : j])
			out.WriteString(trimGroup(groupValue(match, name), trimFromGroups))
			i = j - 1
		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}

func groupValue(match *regexp2.Match, name string) string {
	var g *regexp2.Group
	if n, err := strconv.Atoi(name); err == nil {
		g = match.GroupByNumber(n)
	} else {
		g = match.GroupByName(name)
	}
	if g == nil || len(g.Captures) == 0 {
		return ""
	}
	return g.String()
}

func trimGroup(value string, trim []string) string {
	for _, t := range trim {
		value = strings.ReplaceAll(value, t, "")
	}
	return value
}
