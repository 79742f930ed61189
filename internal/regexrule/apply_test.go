package regexrule

import (
	"testing"

	"github.com/loom-engine/loom/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestSortByPriorityAscending(t *testing.T) {
	rules := []types.RegexRule{
		{ID: "b", Priority: 5},
		{ID: "a", Priority: 1},
		{ID: "c", Priority: 5},
	}
	sorted := Sort(rules)
	require.Equal(t, []string{"a", "b", "c"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
}

func TestAppliesRoleAndDepth(t *testing.T) {
	rule := types.RegexRule{
		TargetRoles: []types.Role{types.RoleAssistant},
		DepthRange:  types.DepthRange{Min: 0, Max: 2},
	}
	require.True(t, Applies(rule, types.RoleAssistant, 0))
	require.False(t, Applies(rule, types.RoleUser, 0))
	require.False(t, Applies(rule, types.RoleAssistant, 3))
}

func TestApplySimpleSubstitution(t *testing.T) {
	rule := types.RegexRule{
		Pattern:          `foo`,
		Replacement:      "bar",
		SubstitutionMode: types.SubstitutionNone,
	}
	out, err := Apply(rule, "foo and foo again", nil)
	require.NoError(t, err)
	require.Equal(t, "bar and bar again", out)
}

func TestApplyCaptureGroupsAndTrim(t *testing.T) {
	rule := types.RegexRule{
		Pattern:          `\[(.*?)\]`,
		Replacement:      "($1)",
		TrimFromGroups:   []string{"DRAFT:"},
		SubstitutionMode: types.SubstitutionNone,
	}
	out, err := Apply(rule, "hello [DRAFT:world]", nil)
	require.NoError(t, err)
	require.Equal(t, "hello (world)", out)
}

func TestApplyTemplateVarsRawVsEscaped(t *testing.T) {
	rule := types.RegexRule{
		Pattern:          `hi`,
		Replacement:      "{{user}}",
		SubstitutionMode: types.SubstitutionRaw,
	}
	out, err := Apply(rule, "hi there", TemplateVars{"user": "a.b*"})
	require.NoError(t, err)
	require.Equal(t, "a.b* there", out)

	ruleEscaped := rule
	ruleEscaped.SubstitutionMode = types.SubstitutionEscaped
	out2, err := Apply(ruleEscaped, "hi there", TemplateVars{"user": "a.b*"})
	require.NoError(t, err)
	require.Equal(t, `a\.b\* there`, out2)
}

func TestApplyModeNoneIgnoresTemplateVars(t *testing.T) {
	rule := types.RegexRule{
		Pattern:          `hi`,
		Replacement:      "{{user}}",
		SubstitutionMode: types.SubstitutionNone,
	}
	out, err := Apply(rule, "hi there", TemplateVars{"user": "NAME"})
	require.NoError(t, err)
	require.Equal(t, "{{user}} there", out)
}

func TestStripThinkRules(t *testing.T) {
	rules := []types.LlmThinkRule{
		{Pattern: `(?s)<think>.*?</think>\s*`},
	}
	out, err := StripThinkRules(rules, "<think>let me reason\nstep by step</think>\nThe answer is 4.")
	require.NoError(t, err)
	require.Equal(t, "The answer is 4.", out)
}

func TestStripThinkRules_BadPatternSkipped(t *testing.T) {
	rules := []types.LlmThinkRule{
		{Pattern: `([`},
		{Pattern: `<note>.*?</note>`},
	}
	out, err := StripThinkRules(rules, "a<note>x</note>b")
	require.Error(t, err)
	require.Equal(t, "ab", out)
}
