package executor

import (
	"fmt"
	"hash/fnv"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/pkg/types"
)

// buildContext assembles a fresh pipeline.Context for session, reusing the
// Executor's fixed collaborators, ready for pipeline.RunPipeline.
func (e *Executor) buildContext(session *types.Session, agent *types.Agent, profile *types.UserProfile, excludeNodeID string) *pipeline.Context {
	var modelID string
	if agent != nil {
		modelID = agent.ModelID
	}
	var caps pipeline.ModelCapabilities
	if e.deps.CapabilitiesFor != nil {
		caps = e.deps.CapabilitiesFor(modelID)
	}
	return &pipeline.Context{
		Session:       session,
		Agent:         agent,
		UserProfile:   profile,
		ExcludeNodeID: excludeNodeID,
		Now:           e.deps.Clock(),

		GlobalRegexRules:      e.deps.GlobalRegexRules,
		CurrentRegexRulesetID: rulesetID(e.deps.GlobalRegexRules, agent, profile),

		AssetReader:   e.deps.AssetReader,
		Transcription: e.deps.Transcription,

		ModelCapabilities:         caps,
		ForceTranscribeAfterDepth: e.deps.ForceTranscribeAfterDepth,

		Worldbook:        e.deps.Worldbook,
		WorldbookEnabled: e.deps.WorldbookEnabled,
		CompletedTurns:   completedTurns(session),

		TokenEstimator: e.deps.TokenEstimator,
		ModelID:        modelID,
		VisionRule:     e.deps.VisionRule,
		DocumentRule:   e.deps.DocumentRule,

		FormatRules:   e.deps.FormatRules,
		AssetResolver: e.deps.AssetResolver,
	}
}

// rulesetID fingerprints the rule set currently in force, so
// message-bound regex binding can tell whether a node was stamped under
// the same rules.
func rulesetID(global []types.RegexRule, agent *types.Agent, profile *types.UserProfile) string {
	h := fnv.New64a()
	write := func(rules []types.RegexRule) {
		for _, r := range rules {
			fmt.Fprintf(h, "%s|%s|%s|%d;", r.ID, r.Pattern, r.Replacement, r.Priority)
		}
	}
	write(global)
	if agent != nil {
		write(agent.RegexConfig)
	}
	if profile != nil {
		write(profile.RegexConfig)
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// completedTurns counts user->assistant exchanges along the active path,
// the turn count worldbook's turn-mode activation needs.
func completedTurns(session *types.Session) int {
	path, err := branch.ActivePath(session)
	if err != nil {
		return 0
	}
	count := 0
	for i := 0; i < len(path)-1; i++ {
		if path[i].Role == types.RoleUser && path[i+1].Role == types.RoleAssistant && path[i+1].Status == types.StatusComplete {
			count++
		}
	}
	return count
}
