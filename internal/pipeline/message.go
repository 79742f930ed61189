package pipeline

import (
	"github.com/loom-engine/loom/internal/tokenest"
	"github.com/loom-engine/loom/internal/transcription"
	"github.com/loom-engine/loom/internal/worldbook"
	"github.com/loom-engine/loom/pkg/types"
)

// SourceType tags where a Message came from, driving Stage 6's
// protected/disposable split.
type SourceType string

const (
	SourceSessionHistory  SourceType = "session_history"
	SourceAgentPreset     SourceType = "agent_preset"
	SourceUserProfile     SourceType = "user_profile"
	SourceDepthInjection  SourceType = "depth_injection"
	SourceAnchorInjection SourceType = "anchor_injection"
	SourceWorldbook       SourceType = "worldbook"
)

// Protected reports whether messages of this source type must never be
// truncated by the Token Limiter.
func (s SourceType) Protected() bool {
	switch s {
	case SourceAgentPreset, SourceUserProfile, SourceDepthInjection, SourceAnchorInjection:
		return true
	default:
		return false
	}
}

// Message is one entry of the pipeline's working list, in intermediate
// form: content is plain text or typed Parts whose media references are
// still handles, not bytes, until Stage 8 resolves them.
type Message struct {
	Role    types.Role
	Content types.Content

	SourceType  SourceType
	SourceID    string
	SourceIndex int

	TokenCount  int
	IsTruncated bool

	// RegexRulesetID names the rule set this message's content was
	// substituted under, for message-bound binding mode.
	RegexRulesetID string
}

// Text returns the message's plain-text content, ignoring typed Parts.
// Most early-stage processors (regex substitution, keyword scanning) only
// ever need this view.
func (m *Message) Text() string {
	if m.Content.IsPlainText() {
		return m.Content.Text
	}
	var out string
	for _, p := range m.Content.Parts {
		if p.Kind == types.PartText {
			out += p.Text
		}
	}
	return out
}

// SetText replaces a plain-text message's content. Callers must not call
// this on a message whose Content carries typed Parts.
func (m *Message) SetText(text string) {
	m.Content = types.Content{Text: text}
}

// TraceEntry is one diagnostic record a stage may append for the context
// preview UI.
type TraceEntry struct {
	Stage   string
	Message string
}

// Context is the mutable state threaded through every stage: the working
// message list plus the external configuration and diagnostic trace every
// stage may read or append to.
type Context struct {
	Session     *types.Session
	Agent       *types.Agent
	UserProfile *types.UserProfile

	// ExcludeNodeID, when set, is omitted from Stage 1's output — the
	// Executor passes the in-flight assistant node's own id here so a
	// turn doesn't see its own (still-generating) placeholder.
	ExcludeNodeID string

	// Now is the fixed instant this assembly run considers "now"; stages
	// needing a timestamp read this rather than the wall clock, so a
	// pipeline run is reproducible for context-preview snapshots.
	Now int64

	Messages []Message
	Trace    []TraceEntry

	Warnings []error

	// GlobalRegexRules are substitution rules in force for every agent,
	// merged into Stage 2's rule set alongside Agent.RegexConfig and
	// UserProfile.RegexConfig.
	GlobalRegexRules []types.RegexRule

	// CurrentRegexRulesetID identifies the rule set currently in force
	// (e.g. a hash of GlobalRegexRules+Agent.RegexConfig+UserProfile.
	// RegexConfig, computed by the caller). In message-bound mode
	// Stage 2 only re-applies the current rules to a message whose
	// stored RegexRulesetID matches this value, or is empty (never
	// stamped); a message stamped under a since-changed ruleset is left
	// as stored rather than guessed at, since no historical rule
	// snapshot is kept.
	CurrentRegexRulesetID string

	// AssetReader/Transcription back Stage 4. Both are optional; a nil
	// value just skips the corresponding lookup and leaves attachments
	// as raw media references.
	AssetReader   AssetTextReader
	Transcription transcription.Service

	ModelCapabilities         ModelCapabilities
	ForceTranscribeAfterDepth int

	// Worldbook backs the optional Stage 5. A nil Index disables the
	// stage entirely.
	Worldbook         *worldbook.Index
	WorldbookEnabled  bool
	CompletedTurns    int

	// TokenEstimator and ContextManagement back Stage 6. VisionRule and
	// DocumentRule price image/document attachments; their zero values
	// price those attachments at zero tokens.
	TokenEstimator tokenest.Estimator
	ModelID        string
	VisionRule     tokenest.VisionCostRule
	DocumentRule   tokenest.DocumentCostRule

	// FormatRules back Stage 7.
	FormatRules []FormatRule

	// AssetResolver backs the terminal Stage 8.
	AssetResolver AssetResolver
}

// Trace appends a diagnostic entry for the named stage.
func (c *Context) trace(stage, msg string) {
	c.Trace = append(c.Trace, TraceEntry{Stage: stage, Message: msg})
}

// warn records a non-fatal condition without aborting the pipeline.
func (c *Context) warn(err error) {
	c.Warnings = append(c.Warnings, err)
}
