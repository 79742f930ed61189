package types

// Agent is the external, pipeline-consumed configuration for one
// conversational persona: its model, its preset messages, and the rules
// that govern context assembly. Persistence, import/export and the
// configuration UI are out of scope; the core only ever reads an Agent
// value handed to it.
type Agent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Icon          string `json:"icon"`
	ModelID       string `json:"modelId"`
	ProfileID     string `json:"profileId,omitempty"`
	UserProfileID string `json:"userProfileId,omitempty"`

	PresetMessages     []Node `json:"presetMessages"`
	DisplayPresetCount int    `json:"displayPresetCount"`

	Parameters    Parameters `json:"parameters"`
	LlmThinkRules []LlmThinkRule `json:"llmThinkRules,omitempty"`
	RegexConfig   []RegexRule    `json:"regexConfig,omitempty"`
}

// Parameters bundles sampling parameters with the context-management knobs
// the Token Limiter reads.
type Parameters struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`

	ContextManagement ContextManagement `json:"contextManagement"`
}

// ContextManagement governs Stage 6's token budget.
type ContextManagement struct {
	Enabled          bool `json:"enabled"`
	MaxContextTokens int  `json:"maxContextTokens"`
	RetainedCharacters int `json:"retainedCharacters"`
}

// LlmThinkRule strips extended-reasoning blocks from assistant content
// before it is shown back to a provider as history; expressed as a regex
// pattern since it needs to match framing tags like <think>...</think>.
type LlmThinkRule struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags,omitempty"`
}

// SubstitutionMode controls how a RegexRule's replacement string treats
// template variables such as {{user}}.
type SubstitutionMode string

const (
	SubstitutionNone     SubstitutionMode = "none"
	SubstitutionRaw      SubstitutionMode = "raw"
	SubstitutionEscaped  SubstitutionMode = "escaped"
)

// ApplyScope selects whether a rule fires for on-screen rendering, for the
// outgoing request, or both.
type ApplyScope string

const (
	ApplyRender  ApplyScope = "render"
	ApplyRequest ApplyScope = "request"
)

// DepthRange bounds which messages (counted from the tail, 0 = last) a rule
// applies to.
type DepthRange struct {
	Min int `json:"min"`
	// Max < 0 means unbounded.
	Max int `json:"max"`
}

// Contains reports whether depth (0 = last message) falls in [Min, Max].
func (d DepthRange) Contains(depth int) bool {
	if depth < d.Min {
		return false
	}
	if d.Max >= 0 && depth > d.Max {
		return false
	}
	return true
}

// RegexRule is one text-substitution preset consumed by Stage 2.
type RegexRule struct {
	ID          string   `json:"id"`
	Pattern     string   `json:"pattern"`
	Flags       string   `json:"flags,omitempty"`
	Replacement string   `json:"replacement"`

	TargetRoles []Role     `json:"targetRoles"`
	DepthRange  DepthRange `json:"depthRange"`
	ApplyTo     ApplyScope `json:"applyTo"`

	SubstitutionMode SubstitutionMode `json:"substitutionMode"`
	TrimFromGroups   []string         `json:"trimFromGroups,omitempty"`

	Priority int `json:"priority"`
	Source   RegexSource `json:"source"`
}

// RegexSource records where a rule came from, for the global ∪ agent-bound
// ∪ user-profile-bound merge Stage 2 performs.
type RegexSource string

const (
	RegexSourceGlobal      RegexSource = "global"
	RegexSourceAgent       RegexSource = "agent"
	RegexSourceUserProfile RegexSource = "user_profile"
)

// InjectionStrategyKind enumerates the placement directives a preset
// message or worldbook entry may carry.
type InjectionStrategyKind string

const (
	InjectDefault       InjectionStrategyKind = "default"
	InjectDepth         InjectionStrategyKind = "depth"
	InjectAdvancedDepth InjectionStrategyKind = "advanced_depth"
	InjectAnchor        InjectionStrategyKind = "anchor"
)

// AnchorTarget names which sentinel anchor an InjectAnchor strategy resolves
// against.
type AnchorTarget string

const (
	AnchorChatHistory  AnchorTarget = "chat_history"
	AnchorUserProfile  AnchorTarget = "user_profile"
)

// AnchorPosition is before/after relative to the anchor's resolved index.
type AnchorPosition string

const (
	PositionBefore AnchorPosition = "before"
	PositionAfter  AnchorPosition = "after"
)

// InjectionStrategy is attached to every preset message (and, reusing the
// same vocabulary, every worldbook entry) to say where it lands in the
// assembled message list.
type InjectionStrategy struct {
	Kind InjectionStrategyKind `json:"kind"`

	// Depth is used by InjectDepth.
	Depth int `json:"depth,omitempty"`

	// AdvancedDepth is used by InjectAdvancedDepth, e.g. "10~5" or a cycle
	// spec; parsed by the Injection Assembler.
	AdvancedDepth string `json:"advancedDepth,omitempty"`

	// Target/Position/Order are used by InjectAnchor.
	Target   AnchorTarget   `json:"target,omitempty"`
	Position AnchorPosition `json:"position,omitempty"`
	Order    int            `json:"order"`
}

// UserProfile is the external, pipeline-consumed user profile text.
type UserProfile struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	// RegexConfig holds the user-profile-bound rules Stage 2 merges in
	// alongside global and agent-bound rules.
	RegexConfig []RegexRule `json:"regexConfig,omitempty"`
}
