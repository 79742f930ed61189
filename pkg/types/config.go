package types

// Config is the process-level configuration, merged from the global config
// file, the project config file and environment overrides, in that priority
// order.
type Config struct {
	// Model is the default model id assigned to agents that do not name
	// their own.
	Model string `json:"model,omitempty"`

	// DataDir overrides where sessions, agents and profiles are stored.
	DataDir string `json:"dataDir,omitempty"`

	// Provider holds per-provider credentials and endpoints, keyed by
	// provider id ("anthropic", "openai", "google").
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// ContextManagement supplies the token-budget defaults applied to
	// agents whose own parameters leave it unset.
	ContextManagement *ContextManagement `json:"contextManagement,omitempty"`

	// GlobalRegexRules are substitution rules in force for every agent,
	// merged ahead of agent-bound and profile-bound rules.
	GlobalRegexRules []RegexRule `json:"globalRegexRules,omitempty"`

	// Worldbook configures the optional lore-injection stage.
	Worldbook *WorldbookConfig `json:"worldbook,omitempty"`

	// RequestTimeoutSeconds bounds one streaming completion. 0 means the
	// default of 60 seconds.
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds,omitempty"`

	// StreamFlushIntervalMs is the coalescing window for streaming-delta
	// notifications. 0 means the default of 60 milliseconds.
	StreamFlushIntervalMs int `json:"streamFlushIntervalMs,omitempty"`

	// ForceTranscribeAfterDepth is the message depth (counted from the
	// tail) past which media attachments are replaced by their transcript
	// even when the model could ingest them. 0 means never force.
	ForceTranscribeAfterDepth int `json:"forceTranscribeAfterDepth,omitempty"`

	// Log configures the process logger.
	Log *LogConfig `json:"log,omitempty"`
}

// ProviderConfig holds credentials and endpoint overrides for one provider.
type ProviderConfig struct {
	APIKey   string `json:"apiKey,omitempty"`
	BaseURL  string `json:"baseURL,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// LogConfig selects logging output and verbosity.
type LogConfig struct {
	Level     string `json:"level,omitempty"`
	Pretty    bool   `json:"pretty,omitempty"`
	LogToFile bool   `json:"logToFile,omitempty"`
	LogDir    string `json:"logDir,omitempty"`
}

// WorldbookConfig declares the lore entries available to the worldbook
// stage. Entries are compiled into a keyword index at startup.
type WorldbookConfig struct {
	Enabled bool                  `json:"enabled"`
	Entries []WorldbookEntryConfig `json:"entries,omitempty"`
}

// WorldbookEntryConfig is the on-disk form of one worldbook entry.
type WorldbookEntryConfig struct {
	ID           string            `json:"id"`
	Keywords     []string          `json:"keywords,omitempty"`
	Mode         string            `json:"mode"`
	Role         Role              `json:"role,omitempty"`
	Content      string            `json:"content"`
	Strategy     InjectionStrategy `json:"strategy"`
	TurnInterval int               `json:"turnInterval,omitempty"`
}
