package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/loom-engine/loom/pkg/types"
)

// Defaults applied after all sources merge.
const (
	DefaultRequestTimeoutSeconds = 60
	DefaultStreamFlushIntervalMs = 60
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/loom/)
// 2. Project config (.loom/)
// 3. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadConfigFile(filepath.Join(globalPath, "loom.json"), config)
	loadConfigFile(filepath.Join(globalPath, "loom.jsonc"), config)

	// 2. Project config
	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".loom", "loom.json"), config)
		loadConfigFile(filepath.Join(directory, ".loom", "loom.jsonc"), config)
	}

	// 3. Environment variables
	applyEnvOverrides(config)

	applyDefaults(config)

	return config, nil
}

// loadConfigFile loads a single config file.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	// Strip JSONC comments if needed
	data = stripJSONComments(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// stripJSONComments removes // and /* */ comments from JSONC.
func stripJSONComments(data []byte) []byte {
	// Remove single-line comments
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	// Remove multi-line comments
	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	data = multiLine.ReplaceAll(data, nil)

	return data
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.DataDir != "" {
		target.DataDir = source.DataDir
	}

	// Merge providers
	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.ContextManagement != nil {
		target.ContextManagement = source.ContextManagement
	}
	if source.GlobalRegexRules != nil {
		target.GlobalRegexRules = source.GlobalRegexRules
	}
	if source.Worldbook != nil {
		target.Worldbook = source.Worldbook
	}
	if source.Log != nil {
		target.Log = source.Log
	}

	if source.RequestTimeoutSeconds > 0 {
		target.RequestTimeoutSeconds = source.RequestTimeoutSeconds
	}
	if source.StreamFlushIntervalMs > 0 {
		target.StreamFlushIntervalMs = source.StreamFlushIntervalMs
	}
	if source.ForceTranscribeAfterDepth > 0 {
		target.ForceTranscribeAfterDepth = source.ForceTranscribeAfterDepth
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	// Provider API keys
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"google":    "GOOGLE_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	// Model override
	if model := os.Getenv("LOOM_MODEL"); model != "" {
		config.Model = model
	}

	// Data directory override
	if dataDir := os.Getenv("LOOM_DATA_DIR"); dataDir != "" {
		config.DataDir = dataDir
	}
}

// applyDefaults fills the knobs every caller relies on being non-zero.
func applyDefaults(config *types.Config) {
	if config.RequestTimeoutSeconds <= 0 {
		config.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if config.StreamFlushIntervalMs <= 0 {
		config.StreamFlushIntervalMs = DefaultStreamFlushIntervalMs
	}
	if config.DataDir == "" {
		config.DataDir = GetPaths().Data
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
