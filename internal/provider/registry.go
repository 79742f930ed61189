package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loom-engine/loom/internal/logging"
	"github.com/loom-engine/loom/pkg/types"
)

// Registry routes a model id to the Client that serves it and answers
// catalog queries. Clients are constructed lazily on first use so a
// process with no Gemini key never touches the Gemini SDK.
type Registry struct {
	mu      sync.Mutex
	config  *types.Config
	clients map[string]Client
	catalog []Model
}

// NewRegistry builds a registry over the merged process config.
func NewRegistry(config *types.Config) *Registry {
	catalog := make([]Model, 0, 8)
	catalog = append(catalog, anthropicModels()...)
	catalog = append(catalog, openAIModels()...)
	catalog = append(catalog, geminiModels()...)
	return &Registry{
		config:  config,
		clients: make(map[string]Client),
		catalog: catalog,
	}
}

// Models lists every catalog entry whose provider is not disabled.
func (r *Registry) Models() []Model {
	var out []Model
	for _, m := range r.catalog {
		if r.providerConfig(m.ProviderID).Disabled {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Lookup finds the catalog entry for a model id. Unknown ids resolve to a
// provider by prefix with conservative capabilities, so a newly released
// model works without a catalog update.
func (r *Registry) Lookup(modelID string) (Model, bool) {
	for _, m := range r.catalog {
		if m.ID == modelID {
			return m, true
		}
	}
	providerID := providerForModel(modelID)
	if providerID == "" {
		return Model{}, false
	}
	return Model{ID: modelID, Name: modelID, ProviderID: providerID}, true
}

// ClientFor returns (building if needed) the Client serving modelID.
func (r *Registry) ClientFor(ctx context.Context, modelID string) (Client, error) {
	m, ok := r.Lookup(modelID)
	if !ok {
		return nil, fmt.Errorf("no provider serves model %q", modelID)
	}
	pc := r.providerConfig(m.ProviderID)
	if pc.Disabled {
		return nil, fmt.Errorf("provider %q is disabled", m.ProviderID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[m.ProviderID]; ok {
		return client, nil
	}

	var client Client
	var err error
	switch m.ProviderID {
	case "anthropic":
		client, err = NewAnthropicClient(ctx, &AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: modelID})
	case "openai":
		client, err = NewOpenAIClient(ctx, &OpenAIConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: modelID})
	case "google":
		client, err = NewGeminiClient(ctx, &GeminiConfig{APIKey: pc.APIKey, Model: modelID})
	default:
		return nil, fmt.Errorf("unknown provider %q", m.ProviderID)
	}
	if err != nil {
		return nil, err
	}

	logging.Info().Str("provider", m.ProviderID).Str("model", modelID).Msg("provider client initialized")
	r.clients[m.ProviderID] = client
	return client, nil
}

// Register installs a pre-built client for a provider id, displacing lazy
// construction. Tests and embedders use this to plug in fakes.
func (r *Registry) Register(providerID string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[providerID] = client
}

func (r *Registry) providerConfig(providerID string) types.ProviderConfig {
	if r.config == nil || r.config.Provider == nil {
		return types.ProviderConfig{}
	}
	return r.config.Provider[providerID]
}

// providerForModel maps a model id to its provider by prefix convention.
func providerForModel(modelID string) string {
	switch {
	case strings.HasPrefix(modelID, "claude"):
		return "anthropic"
	case strings.HasPrefix(modelID, "gpt"), strings.HasPrefix(modelID, "o1"),
		strings.HasPrefix(modelID, "o3"), strings.HasPrefix(modelID, "o4"):
		return "openai"
	case strings.HasPrefix(modelID, "gemini"):
		return "google"
	default:
		return ""
	}
}
