package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/pkg/types"
)

// ErrAgentNotFound is returned by Get for an unknown agent id.
var ErrAgentNotFound = errors.New("agent not found")

// ErrProfileNotFound is returned by GetProfile for an unknown profile id.
var ErrProfileNotFound = errors.New("user profile not found")

// Registry manages agent and user-profile records, persisting each through
// storage under agent/{id} and profile/{id}.
type Registry struct {
	mu       sync.RWMutex
	store    *storage.Storage
	agents   map[string]*types.Agent
	profiles map[string]*types.UserProfile
}

// NewRegistry builds a registry backed by store and loads every persisted
// record. A store with no agents is seeded with the built-in default so a
// fresh install can open a session immediately.
func NewRegistry(ctx context.Context, store *storage.Storage, defaultModelID string) (*Registry, error) {
	r := &Registry{
		store:    store,
		agents:   make(map[string]*types.Agent),
		profiles: make(map[string]*types.UserProfile),
	}

	ids, err := store.List(ctx, []string{"agent"})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	for _, id := range ids {
		var a types.Agent
		if err := store.Get(ctx, []string{"agent", id}, &a); err != nil {
			return nil, fmt.Errorf("load agent %q: %w", id, err)
		}
		r.agents[a.ID] = &a
	}

	profileIDs, err := store.List(ctx, []string{"profile"})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	for _, id := range profileIDs {
		var p types.UserProfile
		if err := store.Get(ctx, []string{"profile", id}, &p); err != nil {
			return nil, fmt.Errorf("load profile %q: %w", id, err)
		}
		r.profiles[p.ID] = &p
	}

	if len(r.agents) == 0 {
		def := DefaultAgent(defaultModelID)
		if err := r.Register(ctx, def); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Get retrieves an agent by id. The returned value is a deep copy.
func (r *Registry) Get(id string) (*types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return Clone(a), nil
}

// Register validates, stores and persists an agent.
func (r *Registry) Register(ctx context.Context, a *types.Agent) error {
	if err := Validate(a); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Put(ctx, []string{"agent", a.ID}, a); err != nil {
		return fmt.Errorf("%w: save agent %q: %v", types.ErrPersistenceFailure, a.ID, err)
	}
	r.agents[a.ID] = Clone(a)
	return nil
}

// Unregister removes an agent and its record.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if err := r.store.Delete(ctx, []string{"agent", id}); err != nil {
		return fmt.Errorf("%w: delete agent %q: %v", types.ErrPersistenceFailure, id, err)
	}
	delete(r.agents, id)
	return nil
}

// List returns all agents, sorted by name then id for stable display.
func (r *Registry) List() []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, Clone(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Exists checks if an agent exists.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// GetProfile retrieves a user profile by id.
func (r *Registry) GetProfile(id string) (*types.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	cp := *p
	cp.RegexConfig = append([]types.RegexRule(nil), p.RegexConfig...)
	return &cp, nil
}

// ProfileFor resolves the user profile an agent is bound to, or nil when
// the agent has no binding. A dangling binding is an error rather than a
// silent nil so a misconfigured agent surfaces at send time.
func (r *Registry) ProfileFor(a *types.Agent) (*types.UserProfile, error) {
	if a == nil || a.UserProfileID == "" {
		return nil, nil
	}
	return r.GetProfile(a.UserProfileID)
}

// PutProfile stores and persists a user profile.
func (r *Registry) PutProfile(ctx context.Context, p *types.UserProfile) error {
	if p.ID == "" {
		return fmt.Errorf("user profile has no id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Put(ctx, []string{"profile", p.ID}, p); err != nil {
		return fmt.Errorf("%w: save profile %q: %v", types.ErrPersistenceFailure, p.ID, err)
	}
	cp := *p
	cp.RegexConfig = append([]types.RegexRule(nil), p.RegexConfig...)
	r.profiles[p.ID] = &cp
	return nil
}

// DeleteProfile removes a user profile and its record.
func (r *Registry) DeleteProfile(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err := r.store.Delete(ctx, []string{"profile", id}); err != nil {
		return fmt.Errorf("%w: delete profile %q: %v", types.ErrPersistenceFailure, id, err)
	}
	delete(r.profiles, id)
	return nil
}
