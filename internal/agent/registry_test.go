package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/pkg/types"
)

func newTestRegistry(t *testing.T) (*Registry, *storage.Storage) {
	t.Helper()
	store := storage.New(t.TempDir())
	r, err := NewRegistry(context.Background(), store, "test-model")
	require.NoError(t, err)
	return r, store
}

func TestNewRegistry_SeedsDefault(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.Equal(t, 1, r.Count())
	a, err := r.Get(DefaultAgentID)
	require.NoError(t, err)
	assert.Equal(t, "test-model", a.ModelID)
}

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	poet := &types.Agent{ID: "poet", Name: "Poet", ModelID: "m"}
	require.NoError(t, r.Register(ctx, poet))

	got, err := r.Get("poet")
	require.NoError(t, err)
	assert.Equal(t, "Poet", got.Name)

	// Mutating the returned copy must not affect the stored value.
	got.Name = "changed"
	again, err := r.Get("poet")
	require.NoError(t, err)
	assert.Equal(t, "Poet", again.Name)

	require.NoError(t, r.Unregister(ctx, "poet"))
	_, err = r.Get("poet")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r, _ := newTestRegistry(t)
	err := r.Register(context.Background(), &types.Agent{Name: "no id"})
	assert.Error(t, err)
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := storage.New(dir)

	r1, err := NewRegistry(ctx, store, "m")
	require.NoError(t, err)
	require.NoError(t, r1.Register(ctx, &types.Agent{ID: "poet", Name: "Poet", ModelID: "m"}))
	require.NoError(t, r1.PutProfile(ctx, &types.UserProfile{ID: "me", Content: "I am terse."}))

	r2, err := NewRegistry(ctx, storage.New(dir), "m")
	require.NoError(t, err)
	assert.True(t, r2.Exists("poet"))

	p, err := r2.GetProfile("me")
	require.NoError(t, err)
	assert.Equal(t, "I am terse.", p.Content)
}

func TestRegistry_List_Sorted(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, &types.Agent{ID: "z", Name: "Zed", ModelID: "m"}))
	require.NoError(t, r.Register(ctx, &types.Agent{ID: "a", Name: "Ada", ModelID: "m"}))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "Ada", list[0].Name)
	assert.Equal(t, "Assistant", list[1].Name)
	assert.Equal(t, "Zed", list[2].Name)
}

func TestRegistry_ProfileFor(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.PutProfile(ctx, &types.UserProfile{ID: "me", Content: "hi"}))

	p, err := r.ProfileFor(&types.Agent{ID: "a", UserProfileID: "me"})
	require.NoError(t, err)
	assert.Equal(t, "hi", p.Content)

	// No binding resolves to nil, nil.
	p, err = r.ProfileFor(&types.Agent{ID: "a"})
	require.NoError(t, err)
	assert.Nil(t, p)

	// Dangling binding is an error.
	_, err = r.ProfileFor(&types.Agent{ID: "a", UserProfileID: "ghost"})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestRegistry_DeleteProfile(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.PutProfile(ctx, &types.UserProfile{ID: "me", Content: "hi"}))
	require.NoError(t, r.DeleteProfile(ctx, "me"))
	assert.ErrorIs(t, r.DeleteProfile(ctx, "me"), ErrProfileNotFound)
}
