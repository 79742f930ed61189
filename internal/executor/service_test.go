package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-engine/loom/internal/agent"
	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/provider"
	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/pkg/types"
)

func newTestService(t *testing.T, client provider.Client) (*Service, *storage.SessionStore) {
	t.Helper()
	ctx := context.Background()

	store := storage.New(t.TempDir())
	sessions := storage.NewSessionStore(store)
	agents, err := agent.NewRegistry(ctx, store, "claude-sonnet-4-20250514")
	require.NoError(t, err)

	deps := testDeps(client)
	deps.Persist = func(ctx context.Context, s *types.Session) error {
		return sessions.Save(ctx, s)
	}
	return NewService(New(deps), sessions, agents), sessions
}

func TestService_CreateListDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newScriptedClient())

	s, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultAgentID, s.DisplayAgentID)
	assert.Equal(t, 0, s.HistoryIndex)

	metas, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, s.ID, metas[0].ID)

	require.NoError(t, svc.DeleteSession(ctx, s.ID))
	metas, err = svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestService_CreateSession_UnknownAgent(t *testing.T) {
	svc, _ := newTestService(t, newScriptedClient())
	_, err := svc.CreateSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)
}

func TestService_SendMessage_PersistsTurn(t *testing.T) {
	ctx := context.Background()
	client := newScriptedClient(provider.Chunk{TextDelta: "Hi!"})
	svc, sessions := newTestService(t, client)

	s, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.SendMessage(ctx, s.ID, "Hello", nil))

	// The turn survives a cold reload from disk.
	reloaded, err := sessions.Load(ctx, s.ID)
	require.NoError(t, err)
	require.NoError(t, branch.EnsureValidActiveLeaf(reloaded))
	path, err := branch.ActivePath(reloaded)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, "Hello", path[1].Content)
	assert.Equal(t, "Hi!", path[2].Content)
	assert.Equal(t, types.StatusComplete, path[2].Status)
}

func TestService_UndoRedoThroughServiceBoundary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newScriptedClient(provider.Chunk{TextDelta: "ok"}))

	s, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.SendMessage(ctx, s.ID, "hello", nil))

	path, err := branch.ActivePath(s)
	require.NoError(t, err)
	userID := path[1].ID

	require.NoError(t, svc.EditContent(ctx, s.ID, userID, "hello, edited", nil))
	assert.Equal(t, "hello, edited", s.Nodes[userID].Content)

	require.NoError(t, svc.Undo(ctx, s.ID))
	assert.Equal(t, "hello", s.Nodes[userID].Content)

	require.NoError(t, svc.Redo(ctx, s.ID))
	assert.Equal(t, "hello, edited", s.Nodes[userID].Content)
}

func TestService_GetSession_LoadsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newScriptedClient())

	s, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)

	got1, err := svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	got2, err := svc.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, got1, got2, "one live instance per session id")
}

func TestService_PreviewContext(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, newScriptedClient(provider.Chunk{TextDelta: "ok"}))

	s, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	require.NoError(t, svc.SendMessage(ctx, s.ID, "hello", nil))

	data, err := svc.PreviewContext(ctx, s.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, data.FinalMessages)
	assert.NotEmpty(t, data.ChatHistory)
}
