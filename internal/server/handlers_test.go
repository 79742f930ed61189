package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-engine/loom/internal/agent"
	"github.com/loom-engine/loom/internal/executor"
	"github.com/loom-engine/loom/internal/provider"
	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/pkg/types"
)

type stubClient struct{ text string }

func (c *stubClient) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, <-chan error) {
	chunks := make(chan provider.Chunk, 1)
	errs := make(chan error)
	chunks <- provider.Chunk{TextDelta: c.text}
	close(chunks)
	close(errs)
	return chunks, errs
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	store := storage.New(t.TempDir())
	sessions := storage.NewSessionStore(store)
	agents, err := agent.NewRegistry(ctx, store, "claude-sonnet-4-20250514")
	require.NoError(t, err)

	n := 0
	deps := executor.Deps{
		IDGen: func() string { n++; return fmt.Sprintf("n%d", n) },
		Clock: func() int64 { return int64(n) },
		ClientFor: func(ctx context.Context, modelID string) (provider.Client, error) {
			return &stubClient{text: "Hi!"}, nil
		},
		Persist: func(ctx context.Context, s *types.Session) error {
			return sessions.Save(ctx, s)
		},
		FlushInterval:  time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
	svc := executor.NewService(executor.New(deps), sessions, agents)

	cfg := DefaultConfig()
	cfg.EnableCORS = false
	return New(cfg, svc, agents, provider.NewRegistry(&types.Config{}))
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func createTestSession(t *testing.T, srv *Server) string {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/session", map[string]string{})
	require.Equal(t, http.StatusCreated, w.Code)
	var s types.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	return s.ID
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)

	id := createTestSession(t, srv)

	w := doJSON(t, srv, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var metas []types.SessionMeta
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metas))
	require.Len(t, metas, 1)
	assert.Equal(t, id, metas[0].ID)

	w = doJSON(t, srv, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodDelete, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	metas = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metas))
	assert.Empty(t, metas)
}

func TestCreateSession_UnknownAgent(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodPost, "/session", map[string]string{"agentID": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessage_EndToEnd(t *testing.T) {
	srv := newTestServer(t)
	id := createTestSession(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/session/"+id+"/message", map[string]string{"text": "Hello"})
	require.Equal(t, http.StatusOK, w.Code)

	var session types.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	leaf := session.Nodes[session.ActiveLeafID]
	require.NotNil(t, leaf)
	assert.Equal(t, types.RoleAssistant, leaf.Role)
	assert.Equal(t, "Hi!", leaf.Content)
	assert.Equal(t, types.StatusComplete, leaf.Status)
}

func TestNodeOps(t *testing.T) {
	srv := newTestServer(t)
	id := createTestSession(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/session/"+id+"/message", map[string]string{"text": "Hello"})
	require.Equal(t, http.StatusOK, w.Code)
	var session types.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))

	leaf := session.Nodes[session.ActiveLeafID]
	userID := leaf.ParentID

	// Edit user node content.
	w = doJSON(t, srv, http.MethodPatch, "/session/"+id+"/node/"+userID, map[string]string{"text": "edited"})
	require.Equal(t, http.StatusOK, w.Code)

	// Toggle it off.
	w = doJSON(t, srv, http.MethodPost, "/session/"+id+"/node/"+userID+"/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Undo twice restores original content and enabled flag.
	w = doJSON(t, srv, http.MethodPost, "/session/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, srv, http.MethodPost, "/session/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "Hello", session.Nodes[userID].Content)
	assert.True(t, session.Nodes[userID].IsEnabled)

	// Branch duplicate the assistant node; siblings under user become 2.
	w = doJSON(t, srv, http.MethodPost, "/session/"+id+"/node/"+leaf.ID+"/branch", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/session/"+id, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Len(t, session.Nodes[userID].ChildrenIDs, 2)
}

func TestNodeOps_Errors(t *testing.T) {
	srv := newTestServer(t)
	id := createTestSession(t, srv)

	w := doJSON(t, srv, http.MethodPatch, "/session/"+id+"/node/ghost", map[string]string{"text": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/session/"+id+"/node/ghost/sibling", map[string]string{"direction": "up"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/session/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewEndpoint(t *testing.T) {
	srv := newTestServer(t)
	id := createTestSession(t, srv)

	w := doJSON(t, srv, http.MethodPost, "/session/"+id+"/message", map[string]string{"text": "Hello"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/session/"+id+"/preview", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var preview executor.ContextPreviewData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.NotEmpty(t, preview.FinalMessages)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/session/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isSending":false`)
}

func TestAgentAndModelCatalogs(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/agent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var agents []types.Agent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, agent.DefaultAgentID, agents[0].ID)

	w = doJSON(t, srv, http.MethodGet, "/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "claude-sonnet-4-20250514")
}
