package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/nodestore"
	"github.com/loom-engine/loom/internal/provider"
	"github.com/loom-engine/loom/pkg/types"
)

// scriptedClient plays back a fixed chunk sequence. With holdOpen set it
// emits its chunks then keeps the stream open until the context dies,
// which is how the abort tests freeze a stream mid-flight.
type scriptedClient struct {
	chunks   []provider.Chunk
	err      error
	holdOpen bool

	requests []provider.Request
	emitted  chan struct{} // closed after the last scripted chunk is consumed
}

func newScriptedClient(chunks ...provider.Chunk) *scriptedClient {
	return &scriptedClient{chunks: chunks, emitted: make(chan struct{})}
}

func (c *scriptedClient) Stream(ctx context.Context, req provider.Request) (<-chan provider.Chunk, <-chan error) {
	c.requests = append(c.requests, req)
	chunks := make(chan provider.Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, ch := range c.chunks {
			select {
			case chunks <- ch:
			case <-ctx.Done():
				return
			}
		}
		close(c.emitted)
		if c.err != nil {
			errs <- c.err
			return
		}
		if c.holdOpen {
			<-ctx.Done()
		}
	}()
	return chunks, errs
}

func testDeps(client provider.Client) Deps {
	n := 0
	return Deps{
		IDGen: func() string { n++; return fmt.Sprintf("n%d", n) },
		Clock: func() int64 { return int64(1000 + n) },
		ClientFor: func(ctx context.Context, modelID string) (provider.Client, error) {
			return client, nil
		},
		FlushInterval:  time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}
}

func newTestSession(e *Executor, systemPrompt string) *types.Session {
	root := types.NewNode(e.deps.IDGen(), types.RoleSystem, systemPrompt, e.deps.Clock())
	s := types.NewSession(e.deps.IDGen(), root, e.deps.Clock())
	e.log().ClearHistory(s)
	return s
}

func testAgent() *types.Agent {
	return &types.Agent{
		ID:      "a1",
		Name:    "Helper",
		ModelID: "claude-sonnet-4-20250514",
		PresetMessages: []types.Node{
			{ID: "p1", Role: types.RoleSystem, Content: "You are helpful.", Status: types.StatusComplete, IsEnabled: true, Type: types.NodeTypeMessage},
			{ID: "anchor", Status: types.StatusComplete, IsEnabled: true, Type: types.NodeTypeChatHistoryAnchor},
		},
	}
}

func TestSendMessage_SimpleTurn(t *testing.T) {
	client := newScriptedClient(
		provider.Chunk{TextDelta: "Hi"},
		provider.Chunk{TextDelta: "!", Usage: &types.Usage{InputTokens: 12, OutputTokens: 2}},
	)
	e := New(testDeps(client))
	session := newTestSession(e, "")

	err := e.SendMessage(context.Background(), session, testAgent(), nil, "Hello", nil)
	require.NoError(t, err)

	// Pipeline output: agent system preset, then the user message.
	require.Len(t, client.requests, 1)
	msgs := client.requests[0].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, "You are helpful.", msgs[0].Content.Text)
	assert.Equal(t, types.RoleUser, msgs[1].Role)
	assert.Equal(t, "Hello", msgs[1].Content.Text)

	// Tree: root -> user -> assistant(complete, "Hi!").
	path, err := branch.ActivePath(session)
	require.NoError(t, err)
	require.Len(t, path, 3)
	user, assistant := path[1], path[2]
	assert.Equal(t, types.RoleUser, user.Role)
	assert.Equal(t, "Hello", user.Content)
	assert.Equal(t, types.RoleAssistant, assistant.Role)
	assert.Equal(t, "Hi!", assistant.Content)
	assert.Equal(t, types.StatusComplete, assistant.Status)
	require.NotNil(t, assistant.Metadata.Usage)
	assert.Equal(t, 2, assistant.Metadata.Usage.OutputTokens)
	require.NotNil(t, assistant.Metadata.Agent)
	assert.Equal(t, "a1", assistant.Metadata.Agent.ID)

	// Breakpoint: history is a single initial snapshot.
	require.Len(t, session.History, 1)
	assert.Equal(t, types.EntrySnapshot, session.History[0].Kind)
	assert.Equal(t, types.ActionInitialState, session.History[0].ActionTag)
	assert.Equal(t, 0, session.HistoryIndex)
	assert.False(t, e.IsSending())
}

func TestSendMessage_StreamError(t *testing.T) {
	client := newScriptedClient()
	client.err = types.NewStreamError(types.StreamErrRateLimit, "429")
	e := New(testDeps(client))
	session := newTestSession(e, "")

	require.NoError(t, e.SendMessage(context.Background(), session, testAgent(), nil, "Hello", nil))

	path, err := branch.ActivePath(session)
	require.NoError(t, err)
	assistant := path[len(path)-1]
	assert.Equal(t, types.StatusError, assistant.Status)
	assert.Contains(t, assistant.Metadata.Error, "rate_limit")
}

func TestRegenerateFrom_CreatesSibling(t *testing.T) {
	client := newScriptedClient(provider.Chunk{TextDelta: "foo"})
	e := New(testDeps(client))
	session := newTestSession(e, "")

	require.NoError(t, e.SendMessage(context.Background(), session, testAgent(), nil, "question", nil))
	path, err := branch.ActivePath(session)
	require.NoError(t, err)
	b1 := path[len(path)-1]
	assert.Equal(t, "foo", b1.Content)

	client.chunks = []provider.Chunk{{TextDelta: "bar"}}
	client.emitted = make(chan struct{})
	require.NoError(t, e.RegenerateFrom(context.Background(), session, testAgent(), nil, b1.ID))

	siblings, err := branch.Siblings(session, b1.ID)
	require.NoError(t, err)
	require.Len(t, siblings, 2)
	assert.Equal(t, "foo", siblings[0].Content)
	assert.Equal(t, "bar", siblings[1].Content)

	// The active branch now ends at the regenerated node.
	path, err = branch.ActivePath(session)
	require.NoError(t, err)
	assert.Equal(t, "bar", path[len(path)-1].Content)
	assert.Equal(t, siblings[1].ID, session.ActiveLeafID)
}

func TestAbort_MidStreamKeepsPartial(t *testing.T) {
	client := newScriptedClient(provider.Chunk{TextDelta: "par"})
	client.holdOpen = true
	e := New(testDeps(client))
	session := newTestSession(e, "")

	done := make(chan error, 1)
	go func() {
		done <- e.SendMessage(context.Background(), session, testAgent(), nil, "long task", nil)
	}()

	<-client.emitted // "par" has been applied
	require.Eventually(t, func() bool { return len(e.GeneratingNodes()) == 1 }, time.Second, time.Millisecond)
	nodeID := e.GeneratingNodes()[0]
	e.Abort(nodeID)

	require.NoError(t, <-done)

	node := session.Nodes[nodeID]
	require.NotNil(t, node)
	assert.Equal(t, types.StatusComplete, node.Status)
	assert.Equal(t, "par", node.Content)
	assert.Empty(t, node.Metadata.Error)
	assert.False(t, e.IsSending())

	require.Len(t, session.History, 1, "history cleared exactly once at the breakpoint")
	assert.Equal(t, types.ActionInitialState, session.History[0].ActionTag)
}

func TestAbort_NothingStreamedIsError(t *testing.T) {
	client := newScriptedClient() // no chunks, stream stays open
	client.holdOpen = true
	e := New(testDeps(client))
	session := newTestSession(e, "")

	done := make(chan error, 1)
	go func() {
		done <- e.SendMessage(context.Background(), session, testAgent(), nil, "hi", nil)
	}()

	<-client.emitted
	require.Eventually(t, func() bool { return len(e.GeneratingNodes()) == 1 }, time.Second, time.Millisecond)
	nodeID := e.GeneratingNodes()[0]
	e.Abort(nodeID)
	require.NoError(t, <-done)

	node := session.Nodes[nodeID]
	assert.Equal(t, types.StatusError, node.Status)
	assert.Contains(t, node.Metadata.Error, "aborted")
}

func TestCreateBranch_DuplicateAndUndoRedo(t *testing.T) {
	e := New(testDeps(newScriptedClient()))
	session := newTestSession(e, "")
	store := e.store(session)

	a, _, err := store.CreateChild(session.RootNodeID, nodestoreFields(types.RoleUser, "A"))
	require.NoError(t, err)
	b, _, err := store.CreateChild(a.ID, nodestoreFields(types.RoleAssistant, "B"))
	require.NoError(t, err)
	c, _, err := store.CreateChild(b.ID, nodestoreFields(types.RoleUser, "C"))
	require.NoError(t, err)
	session.ActiveLeafID = c.ID
	e.log().ClearHistory(session)

	ctx := context.Background()
	dupID, err := e.CreateBranch(ctx, session, c.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{c.ID, dupID}, session.Nodes[b.ID].ChildrenIDs)
	assert.Equal(t, "C", session.Nodes[dupID].Content)
	assert.Equal(t, dupID, session.ActiveLeafID)

	require.NoError(t, e.Undo(ctx, session))
	assert.Equal(t, []string{c.ID}, session.Nodes[b.ID].ChildrenIDs)
	assert.NotContains(t, session.Nodes, dupID)

	require.NoError(t, e.Redo(ctx, session))
	assert.Equal(t, []string{c.ID, dupID}, session.Nodes[b.ID].ChildrenIDs)
	assert.Contains(t, session.Nodes, dupID)
}

func TestEditToggleDelete_RecordedAndUndoable(t *testing.T) {
	e := New(testDeps(newScriptedClient()))
	session := newTestSession(e, "")
	store := e.store(session)

	u, _, err := store.CreateChild(session.RootNodeID, nodestoreFields(types.RoleUser, "hello"))
	require.NoError(t, err)
	session.ActiveLeafID = u.ID
	e.log().ClearHistory(session)

	ctx := context.Background()
	require.NoError(t, e.EditContent(ctx, session, u.ID, "hello, edited", nil))
	assert.Equal(t, "hello, edited", session.Nodes[u.ID].Content)

	require.NoError(t, e.ToggleEnabled(ctx, session, u.ID))
	assert.False(t, session.Nodes[u.ID].IsEnabled)

	require.NoError(t, e.Undo(ctx, session))
	assert.True(t, session.Nodes[u.ID].IsEnabled)
	require.NoError(t, e.Undo(ctx, session))
	assert.Equal(t, "hello", session.Nodes[u.ID].Content)

	// A new edit after undo truncates the redo future.
	require.NoError(t, e.EditContent(ctx, session, u.ID, "fork", nil))
	require.NoError(t, e.Redo(ctx, session))
	assert.Equal(t, "fork", session.Nodes[u.ID].Content)
}

func TestDeleteSubtree_UndoRestores(t *testing.T) {
	e := New(testDeps(newScriptedClient()))
	session := newTestSession(e, "")
	store := e.store(session)

	u, _, err := store.CreateChild(session.RootNodeID, nodestoreFields(types.RoleUser, "u"))
	require.NoError(t, err)
	a1, _, err := store.CreateChild(u.ID, nodestoreFields(types.RoleAssistant, "a1"))
	require.NoError(t, err)
	a2, _, err := store.CreateChild(a1.ID, nodestoreFields(types.RoleUser, "a2"))
	require.NoError(t, err)
	session.ActiveLeafID = a2.ID
	e.log().ClearHistory(session)

	ctx := context.Background()
	require.NoError(t, e.DeleteSubtree(ctx, session, a1.ID))
	assert.NotContains(t, session.Nodes, a1.ID)
	assert.NotContains(t, session.Nodes, a2.ID)
	assert.Equal(t, u.ID, session.ActiveLeafID, "active leaf repaired after its subtree vanished")

	require.NoError(t, e.Undo(ctx, session))
	assert.Contains(t, session.Nodes, a1.ID)
	assert.Contains(t, session.Nodes, a2.ID)
	assert.Equal(t, []string{a1.ID}, session.Nodes[u.ID].ChildrenIDs)
}

func TestMoveNode_CycleRejectedAndRolledBack(t *testing.T) {
	e := New(testDeps(newScriptedClient()))
	session := newTestSession(e, "")
	store := e.store(session)

	parent, _, err := store.CreateChild(session.RootNodeID, nodestoreFields(types.RoleUser, "p"))
	require.NoError(t, err)
	child, _, err := store.CreateChild(parent.ID, nodestoreFields(types.RoleAssistant, "c"))
	require.NoError(t, err)
	session.ActiveLeafID = child.ID
	e.log().ClearHistory(session)

	err = e.MoveNode(context.Background(), session, parent.ID, child.ID, -1)
	require.ErrorIs(t, err, types.ErrCycleWouldBeCreated)

	// Rolled back: structure unchanged.
	assert.Equal(t, []string{parent.ID}, session.Nodes[session.RootNodeID].ChildrenIDs)
	assert.Equal(t, session.RootNodeID, session.Nodes[parent.ID].ParentID)
}

func TestPreviewContext_DoesNotTouchSession(t *testing.T) {
	e := New(testDeps(newScriptedClient()))
	session := newTestSession(e, "")
	store := e.store(session)

	u, _, err := store.CreateChild(session.RootNodeID, nodestoreFields(types.RoleUser, "Hello"))
	require.NoError(t, err)
	session.ActiveLeafID = u.ID

	before := session.ActiveLeafID
	data, err := e.PreviewContext(session, testAgent(), nil, u.ID)
	require.NoError(t, err)

	require.Len(t, data.FinalMessages, 2)
	assert.Len(t, data.PresetMessages, 1)
	assert.Len(t, data.ChatHistory, 1)
	assert.Equal(t, before, session.ActiveLeafID)
	assert.Len(t, session.History, 1, "preview must not record history")
}

func nodestoreFields(role types.Role, content string) nodestore.NodeFields {
	return nodestore.NodeFields{Role: role, Content: content}
}
