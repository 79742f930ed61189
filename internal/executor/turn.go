package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/loom-engine/loom/internal/event"
	"github.com/loom-engine/loom/internal/nodestore"
	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/internal/provider"
	"github.com/loom-engine/loom/pkg/types"
)

// SendMessage appends a user node under the session's active leaf, starts a
// new assistant node streaming beneath it, and returns once the stream has
// settled (completed, errored, or was aborted).
func (e *Executor) SendMessage(ctx context.Context, session *types.Session, agent *types.Agent, profile *types.UserProfile, text string, attachments []types.Asset) error {
	parent, err := activeLeaf(session)
	if err != nil {
		return fmt.Errorf("send_message: %w", err)
	}

	store := e.store(session)
	userNode, userRel, err := store.CreateChild(parent.ID, nodestore.NodeFields{
		Role:        types.RoleUser,
		Content:     text,
		Attachments: attachments,
	})
	if err != nil {
		return fmt.Errorf("send_message: create user node: %w", err)
	}
	session.ActiveLeafID = userNode.ID
	e.log().Record(session, types.ActionCreateNode, []types.Delta{{
		Kind:           types.DeltaCreate,
		Node:           userNode.Clone(),
		RelationChange: &userRel,
	}}, "send message")
	event.Publish(event.Event{
		Type: event.NodeCreated,
		Data: event.NodeCreatedData{SessionID: session.ID, Node: userNode},
	})

	return e.runTurn(ctx, session, agent, profile, userNode.ID)
}

// RegenerateFrom walks up from nodeID to the nearest user node and streams
// a new assistant sibling under it.
func (e *Executor) RegenerateFrom(ctx context.Context, session *types.Session, agent *types.Agent, profile *types.UserProfile, nodeID string) error {
	userNode, err := nearestUserAncestor(session, nodeID)
	if err != nil {
		return fmt.Errorf("regenerate_from: %w", err)
	}
	return e.runTurn(ctx, session, agent, profile, userNode.ID)
}

func nearestUserAncestor(session *types.Session, nodeID string) (*types.Node, error) {
	node, ok := session.Nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %q: %w", nodeID, types.ErrNodeNotFound)
	}
	for node != nil {
		if node.Role == types.RoleUser {
			return node, nil
		}
		if node.ParentID == "" {
			break
		}
		node = session.Nodes[node.ParentID]
	}
	return nil, fmt.Errorf("no user ancestor found above %q: %w", nodeID, types.ErrNodeNotFound)
}

// runTurn creates the assistant node under userNodeID, assembles context
// excluding that node, and drives the provider stream into it. The turn
// always ends with a history breakpoint, even on pipeline failure, since
// sending and regenerating are unconditional breakpoints.
func (e *Executor) runTurn(ctx context.Context, session *types.Session, agent *types.Agent, profile *types.UserProfile, userNodeID string) error {
	store := e.store(session)

	var modelID string
	var meta types.NodeMetadata
	if agent != nil {
		modelID = agent.ModelID
		meta = types.NodeMetadata{
			ModelID: modelID,
			Agent:   &types.AgentSnapshot{ID: agent.ID, Name: agent.Name, Icon: agent.Icon},
		}
		if session.AgentUsage == nil {
			session.AgentUsage = map[string]int{}
		}
		session.AgentUsage[agent.ID]++
		session.DisplayAgentID = agent.ID
	}

	assistantNode, _, err := store.CreateChild(userNodeID, nodestore.NodeFields{
		Role:     types.RoleAssistant,
		Status:   types.StatusGenerating,
		Content:  "",
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("run_turn: create assistant node: %w", err)
	}
	session.ActiveLeafID = assistantNode.ID
	event.Publish(event.Event{
		Type: event.NodeCreated,
		Data: event.NodeCreatedData{SessionID: session.ID, Node: assistantNode},
	})
	e.publishActiveLeafChanged(session)

	defer func() {
		e.log().ClearHistory(session)
		e.publishHistoryChanged(session)
		_ = e.persist(context.WithoutCancel(ctx), session)
	}()

	streamCtx, cancel := context.WithTimeout(ctx, e.deps.RequestTimeout)
	e.register(assistantNode.ID, cancel)
	defer e.unregister(assistantNode.ID)
	defer cancel()

	pc := e.buildContext(session, agent, profile, assistantNode.ID)
	if err := pipeline.RunPipeline(pc); err != nil {
		e.finalize(store, session, assistantNode.ID, settle{
			err: types.NewStreamError(types.StreamErrUnknown, err.Error()),
		})
		return fmt.Errorf("run_turn: pipeline: %w", err)
	}

	req := provider.Request{Messages: pc.Messages, ModelID: modelID}
	if agent != nil {
		req.Temperature = agent.Parameters.Temperature
		req.TopP = agent.Parameters.TopP
		req.MaxTokens = agent.Parameters.MaxTokens
	}
	if session.ParameterOverrides != nil {
		o := session.ParameterOverrides
		if o.Temperature > 0 {
			req.Temperature = o.Temperature
		}
		if o.TopP > 0 {
			req.TopP = o.TopP
		}
		if o.MaxTokens > 0 {
			req.MaxTokens = o.MaxTokens
		}
	}

	if e.deps.ClientFor == nil {
		e.finalize(store, session, assistantNode.ID, settle{
			err: types.NewStreamError(types.StreamErrUnknown, "no provider configured"),
		})
		return fmt.Errorf("run_turn: no provider configured")
	}
	client, err := e.deps.ClientFor(streamCtx, modelID)
	if err != nil {
		e.finalize(store, session, assistantNode.ID, settle{err: provider.ClassifyError(err)})
		return fmt.Errorf("run_turn: resolve provider: %w", err)
	}

	chunks, errs := client.Stream(streamCtx, req)
	e.drainStream(streamCtx, store, session, assistantNode.ID, chunks, errs)
	return nil
}

// settle carries a stream's terminal outcome into finalize.
type settle struct {
	content   string
	reasoning string
	usage     *types.Usage
	err       *types.LlmStreamError

	streamStart  time.Time
	firstTokenAt time.Time
}

// drainStream reads chunks until the channel closes or an error/cancel
// arrives, applying text/reasoning deltas to the assistant node. Delta
// notifications are coalesced on the flush interval so observers see a
// bounded update rate. Terminal state: complete on success or
// abort-with-partial, error on failure or abort-with-nothing.
func (e *Executor) drainStream(ctx context.Context, store *nodestore.Store, session *types.Session, nodeID string, chunks <-chan provider.Chunk, errs <-chan error) {
	st := settle{streamStart: time.Now()}
	lastFlush := time.Time{}

	flush := func(force bool) {
		if !force && time.Since(lastFlush) < e.deps.FlushInterval {
			return
		}
		lastFlush = time.Now()
		e.updateStreamingContent(store, nodeID, st.content, st.reasoning)
		event.Publish(event.Event{
			Type: event.StreamDelta,
			Data: event.StreamDeltaData{
				SessionID: session.ID,
				NodeID:    nodeID,
				Content:   st.content,
				Reasoning: st.reasoning,
			},
		})
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				flush(true)
				if ctx.Err() != nil && st.content == "" {
					st.err = classifyCtxErr(ctx, "")
				}
				e.finalize(store, session, nodeID, st)
				return
			}
			if st.firstTokenAt.IsZero() && (chunk.TextDelta != "" || chunk.ReasoningDelta != "") {
				st.firstTokenAt = time.Now()
			}
			st.content += chunk.TextDelta
			st.reasoning += chunk.ReasoningDelta
			if chunk.Usage != nil {
				st.usage = chunk.Usage
			}
			flush(false)

		case err, ok := <-errs:
			if !ok || err == nil {
				continue
			}
			flush(true)
			if ctx.Err() == nil || st.content == "" {
				st.err = provider.ClassifyError(err)
				if ctx.Err() != nil {
					st.err = classifyCtxErr(ctx, err.Error())
				}
			}
			e.finalize(store, session, nodeID, st)
			return

		case <-ctx.Done():
			flush(true)
			if st.content == "" {
				st.err = classifyCtxErr(ctx, "")
			}
			e.finalize(store, session, nodeID, st)
			return
		}
	}
}

// classifyCtxErr distinguishes an abort from a deadline.
func classifyCtxErr(ctx context.Context, detail string) *types.LlmStreamError {
	if ctx.Err() == context.DeadlineExceeded {
		return types.NewStreamError(types.StreamErrTimeout, "timeout")
	}
	if detail == "" {
		detail = "aborted"
	}
	return types.NewStreamError(types.StreamErrCancelled, detail)
}

// updateStreamingContent writes the accumulated content to the node
// without changing its status; streaming updates are never recorded to
// history.
func (e *Executor) updateStreamingContent(store *nodestore.Store, nodeID, content, reasoning string) {
	node, ok := store.Session().Nodes[nodeID]
	if !ok {
		return
	}
	meta := node.Metadata
	meta.ReasoningContent = reasoning
	_, _, _ = store.UpdateContent(nodeID, nodestore.ContentUpdate{
		Content:  &content,
		Metadata: &meta,
	})
}

// finalize moves the streaming node to its terminal state and derives the
// stream's performance metrics. Partial content survives an abort as a
// completed node; an empty abort or a provider failure is an error node.
func (e *Executor) finalize(store *nodestore.Store, session *types.Session, nodeID string, st settle) {
	node, ok := store.Session().Nodes[nodeID]
	if !ok {
		return
	}
	meta := node.Metadata
	meta.ReasoningContent = st.reasoning
	meta.Usage = st.usage

	status := types.StatusComplete
	if st.err != nil && st.content == "" {
		status = types.StatusError
		meta.Error = st.err.Error()
	}

	if status == types.StatusComplete && !st.streamStart.IsZero() && !st.firstTokenAt.IsZero() {
		perf := &types.Performance{
			FirstTokenLatencyMs: st.firstTokenAt.Sub(st.streamStart).Milliseconds(),
		}
		outputTokens := 0
		if st.usage != nil {
			outputTokens = st.usage.OutputTokens
			meta.TokenCount = st.usage.OutputTokens
		}
		if outputTokens == 0 {
			outputTokens = len(st.content) / 4
		}
		if elapsed := time.Since(st.firstTokenAt).Seconds(); elapsed > 0 && outputTokens > 0 {
			perf.TokensPerSecond = float64(outputTokens) / elapsed
		}
		meta.Performance = perf
	}

	_, _, _ = store.UpdateContent(nodeID, nodestore.ContentUpdate{
		Content:  &st.content,
		Status:   &status,
		Metadata: &meta,
	})

	event.Publish(event.Event{
		Type: event.StreamFinalized,
		Data: event.StreamFinalizedData{SessionID: session.ID, Node: store.Session().Nodes[nodeID]},
	})
}
