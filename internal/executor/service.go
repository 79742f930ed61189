package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/loom-engine/loom/internal/agent"
	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/event"
	"github.com/loom-engine/loom/internal/storage"
	"github.com/loom-engine/loom/pkg/types"
)

// Service is the session-id keyed front of the engine: it loads and caches
// sessions, resolves each session's agent and profile, serializes all
// mutations per session, and delegates the work to the Executor. This is
// the surface the HTTP transport and the CLI drive.
type Service struct {
	exec     *Executor
	sessions *storage.SessionStore
	agents   *agent.Registry

	mu     sync.Mutex
	loaded map[string]*sessionEntry
}

// sessionEntry pairs a loaded session with the mutex that serializes its
// mutations. Sessions on different entries proceed in parallel.
type sessionEntry struct {
	mu      sync.Mutex
	session *types.Session
}

// NewService builds a Service over its three collaborators.
func NewService(exec *Executor, sessions *storage.SessionStore, agents *agent.Registry) *Service {
	return &Service{
		exec:     exec,
		sessions: sessions,
		agents:   agents,
		loaded:   map[string]*sessionEntry{},
	}
}

// Executor exposes the underlying executor, mainly for IsSending queries.
func (s *Service) Executor() *Executor { return s.exec }

// CreateSession opens a new session for agentID (empty means the default
// agent), rooted at a system node, and persists it.
func (s *Service) CreateSession(ctx context.Context, agentID string) (*types.Session, error) {
	if agentID == "" {
		agentID = agent.DefaultAgentID
	}
	if _, err := s.agents.Get(agentID); err != nil {
		return nil, fmt.Errorf("create_session: %w", err)
	}

	now := s.exec.deps.Clock()
	root := types.NewNode(s.exec.deps.IDGen(), types.RoleSystem, "", now)
	session := types.NewSession(s.exec.deps.IDGen(), root, now)
	session.DisplayAgentID = agentID
	s.exec.log().ClearHistory(session)

	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.loaded[session.ID] = &sessionEntry{session: session}
	s.mu.Unlock()

	event.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{Info: session},
	})
	return session, nil
}

// ListSessions returns the stored session index, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]types.SessionMeta, error) {
	return s.sessions.LoadIndex(ctx)
}

// GetSession returns the live session for id, loading it on first touch.
func (s *Service) GetSession(ctx context.Context, id string) (*types.Session, error) {
	entry, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return entry.session, nil
}

// DeleteSession aborts any streams feeding the session, drops it from the
// cache and moves its record to the recycle bin.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	entry, ok := s.loaded[id]
	delete(s.loaded, id)
	s.mu.Unlock()

	if ok {
		for nodeID := range entry.session.Nodes {
			s.exec.Abort(nodeID)
		}
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}
	event.Publish(event.Event{
		Type: event.SessionDeleted,
		Data: event.SessionDeletedData{SessionID: id},
	})
	return nil
}

// entry loads (or returns the cached) sessionEntry for id.
func (s *Service) entry(ctx context.Context, id string) (*sessionEntry, error) {
	s.mu.Lock()
	if e, ok := s.loaded[id]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	session, err := s.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.exec.log().ClearHistory(session)
	if err := branch.EnsureValidActiveLeaf(session); err != nil {
		return nil, fmt.Errorf("load session %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.loaded[id]; ok { // lost a load race; keep the first
		return e, nil
	}
	e := &sessionEntry{session: session}
	s.loaded[id] = e
	return e, nil
}

// resolve returns the agent and profile the session currently speaks
// through.
func (s *Service) resolve(session *types.Session) (*types.Agent, *types.UserProfile, error) {
	agentID := session.DisplayAgentID
	if agentID == "" {
		agentID = agent.DefaultAgentID
	}
	a, err := s.agents.Get(agentID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.agents.ProfileFor(a)
	if err != nil {
		return nil, nil, err
	}
	return a, p, nil
}

// withSession runs fn holding the session's serialization lock.
func (s *Service) withSession(ctx context.Context, id string, fn func(*types.Session) error) error {
	entry, err := s.entry(ctx, id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.session)
}

// SendMessage runs one full turn against the session's current agent.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string, attachments []types.Asset) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		a, p, err := s.resolve(session)
		if err != nil {
			return err
		}
		return s.exec.SendMessage(ctx, session, a, p, text, attachments)
	})
}

// RegenerateFrom streams a fresh assistant sibling for nodeID's turn.
func (s *Service) RegenerateFrom(ctx context.Context, sessionID, nodeID string) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		a, p, err := s.resolve(session)
		if err != nil {
			return err
		}
		return s.exec.RegenerateFrom(ctx, session, a, p, nodeID)
	})
}

// Abort cancels one streaming node, or every streaming node of the session
// when nodeID is empty. It takes no session lock: the stream holding the
// lock is exactly what it interrupts.
func (s *Service) Abort(sessionID, nodeID string) {
	if nodeID != "" {
		s.exec.Abort(nodeID)
		return
	}
	s.mu.Lock()
	entry, ok := s.loaded[sessionID]
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, id := range s.exec.GeneratingNodes() {
		if _, mine := entry.session.Nodes[id]; mine {
			s.exec.Abort(id)
		}
	}
}

// EditContent replaces a node's content.
func (s *Service) EditContent(ctx context.Context, sessionID, nodeID, newText string, newAttachments []types.Asset) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.EditContent(ctx, session, nodeID, newText, newAttachments)
	})
}

// ToggleEnabled flips a node's enabled flag.
func (s *Service) ToggleEnabled(ctx context.Context, sessionID, nodeID string) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.ToggleEnabled(ctx, session, nodeID)
	})
}

// DeleteSubtree removes a node and its descendants.
func (s *Service) DeleteSubtree(ctx context.Context, sessionID, nodeID string) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.DeleteSubtree(ctx, session, nodeID)
	})
}

// MoveNode grafts a subtree under a new parent.
func (s *Service) MoveNode(ctx context.Context, sessionID, nodeID, newParentID string, index int) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.MoveNode(ctx, session, nodeID, newParentID, index)
	})
}

// SwitchActiveLeaf reroutes the active branch through nodeID.
func (s *Service) SwitchActiveLeaf(ctx context.Context, sessionID, nodeID string) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.SwitchActiveLeaf(ctx, session, nodeID)
	})
}

// SwitchSibling moves the active branch to a neighboring sibling.
func (s *Service) SwitchSibling(ctx context.Context, sessionID, nodeID string, direction branch.Direction) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.SwitchSibling(ctx, session, nodeID, direction)
	})
}

// CreateBranch duplicates a node as a sibling and returns the new id.
func (s *Service) CreateBranch(ctx context.Context, sessionID, sourceNodeID string) (string, error) {
	var newID string
	err := s.withSession(ctx, sessionID, func(session *types.Session) error {
		id, err := s.exec.CreateBranch(ctx, session, sourceNodeID)
		newID = id
		return err
	})
	return newID, err
}

// Undo steps the session's history backward.
func (s *Service) Undo(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.Undo(ctx, session)
	})
}

// Redo steps the session's history forward.
func (s *Service) Redo(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, func(session *types.Session) error {
		return s.exec.Redo(ctx, session)
	})
}

// PreviewContext reports what the provider would receive if a message
// were sent from nodeID.
func (s *Service) PreviewContext(ctx context.Context, sessionID, nodeID string) (*ContextPreviewData, error) {
	var data *ContextPreviewData
	err := s.withSession(ctx, sessionID, func(session *types.Session) error {
		a, p, err := s.resolve(session)
		if err != nil {
			return err
		}
		data, err = s.exec.PreviewContext(session, a, p, nodeID)
		return err
	})
	return data, err
}
