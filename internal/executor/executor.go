package executor

import (
	"context"
	"sync"
	"time"

	"github.com/loom-engine/loom/internal/branch"
	"github.com/loom-engine/loom/internal/event"
	"github.com/loom-engine/loom/internal/history"
	"github.com/loom-engine/loom/internal/logging"
	"github.com/loom-engine/loom/internal/nodestore"
	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/internal/provider"
	"github.com/loom-engine/loom/internal/tokenest"
	"github.com/loom-engine/loom/internal/transcription"
	"github.com/loom-engine/loom/internal/worldbook"
	"github.com/loom-engine/loom/pkg/types"
)

// Default turn knobs, overridable through Deps.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultFlushInterval  = 60 * time.Millisecond
)

// Deps wires an Executor to its collaborators: id/clock generation matching
// nodestore's and history's constructors, the provider resolver, and the
// pipeline's external collaborators. Every pipeline-facing field here is
// copied into a fresh pipeline.Context on each turn.
type Deps struct {
	IDGen func() string
	Clock func() int64

	// ClientFor resolves the streaming client serving a model id.
	ClientFor func(ctx context.Context, modelID string) (provider.Client, error)

	// Persist, when set, writes the session after every committed
	// mutation. A persist failure is surfaced to the caller; the
	// in-memory state it describes remains intact.
	Persist func(ctx context.Context, s *types.Session) error

	// RequestTimeout bounds one streaming completion; zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// FlushInterval coalesces streaming-delta notifications; zero means
	// DefaultFlushInterval.
	FlushInterval time.Duration

	AssetReader               pipeline.AssetTextReader
	Transcription             transcription.Service
	CapabilitiesFor           func(modelID string) pipeline.ModelCapabilities
	ForceTranscribeAfterDepth int
	Worldbook                 *worldbook.Index
	WorldbookEnabled          bool
	TokenEstimator            tokenest.Estimator
	VisionRule                tokenest.VisionCostRule
	DocumentRule              tokenest.DocumentCostRule
	FormatRules               []pipeline.FormatRule
	AssetResolver             pipeline.AssetResolver
	GlobalRegexRules          []types.RegexRule
}

// Executor orchestrates turns across any number of sessions. Streaming
// cancellation handles are keyed by node id rather than session id, since
// node ids are globally unique handles minted by IDGen.
type Executor struct {
	deps Deps

	mu         sync.Mutex
	generating map[string]context.CancelFunc
}

// New builds an Executor with the given collaborators.
func New(deps Deps) *Executor {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = DefaultRequestTimeout
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	return &Executor{deps: deps, generating: map[string]context.CancelFunc{}}
}

// IsSending reports whether any node, in any session, is currently
// streaming.
func (e *Executor) IsSending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.generating) > 0
}

// GeneratingNodes lists the ids of every node currently streaming.
func (e *Executor) GeneratingNodes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.generating))
	for id := range e.generating {
		out = append(out, id)
	}
	return out
}

// Abort cancels the stream feeding nodeID, if one is active. The stream's
// own settle path moves the node to its terminal state.
func (e *Executor) Abort(nodeID string) {
	e.mu.Lock()
	cancel, ok := e.generating[nodeID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// AbortAll cancels every active stream.
func (e *Executor) AbortAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.generating))
	for _, c := range e.generating {
		cancels = append(cancels, c)
	}
	e.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (e *Executor) register(nodeID string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generating[nodeID] = cancel
}

func (e *Executor) unregister(nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.generating, nodeID)
}

func (e *Executor) store(session *types.Session) *nodestore.Store {
	return nodestore.New(session, e.deps.IDGen, e.deps.Clock)
}

func (e *Executor) log() *history.Log {
	return history.New(e.deps.Clock)
}

// persist writes the session if a persister is configured. The in-memory
// mutation stands either way; only the write's failure is reported.
func (e *Executor) persist(ctx context.Context, session *types.Session) error {
	if e.deps.Persist == nil {
		return nil
	}
	if err := e.deps.Persist(ctx, session); err != nil {
		logging.Error().Err(err).Str("session", session.ID).Msg("session persist failed")
		return err
	}
	event.Publish(event.Event{
		Type: event.SessionUpdated,
		Data: event.SessionUpdatedData{Info: session},
	})
	return nil
}

func (e *Executor) publishHistoryChanged(session *types.Session) {
	event.Publish(event.Event{
		Type: event.HistoryChanged,
		Data: event.HistoryChangedData{
			SessionID:    session.ID,
			HistoryIndex: session.HistoryIndex,
			Length:       len(session.History),
		},
	})
}

func (e *Executor) publishActiveLeafChanged(session *types.Session) {
	event.Publish(event.Event{
		Type: event.ActiveLeafChanged,
		Data: event.ActiveLeafChangedData{
			SessionID:    session.ID,
			ActiveLeafID: session.ActiveLeafID,
		},
	})
}

// activeLeaf returns the session's current active leaf node.
func activeLeaf(session *types.Session) (*types.Node, error) {
	path, err := branch.ActivePath(session)
	if err != nil {
		return nil, err
	}
	return path[len(path)-1], nil
}
