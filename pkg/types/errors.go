package types

import (
	"errors"
	"fmt"
)

// Structural errors from the Node Store. They abort the current mutation
// and never corrupt session state.
var (
	ErrNodeNotFound        = errors.New("node not found")
	ErrCycleWouldBeCreated = errors.New("attach would create a cycle")
	ErrInvalidMutation     = errors.New("invalid mutation")
)

// ErrHistoryCorruption is returned when jump_to cannot find an anchor
// snapshot; the caller is expected to clear history and continue — data in
// Nodes remains valid.
var ErrHistoryCorruption = errors.New("history corruption: no anchor snapshot found")

// ErrBudgetExceeded means the protected message set alone exceeds the
// configured token budget; the Token Limiter logs this and proceeds without
// truncating.
var ErrBudgetExceeded = errors.New("protected messages exceed token budget")

// ErrTranscriptionUnavailable is a warning-only condition: the pipeline
// keeps the raw attachment and proceeds.
var ErrTranscriptionUnavailable = errors.New("transcription unavailable")

// ErrPersistenceFailure wraps a PersistenceAdapter failure surfaced to the
// caller of the mutation that triggered the save.
var ErrPersistenceFailure = errors.New("persistence failure")

// StreamErrorKind enumerates the provider failure modes the Executor must
// distinguish when marking a streaming Node as errored.
type StreamErrorKind string

const (
	StreamErrNetwork       StreamErrorKind = "network"
	StreamErrAuth          StreamErrorKind = "auth"
	StreamErrRateLimit     StreamErrorKind = "rate_limit"
	StreamErrTimeout       StreamErrorKind = "timeout"
	StreamErrContentFilter StreamErrorKind = "content_filter"
	StreamErrCancelled     StreamErrorKind = "cancelled"
	StreamErrUnknown       StreamErrorKind = "unknown"
)

// LlmStreamError is a user-visible error surfaced on a streaming Node.
type LlmStreamError struct {
	Kind    StreamErrorKind
	Message string
}

func (e *LlmStreamError) Error() string {
	return fmt.Sprintf("llm stream error (%s): %s", e.Kind, e.Message)
}

// NewStreamError builds an *LlmStreamError, the constructor provider
// adapters use when classifying a provider failure.
func NewStreamError(kind StreamErrorKind, message string) *LlmStreamError {
	return &LlmStreamError{Kind: kind, Message: message}
}

// PipelineProcessorFailure records that one processor failed non-fatally;
// it is logged and the processor's input passes through unchanged. It is
// never returned as a fatal error from RunPipeline.
type PipelineProcessorFailure struct {
	Stage string
	Err   error
}

func (e *PipelineProcessorFailure) Error() string {
	return fmt.Sprintf("pipeline stage %q failed non-fatally: %v", e.Stage, e.Err)
}

func (e *PipelineProcessorFailure) Unwrap() error { return e.Err }

// PipelineFatalError aborts the whole pipeline and surfaces to the Executor:
// a required processor output was missing or the data was inconsistent.
type PipelineFatalError struct {
	Stage string
	Err   error
}

func (e *PipelineFatalError) Error() string {
	return fmt.Sprintf("pipeline stage %q failed fatally: %v", e.Stage, e.Err)
}

func (e *PipelineFatalError) Unwrap() error { return e.Err }
