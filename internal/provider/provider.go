package provider

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/pkg/types"
)

// Request is one streaming completion request: the canonical message list
// produced by the pipeline plus sampling parameters.
type Request struct {
	Messages    []pipeline.Message
	ModelID     string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Chunk is one increment of a streaming completion. A chunk may carry a
// TextDelta, a ReasoningDelta or both; Usage and FinishReason are set on
// whichever chunks the upstream stream reports them in.
type Chunk struct {
	TextDelta      string
	ReasoningDelta string
	Usage          *types.Usage
	FinishReason   string
}

// Client is the opaque adapter one request is streamed through.
// Implementations own rate-limiting and API key rotation; the engine
// issues one request per streaming node and cancels via ctx for abort.
// Both returned channels close once the stream has settled; a value on
// the error channel is always a *types.LlmStreamError.
type Client interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error)
}

// Model describes one catalog entry: its identity and the modalities it
// can natively ingest, which the transcription stage consults.
type Model struct {
	ID              string
	Name            string
	ProviderID      string
	ContextLength   int
	MaxOutputTokens int

	SupportsVision    bool
	SupportsAudio     bool
	SupportsVideo     bool
	SupportsDocuments bool
	SupportsReasoning bool

	// PreferFileURI records the provider's document-format preference:
	// file handles over inline base64. The pipeline's asset resolver stage
	// does not read it.
	PreferFileURI bool
}

// Capabilities converts a catalog entry to the pipeline's modality view.
func (m Model) Capabilities() pipeline.ModelCapabilities {
	return pipeline.ModelCapabilities{
		Image:    m.SupportsVision,
		Audio:    m.SupportsAudio,
		Video:    m.SupportsVideo,
		Document: m.SupportsDocuments,
	}
}

// ClassifyError maps a transport failure onto the stream-error taxonomy.
// Providers wrap their terminal errors through this before surfacing them.
func ClassifyError(err error) *types.LlmStreamError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*types.LlmStreamError); ok {
		return se
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case err == context.Canceled || strings.Contains(lower, "context canceled"):
		return types.NewStreamError(types.StreamErrCancelled, msg)
	case err == context.DeadlineExceeded || strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timeout"):
		return types.NewStreamError(types.StreamErrTimeout, msg)
	case strings.Contains(lower, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication") || strings.Contains(lower, "api key"):
		return types.NewStreamError(types.StreamErrAuth, msg)
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "quota"):
		return types.NewStreamError(types.StreamErrRateLimit, msg)
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "content_filter") || strings.Contains(lower, "safety"):
		return types.NewStreamError(types.StreamErrContentFilter, msg)
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network") || strings.Contains(lower, "dns") || strings.Contains(lower, "eof"):
		return types.NewStreamError(types.StreamErrNetwork, msg)
	default:
		return types.NewStreamError(types.StreamErrUnknown, msg)
	}
}

// decodeDataURI extracts the raw bytes of a base64 data URI.
func decodeDataURI(uri string) ([]byte, bool) {
	const marker = ";base64,"
	i := strings.Index(uri, marker)
	if !strings.HasPrefix(uri, "data:") || i < 0 {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(uri[i+len(marker):])
	if err != nil {
		return nil, false
	}
	return data, true
}

// flattenText renders a message's content as plain text, inlining any
// already-textualized parts. Media parts without text are skipped; callers
// that can carry media use toGeminiPart or toEinoPart instead.
func flattenText(m pipeline.Message) string {
	if m.Content.IsPlainText() {
		return m.Content.Text
	}
	var b strings.Builder
	for _, p := range m.Content.Parts {
		if p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
