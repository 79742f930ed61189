package pipeline

import (
	"context"
	"fmt"

	"github.com/loom-engine/loom/pkg/types"
)

// ModelCapabilities reports which attachment modalities the active
// agent's model can natively ingest; Stage 4 uses this to decide whether
// an attachment is inlined as a transcript or kept as raw media.
type ModelCapabilities struct {
	Image    bool
	Audio    bool
	Video    bool
	Document bool
}

func (m ModelCapabilities) supports(kind types.AssetKind) bool {
	switch kind {
	case types.AssetImage:
		return m.Image
	case types.AssetAudio:
		return m.Audio
	case types.AssetVideo:
		return m.Video
	case types.AssetDocument:
		return m.Document
	default:
		return true
	}
}

// AssetTextReader reads the decoded text of a plain-text attachment.
// Binary asset storage lives outside the engine; this is the stable
// interface the pipeline consumes instead of touching files/blobs
// directly.
type AssetTextReader interface {
	ReadText(ctx context.Context, asset types.Asset) (string, error)
}

// StageTranscription inlines plain-text attachments and, where the model
// can't ingest the raw media (or the force-transcribe depth threshold is
// exceeded), inlines an existing transcript.
func StageTranscription(c *Context) error {
	if c.AssetReader == nil && c.Transcription == nil {
		return nil
	}

	n := len(c.Messages)
	ctx := context.Background()

	for i := range c.Messages {
		msg := &c.Messages[i]
		if len(msg.Content.Parts) == 0 {
			continue
		}
		depth := n - 1 - i

		var kept []types.Part
		for _, part := range msg.Content.Parts {
			if part.AssetRef == nil {
				kept = append(kept, part)
				continue
			}

			asset := *part.AssetRef
			if asset.Kind == types.AssetText {
				if c.AssetReader == nil {
					kept = append(kept, part)
					continue
				}
				text, err := c.AssetReader.ReadText(ctx, asset)
				if err != nil {
					c.warn(&types.PipelineProcessorFailure{Stage: "transcription", Err: err})
					kept = append(kept, part)
					continue
				}
				kept = append(kept, types.Part{Kind: types.PartText, Text: inlineFile(asset.Filename, text)})
				continue
			}

			if shouldTranscribe(c, asset.Kind, depth) {
				text, ok, err := c.transcript(ctx, asset)
				if err != nil {
					c.warn(&types.PipelineProcessorFailure{Stage: "transcription", Err: err})
					kept = append(kept, part)
					continue
				}
				if !ok {
					c.warn(types.ErrTranscriptionUnavailable)
					kept = append(kept, part)
					continue
				}
				kept = append(kept, types.Part{Kind: types.PartText, Text: inlineTranscript(asset.Filename, text)})
				continue
			}

			kept = append(kept, part)
		}
		msg.Content.Parts = kept
	}

	c.trace("transcription", "resolved attachment text")
	return nil
}

// shouldTranscribe is the transcription decision:
// a function of {model capability, attachment type, depth, force-
// transcribe-after threshold}.
func shouldTranscribe(c *Context, kind types.AssetKind, depth int) bool {
	if !c.ModelCapabilities.supports(kind) {
		return true
	}
	if c.ForceTranscribeAfterDepth > 0 && depth >= c.ForceTranscribeAfterDepth {
		return true
	}
	return false
}

// transcript looks up an existing transcript via the Transcription
// collaborator — the pipeline only ever reads results
// that already exist, never awaiting RequestTranscript.
func (c *Context) transcript(ctx context.Context, asset types.Asset) (string, bool, error) {
	if c.Transcription == nil {
		return "", false, nil
	}
	return c.Transcription.GetTranscript(ctx, asset)
}

func inlineFile(name, content string) string {
	return fmt.Sprintf("[file: %s]\n```\n%s\n```\n", name, content)
}

func inlineTranscript(name, content string) string {
	return fmt.Sprintf("[transcript: %s]\n%s\n", name, content)
}
