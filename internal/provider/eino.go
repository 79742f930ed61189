package provider

import (
	"context"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/pkg/types"
)

// einoClient adapts any Eino chat model to the Client interface. Both the
// Anthropic and OpenAI adapters are this type under a different
// constructor.
type einoClient struct {
	chatModel model.BaseChatModel
}

// Stream converts the request, drives the Eino stream reader in a
// goroutine and re-emits its accumulated-or-delta chunks as pure deltas.
func (c *einoClient) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		opts := []model.Option{}
		if req.MaxTokens > 0 {
			opts = append(opts, model.WithMaxTokens(req.MaxTokens))
		}
		if req.Temperature > 0 {
			opts = append(opts, model.WithTemperature(float32(req.Temperature)))
		}
		if req.TopP > 0 {
			opts = append(opts, model.WithTopP(float32(req.TopP)))
		}
		if req.ModelID != "" {
			opts = append(opts, model.WithModel(req.ModelID))
		}

		reader, err := c.chatModel.Stream(ctx, toEinoMessages(req.Messages), opts...)
		if err != nil {
			errs <- ClassifyError(err)
			return
		}
		defer reader.Close()

		var accText, accReasoning string
		for {
			msg, err := reader.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- ClassifyError(err)
				return
			}

			var chunk Chunk
			accText, chunk.TextDelta = advance(accText, msg.Content)
			accReasoning, chunk.ReasoningDelta = advance(accReasoning, msg.ReasoningContent)

			if meta := msg.ResponseMeta; meta != nil {
				chunk.FinishReason = meta.FinishReason
				if meta.Usage != nil {
					chunk.Usage = &types.Usage{
						InputTokens:  meta.Usage.PromptTokens,
						OutputTokens: meta.Usage.CompletionTokens,
					}
				}
			}

			if chunk.TextDelta == "" && chunk.ReasoningDelta == "" && chunk.Usage == nil && chunk.FinishReason == "" {
				continue
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return chunks, errs
}

// advance reconciles a provider chunk that may be either accumulated
// (starts with everything seen so far) or a bare delta, returning the new
// accumulated value and the delta to emit.
func advance(acc, incoming string) (newAcc, delta string) {
	if incoming == "" {
		return acc, ""
	}
	if strings.HasPrefix(incoming, acc) {
		return incoming, incoming[len(acc):]
	}
	return acc + incoming, incoming
}

// toEinoMessages converts the pipeline's canonical message list to Eino's
// schema. Messages whose content still carries typed parts become
// multi-part messages; resolved media rides as URL parts (data URIs and
// file URIs are both URLs to Eino).
func toEinoMessages(messages []pipeline.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		role := schema.Assistant
		switch m.Role {
		case types.RoleUser:
			role = schema.User
		case types.RoleSystem:
			role = schema.System
		}

		msg := &schema.Message{Role: role}
		if m.Content.IsPlainText() {
			msg.Content = m.Content.Text
			out = append(out, msg)
			continue
		}

		for _, p := range m.Content.Parts {
			if part, ok := toEinoPart(p); ok {
				msg.MultiContent = append(msg.MultiContent, part)
			}
		}
		out = append(out, msg)
	}
	return out
}

func toEinoPart(p types.Part) (schema.ChatMessagePart, bool) {
	uri := ""
	mime := ""
	if p.Resolved != nil {
		uri = p.Resolved.DataURI
		if uri == "" {
			uri = p.Resolved.FileURI
		}
		mime = p.Resolved.MimeType
	}

	switch p.Kind {
	case types.PartText:
		return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text}, true
	case types.PartImage:
		if uri == "" {
			return schema.ChatMessagePart{}, false
		}
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: uri, MIMEType: mime},
		}, true
	case types.PartAudio:
		if uri == "" {
			return schema.ChatMessagePart{}, false
		}
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeAudioURL,
			AudioURL: &schema.ChatMessageAudioURL{URL: uri, MIMEType: mime},
		}, true
	case types.PartVideo:
		if uri == "" {
			return schema.ChatMessagePart{}, false
		}
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeVideoURL,
			VideoURL: &schema.ChatMessageVideoURL{URL: uri, MIMEType: mime},
		}, true
	case types.PartDocument:
		if uri == "" {
			return schema.ChatMessagePart{}, false
		}
		return schema.ChatMessagePart{
			Type:    schema.ChatMessagePartTypeFileURL,
			FileURL: &schema.ChatMessageFileURL{URL: uri, MIMEType: mime},
		}, true
	case types.PartToolUse, types.PartToolResult:
		// Inert in this engine: carried as text so context is not lost.
		if p.ToolOutput != "" {
			return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.ToolOutput}, true
		}
		return schema.ChatMessagePart{}, false
	default:
		return schema.ChatMessagePart{}, false
	}
}
