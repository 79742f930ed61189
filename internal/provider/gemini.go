package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/loom-engine/loom/internal/pipeline"
	"github.com/loom-engine/loom/pkg/types"
)

// GeminiConfig holds configuration for the Gemini adapter.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// geminiClient adapts the google genai SDK to the Client interface.
type geminiClient struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiClient creates a Client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, config *GeminiConfig) (Client, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiClient{client: client, defaultModel: modelID}, nil
}

// Stream drives GenerateContentStream in a goroutine, translating
// candidates into chunks. Thought parts become reasoning deltas.
func (c *geminiClient) Stream(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		modelID := req.ModelID
		if modelID == "" {
			modelID = c.defaultModel
		}

		contents, systemInstruction := c.buildContents(req.Messages)
		cfg := &genai.GenerateContentConfig{}
		if systemInstruction != "" {
			cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
		}
		if req.Temperature > 0 {
			temp := float32(req.Temperature)
			cfg.Temperature = &temp
		}
		if req.TopP > 0 {
			topP := float32(req.TopP)
			cfg.TopP = &topP
		}
		if req.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(req.MaxTokens)
		}

		for resp, err := range c.client.Models.GenerateContentStream(ctx, modelID, contents, cfg) {
			if err != nil {
				errs <- ClassifyError(err)
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			candidate := resp.Candidates[0]

			var chunk Chunk
			if candidate.Content != nil {
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					if part.Thought {
						chunk.ReasoningDelta += part.Text
					} else {
						chunk.TextDelta += part.Text
					}
				}
			}
			if candidate.FinishReason != "" {
				chunk.FinishReason = string(candidate.FinishReason)
			}
			if resp.UsageMetadata != nil {
				chunk.Usage = &types.Usage{
					InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
					OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
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

// buildContents converts the canonical message list to genai contents,
// extracting system messages into a single system instruction (Gemini has
// no system role in its turn list).
func (c *geminiClient) buildContents(messages []pipeline.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	for _, m := range messages {
		if m.Role == types.RoleSystem {
			if text := flattenText(m); text != "" {
				system = append(system, text)
			}
			continue
		}

		role := genai.RoleModel
		if m.Role == types.RoleUser {
			role = genai.RoleUser
		}

		content := &genai.Content{Role: role}
		if m.Content.IsPlainText() {
			content.Parts = append(content.Parts, &genai.Part{Text: m.Content.Text})
		} else {
			for _, p := range m.Content.Parts {
				if part := toGeminiPart(p); part != nil {
					content.Parts = append(content.Parts, part)
				}
			}
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}

	return contents, strings.Join(system, "\n\n")
}

func toGeminiPart(p types.Part) *genai.Part {
	if p.Kind == types.PartText || p.Text != "" {
		if p.Text == "" {
			return nil
		}
		return &genai.Part{Text: p.Text}
	}
	if p.Resolved == nil {
		return nil
	}
	if p.Resolved.FileURI != "" {
		return &genai.Part{FileData: &genai.FileData{FileURI: p.Resolved.FileURI, MIMEType: p.Resolved.MimeType}}
	}
	if data, ok := decodeDataURI(p.Resolved.DataURI); ok {
		return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: p.Resolved.MimeType}}
	}
	return nil
}

// geminiModels returns the Gemini catalog entries.
func geminiModels() []Model {
	return []Model{
		{
			ID:                "gemini-2.0-flash",
			Name:              "Gemini 2.0 Flash",
			ProviderID:        "google",
			ContextLength:     1048576,
			MaxOutputTokens:   8192,
			SupportsVision:    true,
			SupportsAudio:     true,
			SupportsVideo:     true,
			SupportsDocuments: true,
			PreferFileURI:     true,
		},
		{
			ID:                "gemini-2.5-pro",
			Name:              "Gemini 2.5 Pro",
			ProviderID:        "google",
			ContextLength:     1048576,
			MaxOutputTokens:   65536,
			SupportsVision:    true,
			SupportsAudio:     true,
			SupportsVideo:     true,
			SupportsDocuments: true,
			SupportsReasoning: true,
			PreferFileURI:     true,
		},
	}
}
