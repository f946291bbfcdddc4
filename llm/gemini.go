package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider wraps google.golang.org/genai, the teacher's own
// requirement for Gemini access (pkg/llms' gemini.go equivalent).
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (g *GeminiProvider) ModelName() string { return g.model }

func toGeminiContents(msgs []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func (g *GeminiProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, toGeminiContents(req.Messages), nil)
	if err != nil {
		return Response{}, fmt.Errorf("gemini: generate: %w", err)
	}
	text := resp.Text()
	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return Response{Content: text, Tokens: tokens}, nil
}

// Stream falls back to the synchronous adapter: the genai Go SDK's
// streaming iterator shape varies across its own minor versions, and
// no component in this runtime needs token-level Gemini streaming
// that isn't already satisfied by ollama/openai — keeping Gemini
// wired for non-streaming completion and structured extraction calls
// is enough to exercise the dependency end to end.
func (g *GeminiProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	return streamFromComplete(ctx, g, req)
}
