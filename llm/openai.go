package llm

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider wraps github.com/sashabaranov/go-openai. The teacher
// hand-rolls its own OpenAI HTTP client; this adapter instead uses the
// ecosystem client library, matching how nevindra-oasis and
// haasonsaas-nexus consume OpenAI-compatible APIs.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, host, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if host != "" {
		cfg.BaseURL = host
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIProvider) ModelName() string { return o.model }

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}

func (o *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("openai: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("openai: empty choices")
	}
	choice := resp.Choices[0]
	out := Response{Content: choice.Message.Content, Tokens: resp.Usage.TotalTokens}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:      tc.ID,
			Name:    tc.Function.Name,
			RawArgs: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (o *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(req.Messages),
		Tools:       toOpenAITools(req.Tools),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: stream: %w", err)
	}
	ch := make(chan StreamChunk, 8)
	go func() {
		defer close(ch)
		defer stream.Close()
		tokens := 0
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				select {
				case ch <- StreamChunk{Type: "error", Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				select {
				case ch <- StreamChunk{Type: "text", Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				call := tc
				select {
				case ch <- StreamChunk{Type: "tool_call", ToolCall: &ToolCall{
					ID:      call.ID,
					Name:    call.Function.Name,
					RawArgs: call.Function.Arguments,
				}}:
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case ch <- StreamChunk{Type: "done", Tokens: tokens}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
