package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaProvider talks to a local ollama daemon over its plain HTTP
// /api/chat endpoint. No client library exists for ollama in the
// pack, so this is a thin hand-rolled HTTP client — the one provider
// adapter in this package built directly on net/http rather than a
// vendor SDK, since ollama's wire protocol is tiny (a single JSON POST
// with optional newline-delimited streaming) and adding a dependency
// for it would not exercise any idiom this corpus doesn't already
// show via the teacher's own hand-rolled llms/ollama.go.
type OllamaProvider struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaProvider(host, model string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		host:   host,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (o *OllamaProvider) ModelName() string { return o.model }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []ollamaChatMessage  `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
	EvalCount int             `json:"eval_count"`
}

func toOllamaMessages(msgs []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ollamaChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (o *OllamaProvider) Complete(ctx context.Context, req Request) (Response, error) {
	body := ollamaChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   false,
	}
	if req.Temperature > 0 {
		body.Options = map[string]interface{}{"temperature": req.Temperature}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	return Response{Content: out.Message.Content, Tokens: out.EvalCount}, nil
}

func (o *OllamaProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	body := ollamaChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	ch := make(chan StreamChunk, 8)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		tokens := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				select {
				case ch <- StreamChunk{Type: "error", Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Message.Content != "" {
				select {
				case ch <- StreamChunk{Type: "text", Text: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.EvalCount > 0 {
				tokens = chunk.EvalCount
			}
			if chunk.Done {
				break
			}
		}
		select {
		case ch <- StreamChunk{Type: "done", Tokens: tokens}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
