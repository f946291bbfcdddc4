package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeCompleteOnlyProvider struct {
	resp Response
	err  error
}

func (p *fakeCompleteOnlyProvider) Complete(ctx context.Context, req Request) (Response, error) {
	return p.resp, p.err
}
func (p *fakeCompleteOnlyProvider) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	return streamFromComplete(ctx, p, req)
}
func (p *fakeCompleteOnlyProvider) ModelName() string { return "fake" }

func TestStreamFromCompleteEmitsTextThenDone(t *testing.T) {
	p := &fakeCompleteOnlyProvider{resp: Response{Content: "hello", Tokens: 5}}
	ch, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var chunks []StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 || chunks[0].Type != "text" || chunks[0].Text != "hello" {
		t.Fatalf("chunks = %+v, want [text:hello done]", chunks)
	}
	if chunks[1].Type != "done" || chunks[1].Tokens != 5 {
		t.Fatalf("final chunk = %+v, want done with tokens=5", chunks[1])
	}
}

func TestStreamFromCompleteEmitsToolCalls(t *testing.T) {
	p := &fakeCompleteOnlyProvider{resp: Response{ToolCalls: []ToolCall{{ID: "1", Name: "search"}}}}
	ch, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var sawToolCall bool
	for c := range ch {
		if c.Type == "tool_call" {
			sawToolCall = true
			if c.ToolCall == nil || c.ToolCall.Name != "search" {
				t.Fatalf("tool_call chunk = %+v, want name=search", c.ToolCall)
			}
		}
	}
	if !sawToolCall {
		t.Fatal("expected a tool_call chunk")
	}
}

func TestStreamFromCompleteEmitsErrorOnFailure(t *testing.T) {
	p := &fakeCompleteOnlyProvider{err: errors.New("boom")}
	ch, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	chunks := make([]StreamChunk, 0)
	for c := range ch {
		chunks = append(chunks, c)
	}
	if len(chunks) != 1 || chunks[0].Type != "error" {
		t.Fatalf("chunks = %+v, want a single error chunk", chunks)
	}
}
