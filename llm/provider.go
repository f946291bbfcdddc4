package llm

import "context"

// Provider is the uniform surface every backend adapter implements.
// Complete returns the full response; Stream emits incremental chunks
// on the returned channel and closes it when the response is
// complete or ctx is cancelled.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
	ModelName() string
}

// streamFromComplete adapts a provider that only knows how to produce
// a full response into the streaming interface, matching the
// teacher's "default streaming adapter wraps a synchronous one"
// composition note (§9). Used by providers with no native streaming
// transport for a given call shape.
func streamFromComplete(ctx context.Context, p Provider, req Request) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	go func() {
		defer close(ch)
		resp, err := p.Complete(ctx, req)
		if err != nil {
			select {
			case ch <- StreamChunk{Type: "error", Err: err}:
			case <-ctx.Done():
			}
			return
		}
		if resp.Content != "" {
			select {
			case ch <- StreamChunk{Type: "text", Text: resp.Content}:
			case <-ctx.Done():
				return
			}
		}
		for i := range resp.ToolCalls {
			tc := resp.ToolCalls[i]
			select {
			case ch <- StreamChunk{Type: "tool_call", ToolCall: &tc}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- StreamChunk{Type: "done", Tokens: resp.Tokens}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
