package node

import (
	"context"
	"testing"

	"github.com/flowctl/convoy/flow/ftypes"
)

func drainChunks(ch <-chan ftypes.Chunk) []ftypes.Chunk {
	var out []ftypes.Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestStartNodeEmitsMessageAsContentAndSavesOutput(t *testing.T) {
	n := &StartNode{id: "start1", label: "Start"}
	state := newTestFlowState()
	nc := &Context{Message: "hello world", AgentName: "assistant", State: state}

	ch, err := n.ExecuteStream(context.Background(), nc)
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	chunks := drainChunks(ch)
	if len(chunks) != 1 || chunks[0].Content != "hello world" || chunks[0].Type != ftypes.Content {
		t.Fatalf("chunks = %+v, want one content chunk with the message", chunks)
	}
	if outputs := state.NodeOutputs("start1"); len(outputs) != 1 || outputs[0] != "hello world" {
		t.Fatalf("NodeOutputs(start1) = %v, want [hello world]", outputs)
	}
}

func TestEndNodeEmitsLastOutputAsFinal(t *testing.T) {
	n := &EndNode{id: "end1", label: "End"}
	state := newTestFlowState()
	state.SetLastOutput("the answer")
	nc := &Context{AgentName: "assistant", State: state}

	ch, err := n.ExecuteStream(context.Background(), nc)
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	chunks := drainChunks(ch)
	if len(chunks) != 1 || chunks[0].Content != "the answer" || chunks[0].Type != ftypes.Final || !chunks[0].IsEnd {
		t.Fatalf("chunks = %+v, want one final is_end chunk with the last output", chunks)
	}
}

func TestEndNodeNonStringLastOutputYieldsEmptyContent(t *testing.T) {
	n := &EndNode{id: "end1"}
	state := newTestFlowState()
	state.SetLastOutput(map[string]interface{}{"structured": true})
	nc := &Context{State: state}

	chunks := drainChunks(mustStream(t, n, nc))
	if len(chunks) != 1 || chunks[0].Content != "" {
		t.Fatalf("chunks = %+v, want empty content for a non-string last_output", chunks)
	}
}

func mustStream(t *testing.T, n Node, nc *Context) <-chan ftypes.Chunk {
	t.Helper()
	ch, err := n.ExecuteStream(context.Background(), nc)
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	return ch
}
