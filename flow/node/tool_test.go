package node

import (
	"context"
	"testing"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
	"github.com/flowctl/convoy/tool"
)

func newTestContext(state *FlowState, services Services, workspaceRoot string) *Context {
	return &Context{
		Message:   "hello",
		AgentName: "assistant",
		State:     state,
		Services:  services,
		Workspace: tool.NewWorkspace(workspaceRoot),
	}
}

func TestToolNodeResolvesSimpleName(t *testing.T) {
	n, err := NewToolNode(config.NodeCfg{ID: "t1", Data: config.NodeData{Config: map[string]interface{}{"tool_name": "calculator"}}})
	if err != nil {
		t.Fatalf("NewToolNode: %v", err)
	}
	services := &fakeServices{
		toolsByName: map[string]ToolDescriptor{"calculator": {Name: "calculator"}},
		toolResult:  ToolResult{Success: true, Content: "4"},
	}
	state := newTestFlowState()
	nc := newTestContext(state, services, t.TempDir())

	chunks := drainChunks(mustStream(t, n, nc))
	if len(chunks) != 3 {
		t.Fatalf("chunks = %+v, want tool_result, content, final", chunks)
	}
	if chunks[0].Type != ftypes.ToolResult || chunks[0].Content != "4" {
		t.Fatalf("chunks[0] = %+v, want tool_result with 4", chunks[0])
	}
	if outputs := state.NodeOutputs("t1"); len(outputs) != 1 || outputs[0] != "4" {
		t.Fatalf("NodeOutputs(t1) = %v, want [4]", outputs)
	}
}

func TestToolNodeEmitsToolErrorOnFailure(t *testing.T) {
	n, err := NewToolNode(config.NodeCfg{ID: "t1", Data: config.NodeData{Config: map[string]interface{}{"tool_name": "calculator"}}})
	if err != nil {
		t.Fatalf("NewToolNode: %v", err)
	}
	services := &fakeServices{
		toolsByName: map[string]ToolDescriptor{"calculator": {Name: "calculator"}},
		toolResult:  ToolResult{Success: false, Error: "division by zero"},
	}
	state := newTestFlowState()
	nc := newTestContext(state, services, t.TempDir())

	chunks := drainChunks(mustStream(t, n, nc))
	if len(chunks) != 1 || chunks[0].Content != "division by zero" {
		t.Fatalf("chunks = %+v, want a single tool_error chunk", chunks)
	}
}

func TestToolNodeUnresolvableNameEmitsToolError(t *testing.T) {
	n, err := NewToolNode(config.NodeCfg{ID: "t1"})
	if err != nil {
		t.Fatalf("NewToolNode: %v", err)
	}
	state := newTestFlowState()
	nc := newTestContext(state, &fakeServices{}, t.TempDir())

	chunks := drainChunks(mustStream(t, n, nc))
	if len(chunks) != 1 {
		t.Fatalf("chunks = %+v, want one tool_error chunk", chunks)
	}
}

func TestToolNodeFillsMissingParamsFromMessage(t *testing.T) {
	n, err := NewToolNode(config.NodeCfg{ID: "t1", Data: config.NodeData{Config: map[string]interface{}{"tool_name": "search"}}})
	if err != nil {
		t.Fatalf("NewToolNode: %v", err)
	}
	var captured map[string]interface{}
	services := &recordingServices{
		fakeServices: fakeServices{
			toolsByName: map[string]ToolDescriptor{"search": {Name: "search", Schema: map[string]interface{}{
				"required":   []interface{}{"query"},
				"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			}}},
			toolResult: ToolResult{Success: true, Content: "result"},
		},
		capture: &captured,
	}
	state := newTestFlowState()
	nc := newTestContext(state, services, t.TempDir())
	nc.Message = "what is the weather"

	drainChunks(mustStream(t, n, nc))
	if captured["query"] != "what is the weather" {
		t.Fatalf("captured params = %v, want query filled from message", captured)
	}
}

// recordingServices wraps fakeServices to capture the params ExecuteTool
// was actually invoked with.
type recordingServices struct {
	fakeServices
	capture *map[string]interface{}
}

func (s *recordingServices) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (ToolResult, error) {
	*s.capture = params
	return s.fakeServices.ExecuteTool(ctx, name, params)
}
