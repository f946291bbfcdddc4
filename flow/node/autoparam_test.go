package node

import (
	"testing"

	"github.com/flowctl/convoy/config"
)

func TestAutoParamNodeInfersParamsFromLLM(t *testing.T) {
	n, err := NewAutoParamNode(config.NodeCfg{ID: "a1", Data: config.NodeData{Config: map[string]interface{}{
		"tool_name":           "calculator",
		"target_tool_node_id": "t1",
	}}})
	if err != nil {
		t.Fatalf("NewAutoParamNode: %v", err)
	}
	caller := &fakeLLMCaller{completeResp: `{"expression": "2 + 2"}`}
	services := &fakeServices{
		llmCaller:   caller,
		toolsByName: map[string]ToolDescriptor{"calculator": {Name: "calculator", Schema: map[string]interface{}{"required": []interface{}{"expression"}}}},
	}
	state := newTestFlowState()
	nc := &Context{Message: "what's 2+2", State: state, Services: services}

	drainChunks(mustStream(t, n, nc))
	v, ok := state.Get("auto_params_t1")
	if !ok {
		t.Fatal("state[auto_params_t1] not set")
	}
	params := v.(map[string]interface{})
	if params["expression"] != "2 + 2" {
		t.Fatalf("params = %v, want expression inferred from the LLM", params)
	}
}

func TestAutoParamNodeFallsBackOnUnparseableLLMResponse(t *testing.T) {
	n, err := NewAutoParamNode(config.NodeCfg{ID: "a1", Data: config.NodeData{Config: map[string]interface{}{
		"tool_name":           "calculator",
		"target_tool_node_id": "t1",
	}}})
	if err != nil {
		t.Fatalf("NewAutoParamNode: %v", err)
	}
	caller := &fakeLLMCaller{completeResp: "not json at all"}
	services := &fakeServices{
		llmCaller:   caller,
		toolsByName: map[string]ToolDescriptor{"calculator": {Name: "calculator", Schema: map[string]interface{}{"required": []interface{}{"expression"}}}},
	}
	state := newTestFlowState()
	nc := &Context{Message: "what's 2+2", State: state, Services: services}

	drainChunks(mustStream(t, n, nc))
	v, _ := state.Get("auto_params_t1")
	params := v.(map[string]interface{})
	if params["expression"] != "what's 2+2" {
		t.Fatalf("params = %v, want the required field filled from message as a fallback", params)
	}
}

func TestAutoParamNodeFallsBackToQueryWithoutSchema(t *testing.T) {
	n, err := NewAutoParamNode(config.NodeCfg{ID: "a1", Data: config.NodeData{Config: map[string]interface{}{
		"tool_name":           "unknown_tool",
		"target_tool_node_id": "t1",
	}}})
	if err != nil {
		t.Fatalf("NewAutoParamNode: %v", err)
	}
	caller := &fakeLLMCaller{completeErr: nil, completeResp: ""}
	services := &fakeServices{llmCaller: caller}
	state := newTestFlowState()
	nc := &Context{Message: "search for something", State: state, Services: services}

	drainChunks(mustStream(t, n, nc))
	v, _ := state.Get("auto_params_t1")
	params := v.(map[string]interface{})
	if params["query"] != "search for something" {
		t.Fatalf("params = %v, want query fallback when the tool has no schema", params)
	}
}
