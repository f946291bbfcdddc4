package agent

import (
	"context"

	"github.com/flowctl/convoy/flow/node"
	"github.com/flowctl/convoy/llm"
	"github.com/flowctl/convoy/tool"
)

// fakeProvider is a minimal llm.Provider stub for agent-layer tests.
type fakeProvider struct {
	completeContent string
	completeErr     error
	streamText      []string
	streamErr       error
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if p.completeErr != nil {
		return llm.Response{}, p.completeErr
	}
	return llm.Response{Content: p.completeContent}, nil
}

func (p *fakeProvider) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	ch := make(chan llm.StreamChunk, len(p.streamText)+1)
	for _, t := range p.streamText {
		ch <- llm.StreamChunk{Type: "text", Text: t}
	}
	ch <- llm.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (p *fakeProvider) ModelName() string { return "fake" }

// fakeKB is a minimal KnowledgeSearcher stub.
type fakeKB struct {
	response string
	err      error
}

func (k *fakeKB) Query(ctx context.Context, kbID, query, userID string, maxResults int) (node.KBResult, error) {
	if k.err != nil {
		return node.KBResult{}, k.err
	}
	return node.KBResult{Response: k.response}, nil
}

// fakeAgentTool is a minimal tool.Tool stub for agent-layer tests.
type fakeAgentTool struct {
	name     string
	result   tool.Result
	err      error
	required []string
}

func (t *fakeAgentTool) GetInfo() tool.Info {
	params := make([]tool.Parameter, 0, len(t.required))
	for _, r := range t.required {
		params = append(params, tool.Parameter{Name: r, Type: "string", Required: true})
	}
	return tool.Info{Name: t.name, Description: "fake tool", Type: tool.TypeBuiltin, ContainerType: tool.ContainerNone, Parameters: params}
}
func (t *fakeAgentTool) GetName() string        { return t.name }
func (t *fakeAgentTool) GetDescription() string { return "fake tool" }
func (t *fakeAgentTool) Execute(ctx context.Context, params map[string]interface{}) (tool.Result, error) {
	return t.result, t.err
}

func newTestRegistry(tools ...*fakeAgentTool) *tool.Registry {
	reg := tool.NewRegistry(0, 0, nil, nil)
	for _, ft := range tools {
		reg.Register(context.Background(), ft, tool.TypeBuiltin, "test")
	}
	return reg
}
