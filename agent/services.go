package agent

import (
	"context"
	"fmt"

	"github.com/flowctl/convoy/flow/node"
	"github.com/flowctl/convoy/llm"
)

// services adapts a Runtime into the node.Services interface flow
// nodes depend on, keeping flow/node decoupled from the concrete
// llm/tool/kb packages per spec.md §9's composition guidance.
type services struct {
	rt           *Runtime
	defaultModel string
}

func newServices(rt *Runtime, defaultModel string) *services {
	return &services{rt: rt, defaultModel: defaultModel}
}

func (s *services) LLM(modelID string) (node.LLMCaller, error) {
	if modelID == "" {
		modelID = s.defaultModel
	}
	provider, ok := s.rt.LLM.Get(modelID)
	if !ok {
		return nil, fmt.Errorf("agent: unknown llm config %q", modelID)
	}
	return &llmCaller{provider: provider}, nil
}

func (s *services) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (node.ToolResult, error) {
	result, err := executeTool(ctx, s.rt.Tools, name, params)
	return node.ToolResult{
		Success:  result.Success,
		Content:  result.Content,
		Output:   result.Output,
		Error:    result.Error,
		ToolName: result.ToolName,
	}, err
}

func (s *services) FindToolByName(name string) (node.ToolDescriptor, bool) {
	t, ok := s.rt.Tools.Get(name)
	if !ok {
		return node.ToolDescriptor{}, false
	}
	info := t.GetInfo()
	return node.ToolDescriptor{Name: info.Name, Description: info.Description, Schema: info.ToJSONSchema()}, true
}

func (s *services) HighestScoredTools() []node.ToolDescriptor {
	infos := s.rt.Tools.HighestScoredPerGroup()
	out := make([]node.ToolDescriptor, 0, len(infos))
	for _, info := range infos {
		out = append(out, node.ToolDescriptor{Name: info.Name, Description: info.Description, Schema: info.ToJSONSchema()})
	}
	return out
}

func (s *services) SearchKnowledgeBase(ctx context.Context, kbID, query string, maxResults int) (node.KBResult, error) {
	if s.rt.KB == nil {
		return node.KBResult{Response: "no knowledge base configured"}, nil
	}
	return s.rt.KB.Query(ctx, kbID, query, "", maxResults)
}

// MountProvider is a no-op placeholder: browser/file container
// mounting is an external collaborator per spec.md §1's Non-goals
// ("the frontend editor" and external environments are out of scope),
// so requires_mount nodes simply proceed once this returns nil.
func (s *services) MountProvider(ctx context.Context, mountSpec map[string]interface{}) error {
	return nil
}

// llmCaller adapts an llm.Provider (request/response shaped) into the
// node.LLMCaller surface (plain system/user prompt strings) that flow
// nodes use, per §9's "default streaming adapter wraps a synchronous
// one" composition note — here in the opposite direction, a thin
// prompt-shape adapter rather than a streaming one.
type llmCaller struct {
	provider llm.Provider
}

func (c *llmCaller) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	resp, err := c.provider.Complete(ctx, llm.Request{Messages: messages(systemPrompt, userPrompt)})
	if err != nil {
		return "", 0, err
	}
	return resp.Content, resp.Tokens, nil
}

func (c *llmCaller) Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, error) {
	chunks, err := c.provider.Stream(ctx, llm.Request{Messages: messages(systemPrompt, userPrompt)})
	if err != nil {
		return nil, err
	}
	out := make(chan string, 8)
	go func() {
		defer close(out)
		for chunk := range chunks {
			if chunk.Type == "text" && chunk.Text != "" {
				select {
				case out <- chunk.Text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func messages(systemPrompt, userPrompt string) []llm.Message {
	msgs := make([]llm.Message, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userPrompt})
	return msgs
}
