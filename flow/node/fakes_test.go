package node

import "context"

// fakeServices is a hand-rolled stub implementing node.Services for
// node-kind tests, letting each test configure only what it needs.
type fakeServices struct {
	llmCaller     LLMCaller
	llmErr        error
	toolResult    ToolResult
	toolErr       error
	toolsByName   map[string]ToolDescriptor
	kbResult      KBResult
	kbErr         error
	mountErr      error
	highestScored []ToolDescriptor
}

func (s *fakeServices) LLM(modelID string) (LLMCaller, error) {
	if s.llmErr != nil {
		return nil, s.llmErr
	}
	return s.llmCaller, nil
}

func (s *fakeServices) ExecuteTool(ctx context.Context, name string, params map[string]interface{}) (ToolResult, error) {
	return s.toolResult, s.toolErr
}

func (s *fakeServices) FindToolByName(name string) (ToolDescriptor, bool) {
	d, ok := s.toolsByName[name]
	return d, ok
}

func (s *fakeServices) SearchKnowledgeBase(ctx context.Context, kbID, query string, maxResults int) (KBResult, error) {
	return s.kbResult, s.kbErr
}

func (s *fakeServices) MountProvider(ctx context.Context, mountSpec map[string]interface{}) error {
	return s.mountErr
}

func (s *fakeServices) HighestScoredTools() []ToolDescriptor {
	return s.highestScored
}

// fakeLLMCaller is a stub LLMCaller returning canned Complete/Stream
// results, used by LLMNode/AutoParamNode/PlannerNode tests.
type fakeLLMCaller struct {
	completeResp string
	completeErr  error
	streamChunks []string
	streamErr    error
}

func (c *fakeLLMCaller) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return c.completeResp, len(c.completeResp), c.completeErr
}

func (c *fakeLLMCaller) Stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	ch := make(chan string, len(c.streamChunks))
	for _, s := range c.streamChunks {
		ch <- s
	}
	close(ch)
	return ch, nil
}
