package node

import (
	"context"
	"encoding/json"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// LLMNode renders system/user prompt templates, streams the
// completion as content chunks, then attempts to parse the full
// response as JSON and merges any resulting keys into flow_state, per
// §4.5.
type LLMNode struct {
	id           string
	label        string
	systemPrompt string
	userPrompt   string
	saveAs       string
	modelID      string
}

func NewLLMNode(cfg config.NodeCfg) (Node, error) {
	return &LLMNode{
		id:           cfg.ID,
		label:        cfg.Data.Label,
		systemPrompt: configString(cfg, "system_prompt"),
		userPrompt:   configString(cfg, "user_prompt"),
		saveAs:       configString(cfg, "save_as"),
		modelID:      configString(cfg, "llm_config_id"),
	}, nil
}

func (n *LLMNode) ID() string               { return n.id }
func (n *LLMNode) Category() ftypes.Category { return ftypes.CategoryLLM }
func (n *LLMNode) Implementation() string    { return "llm" }
func (n *LLMNode) Label() string             { return n.label }
func (n *LLMNode) RequiresMount() bool       { return false }

func (n *LLMNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	caller, err := nc.Services.LLM(n.modelID)
	if err != nil {
		return errorChan(err), nil
	}
	system := renderTemplate(n.systemPrompt, nc.Message, nc.State)
	user := renderTemplate(n.userPrompt, nc.Message, nc.State)

	tokens, err := caller.Stream(ctx, system, user)
	if err != nil {
		return errorChan(err), nil
	}

	ch := make(chan ftypes.Chunk, 8)
	go func() {
		defer close(ch)
		var accumulated string
		for text := range tokens {
			accumulated += text
			select {
			case ch <- ftypes.Chunk{Type: ftypes.Content, Content: text, AgentName: nc.AgentName}:
			case <-ctx.Done():
				return
			}
		}
		n.mergeJSON(accumulated, nc)
		nc.State.SaveOutput(n.id, accumulated, n.saveAs)
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Final, Content: accumulated, AgentName: nc.AgentName, IsEnd: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// mergeJSON implements the "successful parse merges all keys into
// flow_state" rule: a response that parses as a JSON object has every
// top-level key written into the global scratchpad.
func (n *LLMNode) mergeJSON(accumulated string, nc *Context) {
	candidate := extractJSONObject(accumulated)
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return
	}
	for k, v := range obj {
		nc.State.Set(k, v)
	}
}

func errorChan(err error) <-chan ftypes.Chunk {
	ch := make(chan ftypes.Chunk, 1)
	ch <- ftypes.Chunk{Type: ftypes.NodeError, Content: err.Error()}
	close(ch)
	return ch
}
