package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// AutoParamNode infers a downstream tool's call parameters from the
// message and previous output, writing the result to
// flow_state[auto_param_key] for the target ToolNode to pick up, per
// §4.5.
type AutoParamNode struct {
	id             string
	label          string
	toolName       string
	toolType       string
	server         string
	targetNodeID   string
	autoParamKey   string
}

func NewAutoParamNode(cfg config.NodeCfg) (Node, error) {
	return &AutoParamNode{
		id:           cfg.ID,
		label:        cfg.Data.Label,
		toolName:     configString(cfg, "tool_name"),
		toolType:     configString(cfg, "tool_type"),
		server:       configString(cfg, "server"),
		targetNodeID: configString(cfg, "target_tool_node_id"),
		autoParamKey: configString(cfg, "auto_param_key"),
	}, nil
}

func (n *AutoParamNode) ID() string               { return n.id }
func (n *AutoParamNode) Category() ftypes.Category { return ftypes.CategoryAutoParam }
func (n *AutoParamNode) Implementation() string    { return "auto_param" }
func (n *AutoParamNode) Label() string             { return n.label }
func (n *AutoParamNode) RequiresMount() bool       { return false }

func (n *AutoParamNode) key() string {
	if n.autoParamKey != "" {
		return n.autoParamKey
	}
	return "auto_params_" + n.targetNodeID
}

func (n *AutoParamNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	ch := make(chan ftypes.Chunk, 2)
	go func() {
		defer close(ch)

		name := n.toolName
		if name == "" && n.server != "" {
			name = n.server
		}
		desc, hasSchema := nc.Services.FindToolByName(name)

		params, err := n.inferParams(ctx, nc, desc, hasSchema)
		if err != nil || params == nil {
			params = n.fallbackParams(desc, hasSchema, nc)
		}

		nc.State.Set(n.key(), params)
		nc.State.SaveOutput(n.id, params, "")

		select {
		case ch <- ftypes.Chunk{Type: ftypes.Content, AgentName: nc.AgentName, Metadata: ftypes.Metadata{"auto_params": params, "tool_name": name}}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Final, AgentName: nc.AgentName, IsEnd: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// inferParams asks the LLM for a JSON object of parameters, composing
// a prompt from the target tool's schema, the current message, and
// the flow's previous output.
func (n *AutoParamNode) inferParams(ctx context.Context, nc *Context, desc ToolDescriptor, hasSchema bool) (map[string]interface{}, error) {
	caller, err := nc.Services.LLM("")
	if err != nil {
		return nil, err
	}
	schemaJSON := "{}"
	if hasSchema {
		if b, merr := json.Marshal(filterObsoleteFields(desc.Schema)); merr == nil {
			schemaJSON = string(b)
		}
	}
	previous := nc.State.LastOutput()
	system := "You infer tool call parameters as a single JSON object matching the given schema. Respond with JSON only."
	user := fmt.Sprintf("schema_json: %s\nmessage: %s\nprevious_output: %v", schemaJSON, nc.Message, previous)

	response, _, err := caller.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}
	candidate := extractJSONObject(response)
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &params); err != nil {
		return nil, err
	}
	return params, nil
}

// fallbackParams implements §4.5's DataShapeError fallback: required
// fields filled with message, else {query: message} with no schema.
func (n *AutoParamNode) fallbackParams(desc ToolDescriptor, hasSchema bool, nc *Context) map[string]interface{} {
	if !hasSchema {
		return map[string]interface{}{"query": nc.Message}
	}
	params := make(map[string]interface{})
	for _, field := range requiredNames(desc.Schema) {
		params[field] = nc.Message
	}
	if len(params) == 0 {
		params["query"] = nc.Message
	}
	return params
}

// filterObsoleteFields drops schema keys that don't describe the
// callable shape (titles, examples) so the prompt stays compact.
func filterObsoleteFields(schema map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		switch k {
		case "title", "examples", "$schema", "$id":
			continue
		default:
			out[k] = v
		}
	}
	return out
}
