package node

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// ToolNode resolves a tool name, fills missing required parameters
// from message/flow_state, invokes it through the registry, and
// emits tool_result/content/final (or tool_error), per §4.5.
type ToolNode struct {
	id           string
	label        string
	toolName     string
	server       string
	toolSimple   string
	toolType     string
	params       map[string]interface{}
	autoParamKey string
}

func NewToolNode(cfg config.NodeCfg) (Node, error) {
	return &ToolNode{
		id:           cfg.ID,
		label:        cfg.Data.Label,
		toolName:     configString(cfg, "tool_name"),
		server:       configString(cfg, "server"),
		toolSimple:   configString(cfg, "tool"),
		toolType:     configString(cfg, "tool_type"),
		params:       configMap(cfg, "params"),
		autoParamKey: configString(cfg, "auto_param_key"),
	}, nil
}

func (n *ToolNode) ID() string               { return n.id }
func (n *ToolNode) Category() ftypes.Category { return ftypes.CategoryTool }
func (n *ToolNode) Implementation() string    { return "tool" }
func (n *ToolNode) Label() string             { return n.label }
func (n *ToolNode) RequiresMount() bool       { return false }

// resolveName implements §4.5's resolution order: explicit mcp
// server+tool, else tool_name, else server_tool guess, else suffix
// match against the registry (handled by Services.FindToolByName).
func (n *ToolNode) resolveName(nc *Context) (string, bool) {
	if n.toolType == "mcp" && n.server != "" && n.toolSimple != "" {
		return fmt.Sprintf("mcp_%s_%s", n.server, n.toolSimple), true
	}
	if n.toolName != "" {
		if _, ok := nc.Services.FindToolByName(n.toolName); ok {
			return n.toolName, true
		}
	}
	if n.server != "" && n.toolSimple != "" {
		guess := n.server + "_" + n.toolSimple
		if _, ok := nc.Services.FindToolByName(guess); ok {
			return guess, true
		}
	}
	candidate := n.toolName
	if candidate == "" {
		candidate = n.toolSimple
	}
	if candidate != "" {
		if desc, ok := nc.Services.FindToolByName(candidate); ok {
			return desc.Name, true
		}
	}
	return candidate, candidate != ""
}

func (n *ToolNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	name, ok := n.resolveName(nc)
	if !ok {
		return errorToolChan("tool node: could not resolve tool name"), nil
	}
	desc, _ := nc.Services.FindToolByName(name)

	params := make(map[string]interface{}, len(n.params))
	for k, v := range n.params {
		params[k] = v
	}

	// AutoParamNode override, keyed by auto_param_key or the
	// conventional auto_params_{this.id}.
	autoKey := n.autoParamKey
	if autoKey == "" {
		autoKey = "auto_params_" + n.id
	}
	if v, ok := nc.State.Get(autoKey); ok {
		if m, ok := v.(map[string]interface{}); ok {
			for k, val := range m {
				params[k] = val
			}
		}
	}

	n.fillMissingParams(params, desc, nc)

	ch := make(chan ftypes.Chunk, 4)
	go func() {
		defer close(ch)
		result, err := nc.Services.ExecuteTool(ctx, name, params)
		if err != nil || !result.Success {
			errMsg := result.Error
			if errMsg == "" && err != nil {
				errMsg = err.Error()
			}
			select {
			case ch <- ftypes.Chunk{Type: ftypes.ToolError, Content: errMsg, AgentName: nc.AgentName, Metadata: ftypes.Metadata{"tool_name": name}}:
			case <-ctx.Done():
			}
			return
		}

		if query, ok := params["query"].(string); ok && strings.Contains(strings.ToLower(name+" "+desc.Description), "search") {
			if path, saveErr := nc.Workspace.SaveSearchResult(query, result.Content); saveErr == nil {
				nc.State.AppendSavedFile(path)
				nc.State.Set(n.id+"_file_path", path)
			}
		}

		nc.State.SaveOutput(n.id, result.Content, "")
		select {
		case ch <- ftypes.Chunk{Type: ftypes.ToolResult, Content: result.Content, AgentName: nc.AgentName,
			Metadata: ftypes.Metadata{"tool_name": name, "tool_result": result.Output}}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Content, Content: result.Content, AgentName: nc.AgentName, Metadata: ftypes.Metadata{"tool_name": name}}:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- ftypes.Chunk{Type: ftypes.Final, Content: result.Content, AgentName: nc.AgentName, IsEnd: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

// fillMissingParams implements §4.5's "before invocation the node
// fills any required-parameter whose value is missing or looks like a
// schema object" rule, trying message, flow_state[param], then
// last_output in order, plus the report-tool file_names soft rule.
func (n *ToolNode) fillMissingParams(params map[string]interface{}, desc ToolDescriptor, nc *Context) {
	for _, name := range requiredNames(desc.Schema) {
		v, present := params[name]
		if present && !looksLikeSchemaObject(v) && v != nil && v != "" {
			continue
		}
		if nc.Message != "" {
			params[name] = nc.Message
			continue
		}
		if stateVal, ok := nc.State.Get(name); ok {
			params[name] = stateVal
			continue
		}
		if last := nc.State.LastOutput(); last != nil {
			params[name] = last
		}
	}
	if _, ok := params["query"]; !ok {
		if props, ok := desc.Schema["properties"].(map[string]interface{}); ok {
			if _, hasQuery := props["query"]; hasQuery {
				params["query"] = nc.Message
			}
		}
	}
	if strings.Contains(strings.ToLower(desc.Name), "report") {
		if _, ok := params["file_names"]; !ok {
			params["file_names"] = nc.State.SavedFiles()
		}
	}
}

// requiredNames normalizes a JSON-Schema "required" array, which may
// arrive as []string (built in-process) or []interface{} (round
// tripped through JSON from an MCP server).
func requiredNames(schema map[string]interface{}) []string {
	raw, ok := schema["required"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func errorToolChan(msg string) <-chan ftypes.Chunk {
	ch := make(chan ftypes.Chunk, 1)
	ch <- ftypes.Chunk{Type: ftypes.ToolError, Content: msg}
	close(ch)
	return ch
}
