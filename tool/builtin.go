package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// FuncTool adapts a plain function into the Tool interface, the Go
// equivalent of a "BaseTool-derived class" module: each built-in tool
// is one Go file contributing one FuncTool-returning constructor.
// Go has no runtime module scanning, so "discover built-ins by
// scanning a directory tree" becomes discovering by enumerating a
// static constructor list (Builtins below). Built-in tools read and
// write files through the Workspace passed to Builtins, which
// cmd/convoyd roots at GlobalConfig.WorkspaceRoot; ToolsConfig.BuiltinDir
// is not read by this package.
type FuncTool struct {
	info Info
	fn   func(ctx context.Context, params map[string]interface{}) (Result, error)
}

func NewFuncTool(info Info, fn func(ctx context.Context, params map[string]interface{}) (Result, error)) *FuncTool {
	info.Type = TypeBuiltin
	return &FuncTool{info: info, fn: fn}
}

func (f *FuncTool) GetInfo() Info          { return f.info }
func (f *FuncTool) GetName() string        { return f.info.Name }
func (f *FuncTool) GetDescription() string { return f.info.Description }
func (f *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	return f.fn(ctx, params)
}

// Builtins returns every built-in tool constructor. Registering a new
// built-in tool means adding one entry here, the same "one module, one
// contribution" shape the directory-scan approach gave the teacher.
func Builtins(workspace *Workspace) []Tool {
	return []Tool{
		NewDuckDuckGoSearchTool(),
		NewCalculatorTool(),
		newReadFileTool(workspace),
	}
}

// NewDuckDuckGoSearchTool implements the `ddg_search` tool named in
// spec.md §8 scenario S2, using DuckDuckGo's HTML-free Instant Answer
// JSON API (no API key required) as a small, genuinely external web
// search — the one built-in tool exercising net/http directly rather
// than reaching for an SDK, since no search-provider client exists in
// the retrieval pack.
func NewDuckDuckGoSearchTool() Tool {
	info := Info{
		Name:        "ddg_search",
		Description: "Searches the web via DuckDuckGo's instant answer API",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "search query", Required: true},
		},
		ContainerType: ContainerNone,
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return NewFuncTool(info, func(ctx context.Context, params map[string]interface{}) (Result, error) {
		query, _ := params["query"].(string)
		if query == "" {
			return Result{Success: false, Error: "query is required"}, nil
		}
		u := "https://api.duckduckgo.com/?q=" + url.QueryEscape(query) + "&format=json&no_html=1"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		resp, err := client.Do(req)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		var parsed struct {
			AbstractText string `json:"AbstractText"`
			RelatedTopics []struct {
				Text string `json:"Text"`
			} `json:"RelatedTopics"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Result{Success: false, Error: "could not parse search response"}, nil
		}
		content := parsed.AbstractText
		if content == "" && len(parsed.RelatedTopics) > 0 {
			content = parsed.RelatedTopics[0].Text
		}
		if content == "" {
			content = "not found: no results for " + query
		}
		return Result{
			Success: true,
			Content: content,
			Output:  parsed,
			Metadata: map[string]interface{}{
				"query": query,
			},
		}, nil
	})
}

// NewCalculatorTool evaluates a small arithmetic expression, useful as
// a deterministic tool for tests that need a tool call with
// predictable, non-LLM output.
func NewCalculatorTool() Tool {
	info := Info{
		Name:        "calculator",
		Description: "Evaluates a simple arithmetic expression of the form 'a op b'",
		Parameters: []Parameter{
			{Name: "expression", Type: "string", Description: "e.g. '2 + 2'", Required: true},
		},
		ContainerType: ContainerNone,
	}
	return NewFuncTool(info, func(ctx context.Context, params map[string]interface{}) (Result, error) {
		expr, _ := params["expression"].(string)
		var a, b float64
		var op string
		if _, err := fmt.Sscanf(expr, "%f %s %f", &a, &op, &b); err != nil {
			return Result{Success: false, Error: "could not parse expression"}, nil
		}
		var out float64
		switch op {
		case "+":
			out = a + b
		case "-":
			out = a - b
		case "*":
			out = a * b
		case "/":
			if b == 0 {
				return Result{Success: false, Error: "division by zero"}, nil
			}
			out = a / b
		default:
			return Result{Success: false, Error: "unsupported operator " + op}, nil
		}
		return Result{Success: true, Content: fmt.Sprintf("%v", out), Output: out}, nil
	})
}

func newReadFileTool(workspace *Workspace) Tool {
	info := Info{
		Name:        "read_workspace_file",
		Description: "Reads a file relative to the tool workspace root",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "relative path", Required: true},
		},
		ContainerType: ContainerFile,
	}
	return NewFuncTool(info, func(ctx context.Context, params map[string]interface{}) (Result, error) {
		rel, _ := params["path"].(string)
		if rel == "" {
			return Result{Success: false, Error: "path is required"}, nil
		}
		data, err := workspace.Read(rel)
		if err != nil {
			return Result{Success: false, Error: err.Error()}, nil
		}
		return Result{Success: true, Content: string(data)}, nil
	})
}
