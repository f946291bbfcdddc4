// Package tool implements the uniform tool registry (C1): built-in,
// MCP, and temporary (plugin) tools behind one interface, with the
// score/availability bookkeeping of spec.md §4.1/§8.
package tool

import "context"

// Type distinguishes how a tool is sourced.
type Type string

const (
	TypeBuiltin   Type = "builtin"
	TypeMCP       Type = "mcp"
	TypeTemporary Type = "temporary"
)

// ContainerType names the external environment a tool requires, if
// any; the flow engine's mount hook is consulted for nodes wrapping
// such tools.
type ContainerType string

const (
	ContainerNone    ContainerType = "none"
	ContainerBrowser ContainerType = "browser"
	ContainerFile    ContainerType = "file"
)

// Parameter describes one tool input parameter.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Items       *Parameter  `json:"items,omitempty"`
}

// Info is the descriptor surfaced to callers and LLM tool schemas.
type Info struct {
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Parameters    []Parameter   `json:"parameters"`
	Type          Type          `json:"type"`
	ContainerType ContainerType `json:"container_type"`
	ServerURL     string        `json:"server_url,omitempty"`
	Score         float64       `json:"score"`
	IsAvailable   bool          `json:"is_available"`
}

// Result is what Execute returns. Success/Error/Content follow the
// teacher's ToolResult shape; Output carries a structured payload when
// one is produced (e.g. search results) distinct from the
// human-readable Content summary.
type Result struct {
	Success       bool                   `json:"success"`
	Content       string                 `json:"content"`
	Output        interface{}            `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ToolName      string                 `json:"tool_name"`
	ExecutionTime float64                `json:"execution_time"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Tool is the interface every concrete tool (built-in function,
// MCP-backed wrapper, or plugin-backed temporary tool) implements.
type Tool interface {
	GetInfo() Info
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
	GetName() string
	GetDescription() string
}
