package tool

import (
	"context"
	"fmt"

	"github.com/flowctl/convoy/tool/mcpclient"
)

// MCPTool wraps a single MCP-server tool as a Tool, translating
// Execute(params) into mcpclient.Helper.CallTool(server, name, params),
// per spec.md §4.1.
type MCPTool struct {
	info       Info
	helper     *mcpclient.Helper
	serverName string
	toolName   string
}

// NewMCPTool builds a Tool wrapper given a server's tool descriptor.
func NewMCPTool(helper *mcpclient.Helper, serverName string, desc mcpclient.ToolDescriptor) *MCPTool {
	return &MCPTool{
		info: Info{
			Name:          fmt.Sprintf("mcp_%s_%s", serverName, desc.Name),
			Description:   desc.Description,
			Type:          TypeMCP,
			ContainerType: ContainerNone,
			ServerURL:     serverName,
		},
		helper:     helper,
		serverName: serverName,
		toolName:   desc.Name,
	}
}

func (t *MCPTool) GetInfo() Info          { return t.info }
func (t *MCPTool) GetName() string        { return t.info.Name }
func (t *MCPTool) GetDescription() string { return t.info.Description }

func (t *MCPTool) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	text, err := t.helper.CallTool(ctx, t.serverName, t.toolName, params)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}
	return Result{Success: true, Content: text}, nil
}

// DiscoverMCPTools lists every tool on every configured server and
// wraps each as a Tool, for RegisterRepository-style bulk enrollment.
func DiscoverMCPTools(ctx context.Context, helper *mcpclient.Helper) ([]Tool, error) {
	var out []Tool
	for _, serverName := range helper.GetAvailableServices() {
		descs, err := helper.GetTools(ctx, serverName)
		if err != nil {
			return nil, fmt.Errorf("tool: discover %q: %w", serverName, err)
		}
		for _, d := range descs {
			out = append(out, NewMCPTool(helper, serverName, d))
		}
	}
	return out, nil
}
