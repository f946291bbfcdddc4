package tool

import (
	"context"
	"fmt"

	goplugin "github.com/hashicorp/go-plugin"

	toolplugin "github.com/flowctl/convoy/tool/plugin"
)

// TemporaryTool wraps a launched plugin subprocess as a Tool. It
// replaces the "compile Python source and exec() it in a restricted
// namespace" temporary-tool mechanism of spec.md §4.1 with a
// compiled, already-isolated-by-process-boundary subprocess.
type TemporaryTool struct {
	info   Info
	client *goplugin.Client
	impl   toolplugin.ToolImpl
}

// NewTemporaryTool launches binaryPath as a plugin subprocess and
// wraps it as a Tool under name/description.
func NewTemporaryTool(name, description string, params []Parameter, binaryPath string, args ...string) (*TemporaryTool, error) {
	client, impl, err := toolplugin.Launch(binaryPath, args...)
	if err != nil {
		return nil, fmt.Errorf("temporary tool %q: %w", name, err)
	}
	return &TemporaryTool{
		info: Info{
			Name:          name,
			Description:   description,
			Parameters:    params,
			Type:          TypeTemporary,
			ContainerType: ContainerNone,
		},
		client: client,
		impl:   impl,
	}, nil
}

func (t *TemporaryTool) GetInfo() Info          { return t.info }
func (t *TemporaryTool) GetName() string        { return t.info.Name }
func (t *TemporaryTool) GetDescription() string { return t.info.Description }

func (t *TemporaryTool) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	content, output, success, errMsg, err := t.impl.Execute(params)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, err
	}
	return Result{
		Success: success,
		Content: content,
		Output:  output,
		Error:   errMsg,
	}, nil
}

// Close terminates the plugin subprocess.
func (t *TemporaryTool) Close() {
	t.client.Kill()
}
