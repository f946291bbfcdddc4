// Package plugin implements temporary/dynamically-defined tools as
// hashicorp/go-plugin subprocess plugins — the idiomatic Go
// replacement for "compile tool source and exec() it in a restricted
// namespace": a temporary tool is a small standalone Go program built
// once and launched as a subprocess, invoked over a net/rpc interface
// brokered by go-plugin (grounded on the teacher's plugins/grpc +
// pkg/plugins require of hashicorp/go-plugin; this package uses
// go-plugin's classic net/rpc plugin kind rather than hand-writing
// gRPC service stubs, since there is no protoc step available to
// generate them — go-plugin's own broker already depends on
// google.golang.org/grpc internally regardless of plugin kind).
package plugin

import (
	"encoding/json"
	"fmt"
	"net/rpc"
	"os/exec"

	goplugin "github.com/hashicorp/go-plugin"
)

// Handshake is shared by host and plugin binaries so go-plugin refuses
// to dispense a mismatched or accidentally-invoked binary.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CONVOY_TOOL_PLUGIN",
	MagicCookieValue: "convoy-temporary-tool",
}

// ToolImpl is implemented by the plugin binary's actual tool logic.
type ToolImpl interface {
	Execute(params map[string]interface{}) (content string, output interface{}, success bool, errMsg string, err error)
}

// ToolPlugin is the go-plugin Plugin implementation shared by both
// sides of the subprocess boundary.
type ToolPlugin struct {
	Impl ToolImpl
}

func (p *ToolPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *ToolPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

// executeArgs/executeReply are JSON-encoded envelopes rather than raw
// map[string]interface{}/Result values: net/rpc's gob transport needs
// every concrete type flowing through an interface{} registered in
// advance, which a dynamically-typed tool-parameters map can't
// guarantee. JSON sidesteps that entirely.
type executeArgs struct {
	ParamsJSON []byte
}

type executeReply struct {
	Content    string
	OutputJSON []byte
	Success    bool
	ErrMsg     string
}

type rpcServer struct {
	impl ToolImpl
}

func (s *rpcServer) Execute(args executeArgs, reply *executeReply) error {
	var params map[string]interface{}
	if err := json.Unmarshal(args.ParamsJSON, &params); err != nil {
		return fmt.Errorf("plugin: decode params: %w", err)
	}
	content, output, success, errMsg, err := s.impl.Execute(params)
	if err != nil {
		return err
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("plugin: encode output: %w", err)
	}
	reply.Content = content
	reply.OutputJSON = outputJSON
	reply.Success = success
	reply.ErrMsg = errMsg
	return nil
}

// rpcClient is the host-side stub dispensed to callers; it satisfies
// the ToolImpl-shaped call without re-exposing net/rpc details.
type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) Execute(params map[string]interface{}) (string, interface{}, bool, string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", nil, false, "", fmt.Errorf("plugin: encode params: %w", err)
	}
	var reply executeReply
	if err := c.client.Call("Plugin.Execute", executeArgs{ParamsJSON: paramsJSON}, &reply); err != nil {
		return "", nil, false, "", fmt.Errorf("plugin: rpc call: %w", err)
	}
	var output interface{}
	if len(reply.OutputJSON) > 0 {
		_ = json.Unmarshal(reply.OutputJSON, &output)
	}
	return reply.Content, output, reply.Success, reply.ErrMsg, nil
}

// Launch starts a plugin subprocess at binaryPath and returns the
// dispensed client stub plus the go-plugin client (whose Kill must be
// called when the temporary tool is torn down).
func Launch(binaryPath string, args ...string) (*goplugin.Client, ToolImpl, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"tool": &ToolPlugin{},
		},
		Cmd: exec.Command(binaryPath, args...),
	})
	rpcClientConn, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: connect: %w", err)
	}
	raw, err := rpcClientConn.Dispense("tool")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: dispense: %w", err)
	}
	impl, ok := raw.(ToolImpl)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin: dispensed value is not a ToolImpl")
	}
	return client, impl, nil
}

// Serve is called from a plugin binary's main() to expose impl as a
// temporary tool to the host process.
func Serve(impl ToolImpl) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"tool": &ToolPlugin{Impl: impl},
		},
	})
}
